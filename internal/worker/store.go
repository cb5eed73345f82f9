package worker

import (
	"errors"
	"sort"
	"sync"

	"github.com/navaneethakrishnanms/paper-ai-evaluation/internal/models"
)

var (
	ErrBatchNotFound = errors.New("batch not found")
	ErrJobNotFound   = errors.New("job not found")
)

// BatchStore holds every batch the service knows about. The orchestrator
// goroutine of a batch is the only writer of that batch's state; everyone
// else reads deep copies, so readers never observe a half-applied update.
type BatchStore struct {
	mu      sync.RWMutex
	batches map[string]*models.BatchState
}

func NewBatchStore() *BatchStore {
	return &BatchStore{
		batches: make(map[string]*models.BatchState),
	}
}

func (s *BatchStore) Create(batch *models.BatchState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[batch.ID] = batch
}

// Get returns a snapshot of the batch safe to use without further locking.
func (s *BatchStore) Get(id string) (*models.BatchState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	batch, ok := s.batches[id]
	if !ok {
		return nil, ErrBatchNotFound
	}
	return batch.Clone(), nil
}

// GetJob returns a snapshot of one job within a batch.
func (s *BatchStore) GetJob(batchID string, jobID int) (*models.JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	batch, ok := s.batches[batchID]
	if !ok {
		return nil, ErrBatchNotFound
	}
	for i := range batch.Jobs {
		if batch.Jobs[i].ID == jobID {
			clone := batch.Clone()
			return &clone.Jobs[i], nil
		}
	}
	return nil, ErrJobNotFound
}

// List returns snapshots of all batches, newest first.
func (s *BatchStore) List() []*models.BatchState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.BatchState, 0, len(s.batches))
	for _, batch := range s.batches {
		out = append(out, batch.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Update applies fn to the live batch under the write lock. All mutations
// funnel through here so a reader's Clone always sees a consistent state.
func (s *BatchStore) Update(id string, fn func(batch *models.BatchState)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch, ok := s.batches[id]
	if !ok {
		return ErrBatchNotFound
	}
	fn(batch)
	return nil
}

// UpdateJob applies fn to one job of a batch under the write lock. Terminal
// jobs are immutable; updates against them are dropped silently because the
// orchestrator may race a late poll observation against a cancellation.
func (s *BatchStore) UpdateJob(batchID string, jobID int, fn func(job *models.JobRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch, ok := s.batches[batchID]
	if !ok {
		return ErrBatchNotFound
	}
	for i := range batch.Jobs {
		if batch.Jobs[i].ID == jobID {
			if batch.Jobs[i].Status.IsTerminal() {
				return nil
			}
			fn(&batch.Jobs[i])
			return nil
		}
	}
	return ErrJobNotFound
}

// RequestCancel flips the batch's cancellation flag. It reports whether the
// flag was newly set so callers can make repeated cancels idempotent.
func (s *BatchStore) RequestCancel(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch, ok := s.batches[id]
	if !ok {
		return false, ErrBatchNotFound
	}
	if batch.Cancelled || batch.Status == models.BatchStatusFinished {
		return false, nil
	}
	batch.Cancelled = true
	return true, nil
}

// IsCancelled reads the live flag without cloning. The orchestrator checks
// it between pipeline steps.
func (s *BatchStore) IsCancelled(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	batch, ok := s.batches[id]
	if !ok {
		return false
	}
	return batch.Cancelled
}

func (s *BatchStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.batches, id)
}
