package models

import (
	"time"
)

type BatchStatus string

const (
	BatchStatusPending   BatchStatus = "pending"
	BatchStatusRunning   BatchStatus = "running"
	BatchStatusFinished  BatchStatus = "finished"
	BatchStatusCancelled BatchStatus = "cancelled"
)

func (bs BatchStatus) String() string {
	return string(bs)
}

// MasterDocuments are shared by every job in a batch and are immutable
// once processing starts.
type MasterDocuments struct {
	QuestionPaper string `json:"question_paper"`
	AnswerKey     string `json:"answer_key"`
}

// BatchState is one evaluation session: the master documents plus one job
// per student document. Jobs are processed strictly in insertion order by a
// single orchestrator goroutine, which is the only writer of this state.
type BatchState struct {
	ID              string          `json:"id"`
	MasterDocuments MasterDocuments `json:"master_documents"`
	Mode            GradingMode     `json:"mode"`
	Jobs            []JobRecord     `json:"jobs"`
	// Cursor is the index of the job currently being processed, -1 when idle.
	Cursor     int         `json:"cursor"`
	Cancelled  bool        `json:"cancelled"`
	Status     BatchStatus `json:"status"`
	CreatedAt  time.Time   `json:"created_at"`
	StartedAt  *time.Time  `json:"started_at,omitempty"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
}

// Clone returns a deep copy safe to hand to readers while the orchestrator
// keeps mutating the original.
func (b *BatchState) Clone() *BatchState {
	out := *b
	out.Jobs = make([]JobRecord, len(b.Jobs))
	copy(out.Jobs, b.Jobs)
	for i := range out.Jobs {
		if r := out.Jobs[i].Result; r != nil {
			cp := r.Clone()
			out.Jobs[i].Result = &cp
		}
		if e := out.Jobs[i].Error; e != nil {
			cp := *e
			out.Jobs[i].Error = &cp
		}
		if t := out.Jobs[i].StartedAt; t != nil {
			cp := *t
			out.Jobs[i].StartedAt = &cp
		}
		if t := out.Jobs[i].FinishedAt; t != nil {
			cp := *t
			out.Jobs[i].FinishedAt = &cp
		}
	}
	if t := b.StartedAt; t != nil {
		cp := *t
		out.StartedAt = &cp
	}
	if t := b.FinishedAt; t != nil {
		cp := *t
		out.FinishedAt = &cp
	}
	return &out
}
