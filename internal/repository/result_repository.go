package repository

import (
	"context"
	"database/sql"

	"github.com/rs/zerolog"

	"github.com/navaneethakrishnanms/paper-ai-evaluation/internal/models"
)

type ResultRepository interface {
	Create(ctx context.Context, record *models.ResultRecord) error
	GetByJob(ctx context.Context, batchID string, jobID int) (*models.ResultRecord, error)
	ListByBatch(ctx context.Context, batchID string) ([]models.ResultRecord, error)
	ListRecent(ctx context.Context, limit int) ([]models.ResultRecord, error)
	DeleteByBatch(ctx context.Context, batchID string) error
	Ping(ctx context.Context) error
}

type resultRepository struct {
	*PostgresRepository
}

func NewResultRepository(db *sql.DB, logger zerolog.Logger) ResultRepository {
	return &resultRepository{
		PostgresRepository: NewPostgresRepository(db, logger),
	}
}

func (r *resultRepository) Create(ctx context.Context, record *models.ResultRecord) error {
	query := `
		INSERT INTO evaluation_results (
			id, batch_id, job_id, source_document, status,
			failure_kind, failure_message, grand_total, max_marks,
			percentage, grade, result, payload, retry_wait_ms,
			created_at, started_at, completed_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17
		)
		ON CONFLICT (batch_id, job_id) DO UPDATE SET
			status = EXCLUDED.status,
			failure_kind = EXCLUDED.failure_kind,
			failure_message = EXCLUDED.failure_message,
			grand_total = EXCLUDED.grand_total,
			max_marks = EXCLUDED.max_marks,
			percentage = EXCLUDED.percentage,
			grade = EXCLUDED.grade,
			result = EXCLUDED.result,
			payload = EXCLUDED.payload,
			retry_wait_ms = EXCLUDED.retry_wait_ms,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at
	`

	_, err := r.db.ExecContext(ctx, query,
		record.ID,
		record.BatchID,
		record.JobID,
		record.SourceDocument,
		record.Status,
		record.FailureKind,
		record.FailureMessage,
		record.GrandTotal,
		record.MaxMarks,
		record.Percentage,
		record.Grade,
		record.Result,
		record.Payload,
		record.RetryWaitMs,
		record.CreatedAt,
		record.StartedAt,
		record.CompletedAt,
	)

	return err
}

func (r *resultRepository) GetByJob(ctx context.Context, batchID string, jobID int) (*models.ResultRecord, error) {
	query := `
		SELECT
			id, batch_id, job_id, source_document, status,
			failure_kind, failure_message, grand_total, max_marks,
			percentage, grade, result, payload, retry_wait_ms,
			created_at, started_at, completed_at
		FROM evaluation_results
		WHERE batch_id = $1 AND job_id = $2
	`

	record := &models.ResultRecord{}
	var failureKind, failureMessage sql.NullString

	err := r.db.QueryRowContext(ctx, query, batchID, jobID).Scan(
		&record.ID,
		&record.BatchID,
		&record.JobID,
		&record.SourceDocument,
		&record.Status,
		&failureKind,
		&failureMessage,
		&record.GrandTotal,
		&record.MaxMarks,
		&record.Percentage,
		&record.Grade,
		&record.Result,
		&record.Payload,
		&record.RetryWaitMs,
		&record.CreatedAt,
		&record.StartedAt,
		&record.CompletedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if failureKind.Valid {
		record.FailureKind = &failureKind.String
	}
	if failureMessage.Valid {
		record.FailureMessage = &failureMessage.String
	}

	return record, nil
}

func (r *resultRepository) ListByBatch(ctx context.Context, batchID string) ([]models.ResultRecord, error) {
	query := `
		SELECT
			id, batch_id, job_id, source_document, status,
			failure_kind, failure_message, grand_total, max_marks,
			percentage, grade, result, payload, retry_wait_ms,
			created_at, started_at, completed_at
		FROM evaluation_results
		WHERE batch_id = $1
		ORDER BY job_id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanResultRecords(rows)
}

func (r *resultRepository) ListRecent(ctx context.Context, limit int) ([]models.ResultRecord, error) {
	query := `
		SELECT
			id, batch_id, job_id, source_document, status,
			failure_kind, failure_message, grand_total, max_marks,
			percentage, grade, result, payload, retry_wait_ms,
			created_at, started_at, completed_at
		FROM evaluation_results
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanResultRecords(rows)
}

func (r *resultRepository) DeleteByBatch(ctx context.Context, batchID string) error {
	query := `DELETE FROM evaluation_results WHERE batch_id = $1`
	_, err := r.db.ExecContext(ctx, query, batchID)
	return err
}

func scanResultRecords(rows *sql.Rows) ([]models.ResultRecord, error) {
	var records []models.ResultRecord

	for rows.Next() {
		record := models.ResultRecord{}
		var failureKind, failureMessage sql.NullString

		err := rows.Scan(
			&record.ID,
			&record.BatchID,
			&record.JobID,
			&record.SourceDocument,
			&record.Status,
			&failureKind,
			&failureMessage,
			&record.GrandTotal,
			&record.MaxMarks,
			&record.Percentage,
			&record.Grade,
			&record.Result,
			&record.Payload,
			&record.RetryWaitMs,
			&record.CreatedAt,
			&record.StartedAt,
			&record.CompletedAt,
		)
		if err != nil {
			return nil, err
		}

		if failureKind.Valid {
			record.FailureKind = &failureKind.String
		}
		if failureMessage.Valid {
			record.FailureMessage = &failureMessage.String
		}

		records = append(records, record)
	}

	return records, rows.Err()
}
