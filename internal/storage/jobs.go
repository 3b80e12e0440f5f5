package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"reportbatch/internal/batch"
)

// CreateJobExecution implements batch.JobRepository.
func (r *Repository) CreateJobExecution(ctx context.Context, exec *batch.JobExecution) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		var status string
		err := tx.QueryRowContext(ctx, r.admissionQuery(),
			exec.JobName, exec.JobKey, string(batch.StatusRunning), string(batch.StatusCompleted)).Scan(&status)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return classify(fmt.Errorf("check job executions of %s: %w", exec.JobName, err))
		case status == string(batch.StatusRunning):
			return fmt.Errorf("%s [%s]: %w", exec.JobName, exec.JobKey, batch.ErrJobRunning)
		default:
			return fmt.Errorf("%s [%s]: %w", exec.JobName, exec.JobKey, batch.ErrJobAlreadyComplete)
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO job_executions (job_name, job_key, trace_id, status, exit_message, started_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			exec.JobName, exec.JobKey, exec.TraceID, string(exec.Status), exec.ExitMessage, formatTime(exec.StartedAt))
		if err != nil {
			return classify(fmt.Errorf("insert job execution of %s: %w", exec.JobName, err))
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("job execution id: %w", err)
		}
		exec.ID = id
		return nil
	})
}

// admissionQuery finds a running or completed execution of a job key. On
// MySQL it locks the matching index range, so a concurrent launch of the
// same key waits for this transaction or fails with a deadlock.
// SQLite serializes writers on its own.
func (r *Repository) admissionQuery() string {
	query := `
			SELECT status FROM job_executions
			WHERE job_name = ? AND job_key = ? AND status IN (?, ?)
			ORDER BY id DESC LIMIT 1`
	if r.dialect == DialectMySQL {
		query += " FOR UPDATE"
	}
	return query
}

// UpdateJobExecution implements batch.JobRepository.
func (r *Repository) UpdateJobExecution(ctx context.Context, exec *batch.JobExecution) error {
	var finished sql.NullString
	if !exec.FinishedAt.IsZero() {
		finished = sql.NullString{String: formatTime(exec.FinishedAt), Valid: true}
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE job_executions
		SET status = ?, exit_message = ?, read_count = ?, write_count = ?, skip_count = ?, finished_at = ?
		WHERE id = ?`,
		string(exec.Status), exec.ExitMessage, exec.ReadCount(), exec.WriteCount(), exec.SkipCount(), finished, exec.ID)
	if err != nil {
		return classify(fmt.Errorf("update job execution %d: %w", exec.ID, err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("job execution %d: %w", exec.ID, ErrNotFound)
	}
	return nil
}

// AbandonRunningExecutions fails executions left RUNNING by a process that
// exited mid-run, so that their keys can be launched again.
func (r *Repository) AbandonRunningExecutions(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE job_executions
		SET status = ?, exit_message = ?, finished_at = ?
		WHERE status = ?`,
		string(batch.StatusFailed), "abandoned", formatTime(r.clock.Now()), string(batch.StatusRunning))
	if err != nil {
		return 0, classify(fmt.Errorf("abandon running job executions: %w", err))
	}
	return res.RowsAffected()
}

// JobExecutionRecord is a stored job execution with its aggregate counts.
type JobExecutionRecord struct {
	ID          int64
	JobName     string
	JobKey      string
	TraceID     string
	Status      batch.Status
	ExitMessage string
	ReadCount   int
	WriteCount  int
	SkipCount   int
	StartedAt   time.Time
	FinishedAt  time.Time
}

// ListJobExecutions returns the executions of jobName, newest first.
func (r *Repository) ListJobExecutions(ctx context.Context, jobName string) ([]JobExecutionRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, job_name, job_key, trace_id, status, exit_message,
		       read_count, write_count, skip_count, started_at, finished_at
		FROM job_executions
		WHERE job_name = ?
		ORDER BY id DESC`, jobName)
	if err != nil {
		return nil, classify(fmt.Errorf("list job executions of %s: %w", jobName, err))
	}
	defer rows.Close()

	var out []JobExecutionRecord
	for rows.Next() {
		var (
			rec               JobExecutionRecord
			status            string
			started, finished any
		)
		if err := rows.Scan(&rec.ID, &rec.JobName, &rec.JobKey, &rec.TraceID, &status, &rec.ExitMessage,
			&rec.ReadCount, &rec.WriteCount, &rec.SkipCount, &started, &finished); err != nil {
			return nil, classify(fmt.Errorf("scan job execution: %w", err))
		}
		rec.Status = batch.Status(status)
		if rec.StartedAt, err = scanTime(started); err != nil {
			return nil, err
		}
		if rec.FinishedAt, err = scanTime(finished); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("iterate job executions: %w", err))
	}
	return out, nil
}
