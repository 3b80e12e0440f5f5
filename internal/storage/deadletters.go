package storage

import (
	"context"
	"database/sql"
	"fmt"

	"reportbatch/internal/core"
)

// InsertDeadLetter records a failed input outside of any chunk transaction.
func (r *Repository) InsertDeadLetter(ctx context.Context, item core.DeadLetterItem) (int64, error) {
	var input sql.NullString
	if item.InputData != nil {
		input = sql.NullString{String: string(item.InputData), Valid: true}
	}
	createdAt := item.CreatedAt
	if createdAt.IsZero() {
		createdAt = r.clock.Now()
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO batch_dead_letters (step_name, input_data, exception_class, exception_message, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		item.StepName, input, item.ExceptionClass, item.ExceptionMessage, formatTime(createdAt))
	if err != nil {
		return 0, classify(fmt.Errorf("insert dead letter for step %s: %w", item.StepName, err))
	}
	return res.LastInsertId()
}

// ListDeadLetters returns every dead letter, oldest first.
func (r *Repository) ListDeadLetters(ctx context.Context) ([]core.DeadLetterItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, step_name, input_data, exception_class, exception_message, created_at
		FROM batch_dead_letters
		ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, classify(fmt.Errorf("list dead letters: %w", err))
	}
	defer rows.Close()

	var out []core.DeadLetterItem
	for rows.Next() {
		var (
			item      core.DeadLetterItem
			input     sql.NullString
			createdAt any
		)
		if err := rows.Scan(&item.ID, &item.StepName, &input, &item.ExceptionClass, &item.ExceptionMessage, &createdAt); err != nil {
			return nil, classify(fmt.Errorf("scan dead letter: %w", err))
		}
		if input.Valid {
			item.InputData = []byte(input.String)
		}
		if item.CreatedAt, err = scanTime(createdAt); err != nil {
			return nil, fmt.Errorf("dead letter %d created_at: %w", item.ID, err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("iterate dead letters: %w", err))
	}
	return out, nil
}

// DeleteDeadLetters removes the given rows in one transaction.
func (r *Repository) DeleteDeadLetters(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return r.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`DELETE FROM batch_dead_letters WHERE id IN (`+placeholders(len(ids))+`)`, args...)
		if err != nil {
			return classify(fmt.Errorf("delete %d dead letters: %w", len(ids), err))
		}
		return nil
	})
}

func (r *Repository) CountDeadLetters(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM batch_dead_letters`).Scan(&n); err != nil {
		return 0, classify(fmt.Errorf("count dead letters: %w", err))
	}
	return n, nil
}
