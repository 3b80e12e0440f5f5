package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"reportbatch/internal/core"
)

// InsertReports stores all reports in one transaction. Any failure rolls
// back the whole batch; a report that already exists for its user and month
// fails with ErrDuplicate.
func (r *Repository) InsertReports(ctx context.Context, reports []core.Report) error {
	if len(reports) == 0 {
		return nil
	}
	now := formatTime(r.clock.Now())
	return r.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO reports (user_id, report_month, report_message, notification_message, created_at)
			VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return classify(fmt.Errorf("prepare report insert: %w", err))
		}
		defer stmt.Close()

		for _, rep := range reports {
			if _, err := stmt.ExecContext(ctx,
				rep.UserID, formatDate(rep.ReportMonth), rep.ReportMessage, rep.NotificationMessage, now); err != nil {
				return classify(fmt.Errorf("insert report for user %d month %s: %w",
					rep.UserID, rep.ReportMonth.Format(core.MonthLayout), err))
			}
		}
		return nil
	})
}

const reportColumns = `id, user_id, report_month, report_message, notification_message, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (core.Report, error) {
	var (
		rep              core.Report
		month, createdAt any
	)
	if err := row.Scan(&rep.ID, &rep.UserID, &month, &rep.ReportMessage, &rep.NotificationMessage, &createdAt); err != nil {
		return core.Report{}, err
	}
	var err error
	if rep.ReportMonth, err = scanTime(month); err != nil {
		return core.Report{}, err
	}
	if rep.CreatedAt, err = scanTime(createdAt); err != nil {
		return core.Report{}, err
	}
	return rep, nil
}

// GetReport returns the report of userID for the month containing month.
func (r *Repository) GetReport(ctx context.Context, userID int64, month time.Time) (core.Report, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE user_id = ? AND report_month = ?`,
		userID, formatDate(core.FirstOfMonth(month)))
	rep, err := scanReport(row)
	if err != nil {
		return core.Report{}, classify(fmt.Errorf("get report for user %d: %w", userID, err))
	}
	return rep, nil
}

// ListReportsByUser returns a user's reports, newest month first.
func (r *Repository) ListReportsByUser(ctx context.Context, userID int64) ([]core.Report, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE user_id = ? ORDER BY report_month DESC`, userID)
	if err != nil {
		return nil, classify(fmt.Errorf("list reports for user %d: %w", userID, err))
	}
	defer rows.Close()

	var out []core.Report
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, classify(fmt.Errorf("scan report for user %d: %w", userID, err))
		}
		out = append(out, rep)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("iterate reports for user %d: %w", userID, err))
	}
	return out, nil
}

func (r *Repository) CountReports(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reports`).Scan(&n); err != nil {
		return 0, classify(fmt.Errorf("count reports: %w", err))
	}
	return n, nil
}
