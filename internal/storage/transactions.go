package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"reportbatch/internal/core"
)

// Transaction statuses.
const (
	StatusApproved = "APPROVED"
	StatusCanceled = "CANCELED"
)

// Transaction is a card transaction as recorded by the transaction domain.
// A cancellation carries the merchant id of the transaction it cancels in
// OriginalMerchantID.
type Transaction struct {
	ID                 int64
	UserID             int64
	CategoryID         int64
	Amount             int64
	Status             string
	MerchantID         string
	OriginalMerchantID string
	TransactionAt      time.Time
}

// ListUserIDs returns every known user id in ascending order.
func (r *Repository) ListUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM users ORDER BY id`)
	if err != nil {
		return nil, classify(fmt.Errorf("list user ids: %w", err))
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, classify(fmt.Errorf("scan user id: %w", err))
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("iterate user ids: %w", err))
	}
	return ids, nil
}

func (r *Repository) CreateUser(ctx context.Context, name string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `INSERT INTO users (name) VALUES (?)`, name)
	if err != nil {
		return 0, classify(fmt.Errorf("create user %q: %w", name, err))
	}
	return res.LastInsertId()
}

func (r *Repository) CreateCategory(ctx context.Context, code, displayName string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO categories (code, display_name) VALUES (?, ?)`, code, displayName)
	if err != nil {
		return 0, classify(fmt.Errorf("create category %q: %w", code, err))
	}
	return res.LastInsertId()
}

func (r *Repository) CreateTransaction(ctx context.Context, t Transaction) (int64, error) {
	var original sql.NullString
	if t.OriginalMerchantID != "" {
		original = sql.NullString{String: t.OriginalMerchantID, Valid: true}
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions
			(user_id, category_id, amount, status, merchant_id, original_merchant_id, transaction_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.UserID, t.CategoryID, t.Amount, t.Status, t.MerchantID, original, formatTime(t.TransactionAt))
	if err != nil {
		return 0, classify(fmt.Errorf("create transaction %q: %w", t.MerchantID, err))
	}
	return res.LastInsertId()
}

func (r *Repository) monthTagExpr() string {
	if r.dialect == DialectMySQL {
		return "DATE_FORMAT(t.transaction_at, '%Y-%m')"
	}
	return "substr(t.transaction_at, 1, 7)"
}

// CategorySums returns the user's net spend per category display name and
// month within [start, end]. Net spend is approved amounts minus
// cancellations that reference an original transaction; only positive
// totals are returned, ordered by month then category.
func (r *Repository) CategorySums(ctx context.Context, userID int64, start, end time.Time) ([]core.CategoryAggregate, error) {
	query := fmt.Sprintf(`
		SELECT c.display_name,
		       %s AS month_tag,
		       SUM(CASE WHEN t.status = 'APPROVED' THEN t.amount ELSE 0 END)
		     - SUM(CASE WHEN t.status = 'CANCELED' AND t.original_merchant_id IS NOT NULL THEN t.amount ELSE 0 END) AS net_amount
		FROM transactions t
		JOIN categories c ON c.id = t.category_id
		WHERE t.user_id = ?
		  AND t.transaction_at BETWEEN ? AND ?
		GROUP BY c.display_name, month_tag
		HAVING net_amount > 0
		ORDER BY month_tag, c.display_name`, r.monthTagExpr())

	rows, err := r.db.QueryContext(ctx, query, userID, formatTime(start), formatTime(end))
	if err != nil {
		return nil, classify(fmt.Errorf("category sums for user %d: %w", userID, err))
	}
	defer rows.Close()

	var out []core.CategoryAggregate
	for rows.Next() {
		var (
			agg core.CategoryAggregate
			net decimal.Decimal
		)
		if err := rows.Scan(&agg.CategoryName, &agg.Month, &net); err != nil {
			return nil, classify(fmt.Errorf("scan category sum for user %d: %w", userID, err))
		}
		agg.TotalAmount = net
		out = append(out, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("iterate category sums for user %d: %w", userID, err))
	}
	return out, nil
}
