package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/astraweb/lunaria/backend/internal/domain/enums"
)

type LedgerEntryRecord struct {
	ID          int64
	UserID      int64
	FeatureType enums.FeatureType
	Action      enums.LedgerAction
	Amount      int
	Description string
	RelatedID   *int64
	CreatedAt   time.Time
}

// LedgerRepo appends to the usage audit log. The table is write-once:
// no update or delete is exposed here and none exists elsewhere.
type LedgerRepo struct {
	pool *pgxpool.Pool
}

func NewLedgerRepo(pool *pgxpool.Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

// Append writes one audit entry inside the transaction that mutates
// the balance it documents.
func (r *LedgerRepo) Append(ctx context.Context, tx pgx.Tx, entry LedgerEntryRecord) error {
	if entry.UserID <= 0 || entry.FeatureType == "" || entry.Action == "" {
		return fmt.Errorf("invalid ledger entry payload")
	}
	if tx == nil {
		return fmt.Errorf("transaction is required")
	}

	if _, err := tx.Exec(ctx, `
INSERT INTO usage_ledger (
	user_id,
	feature_type,
	action,
	amount,
	description,
	related_id,
	created_at
) VALUES ($1, $2, $3, $4, $5, $6, NOW())
`, entry.UserID, string(entry.FeatureType), string(entry.Action), entry.Amount, entry.Description, entry.RelatedID); err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}

	return nil
}

func (r *LedgerRepo) ListRecent(ctx context.Context, userID int64, action enums.LedgerAction, limit int) ([]LedgerEntryRecord, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("invalid user id")
	}
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	rows, err := r.pool.Query(ctx, `
SELECT id, user_id, feature_type, action, amount, description, related_id, created_at
FROM usage_ledger
WHERE user_id = $1 AND ($2 = '' OR action = $2)
ORDER BY created_at DESC, id DESC
LIMIT $3
`, userID, string(action), limit)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []LedgerEntryRecord
	for rows.Next() {
		var entry LedgerEntryRecord
		if err := rows.Scan(
			&entry.ID,
			&entry.UserID,
			&entry.FeatureType,
			&entry.Action,
			&entry.Amount,
			&entry.Description,
			&entry.RelatedID,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger entries: %w", err)
	}

	return entries, nil
}
