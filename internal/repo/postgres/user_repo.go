package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already registered")
)

type UserRecord struct {
	ID                    int64
	Email                 string
	PasswordHash          string
	FirstName             string
	LastName              string
	Role                  string
	BillingCustomerID     *string
	BillingSubscriptionID *string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

const userColumns = `
id, email, password_hash, first_name, last_name, role,
billing_customer_id, billing_subscription_id, created_at, updated_at`

func (r *UserRepo) Create(ctx context.Context, email, passwordHash, firstName, lastName string) (UserRecord, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || passwordHash == "" {
		return UserRecord{}, fmt.Errorf("invalid user create payload")
	}
	if r.pool == nil {
		return UserRecord{}, fmt.Errorf("postgres pool is nil")
	}

	var rec UserRecord
	err := r.pool.QueryRow(ctx, `
INSERT INTO users (email, password_hash, first_name, last_name, role, created_at, updated_at)
VALUES ($1, $2, $3, $4, 'user', NOW(), NOW())
RETURNING`+userColumns, email, passwordHash, firstName, lastName).Scan(
		&rec.ID, &rec.Email, &rec.PasswordHash, &rec.FirstName, &rec.LastName, &rec.Role,
		&rec.BillingCustomerID, &rec.BillingSubscriptionID, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return UserRecord{}, ErrEmailTaken
		}
		return UserRecord{}, fmt.Errorf("create user: %w", err)
	}

	return rec, nil
}

func (r *UserRepo) FindByID(ctx context.Context, userID int64) (UserRecord, error) {
	if userID <= 0 {
		return UserRecord{}, fmt.Errorf("invalid user id")
	}
	return r.findOne(ctx, `WHERE id = $1`, userID)
}

func (r *UserRepo) FindByEmail(ctx context.Context, email string) (UserRecord, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return UserRecord{}, fmt.Errorf("email is required")
	}
	return r.findOne(ctx, `WHERE email = $1`, email)
}

// FindByBillingCustomerID is the only user lookup webhook handling may
// use: there is no session on a billing event, the customer reference
// in the payload is the sole subject identifier.
func (r *UserRepo) FindByBillingCustomerID(ctx context.Context, customerID string) (UserRecord, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return UserRecord{}, fmt.Errorf("billing customer id is required")
	}
	return r.findOne(ctx, `WHERE billing_customer_id = $1`, customerID)
}

func (r *UserRepo) findOne(ctx context.Context, where string, arg any) (UserRecord, error) {
	if r.pool == nil {
		return UserRecord{}, fmt.Errorf("postgres pool is nil")
	}

	var rec UserRecord
	err := r.pool.QueryRow(ctx, `SELECT`+userColumns+` FROM users `+where+` LIMIT 1`, arg).Scan(
		&rec.ID, &rec.Email, &rec.PasswordHash, &rec.FirstName, &rec.LastName, &rec.Role,
		&rec.BillingCustomerID, &rec.BillingSubscriptionID, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UserRecord{}, ErrUserNotFound
		}
		return UserRecord{}, fmt.Errorf("find user: %w", err)
	}

	return rec, nil
}

func (r *UserRepo) SetBillingCustomerID(ctx context.Context, userID int64, customerID string) error {
	customerID = strings.TrimSpace(customerID)
	if userID <= 0 || customerID == "" {
		return fmt.Errorf("invalid billing customer payload")
	}
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	tag, err := r.pool.Exec(ctx, `
UPDATE users
SET billing_customer_id = $2, updated_at = NOW()
WHERE id = $1
`, userID, customerID)
	if err != nil {
		return fmt.Errorf("set billing customer id: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	return nil
}

func (r *UserRepo) SetSubscriptionRef(ctx context.Context, userID int64, subscriptionID string) error {
	subscriptionID = strings.TrimSpace(subscriptionID)
	if userID <= 0 || subscriptionID == "" {
		return fmt.Errorf("invalid subscription ref payload")
	}
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	tag, err := r.pool.Exec(ctx, `
UPDATE users
SET billing_subscription_id = $2, updated_at = NOW()
WHERE id = $1
`, userID, subscriptionID)
	if err != nil {
		return fmt.Errorf("set subscription ref: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	return nil
}

func (r *UserRepo) ClearSubscriptionRef(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return fmt.Errorf("invalid user id")
	}
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	if _, err := r.pool.Exec(ctx, `
UPDATE users
SET billing_subscription_id = NULL, updated_at = NOW()
WHERE id = $1
`, userID); err != nil {
		return fmt.Errorf("clear subscription ref: %w", err)
	}

	return nil
}
