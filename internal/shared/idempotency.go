package shared

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tallybooks/tallybooks/internal/platform/db"
)

// Execer runs a statement without returning rows; *pgxpool.Pool satisfies it.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// ErrIdempotencyConflict indicates the key was already used for this company.
var ErrIdempotencyConflict = fmt.Errorf("idempotent request already processed: %w", ErrInvalidState)

// IdempotencyStore records client-supplied request keys so a replayed payment
// application is rejected instead of applied twice.
type IdempotencyStore struct {
	db  Execer
	now func() time.Time
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(db Execer) *IdempotencyStore {
	return &IdempotencyStore{db: db, now: time.Now}
}

// CheckAndInsert claims key for the company. A key already claimed returns
// ErrIdempotencyConflict.
func (s *IdempotencyStore) CheckAndInsert(ctx context.Context, companyID int64, key, module string) error {
	if s == nil || s.db == nil {
		return errors.New("idempotency store not initialised")
	}
	key = strings.TrimSpace(key)
	if key == "" || module == "" {
		return fmt.Errorf("%w: idempotency key and module required", ErrValidation)
	}
	_, err := s.db.Exec(ctx, `INSERT INTO idempotency_keys (company_id, key, module, created_at) VALUES ($1, $2, $3, $4)`,
		companyID, key, module, s.now())
	if db.IsUniqueViolation(err) {
		return ErrIdempotencyConflict
	}
	return err
}

// Delete releases a key after the guarded operation failed, so the client can retry.
func (s *IdempotencyStore) Delete(ctx context.Context, companyID int64, key string) error {
	if s == nil || s.db == nil {
		return nil
	}
	_, err := s.db.Exec(ctx, `DELETE FROM idempotency_keys WHERE company_id=$1 AND key=$2`, companyID, strings.TrimSpace(key))
	return err
}

// Cleanup purges keys older than the retention window.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) error {
	if s == nil || s.db == nil {
		return nil
	}
	if olderThan <= 0 {
		return fmt.Errorf("%w: retention must be positive", ErrValidation)
	}
	_, err := s.db.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, s.now().Add(-olderThan))
	return err
}
