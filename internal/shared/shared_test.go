package shared

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type execCall struct {
	sql  string
	args []any
}

type stubExec struct {
	calls []execCall
	err   error
}

func (s *stubExec) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	s.calls = append(s.calls, execCall{sql: sql, args: args})
	return pgconn.CommandTag{}, s.err
}

func TestIdempotencyConflict(t *testing.T) {
	db := &stubExec{err: &pgconn.PgError{Code: "23505"}}
	store := NewIdempotencyStore(db)

	err := store.CheckAndInsert(context.Background(), 1, "abc", "payments.apply")
	require.ErrorIs(t, err, ErrIdempotencyConflict)
	require.ErrorIs(t, err, ErrInvalidState)

	require.ErrorIs(t, store.CheckAndInsert(context.Background(), 1, "  ", "payments.apply"), ErrValidation)
	require.Len(t, db.calls, 1)
}

func TestIdempotencyCleanupCutoff(t *testing.T) {
	db := &stubExec{}
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	store := NewIdempotencyStore(db)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Cleanup(context.Background(), 48*time.Hour))
	require.Equal(t, now.Add(-48*time.Hour), db.calls[0].args[0])
	require.ErrorIs(t, store.Cleanup(context.Background(), 0), ErrValidation)

	var nilStore *IdempotencyStore
	require.NoError(t, nilStore.Delete(context.Background(), 1, "abc"))
}

func TestAuditRecord(t *testing.T) {
	db := &stubExec{}
	logger := NewAuditLogger(db)

	require.NoError(t, logger.Record(context.Background(), AuditLog{
		CompanyID: 3,
		Action:    "transaction.post",
		Entity:    "transaction",
		EntityID:  "9",
	}))
	args := db.calls[0].args
	require.Equal(t, int64(3), args[0])
	require.Nil(t, args[1], "anonymous actor stored as NULL")
	require.Equal(t, []byte(`{}`), args[5])
	require.Nil(t, args[6])

	require.ErrorIs(t, logger.Record(context.Background(), AuditLog{CompanyID: 3}), ErrValidation)

	db.err = errors.New("conn reset")
	require.Error(t, logger.Record(context.Background(), AuditLog{CompanyID: 3, Action: "a", Entity: "e", EntityID: "1"}))
}

func TestContextHelpers(t *testing.T) {
	ctx := ContextWithCompany(ContextWithUser(context.Background(), 7), 2)
	user, ok := UserFromContext(ctx)
	require.True(t, ok)
	require.Equal(t, int64(7), user)
	company, ok := CompanyFromContext(ctx)
	require.True(t, ok)
	require.Equal(t, int64(2), company)

	_, ok = UserFromContext(context.Background())
	require.False(t, ok)
}

func TestPagination(t *testing.T) {
	p := NewPagination(0, 0, 41)
	require.Equal(t, Pagination{Page: 1, PerPage: 20, Total: 41, TotalPages: 3}, p)
	require.Equal(t, 0, p.Offset())
	require.Equal(t, 40, NewPagination(3, 20, 41).Offset())
}
