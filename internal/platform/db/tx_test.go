package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

func TestErrorClassification(t *testing.T) {
	unique := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})
	require.True(t, IsUniqueViolation(unique))
	require.False(t, IsConcurrencyConflict(unique))

	require.True(t, IsConcurrencyConflict(&pgconn.PgError{Code: "40001"}))
	require.True(t, IsConcurrencyConflict(&pgconn.PgError{Code: "40P01"}))
	require.False(t, IsUniqueViolation(errors.New("boom")))
	require.False(t, IsConcurrencyConflict(nil))
}

type failingBeginner struct{}

func (failingBeginner) BeginTx(context.Context, pgx.TxOptions) (pgx.Tx, error) {
	return nil, errors.New("connection refused")
}

func TestWithTxBeginFailure(t *testing.T) {
	called := false
	err := WithTx(context.Background(), failingBeginner{}, func(pgx.Tx) error {
		called = true
		return nil
	})
	require.ErrorContains(t, err, "begin tx")
	require.False(t, called)
}

func TestApplyOptions(t *testing.T) {
	cfg, err := pgxpool.ParseConfig("postgres://u:p@localhost:5432/db")
	require.NoError(t, err)
	applyOptions(cfg, PoolOptions{MaxConns: 12, ApplicationName: "worker"})
	require.Equal(t, int32(12), cfg.MaxConns)
	require.Equal(t, "worker", cfg.ConnConfig.RuntimeParams["application_name"])
}
