package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tallybooks/tallybooks/internal/accounting"
	platformdb "github.com/tallybooks/tallybooks/internal/platform/db"
)

// Repository persists chart of accounts rows.
type Repository interface {
	List(ctx context.Context, companyID int64, filter ListFilter) ([]accounting.Account, error)
	Get(ctx context.Context, companyID, id int64) (accounting.Account, error)
	Insert(ctx context.Context, in CreateInput) (accounting.Account, error)
	SetActive(ctx context.Context, companyID, id int64, active bool) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the pgx-backed repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const accountColumns = `id, company_id, code, name, account_type, subtype, parent_id, is_active,
opening_balance, opening_balance_date, created_at, updated_at`

func scanAccount(row pgx.Row) (accounting.Account, error) {
	var a accounting.Account
	err := row.Scan(&a.ID, &a.CompanyID, &a.Code, &a.Name, &a.Type, &a.Subtype, &a.ParentID, &a.IsActive,
		&a.OpeningBalance, &a.OpeningBalanceDate, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (r *repository) List(ctx context.Context, companyID int64, filter ListFilter) ([]accounting.Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+`
FROM accounts
WHERE company_id=$1 AND ($2 OR is_active) AND ($3 = '' OR account_type = $3)
ORDER BY code`, companyID, filter.IncludeInactive, string(filter.Type))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []accounting.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *repository) Get(ctx context.Context, companyID, id int64) (accounting.Account, error) {
	a, err := scanAccount(r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE company_id=$1 AND id=$2`, companyID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return accounting.Account{}, accounting.ErrAccountNotFound
	}
	return a, err
}

func (r *repository) Insert(ctx context.Context, in CreateInput) (accounting.Account, error) {
	a, err := scanAccount(r.db.QueryRow(ctx, `INSERT INTO accounts (company_id, code, name, account_type, subtype, parent_id,
opening_balance, opening_balance_date)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
RETURNING `+accountColumns, in.CompanyID, in.Code, in.Name, string(in.Type), string(in.Subtype), in.ParentID,
		in.OpeningBalance, in.OpeningBalanceDate))
	if err != nil {
		if platformdb.IsUniqueViolation(err) {
			return accounting.Account{}, fmt.Errorf("%w: %s", ErrDuplicateCode, in.Code)
		}
		return accounting.Account{}, err
	}
	return a, nil
}

func (r *repository) SetActive(ctx context.Context, companyID, id int64, active bool) error {
	tag, err := r.db.Exec(ctx, `UPDATE accounts SET is_active=$3, updated_at=NOW() WHERE company_id=$1 AND id=$2`, companyID, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return accounting.ErrAccountNotFound
	}
	return nil
}
