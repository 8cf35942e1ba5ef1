package mappings

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tallybooks/tallybooks/internal/accounting"
	"github.com/tallybooks/tallybooks/internal/platform/db"
)

// Repository persists role assignments.
type Repository interface {
	Get(ctx context.Context, companyID int64, role Role) (AccountRole, error)
	List(ctx context.Context, companyID int64) ([]AccountRole, error)
	GetAccount(ctx context.Context, companyID, accountID int64) (accounting.Account, error)
	Upsert(ctx context.Context, roles []AccountRole) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the pgx-backed repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

// Get resolves the account assigned to the role.
func (r *repository) Get(ctx context.Context, companyID int64, role Role) (AccountRole, error) {
	var mapping AccountRole
	err := r.db.QueryRow(ctx, `SELECT company_id, role, account_id, created_at, updated_at
FROM account_roles WHERE company_id=$1 AND role=$2`, companyID, string(role)).
		Scan(&mapping.CompanyID, &mapping.Role, &mapping.AccountID, &mapping.CreatedAt, &mapping.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AccountRole{}, accounting.ErrMappingNotFound
		}
		return AccountRole{}, err
	}
	return mapping, nil
}

func (r *repository) List(ctx context.Context, companyID int64) ([]AccountRole, error) {
	rows, err := r.db.Query(ctx, `SELECT company_id, role, account_id, created_at, updated_at
FROM account_roles WHERE company_id=$1 ORDER BY role`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountRole
	for rows.Next() {
		var m AccountRole
		if err := rows.Scan(&m.CompanyID, &m.Role, &m.AccountID, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *repository) GetAccount(ctx context.Context, companyID, accountID int64) (accounting.Account, error) {
	var a accounting.Account
	err := r.db.QueryRow(ctx, `SELECT id, company_id, code, name, account_type, subtype, parent_id, is_active
FROM accounts WHERE company_id=$1 AND id=$2`, companyID, accountID).
		Scan(&a.ID, &a.CompanyID, &a.Code, &a.Name, &a.Type, &a.Subtype, &a.ParentID, &a.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return accounting.Account{}, accounting.ErrAccountNotFound
		}
		return accounting.Account{}, err
	}
	return a, nil
}

// Upsert writes all assignments in one transaction.
func (r *repository) Upsert(ctx context.Context, roles []AccountRole) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		for _, m := range roles {
			if _, err := tx.Exec(ctx, `INSERT INTO account_roles (company_id, role, account_id)
VALUES ($1,$2,$3)
ON CONFLICT (company_id, role) DO UPDATE SET account_id=EXCLUDED.account_id, updated_at=NOW()`,
				m.CompanyID, string(m.Role), m.AccountID); err != nil {
				return err
			}
		}
		return nil
	})
}
