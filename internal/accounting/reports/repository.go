package reports

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tallybooks/tallybooks/internal/accounting"
)

// Repository reads the ledger for report aggregation.
type Repository interface {
	ActiveAccounts(ctx context.Context, companyID int64) ([]accounting.Account, error)
	SumEntries(ctx context.Context, companyID int64, window Window) (map[int64]Sums, error)
	OpenDocuments(ctx context.Context, companyID int64, kind AgingKind, asOf time.Time) ([]OpenDocument, error)
	Counterparties(ctx context.Context, companyID int64, kind AgingKind) ([]Counterparty, error)
	Companies(ctx context.Context) ([]int64, error)
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the pgx-backed report repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

func (r *pgRepository) ActiveAccounts(ctx context.Context, companyID int64) ([]accounting.Account, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, company_id, code, name, account_type, subtype, parent_id, is_active,
opening_balance, opening_balance_date, created_at, updated_at
FROM accounts WHERE company_id=$1 AND is_active ORDER BY code`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []accounting.Account
	for rows.Next() {
		var a accounting.Account
		if err := rows.Scan(&a.ID, &a.CompanyID, &a.Code, &a.Name, &a.Type, &a.Subtype, &a.ParentID, &a.IsActive,
			&a.OpeningBalance, &a.OpeningBalanceDate, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// SumEntries totals posted journal entries per account. Dates filter on the
// owning transaction's date; voided transactions stay posted so their
// reversal entries cancel the originals.
func (r *pgRepository) SumEntries(ctx context.Context, companyID int64, window Window) (map[int64]Sums, error) {
	rows, err := r.pool.Query(ctx, `SELECT je.account_id, COALESCE(SUM(je.debit_amount),0), COALESCE(SUM(je.credit_amount),0)
FROM journal_entries je
JOIN transactions t ON t.id = je.transaction_id AND t.company_id = je.company_id
WHERE je.company_id=$1 AND t.is_posted
  AND ($2::date IS NULL OR t.transaction_date >= $2::date)
  AND t.transaction_date <= $3::date
GROUP BY je.account_id`, companyID, window.From, window.To)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	sums := make(map[int64]Sums)
	for rows.Next() {
		var id int64
		var s Sums
		if err := rows.Scan(&id, &s.Debit, &s.Credit); err != nil {
			return nil, err
		}
		sums[id] = s
	}
	return sums, rows.Err()
}

// OpenDocuments lists unpaid posted invoices (receivable) or bills (payable) dated on
// or before asOf.
func (r *pgRepository) OpenDocuments(ctx context.Context, companyID int64, kind AgingKind, asOf time.Time) ([]OpenDocument, error) {
	rows, err := r.pool.Query(ctx, openDocumentsQuery(kind), companyID, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var docs []OpenDocument
	for rows.Next() {
		var d OpenDocument
		if err := rows.Scan(&d.TransactionID, &d.Number, &d.EntityID, &d.EntityName, &d.Date, &d.DueDate, &d.BalanceDue); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// openDocumentsQuery selects posted, unvoided documents with a balance due,
// matching what the receivable and payable accounts carry.
func openDocumentsQuery(kind AgingKind) string {
	query := `SELECT t.id, t.number, c.id, c.name, t.transaction_date, t.due_date, t.balance_due
FROM transactions t JOIN customers c ON c.id = t.customer_id AND c.company_id = t.company_id
WHERE t.company_id=$1 AND t.transaction_type='INVOICE'`
	if kind == AgingPayable {
		query = `SELECT t.id, t.number, v.id, v.name, t.transaction_date, t.due_date, t.balance_due
FROM transactions t JOIN vendors v ON v.id = t.vendor_id AND v.company_id = t.company_id
WHERE t.company_id=$1 AND t.transaction_type='BILL'`
	}
	return query + `
  AND t.is_posted AND NOT t.is_void
  AND t.status NOT IN ('PAID','VOIDED','CANCELLED')
  AND t.balance_due > 0 AND t.transaction_date <= $2::date
ORDER BY t.due_date NULLS FIRST, t.id`
}

func (r *pgRepository) Counterparties(ctx context.Context, companyID int64, kind AgingKind) ([]Counterparty, error) {
	table := "customers"
	if kind == AgingPayable {
		table = "vendors"
	}
	rows, err := r.pool.Query(ctx, `SELECT id, name FROM `+table+` WHERE company_id=$1 AND is_active ORDER BY name`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var parties []Counterparty
	for rows.Next() {
		var p Counterparty
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			return nil, err
		}
		parties = append(parties, p)
	}
	return parties, rows.Err()
}

func (r *pgRepository) Companies(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM companies ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
