package accounting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tallybooks/tallybooks/internal/platform/db"
)

// Repository persists ledger documents and entries.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the operations the posting engine runs inside one
// database transaction.
type TxRepository interface {
	GetTransaction(ctx context.Context, companyID, id int64) (Transaction, error)
	GetTransactionForUpdate(ctx context.Context, companyID, id int64) (Transaction, error)
	GetAccounts(ctx context.Context, companyID int64, ids []int64) (map[int64]Account, error)
	ClaimForPosting(ctx context.Context, companyID, id int64, at time.Time) error
	ClaimForVoid(ctx context.Context, companyID, id int64, in VoidClaim) (Transaction, error)
	DeleteUnposted(ctx context.Context, companyID, id int64) error
	InsertJournalEntries(ctx context.Context, entries []JournalEntry) ([]JournalEntry, error)
	ListJournalEntries(ctx context.Context, companyID, transactionID int64) ([]JournalEntry, error)
	GetPaymentForUpdate(ctx context.Context, companyID, id int64) (Payment, error)
	InsertPaymentApplication(ctx context.Context, app PaymentApplication) (PaymentApplication, error)
	UpdateBalanceDue(ctx context.Context, companyID, id int64, applied decimal.Decimal) (Transaction, error)
}

// VoidClaim carries the values stamped onto a transaction when it is voided.
type VoidClaim struct {
	Reason string
	Actor  int64
	At     time.Time
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes fn within repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("accounting repository not initialised")
	}
	return translate(db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	}))
}

// translate maps serialization failures onto ErrConcurrentUpdate.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if db.IsConcurrencyConflict(err) {
		return fmt.Errorf("%w: %v", ErrConcurrentUpdate, err)
	}
	return err
}

const transactionColumns = `id, company_id, number, transaction_type, transaction_date, due_date,
customer_id, vendor_id, employee_id, account_id, subtotal, tax_amount, total_amount, balance_due,
status, memo, is_posted, posted_at, is_void, voided_at, voided_by, void_reason, created_at, updated_at`

func scanTransaction(row pgx.Row) (Transaction, error) {
	var t Transaction
	err := row.Scan(&t.ID, &t.CompanyID, &t.Number, &t.Type, &t.Date, &t.DueDate,
		&t.CustomerID, &t.VendorID, &t.EmployeeID, &t.AccountID, &t.Subtotal, &t.TaxAmount, &t.TotalAmount, &t.BalanceDue,
		&t.Status, &t.Memo, &t.IsPosted, &t.PostedAt, &t.IsVoid, &t.VoidedAt, &t.VoidedBy, &t.VoidReason, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrTransactionNotFound
		}
		return Transaction{}, err
	}
	return t, nil
}

func (r *txRepository) GetTransaction(ctx context.Context, companyID, id int64) (Transaction, error) {
	t, err := scanTransaction(r.tx.QueryRow(ctx, `SELECT `+transactionColumns+`
FROM transactions WHERE company_id=$1 AND id=$2`, companyID, id))
	if err != nil {
		return Transaction{}, err
	}
	rows, err := r.tx.Query(ctx, `SELECT id, transaction_id, line_number, line_type, item_id, account_id, description,
quantity, unit_price, discount_amount, tax_amount, line_total
FROM transaction_lines WHERE transaction_id=$1 ORDER BY line_number, id`, id)
	if err != nil {
		return Transaction{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l TransactionLine
		if err := rows.Scan(&l.ID, &l.TransactionID, &l.LineNumber, &l.Type, &l.ItemID, &l.AccountID, &l.Description,
			&l.Quantity, &l.UnitPrice, &l.DiscountAmount, &l.TaxAmount, &l.LineTotal); err != nil {
			return Transaction{}, err
		}
		t.Lines = append(t.Lines, l)
	}
	return t, rows.Err()
}

func (r *txRepository) GetTransactionForUpdate(ctx context.Context, companyID, id int64) (Transaction, error) {
	return scanTransaction(r.tx.QueryRow(ctx, `SELECT `+transactionColumns+`
FROM transactions WHERE company_id=$1 AND id=$2 FOR UPDATE`, companyID, id))
}

func (r *txRepository) GetAccounts(ctx context.Context, companyID int64, ids []int64) (map[int64]Account, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, company_id, code, name, account_type, subtype, parent_id, is_active,
opening_balance, opening_balance_date, created_at, updated_at
FROM accounts WHERE company_id=$1 AND id = ANY($2)`, companyID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	accounts := make(map[int64]Account, len(ids))
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.CompanyID, &a.Code, &a.Name, &a.Type, &a.Subtype, &a.ParentID, &a.IsActive,
			&a.OpeningBalance, &a.OpeningBalanceDate, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		accounts[a.ID] = a
	}
	return accounts, rows.Err()
}

func (r *txRepository) ClaimForPosting(ctx context.Context, companyID, id int64, at time.Time) error {
	tag, err := r.tx.Exec(ctx, `UPDATE transactions
SET is_posted=TRUE, posted_at=$3, status='POSTED', updated_at=NOW()
WHERE company_id=$1 AND id=$2 AND NOT is_posted AND NOT is_void`, companyID, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var posted, void bool
	err = r.tx.QueryRow(ctx, `SELECT is_posted, is_void FROM transactions WHERE company_id=$1 AND id=$2`, companyID, id).Scan(&posted, &void)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return ErrTransactionNotFound
	case err != nil:
		return err
	case void:
		return ErrCannotPostVoided
	default:
		return ErrAlreadyPosted
	}
}

func (r *txRepository) ClaimForVoid(ctx context.Context, companyID, id int64, in VoidClaim) (Transaction, error) {
	t, err := scanTransaction(r.tx.QueryRow(ctx, `UPDATE transactions
SET is_void=TRUE, status='VOIDED', balance_due=0, voided_at=$3, voided_by=$4, void_reason=$5::text,
    memo = CASE
        WHEN $5::text = '' THEN memo
        WHEN memo = '' THEN 'VOID: ' || $5::text
        ELSE memo || E'\n' || 'VOID: ' || $5::text
    END,
    updated_at=NOW()
WHERE company_id=$1 AND id=$2 AND NOT is_void
RETURNING `+transactionColumns, companyID, id, in.At, nullActor(in.Actor), in.Reason))
	if !errors.Is(err, ErrTransactionNotFound) {
		return t, err
	}
	var exists bool
	if err := r.tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM transactions WHERE company_id=$1 AND id=$2)`, companyID, id).Scan(&exists); err != nil {
		return Transaction{}, err
	}
	if exists {
		return Transaction{}, ErrAlreadyVoided
	}
	return Transaction{}, ErrTransactionNotFound
}

func (r *txRepository) DeleteUnposted(ctx context.Context, companyID, id int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM transactions WHERE company_id=$1 AND id=$2 AND NOT is_posted`, companyID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := r.tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM transactions WHERE company_id=$1 AND id=$2)`, companyID, id).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return ErrDeletePosted
	}
	return ErrTransactionNotFound
}

func (r *txRepository) InsertJournalEntries(ctx context.Context, entries []JournalEntry) ([]JournalEntry, error) {
	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(`INSERT INTO journal_entries (company_id, transaction_id, account_id, batch_id, entry_date,
debit_amount, credit_amount, memo, reverses_entry_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id, created_at`,
			e.CompanyID, e.TransactionID, e.AccountID, e.BatchID, e.EntryDate, e.Debit, e.Credit, e.Memo, e.ReversesEntryID)
	}
	results := r.tx.SendBatch(ctx, batch)
	out := make([]JournalEntry, len(entries))
	copy(out, entries)
	for i := range out {
		if err := results.QueryRow().Scan(&out[i].ID, &out[i].CreatedAt); err != nil {
			_ = results.Close()
			return nil, err
		}
	}
	return out, results.Close()
}

func (r *txRepository) ListJournalEntries(ctx context.Context, companyID, transactionID int64) ([]JournalEntry, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, company_id, transaction_id, account_id, batch_id, entry_date,
debit_amount, credit_amount, memo, reverses_entry_id, created_at
FROM journal_entries WHERE company_id=$1 AND transaction_id=$2 AND reverses_entry_id IS NULL
ORDER BY id`, companyID, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []JournalEntry
	for rows.Next() {
		var e JournalEntry
		if err := rows.Scan(&e.ID, &e.CompanyID, &e.TransactionID, &e.AccountID, &e.BatchID, &e.EntryDate,
			&e.Debit, &e.Credit, &e.Memo, &e.ReversesEntryID, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *txRepository) GetPaymentForUpdate(ctx context.Context, companyID, id int64) (Payment, error) {
	var p Payment
	err := r.tx.QueryRow(ctx, `SELECT id, company_id, customer_id, transaction_id, payment_date, amount_received,
method, reference, created_at
FROM payments WHERE company_id=$1 AND id=$2 FOR UPDATE`, companyID, id).
		Scan(&p.ID, &p.CompanyID, &p.CustomerID, &p.TransactionID, &p.PaymentDate, &p.AmountReceived,
			&p.Method, &p.Reference, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Payment{}, ErrPaymentNotFound
		}
		return Payment{}, err
	}
	rows, err := r.tx.Query(ctx, `SELECT id, company_id, payment_id, transaction_id, amount_applied, applied_at
FROM payment_applications WHERE payment_id=$1 ORDER BY id`, id)
	if err != nil {
		return Payment{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var app PaymentApplication
		if err := rows.Scan(&app.ID, &app.CompanyID, &app.PaymentID, &app.TransactionID, &app.AmountApplied, &app.AppliedAt); err != nil {
			return Payment{}, err
		}
		p.Applications = append(p.Applications, app)
	}
	return p, rows.Err()
}

func (r *txRepository) InsertPaymentApplication(ctx context.Context, app PaymentApplication) (PaymentApplication, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO payment_applications (company_id, payment_id, transaction_id, amount_applied, applied_at)
VALUES ($1,$2,$3,$4,$5) RETURNING id`, app.CompanyID, app.PaymentID, app.TransactionID, app.AmountApplied, app.AppliedAt).Scan(&app.ID)
	return app, err
}

func (r *txRepository) UpdateBalanceDue(ctx context.Context, companyID, id int64, applied decimal.Decimal) (Transaction, error) {
	return scanTransaction(r.tx.QueryRow(ctx, `UPDATE transactions
SET balance_due = GREATEST(balance_due - $3, 0),
    status = CASE
        WHEN GREATEST(balance_due - $3, 0) = 0 THEN 'PAID'
        ELSE 'PARTIALLY_PAID'
    END,
    updated_at = NOW()
WHERE company_id=$1 AND id=$2
RETURNING `+transactionColumns, companyID, id, applied))
}

func nullActor(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}
