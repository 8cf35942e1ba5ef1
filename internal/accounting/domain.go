package accounting

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tallybooks/tallybooks/internal/shared"
)

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset           AccountType = "ASSET"
	AccountTypeLiability       AccountType = "LIABILITY"
	AccountTypeEquity          AccountType = "EQUITY"
	AccountTypeRevenue         AccountType = "REVENUE"
	AccountTypeExpense         AccountType = "EXPENSE"
	AccountTypeCostOfGoodsSold AccountType = "COST_OF_GOODS_SOLD"
)

// Valid reports whether the type is part of the chart of accounts vocabulary.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity,
		AccountTypeRevenue, AccountTypeExpense, AccountTypeCostOfGoodsSold:
		return true
	}
	return false
}

// IsBalanceSheet reports whether balances of this type carry forward across periods.
func (t AccountType) IsBalanceSheet() bool {
	return t == AccountTypeAsset || t == AccountTypeLiability || t == AccountTypeEquity
}

// AccountSubtype refines an account for cash-flow classification.
type AccountSubtype string

const (
	AccountSubtypeNone              AccountSubtype = ""
	AccountSubtypeCash              AccountSubtype = "CASH"
	AccountSubtypeFixedAsset        AccountSubtype = "FIXED_ASSET"
	AccountSubtypeLongTermLiability AccountSubtype = "LONG_TERM_LIABILITY"
)

// Valid reports whether the subtype is known.
func (s AccountSubtype) Valid() bool {
	switch s {
	case AccountSubtypeNone, AccountSubtypeCash, AccountSubtypeFixedAsset, AccountSubtypeLongTermLiability:
		return true
	}
	return false
}

// Account models a chart of accounts node. Children reference their parent
// only; balances never propagate up the tree.
type Account struct {
	ID                 int64           `json:"id"`
	CompanyID          int64           `json:"company_id"`
	Code               string          `json:"code"`
	Name               string          `json:"name"`
	Type               AccountType     `json:"type"`
	Subtype            AccountSubtype  `json:"subtype,omitempty"`
	ParentID           *int64          `json:"parent_id,omitempty"`
	IsActive           bool            `json:"is_active"`
	OpeningBalance     decimal.Decimal `json:"opening_balance"`
	OpeningBalanceDate *time.Time      `json:"opening_balance_date,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// TransactionType is the closed set of business documents.
type TransactionType string

const (
	TransactionTypeInvoice      TransactionType = "INVOICE"
	TransactionTypeBill         TransactionType = "BILL"
	TransactionTypeSalesReceipt TransactionType = "SALES_RECEIPT"
	TransactionTypeCreditMemo   TransactionType = "CREDIT_MEMO"
	TransactionTypeVendorCredit TransactionType = "VENDOR_CREDIT"
	TransactionTypePayment      TransactionType = "PAYMENT"
	TransactionTypeBillPayment  TransactionType = "BILL_PAYMENT"
	TransactionTypeCheck        TransactionType = "CHECK"
	TransactionTypeExpense      TransactionType = "EXPENSE"
	TransactionTypeDeposit      TransactionType = "DEPOSIT"
	TransactionTypeJournalEntry TransactionType = "JOURNAL_ENTRY"
)

// TransactionStatus enumerates document lifecycle values.
type TransactionStatus string

const (
	TransactionStatusDraft         TransactionStatus = "DRAFT"
	TransactionStatusPending       TransactionStatus = "PENDING"
	TransactionStatusSent          TransactionStatus = "SENT"
	TransactionStatusApproved      TransactionStatus = "APPROVED"
	TransactionStatusPosted        TransactionStatus = "POSTED"
	TransactionStatusPaid          TransactionStatus = "PAID"
	TransactionStatusOverdue       TransactionStatus = "OVERDUE"
	TransactionStatusPartiallyPaid TransactionStatus = "PARTIALLY_PAID"
	TransactionStatusCancelled     TransactionStatus = "CANCELLED"
	TransactionStatusVoided        TransactionStatus = "VOIDED"
)

// IsOpen reports whether a document with this status can still carry a balance.
func (s TransactionStatus) IsOpen() bool {
	switch s {
	case TransactionStatusPaid, TransactionStatusVoided, TransactionStatusCancelled:
		return false
	}
	return true
}

// Transaction is a business document that may be posted to the ledger.
type Transaction struct {
	ID          int64             `json:"id"`
	CompanyID   int64             `json:"company_id"`
	Number      string            `json:"number"`
	Type        TransactionType   `json:"transaction_type"`
	Date        time.Time         `json:"transaction_date"`
	DueDate     *time.Time        `json:"due_date,omitempty"`
	CustomerID  *int64            `json:"customer_id,omitempty"`
	VendorID    *int64            `json:"vendor_id,omitempty"`
	EmployeeID  *int64            `json:"employee_id,omitempty"`
	AccountID   *int64            `json:"account_id,omitempty"`
	Subtotal    decimal.Decimal   `json:"subtotal"`
	TaxAmount   decimal.Decimal   `json:"tax_amount"`
	TotalAmount decimal.Decimal   `json:"total_amount"`
	BalanceDue  decimal.Decimal   `json:"balance_due"`
	Status      TransactionStatus `json:"status"`
	Memo        string            `json:"memo,omitempty"`
	IsPosted    bool              `json:"is_posted"`
	PostedAt    *time.Time        `json:"posted_at,omitempty"`
	IsVoid      bool              `json:"is_void"`
	VoidedAt    *time.Time        `json:"voided_at,omitempty"`
	VoidedBy    *int64            `json:"voided_by,omitempty"`
	VoidReason  string            `json:"void_reason,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	Lines       []TransactionLine `json:"lines,omitempty"`
}

// RecalculateTotals derives line totals, total_amount and, while unposted, balance_due.
func (t *Transaction) RecalculateTotals() {
	for i := range t.Lines {
		t.Lines[i].Recalculate()
	}
	t.TotalAmount = t.Subtotal.Add(t.TaxAmount)
	if !t.IsPosted {
		t.BalanceDue = t.TotalAmount
	}
}

// ValidateTotals checks total_amount = subtotal + tax_amount.
func (t Transaction) ValidateTotals() error {
	if !t.TotalAmount.Equal(t.Subtotal.Add(t.TaxAmount)) {
		return fmt.Errorf("%w: total %s != subtotal %s + tax %s", ErrTotalsMismatch, t.TotalAmount, t.Subtotal, t.TaxAmount)
	}
	if t.BalanceDue.IsNegative() {
		return fmt.Errorf("%w: negative balance due", ErrTotalsMismatch)
	}
	return nil
}

// LineType classifies a transaction line.
type LineType string

const (
	LineTypeItem     LineType = "ITEM"
	LineTypeAccount  LineType = "ACCOUNT"
	LineTypeDiscount LineType = "DISCOUNT"
	LineTypeTax      LineType = "TAX"
	LineTypeShipping LineType = "SHIPPING"
	LineTypeOther    LineType = "OTHER"
)

// TransactionLine is owned by exactly one Transaction.
type TransactionLine struct {
	ID             int64           `json:"id"`
	TransactionID  int64           `json:"transaction_id"`
	LineNumber     int             `json:"line_number"`
	Type           LineType        `json:"line_type"`
	ItemID         *int64          `json:"item_id,omitempty"`
	AccountID      *int64          `json:"account_id,omitempty"`
	Description    string          `json:"description,omitempty"`
	Quantity       decimal.Decimal `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	LineTotal      decimal.Decimal `json:"line_total"`
}

// ComputeTotal returns quantity*unit_price - discount + tax. Discount and tax
// are additive adjustments, never compounded.
func (l TransactionLine) ComputeTotal() decimal.Decimal {
	return l.Quantity.Mul(l.UnitPrice).Sub(l.DiscountAmount).Add(l.TaxAmount)
}

// Recalculate stores ComputeTotal into LineTotal.
func (l *TransactionLine) Recalculate() {
	l.LineTotal = l.ComputeTotal()
}

// JournalEntry is one append-only posting row against a single account.
type JournalEntry struct {
	ID              int64           `json:"id"`
	CompanyID       int64           `json:"company_id"`
	TransactionID   int64           `json:"transaction_id"`
	AccountID       int64           `json:"account_id"`
	BatchID         uuid.UUID       `json:"batch_id"`
	EntryDate       time.Time       `json:"entry_date"`
	Debit           decimal.Decimal `json:"debit_amount"`
	Credit          decimal.Decimal `json:"credit_amount"`
	Memo            string          `json:"memo,omitempty"`
	ReversesEntryID *int64          `json:"reverses_entry_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Reversal returns the mirror-image entry that cancels e.
func (e JournalEntry) Reversal(batch uuid.UUID, date time.Time, memo string) JournalEntry {
	var reverses *int64
	if e.ID != 0 {
		id := e.ID
		reverses = &id
	}
	return JournalEntry{
		CompanyID:       e.CompanyID,
		TransactionID:   e.TransactionID,
		AccountID:       e.AccountID,
		BatchID:         batch,
		EntryDate:       date,
		Debit:           e.Credit,
		Credit:          e.Debit,
		Memo:            memo,
		ReversesEntryID: reverses,
	}
}

// EntryTotals sums debit and credit sides.
func EntryTotals(entries []JournalEntry) (debit, credit decimal.Decimal) {
	debit, credit = decimal.Zero, decimal.Zero
	for _, e := range entries {
		debit = debit.Add(e.Debit)
		credit = credit.Add(e.Credit)
	}
	return debit, credit
}

// ValidateEntries rejects any batch that would leave the ledger unbalanced.
func ValidateEntries(entries []JournalEntry) error {
	if len(entries) < 2 {
		return ErrTooFewEntries
	}
	for idx, e := range entries {
		if e.AccountID == 0 {
			return fmt.Errorf("%w: entry %d missing account", shared.ErrValidation, idx)
		}
		if e.Debit.IsNegative() || e.Credit.IsNegative() {
			return fmt.Errorf("%w: entry %d negative amount", shared.ErrValidation, idx)
		}
		if e.Debit.IsPositive() && e.Credit.IsPositive() {
			return fmt.Errorf("%w: entry %d cannot be both debit and credit", shared.ErrValidation, idx)
		}
		if e.Debit.IsZero() && e.Credit.IsZero() {
			return fmt.Errorf("%w: entry %d has no amount", shared.ErrValidation, idx)
		}
	}
	debit, credit := EntryTotals(entries)
	if !debit.Equal(credit) {
		return fmt.Errorf("%w: debits %s credits %s", ErrUnbalanced, debit.StringFixed(2), credit.StringFixed(2))
	}
	return nil
}

// Payment records cash received and how it was applied to documents.
type Payment struct {
	ID             int64                `json:"id"`
	CompanyID      int64                `json:"company_id"`
	CustomerID     *int64               `json:"customer_id,omitempty"`
	TransactionID  *int64               `json:"transaction_id,omitempty"`
	PaymentDate    time.Time            `json:"payment_date"`
	AmountReceived decimal.Decimal      `json:"amount_received"`
	Method         string               `json:"method,omitempty"`
	Reference      string               `json:"reference,omitempty"`
	Applications   []PaymentApplication `json:"applications,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
}

// PaymentApplication links a payment to the document it settles.
type PaymentApplication struct {
	ID            int64           `json:"id"`
	CompanyID     int64           `json:"company_id"`
	PaymentID     int64           `json:"payment_id"`
	TransactionID int64           `json:"transaction_id"`
	AmountApplied decimal.Decimal `json:"amount_applied"`
	AppliedAt     time.Time       `json:"applied_at"`
}

// AppliedTotal sums the amounts already applied.
func (p Payment) AppliedTotal() decimal.Decimal {
	total := decimal.Zero
	for _, app := range p.Applications {
		total = total.Add(app.AmountApplied)
	}
	return total
}

// Unapplied returns the amount still available for applications.
func (p Payment) Unapplied() decimal.Decimal {
	return p.AmountReceived.Sub(p.AppliedTotal())
}

// ValidateApplications ensures the new applications are positive and, together
// with existing ones, do not exceed the amount received.
func (p Payment) ValidateApplications(apps []PaymentApplication) error {
	if len(apps) == 0 {
		return fmt.Errorf("%w: at least one application required", shared.ErrValidation)
	}
	total := p.AppliedTotal()
	for idx, app := range apps {
		if app.TransactionID == 0 {
			return fmt.Errorf("%w: application %d missing transaction", shared.ErrValidation, idx)
		}
		if !app.AmountApplied.IsPositive() {
			return fmt.Errorf("%w: application %d amount must be positive", shared.ErrValidation, idx)
		}
		total = total.Add(app.AmountApplied)
	}
	if total.GreaterThan(p.AmountReceived) {
		return fmt.Errorf("%w: applied %s exceeds received %s", ErrOverApplied, total.StringFixed(2), p.AmountReceived.StringFixed(2))
	}
	return nil
}

// ReduceBalance decrements a balance due, never below zero.
func ReduceBalance(balance, amount decimal.Decimal) decimal.Decimal {
	next := balance.Sub(amount)
	if next.IsNegative() {
		return decimal.Zero
	}
	return next
}

// StatusAfterPayment derives the document status from its remaining balance.
func StatusAfterPayment(balance, total decimal.Decimal) TransactionStatus {
	if !balance.IsPositive() {
		return TransactionStatusPaid
	}
	if balance.LessThan(total) {
		return TransactionStatusPartiallyPaid
	}
	return TransactionStatusPosted
}

// ValidateDateRange rejects ranges whose start falls after the end.
func ValidateDateRange(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return fmt.Errorf("%w: start and end dates required", ErrInvalidDateRange)
	}
	if start.After(end) {
		return fmt.Errorf("%w: start %s after end %s", ErrInvalidDateRange, start.Format(time.DateOnly), end.Format(time.DateOnly))
	}
	return nil
}

var (
	// ErrUnbalanced indicates debit != credit.
	ErrUnbalanced = fmt.Errorf("accounting: journal entries must balance: %w", shared.ErrUnprocessable)
	// ErrTooFewEntries indicates less than two entries.
	ErrTooFewEntries = fmt.Errorf("accounting: posting requires at least two entries: %w", shared.ErrValidation)
	// ErrTotalsMismatch indicates total_amount != subtotal + tax_amount.
	ErrTotalsMismatch = fmt.Errorf("accounting: transaction totals inconsistent: %w", shared.ErrValidation)
	// ErrOverApplied indicates payment applications exceed the amount received.
	ErrOverApplied = fmt.Errorf("accounting: payment over-applied: %w", shared.ErrValidation)
	// ErrExceedsBalance indicates an application larger than the document's balance due.
	ErrExceedsBalance = fmt.Errorf("accounting: application exceeds balance due: %w", shared.ErrValidation)
	// ErrInvalidDateRange indicates a malformed reporting window.
	ErrInvalidDateRange = fmt.Errorf("accounting: invalid date range: %w", shared.ErrValidation)
	// ErrAccountInactive indicates a posting against a deactivated account.
	ErrAccountInactive = fmt.Errorf("accounting: account inactive: %w", shared.ErrValidation)
	// ErrLineMissingAccount indicates a line that cannot be routed to the ledger.
	ErrLineMissingAccount = fmt.Errorf("accounting: line has no account: %w", shared.ErrValidation)
	// ErrUnsupportedType indicates a transaction type without a posting rule.
	ErrUnsupportedType = fmt.Errorf("accounting: no posting rule for transaction type: %w", shared.ErrValidation)

	// ErrTransactionNotFound indicates missing transaction.
	ErrTransactionNotFound = fmt.Errorf("accounting: transaction not found: %w", shared.ErrNotFound)
	// ErrAccountNotFound indicates missing account.
	ErrAccountNotFound = fmt.Errorf("accounting: account not found: %w", shared.ErrNotFound)
	// ErrPaymentNotFound indicates missing payment.
	ErrPaymentNotFound = fmt.Errorf("accounting: payment not found: %w", shared.ErrNotFound)
	// ErrMappingNotFound indicates the company has no account assigned to a role.
	ErrMappingNotFound = fmt.Errorf("accounting: account role not configured: %w", shared.ErrNotFound)

	// ErrAlreadyPosted indicates a second post of the same transaction.
	ErrAlreadyPosted = fmt.Errorf("accounting: transaction already posted: %w", shared.ErrInvalidState)
	// ErrCannotPostVoided indicates posting a voided transaction.
	ErrCannotPostVoided = fmt.Errorf("accounting: cannot post voided transaction: %w", shared.ErrInvalidState)
	// ErrAlreadyVoided indicates a second void of the same transaction.
	ErrAlreadyVoided = fmt.Errorf("accounting: transaction already voided: %w", shared.ErrInvalidState)
	// ErrDeletePosted indicates a delete of a posted transaction; it must be voided instead.
	ErrDeletePosted = fmt.Errorf("accounting: posted transaction cannot be deleted: %w", shared.ErrInvalidState)
	// ErrNotPayable indicates a payment application against a closed document.
	ErrNotPayable = fmt.Errorf("accounting: transaction is not open for payment: %w", shared.ErrInvalidState)
	// ErrConcurrentUpdate indicates a serialization failure against a concurrent writer.
	ErrConcurrentUpdate = fmt.Errorf("accounting: concurrent update: %w", shared.ErrInvalidState)
)
