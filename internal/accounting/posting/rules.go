package posting

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tallybooks/tallybooks/internal/accounting"
	"github.com/tallybooks/tallybooks/internal/accounting/mappings"
)

// Side is the ledger column an amount lands in.
type Side int

const (
	Debit Side = iota
	Credit
)

// Opposite returns the other column.
func (s Side) Opposite() Side {
	if s == Debit {
		return Credit
	}
	return Debit
}

func (s Side) String() string {
	if s == Debit {
		return "debit"
	}
	return "credit"
}

// Rule describes how one transaction type maps onto the ledger. The control
// role carries total_amount on ControlSide; lines land on the opposite side,
// or on Counter for types that move money between two roles.
type Rule struct {
	Control     mappings.Role
	ControlSide Side
	Counter     mappings.Role
	TaxRole     mappings.Role
	// Signed marks documents whose lines carry their own side: positive debit, negative credit.
	Signed bool
}

// LineSide is the side transaction lines post to.
func (r Rule) LineSide() Side {
	return r.ControlSide.Opposite()
}

// Rules is the posting table. Adding a transaction type means adding a row.
var Rules = map[accounting.TransactionType]Rule{
	accounting.TransactionTypeInvoice:      {Control: mappings.RoleAccountsReceivable, ControlSide: Debit, TaxRole: mappings.RoleSalesTaxPayable},
	accounting.TransactionTypeSalesReceipt: {Control: mappings.RoleCash, ControlSide: Debit, TaxRole: mappings.RoleSalesTaxPayable},
	accounting.TransactionTypeCreditMemo:   {Control: mappings.RoleAccountsReceivable, ControlSide: Credit, TaxRole: mappings.RoleSalesTaxPayable},
	accounting.TransactionTypeDeposit:      {Control: mappings.RoleCash, ControlSide: Debit},
	accounting.TransactionTypeBill:         {Control: mappings.RoleAccountsPayable, ControlSide: Credit, TaxRole: mappings.RolePurchaseTax},
	accounting.TransactionTypeExpense:      {Control: mappings.RoleCash, ControlSide: Credit, TaxRole: mappings.RolePurchaseTax},
	accounting.TransactionTypeCheck:        {Control: mappings.RoleCash, ControlSide: Credit, TaxRole: mappings.RolePurchaseTax},
	accounting.TransactionTypeVendorCredit: {Control: mappings.RoleAccountsPayable, ControlSide: Debit, TaxRole: mappings.RolePurchaseTax},
	accounting.TransactionTypePayment:      {Control: mappings.RoleCash, ControlSide: Debit, Counter: mappings.RoleAccountsReceivable},
	accounting.TransactionTypeBillPayment:  {Control: mappings.RoleAccountsPayable, ControlSide: Debit, Counter: mappings.RoleCash},
	accounting.TransactionTypeJournalEntry: {Signed: true},
}

// RuleFor returns the posting rule for t.
func RuleFor(t accounting.TransactionType) (Rule, error) {
	rule, ok := Rules[t]
	if !ok {
		return Rule{}, fmt.Errorf("%w: %s", accounting.ErrUnsupportedType, t)
	}
	return rule, nil
}

// RequiredRoles lists the roles a transaction needs resolved before its
// entries can be built. The tax role is only needed when some tax is not
// routed to an explicit account.
func RequiredRoles(rule Rule, txn accounting.Transaction) []mappings.Role {
	var roles []mappings.Role
	if rule.Control != "" && !overriddenByBank(rule.Control, txn) {
		roles = append(roles, rule.Control)
	}
	if rule.Counter != "" && !overriddenByBank(rule.Counter, txn) {
		roles = append(roles, rule.Counter)
	}
	if rule.TaxRole != "" && !taxRoleAmount(txn).IsZero() {
		roles = append(roles, rule.TaxRole)
	}
	return roles
}

// overriddenByBank reports whether the document names the bank account to use
// in place of the CASH role.
func overriddenByBank(role mappings.Role, txn accounting.Transaction) bool {
	return role == mappings.RoleCash && txn.AccountID != nil && *txn.AccountID > 0
}

// taxRoleAmount is the tax that posts to the rule's tax role: header tax not
// itemized on lines, plus line-level tax, plus TAX lines without an account.
// Equivalently tax_amount less TAX lines routed to their own account.
func taxRoleAmount(txn accounting.Transaction) decimal.Decimal {
	amount := txn.TaxAmount
	for _, line := range txn.Lines {
		if line.Type == accounting.LineTypeTax && line.AccountID != nil {
			amount = amount.Sub(line.LineTotal)
		}
	}
	return amount
}

// BuildEntries turns a transaction into journal entries using rule and the
// resolved role accounts. The result is not validated; callers run
// accounting.ValidateEntries before persisting.
func BuildEntries(txn accounting.Transaction, rule Rule, roles map[mappings.Role]int64, batch uuid.UUID, date time.Time) ([]accounting.JournalEntry, error) {
	b := entryBuilder{txn: txn, batch: batch, date: date}
	if rule.Signed {
		for _, line := range txn.Lines {
			if line.AccountID == nil {
				return nil, fmt.Errorf("%w: line %d", accounting.ErrLineMissingAccount, line.LineNumber)
			}
			b.add(*line.AccountID, Debit, line.LineTotal, line.Description)
		}
		return b.entries, nil
	}

	control, err := roleAccount(rule.Control, roles, txn)
	if err != nil {
		return nil, err
	}
	b.add(control, rule.ControlSide, txn.TotalAmount, txn.Memo)

	if rule.Counter != "" {
		counter, err := roleAccount(rule.Counter, roles, txn)
		if err != nil {
			return nil, err
		}
		b.add(counter, rule.ControlSide.Opposite(), txn.TotalAmount, txn.Memo)
		return b.entries, nil
	}

	lineSide := rule.LineSide()
	for _, line := range txn.Lines {
		if line.Type == accounting.LineTypeTax {
			if line.AccountID != nil {
				b.add(*line.AccountID, lineSide, line.LineTotal, line.Description)
			}
			continue
		}
		if line.AccountID == nil {
			return nil, fmt.Errorf("%w: line %d", accounting.ErrLineMissingAccount, line.LineNumber)
		}
		b.add(*line.AccountID, lineSide, line.LineTotal.Sub(line.TaxAmount), line.Description)
	}

	if tax := taxRoleAmount(txn); !tax.IsZero() {
		if rule.TaxRole == "" {
			return nil, fmt.Errorf("%w: %s cannot carry tax", accounting.ErrUnsupportedType, txn.Type)
		}
		taxAccount, err := roleAccount(rule.TaxRole, roles, txn)
		if err != nil {
			return nil, err
		}
		b.add(taxAccount, lineSide, tax, "tax")
	}
	return b.entries, nil
}

func roleAccount(role mappings.Role, roles map[mappings.Role]int64, txn accounting.Transaction) (int64, error) {
	if overriddenByBank(role, txn) {
		return *txn.AccountID, nil
	}
	id, ok := roles[role]
	if !ok || id == 0 {
		return 0, fmt.Errorf("%w: %s", accounting.ErrMappingNotFound, role)
	}
	return id, nil
}

type entryBuilder struct {
	txn     accounting.Transaction
	batch   uuid.UUID
	date    time.Time
	entries []accounting.JournalEntry
}

// add appends one entry. Negative amounts flip to the other side; zero amounts are skipped.
func (b *entryBuilder) add(accountID int64, side Side, amount decimal.Decimal, memo string) {
	if amount.IsZero() {
		return
	}
	if amount.IsNegative() {
		side = side.Opposite()
		amount = amount.Neg()
	}
	entry := accounting.JournalEntry{
		CompanyID:     b.txn.CompanyID,
		TransactionID: b.txn.ID,
		AccountID:     accountID,
		BatchID:       b.batch,
		EntryDate:     b.date,
		Debit:         decimal.Zero,
		Credit:        decimal.Zero,
		Memo:          memo,
	}
	if side == Debit {
		entry.Debit = amount
	} else {
		entry.Credit = amount
	}
	b.entries = append(b.entries, entry)
}
