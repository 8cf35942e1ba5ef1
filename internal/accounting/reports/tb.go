package reports

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/tallybooks/tallybooks/internal/accounting"
)

// TrialBalanceRow is one account's net balance on its natural side.
type TrialBalanceRow struct {
	AccountID     int64                  `json:"account_id"`
	AccountCode   string                 `json:"account_code"`
	AccountName   string                 `json:"account_name"`
	AccountType   accounting.AccountType `json:"account_type"`
	DebitBalance  decimal.Decimal        `json:"debit_balance"`
	CreditBalance decimal.Decimal        `json:"credit_balance"`
}

// TrialBalance lists every account balance and whether the ledger balances.
type TrialBalance struct {
	AsOf         time.Time         `json:"as_of"`
	Rows         []TrialBalanceRow `json:"rows"`
	TotalDebits  decimal.Decimal   `json:"total_debits"`
	TotalCredits decimal.Decimal   `json:"total_credits"`
	Difference   decimal.Decimal   `json:"difference"`
	IsBalanced   bool              `json:"is_balanced"`
}

// BuildTrialBalance converts as-of balances into trial balance rows. A positive
// debit-minus-credit balance lands in the debit column, a negative one in the
// credit column. Zero balances are skipped unless includeZero is set.
func BuildTrialBalance(asOf time.Time, balances []AccountBalance, includeZero bool) TrialBalance {
	tb := TrialBalance{AsOf: asOf, Rows: make([]TrialBalanceRow, 0, len(balances))}
	for _, b := range balances {
		net := b.AsOf()
		if net.IsZero() && !includeZero {
			continue
		}
		row := TrialBalanceRow{
			AccountID:   b.Account.ID,
			AccountCode: b.Account.Code,
			AccountName: b.Account.Name,
			AccountType: b.Account.Type,
		}
		if net.IsNegative() {
			row.CreditBalance = net.Neg()
		} else {
			row.DebitBalance = net
		}
		tb.Rows = append(tb.Rows, row)
		tb.TotalDebits = tb.TotalDebits.Add(row.DebitBalance)
		tb.TotalCredits = tb.TotalCredits.Add(row.CreditBalance)
	}
	tb.Difference = tb.TotalDebits.Sub(tb.TotalCredits)
	tb.IsBalanced = tb.Difference.IsZero()
	return tb
}
