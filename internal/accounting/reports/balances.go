package reports

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tallybooks/tallybooks/internal/accounting"
)

// Sums holds the raw debit and credit totals posted to one account.
type Sums struct {
	Debit  decimal.Decimal
	Credit decimal.Decimal
}

// Window bounds the transaction dates included in an aggregation. A nil From
// means "since the beginning", which yields as-of balances.
type Window struct {
	From *time.Time
	To   time.Time
}

// AsOfWindow covers every posting dated on or before the given day.
func AsOfWindow(asOf time.Time) Window {
	return Window{To: asOf}
}

// PeriodWindow covers postings dated within [start, end].
func PeriodWindow(start, end time.Time) Window {
	return Window{From: &start, To: end}
}

// AccountBalance pairs an account with the sums posted to it in a window.
type AccountBalance struct {
	Account accounting.Account
	Debit   decimal.Decimal
	Credit  decimal.Decimal
}

// Period returns credit minus debit, the sign used for income statements.
func (b AccountBalance) Period() decimal.Decimal {
	return b.Credit.Sub(b.Debit)
}

// AsOf returns debit minus credit, the normal debit-balance presentation.
func (b AccountBalance) AsOf() decimal.Decimal {
	return b.Debit.Sub(b.Credit)
}

// JoinBalances lists every account with its sums, zero when nothing was
// posted. Output is ordered by account code.
func JoinBalances(accounts []accounting.Account, sums map[int64]Sums) []AccountBalance {
	out := make([]AccountBalance, 0, len(accounts))
	for _, account := range accounts {
		s := sums[account.ID]
		out = append(out, AccountBalance{Account: account, Debit: s.Debit, Credit: s.Credit})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Account.Code < out[j].Account.Code
	})
	return out
}

// OfType filters balances down to the given account types.
func OfType(balances []AccountBalance, types ...accounting.AccountType) []AccountBalance {
	out := make([]AccountBalance, 0, len(balances))
	for _, b := range balances {
		for _, t := range types {
			if b.Account.Type == t {
				out = append(out, b)
				break
			}
		}
	}
	return out
}
