package reports

import (
	"time"

	"github.com/tallybooks/tallybooks/internal/accounting"
)

// BalanceSheet reports as-of balances for the balance sheet account types.
// Every section uses debit minus credit. The grand total is total assets and
// is never forced to equal liabilities plus equity.
type BalanceSheet struct {
	AsOf        time.Time  `json:"as_of"`
	CompareAsOf *time.Time `json:"compare_as_of,omitempty"`
	Assets      Section    `json:"assets"`
	Liabilities Section    `json:"liabilities"`
	Equity      Section    `json:"equity"`
	GrandTotal  Figure     `json:"grand_total"`
}

// BuildBalanceSheet aggregates as-of balances into assets, liabilities, and equity sections.
func BuildBalanceSheet(asOf time.Time, balances []AccountBalance) BalanceSheet {
	bs := BalanceSheet{
		AsOf:        asOf,
		Assets:      buildSection("Assets", OfType(balances, accounting.AccountTypeAsset), AccountBalance.AsOf),
		Liabilities: buildSection("Liabilities", OfType(balances, accounting.AccountTypeLiability), AccountBalance.AsOf),
		Equity:      buildSection("Equity", OfType(balances, accounting.AccountTypeEquity), AccountBalance.AsOf),
	}
	bs.GrandTotal = newFigure(bs.Assets.Total)
	return bs
}

// Compare annotates the balance sheet with figures as of the comparison date.
func (b *BalanceSheet) Compare(prev BalanceSheet) {
	asOf := prev.AsOf
	b.CompareAsOf = &asOf
	b.Assets.compare(prev.Assets)
	b.Liabilities.compare(prev.Liabilities)
	b.Equity.compare(prev.Equity)
	b.GrandTotal.compare(prev.GrandTotal.Amount)
}
