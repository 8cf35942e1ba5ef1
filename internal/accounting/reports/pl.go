package reports

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/tallybooks/tallybooks/internal/accounting"
)

// ProfitAndLoss is the income statement over a date range.
type ProfitAndLoss struct {
	Start           time.Time  `json:"start"`
	End             time.Time  `json:"end"`
	CompareStart    *time.Time `json:"compare_start,omitempty"`
	CompareEnd      *time.Time `json:"compare_end,omitempty"`
	Income          Section    `json:"income"`
	CostOfGoodsSold *Section   `json:"cost_of_goods_sold,omitempty"`
	GrossProfit     Figure     `json:"gross_profit"`
	Expenses        Section    `json:"expenses"`
	NetIncome       Figure     `json:"net_income"`
}

func expenseAmount(b AccountBalance) decimal.Decimal {
	return b.Debit.Sub(b.Credit)
}

// BuildProfitAndLoss aggregates period balances into income, cost of goods
// sold, and expense sections. Income shows credit minus debit; costs and
// expenses show debit minus credit so both read as positive amounts.
func BuildProfitAndLoss(start, end time.Time, balances []AccountBalance) ProfitAndLoss {
	pl := ProfitAndLoss{
		Start:    start,
		End:      end,
		Income:   buildSection("Income", OfType(balances, accounting.AccountTypeRevenue), AccountBalance.Period),
		Expenses: buildSection("Expenses", OfType(balances, accounting.AccountTypeExpense), expenseAmount),
	}
	gross := pl.Income.Total
	if cogs := OfType(balances, accounting.AccountTypeCostOfGoodsSold); len(cogs) > 0 {
		section := buildSection("Cost of Goods Sold", cogs, expenseAmount)
		pl.CostOfGoodsSold = &section
		gross = gross.Sub(section.Total)
	}
	pl.GrossProfit = newFigure(gross)
	pl.NetIncome = newFigure(gross.Sub(pl.Expenses.Total))
	return pl
}

// Compare annotates the statement with the comparison period's figures.
func (p *ProfitAndLoss) Compare(prev ProfitAndLoss) {
	start, end := prev.Start, prev.End
	p.CompareStart, p.CompareEnd = &start, &end
	p.Income.compare(prev.Income)
	if p.CostOfGoodsSold != nil {
		if prev.CostOfGoodsSold != nil {
			p.CostOfGoodsSold.compare(*prev.CostOfGoodsSold)
		} else {
			p.CostOfGoodsSold.compare(Section{})
		}
	}
	p.Expenses.compare(prev.Expenses)
	p.GrossProfit.compare(prev.GrossProfit.Amount)
	p.NetIncome.compare(prev.NetIncome.Amount)
}
