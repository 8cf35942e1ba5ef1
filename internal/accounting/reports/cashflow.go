package reports

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tallybooks/tallybooks/internal/accounting"
	"github.com/tallybooks/tallybooks/internal/shared"
)

// CashFlowMethod selects how operating activity is presented.
type CashFlowMethod string

const (
	CashFlowIndirect CashFlowMethod = "indirect"
	CashFlowDirect   CashFlowMethod = "direct"
)

// ErrInvalidMethod flags an unknown cash flow method.
var ErrInvalidMethod = fmt.Errorf("reports: cash flow method must be indirect or direct: %w", shared.ErrValidation)

// Activity is a cash flow classification.
type Activity string

const (
	ActivityNone      Activity = ""
	ActivityOperating Activity = "operating"
	ActivityInvesting Activity = "investing"
	ActivityFinancing Activity = "financing"
)

// ClassifyActivity maps a balance sheet account onto its cash flow activity.
// Cash accounts and income statement accounts have none.
func ClassifyActivity(account accounting.Account) Activity {
	if account.Subtype == accounting.AccountSubtypeCash {
		return ActivityNone
	}
	switch account.Type {
	case accounting.AccountTypeAsset:
		if account.Subtype == accounting.AccountSubtypeFixedAsset {
			return ActivityInvesting
		}
		return ActivityOperating
	case accounting.AccountTypeLiability:
		if account.Subtype == accounting.AccountSubtypeLongTermLiability {
			return ActivityFinancing
		}
		return ActivityOperating
	case accounting.AccountTypeEquity:
		return ActivityFinancing
	}
	return ActivityNone
}

// CashFlow is the statement of cash flows for a period.
type CashFlow struct {
	Start         time.Time       `json:"start"`
	End           time.Time       `json:"end"`
	Method        CashFlowMethod  `json:"method"`
	Operating     Section         `json:"operating"`
	Investing     Section         `json:"investing"`
	Financing     Section         `json:"financing"`
	NetChange     decimal.Decimal `json:"net_change"`
	BeginningCash decimal.Decimal `json:"beginning_cash"`
	EndingCash    decimal.Decimal `json:"ending_cash"`
	IsReconciled  bool            `json:"is_reconciled"`
}

// CashFlowInput carries the three aggregations a cash flow needs.
type CashFlowInput struct {
	Start     time.Time
	End       time.Time
	Method    CashFlowMethod
	Period    []AccountBalance
	Beginning []AccountBalance
	Ending    []AccountBalance
}

func movement(b AccountBalance) decimal.Decimal {
	return b.Credit.Sub(b.Debit)
}

func cashBalance(balances []AccountBalance) decimal.Decimal {
	total := decimal.Zero
	for _, b := range balances {
		if b.Account.Subtype == accounting.AccountSubtypeCash {
			total = total.Add(b.AsOf())
		}
	}
	return total
}

// BuildCashFlow derives the statement from period movements of non-cash
// accounts. Each movement is credit minus debit, so a rise in a liability is
// an inflow and a rise in an asset an outflow. The indirect method opens
// operating activity with net income; the direct method lists each income
// statement account instead.
func BuildCashFlow(in CashFlowInput) CashFlow {
	cf := CashFlow{Start: in.Start, End: in.End, Method: in.Method}
	var operating, investing, financing, income []AccountBalance
	for _, b := range in.Period {
		if !b.Account.Type.IsBalanceSheet() {
			income = append(income, b)
			continue
		}
		switch ClassifyActivity(b.Account) {
		case ActivityOperating:
			operating = append(operating, b)
		case ActivityInvesting:
			investing = append(investing, b)
		case ActivityFinancing:
			financing = append(financing, b)
		}
	}

	if in.Method == CashFlowDirect {
		cf.Operating = buildSection("Operating Activities", append(income, operating...), movement)
	} else {
		netIncome := decimal.Zero
		for _, b := range income {
			netIncome = netIncome.Add(movement(b))
		}
		adjustments := buildSection("Operating Activities", operating, movement)
		cf.Operating = Section{
			Name:  adjustments.Name,
			Lines: append([]Line{{AccountName: "Net Income", Amount: netIncome, RollupAmount: netIncome}}, adjustments.Lines...),
			Total: netIncome.Add(adjustments.Total),
		}
	}
	cf.Investing = buildSection("Investing Activities", investing, movement)
	cf.Financing = buildSection("Financing Activities", financing, movement)

	cf.NetChange = cf.Operating.Total.Add(cf.Investing.Total).Add(cf.Financing.Total)
	cf.BeginningCash = cashBalance(in.Beginning)
	cf.EndingCash = cashBalance(in.Ending)
	cf.IsReconciled = cf.BeginningCash.Add(cf.NetChange).Equal(cf.EndingCash)
	return cf
}
