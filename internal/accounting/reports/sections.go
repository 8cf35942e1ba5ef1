package reports

import (
	"sort"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Line is one account row inside a report section.
type Line struct {
	AccountID          int64            `json:"account_id,omitempty"`
	AccountCode        string           `json:"account_code,omitempty"`
	AccountName        string           `json:"account_name"`
	ParentID           *int64           `json:"parent_id,omitempty"`
	Depth              int              `json:"depth"`
	Amount             decimal.Decimal  `json:"amount"`
	RollupAmount       decimal.Decimal  `json:"rollup_amount"`
	ComparisonAmount   *decimal.Decimal `json:"comparison_amount,omitempty"`
	VarianceAmount     *decimal.Decimal `json:"variance_amount,omitempty"`
	VariancePercentage *decimal.Decimal `json:"variance_percentage,omitempty"`
}

// Section groups lines under a heading with a total.
type Section struct {
	Name               string           `json:"name"`
	Lines              []Line           `json:"lines"`
	Total              decimal.Decimal  `json:"total"`
	ComparisonTotal    *decimal.Decimal `json:"comparison_total,omitempty"`
	VarianceAmount     *decimal.Decimal `json:"variance_amount,omitempty"`
	VariancePercentage *decimal.Decimal `json:"variance_percentage,omitempty"`
}

// Figure is a single computed amount such as gross profit or net income.
type Figure struct {
	Amount             decimal.Decimal  `json:"amount"`
	ComparisonAmount   *decimal.Decimal `json:"comparison_amount,omitempty"`
	VarianceAmount     *decimal.Decimal `json:"variance_amount,omitempty"`
	VariancePercentage *decimal.Decimal `json:"variance_percentage,omitempty"`
}

// Variance returns current minus comparison and the percentage change rounded
// to two places. The percentage is nil when comparison is absent or zero.
func Variance(current decimal.Decimal, comparison *decimal.Decimal) (*decimal.Decimal, *decimal.Decimal) {
	if comparison == nil {
		return nil, nil
	}
	amount := current.Sub(*comparison)
	if comparison.IsZero() {
		return &amount, nil
	}
	pct := amount.Div(*comparison).Mul(hundred).Round(2)
	return &amount, &pct
}

func newFigure(amount decimal.Decimal) Figure {
	return Figure{Amount: amount}
}

func (f *Figure) compare(prev decimal.Decimal) {
	f.ComparisonAmount = &prev
	f.VarianceAmount, f.VariancePercentage = Variance(f.Amount, &prev)
}

// buildSection lays out balances depth-first along the account tree: parents
// before children, siblings by code. The total sums own amounts only; rollups
// are for display.
func buildSection(name string, balances []AccountBalance, amount func(AccountBalance) decimal.Decimal) Section {
	section := Section{Name: name, Lines: make([]Line, 0, len(balances))}
	if len(balances) == 0 {
		return section
	}
	byID := make(map[int64]AccountBalance, len(balances))
	for _, b := range balances {
		byID[b.Account.ID] = b
	}
	children := make(map[int64][]AccountBalance)
	roots := make([]AccountBalance, 0)
	for _, b := range balances {
		parent := b.Account.ParentID
		if parent != nil && *parent != b.Account.ID {
			if _, ok := byID[*parent]; ok {
				children[*parent] = append(children[*parent], b)
				continue
			}
		}
		roots = append(roots, b)
	}
	byCode := func(list []AccountBalance) {
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].Account.Code < list[j].Account.Code
		})
	}
	byCode(roots)
	for key := range children {
		byCode(children[key])
	}

	visited := make(map[int64]bool, len(balances))
	var walk func(b AccountBalance, depth int) decimal.Decimal
	walk = func(b AccountBalance, depth int) decimal.Decimal {
		visited[b.Account.ID] = true
		own := amount(b)
		idx := len(section.Lines)
		section.Lines = append(section.Lines, Line{
			AccountID:   b.Account.ID,
			AccountCode: b.Account.Code,
			AccountName: b.Account.Name,
			ParentID:    b.Account.ParentID,
			Depth:       depth,
			Amount:      own,
		})
		rollup := own
		for _, child := range children[b.Account.ID] {
			if visited[child.Account.ID] {
				continue
			}
			rollup = rollup.Add(walk(child, depth+1))
		}
		section.Lines[idx].RollupAmount = rollup
		section.Total = section.Total.Add(own)
		return rollup
	}
	for _, root := range roots {
		walk(root, 0)
	}
	// Accounts caught in a parent cycle never reach a root; list them flat.
	for _, b := range balances {
		if !visited[b.Account.ID] {
			walk(b, 0)
		}
	}
	return section
}

// compare annotates the section with amounts from the same section of the
// comparison report. Accounts missing on one side count as zero.
func (s *Section) compare(prev Section) {
	prevByAccount := make(map[int64]decimal.Decimal, len(prev.Lines))
	for _, line := range prev.Lines {
		prevByAccount[line.AccountID] = line.Amount
	}
	for i := range s.Lines {
		c := prevByAccount[s.Lines[i].AccountID]
		s.Lines[i].ComparisonAmount = &c
		s.Lines[i].VarianceAmount, s.Lines[i].VariancePercentage = Variance(s.Lines[i].Amount, &c)
	}
	total := prev.Total
	s.ComparisonTotal = &total
	s.VarianceAmount, s.VariancePercentage = Variance(s.Total, &total)
}
