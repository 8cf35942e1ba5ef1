package reports

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

func formatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func formatOptional(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.StringFixed(2)
}

func writeAll(w io.Writer, records [][]string) error {
	writer := csv.NewWriter(w)
	if err := writer.WriteAll(records); err != nil {
		return err
	}
	return writer.Error()
}

func sectionRecords(section Section, compared bool) [][]string {
	records := [][]string{{section.Name}}
	for _, line := range section.Lines {
		name := strings.Repeat("  ", line.Depth) + line.AccountName
		record := []string{line.AccountCode, name, formatAmount(line.Amount)}
		if compared {
			record = append(record, formatOptional(line.ComparisonAmount), formatOptional(line.VarianceAmount), formatOptional(line.VariancePercentage))
		}
		records = append(records, record)
	}
	total := []string{"", "Total " + section.Name, formatAmount(section.Total)}
	if compared {
		total = append(total, formatOptional(section.ComparisonTotal), formatOptional(section.VarianceAmount), formatOptional(section.VariancePercentage))
	}
	return append(records, total)
}

func figureRecord(label string, f Figure, compared bool) []string {
	record := []string{"", label, formatAmount(f.Amount)}
	if compared {
		record = append(record, formatOptional(f.ComparisonAmount), formatOptional(f.VarianceAmount), formatOptional(f.VariancePercentage))
	}
	return record
}

func header(compared bool) []string {
	h := []string{"Code", "Account", "Amount"}
	if compared {
		h = append(h, "Comparison", "Variance", "Variance %")
	}
	return h
}

// WriteProfitAndLossCSV emits the income statement as CSV.
func WriteProfitAndLossCSV(w io.Writer, pl ProfitAndLoss) error {
	compared := pl.CompareStart != nil
	records := [][]string{
		{"Profit and Loss", pl.Start.Format(time.DateOnly), pl.End.Format(time.DateOnly)},
		header(compared),
	}
	records = append(records, sectionRecords(pl.Income, compared)...)
	if pl.CostOfGoodsSold != nil {
		records = append(records, sectionRecords(*pl.CostOfGoodsSold, compared)...)
	}
	records = append(records, figureRecord("Gross Profit", pl.GrossProfit, compared))
	records = append(records, sectionRecords(pl.Expenses, compared)...)
	records = append(records, figureRecord("Net Income", pl.NetIncome, compared))
	return writeAll(w, records)
}

// WriteBalanceSheetCSV emits the balance sheet as CSV.
func WriteBalanceSheetCSV(w io.Writer, bs BalanceSheet) error {
	compared := bs.CompareAsOf != nil
	records := [][]string{
		{"Balance Sheet", bs.AsOf.Format(time.DateOnly)},
		header(compared),
	}
	for _, section := range []Section{bs.Assets, bs.Liabilities, bs.Equity} {
		records = append(records, sectionRecords(section, compared)...)
	}
	records = append(records, figureRecord("Total Assets", bs.GrandTotal, compared))
	return writeAll(w, records)
}

// WriteTrialBalanceCSV emits trial balance rows and totals as CSV.
func WriteTrialBalanceCSV(w io.Writer, tb TrialBalance) error {
	records := [][]string{
		{"Trial Balance", tb.AsOf.Format(time.DateOnly)},
		{"Code", "Account", "Type", "Debit", "Credit"},
	}
	for _, row := range tb.Rows {
		records = append(records, []string{row.AccountCode, row.AccountName, string(row.AccountType), formatAmount(row.DebitBalance), formatAmount(row.CreditBalance)})
	}
	records = append(records,
		[]string{"", "Total", "", formatAmount(tb.TotalDebits), formatAmount(tb.TotalCredits)},
		[]string{"", "Difference", "", formatAmount(tb.Difference), strconv.FormatBool(tb.IsBalanced)},
	)
	return writeAll(w, records)
}

// WriteAgingCSV prints one row per counterparty with its bucket amounts.
func WriteAgingCSV(w io.Writer, report AgingReport) error {
	head := []string{"Entity"}
	for _, bucket := range report.Totals {
		head = append(head, bucket.Label)
	}
	head = append(head, "Total")
	records := [][]string{{"Aging", string(report.Kind), report.AsOf.Format(time.DateOnly)}, head}
	for _, entity := range report.Entities {
		record := []string{entity.EntityName}
		for _, bucket := range entity.Buckets {
			record = append(record, formatAmount(bucket.Amount))
		}
		records = append(records, append(record, formatAmount(entity.Total)))
	}
	totals := []string{"Total"}
	for _, bucket := range report.Totals {
		totals = append(totals, formatAmount(bucket.Amount))
	}
	records = append(records, append(totals, formatAmount(report.GrandTotal)))
	return writeAll(w, records)
}

// WriteCashFlowCSV emits the statement of cash flows as CSV.
func WriteCashFlowCSV(w io.Writer, cf CashFlow) error {
	records := [][]string{
		{"Cash Flow", cf.Start.Format(time.DateOnly), cf.End.Format(time.DateOnly), string(cf.Method)},
		header(false),
	}
	for _, section := range []Section{cf.Operating, cf.Investing, cf.Financing} {
		records = append(records, sectionRecords(section, false)...)
	}
	records = append(records,
		[]string{"", "Net Change in Cash", formatAmount(cf.NetChange)},
		[]string{"", "Beginning Cash", formatAmount(cf.BeginningCash)},
		[]string{"", "Ending Cash", formatAmount(cf.EndingCash)},
	)
	return writeAll(w, records)
}
