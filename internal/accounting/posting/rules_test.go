package posting

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallybooks/tallybooks/internal/accounting"
	"github.com/tallybooks/tallybooks/internal/accounting/mappings"
)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func id(v int64) *int64 {
	return &v
}

const (
	acctAR       int64 = 1100
	acctAP       int64 = 2000
	acctCash     int64 = 1000
	acctBank     int64 = 1010
	acctSalesTax int64 = 2200
	acctInputTax int64 = 1300
	acctSales    int64 = 4000
	acctFreight  int64 = 4100
	acctRent     int64 = 6000
	acctEquity   int64 = 3000
)

var allRoles = map[mappings.Role]int64{
	mappings.RoleAccountsReceivable: acctAR,
	mappings.RoleAccountsPayable:    acctAP,
	mappings.RoleCash:               acctCash,
	mappings.RoleSalesTaxPayable:    acctSalesTax,
	mappings.RolePurchaseTax:        acctInputTax,
}

type side struct {
	debit, credit decimal.Decimal
}

func byAccount(entries []accounting.JournalEntry) map[int64]side {
	out := map[int64]side{}
	for _, e := range entries {
		s := out[e.AccountID]
		s.debit = s.debit.Add(e.Debit)
		s.credit = s.credit.Add(e.Credit)
		out[e.AccountID] = s
	}
	return out
}

func invoice470() accounting.Transaction {
	return accounting.Transaction{
		ID:          9,
		CompanyID:   1,
		Number:      "INV-0001",
		Type:        accounting.TransactionTypeInvoice,
		Date:        time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		Subtotal:    dec("435.00"),
		TaxAmount:   dec("35.00"),
		TotalAmount: dec("470.00"),
		BalanceDue:  dec("470.00"),
		Status:      accounting.TransactionStatusSent,
		Lines: []accounting.TransactionLine{
			{LineNumber: 1, Type: accounting.LineTypeItem, AccountID: id(acctSales), Quantity: dec("3"), UnitPrice: dec("145.00"), LineTotal: dec("435.00")},
		},
	}
}

func TestEveryTransactionTypeHasRule(t *testing.T) {
	for _, typ := range []accounting.TransactionType{
		accounting.TransactionTypeInvoice, accounting.TransactionTypeBill, accounting.TransactionTypeSalesReceipt,
		accounting.TransactionTypeCreditMemo, accounting.TransactionTypeVendorCredit, accounting.TransactionTypePayment,
		accounting.TransactionTypeBillPayment, accounting.TransactionTypeCheck, accounting.TransactionTypeExpense,
		accounting.TransactionTypeDeposit, accounting.TransactionTypeJournalEntry,
	} {
		_, err := RuleFor(typ)
		require.NoError(t, err, typ)
	}
	_, err := RuleFor("ESTIMATE")
	require.ErrorIs(t, err, accounting.ErrUnsupportedType)
}

func TestInvoiceEntriesRouteTaxToPayable(t *testing.T) {
	txn := invoice470()
	rule := Rules[txn.Type]
	require.ElementsMatch(t, []mappings.Role{mappings.RoleAccountsReceivable, mappings.RoleSalesTaxPayable}, RequiredRoles(rule, txn))

	entries, err := BuildEntries(txn, rule, allRoles, uuid.New(), txn.Date)
	require.NoError(t, err)
	require.NoError(t, accounting.ValidateEntries(entries))

	got := byAccount(entries)
	assert.True(t, got[acctAR].debit.Equal(dec("470.00")))
	assert.True(t, got[acctSales].credit.Equal(dec("435.00")))
	assert.True(t, got[acctSalesTax].credit.Equal(dec("35.00")))
	for _, e := range entries {
		assert.Equal(t, txn.ID, e.TransactionID)
		assert.Equal(t, entries[0].BatchID, e.BatchID)
	}
}

func TestLineTaxIsSeparatedFromRevenue(t *testing.T) {
	txn := accounting.Transaction{
		ID:          3,
		Type:        accounting.TransactionTypeInvoice,
		Subtotal:    dec("200"),
		TaxAmount:   dec("20"),
		TotalAmount: dec("220"),
		Lines: []accounting.TransactionLine{
			{LineNumber: 1, Type: accounting.LineTypeItem, AccountID: id(acctSales), Quantity: dec("1"), UnitPrice: dec("150"), TaxAmount: dec("15"), LineTotal: dec("165")},
			{LineNumber: 2, Type: accounting.LineTypeShipping, AccountID: id(acctFreight), Quantity: dec("1"), UnitPrice: dec("60"), DiscountAmount: dec("10"), TaxAmount: dec("5"), LineTotal: dec("55")},
		},
	}
	entries, err := BuildEntries(txn, Rules[txn.Type], allRoles, uuid.New(), txn.Date)
	require.NoError(t, err)
	require.NoError(t, accounting.ValidateEntries(entries))

	got := byAccount(entries)
	assert.True(t, got[acctSales].credit.Equal(dec("150")))
	assert.True(t, got[acctFreight].credit.Equal(dec("50")))
	assert.True(t, got[acctSalesTax].credit.Equal(dec("20")))
}

func TestTaxLineWithAccountBypassesRole(t *testing.T) {
	txn := accounting.Transaction{
		Type:        accounting.TransactionTypeBill,
		Subtotal:    dec("100"),
		TaxAmount:   dec("7"),
		TotalAmount: dec("107"),
		Lines: []accounting.TransactionLine{
			{LineNumber: 1, Type: accounting.LineTypeAccount, AccountID: id(acctRent), LineTotal: dec("100")},
			{LineNumber: 2, Type: accounting.LineTypeTax, AccountID: id(acctInputTax), LineTotal: dec("7")},
		},
	}
	rule := Rules[txn.Type]
	assert.Equal(t, []mappings.Role{mappings.RoleAccountsPayable}, RequiredRoles(rule, txn))

	entries, err := BuildEntries(txn, rule, map[mappings.Role]int64{mappings.RoleAccountsPayable: acctAP}, uuid.New(), time.Now())
	require.NoError(t, err)
	require.NoError(t, accounting.ValidateEntries(entries))
	got := byAccount(entries)
	assert.True(t, got[acctAP].credit.Equal(dec("107")))
	assert.True(t, got[acctRent].debit.Equal(dec("100")))
	assert.True(t, got[acctInputTax].debit.Equal(dec("7")))
}

func TestCounterRulesMoveTotalBetweenRoles(t *testing.T) {
	payment := accounting.Transaction{Type: accounting.TransactionTypePayment, Subtotal: dec("80"), TotalAmount: dec("80")}
	entries, err := BuildEntries(payment, Rules[payment.Type], allRoles, uuid.New(), time.Now())
	require.NoError(t, err)
	got := byAccount(entries)
	assert.True(t, got[acctCash].debit.Equal(dec("80")))
	assert.True(t, got[acctAR].credit.Equal(dec("80")))

	billPayment := accounting.Transaction{Type: accounting.TransactionTypeBillPayment, Subtotal: dec("80"), TotalAmount: dec("80"), AccountID: id(acctBank)}
	rule := Rules[billPayment.Type]
	assert.Equal(t, []mappings.Role{mappings.RoleAccountsPayable}, RequiredRoles(rule, billPayment))
	entries, err = BuildEntries(billPayment, rule, allRoles, uuid.New(), time.Now())
	require.NoError(t, err)
	got = byAccount(entries)
	assert.True(t, got[acctAP].debit.Equal(dec("80")))
	assert.True(t, got[acctBank].credit.Equal(dec("80")), "bank account on the document replaces the cash role")
	_, usedCash := got[acctCash]
	assert.False(t, usedCash)
}

func TestCreditMemoMirrorsInvoice(t *testing.T) {
	memo := invoice470()
	memo.Type = accounting.TransactionTypeCreditMemo
	entries, err := BuildEntries(memo, Rules[memo.Type], allRoles, uuid.New(), memo.Date)
	require.NoError(t, err)
	got := byAccount(entries)
	assert.True(t, got[acctAR].credit.Equal(dec("470.00")))
	assert.True(t, got[acctSales].debit.Equal(dec("435.00")))
	assert.True(t, got[acctSalesTax].debit.Equal(dec("35.00")))
}

func TestJournalEntrySignedLines(t *testing.T) {
	txn := accounting.Transaction{
		Type: accounting.TransactionTypeJournalEntry,
		Lines: []accounting.TransactionLine{
			{LineNumber: 1, AccountID: id(acctCash), LineTotal: dec("1000")},
			{LineNumber: 2, AccountID: id(acctEquity), LineTotal: dec("-1000")},
		},
	}
	rule := Rules[txn.Type]
	assert.Empty(t, RequiredRoles(rule, txn))
	entries, err := BuildEntries(txn, rule, nil, uuid.New(), time.Now())
	require.NoError(t, err)
	require.NoError(t, accounting.ValidateEntries(entries))
	got := byAccount(entries)
	assert.True(t, got[acctCash].debit.Equal(dec("1000")))
	assert.True(t, got[acctEquity].credit.Equal(dec("1000")))

	txn.Lines = append(txn.Lines, accounting.TransactionLine{LineNumber: 3, LineTotal: dec("5")})
	_, err = BuildEntries(txn, rule, nil, uuid.New(), time.Now())
	require.ErrorIs(t, err, accounting.ErrLineMissingAccount)
}

func TestMissingRoleFailsLoudly(t *testing.T) {
	txn := invoice470()
	_, err := BuildEntries(txn, Rules[txn.Type], map[mappings.Role]int64{mappings.RoleSalesTaxPayable: acctSalesTax}, uuid.New(), txn.Date)
	require.ErrorIs(t, err, accounting.ErrMappingNotFound)
}

func TestMismatchedSubtotalIsUnbalanced(t *testing.T) {
	txn := invoice470()
	txn.Lines[0].LineTotal = dec("430.00")
	entries, err := BuildEntries(txn, Rules[txn.Type], allRoles, uuid.New(), txn.Date)
	require.NoError(t, err)
	require.ErrorIs(t, accounting.ValidateEntries(entries), accounting.ErrUnbalanced)
}
