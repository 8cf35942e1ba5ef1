package reports

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallybooks/tallybooks/internal/accounting"
	"github.com/tallybooks/tallybooks/internal/accounting/mappings"
	"github.com/tallybooks/tallybooks/internal/accounting/posting"
)

type memEntry struct {
	entry   accounting.JournalEntry
	txnDate time.Time
}

// memLedger aggregates in-memory journal entries the way the SQL does:
// filtered on the owning transaction's date.
type memLedger struct {
	mu        sync.Mutex
	accounts  []accounting.Account
	entries   []memEntry
	docs      []OpenDocument
	parties   []Counterparty
	sumCalls  atomic.Int64
	failSums  error
	onSum     func()
	companies []int64
}

func (m *memLedger) add(txnDate time.Time, entries ...accounting.JournalEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		m.entries = append(m.entries, memEntry{entry: e, txnDate: txnDate})
	}
}

func (m *memLedger) ActiveAccounts(_ context.Context, companyID int64) ([]accounting.Account, error) {
	out := make([]accounting.Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		if a.CompanyID == companyID && a.IsActive {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memLedger) SumEntries(_ context.Context, companyID int64, window Window) (map[int64]Sums, error) {
	m.sumCalls.Add(1)
	if m.onSum != nil {
		m.onSum()
	}
	if m.failSums != nil {
		return nil, m.failSums
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sums := make(map[int64]Sums)
	for _, e := range m.entries {
		if e.entry.CompanyID != companyID || e.txnDate.After(window.To) {
			continue
		}
		if window.From != nil && e.txnDate.Before(*window.From) {
			continue
		}
		s := sums[e.entry.AccountID]
		s.Debit = s.Debit.Add(e.entry.Debit)
		s.Credit = s.Credit.Add(e.entry.Credit)
		sums[e.entry.AccountID] = s
	}
	return sums, nil
}

func (m *memLedger) OpenDocuments(context.Context, int64, AgingKind, time.Time) ([]OpenDocument, error) {
	return m.docs, nil
}

func (m *memLedger) Counterparties(context.Context, int64, AgingKind) ([]Counterparty, error) {
	return m.parties, nil
}

func (m *memLedger) Companies(context.Context) ([]int64, error) {
	return m.companies, nil
}

const (
	acctAR       int64 = 1100
	acctSales    int64 = 4000
	acctSalesTax int64 = 2200
)

func scenarioLedger() *memLedger {
	return &memLedger{accounts: []accounting.Account{
		account(acctAR, "1100", "Accounts Receivable", accounting.AccountTypeAsset),
		account(acctSalesTax, "2200", "Sales Tax Payable", accounting.AccountTypeLiability),
		account(acctSales, "4000", "Sales", accounting.AccountTypeRevenue),
	}}
}

func invoice470() accounting.Transaction {
	salesID := acctSales
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
			{LineNumber: 1, Type: accounting.LineTypeItem, AccountID: &salesID, Quantity: dec("3"), UnitPrice: dec("145.00"), LineTotal: dec("435.00")},
		},
	}
}

func findRow(tb TrialBalance, accountID int64) (TrialBalanceRow, bool) {
	for _, row := range tb.Rows {
		if row.AccountID == accountID {
			return row, true
		}
	}
	return TrialBalanceRow{}, false
}

func TestPostThenVoidInvoiceNetsToZero(t *testing.T) {
	ctx := context.Background()
	ledger := scenarioLedger()
	svc := NewService(ledger, nil)

	txn := invoice470()
	roles := map[mappings.Role]int64{
		mappings.RoleAccountsReceivable: acctAR,
		mappings.RoleSalesTaxPayable:    acctSalesTax,
	}
	entries, err := posting.BuildEntries(txn, posting.Rules[txn.Type], roles, uuid.New(), txn.Date)
	require.NoError(t, err)
	for i := range entries {
		entries[i].CompanyID = 1
		entries[i].ID = int64(i + 1)
	}
	ledger.add(txn.Date, entries...)

	tb, err := svc.TrialBalance(ctx, 1, TrialBalanceParams{AsOf: jan31})
	require.NoError(t, err)
	assert.True(t, tb.IsBalanced)
	ar, ok := findRow(tb, acctAR)
	require.True(t, ok)
	assert.True(t, ar.DebitBalance.Equal(dec("470.00")))
	sales, ok := findRow(tb, acctSales)
	require.True(t, ok)
	assert.True(t, sales.CreditBalance.Equal(dec("435.00")))

	voidedAt := time.Date(2024, 2, 3, 0, 0, 0, 0, time.UTC)
	batch := uuid.New()
	reversals := make([]accounting.JournalEntry, 0, len(entries))
	for _, e := range entries {
		reversals = append(reversals, e.Reversal(batch, voidedAt, "VOID "+txn.Number))
	}
	require.NoError(t, accounting.ValidateEntries(reversals))
	ledger.add(txn.Date, reversals...)

	tb, err = svc.TrialBalance(ctx, 1, TrialBalanceParams{AsOf: jan31, IncludeZero: true})
	require.NoError(t, err)
	assert.True(t, tb.IsBalanced)
	for _, row := range tb.Rows {
		assert.True(t, row.DebitBalance.IsZero(), row.AccountCode)
		assert.True(t, row.CreditBalance.IsZero(), row.AccountCode)
	}

	pl, err := svc.ProfitAndLoss(ctx, 1, ProfitAndLossParams{Start: jan1, End: jan31})
	require.NoError(t, err)
	assert.True(t, pl.Income.Total.IsZero())
}

func TestProfitAndLossComparisonRunsBothWindows(t *testing.T) {
	ledger := scenarioLedger()
	ledger.add(time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
		accounting.JournalEntry{CompanyID: 1, AccountID: acctAR, Debit: dec("300")},
		accounting.JournalEntry{CompanyID: 1, AccountID: acctSales, Credit: dec("300")},
	)
	ledger.add(time.Date(2023, 12, 10, 0, 0, 0, 0, time.UTC),
		accounting.JournalEntry{CompanyID: 1, AccountID: acctAR, Debit: dec("200")},
		accounting.JournalEntry{CompanyID: 1, AccountID: acctSales, Credit: dec("200")},
	)
	svc := NewService(ledger, nil)
	decStart := time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC)
	decEnd := time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)
	pl, err := svc.ProfitAndLoss(context.Background(), 1, ProfitAndLossParams{
		Start: jan1, End: jan31, CompareStart: &decStart, CompareEnd: &decEnd,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), ledger.sumCalls.Load())
	assert.True(t, pl.Income.Total.Equal(dec("300")))
	require.NotNil(t, pl.Income.ComparisonTotal)
	assert.True(t, pl.Income.ComparisonTotal.Equal(dec("200")))
	assert.True(t, pl.Income.VariancePercentage.Equal(dec("50")))
}

func TestServiceValidatesParameters(t *testing.T) {
	ctx := context.Background()
	svc := NewService(scenarioLedger(), nil)

	_, err := svc.ProfitAndLoss(ctx, 1, ProfitAndLossParams{Start: jan31, End: jan1})
	require.ErrorIs(t, err, accounting.ErrInvalidDateRange)

	_, err = svc.ProfitAndLoss(ctx, 1, ProfitAndLossParams{Start: jan1, End: jan31, CompareStart: &jan1})
	require.ErrorIs(t, err, accounting.ErrInvalidDateRange)

	_, err = svc.BalanceSheet(ctx, 1, BalanceSheetParams{})
	require.ErrorIs(t, err, accounting.ErrInvalidDateRange)

	_, err = svc.Aging(ctx, 1, AgingParams{Kind: "sideways", AsOf: jan31})
	require.Error(t, err)

	_, err = svc.Aging(ctx, 1, AgingParams{Kind: AgingPayable, AsOf: jan31, Periods: []int{60, 30}})
	require.ErrorIs(t, err, ErrInvalidAgingPeriods)

	_, err = svc.CashFlow(ctx, 1, CashFlowParams{Start: jan1, End: jan31, Method: "sideways"})
	require.ErrorIs(t, err, ErrInvalidMethod)

	require.Error(t, svc.WithAgingPeriods([]int{-1}))
	require.NoError(t, svc.WithAgingPeriods([]int{15, 30}))
	report, err := svc.Aging(ctx, 1, AgingParams{Kind: AgingPayable, AsOf: jan31})
	require.NoError(t, err)
	assert.Equal(t, []int{15, 30}, report.Periods)
}

func TestCashFlowUsesDayBeforeStartForOpeningCash(t *testing.T) {
	cash := account(1000, "1000", "Cash", accounting.AccountTypeAsset)
	cash.Subtype = accounting.AccountSubtypeCash
	equity := account(3000, "3000", "Owner equity", accounting.AccountTypeEquity)
	ledger := &memLedger{accounts: []accounting.Account{cash, equity}}
	ledger.add(time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC),
		accounting.JournalEntry{CompanyID: 1, AccountID: 1000, Debit: dec("1000")},
		accounting.JournalEntry{CompanyID: 1, AccountID: 3000, Credit: dec("1000")},
	)
	ledger.add(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		accounting.JournalEntry{CompanyID: 1, AccountID: 1000, Debit: dec("250")},
		accounting.JournalEntry{CompanyID: 1, AccountID: 3000, Credit: dec("250")},
	)
	cf, err := NewService(ledger, nil).CashFlow(context.Background(), 1, CashFlowParams{Start: jan1, End: jan31})
	require.NoError(t, err)
	assert.Equal(t, CashFlowIndirect, cf.Method)
	assert.True(t, cf.BeginningCash.Equal(dec("1000")))
	assert.True(t, cf.Financing.Total.Equal(dec("250")))
	assert.True(t, cf.EndingCash.Equal(dec("1250")))
	assert.True(t, cf.IsReconciled)
}

type reportMetrics struct {
	mu       sync.Mutex
	observed map[string]int
	hits     int
	misses   int
}

func (m *reportMetrics) ObserveReport(report string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.observed == nil {
		m.observed = map[string]int{}
	}
	m.observed[report]++
}

func (m *reportMetrics) ReportCache(_ string, hit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hit {
		m.hits++
	} else {
		m.misses++
	}
}

func newCachedService(t *testing.T, ledger *memLedger) (*Service, *Cache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewCache(client, time.Minute)
	return NewService(ledger, cache), cache
}

func TestServiceCachesUntilBump(t *testing.T) {
	ctx := context.Background()
	ledger := scenarioLedger()
	ledger.add(jan1,
		accounting.JournalEntry{CompanyID: 1, AccountID: acctAR, Debit: dec("10")},
		accounting.JournalEntry{CompanyID: 1, AccountID: acctSales, Credit: dec("10")},
	)
	svc, cache := newCachedService(t, ledger)
	metrics := &reportMetrics{}
	svc.WithMetrics(metrics)
	params := TrialBalanceParams{AsOf: jan31}

	first, err := svc.TrialBalance(ctx, 1, params)
	require.NoError(t, err)
	second, err := svc.TrialBalance(ctx, 1, params)
	require.NoError(t, err)
	assert.Equal(t, int64(1), ledger.sumCalls.Load())
	assert.True(t, first.TotalDebits.Equal(second.TotalDebits))
	assert.Equal(t, 1, metrics.hits)
	assert.Equal(t, 1, metrics.misses)
	assert.Equal(t, 2, metrics.observed["trial_balance"])

	_, err = svc.TrialBalance(ctx, 1, TrialBalanceParams{AsOf: jan31, IncludeZero: true})
	require.NoError(t, err)
	assert.Equal(t, int64(2), ledger.sumCalls.Load(), "different parameters, different key")

	require.NoError(t, cache.Bump(ctx, 1))
	_, err = svc.TrialBalance(ctx, 1, params)
	require.NoError(t, err)
	assert.Equal(t, int64(3), ledger.sumCalls.Load())

	require.NoError(t, cache.Bump(ctx, 2))
	_, err = svc.TrialBalance(ctx, 1, params)
	require.NoError(t, err)
	assert.Equal(t, int64(3), ledger.sumCalls.Load(), "other company's bump leaves the cache intact")
}

func TestServiceDoesNotCacheFailures(t *testing.T) {
	ledger := scenarioLedger()
	ledger.failSums = errors.New("boom")
	svc, _ := newCachedService(t, ledger)

	_, err := svc.TrialBalance(context.Background(), 1, TrialBalanceParams{AsOf: jan31})
	require.EqualError(t, err, "boom")
	assert.Equal(t, int64(1), ledger.sumCalls.Load(), "build errors are not retried around the cache")

	ledger.failSums = nil
	_, err = svc.TrialBalance(context.Background(), 1, TrialBalanceParams{AsOf: jan31})
	require.NoError(t, err)
}

func TestCacheKeyDependsOnVersionAndParams(t *testing.T) {
	ctx := context.Background()
	_, cache := newCachedService(t, scenarioLedger())

	k1, err := cache.Key(ctx, 1, "trial_balance", TrialBalanceParams{AsOf: jan31})
	require.NoError(t, err)
	k2, err := cache.Key(ctx, 1, "trial_balance", TrialBalanceParams{AsOf: jan31})
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
	assert.Contains(t, k1, "reports:1:1:")

	k3, err := cache.Key(ctx, 1, "balance_sheet", TrialBalanceParams{AsOf: jan31})
	require.NoError(t, err)
	assert.NotEqual(t, k1, k3)

	require.NoError(t, cache.Bump(ctx, 1))
	k4, err := cache.Key(ctx, 1, "trial_balance", TrialBalanceParams{AsOf: jan31})
	require.NoError(t, err)
	assert.Contains(t, k4, "reports:1:2:")
}

func TestFetchJSONServesBuiltValueWhenStoreFails(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewCache(client, time.Minute)

	calls := 0
	var out map[string]int
	hit, err := cache.FetchJSON(ctx, "reports:1:1:abc", &out, func(context.Context) (any, error) {
		calls++
		mr.SetError("READONLY You can't write against a read only replica")
		return map[string]int{"rows": 3}, nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 3, out["rows"])

	mr.SetError("")
	assert.False(t, mr.Exists("reports:1:1:abc"))
}

func TestServiceBuildsOnceWhenCacheStoreFails(t *testing.T) {
	ctx := context.Background()
	ledger := scenarioLedger()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewCache(client, time.Minute)
	svc := NewService(ledger, cache)

	// Warm the version key so only the report write fails.
	_, err := cache.Version(ctx, 1)
	require.NoError(t, err)
	ledger.onSum = func() { mr.SetError("OOM command not allowed") }

	tb, err := svc.TrialBalance(ctx, 1, TrialBalanceParams{AsOf: jan31, IncludeZero: true})
	require.NoError(t, err)
	assert.Len(t, tb.Rows, 3)
	assert.Equal(t, int64(1), ledger.sumCalls.Load())
}
