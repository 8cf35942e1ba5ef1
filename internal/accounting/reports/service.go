package reports

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tallybooks/tallybooks/internal/accounting"
	"github.com/tallybooks/tallybooks/internal/shared"
)

// MetricsRecorder observes report builds.
type MetricsRecorder interface {
	ObserveReport(report string, elapsed time.Duration)
	ReportCache(report string, hit bool)
}

// Service builds financial reports from the posted ledger.
type Service struct {
	repo    Repository
	cache   *Cache
	metrics MetricsRecorder
	logger  *slog.Logger
	periods []int
}

// NewService constructs the report service. A nil cache computes every
// report directly.
func NewService(repo Repository, cache *Cache) *Service {
	return &Service{
		repo:    repo,
		cache:   cache,
		logger:  slog.Default(),
		periods: DefaultAgingPeriods,
	}
}

// WithMetrics wires report timing and cache counters.
func (s *Service) WithMetrics(metrics MetricsRecorder) { s.metrics = metrics }

// WithLogger overrides the logger.
func (s *Service) WithLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// WithAgingPeriods overrides the default aging buckets.
func (s *Service) WithAgingPeriods(periods []int) error {
	if err := ValidatePeriods(periods); err != nil {
		return err
	}
	s.periods = append([]int(nil), periods...)
	return nil
}

// AgingPeriods returns the configured default aging buckets.
func (s *Service) AgingPeriods() []int {
	return append([]int(nil), s.periods...)
}

// ProfitAndLossParams selects the reporting and optional comparison periods.
type ProfitAndLossParams struct {
	Start        time.Time  `json:"start"`
	End          time.Time  `json:"end"`
	CompareStart *time.Time `json:"compare_start,omitempty"`
	CompareEnd   *time.Time `json:"compare_end,omitempty"`
}

// BalanceSheetParams selects the as-of date and optional comparison date.
type BalanceSheetParams struct {
	AsOf        time.Time  `json:"as_of"`
	CompareAsOf *time.Time `json:"compare_as_of,omitempty"`
}

// TrialBalanceParams selects the as-of date.
type TrialBalanceParams struct {
	AsOf        time.Time `json:"as_of"`
	IncludeZero bool      `json:"include_zero"`
}

// CashFlowParams selects the period and presentation method.
type CashFlowParams struct {
	Start  time.Time      `json:"start"`
	End    time.Time      `json:"end"`
	Method CashFlowMethod `json:"method"`
}

// ProfitAndLoss builds the income statement, aggregating the comparison
// period concurrently when requested.
func (s *Service) ProfitAndLoss(ctx context.Context, companyID int64, p ProfitAndLossParams) (ProfitAndLoss, error) {
	if err := accounting.ValidateDateRange(p.Start, p.End); err != nil {
		return ProfitAndLoss{}, err
	}
	compare := p.CompareStart != nil || p.CompareEnd != nil
	if compare {
		if p.CompareStart == nil || p.CompareEnd == nil {
			return ProfitAndLoss{}, fmt.Errorf("%w: comparison needs both start and end", accounting.ErrInvalidDateRange)
		}
		if err := accounting.ValidateDateRange(*p.CompareStart, *p.CompareEnd); err != nil {
			return ProfitAndLoss{}, err
		}
	}
	return cached(ctx, s, companyID, "profit_loss", p, func(ctx context.Context) (ProfitAndLoss, error) {
		windows := []Window{PeriodWindow(p.Start, p.End)}
		if compare {
			windows = append(windows, PeriodWindow(*p.CompareStart, *p.CompareEnd))
		}
		sets, err := s.balances(ctx, companyID, windows...)
		if err != nil {
			return ProfitAndLoss{}, err
		}
		pl := BuildProfitAndLoss(p.Start, p.End, sets[0])
		if compare {
			pl.Compare(BuildProfitAndLoss(*p.CompareStart, *p.CompareEnd, sets[1]))
		}
		return pl, nil
	})
}

// BalanceSheet builds the balance sheet as of a date.
func (s *Service) BalanceSheet(ctx context.Context, companyID int64, p BalanceSheetParams) (BalanceSheet, error) {
	if p.AsOf.IsZero() {
		return BalanceSheet{}, fmt.Errorf("%w: as_of required", accounting.ErrInvalidDateRange)
	}
	return cached(ctx, s, companyID, "balance_sheet", p, func(ctx context.Context) (BalanceSheet, error) {
		windows := []Window{AsOfWindow(p.AsOf)}
		if p.CompareAsOf != nil {
			windows = append(windows, AsOfWindow(*p.CompareAsOf))
		}
		sets, err := s.balances(ctx, companyID, windows...)
		if err != nil {
			return BalanceSheet{}, err
		}
		bs := BuildBalanceSheet(p.AsOf, sets[0])
		if p.CompareAsOf != nil {
			bs.Compare(BuildBalanceSheet(*p.CompareAsOf, sets[1]))
		}
		return bs, nil
	})
}

// TrialBalance lists every active account's as-of balance.
func (s *Service) TrialBalance(ctx context.Context, companyID int64, p TrialBalanceParams) (TrialBalance, error) {
	if p.AsOf.IsZero() {
		return TrialBalance{}, fmt.Errorf("%w: as_of required", accounting.ErrInvalidDateRange)
	}
	return cached(ctx, s, companyID, "trial_balance", p, func(ctx context.Context) (TrialBalance, error) {
		sets, err := s.balances(ctx, companyID, AsOfWindow(p.AsOf))
		if err != nil {
			return TrialBalance{}, err
		}
		return BuildTrialBalance(p.AsOf, sets[0], p.IncludeZero), nil
	})
}

// Aging buckets open invoices or bills by days overdue.
func (s *Service) Aging(ctx context.Context, companyID int64, p AgingParams) (AgingReport, error) {
	if !p.Kind.Valid() {
		return AgingReport{}, fmt.Errorf("%w: unknown aging kind %q", shared.ErrValidation, p.Kind)
	}
	if p.AsOf.IsZero() {
		return AgingReport{}, fmt.Errorf("%w: as_of required", accounting.ErrInvalidDateRange)
	}
	if len(p.Periods) == 0 {
		p.Periods = s.AgingPeriods()
	}
	if err := ValidatePeriods(p.Periods); err != nil {
		return AgingReport{}, err
	}
	return cached(ctx, s, companyID, "aging", p, func(ctx context.Context) (AgingReport, error) {
		var docs []OpenDocument
		var parties []Counterparty
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			docs, err = s.repo.OpenDocuments(gctx, companyID, p.Kind, p.AsOf)
			return err
		})
		if p.IncludeZero {
			g.Go(func() error {
				var err error
				parties, err = s.repo.Counterparties(gctx, companyID, p.Kind)
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return AgingReport{}, err
		}
		return BuildAging(p, docs, parties), nil
	})
}

// CashFlow derives the statement of cash flows for a period.
func (s *Service) CashFlow(ctx context.Context, companyID int64, p CashFlowParams) (CashFlow, error) {
	if err := accounting.ValidateDateRange(p.Start, p.End); err != nil {
		return CashFlow{}, err
	}
	if p.Method == "" {
		p.Method = CashFlowIndirect
	}
	if p.Method != CashFlowIndirect && p.Method != CashFlowDirect {
		return CashFlow{}, ErrInvalidMethod
	}
	return cached(ctx, s, companyID, "cash_flow", p, func(ctx context.Context) (CashFlow, error) {
		sets, err := s.balances(ctx, companyID,
			PeriodWindow(p.Start, p.End),
			AsOfWindow(p.Start.AddDate(0, 0, -1)),
			AsOfWindow(p.End),
		)
		if err != nil {
			return CashFlow{}, err
		}
		return BuildCashFlow(CashFlowInput{
			Start:     p.Start,
			End:       p.End,
			Method:    p.Method,
			Period:    sets[0],
			Beginning: sets[1],
			Ending:    sets[2],
		}), nil
	})
}

// Companies lists every company, for jobs that sweep the whole ledger.
func (s *Service) Companies(ctx context.Context) ([]int64, error) {
	return s.repo.Companies(ctx)
}

// balances loads active accounts once and sums each window concurrently.
func (s *Service) balances(ctx context.Context, companyID int64, windows ...Window) ([][]AccountBalance, error) {
	g, gctx := errgroup.WithContext(ctx)
	var accounts []accounting.Account
	g.Go(func() error {
		var err error
		accounts, err = s.repo.ActiveAccounts(gctx, companyID)
		return err
	})
	sums := make([]map[int64]Sums, len(windows))
	for i, w := range windows {
		g.Go(func() error {
			var err error
			sums[i], err = s.repo.SumEntries(gctx, companyID, w)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make([][]AccountBalance, len(windows))
	for i := range windows {
		out[i] = JoinBalances(accounts, sums[i])
	}
	return out, nil
}

// buildError marks a failure of the report build itself, as opposed to the
// cache around it.
type buildError struct{ err error }

func (e *buildError) Error() string { return e.err.Error() }
func (e *buildError) Unwrap() error { return e.err }

// cached serves a report from the cache, building it on a miss. Cache
// failures fall back to a direct build.
func cached[T any](ctx context.Context, s *Service, companyID int64, report string, params any, build func(context.Context) (T, error)) (T, error) {
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveReport(report, time.Since(start))
		}
	}()
	if s.cache == nil {
		return build(ctx)
	}
	key, err := s.cache.Key(ctx, companyID, report, params)
	if err == nil {
		var out T
		var hit bool
		hit, err = s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
			value, err := build(ctx)
			if err != nil {
				return nil, &buildError{err: err}
			}
			return value, nil
		})
		if err == nil {
			if s.metrics != nil {
				s.metrics.ReportCache(report, hit)
			}
			return out, nil
		}
		var be *buildError
		if errors.As(err, &be) {
			var zero T
			return zero, be.err
		}
		if ctx.Err() != nil {
			var zero T
			return zero, ctx.Err()
		}
	}
	s.logger.Warn("report cache unavailable", slog.String("report", report), slog.Int64("company_id", companyID), slog.Any("error", err))
	return build(ctx)
}
