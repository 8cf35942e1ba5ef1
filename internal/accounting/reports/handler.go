package reports

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tallybooks/tallybooks/internal/platform/httpx"
	"github.com/tallybooks/tallybooks/internal/shared"
)

// Handler exposes the financial reports over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers report routes on a company-scoped router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/reports", func(r chi.Router) {
		r.Get("/profit-loss", h.profitLoss)
		r.Get("/balance-sheet", h.balanceSheet)
		r.Get("/trial-balance", h.trialBalance)
		r.Get("/aging/{kind}", h.aging)
		r.Get("/cash-flow", h.cashFlow)
	})
}

func (h *Handler) profitLoss(w http.ResponseWriter, r *http.Request) {
	q := query{r: r}
	params := ProfitAndLossParams{
		Start:        q.date("start"),
		End:          q.date("end"),
		CompareStart: q.optionalDate("compare_start"),
		CompareEnd:   q.optionalDate("compare_end"),
	}
	h.serve(w, r, q, "profit_loss", func(companyID int64) (any, func(io.Writer) error, error) {
		pl, err := h.service.ProfitAndLoss(r.Context(), companyID, params)
		return pl, func(w io.Writer) error { return WriteProfitAndLossCSV(w, pl) }, err
	})
}

func (h *Handler) balanceSheet(w http.ResponseWriter, r *http.Request) {
	q := query{r: r}
	params := BalanceSheetParams{AsOf: q.date("as_of"), CompareAsOf: q.optionalDate("compare_as_of")}
	h.serve(w, r, q, "balance_sheet", func(companyID int64) (any, func(io.Writer) error, error) {
		bs, err := h.service.BalanceSheet(r.Context(), companyID, params)
		return bs, func(w io.Writer) error { return WriteBalanceSheetCSV(w, bs) }, err
	})
}

func (h *Handler) trialBalance(w http.ResponseWriter, r *http.Request) {
	q := query{r: r}
	params := TrialBalanceParams{AsOf: q.date("as_of"), IncludeZero: q.bool("include_zero")}
	h.serve(w, r, q, "trial_balance", func(companyID int64) (any, func(io.Writer) error, error) {
		tb, err := h.service.TrialBalance(r.Context(), companyID, params)
		return tb, func(w io.Writer) error { return WriteTrialBalanceCSV(w, tb) }, err
	})
}

func (h *Handler) aging(w http.ResponseWriter, r *http.Request) {
	q := query{r: r}
	params := AgingParams{
		Kind:        AgingKind(chi.URLParam(r, "kind")),
		AsOf:        q.date("as_of"),
		Periods:     q.ints("periods"),
		IncludeZero: q.bool("include_zero"),
		EntityID:    q.optionalInt("entity_id"),
	}
	h.serve(w, r, q, "aging", func(companyID int64) (any, func(io.Writer) error, error) {
		report, err := h.service.Aging(r.Context(), companyID, params)
		return report, func(w io.Writer) error { return WriteAgingCSV(w, report) }, err
	})
}

func (h *Handler) cashFlow(w http.ResponseWriter, r *http.Request) {
	q := query{r: r}
	params := CashFlowParams{Start: q.date("start"), End: q.date("end"), Method: CashFlowMethod(r.URL.Query().Get("method"))}
	h.serve(w, r, q, "cash_flow", func(companyID int64) (any, func(io.Writer) error, error) {
		cf, err := h.service.CashFlow(r.Context(), companyID, params)
		return cf, func(w io.Writer) error { return WriteCashFlowCSV(w, cf) }, err
	})
}

// serve resolves the company, runs the report and writes it as JSON or, with
// format=csv, as a CSV attachment.
func (h *Handler) serve(w http.ResponseWriter, r *http.Request, q query, name string, run func(companyID int64) (any, func(io.Writer) error, error)) {
	companyID, ok := shared.CompanyFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrForbidden)
		return
	}
	if q.err != nil {
		httpx.RespondError(w, q.err)
		return
	}
	report, writeCSV, err := run(companyID)
	if err != nil {
		h.logger.Warn("build report", slog.String("report", name), slog.Int64("company_id", companyID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if strings.EqualFold(r.URL.Query().Get("format"), "csv") {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".csv"))
		w.WriteHeader(http.StatusOK)
		if err := writeCSV(w); err != nil {
			h.logger.Error("write report csv", slog.String("report", name), slog.Any("error", err))
		}
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

// query parses report parameters, keeping the first error.
type query struct {
	r   *http.Request
	err error
}

func (q *query) fail(key string) {
	if q.err == nil {
		q.err = fmt.Errorf("%w: invalid %s", shared.ErrValidation, key)
	}
}

func (q *query) date(key string) time.Time {
	raw := q.r.URL.Query().Get(key)
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		q.fail(key)
	}
	return t
}

func (q *query) optionalDate(key string) *time.Time {
	if q.r.URL.Query().Get(key) == "" {
		return nil
	}
	t := q.date(key)
	return &t
}

func (q *query) bool(key string) bool {
	raw := q.r.URL.Query().Get(key)
	if raw == "" {
		return false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		q.fail(key)
	}
	return v
}

func (q *query) optionalInt(key string) *int64 {
	raw := q.r.URL.Query().Get(key)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		q.fail(key)
		return nil
	}
	return &v
}

func (q *query) ints(key string) []int {
	raw := q.r.URL.Query().Get(key)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]int, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			q.fail(key)
			return nil
		}
		out = append(out, v)
	}
	return out
}
