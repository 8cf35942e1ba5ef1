package audit

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/tallybooks/tallybooks/internal/platform/httpx"
	"github.com/tallybooks/tallybooks/internal/shared"
)

const (
	exportRateLimit  = 10
	exportRateWindow = time.Minute
)

// TimelineService is the contract the handler needs.
type TimelineService interface {
	Timeline(ctx context.Context, companyID int64, f Filters) (Page, error)
	Export(ctx context.Context, companyID int64, f Filters) ([]Entry, error)
}

// Handler exposes the audit timeline over HTTP.
type Handler struct {
	logger  *slog.Logger
	service TimelineService
}

// NewHandler builds an audit Handler.
func NewHandler(logger *slog.Logger, service TimelineService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers the timeline and its rate-limited CSV export.
func (h *Handler) MountRoutes(r chi.Router) {
	limiter := httprate.Limit(exportRateLimit, exportRateWindow,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "export rate limit exceeded")
		}),
	)
	r.Get("/audit-logs", h.timeline)
	r.With(limiter).Get("/audit-logs/export.csv", h.export)
}

func rateLimitKey(r *http.Request) (string, error) {
	if user, ok := shared.UserFromContext(r.Context()); ok {
		return "user:" + strconv.FormatInt(user, 10), nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	companyID, ok := shared.CompanyFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrForbidden)
		return
	}
	f, err := parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	page, err := h.service.Timeline(r.Context(), companyID, f)
	if err != nil {
		h.logger.Warn("audit timeline", slog.Int64("company_id", companyID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	companyID, ok := shared.CompanyFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrForbidden)
		return
	}
	f, err := parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entries, err := h.service.Export(r.Context(), companyID, f)
	if err != nil {
		h.logger.Warn("audit export", slog.Int64("company_id", companyID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="audit-logs.csv"`)
	if err := WriteCSV(w, entries); err != nil {
		h.logger.Error("encode audit csv", slog.Any("error", err))
	}
}

// WriteCSV renders entries as CSV with a header row.
func WriteCSV(w io.Writer, entries []Entry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"at", "actor_id", "action", "entity", "entity_id", "meta"}); err != nil {
		return err
	}
	for _, e := range entries {
		actor := ""
		if e.ActorID != nil {
			actor = strconv.FormatInt(*e.ActorID, 10)
		}
		meta := ""
		if len(e.Meta) > 0 {
			raw, err := json.Marshal(e.Meta)
			if err != nil {
				return err
			}
			meta = string(raw)
		}
		if err := cw.Write([]string{e.At.UTC().Format(time.RFC3339), actor, e.Action, e.Entity, e.EntityID, meta}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func parseFilters(r *http.Request) (Filters, error) {
	q := r.URL.Query()
	f := Filters{
		Entity:   q.Get("entity"),
		EntityID: q.Get("entity_id"),
		Action:   q.Get("action"),
	}
	var err error
	if f.From, err = parseTime(q.Get("from")); err != nil {
		return Filters{}, fmt.Errorf("%w: from: %v", shared.ErrValidation, err)
	}
	if f.To, err = parseTime(q.Get("to")); err != nil {
		return Filters{}, fmt.Errorf("%w: to: %v", shared.ErrValidation, err)
	}
	for name, dst := range map[string]*int{"page": &f.Page, "page_size": &f.PageSize} {
		if raw := q.Get(name); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil || v <= 0 {
				return Filters{}, fmt.Errorf("%w: %s must be a positive integer", shared.ErrValidation, name)
			}
			*dst = v
		}
	}
	if raw := q.Get("actor_id"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v <= 0 {
			return Filters{}, fmt.Errorf("%w: actor_id must be a positive integer", shared.ErrValidation)
		}
		f.ActorID = v
	}
	return f, nil
}

// parseTime accepts RFC3339 timestamps or plain dates.
func parseTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, raw)
}
