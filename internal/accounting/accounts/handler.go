package accounts

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/tallybooks/tallybooks/internal/accounting"
	"github.com/tallybooks/tallybooks/internal/platform/httpx"
	"github.com/tallybooks/tallybooks/internal/shared"
)

// Handler exposes chart of accounts endpoints.
type Handler struct {
	service   *Service
	logger    *slog.Logger
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers account routes on a company-scoped router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/accounts", h.List)
	r.Post("/accounts", h.Create)
	r.Delete("/accounts/{accountID}", h.Deactivate)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	companyID, ok := shared.CompanyFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrForbidden)
		return
	}
	filter := ListFilter{
		IncludeInactive: r.URL.Query().Get("include_inactive") == "true",
		Type:            accounting.AccountType(strings.ToUpper(r.URL.Query().Get("type"))),
	}
	accounts, err := h.service.List(r.Context(), companyID, filter)
	if err != nil {
		h.logger.Error("list accounts", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"accounts": accounts})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	companyID, ok := shared.CompanyFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrForbidden)
		return
	}
	var in CreateInput
	if err := httpx.Bind(r, h.validator, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in.CompanyID = companyID
	account, err := h.service.Create(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, account)
}

func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	companyID, ok := shared.CompanyFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrForbidden)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "accountID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid account id")
		return
	}
	if err := h.service.Deactivate(r.Context(), companyID, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
