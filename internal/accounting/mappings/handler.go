package mappings

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/tallybooks/tallybooks/internal/platform/httpx"
	"github.com/tallybooks/tallybooks/internal/shared"
)

// Handler exposes role assignment endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers role routes on a company-scoped router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/account-roles", h.list)
	r.Put("/account-roles/{role}", h.assign)
}

type assignRequest struct {
	AccountID int64 `json:"account_id" validate:"required,gt=0"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	companyID, ok := shared.CompanyFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrForbidden)
		return
	}
	roles, err := h.service.List(r.Context(), companyID)
	if err != nil {
		h.logger.Error("list account roles", slog.Int64("company_id", companyID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (h *Handler) assign(w http.ResponseWriter, r *http.Request) {
	companyID, ok := shared.CompanyFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrForbidden)
		return
	}
	var req assignRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	role := Role(strings.ToUpper(chi.URLParam(r, "role")))
	mapping, err := h.service.Assign(r.Context(), companyID, role, req.AccountID)
	if err != nil {
		h.logger.Warn("assign account role", slog.Int64("company_id", companyID), slog.String("role", string(role)), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, mapping)
}
