package posting

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/tallybooks/tallybooks/internal/platform/httpx"
	"github.com/tallybooks/tallybooks/internal/shared"
)

// Handler exposes the posting engine over HTTP.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers posting routes on a company-scoped router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/transactions/{transactionID}/post", h.post)
	r.Post("/transactions/{transactionID}/void", h.void)
	r.Delete("/transactions/{transactionID}", h.delete)
	r.Post("/payments/{paymentID}/applications", h.applyPayment)
}

// postRequest carries an optional posting_date. It dates the journal entries
// only; reports aggregate on the transaction's own date.
type postRequest struct {
	PostingDate string `json:"posting_date" validate:"omitempty,datetime=2006-01-02"`
}

type voidRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type applyRequest struct {
	Applications []ApplicationInput `json:"applications" validate:"required,min=1,dive"`
}

func (h *Handler) post(w http.ResponseWriter, r *http.Request) {
	companyID, actorID, id, ok := h.scope(w, r, "transactionID")
	if !ok {
		return
	}
	var req postRequest
	if err := h.bindOptional(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in := PostInput{CompanyID: companyID, TransactionID: id, ActorID: actorID}
	if req.PostingDate != "" {
		date, _ := time.Parse(time.DateOnly, req.PostingDate)
		in.PostingDate = &date
	}
	res, err := h.service.Post(r.Context(), in)
	if err != nil {
		h.logger.Warn("post transaction", slog.Int64("company_id", companyID), slog.Int64("transaction_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) void(w http.ResponseWriter, r *http.Request) {
	companyID, actorID, id, ok := h.scope(w, r, "transactionID")
	if !ok {
		return
	}
	var req voidRequest
	if err := h.bindOptional(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.Void(r.Context(), VoidInput{CompanyID: companyID, TransactionID: id, Reason: req.Reason, ActorID: actorID})
	if err != nil {
		h.logger.Warn("void transaction", slog.Int64("company_id", companyID), slog.Int64("transaction_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	companyID, actorID, id, ok := h.scope(w, r, "transactionID")
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), DeleteInput{CompanyID: companyID, TransactionID: id, ActorID: actorID}); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) applyPayment(w http.ResponseWriter, r *http.Request) {
	companyID, actorID, id, ok := h.scope(w, r, "paymentID")
	if !ok {
		return
	}
	var req applyRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	payment, err := h.service.ApplyPayment(r.Context(), ApplyInput{
		CompanyID:      companyID,
		PaymentID:      id,
		ActorID:        actorID,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
		Applications:   req.Applications,
	})
	if err != nil {
		h.logger.Warn("apply payment", slog.Int64("company_id", companyID), slog.Int64("payment_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, payment)
}

// scope extracts company, actor and the numeric path parameter, writing the
// error response itself when any is missing.
func (h *Handler) scope(w http.ResponseWriter, r *http.Request, param string) (companyID, actorID, id int64, ok bool) {
	companyID, ok = shared.CompanyFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrForbidden)
		return 0, 0, 0, false
	}
	actorID, _ = shared.UserFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid "+param)
		return 0, 0, 0, false
	}
	return companyID, actorID, id, true
}

// bindOptional binds a body that may be absent.
func (h *Handler) bindOptional(r *http.Request, target any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return h.validator.Struct(target)
	}
	err := httpx.Bind(r, h.validator, target)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
