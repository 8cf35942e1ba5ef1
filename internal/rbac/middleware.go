package rbac

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/tallybooks/tallybooks/internal/platform/httpx"
	"github.com/tallybooks/tallybooks/internal/shared"
)

// UserHeader carries the caller's id as asserted by the upstream gateway.
const UserHeader = "X-User-ID"

type membershipKey struct{}

// MembershipFromContext returns the membership resolved by RequireCompanyAccess.
func MembershipFromContext(ctx context.Context) (Membership, bool) {
	m, ok := ctx.Value(membershipKey{}).(Membership)
	return m, ok
}

// Middleware wires company access checks for HTTP handlers.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// RequireCompanyAccess admits the request only when the caller belongs to the
// company named by the {companyID} path segment, then stores user, company,
// and membership on the context.
func (m Middleware) RequireCompanyAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := currentUserID(r)
		if !ok {
			httpx.RespondError(w, shared.ErrUnauthorized)
			return
		}
		companyID, err := strconv.ParseInt(chi.URLParam(r, "companyID"), 10, 64)
		if err != nil || companyID <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid companyID")
			return
		}
		membership, ok, err := m.Service.Membership(r.Context(), userID, companyID)
		if err != nil {
			if m.Logger != nil {
				m.Logger.Error("rbac company access", slog.Int64("user_id", userID), slog.Int64("company_id", companyID), slog.Any("error", err))
			}
			httpx.RespondError(w, err)
			return
		}
		if !ok {
			httpx.RespondError(w, shared.ErrForbidden)
			return
		}
		ctx := shared.ContextWithUser(r.Context(), userID)
		ctx = shared.ContextWithCompany(ctx, companyID)
		ctx = context.WithValue(ctx, membershipKey{}, membership)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireWriter rejects mutating requests from roles that may only read.
func (m Middleware) RequireWriter(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}
		membership, ok := MembershipFromContext(r.Context())
		if !ok || !membership.Role.CanWrite() {
			httpx.RespondError(w, shared.ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func currentUserID(r *http.Request) (int64, bool) {
	raw := strings.TrimSpace(r.Header.Get(UserHeader))
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
