package shared

import "context"

type userContextKey struct{}

type companyContextKey struct{}

// ContextWithUser stores the calling user id in context.
func ContextWithUser(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userContextKey{}, userID)
}

// UserFromContext extracts the calling user id from context.
func UserFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userContextKey{}).(int64)
	return id, ok && id > 0
}

// ContextWithCompany stores the tenant scope in context.
func ContextWithCompany(ctx context.Context, companyID int64) context.Context {
	return context.WithValue(ctx, companyContextKey{}, companyID)
}

// CompanyFromContext extracts the tenant scope from context.
func CompanyFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(companyContextKey{}).(int64)
	return id, ok && id > 0
}
