package permission

import (
	"context"
	"net/http"

	"github.com/frahmantamala/assistant-guard/internal"
	"github.com/frahmantamala/assistant-guard/internal/transport"
)

type PermissionAuthorizer interface {
	HasPermission(ctx context.Context, userID string, p Permission) bool
	HasAny(ctx context.Context, userID string, perms ...Permission) bool
}

// RBACAuthorization turns permission checks into chi-compatible middleware.
// It expects the guard to have placed a Principal on the context.
type RBACAuthorization struct {
	*transport.BaseHandler
	authorizer PermissionAuthorizer
}

func NewRBACAuthorization(authorizer PermissionAuthorizer, base *transport.BaseHandler) *RBACAuthorization {
	return &RBACAuthorization{
		BaseHandler: base,
		authorizer:  authorizer,
	}
}

func (ra *RBACAuthorization) Check(next http.HandlerFunc, perms ...Permission) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := internal.PrincipalFromContext(r.Context())
		if !ok {
			ra.Logger.Warn("authorization check failed: principal not found in context")
			ra.WriteAppError(w, internal.ErrAuthRequired)
			return
		}

		if !ra.authorizer.HasAny(r.Context(), principal.UserID, perms...) {
			ra.Logger.WarnContext(r.Context(), "access denied: insufficient permissions",
				"user_id", principal.UserID,
				"role", principal.Role,
				"required_permissions", perms)
			ra.WriteAppError(w, internal.ErrForbidden)
			return
		}

		next.ServeHTTP(w, r)
	}
}

// Middleware requires at least one of perms.
func (ra *RBACAuthorization) Middleware(perms ...Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return ra.Check(next.ServeHTTP, perms...)
	}
}

func (ra *RBACAuthorization) RequireAdmin() func(http.Handler) http.Handler {
	return ra.Middleware(AdminPanel)
}
