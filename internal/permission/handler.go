package permission

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi"

	"github.com/frahmantamala/assistant-guard/internal"
	"github.com/frahmantamala/assistant-guard/internal/transport"
)

type ServiceAPI interface {
	Summary(ctx context.Context, userID string) Summary
	Grant(ctx context.Context, userID string, p Permission, granter string) (bool, error)
	Revoke(ctx context.Context, userID string, p Permission, revoker string) (bool, error)
	ChangeRole(ctx context.Context, userID string, role Role, changer string) (bool, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(baseHandler *transport.BaseHandler, service ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Service:     service,
	}
}

type GrantRequest struct {
	Permission string `json:"permission"`
}

type RoleRequest struct {
	Role string `json:"role"`
}

type RolesResponse struct {
	Roles []RoleInfo `json:"roles"`
}

type PermissionsResponse struct {
	Version     int              `json:"version"`
	Permissions []PermissionInfo `json:"permissions"`
}

func (h *Handler) ListRoles(w http.ResponseWriter, r *http.Request) {
	h.WriteJSON(w, http.StatusOK, RolesResponse{Roles: AllRoleInfo()})
}

func (h *Handler) ListPermissions(w http.ResponseWriter, r *http.Request) {
	h.WriteJSON(w, http.StatusOK, PermissionsResponse{Version: Version, Permissions: AllInfo()})
}

func (h *Handler) MyPermissions(w http.ResponseWriter, r *http.Request) {
	principal, ok := internal.PrincipalFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, internal.ErrAuthRequired)
		return
	}
	h.WriteJSON(w, http.StatusOK, h.Service.Summary(r.Context(), principal.UserID))
}

func (h *Handler) GrantPermission(w http.ResponseWriter, r *http.Request) {
	principal, ok := internal.PrincipalFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, internal.ErrAuthRequired)
		return
	}

	var req GrantRequest
	if err := h.DecodeJSON(r, &req); err != nil {
		h.WriteAppError(w, err)
		return
	}
	p, err := Parse(req.Permission)
	if err != nil {
		h.WriteAppError(w, internal.NewValidationFieldError("permission", err.Error(), internal.ErrCodeValidationFailed))
		return
	}

	target := chi.URLParam(r, "id")
	granted, err := h.Service.Grant(r.Context(), target, p, principal.UserID)
	h.writeOverrideResult(w, granted, err, map[string]interface{}{
		"user_id":    target,
		"permission": p.String(),
		"granted":    true,
	})
}

func (h *Handler) RevokePermission(w http.ResponseWriter, r *http.Request) {
	principal, ok := internal.PrincipalFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, internal.ErrAuthRequired)
		return
	}

	p, err := Parse(chi.URLParam(r, "permission"))
	if err != nil {
		h.WriteAppError(w, internal.NewValidationFieldError("permission", err.Error(), internal.ErrCodeValidationFailed))
		return
	}

	target := chi.URLParam(r, "id")
	revoked, err := h.Service.Revoke(r.Context(), target, p, principal.UserID)
	h.writeOverrideResult(w, revoked, err, map[string]interface{}{
		"user_id":    target,
		"permission": p.String(),
		"revoked":    true,
	})
}

func (h *Handler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	principal, ok := internal.PrincipalFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, internal.ErrAuthRequired)
		return
	}

	var req RoleRequest
	if err := h.DecodeJSON(r, &req); err != nil {
		h.WriteAppError(w, err)
		return
	}
	role, err := ParseRole(req.Role)
	if err != nil {
		h.WriteAppError(w, internal.NewValidationFieldError("role", err.Error(), internal.ErrCodeInvalidRole))
		return
	}

	target := chi.URLParam(r, "id")
	changed, err := h.Service.ChangeRole(r.Context(), target, role, principal.UserID)
	h.writeOverrideResult(w, changed, err, map[string]interface{}{
		"user_id": target,
		"role":    role.String(),
	})
}

func (h *Handler) writeOverrideResult(w http.ResponseWriter, ok bool, err error, body map[string]interface{}) {
	if err != nil {
		if _, isApp := internal.IsAppError(err); isApp {
			h.WriteAppError(w, err)
			return
		}
		if errors.Is(err, ErrUnknownRole) {
			h.WriteAppError(w, internal.NewValidationError(err.Error(), internal.ErrCodeInvalidRole))
			return
		}
		h.WriteAppError(w, internal.NewInternalError("failed to update permissions", err))
		return
	}
	if !ok {
		h.WriteAppError(w, internal.ErrForbidden)
		return
	}
	h.WriteJSON(w, http.StatusOK, body)
}
