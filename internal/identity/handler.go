package identity

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	"github.com/frahmantamala/assistant-guard/internal"
	"github.com/frahmantamala/assistant-guard/internal/core/common/validation"
	"github.com/frahmantamala/assistant-guard/internal/transport"
)

type ServiceAPI interface {
	RegisterUser(ctx context.Context, dto CreateUserDTO, actor string) (*UserResponse, error)
	Authenticate(ctx context.Context, dto LoginDTO) (*LoginResponse, error)
	Logout(ctx context.Context, userID, token string) bool
	GetUser(ctx context.Context, id string) (*UserResponse, error)
	UpdateUser(ctx context.Context, id string, dto UpdateUserDTO, actor string) (*UserResponse, error)
	DeleteUser(ctx context.Context, id, actor string) (bool, error)
	GetActivity(ctx context.Context, userID string, limit int) ([]Activity, error)
	ListUsers(ctx context.Context, includeInactive bool) ([]*UserResponse, error)
	Stats(ctx context.Context) (*Stats, error)
	ExportUser(ctx context.Context, id string) (*Export, error)
}

// LoginAttempts is fed by the login endpoint so repeated bad passwords
// count toward the client's lockout.
type LoginAttempts interface {
	RecordFailure(ctx context.Context, key string)
	RecordSuccess(ctx context.Context, key string)
}

type Handler struct {
	*transport.BaseHandler
	Service  ServiceAPI
	Attempts LoginAttempts
}

func NewHandler(baseHandler *transport.BaseHandler, service ServiceAPI, attempts LoginAttempts) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Service:     service,
		Attempts:    attempts,
	}
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	addr := transport.ClientAddr(r)
	ctx := internal.ContextWithClientAddr(r.Context(), addr)

	var dto LoginDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteAppError(w, err)
		return
	}

	resp, err := h.Service.Authenticate(ctx, dto)
	if err != nil {
		if errors.Is(err, internal.ErrInvalidCredentials) && h.Attempts != nil {
			h.Attempts.RecordFailure(ctx, addr)
		}
		h.Logger.WarnContext(ctx, "login failed", "client_addr", addr)
		h.WriteAppError(w, err)
		return
	}
	if h.Attempts != nil {
		h.Attempts.RecordSuccess(ctx, addr)
	}

	h.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	principal, ok := internal.PrincipalFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, internal.ErrAuthRequired)
		return
	}
	token := internal.TokenFromContext(r.Context())
	revoked := h.Service.Logout(r.Context(), principal.UserID, token)
	h.WriteJSON(w, http.StatusOK, map[string]bool{"revoked": revoked})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	principal, ok := internal.PrincipalFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, internal.ErrAuthRequired)
		return
	}
	user, err := h.Service.GetUser(r.Context(), principal.UserID)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, user)
}

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	includeInactive, _ := strconv.ParseBool(r.URL.Query().Get("include_inactive"))
	users, err := h.Service.ListUsers(r.Context(), includeInactive)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, UsersResponse{Users: users, Total: len(users)})
}

func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var dto CreateUserDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteAppError(w, err)
		return
	}
	user, err := h.Service.RegisterUser(r.Context(), dto, internal.UserIDFromContext(r.Context()))
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, user)
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.Service.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, user)
}

func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var dto UpdateUserDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteAppError(w, err)
		return
	}
	user, err := h.Service.UpdateUser(r.Context(), chi.URLParam(r, "id"), dto, internal.UserIDFromContext(r.Context()))
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, user)
}

func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	actor := internal.UserIDFromContext(r.Context())
	if id == actor {
		h.WriteAppError(w, internal.NewValidationError("cannot delete your own account", internal.ErrCodeValidationFailed))
		return
	}
	deleted, err := h.Service.DeleteUser(r.Context(), id, actor)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	if !deleted {
		h.WriteAppError(w, internal.ErrUserNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetActivity serves both /users/{id}/activity and /me/activity.
func (h *Handler) GetActivity(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if userID == "" {
		userID = internal.UserIDFromContext(r.Context())
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if appErr := validation.ValidatePageLimit(limit, DefaultActivityLimit); appErr != nil {
		h.WriteAppError(w, appErr)
		return
	}
	activity, err := h.Service.GetActivity(r.Context(), userID, limit)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, ActivityResponse{UserID: userID, Activity: activity})
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Service.Stats(r.Context())
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, stats)
}

func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if userID == "" {
		userID = internal.UserIDFromContext(r.Context())
	}
	export, err := h.Service.ExportUser(r.Context(), userID)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, export)
}
