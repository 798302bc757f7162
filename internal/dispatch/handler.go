package dispatch

import (
	"context"
	"net/http"

	"github.com/frahmantamala/assistant-guard/internal"
	"github.com/frahmantamala/assistant-guard/internal/transport"
)

type DispatcherAPI interface {
	Available(ctx context.Context, userID string) []CapabilityInfo
	Execute(ctx context.Context, req Request) (Result, error)
}

type Handler struct {
	*transport.BaseHandler
	Dispatcher DispatcherAPI
}

func NewHandler(baseHandler *transport.BaseHandler, dispatcher DispatcherAPI) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Dispatcher:  dispatcher,
	}
}

type AvailableResponse struct {
	Commands []CapabilityInfo `json:"commands"`
	Total    int              `json:"total"`
}

func (h *Handler) Available(w http.ResponseWriter, r *http.Request) {
	userID := internal.UserIDFromContext(r.Context())
	commands := h.Dispatcher.Available(r.Context(), userID)
	h.WriteJSON(w, http.StatusOK, AvailableResponse{Commands: commands, Total: len(commands)})
}

func (h *Handler) Execute(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := h.DecodeJSON(r, &req); err != nil {
		h.WriteAppError(w, err)
		return
	}
	if req.Command == "" {
		h.WriteAppError(w, internal.NewValidationFieldError("command", "command is required", internal.ErrCodeValidationFailed))
		return
	}
	req.UserID = internal.UserIDFromContext(r.Context())
	req.ClientAddr = transport.ClientAddr(r)

	result, err := h.Dispatcher.Execute(r.Context(), req)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, result)
}
