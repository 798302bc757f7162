package risk

import (
	"context"
	"net/http"
	"strconv"

	"github.com/frahmantamala/assistant-guard/internal"
	"github.com/frahmantamala/assistant-guard/internal/core/common/validation"
	"github.com/frahmantamala/assistant-guard/internal/transport"
)

const (
	// MaxCommandLength bounds submitted command text.
	MaxCommandLength = 4000
	MaxEventsPage    = 1000
)

type EngineAPI interface {
	Assess(ctx context.Context, req Request) Assessment
	Events(f EventFilter) []SecurityEvent
	Statistics() Statistics
}

type Handler struct {
	*transport.BaseHandler
	Engine EngineAPI
}

func NewHandler(baseHandler *transport.BaseHandler, engine EngineAPI) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Engine:      engine,
	}
}

type AssessRequest struct {
	Command string                 `json:"command"`
	Context map[string]interface{} `json:"context,omitempty"`
}

type EventsResponse struct {
	Events []SecurityEvent `json:"events"`
	Total  int             `json:"total"`
}

func (h *Handler) Assess(w http.ResponseWriter, r *http.Request) {
	var req AssessRequest
	if err := h.DecodeJSON(r, &req); err != nil {
		h.WriteAppError(w, err)
		return
	}
	if err := validation.ValidateCommand(req.Command, MaxCommandLength); err != nil {
		h.WriteAppError(w, err)
		return
	}

	assessment := h.Engine.Assess(r.Context(), Request{
		Command:    req.Command,
		UserID:     internal.UserIDFromContext(r.Context()),
		ClientAddr: transport.ClientAddr(r),
		Context:    req.Context,
	})
	h.WriteJSON(w, http.StatusOK, assessment)
}

func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := EventFilter{UserID: q.Get("user_id")}
	if raw := q.Get("risk_level"); raw != "" {
		level, err := ParseLevel(raw)
		if err != nil {
			h.WriteAppError(w, internal.NewValidationFieldError("risk_level", err.Error(), internal.ErrCodeValidationFailed))
			return
		}
		filter.Level = level
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			h.WriteAppError(w, internal.NewValidationFieldError("limit", "limit must be a positive integer", internal.ErrCodeValidationFailed))
			return
		}
		if appErr := validation.ValidatePageLimit(limit, MaxEventsPage); appErr != nil {
			h.WriteAppError(w, appErr)
			return
		}
		filter.Limit = limit
	}

	events := h.Engine.Events(filter)
	h.WriteJSON(w, http.StatusOK, EventsResponse{Events: events, Total: len(events)})
}

func (h *Handler) Statistics(w http.ResponseWriter, r *http.Request) {
	h.WriteJSON(w, http.StatusOK, h.Engine.Statistics())
}
