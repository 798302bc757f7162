package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeUserRoleChanged   = "user.role_changed"
	EventTypeUserDeleted       = "user.deleted"
	EventTypeWorkflowTriggered = "workflow.triggered"
)

type UserRoleChangedEvent struct {
	BaseEvent
	UserID  string `json:"user_id"`
	OldRole string `json:"old_role"`
	NewRole string `json:"new_role"`
}

func NewUserRoleChangedEvent(userID, oldRole, newRole string) *UserRoleChangedEvent {
	return &UserRoleChangedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeUserRoleChanged,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"user_id":  userID,
				"old_role": oldRole,
				"new_role": newRole,
			},
		},
		UserID:  userID,
		OldRole: oldRole,
		NewRole: newRole,
	}
}

type UserDeletedEvent struct {
	BaseEvent
	UserID string `json:"user_id"`
}

func NewUserDeletedEvent(userID string) *UserDeletedEvent {
	return &UserDeletedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeUserDeleted,
			Timestamp: time.Now(),
			Data:      map[string]interface{}{"user_id": userID},
		},
		UserID: userID,
	}
}

type WorkflowTriggeredEvent struct {
	BaseEvent
	WorkflowID   string                 `json:"workflow_id"`
	WorkflowName string                 `json:"workflow_name"`
	TriggeredBy  string                 `json:"triggered_by"`
	Parameters   map[string]interface{} `json:"parameters"`
}

func NewWorkflowTriggeredEvent(workflowID, name, triggeredBy string, params map[string]interface{}) *WorkflowTriggeredEvent {
	return &WorkflowTriggeredEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeWorkflowTriggered,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"workflow_id":   workflowID,
				"workflow_name": name,
				"triggered_by":  triggeredBy,
				"parameters":    params,
			},
		},
		WorkflowID:   workflowID,
		WorkflowName: name,
		TriggeredBy:  triggeredBy,
		Parameters:   params,
	}
}

// UserIDOf extracts the affected user id from identity events.
func UserIDOf(event Event) (string, bool) {
	switch e := event.(type) {
	case *UserRoleChangedEvent:
		return e.UserID, true
	case *UserDeletedEvent:
		return e.UserID, true
	}
	if data, ok := event.Payload().(map[string]interface{}); ok {
		if id, ok := data["user_id"].(string); ok {
			return id, true
		}
	}
	return "", false
}
