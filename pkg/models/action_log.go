package models

import (
	"time"

	"github.com/google/uuid"
)

type ActionStatus string

const (
	ActionStatusSuccess ActionStatus = "success"
	ActionStatusFailure ActionStatus = "failure"
)

// ActionLog is an append-only audit record of one node action.
type ActionLog struct {
	ID           string         `bson:"_id"              json:"id"`
	AutomationID string         `bson:"automation_id"    json:"automation_id"`
	NodeID       string         `bson:"node_id"          json:"node_id"`
	SubscriberID string         `bson:"subscriber_id"    json:"subscriber_id"`
	Status       ActionStatus   `bson:"status"           json:"status"`
	Input        map[string]any `bson:"input,omitempty"  json:"input,omitempty"`
	Output       map[string]any `bson:"output,omitempty" json:"output,omitempty"`
	Error        string         `bson:"error,omitempty"  json:"error,omitempty"`
	CreatedAt    time.Time      `bson:"created_at"       json:"created_at"`
}

func NewActionLog(automationID, nodeID, subscriberID string, status ActionStatus, now time.Time) *ActionLog {
	return &ActionLog{
		ID:           uuid.NewString(),
		AutomationID: automationID,
		NodeID:       nodeID,
		SubscriberID: subscriberID,
		Status:       status,
		Input:        map[string]any{},
		Output:       map[string]any{},
		CreatedAt:    now,
	}
}

func (l *ActionLog) Validate() error {
	switch l.Status {
	case ActionStatusSuccess, ActionStatusFailure:
		return nil
	default:
		return ErrInvalidActionStatus
	}
}
