package web

import (
	"time"

	"github.com/dripline/dripline/pkg/models"
)

// PublishEventRequest is the body of POST /events.
type PublishEventRequest struct {
	Type         string         `json:"type"          validate:"required,domain_event"`
	SubscriberID string         `json:"subscriber_id" validate:"required"`
	UserID       string         `json:"user_id"`
	Lists        []string       `json:"lists,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
}

type PublishEventResponse struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// AutomationSummary is the list view of an automation, without its node map.
type AutomationSummary struct {
	ID          string                  `json:"id"`
	UserID      string                  `json:"user_id"`
	Name        string                  `json:"name"`
	Enabled     bool                    `json:"enabled"`
	Status      models.AutomationStatus `json:"status"`
	TriggerType string                  `json:"trigger_type"`
	Nodes       int                     `json:"nodes"`
	UpdatedAt   time.Time               `json:"updated_at"`
}

func SummarizeAutomation(a *models.Automation) AutomationSummary {
	return AutomationSummary{
		ID:          a.ID,
		UserID:      a.UserID,
		Name:        a.Name,
		Enabled:     a.Enabled,
		Status:      a.Status,
		TriggerType: a.Trigger.Type,
		Nodes:       len(a.Nodes),
		UpdatedAt:   a.UpdatedAt,
	}
}

type NodeTypeResponse struct {
	Type        models.NodeType `json:"type"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Schema      map[string]any  `json:"schema"`
}
