// Package delay implements the DELAY node, which suspends the run until the
// scheduler resumes it at the next node.
package delay

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dripline/dripline/pkg/models"
	"github.com/dripline/dripline/pkg/protocol"
)

// Scheduler persists a paused continuation.
type Scheduler interface {
	Schedule(ctx context.Context, automationID, subscriberID, nextNodeID string, params map[string]any) (*models.AutomationExecution, error)
}

type Handler struct {
	scheduler Scheduler
	logger    *slog.Logger
}

func NewHandler(scheduler Scheduler, logger *slog.Logger) *Handler {
	return &Handler{
		scheduler: scheduler,
		logger:    logger.With("module", "delay_node"),
	}
}

func (h *Handler) Type() models.NodeType {
	return models.NodeTypeDelay
}

func (h *Handler) Name() string {
	return "Delay"
}

func (h *Handler) Description() string {
	return "Waits for a period, a time of day, a date, a weekday or a cron activation before continuing"
}

func (h *Handler) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"delayType": map[string]any{
				"type":        "string",
				"description": "period, timeOfDay, dateAndTime, dayOfWeek or cron",
			},
			"amount": map[string]any{
				"type":        []any{"integer", "string"},
				"description": "Number of units for period delays",
			},
			"unit": map[string]any{
				"type": "string",
				"enum": []any{"minutes", "hours", "days", "weeks"},
			},
			"time": map[string]any{
				"type":    "string",
				"pattern": `^\d{1,2}:\d{2}$`,
			},
			"date": map[string]any{
				"type": "string",
			},
			"days": map[string]any{
				"type": "array",
			},
			"cron": map[string]any{
				"type": "string",
			},
			"timezone": map[string]any{
				"type": "string",
			},
		},
	}
}

// Execute pauses even when the node has no successor; the resumed run then
// completes immediately.
func (h *Handler) Execute(ctx context.Context, input protocol.NodeInput) (protocol.Step, error) {
	execution, err := h.scheduler.Schedule(ctx, input.Automation.ID, input.SubscriberID, input.Node.Next, input.Node.Params)
	if err != nil {
		return protocol.Step{}, fmt.Errorf("failed to schedule resume: %w", err)
	}

	h.logger.DebugContext(ctx, "Run paused",
		"automation_id", input.Automation.ID,
		"node_id", input.Node.ID,
		"subscriber_id", input.SubscriberID,
		"resume_at", execution.ResumeAt)

	return protocol.Pause(), nil
}
