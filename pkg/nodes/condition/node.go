// Package condition implements the CONDITION node, which branches on how the
// subscriber engaged with an earlier email of the same automation.
package condition

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dripline/dripline/pkg/models"
	"github.com/dripline/dripline/pkg/persistence"
	"github.com/dripline/dripline/pkg/protocol"
)

const (
	Opened  = "opened"
	Clicked = "clicked"
)

type Handler struct {
	sends  persistence.SendRepository
	logger *slog.Logger
}

func NewHandler(sends persistence.SendRepository, logger *slog.Logger) *Handler {
	return &Handler{
		sends:  sends,
		logger: logger.With("module", "condition_node"),
	}
}

func (h *Handler) Type() models.NodeType {
	return models.NodeTypeCondition
}

func (h *Handler) Name() string {
	return "Condition"
}

func (h *Handler) Description() string {
	return "Branches on whether the subscriber opened or clicked the nearest earlier email"
}

func (h *Handler) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"condition": map[string]any{
				"type":    "string",
				"enum":    []any{Opened, Clicked},
				"default": Opened,
			},
			"emailNodeId": map[string]any{
				"type":        "string",
				"description": "EMAIL node to inspect instead of the nearest upstream one",
			},
		},
	}
}

func (h *Handler) Execute(ctx context.Context, input protocol.NodeInput) (protocol.Step, error) {
	node := input.Node
	logger := h.logger.With("automation_id", input.Automation.ID, "node_id", node.ID, "subscriber_id", input.SubscriberID)

	if node.Branches == nil {
		logger.WarnContext(ctx, "Condition node has no branches")

		return protocol.Continue(node.Next), nil
	}

	satisfied, err := h.evaluate(ctx, logger, input)
	if err != nil {
		return protocol.Step{}, err
	}

	logger.DebugContext(ctx, "Condition evaluated", "satisfied", satisfied)

	if satisfied {
		return protocol.Continue(node.Branches.True), nil
	}

	return protocol.Continue(node.Branches.False), nil
}

func (h *Handler) evaluate(ctx context.Context, logger *slog.Logger, input protocol.NodeInput) (bool, error) {
	emailNodeID := input.Node.StringParam("emailNodeId")

	if emailNodeID == "" && input.Graph != nil {
		upstream, found := input.Graph.FindUpstream(input.Node.ID, func(n models.Node) bool {
			return n.Type == models.NodeTypeEmail
		})
		if found {
			emailNodeID = upstream.ID
		}
	}

	if emailNodeID == "" {
		logger.WarnContext(ctx, "No upstream email node, taking the false branch")

		return false, nil
	}

	record, err := h.sends.Latest(ctx, input.Automation.ID, emailNodeID, input.SubscriberID)
	if err != nil {
		if persistence.IsSendNotFound(err) {
			return false, nil
		}

		return false, fmt.Errorf("failed to read send record: %w", err)
	}

	switch predicate := input.Node.StringParam("condition"); predicate {
	case "", Opened:
		return record.Opened(), nil
	case Clicked:
		return record.Clicked(), nil
	default:
		logger.WarnContext(ctx, "Unknown condition, taking the false branch", "condition", predicate)

		return false, nil
	}
}
