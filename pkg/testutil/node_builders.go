// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"log/slog"
	"os"

	"github.com/dripline/dripline/pkg/models"
	"github.com/google/uuid"
)

// Logger returns a logger that only reports errors.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// CreateTestAutomation creates an enabled, ACTIVE automation with a single
// END node after the trigger. Overrides are applied in order.
func CreateTestAutomation(overrides ...func(*models.Automation)) *models.Automation {
	automation := &models.Automation{
		ID:      uuid.New().String(),
		UserID:  "user-1",
		Name:    "Test Automation",
		Enabled: true,
		Status:  models.AutomationStatusActive,
		Trigger: models.Trigger{ID: "trigger", Type: "subscriber.created"},
		Nodes: map[string]models.Node{
			"end": {ID: "end", Type: models.NodeTypeEnd},
		},
		EditorData: models.EditorData{Parents: map[string]string{"end": "trigger"}},
	}

	for _, override := range overrides {
		override(automation)
	}

	return automation
}

// WithChain replaces the nodes with a linear chain in the given order; the
// first node follows the trigger.
func WithChain(nodes ...models.Node) func(*models.Automation) {
	return func(a *models.Automation) {
		a.Nodes = make(map[string]models.Node, len(nodes))
		a.EditorData.Parents = make(map[string]string, len(nodes))

		parent := a.Trigger.ID

		for i, node := range nodes {
			if i+1 < len(nodes) && node.Next == "" && node.Branches == nil {
				node.Next = nodes[i+1].ID
			}

			a.Nodes[node.ID] = node
			a.EditorData.Parents[node.ID] = parent
			parent = node.ID
		}
	}
}

// WithNode adds or replaces a node without touching parent links.
func WithNode(node models.Node) func(*models.Automation) {
	return func(a *models.Automation) {
		a.Nodes[node.ID] = node
	}
}

// WithParent sets the editor parent link of child.
func WithParent(child, parent string) func(*models.Automation) {
	return func(a *models.Automation) {
		a.EditorData.Parents[child] = parent
	}
}

// WithTrigger sets the trigger type and params.
func WithTrigger(triggerType string, params map[string]any) func(*models.Automation) {
	return func(a *models.Automation) {
		a.Trigger.Type = triggerType
		a.Trigger.Params = params
	}
}

// Disabled marks the automation disabled.
func Disabled() func(*models.Automation) {
	return func(a *models.Automation) {
		a.Enabled = false
	}
}

// EmailNode builds an EMAIL node with inline content.
func EmailNode(id string) models.Node {
	return models.Node{
		ID:   id,
		Type: models.NodeTypeEmail,
		Params: map[string]any{
			"subject": "Hello {{ .first_name }}",
			"body":    `<p>Hi {{ .first_name }}, <a href="https://example.com/offer">see the offer</a></p>`,
		},
	}
}

// DelayNode builds a period DELAY node.
func DelayNode(id string, amount int, unit string) models.Node {
	return models.Node{
		ID:     id,
		Type:   models.NodeTypeDelay,
		Params: map[string]any{"delayType": "period", "amount": amount, "unit": unit},
	}
}

// ConditionNode builds an "opened" CONDITION node.
func ConditionNode(id, whenTrue, whenFalse string) models.Node {
	return models.Node{
		ID:       id,
		Type:     models.NodeTypeCondition,
		Params:   map[string]any{"condition": "opened"},
		Branches: &models.Branches{True: whenTrue, False: whenFalse},
	}
}

// EndNode builds an END node.
func EndNode(id string) models.Node {
	return models.Node{ID: id, Type: models.NodeTypeEnd}
}

// CreateTestSubscriber creates a subscriber owned by user-1.
func CreateTestSubscriber(id string) *models.Subscriber {
	return &models.Subscriber{
		ID:        id,
		UserID:    "user-1",
		Email:     id + "@example.com",
		FirstName: "Ada",
		LastName:  "Lovelace",
		Lists:     []string{"newsletter"},
	}
}
