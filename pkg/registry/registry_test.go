package registry_test

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/dripline/dripline/pkg/graph"
	"github.com/dripline/dripline/pkg/models"
	"github.com/dripline/dripline/pkg/protocol"
	"github.com/dripline/dripline/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type waitHandler struct{}

func (waitHandler) Type() models.NodeType { return "WAIT" }
func (waitHandler) Name() string          { return "Wait" }
func (waitHandler) Description() string   { return "test handler" }

func (waitHandler) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"seconds": map[string]any{"type": "integer", "minimum": 1},
		},
		"required": []string{"seconds"},
	}
}

func (waitHandler) Execute(_ context.Context, input protocol.NodeInput) (protocol.Step, error) {
	return protocol.Continue(input.Node.Next), nil
}

func newRegistry() *registry.Registry {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	reg := registry.NewRegistry(logger)
	reg.Register(waitHandler{})

	return reg
}

func TestRegistry_Handler(t *testing.T) {
	reg := newRegistry()

	handler, err := reg.Handler("WAIT")
	require.NoError(t, err)
	assert.Equal(t, "Wait", handler.Name())

	_, err = reg.Handler("SMS")
	require.ErrorIs(t, err, registry.ErrHandlerNotRegistered)

	assert.Equal(t, []models.NodeType{"WAIT"}, reg.Types())
}

func TestRegistry_Validate(t *testing.T) {
	reg := newRegistry()

	require.NoError(t, reg.Validate(models.Node{ID: "w", Type: "WAIT", Params: map[string]any{"seconds": 3}}))
	require.ErrorIs(t, reg.Validate(models.Node{ID: "w", Type: "WAIT"}), registry.ErrInvalidParams)
	require.ErrorIs(t, reg.Validate(models.Node{ID: "w", Type: "WAIT", Params: map[string]any{"seconds": 0}}), registry.ErrInvalidParams)
	require.NoError(t, reg.Validate(models.Node{ID: "x", Type: "SMS"}))
}

func TestRegistry_ValidateAutomation(t *testing.T) {
	reg := newRegistry()

	automation := &models.Automation{
		ID:      "auto-1",
		Trigger: models.Trigger{ID: "t", Type: "subscriber.created"},
		Nodes: map[string]models.Node{
			"w": {ID: "w", Type: "WAIT", Params: map[string]any{"seconds": 1}, Next: "s"},
			"s": {ID: "s", Type: "SMS"},
		},
		EditorData: models.EditorData{Parents: map[string]string{"w": "t", "s": "w"}},
	}

	require.NoError(t, reg.ValidateAutomation(automation))

	delete(automation.EditorData.Parents, "w")
	automation.Nodes["w"] = models.Node{ID: "w", Type: "WAIT", Next: "s"}

	err := reg.ValidateAutomation(automation)
	require.ErrorIs(t, err, graph.ErrNoStartNode)
	require.ErrorIs(t, err, registry.ErrInvalidParams)
}
