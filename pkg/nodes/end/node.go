// Package end implements the END node.
package end

import (
	"context"

	"github.com/dripline/dripline/pkg/models"
	"github.com/dripline/dripline/pkg/protocol"
)

type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

func (h *Handler) Type() models.NodeType {
	return models.NodeTypeEnd
}

func (h *Handler) Name() string {
	return "End"
}

func (h *Handler) Description() string {
	return "Ends the run"
}

func (h *Handler) Schema() map[string]any {
	return map[string]any{"type": "object"}
}

func (h *Handler) Execute(_ context.Context, _ protocol.NodeInput) (protocol.Step, error) {
	return protocol.Terminate(), nil
}
