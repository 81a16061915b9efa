// Package registry maps node types to the handlers that execute them.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/dripline/dripline/pkg/graph"
	"github.com/dripline/dripline/pkg/models"
	"github.com/dripline/dripline/pkg/protocol"
	"github.com/xeipuuv/gojsonschema"
)

var (
	ErrHandlerNotRegistered = errors.New("node type not registered")
	ErrInvalidParams        = errors.New("invalid node params")
)

type Registry struct {
	logger   *slog.Logger
	mu       sync.RWMutex
	handlers map[models.NodeType]protocol.NodeHandler
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:   log.With("module", "registry"),
		handlers: make(map[models.NodeType]protocol.NodeHandler),
	}
}

// Register adds handler, replacing any handler already bound to its type.
func (r *Registry) Register(handler protocol.NodeHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[handler.Type()]; exists {
		r.logger.Warn("Replacing node handler", "type", handler.Type())
	}

	r.handlers[handler.Type()] = handler
}

// Handler returns the handler bound to nodeType.
//
//nolint:ireturn // handlers are looked up by type
func (r *Registry) Handler(nodeType models.NodeType) (protocol.NodeHandler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handler, ok := r.handlers[nodeType]
	if !ok {
		return nil, fmt.Errorf("%s: %w", nodeType, ErrHandlerNotRegistered)
	}

	return handler, nil
}

// Types returns every registered node type, sorted.
func (r *Registry) Types() []models.NodeType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]models.NodeType, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}

	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	return types
}

// Validate checks node params against its handler's JSON schema. Nodes of
// unregistered types are accepted; the executor skips past them.
func (r *Registry) Validate(node models.Node) error {
	handler, err := r.Handler(node.Type)
	if err != nil {
		return nil //nolint:nilerr // unknown node types are not an authoring error
	}

	schema := handler.Schema()
	if len(schema) == 0 {
		return nil
	}

	params := node.Params
	if params == nil {
		params = map[string]any{}
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(params))
	if err != nil {
		return fmt.Errorf("node %s: %w", node.ID, err)
	}

	if !result.Valid() {
		var problems []string
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}

		return fmt.Errorf("node %s: %s: %w", node.ID, strings.Join(problems, "; "), ErrInvalidParams)
	}

	return nil
}

// ValidateAutomation runs the structural checks, the start node lookup and
// per-node schema validation, returning every problem found.
func (r *Registry) ValidateAutomation(automation *models.Automation) error {
	var errs []error

	if err := automation.Validate(); err != nil {
		errs = append(errs, err)
	}

	if _, err := graph.New(automation).Start(); err != nil {
		errs = append(errs, err)
	}

	ids := make([]string, 0, len(automation.Nodes))
	for id := range automation.Nodes {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	for _, id := range ids {
		node := automation.Nodes[id]

		if _, err := r.Handler(node.Type); err != nil {
			r.logger.Warn("Automation uses an unregistered node type", "automation_id", automation.ID, "node_id", id, "type", node.Type)

			continue
		}

		if err := r.Validate(node); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
