package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dripline/dripline/pkg/models"
	"github.com/dripline/dripline/pkg/otelhelper"
	"github.com/dripline/dripline/pkg/protocol"
	"github.com/dripline/dripline/pkg/registry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const DefaultMaxSteps = 1000

type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomePaused    Outcome = "paused"
	OutcomeFailed    Outcome = "failed"
)

// RunResult describes how a run ended. Err is set only for OutcomeFailed.
type RunResult struct {
	Outcome    Outcome
	LastNodeID string
	Steps      int
	Err        error
}

type ExecutorOption func(*Executor)

func WithTracer(tracer trace.Tracer) ExecutorOption {
	return func(e *Executor) {
		e.tracer = tracer
	}
}

func WithMaxSteps(maxSteps int) ExecutorOption {
	return func(e *Executor) {
		e.maxSteps = maxSteps
	}
}

// Executor walks an automation from a node until it terminates or pauses.
type Executor struct {
	registry *registry.Registry
	graphs   *GraphCache
	tracer   trace.Tracer
	maxSteps int
	logger   *slog.Logger
}

func NewExecutor(reg *registry.Registry, graphs *GraphCache, logger *slog.Logger, opts ...ExecutorOption) *Executor {
	if graphs == nil {
		graphs = NewGraphCache(DefaultGraphTTL)
	}

	e := &Executor{
		registry: reg,
		graphs:   graphs,
		tracer:   otelhelper.Tracer("dripline/workflow"),
		maxSteps: DefaultMaxSteps,
		logger:   logger.With("module", "workflow_executor"),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Run never returns an error directly; handler failures, panics and broken
// node links end the run with OutcomeFailed.
func (e *Executor) Run(ctx context.Context, automation *models.Automation, startNodeID, subscriberID string) RunResult {
	g := e.graphs.Get(automation)
	logger := e.logger.With("automation_id", automation.ID, "subscriber_id", subscriberID)

	var result RunResult

	fail := func(err error) RunResult {
		result.Outcome = OutcomeFailed
		result.Err = err

		if IsConfigurationError(err) {
			logger.WarnContext(ctx, "Run aborted", "node_id", result.LastNodeID, "error", err)
		} else {
			logger.ErrorContext(ctx, "Run failed", "node_id", result.LastNodeID, "error", err)
		}

		return result
	}

	current := startNodeID

	for current != "" {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}

		if result.Steps >= e.maxSteps {
			return fail(&ConfigurationError{AutomationID: automation.ID, NodeID: current, Err: ErrStepLimit})
		}

		node, ok := g.Node(current)
		if !ok {
			return fail(&ConfigurationError{AutomationID: automation.ID, NodeID: current, Err: models.ErrDanglingNode})
		}

		result.LastNodeID = current
		result.Steps++

		step, err := e.dispatch(ctx, protocol.NodeInput{
			Automation:   automation,
			Graph:        g,
			Node:         node,
			SubscriberID: subscriberID,
		})
		if err != nil {
			return fail(fmt.Errorf("node %s: %w", node.ID, err))
		}

		switch step.Kind {
		case protocol.StepPause:
			result.Outcome = OutcomePaused
			logger.DebugContext(ctx, "Run paused", "node_id", node.ID, "steps", result.Steps)

			return result
		case protocol.StepTerminate:
			current = ""
		default:
			current = step.Next
		}
	}

	result.Outcome = OutcomeCompleted
	logger.DebugContext(ctx, "Run completed", "node_id", result.LastNodeID, "steps", result.Steps)

	return result
}

func (e *Executor) dispatch(ctx context.Context, input protocol.NodeInput) (step protocol.Step, err error) {
	node := input.Node

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "node.execute",
		attribute.String(otelhelper.AutomationIDKey, input.Automation.ID),
		attribute.String(otelhelper.NodeIDKey, node.ID),
		attribute.String(otelhelper.NodeTypeKey, string(node.Type)),
		attribute.String(otelhelper.SubscriberIDKey, input.SubscriberID),
	)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}

		if err != nil {
			otelhelper.SetError(span, err)
		} else {
			span.SetAttributes(attribute.String(otelhelper.StepKindKey, step.Kind.String()))
		}

		span.End()
	}()

	handler, err := e.registry.Handler(node.Type)
	if err != nil {
		if errors.Is(err, registry.ErrHandlerNotRegistered) {
			e.logger.WarnContext(ctx, "No handler for node type, continuing",
				"automation_id", input.Automation.ID, "node_id", node.ID, "type", node.Type)

			return protocol.Continue(node.Next), nil
		}

		return protocol.Step{}, err
	}

	return handler.Execute(ctx, input)
}
