// Package workflow runs automations: it matches domain events to automations,
// walks their node graphs, pauses at delays and resumes due executions.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dripline/dripline/pkg/delay"
	"github.com/dripline/dripline/pkg/eventbus"
	"github.com/dripline/dripline/pkg/events"
	"github.com/dripline/dripline/pkg/models"
	"github.com/dripline/dripline/pkg/otelhelper"
	"github.com/dripline/dripline/pkg/persistence"
	"github.com/dripline/dripline/pkg/registry"
	"go.opentelemetry.io/otel/attribute"
)

type Config struct {
	Persistence persistence.Persistence
	Registry    *registry.Registry
	// EventBus is optional; without it Initialize fails and no lifecycle
	// events are published.
	EventBus eventbus.EventBus
	Graphs   *GraphCache
	Logger   *slog.Logger
	Now      func() time.Time
	// SkipDisabledOnResume fails paused executions of automations that were
	// disabled while they waited. Off by default: resumes ignore disablement.
	SkipDisabledOnResume bool
	ExecutorOptions      []ExecutorOption
}

type Engine struct {
	persistence          persistence.Persistence
	bus                  eventbus.EventBus
	executor             *Executor
	matcher              *Matcher
	graphs               *GraphCache
	logger               *slog.Logger
	now                  func() time.Time
	skipDisabledOnResume bool
	initialized          atomic.Bool
}

func NewEngine(cfg Config) *Engine {
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	graphs := cfg.Graphs
	if graphs == nil {
		graphs = NewGraphCache(DefaultGraphTTL)
	}

	return &Engine{
		persistence:          cfg.Persistence,
		bus:                  cfg.EventBus,
		executor:             NewExecutor(cfg.Registry, graphs, cfg.Logger, cfg.ExecutorOptions...),
		matcher:              NewMatcher(cfg.Logger),
		graphs:               graphs,
		logger:               cfg.Logger.With("module", "workflow_engine"),
		now:                  now,
		skipDisabledOnResume: cfg.SkipDisabledOnResume,
	}
}

// Initialize subscribes the engine to every domain event type. It may be
// called once.
func (e *Engine) Initialize(ctx context.Context) error {
	if e.bus == nil {
		return fmt.Errorf("event bus is required: %w", ErrConfiguration)
	}

	if !e.initialized.CompareAndSwap(false, true) {
		return ErrAlreadyInitialized
	}

	for _, eventType := range events.DomainEventTypes() {
		if err := e.bus.Handle(eventType, e.handleBusEvent); err != nil {
			return fmt.Errorf("failed to register handler for %s: %w", eventType, err)
		}
	}

	if err := e.bus.Subscribe(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to events: %w", err)
	}

	e.logger.InfoContext(ctx, "Engine subscribed", "event_types", len(events.DomainEventTypes()))

	return nil
}

func (e *Engine) handleBusEvent(ctx context.Context, event any) error {
	domainEvent, ok := event.(*events.DomainEvent)
	if !ok {
		return fmt.Errorf("unexpected event %T", event)
	}

	return e.HandleEvent(ctx, domainEvent)
}

// HandleEvent starts a run for every automation the event matches. Runs are
// independent: one failing does not stop the others.
func (e *Engine) HandleEvent(ctx context.Context, event *events.DomainEvent) error {
	ctx, span := otelhelper.StartSpan(ctx, e.executor.tracer, "engine.handle_event",
		attribute.String(otelhelper.EventIDKey, event.ID),
		attribute.String(otelhelper.EventTypeKey, string(event.Type)),
		attribute.String(otelhelper.SubscriberIDKey, event.Payload.SubscriberID),
	)
	defer span.End()

	if event.Payload.SubscriberID == "" {
		e.logger.WarnContext(ctx, "Ignoring event without subscriber", "event_type", event.Type, "event_id", event.ID)

		return nil
	}

	candidates, err := e.persistence.AutomationRepository().ActiveByTriggerType(ctx, string(event.Type))
	if err != nil {
		otelhelper.SetError(span, err)

		return fmt.Errorf("failed to load automations for %s: %w", event.Type, err)
	}

	for _, automation := range e.matcher.Match(event, candidates) {
		e.StartRun(ctx, automation, event.Payload.SubscriberID)
	}

	return nil
}

// StartRun runs automation for subscriberID from its start node.
func (e *Engine) StartRun(ctx context.Context, automation *models.Automation, subscriberID string) RunResult {
	start, err := e.graphs.Get(automation).Start()
	if err != nil {
		cfgErr := &ConfigurationError{AutomationID: automation.ID, Err: err}
		e.logger.WarnContext(ctx, "Automation has no runnable start node", "automation_id", automation.ID, "error", cfgErr)

		return RunResult{Outcome: OutcomeFailed, Err: cfgErr}
	}

	result := e.executor.Run(ctx, automation, start, subscriberID)
	e.publishLifecycle(ctx, automation.ID, subscriberID, result)

	return result
}

// ResumeAutomation continues a claimed execution at its current node. A
// completed run marks the row COMPLETED; a paused one was already rewritten
// by the DELAY node. Failures are returned for the caller to record.
func (e *Engine) ResumeAutomation(ctx context.Context, execution *models.AutomationExecution) error {
	logger := e.logger.With("automation_id", execution.AutomationID, "subscriber_id", execution.SubscriberID)

	automation, err := e.persistence.AutomationRepository().ByID(ctx, execution.AutomationID)
	if err != nil {
		return persistence.NewExecutionError("Resume", execution.AutomationID, execution.SubscriberID, err)
	}

	if e.skipDisabledOnResume && !automation.IsRunnable() {
		logger.InfoContext(ctx, "Not resuming disabled automation")

		return ErrAutomationDisabled
	}

	result := RunResult{Outcome: OutcomeCompleted}
	if execution.CurrentNodeID != "" {
		result = e.executor.Run(ctx, automation, execution.CurrentNodeID, execution.SubscriberID)
	}

	e.publishLifecycle(ctx, automation.ID, execution.SubscriberID, result)

	switch result.Outcome {
	case OutcomeFailed:
		return result.Err
	case OutcomeCompleted:
		completed, err := e.persistence.ExecutionRepository().Complete(ctx, execution.AutomationID, execution.SubscriberID)
		if err != nil {
			return persistence.NewExecutionError("Complete", execution.AutomationID, execution.SubscriberID, err)
		}

		if !completed {
			logger.WarnContext(ctx, "Execution was no longer active when completing")
		}
	case OutcomePaused:
	}

	return nil
}

// Schedule persists a PAUSED execution that resumes at nextNodeID when the
// delay described by params elapses. Any previous row for the pair is
// overwritten.
func (e *Engine) Schedule(ctx context.Context, automationID, subscriberID, nextNodeID string, params map[string]any) (*models.AutomationExecution, error) {
	now := e.now()
	resumeAt := delay.ResumeAt(ctx, e.logger, now, params)

	executions := e.persistence.ExecutionRepository()

	execution, err := executions.ByKey(ctx, automationID, subscriberID)

	switch {
	case err == nil:
		if err := models.NewExecutionMachine(execution).Pause(nextNodeID, resumeAt, now); err != nil {
			return nil, err
		}
	case errors.Is(err, persistence.ErrExecutionNotFound):
		execution = models.NewPausedExecution(automationID, subscriberID, nextNodeID, resumeAt, now)
	default:
		return nil, persistence.NewExecutionError("Schedule", automationID, subscriberID, err)
	}

	if err := executions.Upsert(ctx, execution); err != nil {
		return nil, persistence.NewExecutionError("Schedule", automationID, subscriberID, err)
	}

	e.logger.DebugContext(ctx, "Execution scheduled",
		"automation_id", automationID,
		"subscriber_id", subscriberID,
		"next_node_id", nextNodeID,
		"resume_at", resumeAt)

	return execution, nil
}

func (e *Engine) publishLifecycle(ctx context.Context, automationID, subscriberID string, result RunResult) {
	if e.bus == nil {
		return
	}

	var event *events.ExecutionLifecycle

	switch result.Outcome {
	case OutcomePaused:
		event = events.NewExecutionLifecycle(events.ExecutionPausedEvent, automationID, subscriberID)

		if execution, err := e.persistence.ExecutionRepository().ByKey(ctx, automationID, subscriberID); err == nil {
			event.NodeID = execution.CurrentNodeID
			event.ResumeAt = execution.ResumeAt
		}
	case OutcomeCompleted:
		event = events.NewExecutionLifecycle(events.ExecutionCompletedEvent, automationID, subscriberID)
		event.NodeID = result.LastNodeID
	default:
		event = events.NewExecutionLifecycle(events.ExecutionFailedEvent, automationID, subscriberID)
		event.NodeID = result.LastNodeID

		if result.Err != nil {
			event.Error = result.Err.Error()
		}
	}

	event.Steps = result.Steps

	if err := e.bus.Publish(ctx, models.ExecutionKey(automationID, subscriberID), event); err != nil {
		e.logger.WarnContext(ctx, "Failed to publish lifecycle event", "event_type", event.Type, "error", err)
	}
}
