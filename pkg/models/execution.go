package models

import (
	"context"
	"fmt"
	"time"

	"github.com/qmuntal/stateless"
)

// ExecutionStatus is the lifecycle state of an automation execution.
type ExecutionStatus string

const (
	ExecutionStatusActive    ExecutionStatus = "ACTIVE"
	ExecutionStatusPaused    ExecutionStatus = "PAUSED"
	ExecutionStatusCompleted ExecutionStatus = "COMPLETED"
	ExecutionStatusFailed    ExecutionStatus = "FAILED"
)

// Execution triggers fired against the status machine.
const (
	TriggerPause    = "pause"
	TriggerClaim    = "claim"
	TriggerComplete = "complete"
	TriggerFail     = "fail"
)

// AutomationExecution is the durable progress marker of one subscriber inside
// one automation. There is at most one per (AutomationID, SubscriberID).
type AutomationExecution struct {
	AutomationID  string          `bson:"automation_id"       json:"automation_id"`
	SubscriberID  string          `bson:"subscriber_id"       json:"subscriber_id"`
	CurrentNodeID string          `bson:"current_node_id"     json:"current_node_id"`
	Status        ExecutionStatus `bson:"status"              json:"status"`
	ResumeAt      *time.Time      `bson:"resume_at,omitempty" json:"resume_at,omitempty"`
	Context       map[string]any  `bson:"context,omitempty"   json:"context,omitempty"`
	Error         string          `bson:"error,omitempty"     json:"error,omitempty"`
	CreatedAt     time.Time       `bson:"created_at"          json:"created_at"`
	UpdatedAt     time.Time       `bson:"updated_at"          json:"updated_at"`
}

// Key returns the identity of the execution row.
func (e *AutomationExecution) Key() string {
	return ExecutionKey(e.AutomationID, e.SubscriberID)
}

// ExecutionKey builds the composite identity used by key-value backends.
func ExecutionKey(automationID, subscriberID string) string {
	return automationID + ":" + subscriberID
}

// IsDue reports whether a paused execution may be resumed at now.
func (e *AutomationExecution) IsDue(now time.Time) bool {
	return e.Status == ExecutionStatusPaused && e.ResumeAt != nil && !e.ResumeAt.After(now)
}

// NewPausedExecution builds the row written by a DELAY node.
func NewPausedExecution(automationID, subscriberID, nextNodeID string, resumeAt, now time.Time) *AutomationExecution {
	return &AutomationExecution{
		AutomationID:  automationID,
		SubscriberID:  subscriberID,
		CurrentNodeID: nextNodeID,
		Status:        ExecutionStatusPaused,
		ResumeAt:      &resumeAt,
		Context:       map[string]any{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// ExecutionMachine guards status transitions of a single execution value.
// Backends that hold executions in process run every mutation through it;
// SQL and document backends express the same guards in their WHERE clauses.
type ExecutionMachine struct {
	exec *AutomationExecution
	fsm  *stateless.StateMachine
}

// NewExecutionMachine wraps exec; fired triggers mutate exec.Status in place.
func NewExecutionMachine(exec *AutomationExecution) *ExecutionMachine {
	m := &ExecutionMachine{exec: exec}

	m.fsm = stateless.NewStateMachineWithExternalStorage(m.getState, m.setState, stateless.FiringImmediate)

	m.fsm.Configure(ExecutionStatusPaused).
		PermitReentry(TriggerPause).
		Permit(TriggerClaim, ExecutionStatusActive)

	m.fsm.Configure(ExecutionStatusActive).
		Permit(TriggerPause, ExecutionStatusPaused).
		Permit(TriggerComplete, ExecutionStatusCompleted).
		Permit(TriggerFail, ExecutionStatusFailed)

	m.fsm.Configure(ExecutionStatusCompleted).
		Permit(TriggerPause, ExecutionStatusPaused)

	m.fsm.Configure(ExecutionStatusFailed).
		Permit(TriggerPause, ExecutionStatusPaused)

	return m
}

func (m *ExecutionMachine) getState(_ context.Context) (any, error) {
	return m.exec.Status, nil
}

func (m *ExecutionMachine) setState(_ context.Context, state any) error {
	status, ok := state.(ExecutionStatus)
	if !ok {
		return fmt.Errorf("unexpected execution state %v", state)
	}

	m.exec.Status = status

	return nil
}

// CanFire reports whether trigger is permitted from the current status.
func (m *ExecutionMachine) CanFire(trigger string) bool {
	ok, err := m.fsm.CanFire(trigger)

	return err == nil && ok
}

// Fire applies trigger, returning ErrInvalidTransition when it is not allowed.
func (m *ExecutionMachine) Fire(trigger string, now time.Time) error {
	if !m.CanFire(trigger) {
		return fmt.Errorf("%s from %s: %w", trigger, m.exec.Status, ErrInvalidTransition)
	}

	if err := m.fsm.Fire(trigger); err != nil {
		return fmt.Errorf("%s from %s: %w", trigger, m.exec.Status, err)
	}

	if trigger != TriggerPause {
		m.exec.ResumeAt = nil
	}

	m.exec.UpdatedAt = now

	return nil
}

// Pause moves the execution to PAUSED at node, due at resumeAt. Pausing is
// allowed from every status; it is how a DELAY overwrites a prior row.
func (m *ExecutionMachine) Pause(nodeID string, resumeAt, now time.Time) error {
	if err := m.Fire(TriggerPause, now); err != nil {
		return err
	}

	m.exec.CurrentNodeID = nodeID
	m.exec.ResumeAt = &resumeAt
	m.exec.Error = ""

	return nil
}

// Fail moves an ACTIVE execution to FAILED recording reason.
func (m *ExecutionMachine) Fail(reason string, now time.Time) error {
	if err := m.Fire(TriggerFail, now); err != nil {
		return err
	}

	m.exec.Error = reason

	return nil
}
