// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrAutomationNotFound indicates an automation was not found by the given identifier.
	ErrAutomationNotFound = errors.New("automation not found")

	// ErrExecutionNotFound indicates no execution exists for the automation and subscriber.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrSendNotFound indicates no send record exists for the given key.
	ErrSendNotFound = errors.New("send record not found")

	// ErrSubscriberNotFound indicates a subscriber was not found by the given identifier.
	ErrSubscriberNotFound = errors.New("subscriber not found")
)

// ExecutionError wraps execution-related errors with additional context.
type ExecutionError struct {
	Op           string // Operation being performed (e.g., "Claim", "Upsert")
	AutomationID string
	SubscriberID string
	Err          error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s operation failed for execution %s/%s: %v", e.Op, e.AutomationID, e.SubscriberID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for execution errors.
func (e *ExecutionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewExecutionError creates a new execution error with context.
func NewExecutionError(op, automationID, subscriberID string, err error) *ExecutionError {
	return &ExecutionError{
		Op:           op,
		AutomationID: automationID,
		SubscriberID: subscriberID,
		Err:          err,
	}
}

// AutomationError wraps automation-related errors with additional context.
type AutomationError struct {
	Op           string
	AutomationID string
	Err          error
}

func (e *AutomationError) Error() string {
	return fmt.Sprintf("%s operation failed for automation %s: %v", e.Op, e.AutomationID, e.Err)
}

func (e *AutomationError) Unwrap() error {
	return e.Err
}

func (e *AutomationError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func NewAutomationError(op, automationID string, err error) *AutomationError {
	return &AutomationError{Op: op, AutomationID: automationID, Err: err}
}

// IsAutomationNotFound checks if an error indicates an automation was not found.
func IsAutomationNotFound(err error) bool {
	return errors.Is(err, ErrAutomationNotFound)
}

// IsExecutionNotFound checks if an error indicates an execution was not found.
func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}

// IsSendNotFound checks if an error indicates a send record was not found.
func IsSendNotFound(err error) bool {
	return errors.Is(err, ErrSendNotFound)
}

// IsSubscriberNotFound checks if an error indicates a subscriber was not found.
func IsSubscriberNotFound(err error) bool {
	return errors.Is(err, ErrSubscriberNotFound)
}
