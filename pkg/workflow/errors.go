package workflow

import (
	"errors"
	"fmt"
)

var (
	ErrConfiguration      = errors.New("automation configuration error")
	ErrAlreadyInitialized = errors.New("engine already initialized")
	ErrAutomationDisabled = errors.New("automation is disabled")
	ErrStepLimit          = errors.New("run exceeded the step limit")
)

// ConfigurationError is raised when an automation cannot be walked: no start
// node, a dangling node id, or a cycle without a pause.
type ConfigurationError struct {
	AutomationID string
	NodeID       string
	Err          error
}

func (e *ConfigurationError) Error() string {
	if e.NodeID == "" {
		return fmt.Sprintf("automation %s: %v", e.AutomationID, e.Err)
	}

	return fmt.Sprintf("automation %s node %s: %v", e.AutomationID, e.NodeID, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// IsConfigurationError checks if an error is a ConfigurationError.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}
