// Package persistence provides the storage abstraction for automations,
// executions, action logs, send records and subscribers.
package persistence

import (
	"context"
	"time"

	"github.com/dripline/dripline/pkg/models"
)

type Persistence interface {
	AutomationRepository() AutomationRepository
	ExecutionRepository() ExecutionRepository
	ActionLogRepository() ActionLogRepository
	SendRepository() SendRepository
	SubscriberRepository() SubscriberRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// AutomationRepository stores automation definitions.
type AutomationRepository interface {
	Save(ctx context.Context, automation *models.Automation) error
	ByID(ctx context.Context, id string) (*models.Automation, error)
	// ActiveByTriggerType returns enabled ACTIVE automations whose trigger
	// type is triggerType.
	ActiveByTriggerType(ctx context.Context, triggerType string) ([]*models.Automation, error)
	List(ctx context.Context) ([]*models.Automation, error)
}

// ExecutionRepository stores one execution row per (automation, subscriber).
// Every mutation except Upsert is conditioned on the prior status.
type ExecutionRepository interface {
	// Upsert unconditionally writes the row, overwriting node, resume time and status.
	Upsert(ctx context.Context, execution *models.AutomationExecution) error

	// FindDue returns up to limit PAUSED rows with resume time <= now, oldest first.
	FindDue(ctx context.Context, now time.Time, limit int) ([]*models.AutomationExecution, error)

	// Claim moves a due PAUSED row to ACTIVE. It returns nil, nil when the row
	// is no longer PAUSED or no longer due; another worker won.
	Claim(ctx context.Context, automationID, subscriberID string, now time.Time) (*models.AutomationExecution, error)

	// Complete moves an ACTIVE row to COMPLETED, reporting whether it did.
	Complete(ctx context.Context, automationID, subscriberID string) (bool, error)

	// Fail moves an ACTIVE row to FAILED with reason, reporting whether it did.
	Fail(ctx context.Context, automationID, subscriberID, reason string) (bool, error)

	ByKey(ctx context.Context, automationID, subscriberID string) (*models.AutomationExecution, error)
	ListByAutomation(ctx context.Context, automationID string) ([]*models.AutomationExecution, error)
}

// ActionLogRepository is append-only.
type ActionLogRepository interface {
	Append(ctx context.Context, entry *models.ActionLog) error
	// ListByAutomation returns the newest entries first.
	ListByAutomation(ctx context.Context, automationID string, limit int) ([]*models.ActionLog, error)
}

// SendRepository stores send records and their engagement counters.
type SendRepository interface {
	Create(ctx context.Context, record *models.SendRecord) error
	// Latest returns the most recently created record for the key.
	Latest(ctx context.Context, automationID, nodeID, subscriberID string) (*models.SendRecord, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, reason string) error
	RecordOpen(ctx context.Context, id string) error
	RecordClick(ctx context.Context, id string) error
}

// SubscriberRepository is the subscriber directory view.
type SubscriberRepository interface {
	Save(ctx context.Context, subscriber *models.Subscriber) error
	ByID(ctx context.Context, id string) (*models.Subscriber, error)
}
