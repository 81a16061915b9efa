// Package events defines the domain events that start automations and the
// lifecycle notifications the engine emits about executions.
package events

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

type EventType string

const Topic = "dripline.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Domain events scoped to the automation owner.
	SubscriberCreatedEvent EventType = "subscriber.created"
	ListSubscribedEvent    EventType = "list.subscribed"
	TagAddedEvent          EventType = "tag.added"
	FormSubmittedEvent     EventType = "form.submitted"
	OfferPurchasedEvent    EventType = "offer.purchased"

	// Engagement events, matched on trigger type only.
	LinkClickedEvent  EventType = "link.clicked"
	EmailOpenedEvent  EventType = "email.opened"
	EmailBouncedEvent EventType = "email.bounced"

	// Execution lifecycle events.
	ExecutionPausedEvent    EventType = "automation.execution.paused"
	ExecutionCompletedEvent EventType = "automation.execution.completed"
	ExecutionFailedEvent    EventType = "automation.execution.failed"
)

var userScoped = []EventType{
	SubscriberCreatedEvent,
	ListSubscribedEvent,
	TagAddedEvent,
	FormSubmittedEvent,
	OfferPurchasedEvent,
}

// DomainEventTypes lists every event type that can trigger an automation.
func DomainEventTypes() []EventType {
	return []EventType{
		SubscriberCreatedEvent,
		ListSubscribedEvent,
		TagAddedEvent,
		FormSubmittedEvent,
		OfferPurchasedEvent,
		LinkClickedEvent,
		EmailOpenedEvent,
		EmailBouncedEvent,
	}
}

// IsUserScoped reports whether events of this type must carry the owner of
// the automation they start.
func IsUserScoped(t EventType) bool {
	return slices.Contains(userScoped, t)
}

func IsDomainEvent(t EventType) bool {
	return slices.Contains(DomainEventTypes(), t)
}

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType) BaseEvent {
	return BaseEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Metadata:  make(map[string]any),
	}
}

type Payload struct {
	SubscriberID string         `json:"subscriber_id"         validate:"required"`
	UserID       string         `json:"user_id,omitempty"`
	Lists        []string       `json:"lists,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
}

// DomainEvent is something that happened to a subscriber.
type DomainEvent struct {
	BaseEvent

	Payload Payload `json:"payload"`
}

func NewDomainEvent(eventType EventType, payload Payload) *DomainEvent {
	return &DomainEvent{
		BaseEvent: NewBaseEvent(eventType),
		Payload:   payload,
	}
}

func (e DomainEvent) GetType() EventType {
	return e.Type
}

// ExecutionLifecycle reports how a run of one automation for one subscriber
// ended.
type ExecutionLifecycle struct {
	BaseEvent

	AutomationID string     `json:"automation_id"`
	SubscriberID string     `json:"subscriber_id"`
	NodeID       string     `json:"node_id,omitempty"`
	ResumeAt     *time.Time `json:"resume_at,omitempty"`
	Steps        int        `json:"steps"`
	Error        string     `json:"error,omitempty"`
}

func NewExecutionLifecycle(eventType EventType, automationID, subscriberID string) *ExecutionLifecycle {
	return &ExecutionLifecycle{
		BaseEvent:    NewBaseEvent(eventType),
		AutomationID: automationID,
		SubscriberID: subscriberID,
	}
}

func (e ExecutionLifecycle) GetType() EventType {
	return e.Type
}

func IsLifecycleEvent(t EventType) bool {
	switch t {
	case ExecutionPausedEvent, ExecutionCompletedEvent, ExecutionFailedEvent:
		return true
	default:
		return false
	}
}
