// Package eventbus provides the typed pub/sub used to deliver domain events
// to the engine and to broadcast execution lifecycle notifications.
package eventbus

import (
	"context"

	"github.com/dripline/dripline/pkg/events"
)

type Event interface {
	GetType() events.EventType
}

type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

// EventHandler receives *events.DomainEvent or *events.ExecutionLifecycle
// depending on the registered type.
type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}
