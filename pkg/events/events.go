// Package events carries lifecycle signals out of the registry and the
// composition engine. Delivery is fire-and-forget: publishers never block,
// and a slow subscriber loses events rather than stalling a composition.
package events

import (
	"context"
	"time"
)

// Type names a lifecycle signal.
type Type string

// Registry signals.
const (
	Registered        Type = "registered"
	Unregistered      Type = "unregistered"
	DependencySkipped Type = "dependency:skipped"
)

// Composition signals.
const (
	GeneratorCompleted   Type = "generator:completed"
	CompositionCompleted Type = "composition:completed"
	BatchCompleted       Type = "batch:completed"
	RollbackAction       Type = "rollback:action"
	StateChanged         Type = "state:changed"
)

// Event is a published signal with a typed payload.
type Event[T any] struct {
	Type      Type
	Payload   T
	Timestamp time.Time
}

// Subscriber provides a subscription channel for events.
type Subscriber[T any] interface {
	Subscribe(ctx context.Context) <-chan Event[T]
}

// Publisher allows publishing events with a typed payload.
type Publisher[T any] interface {
	Publish(eventType Type, payload T)
}
