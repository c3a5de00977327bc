package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventTie    EventType = "knot_tie"
	EventUntie  EventType = "knot_untie"
	EventChange EventType = "knot_change"
	EventError  EventType = "knot_error"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	KnotID    string    `json:"knot_id"`
}

// KnotEvent represents a knot being tied or untied.
type KnotEvent struct {
	EventBase
	Left  any   `json:"-"`
	Right any   `json:"-"`
	Spec  *Spec `json:"spec"`
}

// ChangeEvent represents one value propagated across a knot.
type ChangeEvent struct {
	KnotEvent
	Value     any       `json:"value"`
	Direction Direction `json:"direction"`
}

// ErrorEvent represents a diagnostic raised while tying or propagating.
type ErrorEvent struct {
	KnotEvent
	Err error `json:"-"`
	// Fatal is false for warnings such as unresolved providers.
	Fatal bool `json:"fatal"`
}

// LifecycleHooks defines callbacks for engine observability.
// Any hook may be nil.
type LifecycleHooks struct {
	OnTie    func(context.Context, *KnotEvent)
	OnUntie  func(context.Context, *KnotEvent)
	OnChange func(context.Context, *ChangeEvent)
	OnError  func(context.Context, *ErrorEvent)
}
