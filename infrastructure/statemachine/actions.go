package statemachine

import (
	"github.com/felixgeelhaar/statekit"

	"github.com/elephant-oracle/tracker-go/domain/event"
)

// recordStatus records the transition target on the context.
// In statekit, actions receive a pointer to the context. Since our context is *Context,
// actions receive **Context.
func recordStatus(ctx **Context, evt statekit.Event) {
	if ctx == nil || *ctx == nil {
		return
	}

	c := *ctx

	if payload, ok := evt.Payload.(TransitionPayload); ok {
		c.Status = payload.To
		c.LastEventAt = payload.EventTime
		return
	}

	// Derive from event type
	c.Status = statusFromEventType(evt.Type)
}

// statusFromEventType derives the target status from an event type.
func statusFromEventType(eventType statekit.EventType) event.Status {
	switch eventType {
	case "RUN":
		return event.StatusInProgress
	case "PARK":
		return event.StatusParked
	case "FAIL":
		return event.StatusFailed
	case "SUCCEED":
		return event.StatusSucceeded
	default:
		return event.Status(eventType)
	}
}
