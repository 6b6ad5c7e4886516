package statemachine

import (
	"github.com/felixgeelhaar/statekit"
)

// guardEventNotStale blocks transitions driven by events older than the
// last applied one.
// Note: In statekit, guards receive the context by value. Since our context is *Context,
// the guard receives *Context directly.
func guardEventNotStale(ctx *Context, evt statekit.Event) bool {
	if ctx == nil {
		return false
	}

	payload, ok := evt.Payload.(TransitionPayload)
	if !ok {
		return true
	}

	return !payload.EventTime.Before(ctx.LastEventAt)
}
