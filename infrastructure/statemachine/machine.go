// Package statemachine provides the statekit integration for the
// workflow execution lifecycle.
package statemachine

import (
	"time"

	"github.com/felixgeelhaar/statekit"

	"github.com/elephant-oracle/tracker-go/domain/event"
)

// Context carries one execution's lifecycle position through the
// machine.
type Context struct {
	ExecutionID string
	Status      event.Status
	LastEventAt time.Time
}

// NewContext creates a machine context for one execution.
func NewContext(executionID string) *Context {
	return &Context{
		ExecutionID: executionID,
		Status:      event.StatusScheduled,
	}
}

// State IDs as StateID type for statekit.
const (
	stateScheduled  statekit.StateID = statekit.StateID(event.StatusScheduled)
	stateInProgress statekit.StateID = statekit.StateID(event.StatusInProgress)
	stateParked     statekit.StateID = statekit.StateID(event.StatusParked)
	stateFailed     statekit.StateID = statekit.StateID(event.StatusFailed)
	stateSucceeded  statekit.StateID = statekit.StateID(event.StatusSucceeded)
)

// NewWorkflowMachine creates the canonical execution statechart.
// FAILED is not final: a requeued execution runs again.
func NewWorkflowMachine() (*statekit.MachineConfig[*Context], error) {
	return statekit.NewMachine[*Context]("workflow").
		WithInitial(stateScheduled).
		WithContext(&Context{}).
		// Register actions
		WithAction("recordStatus", recordStatus).
		// Register guards
		WithGuard("eventNotStale", guardEventNotStale).
		// Define states
		State(stateScheduled).
			On("RUN").Target(stateInProgress).Guard("eventNotStale").Do("recordStatus").
			On("FAIL").Target(stateFailed).Guard("eventNotStale").Do("recordStatus").
			Done().
		State(stateInProgress).
			On("PARK").Target(stateParked).Guard("eventNotStale").Do("recordStatus").
			On("FAIL").Target(stateFailed).Guard("eventNotStale").Do("recordStatus").
			On("SUCCEED").Target(stateSucceeded).Guard("eventNotStale").Do("recordStatus").
			Done().
		State(stateParked).
			On("RUN").Target(stateInProgress).Guard("eventNotStale").Do("recordStatus").
			On("FAIL").Target(stateFailed).Guard("eventNotStale").Do("recordStatus").
			Done().
		State(stateFailed).
			On("RUN").Target(stateInProgress).Guard("eventNotStale").Do("recordStatus").
			Done().
		State(stateSucceeded).
			Final().
			Done().
		Build()
}

// legalTransitions mirrors the statechart's edges for cheap lookups.
var legalTransitions = map[event.Status][]event.Status{
	event.StatusScheduled:  {event.StatusInProgress, event.StatusFailed},
	event.StatusInProgress: {event.StatusParked, event.StatusFailed, event.StatusSucceeded},
	event.StatusParked:     {event.StatusInProgress, event.StatusFailed},
	event.StatusFailed:     {event.StatusInProgress},
	event.StatusSucceeded:  nil,
}

// Legal reports whether the statechart has an edge from one status to
// another. Re-reporting the current status (step progress, duplicate
// delivery) is always legal.
func Legal(from, to event.Status) bool {
	if from == to {
		return true
	}
	for _, s := range legalTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// EventFor returns the event type that targets a status.
func EventFor(to event.Status) statekit.EventType {
	switch to {
	case event.StatusInProgress:
		return "RUN"
	case event.StatusParked:
		return "PARK"
	case event.StatusFailed:
		return "FAIL"
	case event.StatusSucceeded:
		return "SUCCEED"
	default:
		return statekit.EventType(to)
	}
}

// StatusFromMachine converts a machine state ID to a workflow status.
func StatusFromMachine(stateID statekit.StateID) event.Status {
	return event.Status(stateID)
}
