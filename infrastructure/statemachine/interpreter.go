package statemachine

import (
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/statekit"

	"github.com/elephant-oracle/tracker-go/domain/event"
)

var (
	// ErrIllegalTransition is returned when an observed status change
	// has no edge in the statechart.
	ErrIllegalTransition = errors.New("status change outside the workflow statechart")

	// ErrStaleTransition is returned when an event is older than the
	// lifecycle's last applied event.
	ErrStaleTransition = errors.New("event older than lifecycle position")
)

// TransitionPayload carries the observed event data with a transition.
type TransitionPayload struct {
	To        event.Status
	EventTime time.Time
	Reason    string
}

// Lifecycle wraps the statekit interpreter to replay one execution's
// observed statuses against the statechart.
type Lifecycle struct {
	interp *statekit.Interpreter[*Context]
	ctx    *Context
}

// NewLifecycle creates a lifecycle for one execution.
func NewLifecycle(machine *statekit.MachineConfig[*Context], ctx *Context) *Lifecycle {
	interp := statekit.NewInterpreter(machine)
	// Update the context reference in the machine
	interp.UpdateContext(func(c **Context) {
		*c = ctx
	})
	return &Lifecycle{
		interp: interp,
		ctx:    ctx,
	}
}

// Start initializes the interpreter and enters the initial state.
func (l *Lifecycle) Start() {
	l.interp.Start()
	l.ctx.Status = StatusFromMachine(l.interp.State().Value)
}

// Stop stops the interpreter.
func (l *Lifecycle) Stop() {
	l.interp.Stop()
}

// Status returns the current lifecycle status.
func (l *Lifecycle) Status() event.Status {
	return StatusFromMachine(l.interp.State().Value)
}

// Advance applies the next observed status. An event older than the
// lifecycle position is rejected with ErrStaleTransition; a status
// change without a statechart edge is rejected with
// ErrIllegalTransition and leaves the lifecycle untouched.
func (l *Lifecycle) Advance(to event.Status, at time.Time, reason string) error {
	if at.Before(l.ctx.LastEventAt) {
		return ErrStaleTransition
	}

	current := l.Status()
	if to == current {
		// Step progress or duplicate delivery within one status.
		l.ctx.Status = to
		l.ctx.LastEventAt = at
		return nil
	}

	if !Legal(current, to) {
		return ErrIllegalTransition
	}

	l.interp.Send(statekit.Event{
		Type: EventFor(to),
		Payload: TransitionPayload{
			To:        to,
			EventTime: at,
			Reason:    reason,
		},
	})

	l.ctx.Status = StatusFromMachine(l.interp.State().Value)
	return nil
}

// ResumeFrom restores the lifecycle to a stored position. Used when an
// execution already has persisted state.
func (l *Lifecycle) ResumeFrom(status event.Status, at time.Time) error {
	snapshot := statekit.Snapshot[*Context]{
		MachineID:    "workflow",
		CurrentState: statekit.StateID(string(status)),
		Context:      l.ctx,
		CreatedAt:    time.Now(),
	}

	if err := l.interp.Restore(snapshot); err != nil {
		return fmt.Errorf("failed to restore lifecycle: %w", err)
	}

	l.ctx.Status = status
	l.ctx.LastEventAt = at
	return nil
}

// IsTerminal returns true if the lifecycle reached a final state.
func (l *Lifecycle) IsTerminal() bool {
	return l.interp.Done()
}

// Context returns the lifecycle context.
func (l *Lifecycle) Context() *Context {
	return l.ctx
}
