package sso

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"

	"github.com/platinummonkey/tenantgate/pkg/observability"
)

// State is the state of one login attempt
type State string

const (
	StateInitiated         State = "INITIATED"
	StateRedirectedToIdP   State = "REDIRECTED_TO_IDP"
	StateAssertionReceived State = "ASSERTION_RECEIVED"
	StateSucceeded         State = "SUCCEEDED"
	StateFailed            State = "FAILED"
	StateErrored           State = "ERRORED"
)

func (s State) String() string { return string(s) }

// Terminal reports whether no further transition leaves s
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateErrored
}

// Transition is an external event of a login attempt
type Transition string

const (
	TransitionRedirect Transition = "redirect"
	TransitionReceive  Transition = "receive"
	TransitionSucceed  Transition = "succeed"
	TransitionFail     Transition = "fail"
	TransitionError    Transition = "error"
)

func (t Transition) String() string { return string(t) }

func convertEvent(transition Transition, sourceStates []State, destinationState State) fsm.EventDesc {
	src := make([]string, len(sourceStates))
	for i, state := range sourceStates {
		src[i] = state.String()
	}
	return fsm.EventDesc{
		Name: transition.String(),
		Src:  src,
		Dst:  destinationState.String(),
	}
}

// LoginMachine tracks one login attempt. Initiate requests start in INITIATED and
// assertion consumer requests in REDIRECTED_TO_IDP, since the relay state they
// carry is the proof of the earlier redirect.
type LoginMachine struct {
	machine *fsm.FSM
}

// NewLoginMachine creates a machine in start
func NewLoginMachine(start State) *LoginMachine {
	live := []State{StateInitiated, StateRedirectedToIdP, StateAssertionReceived}

	return &LoginMachine{
		machine: fsm.NewFSM(
			start.String(),
			fsm.Events{
				convertEvent(TransitionRedirect, []State{StateInitiated}, StateRedirectedToIdP),
				convertEvent(TransitionReceive, []State{StateRedirectedToIdP}, StateAssertionReceived),
				convertEvent(TransitionSucceed, []State{StateAssertionReceived}, StateSucceeded),
				convertEvent(TransitionFail, live, StateFailed),
				convertEvent(TransitionError, live, StateErrored),
			},
			fsm.Callbacks{
				"enter_state": func(ctx context.Context, e *fsm.Event) {
					observability.FromContext(ctx).WithFields(map[string]interface{}{
						"from":  e.Src,
						"to":    e.Dst,
						"event": e.Event,
					}).Debug("saml login transition")
				},
			},
		),
	}
}

// Current returns the current state
func (m *LoginMachine) Current() State {
	return State(m.machine.Current())
}

// Can reports whether t is allowed from the current state
func (m *LoginMachine) Can(t Transition) bool {
	return m.machine.Can(t.String())
}

// Fire applies t
func (m *LoginMachine) Fire(ctx context.Context, t Transition) error {
	if err := m.machine.Event(ctx, t.String()); err != nil {
		return fmt.Errorf("saml login cannot %s from %s: %w", t, m.Current(), err)
	}
	return nil
}
