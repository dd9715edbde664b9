package jwtware

import (
	"errors"
	"fmt"
)

// State is a step in the request authentication lifecycle.
type State int

const (
	StateUnauthenticated State = iota
	StateTokenExtracted
	StateValidated
	StateAttached
	StateRejected
)

// ErrInvalidGateTransition is returned when a result is advanced out of order.
var ErrInvalidGateTransition = errors.New("invalid auth gate transition")

var stateNames = map[State]string{
	StateUnauthenticated: "unauthenticated",
	StateTokenExtracted:  "token_extracted",
	StateValidated:       "validated",
	StateAttached:        "attached",
	StateRejected:        "rejected",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateAttached || s == StateRejected
}

// allowed lists the forward transition from each state. Any non terminal
// state may also move to StateRejected.
var allowed = map[State]State{
	StateUnauthenticated: StateTokenExtracted,
	StateTokenExtracted:  StateValidated,
	StateValidated:       StateAttached,
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateRejected {
		return true
	}
	next, ok := allowed[from]
	return ok && next == to
}

// Result is the outcome of running a request through the gate.
type Result struct {
	State State
	// FailedAt is the state the request was in when it was rejected
	FailedAt State
	Token    string
	Subject  any
	Err      error
}

// Authenticated reports whether the subject was attached to the request.
func (r Result) Authenticated() bool {
	return r.State == StateAttached
}

func (r *Result) advance(to State) {
	if !CanTransition(r.State, to) {
		panic(fmt.Errorf("%w: %s -> %s", ErrInvalidGateTransition, r.State, to))
	}
	r.State = to
}

func (r Result) reject(err error) Result {
	if err == nil {
		err = ErrJWTMissingOrMalformed
	}
	r.FailedAt = r.State
	r.State = StateRejected
	r.Token = ""
	r.Subject = nil
	r.Err = err
	return r
}
