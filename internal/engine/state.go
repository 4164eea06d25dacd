package engine

import (
	"log/slog"
	"time"
)

// State is the lifecycle position of a single request.
type State int

const (
	StateIdle State = iota
	StateValidating
	StateCacheCheck
	StateComputing
	StateCompleted
	StateError
	StateCanceled
)

var stateNames = [...]string{
	StateIdle:       "idle",
	StateValidating: "validating",
	StateCacheCheck: "cache_check",
	StateComputing:  "computing",
	StateCompleted:  "completed",
	StateError:      "error",
	StateCanceled:   "canceled",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no further transition can follow s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateError || s == StateCanceled
}

// transitions lists the legal successors of every state.
var transitions = map[State][]State{
	StateIdle:       {StateValidating},
	StateValidating: {StateCacheCheck, StateError},
	StateCacheCheck: {StateCompleted, StateComputing, StateCanceled},
	StateComputing:  {StateCompleted, StateError, StateCanceled},
}

// CanTransition reports whether from → to is legal.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Event describes one state transition of a request.
type Event struct {
	RequestID    string    `json:"request_id"`
	CalculatorID string    `json:"calculator_id"`
	Stream       string    `json:"stream,omitempty"`
	Generation   uint64    `json:"generation,omitempty"`
	From         State     `json:"from"`
	To           State     `json:"to"`
	At           time.Time `json:"at"`
	Err          error     `json:"-"`
}

// tracker walks one request through the state machine and publishes every
// transition.
type tracker struct {
	e     *Engine
	req   Request
	state State
}

func (t *tracker) to(next State, err error) {
	if !CanTransition(t.state, next) {
		slog.Error("engine: illegal state transition",
			"request", t.req.ID, "from", t.state.String(), "to", next.String())
		return
	}
	ev := Event{
		RequestID:    t.req.ID,
		CalculatorID: t.req.CalculatorID,
		Stream:       t.req.Stream,
		Generation:   t.req.Generation,
		From:         t.state,
		To:           next,
		At:           t.e.now(),
		Err:          err,
	}
	t.state = next
	t.e.publish(ev)
}
