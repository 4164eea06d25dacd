package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/calcengine/calcengine/internal/registry"
	"github.com/calcengine/calcengine/pkg/types"
)

// ErrSessionClosed is returned by Session methods after Close.
var ErrSessionClosed = errors.New("engine: session closed")

// Outcome is delivered to session subscribers after a recalculation.
// Exactly one of Result and Err is set. Canceled recalculations produce no
// outcome.
type Outcome struct {
	SessionID    string                   `json:"session_id"`
	CalculatorID string                   `json:"calculator_id"`
	Inputs       types.Inputs             `json:"inputs"`
	Result       *types.CalculationResult `json:"result,omitempty"`
	Err          error                    `json:"-"`
}

// Session holds the field values of one calculator instance and recalculates
// after each edit once the category's debounce delay has passed without
// further edits. Each session is its own generation stream.
type Session struct {
	e    *Engine
	calc registry.Calculator
	id   string

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	values   types.Inputs
	fields   map[string]bool
	onInput  map[int]func(field string, value any)
	onResult map[int]func(Outcome)
	nextSub  int
	closed   bool
}

// NewSession starts a session for calculatorID.
func (e *Engine) NewSession(calculatorID string) (*Session, error) {
	calc, err := e.reg.Get(calculatorID)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		e:        e,
		calc:     calc,
		id:       uuid.NewString(),
		ctx:      ctx,
		cancel:   cancel,
		values:   make(types.Inputs),
		fields:   make(map[string]bool),
		onInput:  make(map[int]func(string, any)),
		onResult: make(map[int]func(Outcome)),
	}, nil
}

// ID returns the session id, which is also its generation stream.
func (s *Session) ID() string { return s.id }

// CalculatorID returns the calculator the session feeds.
func (s *Session) CalculatorID() string { return s.calc.ID() }

// RegisterField declares field with an initial value. A nil initial leaves
// the field unset. Registering does not trigger a recalculation.
func (s *Session) RegisterField(field string, initial any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fields[field] = true
	if initial != nil {
		s.values[field] = initial
	}
}

// UpdateValue sets a registered field, notifies input subscribers and
// schedules a debounced recalculation. The last value wins.
func (s *Session) UpdateValue(field string, value any) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if !s.fields[field] {
		s.mu.Unlock()
		return fmt.Errorf("engine: session %s: field %q is not registered", s.id, field)
	}
	if value == nil {
		delete(s.values, field)
	} else {
		s.values[field] = value
	}
	subs := make([]func(string, any), 0, len(s.onInput))
	for _, fn := range s.onInput {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(field, value)
	}
	s.e.Debounce(s.id, s.calc.Category(), s.fire)
	return nil
}

// Values returns a copy of the current field values.
func (s *Session) Values() types.Inputs {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values.Clone()
}

// OnInputChange registers fn for every accepted field update.
func (s *Session) OnInputChange(fn func(field string, value any)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.onInput[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.onInput, id)
		s.mu.Unlock()
	}
}

// OnOutcome registers fn for every non-canceled recalculation outcome.
func (s *Session) OnOutcome(fn func(Outcome)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.onResult[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.onResult, id)
		s.mu.Unlock()
	}
}

// Recalculate cancels any pending debounced trigger and recalculates now. The
// outcome is returned and also delivered to subscribers.
func (s *Session) Recalculate() (*types.CalculationResult, error) {
	s.e.debouncer.Cancel(s.id)
	return s.run()
}

func (s *Session) fire() {
	s.run() //nolint:errcheck
}

func (s *Session) run() (*types.CalculationResult, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	inputs := s.values.Clone()
	s.mu.Unlock()

	res, err := s.e.Calculate(s.ctx, Request{
		CalculatorID: s.calc.ID(),
		Inputs:       inputs,
		Stream:       s.id,
	})
	if errors.Is(err, ErrCanceled) {
		return nil, err
	}

	out := Outcome{SessionID: s.id, CalculatorID: s.calc.ID(), Inputs: inputs, Result: res, Err: err}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return res, err
	}
	subs := make([]func(Outcome), 0, len(s.onResult))
	for _, fn := range s.onResult {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(out)
	}
	return res, err
}

// Close cancels the pending trigger and any in-flight recalculation. No
// outcome is delivered afterwards. Close is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.e.Cancel(s.id)
	s.e.Forget(s.id)
}
