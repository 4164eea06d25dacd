package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/calcengine/calcengine/pkg/types"
)

// Calculator is the plugin contract implemented by every calculator.
// Validate and Calculate must be pure with respect to external state.
type Calculator interface {
	// ID returns the unique calculator identifier, e.g. "compound-interest".
	ID() string
	// Category groups calculators for scheduling priority and debounce policy.
	Category() string
	// Validate checks inputs and reports field-level errors.
	Validate(inputs types.Inputs) types.ValidationResult
	// Calculate computes a result from already validated inputs.
	Calculate(ctx context.Context, inputs types.Inputs) (*types.CalculationResult, error)
}

// Advisor is implemented by calculators that can produce advisory warnings
// for valid but unusual inputs.
type Advisor interface {
	Advise(inputs types.Inputs) []types.Warning
}

// Limiter is implemented by calculators that can describe the accepted range
// of each input field.
type Limiter interface {
	Limits() []types.FieldLimit
}

var (
	// ErrDuplicateID is matched by *DuplicateIDError.
	ErrDuplicateID = errors.New("calculator already registered")
	// ErrNotFound is matched by *NotFoundError.
	ErrNotFound = errors.New("calculator not found")
)

// DuplicateIDError is returned by Register when the id is already in use.
type DuplicateIDError struct {
	ID string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("registry: calculator %q already registered", e.ID)
}

func (e *DuplicateIDError) Is(target error) bool { return target == ErrDuplicateID }

// NotFoundError is returned by Get for unknown calculator ids.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("registry: calculator %q not found", e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// Registry maps calculator ids to their implementations.
type Registry struct {
	mu   sync.RWMutex
	byID map[string]Calculator
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{byID: make(map[string]Calculator)}
}

// Register adds c. It fails if another calculator already uses c.ID().
func (r *Registry) Register(c Calculator) error {
	if c == nil || c.ID() == "" {
		return fmt.Errorf("registry: calculator must have a non-empty id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[c.ID()]; ok {
		return &DuplicateIDError{ID: c.ID()}
	}
	r.byID[c.ID()] = c
	return nil
}

// MustRegister is like Register but panics on error. Intended for wiring the
// built-in calculators at startup.
func (r *Registry) MustRegister(cs ...Calculator) {
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			panic(err)
		}
	}
}

// Get returns the calculator registered under id.
func (r *Registry) Get(id string) (Calculator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[id]
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	return c, nil
}

// List returns every registered calculator sorted by id.
func (r *Registry) List() []Calculator {
	r.mu.RLock()
	out := make([]Calculator, 0, len(r.byID))
	for _, c := range r.byID {
		out = append(out, c)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Len returns the number of registered calculators.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
