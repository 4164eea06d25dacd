package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/calcengine/calcengine/internal/cache"
	"github.com/calcengine/calcengine/internal/config"
	"github.com/calcengine/calcengine/internal/debounce"
	"github.com/calcengine/calcengine/internal/registry"
	"github.com/calcengine/calcengine/internal/scheduler"
	"github.com/calcengine/calcengine/pkg/types"
)

// Request is one calculation request.
type Request struct {
	// ID identifies the request in events and logs. Generated when empty.
	ID           string
	CalculatorID string
	Inputs       types.Inputs
	// Priority overrides the category priority when positive.
	Priority int
	// Stream scopes generation tracking: a newer request on the same stream
	// supersedes older ones. Empty means untracked.
	Stream   string
	IssuedAt time.Time
	// Generation is assigned by the engine for requests with a Stream.
	Generation uint64
}

// streamState tracks the newest generation issued on a stream.
type streamState struct {
	gen    uint64
	active int
	// canceled is gen as left by the last Cancel; a repeat Cancel with no
	// newer request is a no-op.
	canceled uint64
	// forget drops the stream once its last request finishes.
	forget bool
	// done is closed by Cancel to release waiters; replaced afterwards.
	done chan struct{}
}

// computed is the shared outcome of one computation. The first waiter that
// may surface it claims it, storing it in the cache and counting it once.
type computed struct {
	res     *types.CalculationResult
	claimed atomic.Bool
}

// claim reports whether the caller is the first to take c.
func (c *computed) claim() bool {
	return c.claimed.CompareAndSwap(false, true)
}

// computation is a detached calculation that can be aborted once nobody
// waits for it anymore.
type computation struct {
	cancel context.CancelFunc
}

// Engine orchestrates validation, caching, deduplication and scheduling of
// calculations.
//
// All exported methods are safe for concurrent use.
type Engine struct {
	reg       *registry.Registry
	cache     *cache.Cache
	sched     *scheduler.Scheduler
	debouncer *debounce.Debouncer
	group     singleflight.Group
	now       func() time.Time // injectable for deterministic tests

	mu      sync.Mutex
	cfg     config.EngineConfig
	stats   Stats
	streams map[string]*streamState
	waiters map[string]int          // callers waiting per cache key
	running map[string]*computation // in-flight computation per cache key
	subs    map[int]func(Event)
	nextSub int
}

// New builds an Engine over reg using the engine section of the configuration.
func New(reg *registry.Registry, cfg config.EngineConfig) (*Engine, error) {
	c, err := cache.New(cfg.CacheSize, cfg.CacheTTL)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	e := &Engine{
		reg:       reg,
		cache:     c,
		debouncer: debounce.New(),
		now:       time.Now,
		cfg:       cfg,
		streams:   make(map[string]*streamState),
		waiters:   make(map[string]int),
		running:   make(map[string]*computation),
		subs:      make(map[int]func(Event)),
	}
	e.sched = scheduler.New(scheduler.Options{
		Workers:  cfg.Workers,
		Pressure: func() float64 { return c.Stats().UsagePercent },
	})
	return e, nil
}

// Run drives background maintenance (cache TTL eviction) until ctx is done.
func (e *Engine) Run(ctx context.Context) {
	e.cache.Run(ctx)
}

// Close cancels pending debounced triggers and stops accepting work.
func (e *Engine) Close() {
	e.debouncer.Stop()
	e.sched.Close()
}

// Registry returns the calculator registry the engine serves.
func (e *Engine) Registry() *registry.Registry { return e.reg }

// Calculate runs req through validation, the cache and, on a miss, the
// scheduler. It returns *ValidationError, *registry.NotFoundError,
// *CalculationError or ErrCanceled on failure. A returned result is a private
// copy; Cached is set when it came from the cache.
func (e *Engine) Calculate(ctx context.Context, req Request) (*types.CalculationResult, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.IssuedAt.IsZero() {
		req.IssuedAt = e.now()
	}

	e.mu.Lock()
	cfg := e.cfg
	var done chan struct{}
	if req.Stream != "" {
		st := e.stream(req.Stream)
		st.gen++
		st.active++
		req.Generation = st.gen
		done = st.done
	}
	e.mu.Unlock()
	if req.Stream != "" {
		defer e.releaseStream(req.Stream)
	}

	t := &tracker{e: e, req: req}
	t.to(StateValidating, nil)

	// ── Validation gate ─────────────────────────────────────────────────────
	calc, err := e.reg.Get(req.CalculatorID)
	if err != nil {
		t.to(StateError, err)
		return nil, err
	}
	vres := validate(calc, req.Inputs)
	if !vres.Valid {
		e.mu.Lock()
		e.stats.ValidationErrorCount++
		e.mu.Unlock()
		verr := &ValidationError{CalculatorID: req.CalculatorID, Errors: vres.Errors}
		t.to(StateError, verr)
		return nil, verr
	}
	key, err := cache.Key(req.CalculatorID, req.Inputs, cfg.Precision)
	if err != nil {
		verr := &ValidationError{CalculatorID: req.CalculatorID, Errors: []types.FieldError{{Message: err.Error()}}}
		e.mu.Lock()
		e.stats.ValidationErrorCount++
		e.mu.Unlock()
		t.to(StateError, verr)
		return nil, verr
	}
	t.to(StateCacheCheck, nil)

	// ── Cache ───────────────────────────────────────────────────────────────
	if res, ok := e.cache.Get(key); ok {
		e.sched.RecordCacheLookup(true)
		if ctx.Err() != nil || e.stale(req) {
			return nil, e.cancel(t)
		}
		e.mu.Lock()
		e.stats.CacheHitCount++
		e.mu.Unlock()
		res.Cached = true
		res.Warnings = vres.Warnings
		t.to(StateCompleted, nil)
		return res, nil
	}
	e.sched.RecordCacheLookup(false)

	// ── Compute ─────────────────────────────────────────────────────────────
	e.mu.Lock()
	e.stats.CacheMissCount++
	e.stats.ActiveRequests++
	if e.waiters[key] > 0 {
		e.stats.DedupedCount++
	}
	e.waiters[key]++
	e.mu.Unlock()
	t.to(StateComputing, nil)

	finished := false
	defer func() { e.leave(key, finished) }()

	priority := req.Priority
	if priority <= 0 {
		priority = cfg.Policy(calc.Category()).Priority
	}
	ch := e.group.DoChan(key, func() (any, error) {
		return e.compute(key, calc, req.Inputs.Clone(), priority, cfg.CalculationTimeout)
	})

	select {
	case r := <-ch:
		finished = true
		if e.stale(req) {
			return nil, e.cancel(t)
		}
		if r.Err != nil {
			cerr := &CalculationError{CalculatorID: req.CalculatorID, Err: r.Err}
			e.mu.Lock()
			e.stats.ErrorCount++
			e.mu.Unlock()
			slog.Warn("engine: calculation failed",
				"calculator", req.CalculatorID, "request", req.ID, "err", r.Err)
			t.to(StateError, cerr)
			return nil, cerr
		}
		c := r.Val.(*computed)
		if c.claim() {
			e.cache.Set(key, c.res)
			e.mu.Lock()
			e.stats.CalculationCount++
			e.stats.LastCalculatedAt = c.res.CalculatedAt
			e.mu.Unlock()
		}
		out := c.res.Copy()
		out.Warnings = vres.Warnings
		t.to(StateCompleted, nil)
		return out, nil

	case <-ctx.Done():
		return nil, e.cancel(t)

	case <-done:
		return nil, e.cancel(t)
	}
}

// compute runs the calculator through the scheduler on a context detached
// from every caller. It is invoked at most once per in-flight key.
func (e *Engine) compute(key string, calc registry.Calculator, inputs types.Inputs, priority int, timeout time.Duration) (*computed, error) {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), timeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	defer cancel()

	run := &computation{cancel: cancel}
	e.mu.Lock()
	e.running[key] = run
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		if e.running[key] == run {
			delete(e.running, key)
		}
		e.mu.Unlock()
	}()

	res, err := e.sched.Schedule(ctx, scheduler.Task{
		Name:     key,
		Priority: priority,
		Run: func(ctx context.Context) (*types.CalculationResult, error) {
			return calc.Calculate(ctx, inputs)
		},
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("exceeded calculation timeout of %s: %w", timeout, err)
		}
		return nil, err
	}
	if res == nil {
		return nil, fmt.Errorf("calculator %s returned no result", calc.ID())
	}
	res.CalculatedAt = e.now()
	res.Cached = false
	return &computed{res: res}, nil
}

// leave drops one waiter for key. When the last waiter gives up before the
// computation finished, the computation is canceled and forgotten so the
// next caller starts afresh.
func (e *Engine) leave(key string, finished bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stats.ActiveRequests--
	e.waiters[key]--
	if e.waiters[key] > 0 {
		return
	}
	delete(e.waiters, key)
	if finished {
		return
	}
	if run, ok := e.running[key]; ok {
		run.cancel()
		delete(e.running, key)
	}
	e.group.Forget(key)
}

// cancel records a transition to Canceled from CacheCheck or Computing.
func (e *Engine) cancel(t *tracker) error {
	e.mu.Lock()
	e.stats.CanceledCount++
	e.mu.Unlock()
	t.to(StateCanceled, ErrCanceled)
	return ErrCanceled
}

// stream returns the state for name, creating it. Callers hold e.mu.
func (e *Engine) stream(name string) *streamState {
	st, ok := e.streams[name]
	if !ok {
		st = &streamState{done: make(chan struct{})}
		e.streams[name] = st
	}
	return st
}

func (e *Engine) releaseStream(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st, ok := e.streams[name]; ok {
		st.active--
		if st.active == 0 && st.forget {
			delete(e.streams, name)
		}
	}
}

// stale reports whether a newer request was issued on req's stream.
func (e *Engine) stale(req Request) bool {
	if req.Stream == "" {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.streams[req.Stream]
	return !ok || st.gen != req.Generation
}

// Cancel aborts every in-flight request and any pending debounced trigger on
// stream. Waiting callers return ErrCanceled. It reports whether anything was
// canceled; canceling an idle stream has no effect.
func (e *Engine) Cancel(stream string) bool {
	debounced := e.debouncer.Cancel(stream)

	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.streams[stream]
	if !ok || st.active == 0 || st.canceled == st.gen {
		return debounced
	}
	st.gen++
	st.canceled = st.gen
	close(st.done)
	st.done = make(chan struct{})
	return true
}

// Forget drops the generation state of stream once it is idle.
func (e *Engine) Forget(stream string) {
	e.debouncer.Cancel(stream)
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.streams[stream]
	if !ok {
		return
	}
	if st.active == 0 {
		delete(e.streams, stream)
		return
	}
	st.forget = true
}

// Debounce schedules fn after the debounce delay of category, replacing any
// pending trigger with the same key.
func (e *Engine) Debounce(key, category string, fn func()) {
	e.mu.Lock()
	delay := e.cfg.Policy(category).Debounce
	e.mu.Unlock()
	e.debouncer.Trigger(key, delay, fn)
}

// ClearCache drops every cached result.
func (e *Engine) ClearCache() {
	e.cache.Clear()
	slog.Info("engine: cache cleared")
}

// Subscribe registers fn for every state transition. fn runs synchronously on
// the goroutine performing the transition and must not block. The returned
// func removes the subscription.
func (e *Engine) Subscribe(fn func(Event)) (unsubscribe func()) {
	e.mu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.subs, id)
			e.mu.Unlock()
		})
	}
}

func (e *Engine) publish(ev Event) {
	e.mu.Lock()
	if len(e.subs) == 0 {
		e.mu.Unlock()
		return
	}
	fns := make([]func(Event), 0, len(e.subs))
	for _, fn := range e.subs {
		fns = append(fns, fn)
	}
	e.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// Precision is the number of decimals numeric inputs are rounded to for
// cache keys.
func (e *Engine) Precision() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.Precision
}

// ApplyConfig hot-reloads the runtime-adjustable settings: cache size and
// TTL, key precision, category policies, timeout and suggestion rules.
// Changing Workers requires a restart.
func (e *Engine) ApplyConfig(cfg config.EngineConfig) error {
	if _, err := e.cache.Resize(cfg.CacheSize); err != nil {
		return fmt.Errorf("engine: apply config: %w", err)
	}
	e.cache.SetTTL(cfg.CacheTTL)

	for _, r := range cfg.Suggestions {
		for _, cond := range r.When {
			if err := scheduler.ValidateCondition(cond); err != nil {
				slog.Warn("engine: suggestion rule will never apply", "rule", r.Name, "err", err)
			}
		}
	}

	e.mu.Lock()
	old := e.cfg
	e.cfg = cfg
	e.mu.Unlock()

	if old.Precision != cfg.Precision {
		e.cache.Clear()
	}
	if old.Workers != cfg.Workers {
		slog.Warn("engine: worker count change takes effect after restart",
			"current", old.Workers, "configured", cfg.Workers)
	}
	slog.Info("engine: config applied",
		"cache_size", cfg.CacheSize,
		"cache_ttl", cfg.CacheTTL,
		"precision", cfg.Precision,
		"calculation_timeout", cfg.CalculationTimeout,
	)
	return nil
}
