package debounce

import (
	"sync"
	"time"
)

type pending struct {
	timer *time.Timer
	gen   uint64
}

// Debouncer schedules at most one pending call per key.
type Debouncer struct {
	mu      sync.Mutex
	pending map[string]*pending
	gen     uint64
	stopped bool
}

// New returns an idle Debouncer.
func New() *Debouncer {
	return &Debouncer{pending: make(map[string]*pending)}
}

// Trigger cancels any pending call for key and schedules fn to run after
// delay. Only the most recent fn for a key runs. Trigger after Stop is a
// no-op.
func (d *Debouncer) Trigger(key string, delay time.Duration, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if p, ok := d.pending[key]; ok {
		p.timer.Stop()
	}

	d.gen++
	gen := d.gen
	p := &pending{gen: gen}
	p.timer = time.AfterFunc(delay, func() { d.fire(key, gen, fn) })
	d.pending[key] = p
}

func (d *Debouncer) fire(key string, gen uint64, fn func()) {
	d.mu.Lock()
	p, ok := d.pending[key]
	if !ok || p.gen != gen {
		d.mu.Unlock()
		return
	}
	delete(d.pending, key)
	d.mu.Unlock()

	fn()
}

// Cancel aborts the pending call for key. It reports whether one was pending;
// canceling twice is harmless.
func (d *Debouncer) Cancel(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pending[key]
	if !ok {
		return false
	}
	p.timer.Stop()
	delete(d.pending, key)
	return true
}

// Pending returns the number of keys with a scheduled call.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Stop cancels every pending call and rejects further triggers.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	for k, p := range d.pending {
		p.timer.Stop()
		delete(d.pending, k)
	}
}
