// Package countdown implements the per-question timer: whole-second ticks that can be
// paused, resumed and cancelled, with a single expiry notification.
package countdown

import (
	"sync"
	"time"
)

const tick = time.Second

// Timer counts down in whole seconds. Callbacks run without the timer lock held, so
// they may call back into the timer.
type Timer struct {
	clock    Clock
	onTick   func(remaining int)
	onExpire func()

	mu        sync.Mutex
	remaining int
	running   bool
	done      bool
	gen       uint64
	pending   Stopper
}

// New builds an idle timer. onTick and onExpire may be nil.
func New(clock Clock, onTick func(remaining int), onExpire func()) *Timer {
	return &Timer{clock: clock, onTick: onTick, onExpire: onExpire}
}

// Start arms the timer for d, rounded up to whole seconds.
func (t *Timer) Start(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return
	}
	t.stopLocked()
	t.remaining = int((d + tick - 1) / tick)
	t.running = true
	t.scheduleLocked()
}

// Pause freezes the remaining value.
func (t *Timer) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return
	}
	t.stopLocked()
	t.running = false
}

// Resume continues from the frozen value.
func (t *Timer) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done || t.running {
		return
	}
	t.running = true
	t.scheduleLocked()
}

// Cancel stops the tick source for good. A cancelled timer never ticks or expires.
func (t *Timer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
	t.running = false
	t.done = true
}

// Remaining is the number of whole seconds left.
func (t *Timer) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

// Running reports whether ticks are being delivered.
func (t *Timer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

func (t *Timer) scheduleLocked() {
	t.gen++
	gen := t.gen
	t.pending = t.clock.AfterFunc(tick, func() { t.fire(gen) })
}

// stopLocked invalidates any in-flight tick, even one already dequeued by the clock.
func (t *Timer) stopLocked() {
	t.gen++
	if t.pending != nil {
		t.pending.Stop()
		t.pending = nil
	}
}

func (t *Timer) fire(gen uint64) {
	t.mu.Lock()
	if gen != t.gen || !t.running || t.done {
		t.mu.Unlock()
		return
	}
	t.remaining--
	remaining := t.remaining
	expired := remaining <= 0
	if expired {
		t.running = false
		t.done = true
		t.pending = nil
	} else {
		t.scheduleLocked()
	}
	t.mu.Unlock()

	if t.onTick != nil {
		t.onTick(remaining)
	}
	if expired && t.onExpire != nil {
		t.onExpire()
	}
}
