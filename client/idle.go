package client

import (
	"sync"
	"time"
)

// IdleTimer calls onIdle once no activity was recorded for the timeout. Each
// SessionContext owns its own timer.
type IdleTimer struct {
	timeout time.Duration
	onIdle  func()

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	stopped bool
}

// NewIdleTimer returns a timer that is not yet running. A timeout of zero or
// less disables it.
func NewIdleTimer(timeout time.Duration, onIdle func()) *IdleTimer {
	return &IdleTimer{timeout: timeout, onIdle: onIdle}
}

// Start arms the timer.
func (t *IdleTimer) Start() {
	t.Reset()
}

// Reset re-arms the timer from now, whether or not it was running.
func (t *IdleTimer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || t.timeout <= 0 || t.onIdle == nil {
		return
	}
	t.stopLocked()
	gen := t.gen
	t.timer = time.AfterFunc(t.timeout, func() { t.fire(gen) })
}

// Cancel disarms the timer. It can be started again.
func (t *IdleTimer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

// Stop disarms the timer for good.
func (t *IdleTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
	t.stopped = true
}

// Active reports whether the timer is armed.
func (t *IdleTimer) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timer != nil
}

// stopLocked bumps the generation so a callback already racing past
// timer.Stop sees it is stale.
func (t *IdleTimer) stopLocked() {
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

func (t *IdleTimer) fire(gen uint64) {
	t.mu.Lock()
	if gen != t.gen || t.stopped {
		t.mu.Unlock()
		return
	}
	t.timer = nil
	t.mu.Unlock()

	t.onIdle()
}
