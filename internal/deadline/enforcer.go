// Package deadline counts an attempt down to zero and signals the warning
// and expiry moments.
package deadline

import (
	"sync"
	"time"
)

// DefaultWarnAt is how much time must be left for the one-time warning.
const DefaultWarnAt = 5 * time.Minute

// Hooks are invoked from the enforcer goroutine, never while its lock is held.
// Any of them may be nil.
type Hooks struct {
	OnTick    func(remaining time.Duration)
	OnWarning func(remaining time.Duration)
	OnExpired func()
}

// Enforcer ticks once per second. It warns once on the first tick with
// remaining <= warnAt and expires exactly once on the tick that reaches zero.
type Enforcer struct {
	clock  Clock
	warnAt time.Duration
	hooks  Hooks

	mu        sync.Mutex
	remaining int // seconds
	warned    bool
	expired   bool
	stopped   bool

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	doneOnce sync.Once
}

// Start begins a countdown of duration, rounded down to whole seconds. The
// ticker exists when Start returns, so a ManualClock may be advanced right away.
func Start(clock Clock, duration, warnAt time.Duration, hooks Hooks) *Enforcer {
	if clock == nil {
		clock = SystemClock{}
	}
	e := &Enforcer{
		clock:     clock,
		warnAt:    warnAt,
		hooks:     hooks,
		remaining: int(duration / time.Second),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	ticker := clock.NewTicker(time.Second)
	go e.loop(ticker)
	return e
}

func (e *Enforcer) loop(ticker Ticker) {
	defer ticker.Stop()
	defer e.finish()

	for {
		select {
		case <-e.stop:
			return
		case <-ticker.C():
		}

		remaining, warn, expire, ok := e.tick()
		if !ok {
			return
		}

		if e.hooks.OnTick != nil {
			e.hooks.OnTick(remaining)
		}
		if warn && e.hooks.OnWarning != nil {
			e.hooks.OnWarning(remaining)
		}
		if expire {
			// Release Stop callers before the expiry hook, which usually
			// ends up calling Stop itself.
			ticker.Stop()
			e.finish()
			if e.hooks.OnExpired != nil {
				e.hooks.OnExpired()
			}
			return
		}
	}
}

func (e *Enforcer) tick() (remaining time.Duration, warn, expire, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped || e.expired {
		return 0, false, false, false
	}
	if e.remaining > 0 {
		e.remaining--
	}
	remaining = time.Duration(e.remaining) * time.Second

	if !e.warned && remaining <= e.warnAt {
		e.warned = true
		warn = true
	}
	if e.remaining == 0 {
		e.expired = true
		expire = true
	}
	return remaining, warn, expire, true
}

func (e *Enforcer) finish() {
	e.doneOnce.Do(func() { close(e.done) })
}

// Stop ends the countdown and waits for the goroutine to quit. No hook runs
// after Stop returns, except an expiry hook already in progress. Stop is
// idempotent and may be called from OnExpired, but not from OnTick or OnWarning.
func (e *Enforcer) Stop() {
	e.mu.Lock()
	e.stopped = true
	e.mu.Unlock()

	e.stopOnce.Do(func() { close(e.stop) })
	<-e.done
}

// Remaining returns the time left on the clock.
func (e *Enforcer) Remaining() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return time.Duration(e.remaining) * time.Second
}

// Warned reports whether the low-time warning was emitted.
func (e *Enforcer) Warned() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.warned
}

// Expired reports whether the countdown reached zero.
func (e *Enforcer) Expired() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.expired
}

// Done is closed once the countdown is over, by expiry or Stop.
func (e *Enforcer) Done() <-chan struct{} {
	return e.done
}
