package deadline

import (
	"sync"
	"time"
)

// Ticker is the part of time.Ticker the enforcer needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Clock is the time source of an Enforcer.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) NewTicker(d time.Duration) Ticker {
	return systemTicker{time.NewTicker(d)}
}

type systemTicker struct{ t *time.Ticker }

func (s systemTicker) C() <-chan time.Time { return s.t.C }
func (s systemTicker) Stop()               { s.t.Stop() }

// ManualClock is a Clock driven by Advance. Every tick is delivered
// synchronously: Advance returns only after each live ticker has received
// all of its ticks or has been stopped.
type ManualClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*manualTicker
}

// NewManualClock creates a ManualClock reading start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (m *ManualClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *ManualClock) NewTicker(d time.Duration) Ticker {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := &manualTicker{
		every:   d,
		next:    m.now.Add(d),
		c:       make(chan time.Time),
		stopped: make(chan struct{}),
	}
	m.tickers = append(m.tickers, t)
	return t
}

// Advance moves the clock forward by d, firing every ticker whose period
// elapsed along the way.
func (m *ManualClock) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		t, at := m.nextDue(target)
		if t == nil {
			break
		}
		select {
		case t.c <- at:
		case <-t.stopped:
		}
	}

	m.mu.Lock()
	m.now = target
	m.mu.Unlock()
}

// AdvanceSeconds is Advance(n * time.Second).
func (m *ManualClock) AdvanceSeconds(n int) {
	m.Advance(time.Duration(n) * time.Second)
}

// nextDue picks the earliest live ticker due at or before target and moves
// the clock and that ticker forward.
func (m *ManualClock) nextDue(target time.Time) (*manualTicker, time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var due *manualTicker
	live := m.tickers[:0]
	for _, t := range m.tickers {
		if t.isStopped() {
			continue
		}
		live = append(live, t)
		if t.next.After(target) {
			continue
		}
		if due == nil || t.next.Before(due.next) {
			due = t
		}
	}
	m.tickers = live

	if due == nil {
		return nil, time.Time{}
	}
	at := due.next
	due.next = due.next.Add(due.every)
	m.now = at
	return due, at
}

type manualTicker struct {
	every   time.Duration
	next    time.Time
	c       chan time.Time
	stopped chan struct{}
	once    sync.Once
}

func (t *manualTicker) C() <-chan time.Time { return t.c }

func (t *manualTicker) Stop() {
	t.once.Do(func() { close(t.stopped) })
}

func (t *manualTicker) isStopped() bool {
	select {
	case <-t.stopped:
		return true
	default:
		return false
	}
}
