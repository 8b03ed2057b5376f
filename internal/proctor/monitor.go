// Package proctor watches the test-taker's environment during an attempt and
// keeps an append-only log of violations. It never ends an attempt on its own.
package proctor

import (
	"strings"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-engine/internal/model"
)

// EnvState is the environment observed when an attempt starts.
type EnvState struct {
	Fullscreen bool `json:"fullscreen"`
	Visible    bool `json:"visible"`
}

// KeyEvent describes a key press the presentation layer may suppress.
type KeyEvent struct {
	Key   string `json:"key" binding:"required"`
	Alt   bool   `json:"alt"`
	Ctrl  bool   `json:"ctrl"`
	Shift bool   `json:"shift"`
	Meta  bool   `json:"meta"`
}

// combo normalizes an event into "ctrl+shift+i" form.
func (k KeyEvent) combo() string {
	var parts []string
	if k.Ctrl {
		parts = append(parts, "ctrl")
	}
	if k.Alt {
		parts = append(parts, "alt")
	}
	if k.Shift {
		parts = append(parts, "shift")
	}
	if k.Meta {
		parts = append(parts, "meta")
	}
	return strings.Join(append(parts, strings.ToLower(k.Key)), "+")
}

var suppressedKeys = mapset.NewThreadUnsafeSet(
	"f11",
	"f12",
	"alt+tab",
	"ctrl+shift+i",
	"ctrl+shift+c",
)

// ViolationSink receives every violation after it is logged.
type ViolationSink interface {
	ReportViolation(v model.Violation)
}

// Monitor tracks fullscreen and visibility for one attempt at a time.
type Monitor struct {
	now  func() time.Time
	sink ViolationSink
	log  zerolog.Logger

	mu         sync.Mutex
	attached   bool
	attemptID  string
	examID     string
	fullscreen bool
	visible    bool
	violations []model.Violation
}

// NewMonitor creates a detached Monitor. now and sink may be nil.
func NewMonitor(now func() time.Time, sink ViolationSink, log zerolog.Logger) *Monitor {
	if now == nil {
		now = time.Now
	}
	return &Monitor{
		now:  now,
		sink: sink,
		log:  log.With().Str("component", "proctor").Logger(),
	}
}

// Attach scopes the monitor to an attempt and resets the violation log.
func (m *Monitor) Attach(attemptID, examID string, env EnvState) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.attached = true
	m.attemptID = attemptID
	m.examID = examID
	m.fullscreen = env.Fullscreen
	m.visible = env.Visible
	m.violations = nil
}

// Detach stops monitoring. It is idempotent.
func (m *Monitor) Detach() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attached = false
}

// FullscreenChanged records a fullscreen transition. Leaving fullscreen while
// attached is logged as a violation.
func (m *Monitor) FullscreenChanged(active bool) (model.Violation, bool) {
	m.mu.Lock()
	if !m.attached {
		m.mu.Unlock()
		return model.Violation{}, false
	}
	was := m.fullscreen
	m.fullscreen = active
	var v model.Violation
	logged := was && !active
	if logged {
		v = m.appendLocked(model.ViolationExitedFullscreen)
	}
	m.mu.Unlock()

	if logged {
		m.report(v)
	}
	return v, logged
}

// VisibilityChanged records a visibility transition. Becoming hidden while
// attached is logged as a violation.
func (m *Monitor) VisibilityChanged(visible bool) (model.Violation, bool) {
	m.mu.Lock()
	if !m.attached {
		m.mu.Unlock()
		return model.Violation{}, false
	}
	was := m.visible
	m.visible = visible
	var v model.Violation
	logged := was && !visible
	if logged {
		v = m.appendLocked(model.ViolationTabHidden)
	}
	m.mu.Unlock()

	if logged {
		m.report(v)
	}
	return v, logged
}

// appendLocked must be called with m.mu held.
func (m *Monitor) appendLocked(kind model.ViolationKind) model.Violation {
	v := model.Violation{
		AttemptID: m.attemptID,
		ExamID:    m.examID,
		Kind:      kind,
		Timestamp: m.now().UTC(),
	}
	m.violations = append(m.violations, v)
	return v
}

func (m *Monitor) report(v model.Violation) {
	m.log.Warn().
		Str("attempt_id", v.AttemptID).
		Str("kind", string(v.Kind)).
		Msg("Proctoring violation")
	if m.sink != nil {
		m.sink.ReportViolation(v)
	}
}

// IsSecure reports whether the environment is currently fullscreen.
func (m *Monitor) IsSecure() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fullscreen
}

// Attached reports whether the monitor is scoped to an attempt.
func (m *Monitor) Attached() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attached
}

// Violations returns a copy of the log of the current or last attempt.
func (m *Monitor) Violations() []model.Violation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Violation, len(m.violations))
	copy(out, m.violations)
	return out
}

// ShouldSuppress reports whether the presentation layer should swallow the
// key press. This is best effort; the platform may deliver the key anyway.
func (m *Monitor) ShouldSuppress(ev KeyEvent) bool {
	m.mu.Lock()
	attached := m.attached
	m.mu.Unlock()
	return attached && suppressedKeys.Contains(ev.combo())
}
