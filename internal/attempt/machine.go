// Package attempt owns the lifecycle of the single current exam attempt:
// Idle → InProgress → Finalizing → Idle.
package attempt

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-engine/internal/deadline"
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/proctor"
	"github.com/stemsi/exstem-engine/internal/scoring"
)

// State of the Machine.
type State int

const (
	StateIdle State = iota
	StateInProgress
	StateFinalizing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInProgress:
		return "in_progress"
	case StateFinalizing:
		return "finalizing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(text []byte) error {
	for _, candidate := range []State{StateIdle, StateInProgress, StateFinalizing} {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown attempt state %q", text)
}

// ExamLookup resolves exams from the loaded catalog.
type ExamLookup interface {
	Exam(id string) (*model.Exam, bool)
}

// History is the completed-attempt log the machine counts against and
// appends to.
type History interface {
	Count(examID string) int
	Record(ctx context.Context, a *model.Attempt) error
}

// ResultSource gives the latest execution result per question of an attempt.
type ResultSource interface {
	Results(attemptID string) map[string]model.ExecutionResult
	Forget(attemptID string)
}

// Deps wires a Machine. Clock, Monitor and NewID default when nil.
type Deps struct {
	Exams   ExamLookup
	History History
	Results ResultSource
	Scoring scoring.Engine
	Clock   deadline.Clock
	Monitor *proctor.Monitor
	Notify  func(Event)
	NewID   func() string
	UserID  string
	WarnAt  time.Duration
	Log     zerolog.Logger
}

// Machine serializes every transition of the current attempt behind one mutex.
// Scoring I/O, persistence and timer shutdown happen outside it.
type Machine struct {
	exams   ExamLookup
	history History
	results ResultSource
	engine  scoring.Engine
	clock   deadline.Clock
	monitor *proctor.Monitor
	notify  func(Event)
	newID   func() string
	userID  string
	warnAt  time.Duration
	log     zerolog.Logger

	mu        sync.Mutex
	state     State
	current   *model.Attempt
	exam      *model.Exam
	questions map[string]*model.Question
	enforcer  *deadline.Enforcer
	settled   chan struct{} // closed when a Finalizing transition returns to Idle
}

// NewMachine creates an idle Machine.
func NewMachine(d Deps) *Machine {
	m := &Machine{
		exams:   d.Exams,
		history: d.History,
		results: d.Results,
		engine:  d.Scoring,
		clock:   d.Clock,
		monitor: d.Monitor,
		notify:  d.Notify,
		newID:   d.NewID,
		userID:  d.UserID,
		warnAt:  d.WarnAt,
		log:     d.Log.With().Str("component", "attempt_machine").Logger(),
	}
	if m.clock == nil {
		m.clock = deadline.SystemClock{}
	}
	if m.monitor == nil {
		m.monitor = proctor.NewMonitor(m.clock.Now, nil, d.Log)
	}
	if m.notify == nil {
		m.notify = func(Event) {}
	}
	if m.newID == nil {
		m.newID = uuid.NewString
	}
	if m.warnAt <= 0 {
		m.warnAt = deadline.DefaultWarnAt
	}
	return m
}

// Start begins an attempt on examID. It fails with model.ErrAttemptInProgress
// unless idle, model.ErrExamNotFound for unknown exams and
// model.ErrAttemptLimitExceeded once the allowed attempts are used up.
func (m *Machine) Start(examID string, env proctor.EnvState) (*model.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateIdle {
		return nil, model.ErrAttemptInProgress
	}
	exam, ok := m.exams.Exam(examID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrExamNotFound, examID)
	}
	if used := m.history.Count(examID); used >= exam.AllowedAttempts {
		return nil, fmt.Errorf("%w: %d of %d used", model.ErrAttemptLimitExceeded, used, exam.AllowedAttempts)
	}

	a := &model.Attempt{
		ID:        m.newID(),
		ExamID:    exam.ID,
		UserID:    m.userID,
		StartTime: m.clock.Now().UTC(),
		Answers:   make(map[string]model.Answer),
	}

	m.questions = make(map[string]*model.Question, len(exam.Questions))
	for i := range exam.Questions {
		m.questions[exam.Questions[i].ID] = &exam.Questions[i]
	}
	m.current = a
	m.exam = exam
	m.state = StateInProgress

	m.monitor.Attach(a.ID, exam.ID, env)
	attemptID := a.ID
	m.enforcer = deadline.Start(m.clock, exam.Duration(), m.warnAt, deadline.Hooks{
		OnTick: func(remaining time.Duration) {
			m.notify(Event{Type: EventTick, AttemptID: attemptID, ExamID: exam.ID, Remaining: remaining})
		},
		OnWarning: func(remaining time.Duration) {
			m.notify(Event{Type: EventWarning, AttemptID: attemptID, ExamID: exam.ID, Remaining: remaining})
		},
		OnExpired: func() { m.expire(attemptID) },
	})

	m.log.Info().
		Str("attempt_id", a.ID).
		Str("exam_id", exam.ID).
		Dur("duration", exam.Duration()).
		Msg("Attempt started")

	started := a.Clone()
	m.notify(Event{Type: EventStarted, AttemptID: a.ID, ExamID: exam.ID, Remaining: exam.Duration(), Attempt: started})
	return started, nil
}

// RecordAnswer stores the answer for a question of the current attempt, last
// write wins. A blank code answer removes the entry.
func (m *Machine) RecordAnswer(questionID string, ans model.Answer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, err := m.questionLocked(questionID)
	if err != nil {
		return err
	}
	if ans.IsBlank() {
		delete(m.current.Answers, questionID)
		return nil
	}
	if err := ans.CheckAgainst(q); err != nil {
		return err
	}
	m.current.Answers[questionID] = ans
	return nil
}

// ClearAnswer removes any answer recorded for the question.
func (m *Machine) ClearAnswer(questionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.questionLocked(questionID); err != nil {
		return err
	}
	delete(m.current.Answers, questionID)
	return nil
}

// ActiveQuestion resolves a question of the current attempt.
func (m *Machine) ActiveQuestion(questionID string) (attemptID, examID string, q *model.Question, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, err = m.questionLocked(questionID)
	if err != nil {
		return "", "", nil, err
	}
	return m.current.ID, m.exam.ID, q, nil
}

// questionLocked must be called with m.mu held.
func (m *Machine) questionLocked(questionID string) (*model.Question, error) {
	if m.state != StateInProgress {
		return nil, model.ErrNoActiveAttempt
	}
	q, ok := m.questions[questionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrQuestionNotFound, questionID)
	}
	return q, nil
}

// Submit finalizes the current attempt: stops the timer, detaches the
// monitor, scores and records it. A call that arrives while another
// submission is finalizing returns (nil, nil).
func (m *Machine) Submit(ctx context.Context, reason model.SubmitReason) (*model.Attempt, error) {
	m.mu.Lock()
	switch m.state {
	case StateFinalizing:
		m.mu.Unlock()
		return nil, nil
	case StateIdle:
		m.mu.Unlock()
		return nil, model.ErrNoActiveAttempt
	}
	m.state = StateFinalizing
	m.settled = make(chan struct{})
	a := m.current.Clone()
	exam := m.exam
	enforcer := m.enforcer
	m.mu.Unlock()

	m.release(enforcer)

	results := m.results.Results(a.ID)
	m.results.Forget(a.ID)

	var score float64
	credits := make(map[string]float64, len(exam.Questions))
	for _, qs := range m.engine.Breakdown(exam, a.Answers, results) {
		credits[qs.QuestionID] = qs.Earned
		score += qs.Earned
	}

	end := m.clock.Now().UTC()
	a.EndTime = &end
	a.Score = &score
	a.Credits = credits
	a.Completed = true
	a.SubmitReason = reason

	if err := m.history.Record(ctx, a); err != nil {
		m.log.Error().Err(err).Str("attempt_id", a.ID).Msg("Failed to persist attempt history")
	}

	m.mu.Lock()
	m.resetLocked()
	m.mu.Unlock()

	m.log.Info().
		Str("attempt_id", a.ID).
		Str("exam_id", a.ExamID).
		Str("reason", string(reason)).
		Float64("score", score).
		Int("answered", len(a.Answers)).
		Msg("Attempt submitted")

	done := a.Clone()
	m.notify(Event{Type: EventSubmitted, AttemptID: a.ID, ExamID: a.ExamID, Attempt: done})
	return done, nil
}

// Abandon discards the current attempt without recording it. In-flight runs
// are cancelled and their results dropped.
func (m *Machine) Abandon() error {
	m.mu.Lock()
	switch m.state {
	case StateFinalizing:
		m.mu.Unlock()
		return nil
	case StateIdle:
		m.mu.Unlock()
		return model.ErrNoActiveAttempt
	}
	m.state = StateFinalizing
	m.settled = make(chan struct{})
	attemptID, examID := m.current.ID, m.exam.ID
	enforcer := m.enforcer
	m.mu.Unlock()

	m.release(enforcer)
	m.results.Forget(attemptID)

	m.mu.Lock()
	m.resetLocked()
	m.mu.Unlock()

	m.log.Info().Str("attempt_id", attemptID).Msg("Attempt abandoned")
	m.notify(Event{Type: EventAbandoned, AttemptID: attemptID, ExamID: examID})
	return nil
}

// release stops the timer and detaches the monitor. Every exit path runs it.
func (m *Machine) release(enforcer *deadline.Enforcer) {
	if enforcer != nil {
		enforcer.Stop()
	}
	m.monitor.Detach()
}

// resetLocked must be called with m.mu held.
func (m *Machine) resetLocked() {
	m.state = StateIdle
	m.current = nil
	m.exam = nil
	m.questions = nil
	m.enforcer = nil
	if m.settled != nil {
		close(m.settled)
		m.settled = nil
	}
}

// WaitIdle blocks while a submission or abandonment is finalizing. It returns
// immediately in any other state, or ctx.Err() if ctx ends first.
func (m *Machine) WaitIdle(ctx context.Context) error {
	m.mu.Lock()
	settled := m.settled
	m.mu.Unlock()
	if settled == nil {
		return nil
	}
	select {
	case <-settled:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// expire runs on the enforcer goroutine when the countdown hits zero.
func (m *Machine) expire(attemptID string) {
	m.mu.Lock()
	live := m.state == StateInProgress && m.current != nil && m.current.ID == attemptID
	m.mu.Unlock()
	if !live {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := m.Submit(ctx, model.SubmitDeadlineExpired); err != nil {
		m.log.Error().Err(err).Str("attempt_id", attemptID).Msg("Auto-submit failed")
	}
}

// ReportFullscreen forwards a fullscreen change to the monitor.
func (m *Machine) ReportFullscreen(active bool) error {
	if err := m.requireInProgress(); err != nil {
		return err
	}
	if v, logged := m.monitor.FullscreenChanged(active); logged {
		m.notify(Event{Type: EventViolation, AttemptID: v.AttemptID, ExamID: v.ExamID, Violation: &v})
	}
	return nil
}

// ReportVisibility forwards a visibility change to the monitor.
func (m *Machine) ReportVisibility(visible bool) error {
	if err := m.requireInProgress(); err != nil {
		return err
	}
	if v, logged := m.monitor.VisibilityChanged(visible); logged {
		m.notify(Event{Type: EventViolation, AttemptID: v.AttemptID, ExamID: v.ExamID, Violation: &v})
	}
	return nil
}

// ShouldSuppressKey reports whether the key press should be swallowed.
func (m *Machine) ShouldSuppressKey(ev proctor.KeyEvent) bool {
	return m.monitor.ShouldSuppress(ev)
}

func (m *Machine) requireInProgress() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateInProgress {
		return model.ErrNoActiveAttempt
	}
	return nil
}

// Snapshot is a read-only copy of the machine state.
type Snapshot struct {
	State      State             `json:"state"`
	Attempt    *model.Attempt    `json:"attempt,omitempty"`
	Remaining  time.Duration     `json:"-"`
	Warned     bool              `json:"warned"`
	Secure     bool              `json:"is_secure"`
	Violations []model.Violation `json:"violations"`
}

// Snapshot returns the current state. Attempt is nil when idle.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	s := Snapshot{State: m.state, Attempt: m.current.Clone()}
	enforcer := m.enforcer
	m.mu.Unlock()

	if enforcer != nil {
		s.Remaining = enforcer.Remaining()
		s.Warned = enforcer.Warned()
	}
	s.Secure = m.monitor.IsSecure()
	s.Violations = m.monitor.Violations()
	return s
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}
