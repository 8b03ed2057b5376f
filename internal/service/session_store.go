// Package service holds the session store: the process-wide owner of the
// catalog, the attempt history and the attempt machine.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/stemsi/exstem-engine/internal/attempt"
	"github.com/stemsi/exstem-engine/internal/catalog"
	"github.com/stemsi/exstem-engine/internal/deadline"
	"github.com/stemsi/exstem-engine/internal/execution"
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/proctor"
	"github.com/stemsi/exstem-engine/internal/scoring"
	"github.com/stemsi/exstem-engine/internal/worker"
)

// HistoryRepository persists the completed-attempt log wholesale.
type HistoryRepository interface {
	Load(ctx context.Context) ([]model.Attempt, error)
	Save(ctx context.Context, attempts []model.Attempt) error
}

// Reporter archives violations and results outside the engine. Optional.
type Reporter interface {
	PushViolation(ctx context.Context, userID string, v model.Violation) error
	PushResult(ctx context.Context, rec worker.ResultRecord) error
}

// StoreDeps wires a SessionStore.
type StoreDeps struct {
	Catalog      catalog.Source
	History      HistoryRepository
	Judge        execution.Judge
	JudgeTimeout time.Duration
	Scoring      scoring.Engine
	Reporter     Reporter
	Clock        deadline.Clock
	UserID       string
	WarnAt       time.Duration
	Log          zerolog.Logger
}

// SessionStore is the single owner of engine state for one test-taker.
type SessionStore struct {
	catalog  catalog.Source
	repo     HistoryRepository
	runner   *execution.Runner
	engine   scoring.Engine
	reporter Reporter
	userID   string
	warnAt   time.Duration
	log      zerolog.Logger

	hub     *EventHub
	machine *attempt.Machine

	mu      sync.RWMutex
	exams   []model.Exam
	byID    map[string]*model.Exam
	history []model.Attempt
}

// NewSessionStore creates a store with an empty catalog. Call Init to load it.
func NewSessionStore(d StoreDeps) *SessionStore {
	s := &SessionStore{
		catalog:  d.Catalog,
		repo:     d.History,
		runner:   execution.NewRunner(d.Judge, d.JudgeTimeout, d.Log),
		engine:   d.Scoring,
		reporter: d.Reporter,
		userID:   d.UserID,
		warnAt:   d.WarnAt,
		log:      d.Log.With().Str("component", "session_store").Logger(),
		hub:      NewEventHub(d.Log),
		byID:     make(map[string]*model.Exam),
	}
	if s.warnAt <= 0 {
		s.warnAt = deadline.DefaultWarnAt
	}

	clock := d.Clock
	if clock == nil {
		clock = deadline.SystemClock{}
	}
	s.machine = attempt.NewMachine(attempt.Deps{
		Exams:   s,
		History: s,
		Results: s.runner,
		Scoring: d.Scoring,
		Clock:   clock,
		Monitor: proctor.NewMonitor(clock.Now, s, d.Log),
		Notify:  s.hub.Publish,
		UserID:  d.UserID,
		WarnAt:  s.warnAt,
		Log:     d.Log,
	})
	return s
}

// Init fetches the catalog and loads the history concurrently. A failed
// catalog fetch leaves the catalog empty; a history that cannot be read is
// an error, so it is never overwritten.
func (s *SessionStore) Init(ctx context.Context) error {
	var (
		exams   []model.Exam
		history []model.Attempt
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fetched, err := s.catalog.FetchExams(gctx)
		if err != nil {
			s.log.Error().Err(err).Msg("Failed to fetch exam catalog")
			return nil
		}
		exams = fetched
		return nil
	})
	g.Go(func() error {
		loaded, err := s.repo.Load(gctx)
		if err != nil {
			return fmt.Errorf("load attempt history: %w", err)
		}
		history = loaded
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	valid := make([]model.Exam, 0, len(exams))
	for _, e := range exams {
		if err := e.Validate(); err != nil {
			s.log.Warn().Err(err).Str("exam_id", e.ID).Msg("Skipping invalid exam")
			continue
		}
		valid = append(valid, e)
	}

	s.mu.Lock()
	s.exams = valid
	s.byID = make(map[string]*model.Exam, len(valid))
	for i := range s.exams {
		s.byID[s.exams[i].ID] = &s.exams[i]
	}
	s.history = history
	s.mu.Unlock()

	s.log.Info().
		Int("exams", len(valid)).
		Int("skipped", len(exams)-len(valid)).
		Int("history", len(history)).
		Msg("Session store ready")
	return nil
}

// Teardown abandons any attempt in progress and waits for a submission that
// is already finalizing to finish recording. Abandoned attempts are not
// recorded. It must return before the storage backends are closed.
func (s *SessionStore) Teardown(ctx context.Context) error {
	if s.machine.State() == attempt.StateInProgress {
		if err := s.machine.Abandon(); err == nil {
			s.log.Warn().Msg("Attempt in progress abandoned on shutdown")
		}
	}
	if err := s.machine.WaitIdle(ctx); err != nil {
		s.log.Error().Err(err).Msg("Attempt still finalizing at shutdown")
		return err
	}
	return nil
}

// Events exposes the attempt event stream.
func (s *SessionStore) Events() *EventHub { return s.hub }

// WarnAt is the low-time warning threshold in use.
func (s *SessionStore) WarnAt() time.Duration { return s.warnAt }

// ─── Catalog ────────────────────────────────────────────────────────────────

// Exams returns every loaded exam in catalog order.
func (s *SessionStore) Exams() []model.Exam {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Exam, len(s.exams))
	copy(out, s.exams)
	return out
}

// ActiveExams returns the exams flagged active.
func (s *SessionStore) ActiveExams() []model.Exam {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Exam
	for _, e := range s.exams {
		if e.IsActive {
			out = append(out, e)
		}
	}
	return out
}

// Exam looks an exam up by id. The returned exam must not be modified.
func (s *SessionStore) Exam(id string) (*model.Exam, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byID[id]
	return e, ok
}

// Availability describes how many attempts remain on an exam.
type Availability struct {
	ExamID    string `json:"exam_id"`
	Used      int    `json:"used"`
	Allowed   int    `json:"allowed"`
	Remaining int    `json:"remaining"`
	CanStart  bool   `json:"can_start"`
}

// Availability reports the attempt budget of an exam.
func (s *SessionStore) Availability(examID string) (Availability, error) {
	e, ok := s.Exam(examID)
	if !ok {
		return Availability{}, fmt.Errorf("%w: %s", model.ErrExamNotFound, examID)
	}
	used := s.Count(examID)
	remaining := e.AllowedAttempts - used
	if remaining < 0 {
		remaining = 0
	}
	return Availability{
		ExamID:    examID,
		Used:      used,
		Allowed:   e.AllowedAttempts,
		Remaining: remaining,
		CanStart:  remaining > 0 && s.machine.State() == attempt.StateIdle,
	}, nil
}

// ─── History (attempt.History) ──────────────────────────────────────────────

// Count returns the number of completed attempts on an exam.
func (s *SessionStore) Count(examID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for i := range s.history {
		if s.history[i].ExamID == examID && s.history[i].Completed {
			n++
		}
	}
	return n
}

// Record appends a completed attempt and persists the whole history. The
// attempt stays in memory even when persisting fails.
func (s *SessionStore) Record(ctx context.Context, a *model.Attempt) error {
	s.mu.Lock()
	s.history = append(s.history, *a.Clone())
	snapshot := make([]model.Attempt, len(s.history))
	copy(snapshot, s.history)
	exam := s.byID[a.ExamID]
	s.mu.Unlock()

	if s.reporter != nil && exam != nil {
		if err := s.reporter.PushResult(ctx, worker.NewResultRecord(a, exam, scoring.MaxScore(exam))); err != nil {
			s.log.Warn().Err(err).Str("attempt_id", a.ID).Msg("Failed to queue attempt result")
		}
	}

	if err := s.repo.Save(ctx, snapshot); err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}

// ReportViolation implements proctor.ViolationSink.
func (s *SessionStore) ReportViolation(v model.Violation) {
	if s.reporter == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.reporter.PushViolation(ctx, s.userID, v); err != nil {
		s.log.Warn().Err(err).Str("attempt_id", v.AttemptID).Msg("Failed to queue violation")
	}
}

// History returns every completed attempt in recording order.
func (s *SessionStore) History() []model.Attempt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Attempt, len(s.history))
	for i := range s.history {
		out[i] = *s.history[i].Clone()
	}
	return out
}

// ─── Current attempt ────────────────────────────────────────────────────────

// StartExam begins an attempt on examID.
func (s *SessionStore) StartExam(examID string, env proctor.EnvState) (*model.Attempt, error) {
	return s.machine.Start(examID, env)
}

// RecordAnswer stores an answer on the current attempt.
func (s *SessionStore) RecordAnswer(questionID string, ans model.Answer) error {
	return s.machine.RecordAnswer(questionID, ans)
}

// ClearAnswer removes an answer from the current attempt.
func (s *SessionStore) ClearAnswer(questionID string) error {
	return s.machine.ClearAnswer(questionID)
}

// SubmitExam finalizes the current attempt at the user's request. It returns
// (nil, nil) when another submission is already finalizing.
func (s *SessionStore) SubmitExam(ctx context.Context) (*model.Attempt, error) {
	return s.machine.Submit(ctx, model.SubmitUserRequested)
}

// LeaveExam abandons the current attempt without recording it.
func (s *SessionStore) LeaveExam() error {
	return s.machine.Abandon()
}

// Current returns a snapshot of the attempt machine.
func (s *SessionStore) Current() attempt.Snapshot {
	return s.machine.Snapshot()
}

// CurrentExam returns the exam of the attempt in progress.
func (s *SessionStore) CurrentExam() (*model.Exam, *model.Attempt, error) {
	snap := s.machine.Snapshot()
	if snap.Attempt == nil || snap.State != attempt.StateInProgress {
		return nil, nil, model.ErrNoActiveAttempt
	}
	e, ok := s.Exam(snap.Attempt.ExamID)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", model.ErrExamNotFound, snap.Attempt.ExamID)
	}
	return e, snap.Attempt, nil
}

// RunCode records code as the answer to a coding question of the current
// attempt, sends it to the judge and returns the aggregated result with
// hidden outputs removed.
func (s *SessionStore) RunCode(ctx context.Context, questionID, language, code string) (model.ExecutionResult, error) {
	attemptID, examID, q, err := s.machine.ActiveQuestion(questionID)
	if err != nil {
		return model.ExecutionResult{}, err
	}
	if q.Kind != model.QuestionKindCoding {
		return model.ExecutionResult{}, fmt.Errorf("%w: question %s is not a coding question", model.ErrInvalidAnswer, questionID)
	}
	if !q.SupportsLanguage(language) {
		return model.ExecutionResult{}, fmt.Errorf("%w: language %q not offered by question %s", model.ErrInvalidAnswer, language, questionID)
	}

	// The code that was run is what gets scored.
	if err := s.machine.RecordAnswer(questionID, model.CodeAnswer(language, code)); err != nil {
		return model.ExecutionResult{}, err
	}

	res, err := s.runner.Run(ctx, execution.RunRequest{
		AttemptID:  attemptID,
		ExamID:     examID,
		QuestionID: questionID,
		Language:   language,
		Code:       code,
	})
	if err != nil {
		return model.ExecutionResult{}, err
	}
	return execution.Redact(q, res), nil
}

// CodeResult returns the latest run result of a question of the current attempt.
func (s *SessionStore) CodeResult(questionID string) (model.ExecutionResult, bool, error) {
	attemptID, _, q, err := s.machine.ActiveQuestion(questionID)
	if err != nil {
		return model.ExecutionResult{}, false, err
	}
	res, ok := s.runner.Result(attemptID, questionID)
	if !ok {
		return model.ExecutionResult{}, false, nil
	}
	return execution.Redact(q, res), true, nil
}

// ReportFullscreen forwards a fullscreen change of the current attempt.
func (s *SessionStore) ReportFullscreen(active bool) error {
	return s.machine.ReportFullscreen(active)
}

// ReportVisibility forwards a visibility change of the current attempt.
func (s *SessionStore) ReportVisibility(visible bool) error {
	return s.machine.ReportVisibility(visible)
}

// ShouldSuppressKey reports whether a key press should be swallowed.
func (s *SessionStore) ShouldSuppressKey(ev proctor.KeyEvent) bool {
	return s.machine.ShouldSuppressKey(ev)
}
