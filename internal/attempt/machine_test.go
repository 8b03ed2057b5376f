package attempt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-engine/internal/deadline"
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/proctor"
	"github.com/stemsi/exstem-engine/internal/scoring"
)

type examMap map[string]*model.Exam

func (e examMap) Exam(id string) (*model.Exam, bool) {
	exam, ok := e[id]
	return exam, ok
}

type memHistory struct {
	mu       sync.Mutex
	attempts []*model.Attempt
	failWith error
	recorded chan *model.Attempt
}

func newMemHistory() *memHistory {
	return &memHistory{recorded: make(chan *model.Attempt, 8)}
}

func (h *memHistory) Count(examID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, a := range h.attempts {
		if a.ExamID == examID {
			n++
		}
	}
	return n
}

func (h *memHistory) Record(_ context.Context, a *model.Attempt) error {
	h.mu.Lock()
	h.attempts = append(h.attempts, a.Clone())
	err := h.failWith
	h.mu.Unlock()
	h.recorded <- a
	return err
}

func (h *memHistory) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.attempts)
}

type staticResults struct {
	mu       sync.Mutex
	results  map[string]map[string]model.ExecutionResult
	forgot   []string
	onLookup func()
}

func (s *staticResults) Results(attemptID string) map[string]model.ExecutionResult {
	if s.onLookup != nil {
		s.onLookup()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.results[attemptID]
}

func (s *staticResults) Forget(attemptID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forgot = append(s.forgot, attemptID)
}

func oneMinuteExam() *model.Exam {
	return &model.Exam{
		ID: "exam-1", Title: "Quick check", DurationMinutes: 1, IsActive: true, AllowedAttempts: 2,
		Questions: []model.Question{
			{ID: "mcq-1", Kind: model.QuestionKindMultipleChoice, Points: 10, Options: []string{"a", "b", "c"}, CorrectAnswerIndex: 2},
			{
				ID: "code-1", Kind: model.QuestionKindCoding, Points: 10,
				StarterCode: map[string]string{"python": "def f():\n    pass\n"},
				TestCases:   []model.TestCase{{ID: 1, Name: "one"}, {ID: 2, Name: "two"}},
			},
		},
	}
}

type fixture struct {
	machine *Machine
	clock   *deadline.ManualClock
	history *memHistory
	results *staticResults
	events  chan Event
}

func newFixture(t *testing.T, mode scoring.Mode) *fixture {
	t.Helper()
	clock := deadline.NewManualClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	f := &fixture{
		clock:   clock,
		history: newMemHistory(),
		results: &staticResults{results: map[string]map[string]model.ExecutionResult{}},
		events:  make(chan Event, 1024),
	}
	ids := 0
	f.machine = NewMachine(Deps{
		Exams:   examMap{"exam-1": oneMinuteExam()},
		History: f.history,
		Results: f.results,
		Scoring: scoring.NewEngine(mode),
		Clock:   clock,
		Monitor: proctor.NewMonitor(clock.Now, nil, zerolog.Nop()),
		Notify: func(ev Event) {
			select {
			case f.events <- ev:
			default:
			}
		},
		NewID: func() string {
			ids++
			return fmt.Sprintf("attempt-%d", ids)
		},
		UserID: "1",
		Log:    zerolog.Nop(),
	})
	return f
}

var secureEnv = proctor.EnvState{Fullscreen: true, Visible: true}

func TestStartFailsForUnknownExam(t *testing.T) {
	f := newFixture(t, scoring.ModePassedFraction)
	_, err := f.machine.Start("nope", secureEnv)
	require.ErrorIs(t, err, model.ErrExamNotFound)
	require.Equal(t, StateIdle, f.machine.State())
}

func TestStartRespectsAttemptLimit(t *testing.T) {
	f := newFixture(t, scoring.ModePassedFraction)

	// allowed-1 completed attempts: start succeeds.
	f.history.attempts = append(f.history.attempts, &model.Attempt{ID: "old-1", ExamID: "exam-1", Completed: true})
	a, err := f.machine.Start("exam-1", secureEnv)
	require.NoError(t, err)
	_, err = f.machine.Submit(context.Background(), model.SubmitUserRequested)
	require.NoError(t, err)
	require.NotEqual(t, "old-1", a.ID)

	// allowed completed attempts: start fails.
	_, err = f.machine.Start("exam-1", secureEnv)
	require.ErrorIs(t, err, model.ErrAttemptLimitExceeded)
	require.Equal(t, StateIdle, f.machine.State())
}

func TestStartFailsWhileInProgress(t *testing.T) {
	f := newFixture(t, scoring.ModePassedFraction)
	_, err := f.machine.Start("exam-1", secureEnv)
	require.NoError(t, err)
	defer f.machine.Abandon()

	_, err = f.machine.Start("exam-1", secureEnv)
	require.ErrorIs(t, err, model.ErrAttemptInProgress)
}

func TestRecordAnswerRequiresActiveAttempt(t *testing.T) {
	f := newFixture(t, scoring.ModePassedFraction)
	require.ErrorIs(t, f.machine.RecordAnswer("mcq-1", model.ChoiceAnswer(0)), model.ErrNoActiveAttempt)

	_, err := f.machine.Start("exam-1", secureEnv)
	require.NoError(t, err)
	defer f.machine.Abandon()

	require.ErrorIs(t, f.machine.RecordAnswer("ghost", model.ChoiceAnswer(0)), model.ErrQuestionNotFound)
	require.ErrorIs(t, f.machine.RecordAnswer("mcq-1", model.ChoiceAnswer(7)), model.ErrInvalidAnswer)
	require.ErrorIs(t, f.machine.RecordAnswer("mcq-1", model.CodeAnswer("python", "x")), model.ErrInvalidAnswer)
}

func TestRecordAnswerLastWriteWinsAndBlankCodeClears(t *testing.T) {
	f := newFixture(t, scoring.ModePassedFraction)
	_, err := f.machine.Start("exam-1", secureEnv)
	require.NoError(t, err)
	defer f.machine.Abandon()

	require.NoError(t, f.machine.RecordAnswer("mcq-1", model.ChoiceAnswer(0)))
	require.NoError(t, f.machine.RecordAnswer("mcq-1", model.ChoiceAnswer(2)))
	require.NoError(t, f.machine.RecordAnswer("code-1", model.CodeAnswer("python", "print(1)")))

	snap := f.machine.Snapshot()
	idx, _ := snap.Attempt.Answers["mcq-1"].SelectedIndex()
	require.Equal(t, 2, idx)
	require.Len(t, snap.Attempt.Answers, 2)

	require.NoError(t, f.machine.RecordAnswer("code-1", model.CodeAnswer("python", "   \n")))
	require.NotContains(t, f.machine.Snapshot().Attempt.Answers, "code-1")

	require.NoError(t, f.machine.ClearAnswer("mcq-1"))
	require.Empty(t, f.machine.Snapshot().Attempt.Answers)
}

func TestSubmitScoresAndRecords(t *testing.T) {
	f := newFixture(t, scoring.ModePassedFraction)
	a, err := f.machine.Start("exam-1", secureEnv)
	require.NoError(t, err)

	require.NoError(t, f.machine.RecordAnswer("mcq-1", model.ChoiceAnswer(2)))
	require.NoError(t, f.machine.RecordAnswer("code-1", model.CodeAnswer("python", "print(1)")))
	f.results.results[a.ID] = map[string]model.ExecutionResult{"code-1": {PassedCount: 1, TotalCount: 2}}

	done, err := f.machine.Submit(context.Background(), model.SubmitUserRequested)
	require.NoError(t, err)
	require.True(t, done.Completed)
	require.NotNil(t, done.EndTime)
	require.InDelta(t, 15.0, *done.Score, 1e-9)
	require.Equal(t, model.SubmitUserRequested, done.SubmitReason)

	require.Equal(t, 1, f.history.len())
	require.Equal(t, StateIdle, f.machine.State())
	require.Contains(t, f.results.forgot, a.ID)
	require.False(t, f.machine.monitor.Attached())

	_, err = f.machine.Submit(context.Background(), model.SubmitUserRequested)
	require.ErrorIs(t, err, model.ErrNoActiveAttempt)
}

func TestDoubleSubmitRecordsOnce(t *testing.T) {
	f := newFixture(t, scoring.ModePassedFraction)
	_, err := f.machine.Start("exam-1", secureEnv)
	require.NoError(t, err)

	// Hold the first submission in Finalizing while the second one arrives.
	entered := make(chan struct{})
	proceed := make(chan struct{})
	f.results.onLookup = func() {
		close(entered)
		<-proceed
	}

	first := make(chan *model.Attempt, 1)
	go func() {
		a, _ := f.machine.Submit(context.Background(), model.SubmitUserRequested)
		first <- a
	}()
	<-entered

	second, err := f.machine.Submit(context.Background(), model.SubmitDeadlineExpired)
	require.NoError(t, err)
	require.Nil(t, second)
	require.Equal(t, StateFinalizing, f.machine.State())

	close(proceed)
	require.NotNil(t, <-first)
	require.Equal(t, 1, f.history.len())
}

func TestDeadlineAutoSubmitsOneMinuteExam(t *testing.T) {
	f := newFixture(t, scoring.ModeFlat)
	_, err := f.machine.Start("exam-1", secureEnv)
	require.NoError(t, err)
	require.NoError(t, f.machine.RecordAnswer("mcq-1", model.ChoiceAnswer(2)))

	f.clock.AdvanceSeconds(60)

	var recorded *model.Attempt
	select {
	case recorded = <-f.history.recorded:
	case <-time.After(2 * time.Second):
		t.Fatal("attempt was not auto-submitted")
	}
	require.Equal(t, model.SubmitDeadlineExpired, recorded.SubmitReason)
	require.InDelta(t, 10.0, *recorded.Score, 1e-9)
	require.Eventually(t, func() bool { return f.machine.State() == StateIdle }, time.Second, 5*time.Millisecond)

	f.clock.AdvanceSeconds(60)
	require.Equal(t, 1, f.history.len())

	var warnings int
	for submitted := false; !submitted; {
		select {
		case ev := <-f.events:
			switch ev.Type {
			case EventWarning:
				warnings++
			case EventSubmitted:
				submitted = true
			}
		case <-time.After(2 * time.Second):
			t.Fatal("submitted event never published")
		}
	}
	require.Equal(t, 1, warnings)
	for len(f.events) > 0 {
		require.NotEqual(t, EventSubmitted, (<-f.events).Type)
	}
}

func TestPersistFailureStillCompletesAttempt(t *testing.T) {
	f := newFixture(t, scoring.ModePassedFraction)
	f.history.failWith = errors.New("disk full")
	_, err := f.machine.Start("exam-1", secureEnv)
	require.NoError(t, err)

	done, err := f.machine.Submit(context.Background(), model.SubmitUserRequested)
	require.NoError(t, err)
	require.True(t, done.Completed)
	require.Equal(t, 1, f.history.len())
}

func TestAbandonDiscardsAttempt(t *testing.T) {
	f := newFixture(t, scoring.ModePassedFraction)
	a, err := f.machine.Start("exam-1", secureEnv)
	require.NoError(t, err)

	require.NoError(t, f.machine.Abandon())
	require.Equal(t, StateIdle, f.machine.State())
	require.Zero(t, f.history.len())
	require.Contains(t, f.results.forgot, a.ID)
	require.ErrorIs(t, f.machine.Abandon(), model.ErrNoActiveAttempt)

	// The stopped timer never fires.
	f.clock.AdvanceSeconds(120)
	require.Zero(t, f.history.len())
}

func TestProctoringOnlyWhileInProgress(t *testing.T) {
	f := newFixture(t, scoring.ModePassedFraction)
	require.ErrorIs(t, f.machine.ReportFullscreen(false), model.ErrNoActiveAttempt)

	_, err := f.machine.Start("exam-1", secureEnv)
	require.NoError(t, err)
	require.True(t, f.machine.Snapshot().Secure)

	require.NoError(t, f.machine.ReportFullscreen(false))
	require.NoError(t, f.machine.ReportVisibility(false))
	require.True(t, f.machine.ShouldSuppressKey(proctor.KeyEvent{Key: "F12"}))

	snap := f.machine.Snapshot()
	require.False(t, snap.Secure)
	require.Len(t, snap.Violations, 2)

	_, err = f.machine.Submit(context.Background(), model.SubmitUserRequested)
	require.NoError(t, err)
	require.False(t, f.machine.ShouldSuppressKey(proctor.KeyEvent{Key: "F12"}))
}

func TestWaitIdleBlocksUntilFinalizationRecords(t *testing.T) {
	f := newFixture(t, scoring.ModePassedFraction)
	require.NoError(t, f.machine.WaitIdle(context.Background()), "idle machine does not block")

	_, err := f.machine.Start("exam-1", secureEnv)
	require.NoError(t, err)
	require.NoError(t, f.machine.WaitIdle(context.Background()), "in progress does not block")

	entered := make(chan struct{})
	gate := make(chan struct{})
	f.results.onLookup = func() {
		close(entered)
		<-gate
	}
	submitted := make(chan error, 1)
	go func() {
		_, err := f.machine.Submit(context.Background(), model.SubmitDeadlineExpired)
		submitted <- err
	}()
	<-entered
	require.Equal(t, StateFinalizing, f.machine.State())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, f.machine.WaitIdle(ctx), context.DeadlineExceeded)

	waited := make(chan error, 1)
	go func() { waited <- f.machine.WaitIdle(context.Background()) }()
	close(gate)

	require.NoError(t, <-waited)
	require.NoError(t, <-submitted)
	require.Equal(t, StateIdle, f.machine.State())
	require.Equal(t, 1, f.history.len())
}
