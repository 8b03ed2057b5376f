package execution

import (
	"context"
	"errors"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-engine/internal/model"
)

// RunRequest asks the judge to run one question's code for one attempt.
type RunRequest struct {
	AttemptID  string `json:"attempt_id"`
	ExamID     string `json:"exam_id"`
	QuestionID string `json:"question_id"`
	Language   string `json:"language"`
	Code       string `json:"code"`
}

// Judge is the remote code execution service. Implementations return the
// per-test-case outcomes; failures should wrap model.ErrJudgeUnavailable.
type Judge interface {
	Run(ctx context.Context, req RunRequest) ([]model.ExecutionOutcome, error)
}

// attemptRuns holds the run state of one attempt. A new value is created
// whenever an attempt is first seen, so responses for a forgotten attempt
// can be recognised by pointer identity.
type attemptRuns struct {
	ctx      context.Context
	cancel   context.CancelFunc
	inFlight map[string]string // question id → language
	results  map[string]model.ExecutionResult
}

// Runner dispatches code runs to the judge, one in flight per question.
type Runner struct {
	judge   Judge
	timeout time.Duration
	log     zerolog.Logger

	mu        sync.Mutex
	attempts  map[string]*attemptRuns
	forgotten mapset.Set[string] // attempt ids that no longer accept runs
}

// NewRunner creates a Runner. A zero timeout disables the per-run deadline.
func NewRunner(judge Judge, timeout time.Duration, log zerolog.Logger) *Runner {
	return &Runner{
		judge:     judge,
		timeout:   timeout,
		log:       log.With().Str("component", "execution_runner").Logger(),
		attempts:  make(map[string]*attemptRuns),
		forgotten: mapset.NewThreadUnsafeSet[string](),
	}
}

// Run sends the request to the judge and blocks until it answers. A second
// run for the same question while one is in flight fails with
// model.ErrRunAlreadyInProgress. Judge failures never surface as errors:
// they degrade to a failed result with no outcomes. If the attempt was
// forgotten while the run was in flight, the result is returned together with
// model.ErrStaleResult and is not stored. A run for an attempt that was
// already forgotten fails with model.ErrStaleResult without reaching the judge.
func (r *Runner) Run(ctx context.Context, req RunRequest) (model.ExecutionResult, error) {
	r.mu.Lock()
	if r.forgotten.Contains(req.AttemptID) {
		r.mu.Unlock()
		return model.ExecutionResult{}, model.ErrStaleResult
	}
	runs := r.runsFor(req.AttemptID)
	if _, busy := runs.inFlight[req.QuestionID]; busy {
		r.mu.Unlock()
		return model.ExecutionResult{}, model.ErrRunAlreadyInProgress
	}
	runs.inFlight[req.QuestionID] = req.Language
	r.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(runs.ctx, cancel)
	defer stop()
	if r.timeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(runCtx, r.timeout)
		defer cancelTimeout()
	}

	start := time.Now()
	outcomes, err := r.judge.Run(runCtx, req)

	var res model.ExecutionResult
	if err != nil {
		level := zerolog.WarnLevel
		if !errors.Is(err, model.ErrJudgeUnavailable) {
			level = zerolog.ErrorLevel
		}
		r.log.WithLevel(level).Err(err).
			Str("attempt_id", req.AttemptID).
			Str("question_id", req.QuestionID).
			Msg("Judge run failed, reporting failed result")
		res = Failed(req.QuestionID, model.ErrJudgeUnavailable.Error())
	} else {
		res = Aggregate(outcomes)
	}
	res.QuestionID = req.QuestionID
	res.Language = req.Language

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.attempts[req.AttemptID] != runs {
		r.log.Debug().
			Str("attempt_id", req.AttemptID).
			Str("question_id", req.QuestionID).
			Msg("Discarding stale judge response")
		return res, model.ErrStaleResult
	}

	delete(runs.inFlight, req.QuestionID)
	runs.results[req.QuestionID] = res

	r.log.Debug().
		Str("attempt_id", req.AttemptID).
		Str("question_id", req.QuestionID).
		Str("status", string(res.OverallStatus)).
		Int("passed", res.PassedCount).
		Int("total", res.TotalCount).
		Dur("took", time.Since(start)).
		Msg("Run finished")
	return res, nil
}

// Result returns the latest result for a question. A run in flight is
// reported as a running result with no outcomes.
func (r *Runner) Result(attemptID, questionID string) (model.ExecutionResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	runs, ok := r.attempts[attemptID]
	if !ok {
		return model.ExecutionResult{}, false
	}
	if lang, busy := runs.inFlight[questionID]; busy {
		return model.ExecutionResult{
			QuestionID:    questionID,
			Language:      lang,
			OverallStatus: model.OverallRunning,
			Outcomes:      []model.ExecutionOutcome{},
		}, true
	}
	res, ok := runs.results[questionID]
	return res, ok
}

// Results returns the latest finished result of every question of an attempt.
func (r *Runner) Results(attemptID string) map[string]model.ExecutionResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]model.ExecutionResult)
	if runs, ok := r.attempts[attemptID]; ok {
		for q, res := range runs.results {
			out[q] = res
		}
	}
	return out
}

// Forget drops every result of an attempt and cancels its in-flight runs.
// Responses that arrive afterwards are discarded and later runs are refused.
func (r *Runner) Forget(attemptID string) {
	r.mu.Lock()
	runs, ok := r.attempts[attemptID]
	delete(r.attempts, attemptID)
	r.forgotten.Add(attemptID)
	r.mu.Unlock()

	if ok {
		runs.cancel()
	}
}

// runsFor must be called with r.mu held.
func (r *Runner) runsFor(attemptID string) *attemptRuns {
	runs, ok := r.attempts[attemptID]
	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		runs = &attemptRuns{
			ctx:      ctx,
			cancel:   cancel,
			inFlight: make(map[string]string),
			results:  make(map[string]model.ExecutionResult),
		}
		r.attempts[attemptID] = runs
	}
	return runs
}
