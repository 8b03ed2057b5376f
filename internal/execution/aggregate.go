// Package execution reduces judge responses into per-question results and
// guards the one-run-per-question rule.
package execution

import "github.com/stemsi/exstem-engine/internal/model"

// Aggregate reduces the per-test-case outcomes of one run into a single
// ExecutionResult.
//
// Precedence: any queued/running case → running; all passed → passed;
// some passed and some failed → partial; otherwise failed (this includes an
// empty outcome list). Time and memory are summed across cases.
func Aggregate(outcomes []model.ExecutionOutcome) model.ExecutionResult {
	res := model.ExecutionResult{
		Outcomes:   make([]model.ExecutionOutcome, len(outcomes)),
		TotalCount: len(outcomes),
	}
	copy(res.Outcomes, outcomes)

	var pending, failed int
	for _, o := range outcomes {
		res.TotalExecutionTimeMs += o.ExecutionTimeMs
		res.TotalMemoryMB += o.MemoryMB

		switch o.Status {
		case model.OutcomeQueued, model.OutcomeRunning:
			pending++
		case model.OutcomePassed:
			res.PassedCount++
		default:
			failed++
		}
	}

	switch {
	case pending > 0:
		res.OverallStatus = model.OverallRunning
	case len(outcomes) > 0 && res.PassedCount == len(outcomes):
		res.OverallStatus = model.OverallPassed
	case res.PassedCount > 0 && failed > 0:
		res.OverallStatus = model.OverallPartial
	default:
		res.OverallStatus = model.OverallFailed
	}
	return res
}

// Failed builds the degraded result used when the judge cannot be reached.
func Failed(questionID, reason string) model.ExecutionResult {
	return model.ExecutionResult{
		QuestionID:    questionID,
		OverallStatus: model.OverallFailed,
		Outcomes:      []model.ExecutionOutcome{},
		Error:         reason,
	}
}

// Redact blanks the actual output of hidden test cases so a result can be
// shown to the test-taker.
func Redact(q *model.Question, res model.ExecutionResult) model.ExecutionResult {
	out := res
	out.Outcomes = make([]model.ExecutionOutcome, len(res.Outcomes))
	for i, o := range res.Outcomes {
		if tc, ok := q.TestCase(o.TestCaseID); ok && tc.Hidden {
			o.ActualOutput = ""
		}
		out.Outcomes[i] = o
	}
	return out
}
