// Package scoring computes attempt scores. Everything here is pure and
// deterministic: the same exam, answers and run results always give the same score.
package scoring

import (
	"fmt"

	"github.com/stemsi/exstem-engine/internal/model"
)

// Mode selects how coding questions earn credit.
type Mode string

const (
	// ModePassedFraction awards points * passed/total from the latest run.
	ModePassedFraction Mode = "passed_fraction"
	// ModeFlat is the legacy heuristic: 80% of the points for any submitted code.
	ModeFlat Mode = "flat"
)

// FlatCodingCredit is the share of points the legacy heuristic grants.
const FlatCodingCredit = 0.8

// ParseMode maps a config string onto a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModePassedFraction, ModeFlat:
		return Mode(s), nil
	case "":
		return ModePassedFraction, nil
	default:
		return "", fmt.Errorf("unknown scoring mode %q", s)
	}
}

// QuestionScore is the credit earned on one question.
type QuestionScore struct {
	QuestionID string             `json:"question_id"`
	Kind       model.QuestionKind `json:"kind"`
	Answered   bool               `json:"answered"`
	Correct    bool               `json:"correct"`
	Earned     float64            `json:"earned"`
	Possible   float64            `json:"possible"`
}

// Engine scores finalized attempts.
type Engine struct {
	mode Mode
}

// NewEngine creates an Engine; an empty mode means ModePassedFraction.
func NewEngine(mode Mode) Engine {
	if mode == "" {
		mode = ModePassedFraction
	}
	return Engine{mode: mode}
}

// Mode returns the coding credit mode in use.
func (e Engine) Mode() Mode { return e.mode }

// Score sums the credit of every question. results holds the latest
// execution result per question id and may be nil.
func (e Engine) Score(exam *model.Exam, answers map[string]model.Answer, results map[string]model.ExecutionResult) float64 {
	var total float64
	for _, qs := range e.Breakdown(exam, answers, results) {
		total += qs.Earned
	}
	return total
}

// Breakdown returns per-question credit in exam order.
func (e Engine) Breakdown(exam *model.Exam, answers map[string]model.Answer, results map[string]model.ExecutionResult) []QuestionScore {
	out := make([]QuestionScore, 0, len(exam.Questions))
	for i := range exam.Questions {
		q := &exam.Questions[i]
		ans, answered := answers[q.ID]
		res, ran := results[q.ID]

		var resPtr *model.ExecutionResult
		if ran {
			resPtr = &res
		}

		earned := e.CreditFor(q, ans, answered, resPtr)
		out = append(out, QuestionScore{
			QuestionID: q.ID,
			Kind:       q.Kind,
			Answered:   answered,
			Correct:    earned == float64(q.Points),
			Earned:     earned,
			Possible:   float64(q.Points),
		})
	}
	return out
}

// CreditFor computes the credit for a single question.
func (e Engine) CreditFor(q *model.Question, ans model.Answer, answered bool, result *model.ExecutionResult) float64 {
	if !answered {
		return 0
	}
	points := float64(q.Points)

	switch q.Kind {
	case model.QuestionKindMultipleChoice:
		idx, ok := ans.SelectedIndex()
		if ok && idx == q.CorrectAnswerIndex {
			return points
		}
		return 0

	case model.QuestionKindCoding:
		if _, _, ok := ans.Code(); !ok {
			return 0
		}
		if e.mode == ModeFlat {
			return points * FlatCodingCredit
		}
		return points * passedFraction(q, result)
	}
	return 0
}

func passedFraction(q *model.Question, result *model.ExecutionResult) float64 {
	if result == nil {
		return 0
	}
	total := len(q.TestCases)
	if total == 0 {
		total = result.TotalCount
	}
	if total == 0 {
		return 0
	}

	passed := result.PassedCount
	if passed > total {
		passed = total
	}
	if passed < 0 {
		passed = 0
	}
	return float64(passed) / float64(total)
}

// MaxScore is the best score an attempt on exam can reach.
func MaxScore(exam *model.Exam) float64 {
	return exam.TotalPoints()
}
