package scoring

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-engine/internal/model"
)

func sampleExam() *model.Exam {
	return &model.Exam{
		ID:              "exam-1",
		DurationMinutes: 60,
		AllowedAttempts: 3,
		Questions: []model.Question{
			{ID: "mcq-1", Kind: model.QuestionKindMultipleChoice, Points: 10, Options: []string{"a", "b", "c"}, CorrectAnswerIndex: 1},
			{ID: "mcq-2", Kind: model.QuestionKindMultipleChoice, Points: 5, Options: []string{"a", "b"}, CorrectAnswerIndex: 0},
			{
				ID: "code-1", Kind: model.QuestionKindCoding, Points: 10,
				StarterCode: map[string]string{"python": "def solve(x):\n    pass\n"},
				TestCases: []model.TestCase{
					{ID: 1, Name: "one"}, {ID: 2, Name: "two"}, {ID: 3, Name: "three"}, {ID: 4, Name: "four", Hidden: true},
				},
			},
		},
	}
}

func TestMultipleChoiceCredit(t *testing.T) {
	exam := sampleExam()
	engine := NewEngine(ModePassedFraction)

	testCases := []struct {
		name     string
		answers  map[string]model.Answer
		expected float64
	}{
		{"unanswered", map[string]model.Answer{}, 0},
		{"both correct", map[string]model.Answer{"mcq-1": model.ChoiceAnswer(1), "mcq-2": model.ChoiceAnswer(0)}, 15},
		{"one wrong", map[string]model.Answer{"mcq-1": model.ChoiceAnswer(2), "mcq-2": model.ChoiceAnswer(0)}, 5},
		{"all wrong", map[string]model.Answer{"mcq-1": model.ChoiceAnswer(0), "mcq-2": model.ChoiceAnswer(1)}, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, engine.Score(exam, tc.answers, nil))
		})
	}
}

func TestFlatCodingCreditForUneditedStarterTemplate(t *testing.T) {
	exam := sampleExam()
	starter := exam.Questions[2].StarterCode["python"]
	answers := map[string]model.Answer{"code-1": model.CodeAnswer("python", starter)}

	score := NewEngine(ModeFlat).Score(exam, answers, nil)

	// Legacy heuristic: any submitted code earns 80% with no run at all.
	require.InDelta(t, 8.0, score, 1e-9)
}

func TestPassedFractionCreditForUneditedStarterTemplate(t *testing.T) {
	exam := sampleExam()
	starter := exam.Questions[2].StarterCode["python"]
	answers := map[string]model.Answer{"code-1": model.CodeAnswer("python", starter)}
	engine := NewEngine(ModePassedFraction)

	require.Equal(t, 0.0, engine.Score(exam, answers, nil), "no run means no credit")

	results := map[string]model.ExecutionResult{
		"code-1": {QuestionID: "code-1", OverallStatus: model.OverallPartial, PassedCount: 1, TotalCount: 4},
	}
	require.InDelta(t, 2.5, engine.Score(exam, answers, results), 1e-9)
}

func TestPassedFractionIgnoresRunWithoutAnswer(t *testing.T) {
	exam := sampleExam()
	results := map[string]model.ExecutionResult{
		"code-1": {QuestionID: "code-1", OverallStatus: model.OverallPassed, PassedCount: 4, TotalCount: 4},
	}
	require.Equal(t, 0.0, NewEngine(ModePassedFraction).Score(exam, map[string]model.Answer{}, results))
}

func TestPassedFractionClampsToQuestionTotal(t *testing.T) {
	exam := sampleExam()
	answers := map[string]model.Answer{"code-1": model.CodeAnswer("python", "print(1)")}
	results := map[string]model.ExecutionResult{
		"code-1": {PassedCount: 9, TotalCount: 9},
	}
	require.InDelta(t, 10.0, NewEngine(ModePassedFraction).Score(exam, answers, results), 1e-9)
}

func TestScoreIsSumOfCreditsAndBounded(t *testing.T) {
	exam := sampleExam()
	full := map[string]model.ExecutionResult{"code-1": {PassedCount: 4, TotalCount: 4}}

	answerSets := []map[string]model.Answer{
		{},
		{"mcq-1": model.ChoiceAnswer(1)},
		{"mcq-1": model.ChoiceAnswer(1), "mcq-2": model.ChoiceAnswer(0), "code-1": model.CodeAnswer("python", "x")},
		{"mcq-2": model.ChoiceAnswer(1), "code-1": model.CodeAnswer("python", "x")},
	}

	for _, mode := range []Mode{ModeFlat, ModePassedFraction} {
		engine := NewEngine(mode)
		for _, answers := range answerSets {
			score := engine.Score(exam, answers, full)

			var sum float64
			for i := range exam.Questions {
				q := &exam.Questions[i]
				ans, ok := answers[q.ID]
				res := full[q.ID]
				sum += engine.CreditFor(q, ans, ok, &res)
			}
			require.InDelta(t, sum, score, 1e-9)
			require.GreaterOrEqual(t, score, 0.0)
			require.LessOrEqual(t, score, exam.TotalPoints())
		}
	}
}

func TestBreakdown(t *testing.T) {
	exam := sampleExam()
	answers := map[string]model.Answer{"mcq-1": model.ChoiceAnswer(1), "mcq-2": model.ChoiceAnswer(1)}

	breakdown := NewEngine(ModeFlat).Breakdown(exam, answers, nil)
	require.Len(t, breakdown, 3)

	require.True(t, breakdown[0].Correct)
	require.Equal(t, 10.0, breakdown[0].Earned)
	require.True(t, breakdown[1].Answered)
	require.False(t, breakdown[1].Correct)
	require.False(t, breakdown[2].Answered)
	require.Equal(t, 10.0, breakdown[2].Possible)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	require.Equal(t, ModePassedFraction, m)

	m, err = ParseMode("flat")
	require.NoError(t, err)
	require.Equal(t, ModeFlat, m)

	_, err = ParseMode("generous")
	require.Error(t, err)
}
