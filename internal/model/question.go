package model

import "fmt"

// QuestionKind enumerates the supported question types.
type QuestionKind string

const (
	QuestionKindMultipleChoice QuestionKind = "multiple_choice"
	QuestionKindCoding         QuestionKind = "coding"
)

// Question represents a single exam question. MultipleChoice questions use
// Options and CorrectAnswerIndex; Coding questions use StarterCode and TestCases.
type Question struct {
	ID                 string            `json:"id"`
	Kind               QuestionKind      `json:"kind"`
	Title              string            `json:"title"`
	Description        string            `json:"description"`
	Points             int               `json:"points"`
	Options            []string          `json:"options,omitempty"`
	CorrectAnswerIndex int               `json:"correct_answer_index,omitempty"`
	StarterCode        map[string]string `json:"starter_code,omitempty"`
	TestCases          []TestCase        `json:"test_cases,omitempty"`
}

// TestCase is one judged input/output pair of a coding question.
// Hidden cases are judged but their expected output is never shown.
type TestCase struct {
	ID             int      `json:"id"`
	Name           string   `json:"name"`
	Input          []string `json:"input"`
	ExpectedOutput string   `json:"expected_output"`
	Hidden         bool     `json:"hidden"`
}

// Validate checks the per-kind rules of a question.
func (q *Question) Validate() error {
	if q.ID == "" {
		return fmt.Errorf("question: empty id")
	}
	if q.Points <= 0 {
		return fmt.Errorf("question %s: points must be positive, got %d", q.ID, q.Points)
	}

	switch q.Kind {
	case QuestionKindMultipleChoice:
		if len(q.Options) == 0 {
			return fmt.Errorf("question %s: no options", q.ID)
		}
		if q.CorrectAnswerIndex < 0 || q.CorrectAnswerIndex >= len(q.Options) {
			return fmt.Errorf("question %s: correct answer index %d out of range", q.ID, q.CorrectAnswerIndex)
		}
	case QuestionKindCoding:
		// A coding question without test cases is legal; it simply cannot earn
		// passed-fraction credit.
	default:
		return fmt.Errorf("question %s: unknown kind %q", q.ID, q.Kind)
	}
	return nil
}

// SupportsLanguage reports whether code in lang may be submitted. Questions
// without starter templates accept any language.
func (q *Question) SupportsLanguage(lang string) bool {
	if len(q.StarterCode) == 0 {
		return true
	}
	_, ok := q.StarterCode[lang]
	return ok
}

// TestCase looks up a test case by id.
func (q *Question) TestCase(id int) (*TestCase, bool) {
	for i := range q.TestCases {
		if q.TestCases[i].ID == id {
			return &q.TestCases[i], true
		}
	}
	return nil, false
}

// StudentView strips the answer key and hidden test data.
func (q *Question) StudentView() QuestionForStudent {
	v := QuestionForStudent{
		ID:          q.ID,
		Kind:        q.Kind,
		Title:       q.Title,
		Description: q.Description,
		Points:      q.Points,
		Options:     q.Options,
		StarterCode: q.StarterCode,
	}
	for _, tc := range q.TestCases {
		pub := TestCaseForStudent{ID: tc.ID, Name: tc.Name, Hidden: tc.Hidden}
		if !tc.Hidden {
			pub.Input = tc.Input
			pub.ExpectedOutput = tc.ExpectedOutput
		}
		v.TestCases = append(v.TestCases, pub)
	}
	return v
}

// QuestionForStudent is a question without the correct answer, sent to the UI.
type QuestionForStudent struct {
	ID          string               `json:"id"`
	Kind        QuestionKind         `json:"kind"`
	Title       string               `json:"title"`
	Description string               `json:"description"`
	Points      int                  `json:"points"`
	Options     []string             `json:"options,omitempty"`
	StarterCode map[string]string    `json:"starter_code,omitempty"`
	TestCases   []TestCaseForStudent `json:"test_cases,omitempty"`
}

// TestCaseForStudent omits input and expected output of hidden cases.
type TestCaseForStudent struct {
	ID             int      `json:"id"`
	Name           string   `json:"name"`
	Input          []string `json:"input,omitempty"`
	ExpectedOutput string   `json:"expected_output,omitempty"`
	Hidden         bool     `json:"hidden"`
}
