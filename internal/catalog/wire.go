// Package catalog loads the exam catalog from the catalog service, a local
// fixture file or the last cached copy.
package catalog

import (
	"fmt"

	"github.com/stemsi/exstem-engine/internal/model"
)

// examDTO is the catalog service wire shape. Durations are in minutes.
type examDTO struct {
	ID              string        `json:"id" toml:"id"`
	Title           string        `json:"title" toml:"title"`
	Description     string        `json:"description" toml:"description"`
	Duration        int           `json:"duration" toml:"duration"`
	IsActive        bool          `json:"isActive" toml:"is_active"`
	AllowedAttempts int           `json:"allowedAttempts" toml:"allowed_attempts"`
	Questions       []questionDTO `json:"questions" toml:"questions"`
}

type questionDTO struct {
	ID               string            `json:"id" toml:"id"`
	Type             string            `json:"type" toml:"type"`
	Title            string            `json:"title" toml:"title"`
	Description      string            `json:"description" toml:"description"`
	Points           int               `json:"points" toml:"points"`
	Options          []string          `json:"options" toml:"options"`
	CorrectAnswer    *int              `json:"correctAnswer" toml:"correct_answer"`
	FunctionTemplate map[string]string `json:"functionTemplate" toml:"function_template"`
	StarterCode      map[string]string `json:"starterCode" toml:"starter_code"`
	TestCases        []testCaseDTO     `json:"testCases" toml:"test_cases"`
}

type testCaseDTO struct {
	ID             *int     `json:"id" toml:"id"`
	Name           string   `json:"name" toml:"name"`
	Input          []string `json:"input" toml:"input"`
	ExpectedOutput string   `json:"expectedOutput" toml:"expected_output"`
	IsHidden       bool     `json:"isHidden" toml:"is_hidden"`
}

func kindOf(wire string) model.QuestionKind {
	switch wire {
	case "mcq", "multiple_choice":
		return model.QuestionKindMultipleChoice
	case "coding":
		return model.QuestionKindCoding
	default:
		return model.QuestionKind(wire)
	}
}

func (d examDTO) toModel() model.Exam {
	e := model.Exam{
		ID:              d.ID,
		Title:           d.Title,
		Description:     d.Description,
		DurationMinutes: d.Duration,
		IsActive:        d.IsActive,
		AllowedAttempts: d.AllowedAttempts,
		Questions:       make([]model.Question, 0, len(d.Questions)),
	}
	for _, q := range d.Questions {
		e.Questions = append(e.Questions, q.toModel())
	}
	return e
}

func (d questionDTO) toModel() model.Question {
	q := model.Question{
		ID:          d.ID,
		Kind:        kindOf(d.Type),
		Title:       d.Title,
		Description: d.Description,
		Points:      d.Points,
		Options:     d.Options,
	}
	if d.CorrectAnswer != nil {
		q.CorrectAnswerIndex = *d.CorrectAnswer
	}

	// functionTemplate wins over the older starterCode map.
	if len(d.StarterCode)+len(d.FunctionTemplate) > 0 {
		q.StarterCode = make(map[string]string, len(d.StarterCode)+len(d.FunctionTemplate))
		for lang, code := range d.StarterCode {
			q.StarterCode[lang] = code
		}
		for lang, code := range d.FunctionTemplate {
			q.StarterCode[lang] = code
		}
	}

	for i, tc := range d.TestCases {
		id := i + 1
		if tc.ID != nil {
			id = *tc.ID
		}
		name := tc.Name
		if name == "" {
			name = fmt.Sprintf("Test case %d", id)
		}
		q.TestCases = append(q.TestCases, model.TestCase{
			ID:             id,
			Name:           name,
			Input:          tc.Input,
			ExpectedOutput: tc.ExpectedOutput,
			Hidden:         tc.IsHidden,
		})
	}
	return q
}

func toModels(dtos []examDTO) []model.Exam {
	out := make([]model.Exam, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, d.toModel())
	}
	return out
}
