package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// AnswerKind tags the variant held by an Answer.
type AnswerKind string

const (
	AnswerKindMultipleChoice AnswerKind = "multiple_choice"
	AnswerKindCoding         AnswerKind = "coding"
)

// Answer is a closed tagged value: either a selected option index or a piece
// of source code in one language. The zero value is not a valid answer.
type Answer struct {
	kind          AnswerKind
	selectedIndex int
	language      string
	code          string
}

// ChoiceAnswer builds a multiple-choice answer.
func ChoiceAnswer(index int) Answer {
	return Answer{kind: AnswerKindMultipleChoice, selectedIndex: index}
}

// CodeAnswer builds a coding answer.
func CodeAnswer(language, code string) Answer {
	return Answer{kind: AnswerKindCoding, language: language, code: code}
}

func (a Answer) Kind() AnswerKind { return a.kind }

// SelectedIndex returns the chosen option; ok is false for coding answers.
func (a Answer) SelectedIndex() (int, bool) {
	return a.selectedIndex, a.kind == AnswerKindMultipleChoice
}

// Code returns the language and source; ok is false for choice answers.
func (a Answer) Code() (language, code string, ok bool) {
	return a.language, a.code, a.kind == AnswerKindCoding
}

// IsBlank reports whether the answer carries no content and should be
// normalized to absence.
func (a Answer) IsBlank() bool {
	return a.kind == AnswerKindCoding && strings.TrimSpace(a.code) == ""
}

// CheckAgainst validates the answer shape against the question it answers.
func (a Answer) CheckAgainst(q *Question) error {
	switch a.kind {
	case AnswerKindMultipleChoice:
		if q.Kind != QuestionKindMultipleChoice {
			return fmt.Errorf("%w: choice answer for %s question %s", ErrInvalidAnswer, q.Kind, q.ID)
		}
		if a.selectedIndex < 0 || a.selectedIndex >= len(q.Options) {
			return fmt.Errorf("%w: option %d out of range for question %s", ErrInvalidAnswer, a.selectedIndex, q.ID)
		}
	case AnswerKindCoding:
		if q.Kind != QuestionKindCoding {
			return fmt.Errorf("%w: code answer for %s question %s", ErrInvalidAnswer, q.Kind, q.ID)
		}
		if !q.SupportsLanguage(a.language) {
			return fmt.Errorf("%w: language %q not offered by question %s", ErrInvalidAnswer, a.language, q.ID)
		}
	default:
		return fmt.Errorf("%w: unknown answer kind %q", ErrInvalidAnswer, a.kind)
	}
	return nil
}

type answerJSON struct {
	Kind          AnswerKind `json:"kind"`
	SelectedIndex *int       `json:"selected_index,omitempty"`
	Language      string     `json:"language,omitempty"`
	Code          *string    `json:"code,omitempty"`
}

// MarshalJSON encodes the variant with its kind tag.
func (a Answer) MarshalJSON() ([]byte, error) {
	out := answerJSON{Kind: a.kind}
	switch a.kind {
	case AnswerKindMultipleChoice:
		idx := a.selectedIndex
		out.SelectedIndex = &idx
	case AnswerKindCoding:
		code := a.code
		out.Language = a.language
		out.Code = &code
	default:
		return nil, fmt.Errorf("%w: cannot encode answer of kind %q", ErrInvalidAnswer, a.kind)
	}
	return json.Marshal(out)
}

// UnmarshalJSON rejects unknown kinds and variants with missing fields.
func (a *Answer) UnmarshalJSON(data []byte) error {
	var in answerJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAnswer, err)
	}

	switch in.Kind {
	case AnswerKindMultipleChoice:
		if in.SelectedIndex == nil {
			return fmt.Errorf("%w: selected_index is required", ErrInvalidAnswer)
		}
		*a = ChoiceAnswer(*in.SelectedIndex)
	case AnswerKindCoding:
		if in.Language == "" || in.Code == nil {
			return fmt.Errorf("%w: language and code are required", ErrInvalidAnswer)
		}
		*a = CodeAnswer(in.Language, *in.Code)
	default:
		return fmt.Errorf("%w: unknown answer kind %q", ErrInvalidAnswer, in.Kind)
	}
	return nil
}
