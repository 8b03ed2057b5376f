package model

// StartExamRequest reports the display state at the moment an attempt starts.
type StartExamRequest struct {
	Fullscreen bool `json:"fullscreen"`
	Visible    bool `json:"visible"`
}

// AnswerRequest is the payload of PUT /attempt/answers/:question_id.
type AnswerRequest struct {
	Kind          AnswerKind `json:"kind" binding:"required,oneof=multiple_choice coding"`
	SelectedIndex *int       `json:"selected_index" binding:"required_if=Kind multiple_choice,omitempty,min=0"`
	Language      string     `json:"language" binding:"required_if=Kind coding"`
	Code          string     `json:"code"`
}

// ToAnswer converts a validated request into an Answer.
func (r AnswerRequest) ToAnswer() Answer {
	if r.Kind == AnswerKindMultipleChoice {
		return ChoiceAnswer(*r.SelectedIndex)
	}
	return CodeAnswer(r.Language, r.Code)
}

// RunCodeRequest is the payload of POST /attempt/questions/:question_id/run.
type RunCodeRequest struct {
	Language string `json:"language" binding:"required"`
	Code     string `json:"code" binding:"notblank"`
}

// EnvironmentRequest reports a fullscreen or visibility change. Absent
// fields are left untouched.
type EnvironmentRequest struct {
	Fullscreen *bool `json:"fullscreen"`
	Visible    *bool `json:"visible"`
}
