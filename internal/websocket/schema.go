package websocket

import (
	"time"

	"github.com/stemsi/exstem-engine/internal/deadline"
	"github.com/stemsi/exstem-engine/internal/model"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer      Action = "answer"
	ActionEnvironment Action = "environment"
	ActionSubmit      Action = "submit"
	ActionPing        Action = "ping"
)

// RequestPayload is the union of every client message. Fields unused by an
// action are ignored.
type RequestPayload struct {
	Action     Action        `json:"action"`
	QuestionID string        `json:"question_id,omitempty"`
	Answer     *model.Answer `json:"answer,omitempty"` // nil clears the answer
	Fullscreen *bool         `json:"fullscreen,omitempty"`
	Visible    *bool         `json:"visible,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventStarted   Event = "started"
	EventTick      Event = "tick"
	EventWarning   Event = "warning"
	EventSubmitted Event = "submitted"
	EventAbandoned Event = "abandoned"
	EventViolation Event = "violation"
	EventSaved     Event = "saved"
	EventError     Event = "error"
	EventPong      Event = "pong"
)

// Timer is the countdown as the presentation layer shows it.
type Timer struct {
	RemainingSeconds int              `json:"remaining_seconds"`
	Display          string           `json:"display"`
	Urgency          deadline.Urgency `json:"urgency"`
}

// NewTimer builds the countdown view of remaining.
func NewTimer(remaining, warnAt time.Duration) Timer {
	if remaining < 0 {
		remaining = 0
	}
	return Timer{
		RemainingSeconds: int(remaining / time.Second),
		Display:          deadline.Format(remaining),
		Urgency:          deadline.Classify(remaining, warnAt),
	}
}

type TimerResponse struct {
	Event     Event  `json:"event"`
	AttemptID string `json:"attempt_id"`
	Timer
}

type StartedResponse struct {
	Event     Event  `json:"event"`
	AttemptID string `json:"attempt_id"`
	ExamID    string `json:"exam_id"`
	Timer
}

type SubmittedResponse struct {
	Event        Event              `json:"event"`
	AttemptID    string             `json:"attempt_id"`
	ExamID       string             `json:"exam_id"`
	Score        float64            `json:"score"`
	SubmitReason model.SubmitReason `json:"submit_reason"`
}

type AbandonedResponse struct {
	Event     Event  `json:"event"`
	AttemptID string `json:"attempt_id"`
}

type ViolationResponse struct {
	Event     Event               `json:"event"`
	AttemptID string              `json:"attempt_id"`
	Kind      model.ViolationKind `json:"kind"`
	Timestamp time.Time           `json:"timestamp"`
}

type SavedResponse struct {
	Event      Event  `json:"event"`
	QuestionID string `json:"question_id"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
