package model

import "time"

// SubmitReason records what triggered the submission of an attempt.
type SubmitReason string

const (
	SubmitUserRequested   SubmitReason = "user_requested"
	SubmitDeadlineExpired SubmitReason = "deadline_expired"
)

// Attempt is one user's timed instance of taking an exam. It becomes
// immutable once Completed is true; Score is set if and only if Completed.
type Attempt struct {
	ID           string             `json:"id"`
	ExamID       string             `json:"exam_id"`
	UserID       string             `json:"user_id"`
	StartTime    time.Time          `json:"start_time"`
	EndTime      *time.Time         `json:"end_time,omitempty"`
	Answers      map[string]Answer  `json:"answers"`
	Score        *float64           `json:"score,omitempty"`
	Credits      map[string]float64 `json:"credits,omitempty"` // points earned per question id
	Completed    bool               `json:"completed"`
	SubmitReason SubmitReason       `json:"submit_reason,omitempty"`
}

// Clone returns a deep copy so snapshots never alias machine-owned state.
func (a *Attempt) Clone() *Attempt {
	if a == nil {
		return nil
	}
	c := *a
	c.Answers = make(map[string]Answer, len(a.Answers))
	for k, v := range a.Answers {
		c.Answers[k] = v
	}
	if a.Credits != nil {
		c.Credits = make(map[string]float64, len(a.Credits))
		for k, v := range a.Credits {
			c.Credits[k] = v
		}
	}
	if a.EndTime != nil {
		t := *a.EndTime
		c.EndTime = &t
	}
	if a.Score != nil {
		s := *a.Score
		c.Score = &s
	}
	return &c
}

// Elapsed returns the time between start and end, or zero for open attempts.
func (a *Attempt) Elapsed() time.Duration {
	if a.EndTime == nil {
		return 0
	}
	return a.EndTime.Sub(a.StartTime)
}

// AnsweredCount is the number of questions with a recorded answer.
func (a *Attempt) AnsweredCount() int {
	return len(a.Answers)
}
