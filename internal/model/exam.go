package model

import (
	"fmt"
	"time"
)

// Exam is an immutable, ordered set of questions with a duration and an
// attempt-count policy. It is supplied by the catalog service.
type Exam struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	DurationMinutes int        `json:"duration_minutes"`
	IsActive        bool       `json:"is_active"`
	AllowedAttempts int        `json:"allowed_attempts"`
	Questions       []Question `json:"questions"`
}

// Duration returns the exam time limit.
func (e *Exam) Duration() time.Duration {
	return time.Duration(e.DurationMinutes) * time.Minute
}

// Question looks up a question by id.
func (e *Exam) Question(id string) (*Question, bool) {
	for i := range e.Questions {
		if e.Questions[i].ID == id {
			return &e.Questions[i], true
		}
	}
	return nil, false
}

// QuestionIDs returns the question ids in exam order.
func (e *Exam) QuestionIDs() []string {
	ids := make([]string, len(e.Questions))
	for i, q := range e.Questions {
		ids[i] = q.ID
	}
	return ids
}

// TotalPoints is the maximum achievable score.
func (e *Exam) TotalPoints() float64 {
	var total float64
	for _, q := range e.Questions {
		total += float64(q.Points)
	}
	return total
}

// Validate checks the structural rules every catalog exam must satisfy.
func (e *Exam) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("exam: empty id")
	}
	if e.DurationMinutes <= 0 {
		return fmt.Errorf("exam %s: duration must be positive, got %d", e.ID, e.DurationMinutes)
	}
	if e.AllowedAttempts < 0 {
		return fmt.Errorf("exam %s: allowed attempts must not be negative", e.ID)
	}

	seen := make(map[string]struct{}, len(e.Questions))
	for i := range e.Questions {
		q := &e.Questions[i]
		if _, dup := seen[q.ID]; dup {
			return fmt.Errorf("exam %s: duplicate question id %q", e.ID, q.ID)
		}
		seen[q.ID] = struct{}{}
		if err := q.Validate(); err != nil {
			return fmt.Errorf("exam %s: %w", e.ID, err)
		}
	}
	return nil
}

// StudentView returns a copy of the exam that is safe to hand to the
// presentation layer: correct options and hidden test case data are removed.
func (e *Exam) StudentView() ExamForStudent {
	questions := make([]QuestionForStudent, len(e.Questions))
	for i := range e.Questions {
		questions[i] = e.Questions[i].StudentView()
	}
	return ExamForStudent{
		ID:              e.ID,
		Title:           e.Title,
		Description:     e.Description,
		DurationMinutes: e.DurationMinutes,
		IsActive:        e.IsActive,
		AllowedAttempts: e.AllowedAttempts,
		TotalPoints:     e.TotalPoints(),
		Questions:       questions,
	}
}

// ExamForStudent is the exam payload sent to the presentation layer (no answer key).
type ExamForStudent struct {
	ID              string               `json:"id"`
	Title           string               `json:"title"`
	Description     string               `json:"description"`
	DurationMinutes int                  `json:"duration_minutes"`
	IsActive        bool                 `json:"is_active"`
	AllowedAttempts int                  `json:"allowed_attempts"`
	TotalPoints     float64              `json:"total_points"`
	Questions       []QuestionForStudent `json:"questions"`
}
