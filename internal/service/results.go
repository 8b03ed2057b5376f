package service

import (
	"math"
	"sort"
	"time"

	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/scoring"
)

// Dashboard is the landing page summary.
type Dashboard struct {
	ActiveExams       int     `json:"active_exams"`
	CompletedAttempts int     `json:"completed_attempts"`
	AverageScore      float64 `json:"average_score"`
	TotalMinutesSpent int     `json:"total_minutes_spent"`
}

// Performance is the feedback band shown with a result.
type Performance struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// PerformanceFor maps a percentage onto its feedback band.
func PerformanceFor(percentage int) Performance {
	switch {
	case percentage >= 90:
		return Performance{"Excellent!", "Outstanding performance! You have mastered this topic."}
	case percentage >= 80:
		return Performance{"Great Job!", "Very good performance! You have a strong understanding."}
	case percentage >= 70:
		return Performance{"Good Work!", "Good performance! Consider reviewing some topics."}
	case percentage >= 60:
		return Performance{"Keep Practicing!", "You passed, but there's room for improvement."}
	default:
		return Performance{"More Study Needed", "Consider reviewing the material and trying again."}
	}
}

// QuestionResult is the outcome of one question of a finished attempt.
type QuestionResult struct {
	QuestionID string             `json:"question_id"`
	Title      string             `json:"title"`
	Kind       model.QuestionKind `json:"kind"`
	Answered   bool               `json:"answered"`
	Earned     float64            `json:"earned"`
	Possible   float64            `json:"possible"`
}

// ResultSummary describes a finished attempt for the results screen.
type ResultSummary struct {
	AttemptID       string           `json:"attempt_id"`
	ExamID          string           `json:"exam_id"`
	ExamTitle       string           `json:"exam_title"`
	Score           float64          `json:"score"`
	MaxScore        float64          `json:"max_score"`
	Percentage      int              `json:"percentage"`
	Answered        int              `json:"answered"`
	TotalQuestions  int              `json:"total_questions"`
	DurationMinutes int              `json:"duration_minutes"`
	SubmitReason    string           `json:"submit_reason"`
	FinishedAt      *time.Time       `json:"finished_at,omitempty"`
	Performance     Performance      `json:"performance"`
	Questions       []QuestionResult `json:"questions,omitempty"`
}

// unknownExamTitle is shown for attempts whose exam left the catalog.
const unknownExamTitle = "Unknown Exam"

// Dashboard aggregates the catalog and the history.
func (s *SessionStore) Dashboard() Dashboard {
	d := Dashboard{ActiveExams: len(s.ActiveExams())}

	var total float64
	var spent time.Duration
	for _, a := range s.History() {
		if !a.Completed || a.Score == nil {
			continue
		}
		d.CompletedAttempts++
		total += *a.Score
		spent += a.Elapsed()
	}
	if d.CompletedAttempts > 0 {
		d.AverageScore = total / float64(d.CompletedAttempts)
	}
	d.TotalMinutesSpent = int(math.Round(spent.Minutes()))
	return d
}

// RecentResults returns up to n completed attempts, newest first.
func (s *SessionStore) RecentResults(n int) []ResultSummary {
	history := s.History()
	sort.SliceStable(history, func(i, j int) bool {
		return finishedAt(&history[i]).After(finishedAt(&history[j]))
	})
	if n >= 0 && len(history) > n {
		history = history[:n]
	}

	out := make([]ResultSummary, 0, len(history))
	for i := range history {
		out = append(out, s.summarize(&history[i], false))
	}
	return out
}

// LatestResult returns the most recently finished attempt with its
// per-question breakdown.
func (s *SessionStore) LatestResult() (ResultSummary, bool) {
	recent := s.History()
	if len(recent) == 0 {
		return ResultSummary{}, false
	}
	// Ties go to the attempt recorded last.
	latest := &recent[0]
	for i := range recent {
		if !finishedAt(&recent[i]).Before(finishedAt(latest)) {
			latest = &recent[i]
		}
	}
	return s.summarize(latest, true), true
}

func finishedAt(a *model.Attempt) time.Time {
	if a.EndTime != nil {
		return *a.EndTime
	}
	return a.StartTime
}

func (s *SessionStore) summarize(a *model.Attempt, withQuestions bool) ResultSummary {
	sum := ResultSummary{
		AttemptID:       a.ID,
		ExamID:          a.ExamID,
		ExamTitle:       unknownExamTitle,
		Answered:        a.AnsweredCount(),
		DurationMinutes: int(math.Round(a.Elapsed().Minutes())),
		SubmitReason:    string(a.SubmitReason),
		FinishedAt:      a.EndTime,
	}
	if a.Score != nil {
		sum.Score = *a.Score
	}

	exam, ok := s.Exam(a.ExamID)
	if ok {
		sum.ExamTitle = exam.Title
		sum.MaxScore = scoring.MaxScore(exam)
		sum.TotalQuestions = len(exam.Questions)
		if sum.MaxScore > 0 {
			sum.Percentage = int(math.Round(sum.Score / sum.MaxScore * 100))
		}
		if withQuestions {
			for i := range exam.Questions {
				q := &exam.Questions[i]
				_, answered := a.Answers[q.ID]
				sum.Questions = append(sum.Questions, QuestionResult{
					QuestionID: q.ID,
					Title:      q.Title,
					Kind:       q.Kind,
					Answered:   answered,
					Earned:     a.Credits[q.ID],
					Possible:   float64(q.Points),
				})
			}
		}
	}
	sum.Performance = PerformanceFor(sum.Percentage)
	return sum
}
