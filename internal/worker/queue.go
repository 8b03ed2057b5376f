// Package worker archives proctoring violations and attempt results. Producers
// push JSON records onto Redis lists; workers drain them in batches into
// PostgreSQL.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stemsi/exstem-engine/internal/config"
	"github.com/stemsi/exstem-engine/internal/model"
)

// ViolationRecord is one queued proctoring violation.
type ViolationRecord struct {
	AttemptID string `json:"attempt_id"`
	ExamID    string `json:"exam_id"`
	UserID    string `json:"user_id"`
	Kind      string `json:"kind"`
	Timestamp int64  `json:"timestamp"` // unix millis
}

// ResultRecord is one queued completed attempt.
type ResultRecord struct {
	AttemptID      string    `json:"attempt_id"`
	ExamID         string    `json:"exam_id"`
	UserID         string    `json:"user_id"`
	Score          float64   `json:"score"`
	MaxScore       float64   `json:"max_score"`
	Answered       int       `json:"answered"`
	TotalQuestions int       `json:"total_questions"`
	SubmitReason   string    `json:"submit_reason"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
}

// NewResultRecord summarizes a completed attempt.
func NewResultRecord(a *model.Attempt, exam *model.Exam, maxScore float64) ResultRecord {
	rec := ResultRecord{
		AttemptID:      a.ID,
		ExamID:         a.ExamID,
		UserID:         a.UserID,
		MaxScore:       maxScore,
		Answered:       a.AnsweredCount(),
		TotalQuestions: len(exam.Questions),
		SubmitReason:   string(a.SubmitReason),
		StartedAt:      a.StartTime,
	}
	if a.Score != nil {
		rec.Score = *a.Score
	}
	if a.EndTime != nil {
		rec.FinishedAt = *a.EndTime
	}
	return rec
}

// Queue pushes records for the workers.
type Queue struct {
	rdb *redis.Client
}

// NewQueue creates a new Queue.
func NewQueue(rdb *redis.Client) *Queue {
	return &Queue{rdb: rdb}
}

// PushViolation queues a violation for archiving.
func (q *Queue) PushViolation(ctx context.Context, userID string, v model.Violation) error {
	return q.push(ctx, config.WorkerKey.PersistViolationsQueue, ViolationRecord{
		AttemptID: v.AttemptID,
		ExamID:    v.ExamID,
		UserID:    userID,
		Kind:      string(v.Kind),
		Timestamp: v.Timestamp.UnixMilli(),
	})
}

// PushResult queues a completed attempt for archiving.
func (q *Queue) PushResult(ctx context.Context, rec ResultRecord) error {
	return q.push(ctx, config.WorkerKey.PersistResultsQueue, rec)
}

func (q *Queue) push(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s record: %w", key, err)
	}
	if err := q.rdb.RPush(ctx, key, data).Err(); err != nil {
		return fmt.Errorf("push %s: %w", key, err)
	}
	return nil
}

// Depths reports how many records wait in each reporting queue.
func (q *Queue) Depths(ctx context.Context) (map[string]int64, error) {
	pipe := q.rdb.Pipeline()
	violations := pipe.LLen(ctx, config.WorkerKey.PersistViolationsQueue)
	results := pipe.LLen(ctx, config.WorkerKey.PersistResultsQueue)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("read queue depths: %w", err)
	}
	return map[string]int64{
		"violations": violations.Val(),
		"results":    results.Val(),
	}, nil
}
