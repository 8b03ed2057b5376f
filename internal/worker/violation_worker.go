package worker

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-engine/internal/config"
)

// ViolationWorker copies queued violations into proctoring_violations.
type ViolationWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

func NewViolationWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *ViolationWorker {
	return &ViolationWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "violation_worker").Logger(),
	}
}

// Start blocks until ctx is done.
func (w *ViolationWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ViolationWorker started")
	drain(ctx, w.rdb, config.WorkerKey.PersistViolationsQueue, w.log, w.flushSafe)
}

// flushSafe tries a bulk COPY first, then row-by-row inserts, requeueing rows
// that still fail.
func (w *ViolationWorker) flushSafe(ctx context.Context, batch []*ViolationRecord) {
	err := w.bulkInsert(ctx, batch)
	if err == nil {
		return
	}
	w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")

	var failed []*ViolationRecord
	for _, v := range batch {
		_, err := w.pool.Exec(ctx,
			`INSERT INTO proctoring_violations (attempt_id, exam_id, user_id, kind, recorded_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			v.AttemptID, v.ExamID, v.UserID, v.Kind, time.UnixMilli(v.Timestamp).UTC(),
		)
		if err != nil {
			w.log.Error().Err(err).Str("attempt_id", v.AttemptID).Msg("Insert failed, requeueing")
			failed = append(failed, v)
		}
	}
	requeue(ctx, w.rdb, config.WorkerKey.PersistViolationsQueue, w.log, failed)
}

func (w *ViolationWorker) bulkInsert(ctx context.Context, batch []*ViolationRecord) error {
	_, err := w.pool.CopyFrom(
		ctx,
		pgx.Identifier{"proctoring_violations"},
		[]string{"attempt_id", "exam_id", "user_id", "kind", "recorded_at"},
		pgx.CopyFromRows(violationRows(batch)),
	)
	return err
}

func violationRows(batch []*ViolationRecord) [][]any {
	rows := make([][]any, 0, len(batch))
	for _, v := range batch {
		rows = append(rows, []any{
			v.AttemptID, v.ExamID, v.UserID, v.Kind, time.UnixMilli(v.Timestamp).UTC(),
		})
	}
	return rows
}
