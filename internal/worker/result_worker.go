package worker

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-engine/internal/config"
)

// ResultWorker upserts queued attempt results into attempt_results.
type ResultWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

func NewResultWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *ResultWorker {
	return &ResultWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "result_worker").Logger(),
	}
}

// Start blocks until ctx is done.
func (w *ResultWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ResultWorker started")
	drain(ctx, w.rdb, config.WorkerKey.PersistResultsQueue, w.log, w.flushSafe)
}

func (w *ResultWorker) flushSafe(ctx context.Context, batch []*ResultRecord) {
	if len(batch) == 0 {
		return
	}
	err := w.bulkUpsert(ctx, batch)
	if err == nil {
		return
	}
	w.log.Warn().Err(err).Msg("bulk result upsert failed, using fallback")

	var failed []*ResultRecord
	for _, r := range batch {
		if err := w.persistSingle(ctx, r); err != nil {
			w.log.Error().Err(err).Str("attempt_id", r.AttemptID).Msg("persistSingle failed, requeueing")
			failed = append(failed, r)
		}
	}
	requeue(ctx, w.rdb, config.WorkerKey.PersistResultsQueue, w.log, failed)
}

const upsertResultColumns = `
	ON CONFLICT (attempt_id) DO UPDATE
	SET score = EXCLUDED.score,
	    max_score = EXCLUDED.max_score,
	    answered = EXCLUDED.answered,
	    total_questions = EXCLUDED.total_questions,
	    submit_reason = EXCLUDED.submit_reason,
	    started_at = EXCLUDED.started_at,
	    finished_at = EXCLUDED.finished_at`

// bulkUpsert writes the batch in one statement using UNNEST.
func (w *ResultWorker) bulkUpsert(ctx context.Context, batch []*ResultRecord) error {
	c := resultColumnsOf(batch)

	query := `
		INSERT INTO attempt_results
			(attempt_id, exam_id, user_id, score, max_score, answered, total_questions,
			 submit_reason, started_at, finished_at)
		SELECT * FROM UNNEST(
			$1::text[], $2::text[], $3::text[], $4::float8[], $5::float8[],
			$6::int[], $7::int[], $8::text[], $9::timestamptz[], $10::timestamptz[]
		)` + upsertResultColumns

	_, err := w.pool.Exec(ctx, query,
		c.attemptIDs, c.examIDs, c.userIDs, c.scores, c.maxScores,
		c.answered, c.totals, c.reasons, c.startedAts, c.finishedAts)
	return err
}

func (w *ResultWorker) persistSingle(ctx context.Context, r *ResultRecord) error {
	_, err := w.pool.Exec(ctx,
		`INSERT INTO attempt_results
			(attempt_id, exam_id, user_id, score, max_score, answered, total_questions,
			 submit_reason, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`+upsertResultColumns,
		r.AttemptID, r.ExamID, r.UserID, r.Score, r.MaxScore, r.Answered, r.TotalQuestions,
		r.SubmitReason, r.StartedAt, r.FinishedAt,
	)
	return err
}
