package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/stemsi/exstem-engine/internal/config"
	"github.com/stemsi/exstem-engine/internal/model"
)

// HistorySchemaVersion is the version written by Save.
const HistorySchemaVersion = 1

// legacyLanguage tags code answers from records that never stored a language.
const legacyLanguage = "unspecified"

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

type historyEnvelope struct {
	SchemaVersion int             `json:"schema_version"`
	SavedAt       time.Time       `json:"saved_at"`
	Attempts      []model.Attempt `json:"attempts"`
}

// AttemptRepository stores a user's completed attempts as one blob,
// rewritten wholesale on every save.
type AttemptRepository struct {
	kv       KV
	key      string
	compress bool
	enc      *zstd.Encoder
	dec      *zstd.Decoder
	now      func() time.Time
}

// NewAttemptRepository creates a repository for userID. With compress set the
// blob is zstd-encoded; reads accept both forms either way.
func NewAttemptRepository(kv KV, userID string, compress bool) (*AttemptRepository, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &AttemptRepository{
		kv:       kv,
		key:      config.CacheKey.AttemptHistoryKey(userID),
		compress: compress,
		enc:      enc,
		dec:      dec,
		now:      time.Now,
	}, nil
}

// Load returns every stored attempt. A missing blob is an empty history.
func (r *AttemptRepository) Load(ctx context.Context) ([]model.Attempt, error) {
	raw, err := r.kv.Get(ctx, r.key)
	if errors.Is(err, model.ErrBlobNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load attempt history: %w", err)
	}
	return r.decode(raw)
}

// Save replaces the stored history with attempts.
func (r *AttemptRepository) Save(ctx context.Context, attempts []model.Attempt) error {
	raw, err := r.encode(attempts)
	if err != nil {
		return err
	}
	if err := r.kv.Put(ctx, r.key, raw); err != nil {
		return fmt.Errorf("save attempt history: %w", err)
	}
	return nil
}

func (r *AttemptRepository) encode(attempts []model.Attempt) ([]byte, error) {
	if attempts == nil {
		attempts = []model.Attempt{}
	}
	raw, err := json.Marshal(historyEnvelope{
		SchemaVersion: HistorySchemaVersion,
		SavedAt:       r.now().UTC(),
		Attempts:      attempts,
	})
	if err != nil {
		return nil, fmt.Errorf("encode attempt history: %w", err)
	}
	if r.compress {
		raw = r.enc.EncodeAll(raw, nil)
	}
	return raw, nil
}

func (r *AttemptRepository) decode(raw []byte) ([]model.Attempt, error) {
	if bytes.HasPrefix(raw, zstdMagic) {
		plain, err := r.dec.DecodeAll(raw, nil)
		if err != nil {
			return nil, fmt.Errorf("decompress attempt history: %w", err)
		}
		raw = plain
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '[' {
		return decodeLegacy(trimmed)
	}

	var env struct {
		SchemaVersion int             `json:"schema_version"`
		Attempts      json.RawMessage `json:"attempts"`
	}
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, fmt.Errorf("decode attempt history: %w", err)
	}
	if env.SchemaVersion != HistorySchemaVersion {
		return nil, fmt.Errorf("%w: %d", model.ErrUnsupportedSchema, env.SchemaVersion)
	}

	var attempts []model.Attempt
	if len(env.Attempts) > 0 {
		if err := json.Unmarshal(env.Attempts, &attempts); err != nil {
			return nil, fmt.Errorf("decode attempts: %w", err)
		}
	}
	return completedOnly(attempts), nil
}

// legacyAttempt is the unversioned camelCase record of the first client
// release. Answers were raw values: an option index or a code string.
type legacyAttempt struct {
	ID          string                     `json:"id"`
	ExamID      string                     `json:"examId"`
	UserID      string                     `json:"userId"`
	StartTime   time.Time                  `json:"startTime"`
	EndTime     *time.Time                 `json:"endTime"`
	Answers     map[string]json.RawMessage `json:"answers"`
	Score       *float64                   `json:"score"`
	IsCompleted bool                       `json:"isCompleted"`
}

func decodeLegacy(raw []byte) ([]model.Attempt, error) {
	var legacy []legacyAttempt
	if err := json.Unmarshal(raw, &legacy); err != nil {
		return nil, fmt.Errorf("decode legacy attempt history: %w", err)
	}

	out := make([]model.Attempt, 0, len(legacy))
	for _, l := range legacy {
		a := model.Attempt{
			ID:        l.ID,
			ExamID:    l.ExamID,
			UserID:    l.UserID,
			StartTime: l.StartTime,
			EndTime:   l.EndTime,
			Answers:   make(map[string]model.Answer, len(l.Answers)),
			Score:     l.Score,
			Completed: l.IsCompleted,
		}
		for qid, v := range l.Answers {
			if ans, ok := legacyAnswer(v); ok {
				a.Answers[qid] = ans
			}
		}
		out = append(out, a)
	}
	return completedOnly(out), nil
}

// legacyAnswer maps a raw legacy value to an Answer. null and blank values
// are unanswered and report false.
func legacyAnswer(v json.RawMessage) (model.Answer, bool) {
	v = bytes.TrimSpace(v)
	if len(v) == 0 || bytes.Equal(v, []byte("null")) {
		return model.Answer{}, false
	}
	var idx int
	if err := json.Unmarshal(v, &idx); err == nil {
		return model.ChoiceAnswer(idx), true
	}
	var code string
	if err := json.Unmarshal(v, &code); err == nil {
		ans := model.CodeAnswer(legacyLanguage, code)
		return ans, !ans.IsBlank()
	}
	var ans model.Answer
	if err := json.Unmarshal(v, &ans); err == nil {
		return ans, !ans.IsBlank()
	}
	return model.Answer{}, false
}

// completedOnly drops records that break the score-iff-completed rule.
func completedOnly(attempts []model.Attempt) []model.Attempt {
	out := attempts[:0]
	for _, a := range attempts {
		if a.Completed && a.Score != nil {
			if a.Answers == nil {
				a.Answers = map[string]model.Answer{}
			}
			out = append(out, a)
		}
	}
	return out
}
