package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-engine/internal/config"
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/repository"
)

// Source fetches the exam catalog. Exams are returned as delivered; callers
// validate them.
type Source interface {
	FetchExams(ctx context.Context) ([]model.Exam, error)
}

// decodeExams accepts either a bare JSON array of exams or a {"data": [...]}
// envelope.
func decodeExams(raw []byte) ([]model.Exam, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, errors.New("empty catalog body")
	}

	var dtos []examDTO
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &dtos); err != nil {
			return nil, fmt.Errorf("decode exam list: %w", err)
		}
		return toModels(dtos), nil
	}

	var env struct {
		Data []examDTO `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode exam envelope: %w", err)
	}
	return toModels(env.Data), nil
}

// ─── HTTP ───────────────────────────────────────────────────────────────────

// HTTPSource reads GET {baseURL}/problems.
type HTTPSource struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSource creates an HTTPSource with the given request timeout.
func NewHTTPSource(baseURL string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSource) FetchExams(ctx context.Context) ([]model.Exam, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/problems", nil)
	if err != nil {
		return nil, fmt.Errorf("create catalog request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog returned status %d", resp.StatusCode)
	}
	return decodeExams(body)
}

// ─── File ───────────────────────────────────────────────────────────────────

// FileSource reads a catalog fixture: .toml files hold [[exams]] tables, any
// other file is parsed like the HTTP body.
type FileSource struct {
	path string
}

// NewFileSource creates a FileSource.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) FetchExams(_ context.Context) ([]model.Exam, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}

	if strings.EqualFold(filepath.Ext(s.path), ".toml") {
		var doc struct {
			Exams []examDTO `toml:"exams"`
		}
		if err := toml.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("decode catalog file %s: %w", s.path, err)
		}
		return toModels(doc.Exams), nil
	}
	return decodeExams(raw)
}

// ─── Cached ─────────────────────────────────────────────────────────────────

// CachedSource writes every successful fetch to the store and serves the
// stored copy when the upstream source fails.
type CachedSource struct {
	src Source
	kv  repository.KV
	log zerolog.Logger
}

// NewCachedSource wraps src.
func NewCachedSource(src Source, kv repository.KV, log zerolog.Logger) *CachedSource {
	return &CachedSource{
		src: src,
		kv:  kv,
		log: log.With().Str("component", "catalog_cache").Logger(),
	}
}

func (s *CachedSource) FetchExams(ctx context.Context) ([]model.Exam, error) {
	exams, err := s.src.FetchExams(ctx)
	if err == nil {
		if raw, mErr := json.Marshal(exams); mErr == nil {
			if pErr := s.kv.Put(ctx, config.CacheKey.CatalogKey(), raw); pErr != nil {
				s.log.Warn().Err(pErr).Msg("Failed to cache catalog")
			}
		}
		return exams, nil
	}

	raw, cErr := s.kv.Get(ctx, config.CacheKey.CatalogKey())
	if cErr != nil {
		return nil, err
	}
	var cached []model.Exam
	if uErr := json.Unmarshal(raw, &cached); uErr != nil {
		s.log.Warn().Err(uErr).Msg("Cached catalog is unreadable")
		return nil, err
	}

	s.log.Warn().Err(err).Int("exams", len(cached)).Msg("Catalog fetch failed, serving cached copy")
	return cached, nil
}
