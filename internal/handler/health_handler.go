package handler

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-engine/internal/response"
	"github.com/stemsi/exstem-engine/internal/service"
)

// QueueStats reports reporting-queue backlogs. Nil when reporting is off.
type QueueStats interface {
	Depths(ctx context.Context) (map[string]int64, error)
}

// HealthHandler reports liveness and a few runtime numbers.
type HealthHandler struct {
	store     *service.SessionStore
	queues    QueueStats
	startTime time.Time
	log       zerolog.Logger
}

func NewHealthHandler(store *service.SessionStore, queues QueueStats, log zerolog.Logger) *HealthHandler {
	return &HealthHandler{
		store:     store,
		queues:    queues,
		startTime: time.Now(),
		log:       log.With().Str("component", "health_handler").Logger(),
	}
}

type healthStatus struct {
	Status       string           `json:"status"`
	Uptime       string           `json:"uptime"`
	GoVersion    string           `json:"go_version"`
	Goroutines   int              `json:"goroutines"`
	HeapAlloc    uint64           `json:"heap_alloc"`
	ExamsLoaded  int              `json:"exams_loaded"`
	AttemptState string           `json:"attempt_state"`
	Queues       map[string]int64 `json:"queues,omitempty"`
}

// Health godoc
// GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	status := healthStatus{
		Status:       "ok",
		Uptime:       formatDuration(time.Since(h.startTime)),
		GoVersion:    runtime.Version(),
		Goroutines:   runtime.NumGoroutine(),
		HeapAlloc:    ms.HeapAlloc,
		ExamsLoaded:  len(h.store.Exams()),
		AttemptState: h.store.Current().State.String(),
	}

	if h.queues != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		depths, err := h.queues.Depths(ctx)
		if err != nil {
			h.log.Warn().Err(err).Msg("Failed to read queue depths")
			status.Status = "degraded"
		} else {
			status.Queues = depths
		}
	}

	response.Success(c, http.StatusOK, status)
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}
