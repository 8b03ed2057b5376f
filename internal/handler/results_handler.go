package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/stemsi/exstem-engine/internal/response"
	"github.com/stemsi/exstem-engine/internal/service"
)

const (
	defaultPerPage = 10
	maxPerPage     = 100
)

// ResultsHandler serves the history, dashboard and result screens.
type ResultsHandler struct {
	store *service.SessionStore
}

// NewResultsHandler creates a new ResultsHandler.
func NewResultsHandler(store *service.SessionStore) *ResultsHandler {
	return &ResultsHandler{store: store}
}

// GetHistory godoc
// GET /api/v1/history?page=1&per_page=10
// Lists finished attempts, newest first.
func (h *ResultsHandler) GetHistory(c *gin.Context) {
	page := queryInt(c, "page", 1, 1, 0)
	perPage := queryInt(c, "per_page", defaultPerPage, 1, maxPerPage)

	all := h.store.RecentResults(-1)
	start := (page - 1) * perPage
	if start > len(all) {
		start = len(all)
	}
	end := start + perPage
	if end > len(all) {
		end = len(all)
	}

	response.Paginated(c, gin.H{"results": all[start:end]}, page, perPage, len(all))
}

// GetDashboard godoc
// GET /api/v1/dashboard
// Returns the stat cards and the most recent results.
func (h *ResultsHandler) GetDashboard(c *gin.Context) {
	response.Success(c, http.StatusOK, gin.H{
		"stats":  h.store.Dashboard(),
		"recent": h.store.RecentResults(3),
	})
}

// GetLatestResult godoc
// GET /api/v1/results/latest
// Returns the last finished attempt with its per-question breakdown.
func (h *ResultsHandler) GetLatestResult(c *gin.Context) {
	summary, ok := h.store.LatestResult()
	if !ok {
		response.Fail(c, http.StatusNotFound, response.ErrNoResults)
		return
	}

	response.Success(c, http.StatusOK, summary)
}

// queryInt parses a positive integer query parameter, clamped to [lo, hi].
// A zero hi means unbounded.
func queryInt(c *gin.Context, name string, def, lo, hi int) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return def
	}
	if v < lo {
		v = lo
	}
	if hi > 0 && v > hi {
		v = hi
	}
	return v
}
