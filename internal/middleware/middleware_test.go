package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func compressedEngine(body string) *gin.Engine {
	r := gin.New()
	r.Use(Compress())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, body) })
	return r
}

func get(r http.Handler, acceptEncoding string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if acceptEncoding != "" {
		req.Header.Set("Accept-Encoding", acceptEncoding)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCompressPrefersBrotli(t *testing.T) {
	body := strings.Repeat("exam ", 1000)
	w := get(compressedEngine(body), "gzip, zstd, br")

	require.Equal(t, EncodingBrotli, w.Header().Get("Content-Encoding"))
	plain, err := io.ReadAll(brotli.NewReader(w.Body))
	require.NoError(t, err)
	require.Equal(t, body, string(plain))
}

func TestCompressFallsBackToZstd(t *testing.T) {
	body := strings.Repeat("attempt ", 1000)
	w := get(compressedEngine(body), "zstd, br;q=0")

	require.Equal(t, EncodingZstd, w.Header().Get("Content-Encoding"))
	dec, err := zstd.NewReader(w.Body)
	require.NoError(t, err)
	defer dec.Close()
	plain, err := io.ReadAll(dec)
	require.NoError(t, err)
	require.Equal(t, body, string(plain))
}

func TestCompressLeavesShortBodies(t *testing.T) {
	w := get(compressedEngine("ok"), "br")
	require.Empty(t, w.Header().Get("Content-Encoding"))
	require.Equal(t, "ok", w.Body.String())

	w = get(compressedEngine(strings.Repeat("x", 4096)), "")
	require.Empty(t, w.Header().Get("Content-Encoding"))
	require.Len(t, w.Body.String(), 4096)
}

func TestRateLimiterRefillsPerWindow(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(ctx, 2, time.Minute, nil)
	rl.now = func() time.Time { return now }

	require.True(t, rl.Allow("q1"))
	require.True(t, rl.Allow("q1"))
	require.False(t, rl.Allow("q1"))
	require.True(t, rl.Allow("q2"), "keys are independent")

	now = now.Add(time.Minute)
	require.True(t, rl.Allow("q1"))
}

func TestRateLimiterMiddlewareRejects(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rl := NewRateLimiter(ctx, 1, time.Minute, ByParam("question_id"))
	r := gin.New()
	r.POST("/run/:question_id", rl.Middleware(), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	do := func(q string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/run/"+q, nil))
		return w
	}

	require.Equal(t, http.StatusNoContent, do("a").Code)
	limited := do("a")
	require.Equal(t, http.StatusTooManyRequests, limited.Code)
	require.Equal(t, "60", limited.Header().Get("Retry-After"))
	require.Contains(t, limited.Body.String(), "RATE_LIMIT_EXCEEDED")
	require.Equal(t, http.StatusNoContent, do("b").Code)
}
