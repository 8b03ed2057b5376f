package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/accepted", func(c *gin.Context) { Accepted(c, gin.H{"state": "finalizing"}) })
	r.GET("/page", func(c *gin.Context) { Paginated(c, []int{1, 2}, 2, 2, 5) })
	r.GET("/limited", func(c *gin.Context) {
		AbortFail(c, http.StatusTooManyRequests, ErrRateLimitExceeded)
	})
	return r
}

func get(t *testing.T, r *gin.Engine, path, reqID string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if reqID != "" {
		req.Header.Set(HeaderRequestID, reqID)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return w, env
}

func TestNewPagination(t *testing.T) {
	require.Equal(t, &Pagination{Page: 1, PerPage: 10, TotalItems: 21, TotalPages: 3}, NewPagination(1, 10, 21))
	require.Equal(t, 0, NewPagination(1, 10, 0).TotalPages)
	require.Equal(t, 0, NewPagination(1, 0, 4).TotalPages)
}

func TestAcceptedAndPaginated(t *testing.T) {
	r := newEngine()

	w, env := get(t, r, "/accepted", "")
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Nil(t, env.Error)
	require.Equal(t, map[string]interface{}{"state": "finalizing"}, env.Data)

	w, env = get(t, r, "/page", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, &Pagination{Page: 2, PerPage: 2, TotalItems: 5, TotalPages: 3}, env.Pagination)
}

func TestAbortFailUsesCodeMessage(t *testing.T) {
	w, env := get(t, newEngine(), "/limited", "")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.NotNil(t, env.Error)
	require.Equal(t, ErrRateLimitExceeded, env.Error.Code)
	require.Equal(t, GetMessage(ErrRateLimitExceeded), env.Error.Message)
}

func TestRequestIDKeepsWellFormedClientID(t *testing.T) {
	r := newEngine()

	w, env := get(t, r, "/accepted", "client-abc_1.2")
	require.Equal(t, "client-abc_1.2", w.Header().Get(HeaderRequestID))
	require.Equal(t, "client-abc_1.2", env.Metadata.RequestID)

	for _, bad := range []string{"has space", "quote\"d", strings.Repeat("a", maxRequestIDLen+1)} {
		w, env = get(t, r, "/accepted", bad)
		require.NotEqual(t, bad, w.Header().Get(HeaderRequestID))
		require.Len(t, env.Metadata.RequestID, 36)
		require.Equal(t, env.Metadata.RequestID, w.Header().Get(HeaderRequestID))
	}
}
