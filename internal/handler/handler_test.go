package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-engine/internal/attempt"
	"github.com/stemsi/exstem-engine/internal/deadline"
	"github.com/stemsi/exstem-engine/internal/execution"
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/repository"
	"github.com/stemsi/exstem-engine/internal/response"
	"github.com/stemsi/exstem-engine/internal/scoring"
	"github.com/stemsi/exstem-engine/internal/service"
	"github.com/stemsi/exstem-engine/internal/validator"
	ws "github.com/stemsi/exstem-engine/internal/websocket"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	validator.Setup()
	os.Exit(m.Run())
}

type fixedCatalog []model.Exam

func (c fixedCatalog) FetchExams(context.Context) ([]model.Exam, error) { return c, nil }

type passingJudge struct{}

func (passingJudge) Run(_ context.Context, req execution.RunRequest) ([]model.ExecutionOutcome, error) {
	return []model.ExecutionOutcome{
		{TestCaseID: 1, Status: model.OutcomePassed, ActualOutput: "3"},
		{TestCaseID: 2, Status: model.OutcomePassed, ActualOutput: "42"},
	}, nil
}

func testExam() model.Exam {
	return model.Exam{
		ID: "exam-1", Title: "Algebra", DurationMinutes: 30, IsActive: true, AllowedAttempts: 1,
		Questions: []model.Question{
			{ID: "mcq-1", Kind: model.QuestionKindMultipleChoice, Title: "2+2", Points: 10, Options: []string{"3", "4"}, CorrectAnswerIndex: 1},
			{
				ID: "code-1", Kind: model.QuestionKindCoding, Title: "Sum", Points: 10,
				StarterCode: map[string]string{"python": "def solve(a, b):\n    pass\n"},
				TestCases: []model.TestCase{
					{ID: 1, Name: "small", Input: []string{"1", "2"}, ExpectedOutput: "3"},
					{ID: 2, Name: "hidden", Input: []string{"40", "2"}, ExpectedOutput: "42", Hidden: true},
				},
			},
		},
	}
}

func newTestEngine(t *testing.T) (*gin.Engine, *service.SessionStore) {
	t.Helper()
	repo, err := repository.NewAttemptRepository(repository.NewMemoryKV(), "1", false)
	require.NoError(t, err)

	store := service.NewSessionStore(service.StoreDeps{
		Catalog: fixedCatalog{testExam()},
		History: repo,
		Judge:   passingJudge{},
		Scoring: scoring.NewEngine(scoring.ModePassedFraction),
		Clock:   deadline.NewManualClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)),
		UserID:  "1",
		Log:     zerolog.Nop(),
	})
	require.NoError(t, store.Init(context.Background()))
	t.Cleanup(func() { _ = store.Teardown(context.Background()) })

	log := zerolog.Nop()
	exams := NewExamHandler(store, log)
	att := NewAttemptHandler(store, log)
	results := NewResultsHandler(store)
	health := NewHealthHandler(store, nil, log)

	r := gin.New()
	r.Use(response.RequestIDMiddleware())
	r.GET("/health", health.Health)
	r.GET("/exams", exams.ListExams)
	r.GET("/exams/:exam_id", exams.GetExam)
	r.POST("/exams/:exam_id/start", exams.StartExam)
	r.GET("/attempt", att.GetAttempt)
	r.PUT("/attempt/answers/:question_id", att.SaveAnswer)
	r.DELETE("/attempt/answers/:question_id", att.ClearAnswer)
	r.POST("/attempt/submit", att.Submit)
	r.POST("/attempt/leave", att.Leave)
	r.POST("/attempt/questions/:question_id/run", att.RunCode)
	r.GET("/attempt/questions/:question_id/result", att.GetRunResult)
	r.POST("/attempt/environment", att.ReportEnvironment)
	r.POST("/attempt/keys", att.CheckKey)
	r.GET("/history", results.GetHistory)
	r.GET("/dashboard", results.GetDashboard)
	r.GET("/results/latest", results.GetLatestResult)
	return r, store
}

type envelope struct {
	Data       json.RawMessage      `json:"data"`
	Error      *response.ErrorBody  `json:"error"`
	Pagination *response.Pagination `json:"pagination"`
	Metadata   response.Metadata    `json:"metadata"`
}

func call(t *testing.T, r http.Handler, method, path string, body any) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	require.NotEmpty(t, env.Metadata.RequestID)
	return w.Code, env
}

func decodeData(t *testing.T, env envelope, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, v))
}

func TestListAndGetExam(t *testing.T) {
	r, _ := newTestEngine(t)

	status, env := call(t, r, http.MethodGet, "/exams", nil)
	require.Equal(t, http.StatusOK, status)
	var list struct {
		Exams []examSummary `json:"exams"`
	}
	decodeData(t, env, &list)
	require.Len(t, list.Exams, 1)
	require.Equal(t, 2, list.Exams[0].QuestionCount)
	require.Equal(t, 20.0, list.Exams[0].TotalPoints)
	require.True(t, list.Exams[0].Availability.CanStart)

	status, env = call(t, r, http.MethodGet, "/exams/exam-1", nil)
	require.Equal(t, http.StatusOK, status)
	require.NotContains(t, string(env.Data), "correct_answer")
	require.NotContains(t, string(env.Data), `"42"`)

	status, env = call(t, r, http.MethodGet, "/exams/missing", nil)
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, response.ErrExamNotFound, env.Error.Code)
}

func TestAttemptLifecycleOverHTTP(t *testing.T) {
	r, _ := newTestEngine(t)

	status, env := call(t, r, http.MethodPut, "/attempt/answers/mcq-1", map[string]any{"kind": "multiple_choice", "selected_index": 1})
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, response.ErrNoActiveAttempt, env.Error.Code)

	status, env = call(t, r, http.MethodPost, "/exams/exam-1/start", map[string]bool{"fullscreen": true, "visible": true})
	require.Equal(t, http.StatusCreated, status, string(env.Data))
	var started struct {
		Attempt model.Attempt `json:"attempt"`
		Timer   ws.Timer      `json:"timer"`
	}
	decodeData(t, env, &started)
	require.Equal(t, "30:00", started.Timer.Display)
	require.Equal(t, deadline.UrgencyNormal, started.Timer.Urgency)

	status, env = call(t, r, http.MethodPost, "/exams/exam-1/start", nil)
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, response.ErrAttemptInProgress, env.Error.Code)

	status, env = call(t, r, http.MethodGet, "/attempt", nil)
	require.Equal(t, http.StatusOK, status)
	var view attemptView
	decodeData(t, env, &view)
	require.Equal(t, attempt.StateInProgress, view.State)
	require.Equal(t, started.Attempt.ID, view.Attempt.ID)
	require.True(t, view.Secure)

	status, env = call(t, r, http.MethodPut, "/attempt/answers/mcq-1", map[string]any{"selected_index": 1})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, response.ErrValidation, env.Error.Code)
	require.Contains(t, env.Error.Fields, "kind")

	status, env = call(t, r, http.MethodPut, "/attempt/answers/mcq-1", map[string]any{"kind": "multiple_choice", "selected_index": 9})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, response.ErrInvalidAnswer, env.Error.Code)

	status, env = call(t, r, http.MethodPut, "/attempt/answers/ghost", map[string]any{"kind": "multiple_choice", "selected_index": 0})
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, response.ErrQuestionNotFound, env.Error.Code)

	status, _ = call(t, r, http.MethodPut, "/attempt/answers/mcq-1", map[string]any{"kind": "multiple_choice", "selected_index": 1})
	require.Equal(t, http.StatusOK, status)

	status, env = call(t, r, http.MethodGet, "/attempt/questions/code-1/result", nil)
	require.Equal(t, http.StatusOK, status)
	var pending struct {
		Result model.ExecutionResult `json:"result"`
	}
	decodeData(t, env, &pending)
	require.Equal(t, model.OverallPending, pending.Result.OverallStatus)

	status, env = call(t, r, http.MethodPost, "/attempt/questions/code-1/run", map[string]string{"language": "python", "code": "   "})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, response.ErrValidation, env.Error.Code)

	status, env = call(t, r, http.MethodPost, "/attempt/questions/code-1/run", map[string]string{"language": "python", "code": "return a + b"})
	require.Equal(t, http.StatusOK, status)
	var run struct {
		Result model.ExecutionResult `json:"result"`
	}
	decodeData(t, env, &run)
	require.Equal(t, model.OverallPassed, run.Result.OverallStatus)
	require.Empty(t, run.Result.Outcomes[1].ActualOutput)

	status, env = call(t, r, http.MethodPost, "/attempt/submit", nil)
	require.Equal(t, http.StatusOK, status)
	var submitted struct {
		Attempt model.Attempt         `json:"attempt"`
		Result  service.ResultSummary `json:"result"`
	}
	decodeData(t, env, &submitted)
	require.True(t, submitted.Attempt.Completed)
	require.InDelta(t, 20.0, *submitted.Attempt.Score, 1e-9)
	require.Equal(t, 100, submitted.Result.Percentage)

	status, env = call(t, r, http.MethodPost, "/exams/exam-1/start", nil)
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, response.ErrAttemptLimitExceeded, env.Error.Code)
}

func TestLeaveAndKeys(t *testing.T) {
	r, _ := newTestEngine(t)

	status, env := call(t, r, http.MethodPost, "/attempt/keys", map[string]any{"key": "F12"})
	require.Equal(t, http.StatusOK, status)
	require.JSONEq(t, `{"suppress":false}`, string(env.Data), "nothing is suppressed while idle")

	status, _ = call(t, r, http.MethodPost, "/exams/exam-1/start", nil)
	require.Equal(t, http.StatusCreated, status)

	status, env = call(t, r, http.MethodPost, "/attempt/keys", map[string]any{"key": "i", "ctrl": true, "shift": true})
	require.Equal(t, http.StatusOK, status)
	require.JSONEq(t, `{"suppress":true}`, string(env.Data))

	status, env = call(t, r, http.MethodPost, "/attempt/environment", map[string]bool{"fullscreen": true, "visible": false})
	require.Equal(t, http.StatusOK, status)
	require.JSONEq(t, `{"is_secure":false,"violations":1}`, string(env.Data))

	status, _ = call(t, r, http.MethodPost, "/attempt/leave", nil)
	require.Equal(t, http.StatusOK, status)

	status, env = call(t, r, http.MethodPost, "/attempt/leave", nil)
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, response.ErrNoActiveAttempt, env.Error.Code)

	status, env = call(t, r, http.MethodGet, "/results/latest", nil)
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, response.ErrNoResults, env.Error.Code)
}

func TestHistoryPagination(t *testing.T) {
	r, _ := newTestEngine(t)

	status, env := call(t, r, http.MethodGet, "/history?page=2&per_page=500", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, &response.Pagination{Page: 2, PerPage: maxPerPage, TotalItems: 0, TotalPages: 0}, env.Pagination)

	call(t, r, http.MethodPost, "/exams/exam-1/start", nil)
	call(t, r, http.MethodPost, "/attempt/submit", nil)

	status, env = call(t, r, http.MethodGet, "/history", nil)
	require.Equal(t, http.StatusOK, status)
	var page struct {
		Results []service.ResultSummary `json:"results"`
	}
	decodeData(t, env, &page)
	require.Len(t, page.Results, 1)
	require.Equal(t, 1, env.Pagination.TotalPages)

	status, env = call(t, r, http.MethodGet, "/dashboard", nil)
	require.Equal(t, http.StatusOK, status)
	var dash struct {
		Stats service.Dashboard `json:"stats"`
	}
	decodeData(t, env, &dash)
	require.Equal(t, 1, dash.Stats.CompletedAttempts)
}

func TestHealth(t *testing.T) {
	r, _ := newTestEngine(t)

	status, env := call(t, r, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, status)
	var h healthStatus
	decodeData(t, env, &h)
	require.Equal(t, "ok", h.Status)
	require.Equal(t, 1, h.ExamsLoaded)
	require.Equal(t, "idle", h.AttemptState)
	require.Nil(t, h.Queues)
}
