package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-engine/internal/attempt"
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/proctor"
	"github.com/stemsi/exstem-engine/internal/response"
	"github.com/stemsi/exstem-engine/internal/service"
	"github.com/stemsi/exstem-engine/internal/validator"
	ws "github.com/stemsi/exstem-engine/internal/websocket"
)

// AttemptHandler drives the attempt in progress.
type AttemptHandler struct {
	store *service.SessionStore
	log   zerolog.Logger
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(store *service.SessionStore, log zerolog.Logger) *AttemptHandler {
	return &AttemptHandler{
		store: store,
		log:   log.With().Str("component", "attempt_handler").Logger(),
	}
}

// attemptView is the attempt screen payload.
type attemptView struct {
	State      attempt.State         `json:"state"`
	Attempt    *model.Attempt        `json:"attempt,omitempty"`
	Exam       *model.ExamForStudent `json:"exam,omitempty"`
	Timer      *ws.Timer             `json:"timer,omitempty"`
	Warned     bool                  `json:"warned"`
	Secure     bool                  `json:"is_secure"`
	Violations []model.Violation     `json:"violations"`
}

// GetAttempt godoc
// GET /api/v1/attempt
// Returns the attempt in progress with its exam and countdown, or the idle state.
func (h *AttemptHandler) GetAttempt(c *gin.Context) {
	snap := h.store.Current()
	view := attemptView{
		State:      snap.State,
		Attempt:    snap.Attempt,
		Warned:     snap.Warned,
		Secure:     snap.Secure,
		Violations: snap.Violations,
	}
	if view.Violations == nil {
		view.Violations = []model.Violation{}
	}
	if snap.Attempt != nil {
		if exam, ok := h.store.Exam(snap.Attempt.ExamID); ok {
			sv := exam.StudentView()
			view.Exam = &sv
		}
		timer := ws.NewTimer(snap.Remaining, h.store.WarnAt())
		view.Timer = &timer
	}

	response.Success(c, http.StatusOK, view)
}

// SaveAnswer godoc
// PUT /api/v1/attempt/answers/:question_id
// Records an answer. The last write wins; blank code clears the answer.
func (h *AttemptHandler) SaveAnswer(c *gin.Context) {
	var req model.AnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	qid := c.Param("question_id")
	if err := h.store.RecordAnswer(qid, req.ToAnswer()); err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"question_id": qid, "answered": !req.ToAnswer().IsBlank()})
}

// ClearAnswer godoc
// DELETE /api/v1/attempt/answers/:question_id
func (h *AttemptHandler) ClearAnswer(c *gin.Context) {
	qid := c.Param("question_id")
	if err := h.store.ClearAnswer(qid); err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"question_id": qid, "answered": false})
}

// Submit godoc
// POST /api/v1/attempt/submit
// Finalizes the attempt and returns its result summary. Answers 202 when a
// deadline submission is already finalizing it.
func (h *AttemptHandler) Submit(c *gin.Context) {
	done, err := h.store.SubmitExam(c.Request.Context())
	if err != nil {
		fail(c, h.log, err)
		return
	}
	if done == nil {
		response.Accepted(c, gin.H{"state": attempt.StateFinalizing})
		return
	}

	summary, _ := h.store.LatestResult()
	response.Success(c, http.StatusOK, gin.H{"attempt": done, "result": summary})
}

// Leave godoc
// POST /api/v1/attempt/leave
// Abandons the attempt. Nothing is recorded and no attempt is used up.
func (h *AttemptHandler) Leave(c *gin.Context) {
	if err := h.store.LeaveExam(); err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"state": attempt.StateIdle})
}

// RunCode godoc
// POST /api/v1/attempt/questions/:question_id/run
// Saves the code as the answer and runs it against the question's test cases.
func (h *AttemptHandler) RunCode(c *gin.Context) {
	var req model.RunCodeRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.store.RunCode(c.Request.Context(), c.Param("question_id"), req.Language, req.Code)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"result": res})
}

// GetRunResult godoc
// GET /api/v1/attempt/questions/:question_id/result
// Returns the latest run of a question, or a pending result when it was never run.
func (h *AttemptHandler) GetRunResult(c *gin.Context) {
	qid := c.Param("question_id")
	res, ok, err := h.store.CodeResult(qid)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	if !ok {
		res = model.ExecutionResult{
			QuestionID:    qid,
			OverallStatus: model.OverallPending,
			Outcomes:      []model.ExecutionOutcome{},
		}
	}

	response.Success(c, http.StatusOK, gin.H{"result": res})
}

// ReportEnvironment godoc
// POST /api/v1/attempt/environment
// Reports fullscreen and visibility changes; leaving either logs a violation.
func (h *AttemptHandler) ReportEnvironment(c *gin.Context) {
	var req model.EnvironmentRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if req.Fullscreen != nil {
		if err := h.store.ReportFullscreen(*req.Fullscreen); err != nil {
			fail(c, h.log, err)
			return
		}
	}
	if req.Visible != nil {
		if err := h.store.ReportVisibility(*req.Visible); err != nil {
			fail(c, h.log, err)
			return
		}
	}

	snap := h.store.Current()
	response.Success(c, http.StatusOK, gin.H{
		"is_secure":  snap.Secure,
		"violations": len(snap.Violations),
	})
}

// CheckKey godoc
// POST /api/v1/attempt/keys
// Tells the client whether a key combination must be swallowed.
func (h *AttemptHandler) CheckKey(c *gin.Context) {
	var req proctor.KeyEvent
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"suppress": h.store.ShouldSuppressKey(req)})
}
