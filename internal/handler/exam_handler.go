package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/proctor"
	"github.com/stemsi/exstem-engine/internal/response"
	"github.com/stemsi/exstem-engine/internal/service"
	"github.com/stemsi/exstem-engine/internal/validator"
	ws "github.com/stemsi/exstem-engine/internal/websocket"
)

// ExamHandler serves the catalog and starts attempts.
type ExamHandler struct {
	store *service.SessionStore
	log   zerolog.Logger
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(store *service.SessionStore, log zerolog.Logger) *ExamHandler {
	return &ExamHandler{
		store: store,
		log:   log.With().Str("component", "exam_handler").Logger(),
	}
}

// examSummary is one row of the exam list.
type examSummary struct {
	ID              string               `json:"id"`
	Title           string               `json:"title"`
	Description     string               `json:"description"`
	DurationMinutes int                  `json:"duration_minutes"`
	IsActive        bool                 `json:"is_active"`
	TotalPoints     float64              `json:"total_points"`
	QuestionCount   int                  `json:"question_count"`
	Availability    service.Availability `json:"availability"`
}

// ListExams godoc
// GET /api/v1/exams
// Lists the catalog with the attempt budget of each exam. ?active=true hides inactive exams.
func (h *ExamHandler) ListExams(c *gin.Context) {
	exams := h.store.Exams()
	if c.Query("active") == "true" {
		exams = h.store.ActiveExams()
	}

	out := make([]examSummary, 0, len(exams))
	for i := range exams {
		e := &exams[i]
		av, err := h.store.Availability(e.ID)
		if err != nil {
			continue
		}
		out = append(out, examSummary{
			ID:              e.ID,
			Title:           e.Title,
			Description:     e.Description,
			DurationMinutes: e.DurationMinutes,
			IsActive:        e.IsActive,
			TotalPoints:     e.TotalPoints(),
			QuestionCount:   len(e.Questions),
			Availability:    av,
		})
	}

	response.Success(c, http.StatusOK, gin.H{"exams": out})
}

// GetExam godoc
// GET /api/v1/exams/:exam_id
// Returns an exam without its answer key.
func (h *ExamHandler) GetExam(c *gin.Context) {
	exam, ok := h.store.Exam(c.Param("exam_id"))
	if !ok {
		response.Fail(c, http.StatusNotFound, response.ErrExamNotFound)
		return
	}
	av, err := h.store.Availability(exam.ID)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"exam":         exam.StudentView(),
		"availability": av,
	})
}

// StartExam godoc
// POST /api/v1/exams/:exam_id/start
// Starts an attempt. The optional body reports the display state; without
// one the page is assumed visible but not fullscreen.
func (h *ExamHandler) StartExam(c *gin.Context) {
	req := model.StartExamRequest{Visible: true}
	if c.Request.ContentLength > 0 {
		if fields := validator.Bind(c, &req); fields != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
			return
		}
	}

	a, err := h.store.StartExam(c.Param("exam_id"), proctor.EnvState{Fullscreen: req.Fullscreen, Visible: req.Visible})
	if err != nil {
		fail(c, h.log, err)
		return
	}
	exam, _ := h.store.Exam(a.ExamID)

	response.Success(c, http.StatusCreated, gin.H{
		"attempt": a,
		"exam":    exam.StudentView(),
		"timer":   ws.NewTimer(exam.Duration(), h.store.WarnAt()),
	})
}
