package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/stemsi/exstem-engine/internal/config"
	"github.com/stemsi/exstem-engine/internal/handler"
	"github.com/stemsi/exstem-engine/internal/middleware"
	"github.com/stemsi/exstem-engine/internal/response"
)

// catalogMaxAge is how long clients may cache catalog reads, in seconds.
const catalogMaxAge = 60

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Health  *handler.HealthHandler
	Exam    *handler.ExamHandler
	Attempt *handler.AttemptHandler
	Results *handler.ResultsHandler
	WS      *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// Background work started here (rate limiter sweeps) ends with ctx.
func SetupRouter(ctx context.Context, handlers *Handlers, cfg *config.Config) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "Retry-After"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.Compress())

	router.GET("/health", handlers.Health.Health)

	// ─── 1. Catalog ────────────────────────────────────────────────────
	exams := router.Group("/api/v1/exams")
	{
		exams.GET("", middleware.CacheControl(catalogMaxAge), handlers.Exam.ListExams)
		exams.GET("/:exam_id", middleware.CacheControl(catalogMaxAge), handlers.Exam.GetExam)
		exams.POST("/:exam_id/start", middleware.NoStore(), handlers.Exam.StartExam)
	}

	// ─── 2. Attempt in progress ────────────────────────────────────────
	runLimiter := middleware.NewRateLimiter(ctx, cfg.RunRateLimitPerMinute, time.Minute, middleware.ByParam("question_id"))

	attempt := router.Group("/api/v1/attempt")
	attempt.Use(middleware.NoStore())
	{
		attempt.GET("", handlers.Attempt.GetAttempt)
		attempt.PUT("/answers/:question_id", handlers.Attempt.SaveAnswer)
		attempt.DELETE("/answers/:question_id", handlers.Attempt.ClearAnswer)
		attempt.POST("/submit", handlers.Attempt.Submit)
		attempt.POST("/leave", handlers.Attempt.Leave)
		attempt.POST("/questions/:question_id/run", runLimiter.Middleware(), handlers.Attempt.RunCode)
		attempt.GET("/questions/:question_id/result", handlers.Attempt.GetRunResult)
		attempt.POST("/environment", handlers.Attempt.ReportEnvironment)
		attempt.POST("/keys", handlers.Attempt.CheckKey)
	}

	// ─── 3. History & results ──────────────────────────────────────────
	results := router.Group("/api/v1")
	results.Use(middleware.NoStore())
	{
		results.GET("/history", handlers.Results.GetHistory)
		results.GET("/dashboard", handlers.Results.GetDashboard)
		results.GET("/results/latest", handlers.Results.GetLatestResult)
	}

	// ─── 4. WebSocket ──────────────────────────────────────────────────
	router.GET("/ws/v1/attempt/stream", handlers.WS.AttemptStream)

	router.NoRoute(func(c *gin.Context) {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	})

	return router
}
