package router

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/noah-isme/obe-api/internal/handler"
	"github.com/noah-isme/obe-api/internal/middleware"
	"github.com/noah-isme/obe-api/internal/models"
)

// Handlers groups the HTTP handlers served by the API.
type Handlers struct {
	Assessments *handler.AssessmentHandler
	Marks       *handler.MarkHandler
	Outcomes    *handler.OutcomeHandler
	Transcripts *handler.TranscriptHandler
	Metrics     *handler.MetricsHandler
}

// Options carries the cross-cutting middleware of the API group.
type Options struct {
	APIPrefix   string
	EnableDocs  bool
	Auth        middleware.TokenValidator
	Idempotency gin.HandlerFunc
	RateLimit   gin.HandlerFunc
}

// Register mounts ops endpoints on the engine and the API under opts.APIPrefix.
func Register(r *gin.Engine, h Handlers, opts Options) {
	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)
	r.GET("/metrics", h.Metrics.Prometheus)
	if opts.EnableDocs {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	prefix := opts.APIPrefix
	if prefix == "" {
		prefix = "/api/v1"
	}
	api := r.Group(prefix)
	api.Use(middleware.JWT(opts.Auth))

	staff := middleware.RequireRoles(models.RoleTeacher, models.RoleAdmin)
	student := middleware.RBAC(middleware.RoleSelf, string(models.RoleTeacher), string(models.RoleAdmin))
	writes := []gin.HandlerFunc{staff}
	if opts.RateLimit != nil {
		writes = chain(writes, opts.RateLimit)
	}
	idempotent := writes
	if opts.Idempotency != nil {
		idempotent = chain(writes, opts.Idempotency)
	}

	assessments := api.Group("/assessments")
	assessments.POST("", chain(idempotent, h.Assessments.Create)...)
	assessments.GET("/:id", h.Assessments.Get)
	assessments.DELETE("/:id", chain(writes, h.Assessments.Delete)...)
	assessments.POST("/:id/questions", chain(writes, h.Marks.CreateQuestion)...)
	assessments.GET("/:id/questions", h.Marks.ListQuestions)
	assessments.POST("/:id/marks", chain(idempotent, h.Marks.RecordMarks)...)

	courses := api.Group("/courses")
	courses.GET("/:id/assessments", h.Assessments.ListByCourse)
	courses.GET("/:id/clo-coverage", staff, h.Outcomes.CLOCoverage)

	students := api.Group("/students/:id", student)
	students.GET("/clos/:cloId", h.Outcomes.EvaluateCLO)
	students.GET("/plos/:ploId", h.Outcomes.EvaluatePLO)
	students.GET("/courses/:courseId/clos", h.Outcomes.CourseCLOs)
	students.GET("/courses/:courseId/progress", h.Outcomes.CourseProgress)
	students.GET("/courses/:courseId/progress/export", h.Transcripts.ExportCourseProgress)
	students.GET("/semesters/:semesterId/progress", h.Outcomes.SemesterProgress)
	students.GET("/semesters/:semesterId/transcript", h.Transcripts.Transcript)
	students.GET("/semesters/:semesterId/transcript/export", h.Transcripts.ExportTranscript)
}

func chain(base []gin.HandlerFunc, handlers ...gin.HandlerFunc) []gin.HandlerFunc {
	out := make([]gin.HandlerFunc, 0, len(base)+len(handlers))
	out = append(out, base...)
	return append(out, handlers...)
}
