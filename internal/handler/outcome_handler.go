package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/obe-api/internal/models"
	"github.com/noah-isme/obe-api/pkg/response"
)

type outcomeService interface {
	EvaluateCLO(ctx context.Context, studentID, cloID int64, courseID *int64) (*models.CLOResult, error)
	EvaluateAllCLOsForCourse(ctx context.Context, studentID, courseID int64) ([]models.CLOResult, error)
	EvaluatePLO(ctx context.Context, studentID, ploID int64) (*models.PLOResult, error)
	EvaluateCourseProgress(ctx context.Context, studentID, courseID int64) (*models.CourseProgress, error)
	EvaluateSemesterProgress(ctx context.Context, studentID, semesterID int64) (*models.SemesterProgress, error)
	CheckCLOCoverage(ctx context.Context, courseID int64) (*models.CLOCoverage, error)
}

// OutcomeHandler exposes CLO and PLO attainment endpoints.
type OutcomeHandler struct {
	outcomes outcomeService
}

// NewOutcomeHandler constructs OutcomeHandler.
func NewOutcomeHandler(outcomes outcomeService) *OutcomeHandler {
	return &OutcomeHandler{outcomes: outcomes}
}

// EvaluateCLO godoc
// @Summary Evaluate a CLO for a student
// @Tags Outcomes
// @Produce json
// @Param id path int true "Student ID"
// @Param cloId path int true "CLO ID"
// @Param courseId query int false "Restrict to one course"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/clos/{cloId} [get]
func (h *OutcomeHandler) EvaluateCLO(c *gin.Context) {
	studentID, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	cloID, err := pathID(c, "cloId")
	if err != nil {
		response.Error(c, err)
		return
	}
	courseID, err := optionalQueryID(c, "courseId")
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.outcomes.EvaluateCLO(c.Request.Context(), studentID, cloID, courseID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// EvaluatePLO godoc
// @Summary Evaluate a PLO for a student
// @Tags Outcomes
// @Produce json
// @Param id path int true "Student ID"
// @Param ploId path int true "PLO ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/plos/{ploId} [get]
func (h *OutcomeHandler) EvaluatePLO(c *gin.Context) {
	studentID, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	ploID, err := pathID(c, "ploId")
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.outcomes.EvaluatePLO(c.Request.Context(), studentID, ploID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// CourseCLOs godoc
// @Summary Evaluate every CLO of a course for a student
// @Tags Outcomes
// @Produce json
// @Param id path int true "Student ID"
// @Param courseId path int true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/courses/{courseId}/clos [get]
func (h *OutcomeHandler) CourseCLOs(c *gin.Context) {
	studentID, courseID, ok := studentAndID(c, "courseId")
	if !ok {
		return
	}
	results, err := h.outcomes.EvaluateAllCLOsForCourse(c.Request.Context(), studentID, courseID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, results)
}

// CourseProgress godoc
// @Summary Course CLO and PLO progress
// @Tags Outcomes
// @Produce json
// @Param id path int true "Student ID"
// @Param courseId path int true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/courses/{courseId}/progress [get]
func (h *OutcomeHandler) CourseProgress(c *gin.Context) {
	studentID, courseID, ok := studentAndID(c, "courseId")
	if !ok {
		return
	}
	progress, err := h.outcomes.EvaluateCourseProgress(c.Request.Context(), studentID, courseID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, progress)
}

// SemesterProgress godoc
// @Summary Semester outcome progress
// @Tags Outcomes
// @Produce json
// @Param id path int true "Student ID"
// @Param semesterId path int true "Semester ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/semesters/{semesterId}/progress [get]
func (h *OutcomeHandler) SemesterProgress(c *gin.Context) {
	studentID, semesterID, ok := studentAndID(c, "semesterId")
	if !ok {
		return
	}
	progress, err := h.outcomes.EvaluateSemesterProgress(c.Request.Context(), studentID, semesterID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, progress)
}

// CLOCoverage godoc
// @Summary CLOs without questions
// @Tags Outcomes
// @Produce json
// @Param id path int true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/clo-coverage [get]
func (h *OutcomeHandler) CLOCoverage(c *gin.Context) {
	courseID, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	coverage, err := h.outcomes.CheckCLOCoverage(c.Request.Context(), courseID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, coverage)
}

// studentAndID parses the :id student parameter and a second id parameter,
// writing the error response on failure.
func studentAndID(c *gin.Context, name string) (int64, int64, bool) {
	studentID, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return 0, 0, false
	}
	other, err := pathID(c, name)
	if err != nil {
		response.Error(c, err)
		return 0, 0, false
	}
	return studentID, other, true
}
