package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/obe-api/internal/models"
	"github.com/noah-isme/obe-api/internal/service"
	"github.com/noah-isme/obe-api/pkg/response"
)

type transcriptService interface {
	SemesterTranscript(ctx context.Context, studentID, semesterID int64) (*models.SemesterTranscript, error)
}

type exportService interface {
	ExportCourseProgress(ctx context.Context, studentID, courseID int64, format string) (*service.ExportFile, error)
	ExportTranscript(ctx context.Context, studentID, semesterID int64, format string) (*service.ExportFile, error)
}

// TranscriptHandler exposes graded results and file exports.
type TranscriptHandler struct {
	results transcriptService
	exports exportService
}

// NewTranscriptHandler constructs TranscriptHandler.
func NewTranscriptHandler(results transcriptService, exports exportService) *TranscriptHandler {
	return &TranscriptHandler{results: results, exports: exports}
}

// Transcript godoc
// @Summary Semester transcript
// @Tags Results
// @Produce json
// @Param id path int true "Student ID"
// @Param semesterId path int true "Semester ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/semesters/{semesterId}/transcript [get]
func (h *TranscriptHandler) Transcript(c *gin.Context) {
	studentID, semesterID, ok := studentAndID(c, "semesterId")
	if !ok {
		return
	}
	transcript, err := h.results.SemesterTranscript(c.Request.Context(), studentID, semesterID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, transcript)
}

// ExportTranscript godoc
// @Summary Download semester transcript
// @Tags Results
// @Produce text/csv
// @Produce application/pdf
// @Param id path int true "Student ID"
// @Param semesterId path int true "Semester ID"
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Router /students/{id}/semesters/{semesterId}/transcript/export [get]
func (h *TranscriptHandler) ExportTranscript(c *gin.Context) {
	studentID, semesterID, ok := studentAndID(c, "semesterId")
	if !ok {
		return
	}
	file, err := h.exports.ExportTranscript(c.Request.Context(), studentID, semesterID, c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Body)
}

// ExportCourseProgress godoc
// @Summary Download course outcome progress
// @Tags Outcomes
// @Produce text/csv
// @Produce application/pdf
// @Param id path int true "Student ID"
// @Param courseId path int true "Course ID"
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Router /students/{id}/courses/{courseId}/progress/export [get]
func (h *TranscriptHandler) ExportCourseProgress(c *gin.Context) {
	studentID, courseID, ok := studentAndID(c, "courseId")
	if !ok {
		return
	}
	file, err := h.exports.ExportCourseProgress(c.Request.Context(), studentID, courseID, c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Body)
}
