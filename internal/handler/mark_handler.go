package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/obe-api/internal/models"
	"github.com/noah-isme/obe-api/internal/service"
	appErrors "github.com/noah-isme/obe-api/pkg/errors"
	"github.com/noah-isme/obe-api/pkg/response"
)

type markService interface {
	CreateQuestion(ctx context.Context, assessmentID int64, req service.CreateQuestionRequest) (*models.Question, error)
	ListQuestions(ctx context.Context, assessmentID int64) ([]models.Question, error)
	RecordMarks(ctx context.Context, assessmentID int64, req service.RecordMarksRequest) (*models.Result, error)
}

// MarkHandler exposes question and mark entry endpoints.
type MarkHandler struct {
	marks markService
}

// NewMarkHandler constructs MarkHandler.
func NewMarkHandler(marks markService) *MarkHandler {
	return &MarkHandler{marks: marks}
}

// CreateQuestion godoc
// @Summary Add question to assessment
// @Tags Marks
// @Accept json
// @Produce json
// @Param id path int true "Assessment ID"
// @Param payload body service.CreateQuestionRequest true "Question payload"
// @Success 201 {object} response.Envelope
// @Router /assessments/{id}/questions [post]
func (h *MarkHandler) CreateQuestion(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	var req service.CreateQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	question, err := h.marks.CreateQuestion(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, question)
}

// ListQuestions godoc
// @Summary List assessment questions
// @Tags Marks
// @Produce json
// @Param id path int true "Assessment ID"
// @Success 200 {object} response.Envelope
// @Router /assessments/{id}/questions [get]
func (h *MarkHandler) ListQuestions(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	questions, err := h.marks.ListQuestions(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, questions)
}

// RecordMarks godoc
// @Summary Record a student's marks
// @Description Upserts per-question marks and refreshes the student's scaled result for the assessment.
// @Tags Marks
// @Accept json
// @Produce json
// @Param Idempotency-Key header string false "Replay key"
// @Param id path int true "Assessment ID"
// @Param payload body service.RecordMarksRequest true "Marks payload"
// @Success 200 {object} response.Envelope
// @Router /assessments/{id}/marks [post]
func (h *MarkHandler) RecordMarks(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	var req service.RecordMarksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.marks.RecordMarks(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}
