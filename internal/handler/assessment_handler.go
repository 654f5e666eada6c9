package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/obe-api/internal/models"
	"github.com/noah-isme/obe-api/internal/service"
	appErrors "github.com/noah-isme/obe-api/pkg/errors"
	"github.com/noah-isme/obe-api/pkg/response"
)

type assessmentService interface {
	Create(ctx context.Context, req service.CreateAssessmentRequest) (*models.Assessment, error)
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (*models.Assessment, error)
	List(ctx context.Context, filter models.AssessmentFilter) ([]models.Assessment, error)
}

// AssessmentHandler exposes assessment endpoints.
type AssessmentHandler struct {
	assessments assessmentService
	logger      *zap.Logger
}

// NewAssessmentHandler constructs AssessmentHandler.
func NewAssessmentHandler(assessments assessmentService, logger *zap.Logger) *AssessmentHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssessmentHandler{assessments: assessments, logger: logger}
}

// Create godoc
// @Summary Create assessment
// @Description Creates an assessment and redistributes the normalized marks of its type bucket.
// @Tags Assessments
// @Accept json
// @Produce json
// @Param Idempotency-Key header string false "Replay key"
// @Param payload body service.CreateAssessmentRequest true "Assessment payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /assessments [post]
func (h *AssessmentHandler) Create(c *gin.Context) {
	var req service.CreateAssessmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	assessment, err := h.assessments.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if claims := claimsFromContext(c); claims != nil {
		h.logger.Info("assessment created",
			zap.Int64("assessment_id", assessment.ID),
			zap.String("actor", claims.UserID),
		)
	}
	response.Created(c, assessment)
}

// Get godoc
// @Summary Get assessment
// @Tags Assessments
// @Produce json
// @Param id path int true "Assessment ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /assessments/{id} [get]
func (h *AssessmentHandler) Get(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	assessment, err := h.assessments.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assessment)
}

// Delete godoc
// @Summary Delete assessment
// @Description Deletes the assessment with its questions, marks and results and redistributes the remaining bucket.
// @Tags Assessments
// @Param id path int true "Assessment ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /assessments/{id} [delete]
func (h *AssessmentHandler) Delete(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.assessments.Delete(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	if claims := claimsFromContext(c); claims != nil {
		h.logger.Info("assessment deleted", zap.Int64("assessment_id", id), zap.String("actor", claims.UserID))
	}
	response.NoContent(c)
}

// ListByCourse godoc
// @Summary List course assessments
// @Tags Assessments
// @Produce json
// @Param id path int true "Course ID"
// @Param type query string false "Assessment type"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/assessments [get]
func (h *AssessmentHandler) ListByCourse(c *gin.Context) {
	courseID, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	filter := models.AssessmentFilter{CourseID: courseID, Type: models.AssessmentType(c.Query("type"))}
	items, err := h.assessments.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, map[string]interface{}{"count": len(items)})
}
