package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/noah-isme/obe-api/internal/models"
	appErrors "github.com/noah-isme/obe-api/pkg/errors"
	"github.com/noah-isme/obe-api/pkg/tracing"
)

type assessmentFinder interface {
	FindByID(ctx context.Context, id int64) (*models.Assessment, error)
	LockByID(ctx context.Context, id int64) (*models.Assessment, error)
}

type questionRepository interface {
	ListByAssessment(ctx context.Context, assessmentID int64) ([]models.Question, error)
	Create(ctx context.Context, question *models.Question) error
}

type markRepository interface {
	Upsert(ctx context.Context, mark *models.Mark) error
	TotalsByAssessment(ctx context.Context, assessmentID int64) ([]models.StudentMarkTotals, error)
}

type cloFinder interface {
	FindCLO(ctx context.Context, id int64) (*models.CLO, error)
}

// CreateQuestionRequest is the payload for adding a question to an assessment.
type CreateQuestionRequest struct {
	Text  string  `json:"question_text" validate:"required"`
	Marks float64 `json:"marks" validate:"gt=0"`
	CLOID *int64  `json:"clo_id" validate:"omitempty,gt=0"`
}

// MarkEntry is a single question score.
type MarkEntry struct {
	QuestionID    int64   `json:"question_id" validate:"required,gt=0"`
	ObtainedMarks float64 `json:"obtained_marks" validate:"gte=0"`
}

// RecordMarksRequest carries a student's scores on an assessment.
type RecordMarksRequest struct {
	StudentID int64       `json:"student_id" validate:"required,gt=0"`
	Marks     []MarkEntry `json:"marks" validate:"required,min=1,dive"`
}

// MarkService records questions and marks and keeps result rows in step.
type MarkService struct {
	tx          transactor
	assessments assessmentFinder
	questions   questionRepository
	marks       markRepository
	results     resultRepository
	outcomes    cloFinder
	students    studentReader
	validator   *validator.Validate
	logger      *zap.Logger
	metrics     *MetricsService
}

// NewMarkService constructs a MarkService.
func NewMarkService(
	tx transactor,
	assessments assessmentFinder,
	questions questionRepository,
	marks markRepository,
	results resultRepository,
	outcomes cloFinder,
	students studentReader,
	validate *validator.Validate,
	logger *zap.Logger,
	metrics *MetricsService,
) *MarkService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MarkService{
		tx:          tx,
		assessments: assessments,
		questions:   questions,
		marks:       marks,
		results:     results,
		outcomes:    outcomes,
		students:    students,
		validator:   validate,
		logger:      logger,
		metrics:     metrics,
	}
}

// CreateQuestion adds a question to an assessment. A tagged CLO must belong
// to the assessment's course.
func (s *MarkService) CreateQuestion(ctx context.Context, assessmentID int64, req CreateQuestionRequest) (*models.Question, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid question payload")
	}
	assessment, err := s.findAssessment(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	if req.CLOID != nil {
		clo, err := s.outcomes.FindCLO(ctx, *req.CLOID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "clo not found")
			}
			return nil, appErrors.WrapAs(appErrors.ErrInternal, err, "failed to load clo")
		}
		if clo.CourseID != assessment.CourseID {
			return nil, appErrors.Clone(appErrors.ErrValidation, "clo belongs to a different course")
		}
	}
	question := &models.Question{AssessmentID: assessment.ID, Text: req.Text, Marks: req.Marks, CLOID: req.CLOID}
	if err := s.questions.Create(ctx, question); err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrInternal, err, "failed to create question")
	}
	return question, nil
}

// ListQuestions returns the questions of an assessment.
func (s *MarkService) ListQuestions(ctx context.Context, assessmentID int64) ([]models.Question, error) {
	if _, err := s.findAssessment(ctx, assessmentID); err != nil {
		return nil, err
	}
	questions, err := s.questions.ListByAssessment(ctx, assessmentID)
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrInternal, err, "failed to list questions")
	}
	if questions == nil {
		questions = []models.Question{}
	}
	return questions, nil
}

// RecordMarks upserts a student's question marks and rolls them up into the
// student's result for the assessment in one transaction.
func (s *MarkService) RecordMarks(ctx context.Context, assessmentID int64, req RecordMarksRequest) (*models.Result, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid marks payload")
	}

	ctx, span := tracing.Start(ctx, "MarkService.RecordMarks", attribute.Int64("assessment.id", assessmentID), attribute.Int64("student.id", req.StudentID))
	defer span.End()

	exists, err := s.students.Exists(ctx, req.StudentID)
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrInternal, err, "failed to load student")
	}
	if !exists {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}

	var result *models.Result
	start := time.Now()
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		// Locking the assessment keeps its share stable until the result is written.
		assessment, err := s.assessments.LockByID(ctx, assessmentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "assessment not found")
			}
			return fmt.Errorf("lock assessment: %w", err)
		}

		questions, err := s.questions.ListByAssessment(ctx, assessment.ID)
		if err != nil {
			return err
		}
		byID := make(map[int64]models.Question, len(questions))
		for _, q := range questions {
			byID[q.ID] = q
		}

		for _, entry := range req.Marks {
			q, ok := byID[entry.QuestionID]
			if !ok {
				return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("question %d is not part of assessment %d", entry.QuestionID, assessment.ID))
			}
			if entry.ObtainedMarks > q.Marks {
				return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("obtained marks for question %d exceed %.2f", q.ID, q.Marks))
			}
			mark := &models.Mark{StudentID: req.StudentID, QuestionID: q.ID, TotalMarks: q.Marks, ObtainedMarks: entry.ObtainedMarks}
			if err := s.marks.Upsert(ctx, mark); err != nil {
				return err
			}
		}

		totals, err := s.marks.TotalsByAssessment(ctx, assessment.ID)
		if err != nil {
			return err
		}
		var own models.StudentMarkTotals
		for _, t := range totals {
			if t.StudentID == req.StudentID {
				own = t
				break
			}
		}

		result = &models.Result{
			StudentID:          req.StudentID,
			AssessmentID:       assessment.ID,
			FinalTotalMarks:    assessment.NormalizedTotalMarks,
			FinalObtainedMarks: ScaleObtained(own, assessment.NormalizedTotalMarks),
		}
		return s.results.Upsert(ctx, result)
	})
	s.metrics.ObserveDBQuery("record_marks_tx", time.Since(start))
	if err != nil {
		span.RecordError(err)
		return nil, translateTxError(err, "failed to record marks")
	}

	s.logger.Info("marks recorded",
		zap.Int64("assessment_id", assessmentID),
		zap.Int64("student_id", req.StudentID),
		zap.Int("entries", len(req.Marks)),
		zap.Float64("final_obtained_marks", result.FinalObtainedMarks),
	)
	return result, nil
}

func (s *MarkService) findAssessment(ctx context.Context, id int64) (*models.Assessment, error) {
	assessment, err := s.assessments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assessment not found")
		}
		return nil, appErrors.WrapAs(appErrors.ErrInternal, err, "failed to load assessment")
	}
	return assessment, nil
}
