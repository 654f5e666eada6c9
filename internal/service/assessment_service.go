package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/noah-isme/obe-api/internal/models"
	appErrors "github.com/noah-isme/obe-api/pkg/errors"
	"github.com/noah-isme/obe-api/pkg/tracing"
)

type courseReader interface {
	FindByID(ctx context.Context, id int64) (*models.Course, error)
	LockByID(ctx context.Context, id int64) (*models.Course, error)
}

type assessmentRepository interface {
	FindByID(ctx context.Context, id int64) (*models.Assessment, error)
	LockByID(ctx context.Context, id int64) (*models.Assessment, error)
	CountBucket(ctx context.Context, courseID int64, assessmentType models.AssessmentType) (int, error)
	ListBucket(ctx context.Context, courseID int64, assessmentType models.AssessmentType, excludeID int64) ([]models.Assessment, error)
	List(ctx context.Context, filter models.AssessmentFilter) ([]models.Assessment, error)
	Insert(ctx context.Context, assessment *models.Assessment) error
	UpdateShare(ctx context.Context, id int64, share float64) error
	DeleteCascade(ctx context.Context, id int64) error
}

type resultRepository interface {
	ListByAssessment(ctx context.Context, assessmentID int64) ([]models.Result, error)
	UpdateRollup(ctx context.Context, id int64, total, obtained float64) error
	Upsert(ctx context.Context, result *models.Result) error
}

type markTotalsReader interface {
	TotalsByAssessment(ctx context.Context, assessmentID int64) ([]models.StudentMarkTotals, error)
}

// CreateAssessmentRequest is the payload for creating an assessment.
type CreateAssessmentRequest struct {
	Name       string                `json:"assessment_name" validate:"required,max=255"`
	Type       models.AssessmentType `json:"assessment_type" validate:"required,oneof=quiz assignment midterm terminal lab_assignment lab_midterm lab_terminal"`
	CourseID   int64                 `json:"course_id" validate:"required,gt=0"`
	SemesterID int64                 `json:"semester_id" validate:"required,gt=0"`
}

// AssessmentConfig tunes mark normalization.
type AssessmentConfig struct {
	// StrictCreditConfig rejects creation in courses whose credit hours have
	// no mark scheme instead of assigning a zero share.
	StrictCreditConfig bool
}

// AssessmentService keeps the normalized marks of every assessment bucket
// equal-split and the dependent result rows scaled to match.
type AssessmentService struct {
	tx          transactor
	courses     courseReader
	assessments assessmentRepository
	results     resultRepository
	marks       markTotalsReader
	validator   *validator.Validate
	logger      *zap.Logger
	metrics     *MetricsService
	config      AssessmentConfig
}

// NewAssessmentService constructs the assessment service.
func NewAssessmentService(
	tx transactor,
	courses courseReader,
	assessments assessmentRepository,
	results resultRepository,
	marks markTotalsReader,
	validate *validator.Validate,
	logger *zap.Logger,
	metrics *MetricsService,
	config AssessmentConfig,
) *AssessmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssessmentService{
		tx:          tx,
		courses:     courses,
		assessments: assessments,
		results:     results,
		marks:       marks,
		validator:   validate,
		logger:      logger,
		metrics:     metrics,
		config:      config,
	}
}

// Create inserts an assessment and re-splits its bucket so every member,
// the new one included, carries normalized/(n+1) marks.
func (s *AssessmentService) Create(ctx context.Context, req CreateAssessmentRequest) (*models.Assessment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assessment payload")
	}

	ctx, span := tracing.Start(ctx, "AssessmentService.Create",
		attribute.Int64("course.id", req.CourseID),
		attribute.String("assessment.type", string(req.Type)),
	)
	defer span.End()

	var (
		created  *models.Assessment
		previous int
	)
	start := time.Now()
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		course, err := s.courses.LockByID(ctx, req.CourseID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "course not found")
			}
			return fmt.Errorf("lock course: %w", err)
		}

		normalized, err := s.bucketMarks(course, req.Type, true)
		if err != nil {
			return err
		}

		n, err := s.assessments.CountBucket(ctx, course.ID, req.Type)
		if err != nil {
			return err
		}
		previous = n
		share := normalized / float64(n+1)

		siblings, err := s.assessments.ListBucket(ctx, course.ID, req.Type, 0)
		if err != nil {
			return err
		}
		if err := s.applyShare(ctx, siblings, share); err != nil {
			return err
		}

		created = &models.Assessment{
			Name:                 req.Name,
			Type:                 req.Type,
			CourseID:             course.ID,
			SemesterID:           req.SemesterID,
			NormalizedTotalMarks: share,
		}
		return s.assessments.Insert(ctx, created)
	})
	s.metrics.ObserveDBQuery("assessment_create_tx", time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create assessment failed")
		return nil, translateTxError(err, "failed to create assessment")
	}

	s.metrics.RecordRedistribution("create", previous+1)
	s.logger.Info("assessment bucket redistributed",
		zap.String("operation", "create"),
		zap.Int64("course_id", created.CourseID),
		zap.String("assessment_type", string(created.Type)),
		zap.Int("bucket_before", previous),
		zap.Int("bucket_after", previous+1),
		zap.Float64("share", created.NormalizedTotalMarks),
		zap.Int64("assessment_id", created.ID),
	)
	return created, nil
}

// Delete removes an assessment with its questions, marks and results and
// re-splits the remaining bucket as normalized/m. An empty bucket is left as is.
func (s *AssessmentService) Delete(ctx context.Context, id int64) error {
	ctx, span := tracing.Start(ctx, "AssessmentService.Delete", attribute.Int64("assessment.id", id))
	defer span.End()

	var (
		deleted   *models.Assessment
		remaining int
		share     float64
	)
	start := time.Now()
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		current, err := s.assessments.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "assessment not found")
			}
			return fmt.Errorf("load assessment: %w", err)
		}

		course, err := s.courses.LockByID(ctx, current.CourseID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "course not found")
			}
			return fmt.Errorf("lock course: %w", err)
		}

		// Re-read under the course lock; a concurrent delete may have won.
		deleted, err = s.assessments.LockByID(ctx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "assessment not found")
			}
			return fmt.Errorf("lock assessment: %w", err)
		}

		normalized, err := s.bucketMarks(course, deleted.Type, false)
		if err != nil {
			return err
		}

		siblings, err := s.assessments.ListBucket(ctx, course.ID, deleted.Type, deleted.ID)
		if err != nil {
			return err
		}
		remaining = len(siblings)
		if remaining > 0 {
			share = normalized / float64(remaining)
			if err := s.applyShare(ctx, siblings, share); err != nil {
				return err
			}
		}

		if err := s.assessments.DeleteCascade(ctx, deleted.ID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "assessment not found")
			}
			return err
		}
		return nil
	})
	s.metrics.ObserveDBQuery("assessment_delete_tx", time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete assessment failed")
		return translateTxError(err, "failed to delete assessment")
	}

	s.metrics.RecordRedistribution("delete", remaining)
	s.logger.Info("assessment bucket redistributed",
		zap.String("operation", "delete"),
		zap.Int64("course_id", deleted.CourseID),
		zap.String("assessment_type", string(deleted.Type)),
		zap.Int("bucket_before", remaining+1),
		zap.Int("bucket_after", remaining),
		zap.Float64("share", share),
		zap.Int64("assessment_id", deleted.ID),
	)
	return nil
}

// Get returns a single assessment.
func (s *AssessmentService) Get(ctx context.Context, id int64) (*models.Assessment, error) {
	assessment, err := s.assessments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assessment not found")
		}
		return nil, appErrors.WrapAs(appErrors.ErrInternal, err, "failed to load assessment")
	}
	return assessment, nil
}

// List returns the assessments of a course, optionally narrowed to one type.
func (s *AssessmentService) List(ctx context.Context, filter models.AssessmentFilter) ([]models.Assessment, error) {
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown assessment type")
	}
	if _, err := s.courses.FindByID(ctx, filter.CourseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.WrapAs(appErrors.ErrInternal, err, "failed to load course")
	}
	assessments, err := s.assessments.List(ctx, filter)
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrInternal, err, "failed to list assessments")
	}
	if assessments == nil {
		assessments = []models.Assessment{}
	}
	return assessments, nil
}

// bucketMarks resolves the normalized marks of the bucket. Unsupported
// configurations yield zero, or an error on create in strict mode.
func (s *AssessmentService) bucketMarks(course *models.Course, assessmentType models.AssessmentType, creating bool) (float64, error) {
	cfg := course.CreditConfig()
	normalized, _ := SchemeMarks(cfg, assessmentType)
	if normalized > 0 {
		return normalized, nil
	}
	if creating && s.config.StrictCreditConfig {
		return 0, appErrors.Clone(appErrors.ErrInvalidConfiguration,
			fmt.Sprintf("no mark scheme for %s in a %d+%d credit hour course", assessmentType, cfg.Theory, cfg.Lab))
	}
	s.logger.Warn("no mark scheme for assessment bucket, using zero share",
		zap.Int64("course_id", course.ID),
		zap.Int("theory_credit_hours", cfg.Theory),
		zap.Int("lab_credit_hours", cfg.Lab),
		zap.String("assessment_type", string(assessmentType)),
	)
	return 0, nil
}

// applyShare writes share to every assessment in id order and rescales
// their result rows.
func (s *AssessmentService) applyShare(ctx context.Context, assessments []models.Assessment, share float64) error {
	for _, assessment := range assessments {
		if err := s.assessments.UpdateShare(ctx, assessment.ID, share); err != nil {
			return err
		}
		if err := rescaleResults(ctx, s.results, s.marks, assessment.ID, share); err != nil {
			return err
		}
	}
	return nil
}

// rescaleResults sets every result row of an assessment to the new share,
// keeping each student's obtained ratio over that assessment's questions.
func rescaleResults(ctx context.Context, results resultRepository, marks markTotalsReader, assessmentID int64, share float64) error {
	rows, err := results.ListByAssessment(ctx, assessmentID)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	totals, err := marks.TotalsByAssessment(ctx, assessmentID)
	if err != nil {
		return err
	}
	byStudent := make(map[int64]models.StudentMarkTotals, len(totals))
	for _, t := range totals {
		byStudent[t.StudentID] = t
	}
	for _, row := range rows {
		obtained := ScaleObtained(byStudent[row.StudentID], share)
		if err := results.UpdateRollup(ctx, row.ID, share, obtained); err != nil {
			return err
		}
	}
	return nil
}

// ScaleObtained converts raw marks into the share of an assessment:
// (obtained/total)*share, or zero when nothing was marked.
func ScaleObtained(totals models.StudentMarkTotals, share float64) float64 {
	if totals.TotalMarks <= 0 {
		return 0
	}
	return totals.ObtainedMarks / totals.TotalMarks * share
}
