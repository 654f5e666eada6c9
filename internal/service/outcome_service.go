package service

import (
	"context"
	"database/sql"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/noah-isme/obe-api/internal/models"
	appErrors "github.com/noah-isme/obe-api/pkg/errors"
	"github.com/noah-isme/obe-api/pkg/tracing"
)

// DefaultPassThreshold is the obtained/total ratio a CLO must reach.
const DefaultPassThreshold = 0.5

type outcomeRepository interface {
	FindCLO(ctx context.Context, id int64) (*models.CLO, error)
	FindPLO(ctx context.Context, id int64) (*models.PLO, error)
	ListCLOsByCourse(ctx context.Context, courseID int64) ([]models.CLO, error)
	ListCLOIDsByPLO(ctx context.Context, ploID int64) ([]int64, error)
	ListPLOIDsByCLO(ctx context.Context, cloIDs []int64) ([]int64, error)
	SumMarksForCLO(ctx context.Context, cloID, studentID int64, courseID *int64) (models.CLOMarkSums, error)
	ListUncoveredCLOs(ctx context.Context, courseID int64) ([]models.CLO, error)
}

type studentReader interface {
	Exists(ctx context.Context, id int64) (bool, error)
}

type enrolledCourseReader interface {
	FindByID(ctx context.Context, id int64) (*models.Course, error)
	ListEnrolled(ctx context.Context, studentID, semesterID int64) ([]models.Course, error)
	SemesterExists(ctx context.Context, id int64) (bool, error)
}

// OutcomeConfig tunes achievement evaluation.
type OutcomeConfig struct {
	PassThreshold float64
	// EmptyPLOStatus is reported for PLOs without mapped CLOs.
	EmptyPLOStatus models.OutcomeStatus
}

// OutcomeService evaluates CLO and PLO achievement from live marks. Nothing is
// cached between calls.
type OutcomeService struct {
	outcomes outcomeRepository
	students studentReader
	courses  enrolledCourseReader
	logger   *zap.Logger
	metrics  *MetricsService
	config   OutcomeConfig
}

// NewOutcomeService constructs the outcome evaluator.
func NewOutcomeService(outcomes outcomeRepository, students studentReader, courses enrolledCourseReader, logger *zap.Logger, metrics *MetricsService, config OutcomeConfig) *OutcomeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.PassThreshold <= 0 || config.PassThreshold > 1 {
		config.PassThreshold = DefaultPassThreshold
	}
	if config.EmptyPLOStatus != models.StatusPending {
		config.EmptyPLOStatus = models.StatusPassed
	}
	return &OutcomeService{outcomes: outcomes, students: students, courses: courses, logger: logger, metrics: metrics, config: config}
}

// CLOStatus classifies a CLO aggregate: Pending without assessed marks,
// Passed once obtained/total reaches threshold, Failed otherwise.
func CLOStatus(obtained, total, threshold float64) models.OutcomeStatus {
	if total <= 0 {
		return models.StatusPending
	}
	if obtained/total >= threshold {
		return models.StatusPassed
	}
	return models.StatusFailed
}

// cloMemo caches CLO results for the duration of a single evaluation call.
type cloMemo map[int64]models.CLOResult

// EvaluateCLO computes a student's achievement of one CLO, optionally scoped
// to the questions of a single course.
func (s *OutcomeService) EvaluateCLO(ctx context.Context, studentID, cloID int64, courseID *int64) (*models.CLOResult, error) {
	ctx, span := tracing.Start(ctx, "OutcomeService.EvaluateCLO", attribute.Int64("student.id", studentID), attribute.Int64("clo.id", cloID))
	defer span.End()

	if err := s.ensureStudent(ctx, studentID); err != nil {
		return nil, err
	}
	clo, err := s.outcomes.FindCLO(ctx, cloID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "clo not found")
		}
		return nil, evaluationError(err)
	}
	result, err := s.evaluateCLO(ctx, *clo, studentID, courseID)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// EvaluateAllCLOsForCourse evaluates every CLO defined for a course.
func (s *OutcomeService) EvaluateAllCLOsForCourse(ctx context.Context, studentID, courseID int64) ([]models.CLOResult, error) {
	if err := s.ensureStudent(ctx, studentID); err != nil {
		return nil, err
	}
	if _, err := s.findCourse(ctx, courseID); err != nil {
		return nil, err
	}
	results, _, err := s.courseCLOs(ctx, studentID, courseID, cloMemo{})
	return results, err
}

// EvaluatePLO computes a student's achievement of a PLO from its mapped CLOs.
func (s *OutcomeService) EvaluatePLO(ctx context.Context, studentID, ploID int64) (*models.PLOResult, error) {
	ctx, span := tracing.Start(ctx, "OutcomeService.EvaluatePLO", attribute.Int64("student.id", studentID), attribute.Int64("plo.id", ploID))
	defer span.End()

	if err := s.ensureStudent(ctx, studentID); err != nil {
		return nil, err
	}
	plo, err := s.outcomes.FindPLO(ctx, ploID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "plo not found")
		}
		return nil, evaluationError(err)
	}
	result, err := s.evaluatePLO(ctx, *plo, studentID, cloMemo{})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// EvaluateCourseProgress returns the CLOs of a course and every PLO mapped to
// any of them.
func (s *OutcomeService) EvaluateCourseProgress(ctx context.Context, studentID, courseID int64) (*models.CourseProgress, error) {
	ctx, span := tracing.Start(ctx, "OutcomeService.EvaluateCourseProgress", attribute.Int64("student.id", studentID), attribute.Int64("course.id", courseID))
	defer span.End()

	if err := s.ensureStudent(ctx, studentID); err != nil {
		return nil, err
	}
	course, err := s.findCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	return s.courseProgress(ctx, studentID, *course, cloMemo{})
}

// EvaluateSemesterProgress returns course progress for every course the
// student is enrolled in during the semester.
func (s *OutcomeService) EvaluateSemesterProgress(ctx context.Context, studentID, semesterID int64) (*models.SemesterProgress, error) {
	ctx, span := tracing.Start(ctx, "OutcomeService.EvaluateSemesterProgress", attribute.Int64("student.id", studentID), attribute.Int64("semester.id", semesterID))
	defer span.End()

	if err := s.ensureStudent(ctx, studentID); err != nil {
		return nil, err
	}
	exists, err := s.courses.SemesterExists(ctx, semesterID)
	if err != nil {
		return nil, evaluationError(err)
	}
	if !exists {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "semester not found")
	}
	courses, err := s.courses.ListEnrolled(ctx, studentID, semesterID)
	if err != nil {
		return nil, evaluationError(err)
	}

	progress := &models.SemesterProgress{StudentID: studentID, SemesterID: semesterID, Courses: make([]models.CourseProgress, 0, len(courses))}
	memo := cloMemo{}
	for _, course := range courses {
		cp, err := s.courseProgress(ctx, studentID, course, memo)
		if err != nil {
			return nil, err
		}
		progress.Courses = append(progress.Courses, *cp)
	}
	return progress, nil
}

// CheckCLOCoverage lists the CLOs of a course that no question assesses.
func (s *OutcomeService) CheckCLOCoverage(ctx context.Context, courseID int64) (*models.CLOCoverage, error) {
	if _, err := s.findCourse(ctx, courseID); err != nil {
		return nil, err
	}
	clos, err := s.outcomes.ListCLOsByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrInternal, err, "failed to list clos")
	}
	uncovered, err := s.outcomes.ListUncoveredCLOs(ctx, courseID)
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrInternal, err, "failed to check clo coverage")
	}
	if uncovered == nil {
		uncovered = []models.CLO{}
	}
	return &models.CLOCoverage{
		CourseID:  courseID,
		Complete:  len(uncovered) == 0,
		TotalCLOs: len(clos),
		Uncovered: uncovered,
	}, nil
}

func (s *OutcomeService) courseProgress(ctx context.Context, studentID int64, course models.Course, memo cloMemo) (*models.CourseProgress, error) {
	results, cloIDs, err := s.courseCLOs(ctx, studentID, course.ID, memo)
	if err != nil {
		return nil, err
	}
	progress := &models.CourseProgress{
		StudentID:  studentID,
		CourseID:   course.ID,
		CourseName: course.Name,
		NoCLOs:     len(results) == 0,
		CLOs:       results,
		PLOs:       []models.PLOResult{},
	}
	if progress.NoCLOs {
		return progress, nil
	}

	ploIDs, err := s.outcomes.ListPLOIDsByCLO(ctx, cloIDs)
	if err != nil {
		return nil, evaluationError(err)
	}
	for _, ploID := range ploIDs {
		plo, err := s.outcomes.FindPLO(ctx, ploID)
		if err != nil {
			return nil, evaluationError(err)
		}
		result, err := s.evaluatePLO(ctx, *plo, studentID, memo)
		if err != nil {
			return nil, err
		}
		progress.PLOs = append(progress.PLOs, result)
	}
	return progress, nil
}

func (s *OutcomeService) courseCLOs(ctx context.Context, studentID, courseID int64, memo cloMemo) ([]models.CLOResult, []int64, error) {
	clos, err := s.outcomes.ListCLOsByCourse(ctx, courseID)
	if err != nil {
		return nil, nil, evaluationError(err)
	}
	results := make([]models.CLOResult, 0, len(clos))
	ids := make([]int64, 0, len(clos))
	scope := courseID
	for _, clo := range clos {
		result, ok := memo[clo.ID]
		if !ok {
			result, err = s.evaluateCLO(ctx, clo, studentID, &scope)
			if err != nil {
				return nil, nil, err
			}
			memo[clo.ID] = result
		}
		results = append(results, result)
		ids = append(ids, clo.ID)
	}
	return results, ids, nil
}

func (s *OutcomeService) evaluateCLO(ctx context.Context, clo models.CLO, studentID int64, courseID *int64) (models.CLOResult, error) {
	sums, err := s.outcomes.SumMarksForCLO(ctx, clo.ID, studentID, courseID)
	if err != nil {
		s.logger.Error("clo aggregation failed", zap.Int64("clo_id", clo.ID), zap.Int64("student_id", studentID), zap.Error(err))
		return models.CLOResult{}, evaluationError(err)
	}
	status := CLOStatus(sums.Obtained, sums.Total, s.config.PassThreshold)
	s.metrics.RecordEvaluation("clo", status)
	return models.CLOResult{
		CLOID:    clo.ID,
		CLOName:  clo.Name,
		Total:    sums.Total,
		Obtained: sums.Obtained,
		Status:   status,
		Achieved: status.Achieved(),
	}, nil
}

// evaluatePLO stops at the first Failed CLO. Pending CLOs without any
// failure make the PLO Pending.
func (s *OutcomeService) evaluatePLO(ctx context.Context, plo models.PLO, studentID int64, memo cloMemo) (models.PLOResult, error) {
	result := models.PLOResult{PLOID: plo.ID, PLOName: plo.Name, CLOs: []models.CLOResult{}}

	cloIDs, err := s.outcomes.ListCLOIDsByPLO(ctx, plo.ID)
	if err != nil {
		return models.PLOResult{}, evaluationError(err)
	}
	if len(cloIDs) == 0 {
		result.NoCLOs = true
		result.Status = s.config.EmptyPLOStatus
		result.Achieved = result.Status.Achieved()
		s.metrics.RecordEvaluation("plo", result.Status)
		return result, nil
	}

	status := models.StatusPassed
	for _, cloID := range cloIDs {
		clo, ok := memo[cloID]
		if !ok {
			found, err := s.outcomes.FindCLO(ctx, cloID)
			if err != nil {
				return models.PLOResult{}, evaluationError(err)
			}
			clo, err = s.evaluateCLO(ctx, *found, studentID, nil)
			if err != nil {
				return models.PLOResult{}, err
			}
			memo[cloID] = clo
		}
		result.CLOs = append(result.CLOs, clo)
		if clo.Status == models.StatusFailed {
			status = models.StatusFailed
			break
		}
		if clo.Status == models.StatusPending {
			status = models.StatusPending
		}
	}

	result.Status = status
	result.Achieved = status.Achieved()
	s.metrics.RecordEvaluation("plo", status)
	return result, nil
}

func (s *OutcomeService) ensureStudent(ctx context.Context, studentID int64) error {
	exists, err := s.students.Exists(ctx, studentID)
	if err != nil {
		return evaluationError(err)
	}
	if !exists {
		return appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	return nil
}

func (s *OutcomeService) findCourse(ctx context.Context, courseID int64) (*models.Course, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.WrapAs(appErrors.ErrInternal, err, "failed to load course")
	}
	return course, nil
}

// evaluationError reports a store failure during evaluation. A status is
// never guessed.
func evaluationError(err error) error {
	return appErrors.WrapAs(appErrors.ErrEvaluationFailed, err, "")
}
