package service

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/noah-isme/obe-api/internal/models"
	appErrors "github.com/noah-isme/obe-api/pkg/errors"
)

type semesterCourseReader interface {
	ListEnrolled(ctx context.Context, studentID, semesterID int64) ([]models.Course, error)
	SemesterExists(ctx context.Context, id int64) (bool, error)
}

type resultTotalsReader interface {
	TypeTotalsForStudent(ctx context.Context, studentID int64, courseIDs []int64) ([]models.AssessmentTypeTotals, error)
}

type gradeBand struct {
	min    float64
	letter string
	points float64
}

var gradeBands = []gradeBand{
	{90, "A+", 4.0},
	{80, "A", 3.7},
	{70, "B+", 3.3},
	{60, "B", 3.0},
	{50, "C+", 2.7},
	{40, "C", 2.0},
}

// Grade maps a percentage onto its letter grade and grade points.
func Grade(percentage float64) (string, float64) {
	for _, band := range gradeBands {
		if percentage >= band.min {
			return band.letter, band.points
		}
	}
	return "F", 0
}

// ResultService builds graded semester transcripts from result rows.
type ResultService struct {
	students studentReader
	courses  semesterCourseReader
	results  resultTotalsReader
	logger   *zap.Logger
}

// NewResultService constructs a ResultService.
func NewResultService(students studentReader, courses semesterCourseReader, results resultTotalsReader, logger *zap.Logger) *ResultService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResultService{students: students, courses: courses, results: results, logger: logger}
}

// SemesterTranscript grades every course the student takes in the semester.
// Courses with an unsupported credit configuration are reported without a
// grade and excluded from the GPA.
func (s *ResultService) SemesterTranscript(ctx context.Context, studentID, semesterID int64) (*models.SemesterTranscript, error) {
	exists, err := s.students.Exists(ctx, studentID)
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrInternal, err, "failed to load student")
	}
	if !exists {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	exists, err = s.courses.SemesterExists(ctx, semesterID)
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrInternal, err, "failed to load semester")
	}
	if !exists {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "semester not found")
	}

	courses, err := s.courses.ListEnrolled(ctx, studentID, semesterID)
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrInternal, err, "failed to list enrolled courses")
	}
	ids := make([]int64, 0, len(courses))
	for _, c := range courses {
		ids = append(ids, c.ID)
	}
	totals, err := s.results.TypeTotalsForStudent(ctx, studentID, ids)
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrInternal, err, "failed to aggregate results")
	}
	byCourse := make(map[int64]map[models.AssessmentType]models.AssessmentTypeTotals, len(courses))
	for _, t := range totals {
		if byCourse[t.CourseID] == nil {
			byCourse[t.CourseID] = map[models.AssessmentType]models.AssessmentTypeTotals{}
		}
		byCourse[t.CourseID][t.Type] = t
	}

	transcript := &models.SemesterTranscript{StudentID: studentID, SemesterID: semesterID, Courses: make([]models.CourseResult, 0, len(courses))}
	var weighted float64
	for _, course := range courses {
		line := gradeCourse(course, byCourse[course.ID])
		transcript.Courses = append(transcript.Courses, line)
		if line.Grade == "" {
			s.logger.Warn("course excluded from gpa",
				zap.Int64("course_id", course.ID),
				zap.Int("theory_credit_hours", course.TheoryCreditHours),
				zap.Int("lab_credit_hours", course.LabCreditHours),
			)
			continue
		}
		weighted += line.GradePoints * float64(line.CreditHours)
		transcript.CreditHours += line.CreditHours
	}
	if transcript.CreditHours > 0 {
		transcript.GPA = round2(weighted / float64(transcript.CreditHours))
	}
	return transcript, nil
}

func gradeCourse(course models.Course, totals map[models.AssessmentType]models.AssessmentTypeTotals) models.CourseResult {
	cfg := course.CreditConfig()
	line := models.CourseResult{
		CourseID:    course.ID,
		CourseName:  course.Name,
		CourseCode:  course.Code,
		CreditHours: cfg.Total(),
		Components:  []models.ComponentResult{},
	}
	if !SupportedConfig(cfg) {
		line.Messages = append(line.Messages, fmt.Sprintf("no mark scheme for a %d+%d credit hour course", cfg.Theory, cfg.Lab))
		return line
	}

	line.TotalMarks = CourseTotal(cfg)
	for _, t := range ExpectedTypes(cfg) {
		scheme, _ := SchemeMarks(cfg, t)
		agg := totals[t]
		line.Components = append(line.Components, models.ComponentResult{
			Type:          t,
			SchemeMarks:   scheme,
			Assessments:   agg.Assessments,
			TotalMarks:    agg.TotalMarks,
			ObtainedMarks: agg.ObtainedMarks,
		})
		if agg.Assessments == 0 {
			line.Messages = append(line.Messages, fmt.Sprintf("no %s assessment yet", t))
		}
		line.ObtainedMarks += agg.ObtainedMarks
	}
	line.Percentage = round2(line.ObtainedMarks / line.TotalMarks * 100)
	line.Grade, line.GradePoints = Grade(line.Percentage)
	return line
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
