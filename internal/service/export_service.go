package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/obe-api/internal/models"
	appErrors "github.com/noah-isme/obe-api/pkg/errors"
	"github.com/noah-isme/obe-api/pkg/export"
)

// Export formats.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

type progressEvaluator interface {
	EvaluateCourseProgress(ctx context.Context, studentID, courseID int64) (*models.CourseProgress, error)
}

type transcriptBuilder interface {
	SemesterTranscript(ctx context.Context, studentID, semesterID int64) (*models.SemesterTranscript, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// ExportFile is a rendered download.
type ExportFile struct {
	Filename    string
	ContentType string
	Body        []byte
}

// ExportService renders course progress and transcripts as CSV or PDF.
type ExportService struct {
	progress    progressEvaluator
	transcripts transcriptBuilder
	csv         csvRenderer
	pdf         pdfRenderer
	logger      *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(progress progressEvaluator, transcripts transcriptBuilder, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{progress: progress, transcripts: transcripts, csv: csv, pdf: pdf, logger: logger}
}

// ExportCourseProgress renders the CLO and PLO achievement of a student in a course.
func (s *ExportService) ExportCourseProgress(ctx context.Context, studentID, courseID int64, format string) (*ExportFile, error) {
	format, err := normalizeFormat(format)
	if err != nil {
		return nil, err
	}
	progress, err := s.progress.EvaluateCourseProgress(ctx, studentID, courseID)
	if err != nil {
		return nil, err
	}
	name := fmt.Sprintf("course-%d-student-%d-progress", courseID, studentID)
	return s.render(progressDataset(progress), format, name)
}

// ExportTranscript renders the graded semester transcript of a student.
func (s *ExportService) ExportTranscript(ctx context.Context, studentID, semesterID int64, format string) (*ExportFile, error) {
	format, err := normalizeFormat(format)
	if err != nil {
		return nil, err
	}
	transcript, err := s.transcripts.SemesterTranscript(ctx, studentID, semesterID)
	if err != nil {
		return nil, err
	}
	name := fmt.Sprintf("semester-%d-student-%d-transcript", semesterID, studentID)
	return s.render(transcriptDataset(transcript), format, name)
}

func (s *ExportService) render(data export.Dataset, format, name string) (*ExportFile, error) {
	var (
		body        []byte
		contentType string
		err         error
	)
	switch format {
	case ExportFormatCSV:
		body, err = s.csv.Render(data)
		contentType = "text/csv"
	case ExportFormatPDF:
		body, err = s.pdf.Render(data)
		contentType = "application/pdf"
	}
	if err != nil {
		s.logger.Error("render export", zap.String("file", name), zap.String("format", format), zap.Error(err))
		return nil, appErrors.WrapAs(appErrors.ErrInternal, err, "failed to render export")
	}
	return &ExportFile{Filename: name + "." + format, ContentType: contentType, Body: body}, nil
}

func normalizeFormat(format string) (string, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	switch format {
	case "":
		return ExportFormatCSV, nil
	case ExportFormatCSV, ExportFormatPDF:
		return format, nil
	}
	return "", appErrors.Clone(appErrors.ErrUnsupportedExportFormat, fmt.Sprintf("unsupported export format %q", format))
}

func progressDataset(p *models.CourseProgress) export.Dataset {
	data := export.Dataset{
		Title: fmt.Sprintf("%s outcome progress", p.CourseName),
		Subtitle: []string{
			fmt.Sprintf("Student %d", p.StudentID),
			fmt.Sprintf("Course %d", p.CourseID),
		},
		Headers: []string{"outcome", "name", "obtained", "total", "status"},
	}
	if p.NoCLOs {
		data.Subtitle = append(data.Subtitle, "No CLOs defined for this course")
	}
	for _, clo := range p.CLOs {
		data.Rows = append(data.Rows, map[string]string{
			"outcome":  fmt.Sprintf("CLO-%d", clo.CLOID),
			"name":     clo.CLOName,
			"obtained": formatMarks(clo.Obtained),
			"total":    formatMarks(clo.Total),
			"status":   string(clo.Status),
		})
	}
	for _, plo := range p.PLOs {
		data.Rows = append(data.Rows, map[string]string{
			"outcome": fmt.Sprintf("PLO-%d", plo.PLOID),
			"name":    plo.PLOName,
			"status":  string(plo.Status),
		})
	}
	return data
}

func transcriptDataset(t *models.SemesterTranscript) export.Dataset {
	data := export.Dataset{
		Title: "Semester transcript",
		Subtitle: []string{
			fmt.Sprintf("Student %d, semester %d", t.StudentID, t.SemesterID),
			fmt.Sprintf("GPA %.2f over %d credit hours", t.GPA, t.CreditHours),
		},
		Headers: []string{"code", "course", "credits", "obtained", "total", "percentage", "grade"},
	}
	for _, c := range t.Courses {
		data.Rows = append(data.Rows, map[string]string{
			"code":       c.CourseCode,
			"course":     c.CourseName,
			"credits":    strconv.Itoa(c.CreditHours),
			"obtained":   formatMarks(c.ObtainedMarks),
			"total":      formatMarks(c.TotalMarks),
			"percentage": formatMarks(c.Percentage),
			"grade":      c.Grade,
		})
	}
	return data
}

func formatMarks(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
