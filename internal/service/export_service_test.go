package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/obe-api/internal/models"
	appErrors "github.com/noah-isme/obe-api/pkg/errors"
	"github.com/noah-isme/obe-api/pkg/export"
)

type progressStub struct {
	progress *models.CourseProgress
	err      error
}

func (p progressStub) EvaluateCourseProgress(ctx context.Context, studentID, courseID int64) (*models.CourseProgress, error) {
	return p.progress, p.err
}

type transcriptStub struct {
	transcript *models.SemesterTranscript
}

func (t transcriptStub) SemesterTranscript(ctx context.Context, studentID, semesterID int64) (*models.SemesterTranscript, error) {
	return t.transcript, nil
}

type failingRenderer struct{}

func (failingRenderer) Render(data export.Dataset) ([]byte, error) {
	return nil, errors.New("disk full")
}

func sampleProgress() *models.CourseProgress {
	return &models.CourseProgress{
		StudentID:  7,
		CourseID:   1,
		CourseName: "Databases",
		CLOs: []models.CLOResult{
			{CLOID: 1, CLOName: "Model data", Total: 10, Obtained: 7.5, Status: models.StatusPassed, Achieved: true},
			{CLOID: 2, CLOName: "Query data", Total: 0, Obtained: 0, Status: models.StatusPending},
		},
		PLOs: []models.PLOResult{{PLOID: 3, PLOName: "Engineering knowledge", Status: models.StatusPending}},
	}
}

func TestExportServiceCourseProgressCSV(t *testing.T) {
	svc := NewExportService(progressStub{progress: sampleProgress()}, nil, zap.NewNop(), nil, nil)

	file, err := svc.ExportCourseProgress(context.Background(), 7, 1, "CSV")
	require.NoError(t, err)
	assert.Equal(t, "course-1-student-7-progress.csv", file.Filename)
	assert.Equal(t, "text/csv", file.ContentType)

	lines := strings.Split(strings.TrimSpace(string(file.Body)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "outcome,name,obtained,total,status", lines[0])
	assert.Equal(t, "CLO-1,Model data,7.5,10,Passed", lines[1])
	assert.Equal(t, "PLO-3,Engineering knowledge,,,Pending", lines[3])
}

func TestExportServiceCourseProgressPDF(t *testing.T) {
	svc := NewExportService(progressStub{progress: sampleProgress()}, nil, zap.NewNop(), nil, nil)

	file, err := svc.ExportCourseProgress(context.Background(), 7, 1, "pdf")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", file.ContentType)
	assert.True(t, strings.HasPrefix(string(file.Body), "%PDF"))
}

func TestExportServiceDefaultsToCSV(t *testing.T) {
	svc := NewExportService(progressStub{progress: sampleProgress()}, nil, zap.NewNop(), nil, nil)

	file, err := svc.ExportCourseProgress(context.Background(), 7, 1, "")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(file.Filename, ".csv"))
}

func TestExportServiceRejectsUnknownFormat(t *testing.T) {
	svc := NewExportService(progressStub{progress: sampleProgress()}, nil, zap.NewNop(), nil, nil)

	_, err := svc.ExportCourseProgress(context.Background(), 7, 1, "xlsx")
	assert.ErrorIs(t, err, appErrors.ErrUnsupportedExportFormat)
}

func TestExportServicePropagatesEvaluationErrors(t *testing.T) {
	svc := NewExportService(progressStub{err: appErrors.ErrNotFound}, nil, zap.NewNop(), nil, nil)

	_, err := svc.ExportCourseProgress(context.Background(), 7, 1, "csv")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestExportServiceRenderFailure(t *testing.T) {
	svc := NewExportService(progressStub{progress: sampleProgress()}, nil, zap.NewNop(), failingRenderer{}, nil)

	_, err := svc.ExportCourseProgress(context.Background(), 7, 1, "csv")
	assert.ErrorIs(t, err, appErrors.ErrInternal)
}

func TestExportServiceTranscript(t *testing.T) {
	transcript := &models.SemesterTranscript{
		StudentID:   7,
		SemesterID:  2,
		CreditHours: 3,
		GPA:         4,
		Courses: []models.CourseResult{
			{CourseCode: "CS-201", CourseName: "Databases", CreditHours: 3, TotalMarks: 150, ObtainedMarks: 142.5, Percentage: 95, Grade: "A+"},
		},
	}
	svc := NewExportService(nil, transcriptStub{transcript: transcript}, zap.NewNop(), nil, nil)

	file, err := svc.ExportTranscript(context.Background(), 7, 2, "csv")
	require.NoError(t, err)
	assert.Equal(t, "semester-2-student-7-transcript.csv", file.Filename)
	assert.Contains(t, string(file.Body), "CS-201,Databases,3,142.5,150,95,A+")
}
