package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/obe-api/internal/models"
	"github.com/noah-isme/obe-api/pkg/database"
)

const assessmentColumns = "id, assessment_name, assessment_type, course_id, semester_id, normalized_total_marks, created_at"

// AssessmentRepository manages assessments and their bucket shares.
type AssessmentRepository struct {
	db *sqlx.DB
}

// NewAssessmentRepository constructs an AssessmentRepository.
func NewAssessmentRepository(db *sqlx.DB) *AssessmentRepository {
	return &AssessmentRepository{db: db}
}

// FindByID fetches an assessment or returns sql.ErrNoRows.
func (r *AssessmentRepository) FindByID(ctx context.Context, id int64) (*models.Assessment, error) {
	query := "SELECT " + assessmentColumns + " FROM assessments WHERE id = $1"
	var assessment models.Assessment
	if err := database.Conn(ctx, r.db).GetContext(ctx, &assessment, query, id); err != nil {
		return nil, err
	}
	return &assessment, nil
}

// LockByID fetches an assessment holding a row lock for the transaction.
func (r *AssessmentRepository) LockByID(ctx context.Context, id int64) (*models.Assessment, error) {
	query := "SELECT " + assessmentColumns + " FROM assessments WHERE id = $1 FOR UPDATE"
	var assessment models.Assessment
	if err := database.Conn(ctx, r.db).GetContext(ctx, &assessment, query, id); err != nil {
		return nil, err
	}
	return &assessment, nil
}

// CountBucket counts assessments of a type within a course.
func (r *AssessmentRepository) CountBucket(ctx context.Context, courseID int64, assessmentType models.AssessmentType) (int, error) {
	const query = "SELECT COUNT(*) FROM assessments WHERE course_id = $1 AND assessment_type = $2"
	var count int
	if err := database.Conn(ctx, r.db).GetContext(ctx, &count, query, courseID, assessmentType); err != nil {
		return 0, fmt.Errorf("count assessments: %w", err)
	}
	return count, nil
}

// ListBucket returns the assessments of a type within a course ordered by id.
// A non-zero excludeID leaves that assessment out.
func (r *AssessmentRepository) ListBucket(ctx context.Context, courseID int64, assessmentType models.AssessmentType, excludeID int64) ([]models.Assessment, error) {
	query := "SELECT " + assessmentColumns + " FROM assessments WHERE course_id = $1 AND assessment_type = $2"
	args := []interface{}{courseID, assessmentType}
	if excludeID != 0 {
		query += " AND id <> $3"
		args = append(args, excludeID)
	}
	query += " ORDER BY id"
	var assessments []models.Assessment
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &assessments, query, args...); err != nil {
		return nil, fmt.Errorf("list assessment bucket: %w", err)
	}
	return assessments, nil
}

// List returns the assessments of a course, optionally filtered by type.
func (r *AssessmentRepository) List(ctx context.Context, filter models.AssessmentFilter) ([]models.Assessment, error) {
	conditions := []string{"course_id = $1"}
	args := []interface{}{filter.CourseID}
	if filter.Type != "" {
		conditions = append(conditions, fmt.Sprintf("assessment_type = $%d", len(args)+1))
		args = append(args, filter.Type)
	}
	query := fmt.Sprintf("SELECT %s FROM assessments WHERE %s ORDER BY assessment_type, id", assessmentColumns, strings.Join(conditions, " AND "))
	var assessments []models.Assessment
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &assessments, query, args...); err != nil {
		return nil, fmt.Errorf("list assessments: %w", err)
	}
	return assessments, nil
}

// Insert stores a new assessment and fills its id and creation time.
func (r *AssessmentRepository) Insert(ctx context.Context, assessment *models.Assessment) error {
	const query = `INSERT INTO assessments (assessment_name, assessment_type, course_id, semester_id, normalized_total_marks)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id, created_at`
	row := database.Conn(ctx, r.db).QueryRowxContext(ctx, query,
		assessment.Name,
		assessment.Type,
		assessment.CourseID,
		assessment.SemesterID,
		assessment.NormalizedTotalMarks,
	)
	if err := row.Scan(&assessment.ID, &assessment.CreatedAt); err != nil {
		return fmt.Errorf("insert assessment: %w", err)
	}
	return nil
}

// UpdateShare sets the normalized total marks of one assessment.
func (r *AssessmentRepository) UpdateShare(ctx context.Context, id int64, share float64) error {
	const query = "UPDATE assessments SET normalized_total_marks = $1 WHERE id = $2"
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, share, id); err != nil {
		return fmt.Errorf("update assessment share: %w", err)
	}
	return nil
}

// DeleteCascade removes an assessment together with its marks, questions and
// results, children first. It returns sql.ErrNoRows when nothing was deleted.
func (r *AssessmentRepository) DeleteCascade(ctx context.Context, id int64) error {
	conn := database.Conn(ctx, r.db)
	steps := []struct {
		label string
		query string
	}{
		{"marks", "DELETE FROM marks WHERE question_id IN (SELECT id FROM questions WHERE assessment_id = $1)"},
		{"questions", "DELETE FROM questions WHERE assessment_id = $1"},
		{"results", "DELETE FROM result WHERE assessment_id = $1"},
	}
	for _, step := range steps {
		if _, err := conn.ExecContext(ctx, step.query, id); err != nil {
			return fmt.Errorf("delete assessment %s: %w", step.label, err)
		}
	}
	res, err := conn.ExecContext(ctx, "DELETE FROM assessments WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete assessment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete assessment rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
