package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/obe-api/internal/models"
	"github.com/noah-isme/obe-api/pkg/database"
)

// ResultRepository manages the scaled per-assessment results of students.
type ResultRepository struct {
	db *sqlx.DB
}

// NewResultRepository constructs a ResultRepository.
func NewResultRepository(db *sqlx.DB) *ResultRepository {
	return &ResultRepository{db: db}
}

// ListByAssessment returns every result row of an assessment ordered by student.
func (r *ResultRepository) ListByAssessment(ctx context.Context, assessmentID int64) ([]models.Result, error) {
	const query = `SELECT id, student_id, assessment_id, final_total_marks, final_obtained_marks
        FROM result WHERE assessment_id = $1 ORDER BY student_id`
	var results []models.Result
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &results, query, assessmentID); err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	return results, nil
}

// UpdateRollup overwrites the scaled totals of a result row.
func (r *ResultRepository) UpdateRollup(ctx context.Context, id int64, total, obtained float64) error {
	const query = "UPDATE result SET final_total_marks = $1, final_obtained_marks = $2 WHERE id = $3"
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, total, obtained, id); err != nil {
		return fmt.Errorf("update result: %w", err)
	}
	return nil
}

// Upsert inserts or replaces the result of a student on an assessment.
func (r *ResultRepository) Upsert(ctx context.Context, result *models.Result) error {
	const query = `INSERT INTO result (student_id, assessment_id, final_total_marks, final_obtained_marks)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (student_id, assessment_id) DO UPDATE
        SET final_total_marks = EXCLUDED.final_total_marks, final_obtained_marks = EXCLUDED.final_obtained_marks
        RETURNING id`
	row := database.Conn(ctx, r.db).QueryRowxContext(ctx, query, result.StudentID, result.AssessmentID, result.FinalTotalMarks, result.FinalObtainedMarks)
	if err := row.Scan(&result.ID); err != nil {
		return fmt.Errorf("upsert result: %w", err)
	}
	return nil
}

// TypeTotalsForStudent aggregates, per course and assessment type, the bucket
// shares and the student's scaled obtained marks. Missing results count as zero.
func (r *ResultRepository) TypeTotalsForStudent(ctx context.Context, studentID int64, courseIDs []int64) ([]models.AssessmentTypeTotals, error) {
	if len(courseIDs) == 0 {
		return nil, nil
	}
	const query = `SELECT a.course_id, a.assessment_type, COUNT(a.id) AS assessments,
        COALESCE(SUM(a.normalized_total_marks), 0) AS total_marks,
        COALESCE(SUM(r.final_obtained_marks), 0) AS obtained_marks
        FROM assessments a
        LEFT JOIN result r ON r.assessment_id = a.id AND r.student_id = $1
        WHERE a.course_id = ANY($2)
        GROUP BY a.course_id, a.assessment_type
        ORDER BY a.course_id, a.assessment_type`
	var totals []models.AssessmentTypeTotals
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &totals, query, studentID, pq.Array(courseIDs)); err != nil {
		return nil, fmt.Errorf("sum results by type: %w", err)
	}
	return totals, nil
}
