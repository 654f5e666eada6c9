package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/obe-api/internal/models"
	"github.com/noah-isme/obe-api/pkg/database"
)

// MarkRepository stores per-question student marks.
type MarkRepository struct {
	db *sqlx.DB
}

// NewMarkRepository constructs a MarkRepository.
func NewMarkRepository(db *sqlx.DB) *MarkRepository {
	return &MarkRepository{db: db}
}

// Upsert inserts or replaces the mark of a student on a question.
func (r *MarkRepository) Upsert(ctx context.Context, mark *models.Mark) error {
	const query = `INSERT INTO marks (student_id, question_id, total_marks, obtained_marks)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (student_id, question_id) DO UPDATE
        SET total_marks = EXCLUDED.total_marks, obtained_marks = EXCLUDED.obtained_marks
        RETURNING id`
	row := database.Conn(ctx, r.db).QueryRowxContext(ctx, query, mark.StudentID, mark.QuestionID, mark.TotalMarks, mark.ObtainedMarks)
	if err := row.Scan(&mark.ID); err != nil {
		return fmt.Errorf("upsert mark: %w", err)
	}
	return nil
}

// TotalsByAssessment sums every student's raw marks on the questions of an assessment.
func (r *MarkRepository) TotalsByAssessment(ctx context.Context, assessmentID int64) ([]models.StudentMarkTotals, error) {
	const query = `SELECT m.student_id, COALESCE(SUM(m.total_marks), 0) AS total_marks, COALESCE(SUM(m.obtained_marks), 0) AS obtained_marks
        FROM marks m
        JOIN questions q ON q.id = m.question_id
        WHERE q.assessment_id = $1
        GROUP BY m.student_id
        ORDER BY m.student_id`
	var totals []models.StudentMarkTotals
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &totals, query, assessmentID); err != nil {
		return nil, fmt.Errorf("sum marks by assessment: %w", err)
	}
	return totals, nil
}
