package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/obe-api/internal/models"
	"github.com/noah-isme/obe-api/pkg/database"
)

// QuestionRepository manages assessment questions.
type QuestionRepository struct {
	db *sqlx.DB
}

// NewQuestionRepository constructs a QuestionRepository.
func NewQuestionRepository(db *sqlx.DB) *QuestionRepository {
	return &QuestionRepository{db: db}
}

// ListByAssessment returns the questions of an assessment ordered by id.
func (r *QuestionRepository) ListByAssessment(ctx context.Context, assessmentID int64) ([]models.Question, error) {
	const query = "SELECT id, assessment_id, question_text, marks, clo_id FROM questions WHERE assessment_id = $1 ORDER BY id"
	var questions []models.Question
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &questions, query, assessmentID); err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	return questions, nil
}

// Create inserts a question and assigns its id.
func (r *QuestionRepository) Create(ctx context.Context, question *models.Question) error {
	const query = "INSERT INTO questions (assessment_id, question_text, marks, clo_id) VALUES ($1, $2, $3, $4) RETURNING id"
	row := database.Conn(ctx, r.db).QueryRowxContext(ctx, query, question.AssessmentID, question.Text, question.Marks, question.CLOID)
	if err := row.Scan(&question.ID); err != nil {
		return fmt.Errorf("create question: %w", err)
	}
	return nil
}
