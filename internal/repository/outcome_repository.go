package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/obe-api/internal/models"
	"github.com/noah-isme/obe-api/pkg/database"
)

// OutcomeRepository reads CLOs, PLOs, their mapping and the mark aggregates
// used for achievement evaluation.
type OutcomeRepository struct {
	db *sqlx.DB
}

// NewOutcomeRepository constructs an OutcomeRepository.
func NewOutcomeRepository(db *sqlx.DB) *OutcomeRepository {
	return &OutcomeRepository{db: db}
}

// FindCLO fetches a CLO or returns sql.ErrNoRows.
func (r *OutcomeRepository) FindCLO(ctx context.Context, id int64) (*models.CLO, error) {
	var clo models.CLO
	if err := database.Conn(ctx, r.db).GetContext(ctx, &clo, "SELECT id, course_id, clo_name, description FROM clos WHERE id = $1", id); err != nil {
		return nil, err
	}
	return &clo, nil
}

// FindPLO fetches a PLO or returns sql.ErrNoRows.
func (r *OutcomeRepository) FindPLO(ctx context.Context, id int64) (*models.PLO, error) {
	var plo models.PLO
	if err := database.Conn(ctx, r.db).GetContext(ctx, &plo, "SELECT id, program_id, plo_name, description FROM plos WHERE id = $1", id); err != nil {
		return nil, err
	}
	return &plo, nil
}

// ListCLOsByCourse returns the CLOs of a course ordered by id.
func (r *OutcomeRepository) ListCLOsByCourse(ctx context.Context, courseID int64) ([]models.CLO, error) {
	var clos []models.CLO
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &clos, "SELECT id, course_id, clo_name, description FROM clos WHERE course_id = $1 ORDER BY id", courseID); err != nil {
		return nil, fmt.Errorf("list clos: %w", err)
	}
	return clos, nil
}

// ListCLOIDsByPLO returns the ids of the CLOs mapped to a PLO.
func (r *OutcomeRepository) ListCLOIDsByPLO(ctx context.Context, ploID int64) ([]int64, error) {
	var ids []int64
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &ids, "SELECT clo_id FROM clo_plo_mapping WHERE plo_id = $1 ORDER BY clo_id", ploID); err != nil {
		return nil, fmt.Errorf("list clos for plo: %w", err)
	}
	return ids, nil
}

// ListPLOIDsByCLO returns the distinct PLOs mapped to any of the CLOs.
func (r *OutcomeRepository) ListPLOIDsByCLO(ctx context.Context, cloIDs []int64) ([]int64, error) {
	if len(cloIDs) == 0 {
		return nil, nil
	}
	var ids []int64
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &ids, "SELECT DISTINCT plo_id FROM clo_plo_mapping WHERE clo_id = ANY($1) ORDER BY plo_id", pq.Array(cloIDs)); err != nil {
		return nil, fmt.Errorf("list plos for clos: %w", err)
	}
	return ids, nil
}

// SumMarksForCLO returns the question marks tagged with the CLO and the marks
// the student obtained on them. A non-nil courseID restricts the questions to
// that course's assessments.
func (r *OutcomeRepository) SumMarksForCLO(ctx context.Context, cloID, studentID int64, courseID *int64) (models.CLOMarkSums, error) {
	query := `SELECT COALESCE(SUM(q.marks), 0) AS total, COALESCE(SUM(m.obtained_marks), 0) AS obtained
        FROM questions q
        JOIN assessments a ON a.id = q.assessment_id
        LEFT JOIN marks m ON m.question_id = q.id AND m.student_id = $2
        WHERE q.clo_id = $1`
	args := []interface{}{cloID, studentID}
	if courseID != nil {
		query += " AND a.course_id = $3"
		args = append(args, *courseID)
	}
	var sums models.CLOMarkSums
	if err := database.Conn(ctx, r.db).GetContext(ctx, &sums, query, args...); err != nil {
		return models.CLOMarkSums{}, fmt.Errorf("sum marks for clo: %w", err)
	}
	return sums, nil
}

// ListUncoveredCLOs returns the CLOs of a course no question is tagged with.
func (r *OutcomeRepository) ListUncoveredCLOs(ctx context.Context, courseID int64) ([]models.CLO, error) {
	const query = `SELECT c.id, c.course_id, c.clo_name, c.description
        FROM clos c
        WHERE c.course_id = $1
        AND NOT EXISTS (SELECT 1 FROM questions q WHERE q.clo_id = c.id)
        ORDER BY c.id`
	var clos []models.CLO
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &clos, query, courseID); err != nil {
		return nil, fmt.Errorf("list uncovered clos: %w", err)
	}
	return clos, nil
}
