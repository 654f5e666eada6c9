package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/obe-api/internal/models"
	"github.com/noah-isme/obe-api/pkg/database"
)

// StudentRepository reads student records.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// FindByID fetches a student by id.
func (r *StudentRepository) FindByID(ctx context.Context, id int64) (*models.Student, error) {
	var student models.Student
	if err := database.Conn(ctx, r.db).GetContext(ctx, &student, "SELECT id, name, roll_number, program_id FROM students WHERE id = $1", id); err != nil {
		return nil, err
	}
	return &student, nil
}

// Exists reports whether a student with the id exists.
func (r *StudentRepository) Exists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	if err := database.Conn(ctx, r.db).GetContext(ctx, &exists, "SELECT EXISTS(SELECT 1 FROM students WHERE id = $1)", id); err != nil {
		return false, fmt.Errorf("check student: %w", err)
	}
	return exists, nil
}

// IsEnrolled reports whether the student takes the course.
func (r *StudentRepository) IsEnrolled(ctx context.Context, studentID, courseID int64) (bool, error) {
	const query = "SELECT EXISTS(SELECT 1 FROM studentenrollments WHERE student_id = $1 AND course_id = $2)"
	var enrolled bool
	if err := database.Conn(ctx, r.db).GetContext(ctx, &enrolled, query, studentID, courseID); err != nil {
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return enrolled, nil
}
