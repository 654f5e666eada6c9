package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/obe-api/internal/models"
	"github.com/noah-isme/obe-api/pkg/database"
)

const courseColumns = "id, name, code, theory_credit_hours, lab_credit_hours, semester_id"

// CourseRepository reads course rows and their credit hour configuration.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs a CourseRepository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// FindByID returns the course or sql.ErrNoRows.
func (r *CourseRepository) FindByID(ctx context.Context, id int64) (*models.Course, error) {
	query := "SELECT " + courseColumns + " FROM courses WHERE id = $1"
	var course models.Course
	if err := database.Conn(ctx, r.db).GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// LockByID loads the course and holds a row lock until the surrounding
// transaction ends. Every mutation of an assessment bucket takes this lock first.
func (r *CourseRepository) LockByID(ctx context.Context, id int64) (*models.Course, error) {
	query := "SELECT " + courseColumns + " FROM courses WHERE id = $1 FOR UPDATE"
	var course models.Course
	if err := database.Conn(ctx, r.db).GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// ListEnrolled returns the courses a student is enrolled in for a semester.
func (r *CourseRepository) ListEnrolled(ctx context.Context, studentID, semesterID int64) ([]models.Course, error) {
	const query = `SELECT c.id, c.name, c.code, c.theory_credit_hours, c.lab_credit_hours, c.semester_id
        FROM studentenrollments e
        JOIN courses c ON c.id = e.course_id
        WHERE e.student_id = $1 AND e.semester_id = $2
        ORDER BY c.id`
	var courses []models.Course
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &courses, query, studentID, semesterID); err != nil {
		return nil, fmt.Errorf("list enrolled courses: %w", err)
	}
	return courses, nil
}

// SemesterExists reports whether the semester id is known.
func (r *CourseRepository) SemesterExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	if err := database.Conn(ctx, r.db).GetContext(ctx, &exists, "SELECT EXISTS(SELECT 1 FROM semesters WHERE id = $1)", id); err != nil {
		return false, fmt.Errorf("check semester: %w", err)
	}
	return exists, nil
}
