package models

import "time"

// AssessmentType enumerates the assessment buckets of a course.
type AssessmentType string

const (
	AssessmentQuiz          AssessmentType = "quiz"
	AssessmentAssignment    AssessmentType = "assignment"
	AssessmentMidterm       AssessmentType = "midterm"
	AssessmentTerminal      AssessmentType = "terminal"
	AssessmentLabAssignment AssessmentType = "lab_assignment"
	AssessmentLabMidterm    AssessmentType = "lab_midterm"
	AssessmentLabTerminal   AssessmentType = "lab_terminal"
)

// AssessmentTypes lists every type in display order.
var AssessmentTypes = []AssessmentType{
	AssessmentQuiz,
	AssessmentAssignment,
	AssessmentMidterm,
	AssessmentTerminal,
	AssessmentLabAssignment,
	AssessmentLabMidterm,
	AssessmentLabTerminal,
}

// Valid reports whether t is a known assessment type.
func (t AssessmentType) Valid() bool {
	for _, known := range AssessmentTypes {
		if t == known {
			return true
		}
	}
	return false
}

// IsLab reports whether t belongs to the lab component.
func (t AssessmentType) IsLab() bool {
	switch t {
	case AssessmentLabAssignment, AssessmentLabMidterm, AssessmentLabTerminal:
		return true
	}
	return false
}

// Assessment represents a graded instrument of a course. NormalizedTotalMarks
// is the equal share of the type bucket and changes whenever a sibling is
// created or deleted.
type Assessment struct {
	ID                   int64          `db:"id" json:"id"`
	Name                 string         `db:"assessment_name" json:"assessment_name"`
	Type                 AssessmentType `db:"assessment_type" json:"assessment_type"`
	CourseID             int64          `db:"course_id" json:"course_id"`
	SemesterID           int64          `db:"semester_id" json:"semester_id"`
	NormalizedTotalMarks float64        `db:"normalized_total_marks" json:"normalized_total_marks"`
	CreatedAt            time.Time      `db:"created_at" json:"created_at"`
}

// Question is a gradable item within an assessment, optionally tagged with a CLO.
type Question struct {
	ID           int64   `db:"id" json:"id"`
	AssessmentID int64   `db:"assessment_id" json:"assessment_id"`
	Text         string  `db:"question_text" json:"question_text"`
	Marks        float64 `db:"marks" json:"marks"`
	CLOID        *int64  `db:"clo_id" json:"clo_id,omitempty"`
}

// Mark is a student's score on one question.
type Mark struct {
	ID            int64   `db:"id" json:"id"`
	StudentID     int64   `db:"student_id" json:"student_id"`
	QuestionID    int64   `db:"question_id" json:"question_id"`
	TotalMarks    float64 `db:"total_marks" json:"total_marks"`
	ObtainedMarks float64 `db:"obtained_marks" json:"obtained_marks"`
}

// Result is a student's scaled score on an assessment.
type Result struct {
	ID                 int64   `db:"id" json:"id"`
	StudentID          int64   `db:"student_id" json:"student_id"`
	AssessmentID       int64   `db:"assessment_id" json:"assessment_id"`
	FinalTotalMarks    float64 `db:"final_total_marks" json:"final_total_marks"`
	FinalObtainedMarks float64 `db:"final_obtained_marks" json:"final_obtained_marks"`
}

// StudentMarkTotals sums a student's raw marks on one assessment.
type StudentMarkTotals struct {
	StudentID     int64   `db:"student_id"`
	TotalMarks    float64 `db:"total_marks"`
	ObtainedMarks float64 `db:"obtained_marks"`
}

// AssessmentFilter narrows assessment listings.
type AssessmentFilter struct {
	CourseID int64
	Type     AssessmentType
}
