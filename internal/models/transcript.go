package models

// AssessmentTypeTotals aggregates a student's results for one bucket of a course.
type AssessmentTypeTotals struct {
	CourseID      int64          `db:"course_id"`
	Type          AssessmentType `db:"assessment_type"`
	Assessments   int            `db:"assessments"`
	TotalMarks    float64        `db:"total_marks"`
	ObtainedMarks float64        `db:"obtained_marks"`
}

// ComponentResult is one expected assessment type within a course transcript.
type ComponentResult struct {
	Type          AssessmentType `json:"assessment_type"`
	SchemeMarks   float64        `json:"scheme_marks"`
	Assessments   int            `json:"assessments"`
	TotalMarks    float64        `json:"total_marks"`
	ObtainedMarks float64        `json:"obtained_marks"`
}

// CourseResult is a course line of a semester transcript.
type CourseResult struct {
	CourseID      int64             `json:"course_id"`
	CourseName    string            `json:"course_name"`
	CourseCode    string            `json:"course_code"`
	CreditHours   int               `json:"credit_hours"`
	TotalMarks    float64           `json:"total_marks"`
	ObtainedMarks float64           `json:"obtained_marks"`
	Percentage    float64           `json:"percentage"`
	Grade         string            `json:"grade"`
	GradePoints   float64           `json:"grade_points"`
	Components    []ComponentResult `json:"components"`
	Messages      []string          `json:"messages,omitempty"`
}

// SemesterTranscript is the graded semester report of a student.
type SemesterTranscript struct {
	StudentID   int64          `json:"student_id"`
	SemesterID  int64          `json:"semester_id"`
	Courses     []CourseResult `json:"courses"`
	CreditHours int            `json:"credit_hours"`
	GPA         float64        `json:"gpa"`
}
