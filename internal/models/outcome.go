package models

// OutcomeStatus is the tri-state achievement of a CLO or PLO.
type OutcomeStatus string

const (
	StatusPassed  OutcomeStatus = "Passed"
	StatusFailed  OutcomeStatus = "Failed"
	StatusPending OutcomeStatus = "Pending"
)

// Achieved collapses the tri-state into a boolean. Pending is not achieved.
func (s OutcomeStatus) Achieved() bool {
	return s == StatusPassed
}

// CLO is a course learning outcome.
type CLO struct {
	ID          int64  `db:"id" json:"id"`
	CourseID    int64  `db:"course_id" json:"course_id"`
	Name        string `db:"clo_name" json:"clo_name"`
	Description string `db:"description" json:"description"`
}

// PLO is a program learning outcome.
type PLO struct {
	ID          int64  `db:"id" json:"id"`
	ProgramID   *int64 `db:"program_id" json:"program_id,omitempty"`
	Name        string `db:"plo_name" json:"plo_name"`
	Description string `db:"description" json:"description"`
}

// CLOMarkSums carries the aggregate used to evaluate a CLO.
type CLOMarkSums struct {
	Total    float64 `db:"total"`
	Obtained float64 `db:"obtained"`
}

// CLOResult is the evaluated achievement of a CLO for a student.
type CLOResult struct {
	CLOID    int64         `json:"clo_id"`
	CLOName  string        `json:"clo_name"`
	Total    float64       `json:"total"`
	Obtained float64       `json:"obtained"`
	Status   OutcomeStatus `json:"status"`
	Achieved bool          `json:"achieved"`
}

// PLOResult is the evaluated achievement of a PLO for a student. CLOs lists
// the mapped CLOs evaluated before a decision was reached.
type PLOResult struct {
	PLOID    int64         `json:"plo_id"`
	PLOName  string        `json:"plo_name"`
	Status   OutcomeStatus `json:"status"`
	Achieved bool          `json:"achieved"`
	NoCLOs   bool          `json:"no_clos,omitempty"`
	CLOs     []CLOResult   `json:"clos"`
}

// CourseProgress combines CLO and PLO achievement for one course.
type CourseProgress struct {
	StudentID  int64       `json:"student_id"`
	CourseID   int64       `json:"course_id"`
	CourseName string      `json:"course_name"`
	NoCLOs     bool        `json:"no_clos"`
	CLOs       []CLOResult `json:"clos"`
	PLOs       []PLOResult `json:"plos"`
}

// SemesterProgress lists course progress for every enrolled course.
type SemesterProgress struct {
	StudentID  int64            `json:"student_id"`
	SemesterID int64            `json:"semester_id"`
	Courses    []CourseProgress `json:"courses"`
}

// CLOCoverage reports the CLOs of a course no question assesses yet.
type CLOCoverage struct {
	CourseID  int64 `json:"course_id"`
	Complete  bool  `json:"complete"`
	TotalCLOs int   `json:"total_clos"`
	Uncovered []CLO `json:"uncovered"`
}
