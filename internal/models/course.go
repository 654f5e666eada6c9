package models

// CreditConfig is the (theory, lab) credit hour pair of a course.
type CreditConfig struct {
	Theory int `json:"theory_credit_hours"`
	Lab    int `json:"lab_credit_hours"`
}

// Total returns the combined credit hours.
func (c CreditConfig) Total() int {
	return c.Theory + c.Lab
}

// Course represents a row in the courses table.
type Course struct {
	ID                int64  `db:"id" json:"id"`
	Name              string `db:"name" json:"name"`
	Code              string `db:"code" json:"code"`
	TheoryCreditHours int    `db:"theory_credit_hours" json:"theory_credit_hours"`
	LabCreditHours    int    `db:"lab_credit_hours" json:"lab_credit_hours"`
	SemesterID        *int64 `db:"semester_id" json:"semester_id,omitempty"`
}

// CreditConfig returns the course credit configuration.
func (c Course) CreditConfig() CreditConfig {
	return CreditConfig{Theory: c.TheoryCreditHours, Lab: c.LabCreditHours}
}
