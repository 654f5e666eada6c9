package models

// Student is an enrolled learner.
type Student struct {
	ID         int64  `db:"id" json:"id"`
	Name       string `db:"name" json:"name"`
	RollNumber string `db:"roll_number" json:"roll_number"`
	ProgramID  *int64 `db:"program_id" json:"program_id,omitempty"`
}
