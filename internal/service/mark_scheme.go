package service

import "github.com/noah-isme/obe-api/internal/models"

// markScheme holds the normalized marks of every assessment type for one
// credit hour configuration. A type missing from Types is not applicable.
type markScheme struct {
	Types       map[models.AssessmentType]float64
	CourseTotal float64
}

var markSchemes = map[models.CreditConfig]markScheme{
	{Theory: 3, Lab: 0}: {
		Types: map[models.AssessmentType]float64{
			models.AssessmentQuiz:       15,
			models.AssessmentAssignment: 15,
			models.AssessmentMidterm:    45,
			models.AssessmentTerminal:   75,
		},
		CourseTotal: 150,
	},
	{Theory: 3, Lab: 1}: {
		Types: map[models.AssessmentType]float64{
			models.AssessmentQuiz:          15,
			models.AssessmentAssignment:    15,
			models.AssessmentMidterm:       45,
			models.AssessmentTerminal:      75,
			models.AssessmentLabAssignment: 12.5,
			models.AssessmentLabMidterm:    12.5,
			models.AssessmentLabTerminal:   25,
		},
		CourseTotal: 200,
	},
	{Theory: 2, Lab: 1}: {
		Types: map[models.AssessmentType]float64{
			models.AssessmentQuiz:          10,
			models.AssessmentAssignment:    10,
			models.AssessmentMidterm:       30,
			models.AssessmentTerminal:      50,
			models.AssessmentLabAssignment: 12.5,
			models.AssessmentLabMidterm:    12.5,
			models.AssessmentLabTerminal:   25,
		},
		CourseTotal: 150,
	},
}

// SchemeMarks returns the normalized marks for the assessment type and the
// course total of the configuration. Unsupported configurations and types that
// do not apply to the configuration yield (0, 0).
func SchemeMarks(cfg models.CreditConfig, assessmentType models.AssessmentType) (normalized float64, courseTotal float64) {
	scheme, ok := markSchemes[cfg]
	if !ok {
		return 0, 0
	}
	marks, ok := scheme.Types[assessmentType]
	if !ok {
		return 0, 0
	}
	return marks, scheme.CourseTotal
}

// SupportedConfig reports whether a mark scheme exists for cfg.
func SupportedConfig(cfg models.CreditConfig) bool {
	_, ok := markSchemes[cfg]
	return ok
}

// ExpectedTypes lists the assessment types of a configuration in display order.
func ExpectedTypes(cfg models.CreditConfig) []models.AssessmentType {
	scheme, ok := markSchemes[cfg]
	if !ok {
		return nil
	}
	types := make([]models.AssessmentType, 0, len(scheme.Types))
	for _, t := range models.AssessmentTypes {
		if _, ok := scheme.Types[t]; ok {
			types = append(types, t)
		}
	}
	return types
}

// CourseTotal returns the total normalized marks of a configuration or zero.
func CourseTotal(cfg models.CreditConfig) float64 {
	return markSchemes[cfg].CourseTotal
}
