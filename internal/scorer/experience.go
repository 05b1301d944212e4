package scorer

import (
	"math"

	"jobboard/matching-service/internal/model"
)

const (
	underPenaltyPerYear = 15
	overPenaltyPerYear  = 5
	overQualifiedFloor  = 60
)

// Experience scores the candidate's years against the job's range.
// Shortfall costs 15 points a year down to 0; surplus costs 5 a year down to 60.
func Experience(job *model.Job, cand *model.Candidate) model.DimensionResult {
	years := cand.YearsOfExperience
	if years < 0 {
		years = 0
	}
	details := map[string]any{"candidate_years": years}

	if job.ExperienceMin == nil && job.ExperienceMax == nil {
		return result(100, StatusNotSpecified, details)
	}

	minYears := 0
	if job.ExperienceMin != nil {
		minYears = *job.ExperienceMin
		details["required_min"] = minYears
	}
	if job.ExperienceMax != nil {
		details["required_max"] = *job.ExperienceMax
	}

	switch {
	case years < minYears:
		delta := minYears - years
		details["years_under"] = delta
		score := math.Max(0, 100-underPenaltyPerYear*float64(delta))
		return result(score, StatusPartial, details)
	case job.ExperienceMax != nil && years > *job.ExperienceMax:
		delta := years - *job.ExperienceMax
		details["years_over"] = delta
		score := math.Max(overQualifiedFloor, 100-overPenaltyPerYear*float64(delta))
		return result(score, StatusGood, details)
	}
	return result(100, StatusPerfect, details)
}
