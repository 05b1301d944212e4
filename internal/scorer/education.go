package scorer

import "jobboard/matching-service/internal/model"

const educationPenaltyPerLevel = 25

// Education compares education ordinals. Each missing level costs 25 points.
func Education(job *model.Job, cand *model.Candidate) model.DimensionResult {
	if job.Education == nil || job.Education.Rank() == 0 {
		return result(100, StatusNotSpecified, nil)
	}

	required := job.Education.Rank()
	have := cand.Education.Rank()
	details := map[string]any{
		"required_level":  string(*job.Education),
		"candidate_level": string(cand.Education),
	}
	if have >= required {
		return result(100, StatusPerfect, details)
	}

	gap := required - have
	details["gap"] = gap
	return result(100-educationPenaltyPerLevel*float64(gap), StatusPartial, details)
}
