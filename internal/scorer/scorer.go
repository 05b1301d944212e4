// Package scorer computes the weighted fit between a job and a candidate.
//
// Every function here is pure: it reads materialized Job and Candidate
// aggregates and never touches storage or the network. Sub-scores are
// clamped to [0,100] and rounded to two decimals before they are combined,
// so the stored overall score always equals the weighted sum of the stored
// sub-scores.
package scorer

import (
	"math"

	"jobboard/matching-service/internal/model"
)

// Dimension statuses recorded in the details blob.
const (
	StatusPerfect      = "perfect"
	StatusGood         = "good"
	StatusPartial      = "partial"
	StatusPoor         = "poor"
	StatusNotSpecified = "not_specified"
)

var (
	// BasicWeights apply when no semantic score is available for the pair.
	BasicWeights = model.Weights{
		Skill:      0.35,
		Experience: 0.25,
		Education:  0.15,
		Location:   0.10,
		Salary:     0.15,
	}

	// SemanticWeights apply when the semantic score is available for the pair.
	SemanticWeights = model.Weights{
		Skill:      0.25,
		Experience: 0.20,
		Education:  0.10,
		Location:   0.10,
		Salary:     0.10,
		Semantic:   0.25,
	}
)

// Score runs every dimension and combines them. sem is the outcome of the
// embedding comparison; nil or IsSemantic=false selects the basic table.
func Score(job *model.Job, cand *model.Candidate, sem *model.SemanticResult) (model.ScoreBundle, model.MatchDetails) {
	details := model.MatchDetails{
		Skill:      Skill(job, cand),
		Experience: Experience(job, cand),
		Education:  Education(job, cand),
		Location:   Location(job, cand),
		Salary:     Salary(job, cand),
	}

	bundle := model.ScoreBundle{
		Skill:      details.Skill.Score,
		Experience: details.Experience.Score,
		Education:  details.Education.Score,
		Location:   details.Location.Score,
		Salary:     details.Salary.Score,
	}

	weights := BasicWeights
	if sem != nil {
		s := *sem
		s.Score = Round2(Clamp(s.Score))
		details.Semantic = &s
		if s.IsSemantic {
			weights = SemanticWeights
			bundle.Semantic = &s.Score
		}
	}
	details.Weights = weights
	details.SemanticEnabled = bundle.Semantic != nil
	bundle.Overall = Combine(bundle, weights)

	return bundle, details
}

// Combine returns the weighted sum of the bundle's sub-scores, rounded
// half-up to two decimals.
func Combine(b model.ScoreBundle, w model.Weights) float64 {
	total := w.Skill*b.Skill +
		w.Experience*b.Experience +
		w.Education*b.Education +
		w.Location*b.Location +
		w.Salary*b.Salary
	if b.Semantic != nil {
		total += w.Semantic * *b.Semantic
	}
	return Round2(Clamp(total))
}

// Clamp limits s to [0,100]. NaN becomes 0.
func Clamp(s float64) float64 {
	if math.IsNaN(s) || s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}

// Round2 rounds half-up to two decimals. The small bias absorbs binary
// representation error such as 80.125 being stored as 80.12499999.
func Round2(v float64) float64 {
	return math.Floor(v*100+0.5+1e-9) / 100
}

func result(score float64, status string, details map[string]any) model.DimensionResult {
	return model.DimensionResult{Score: Round2(Clamp(score)), Status: status, Details: details}
}
