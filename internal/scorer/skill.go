package scorer

import (
	"sort"

	"jobboard/matching-service/internal/model"
)

// proficiencyFactor scales a matched skill by the candidate's level once the
// candidate meets the required level. Below the required level the factor
// is belowRequired.
var proficiencyFactor = map[model.Proficiency]float64{
	model.ProficiencyBasic:        0.5,
	model.ProficiencyIntermediate: 0.7,
	model.ProficiencyAdvanced:     0.85,
	model.ProficiencyExpert:       1.0,
}

const belowRequired = 0.5

// Skill scores the share of required skills the candidate holds.
// A job without required skills scores 100.
func Skill(job *model.Job, cand *model.Candidate) model.DimensionResult {
	required := job.RequiredSkills()
	if len(required) == 0 {
		return result(100, StatusNotSpecified, map[string]any{"total_job_skills": 0})
	}

	held := make(map[int64]model.CandidateSkill, len(cand.Skills))
	for _, s := range cand.Skills {
		held[s.SkillID] = s
	}

	matched := make([]string, 0, len(required))
	missing := make([]string, 0)
	var points float64
	for _, req := range required {
		have, ok := held[req.SkillID]
		if !ok {
			missing = append(missing, req.Name)
			continue
		}
		matched = append(matched, req.Name)
		points += skillFactor(req.Proficiency, have.Proficiency)
	}
	sort.Strings(matched)
	sort.Strings(missing)

	score := 100 * points / float64(len(required))
	return result(score, skillStatus(score), map[string]any{
		"matched_skills":   matched,
		"missing_skills":   missing,
		"total_job_skills": len(required),
		"total_matched":    len(matched),
	})
}

// skillFactor applies the proficiency factor only when both sides state a level.
func skillFactor(required, held model.Proficiency) float64 {
	if required.Rank() == 0 || held.Rank() == 0 {
		return 1
	}
	if held.Rank() < required.Rank() {
		return belowRequired
	}
	return proficiencyFactor[held]
}

func skillStatus(score float64) string {
	switch {
	case score >= 100:
		return StatusPerfect
	case score >= 70:
		return StatusGood
	case score > 0:
		return StatusPartial
	}
	return StatusPoor
}
