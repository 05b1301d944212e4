// Package alerts stores candidate job alerts and matches newly published
// jobs against them.
package alerts

import (
	"strings"

	"jobboard/matching-service/internal/model"
)

// Dimension caps. A total at or above the threshold counts as a match.
const (
	KeywordPoints  = 40
	SkillPoints    = 30
	LocationPoints = 20
	SalaryPoints   = 10

	DefaultThreshold = 50
)

// Breakdown is the per-dimension result of Score.
type Breakdown struct {
	Keyword  float64 `json:"keyword"`
	Skill    float64 `json:"skill"`
	Location float64 `json:"location"`
	Salary   float64 `json:"salary"`
	Total    float64 `json:"total"`
}

// Score rates a job against an alert. Category, job type and level are
// pre-filtered by the store and do not contribute here.
func Score(a *model.Alert, job *model.Job) Breakdown {
	b := Breakdown{
		Keyword:  keywordScore(a.Keywords, job.Title),
		Skill:    skillScore(a.SkillIDs, job.RequiredSkills()),
		Location: locationScore(a.Locations, job.Province),
		Salary:   salaryScore(a.SalaryMin, job.SalaryMax),
	}
	b.Total = b.Keyword + b.Skill + b.Location + b.Salary
	return b
}

// Keywords splits a comma separated keyword list, dropping blanks.
func Keywords(raw string) []string {
	var out []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, strings.ToLower(k))
		}
	}
	return out
}

func keywordScore(raw, title string) float64 {
	words := Keywords(raw)
	if len(words) == 0 {
		return KeywordPoints
	}
	title = strings.ToLower(title)
	for _, w := range words {
		if strings.Contains(title, w) {
			return KeywordPoints
		}
	}
	return KeywordPoints / 2
}

func skillScore(alertSkills []int64, required []model.JobSkill) float64 {
	if len(alertSkills) == 0 {
		return SkillPoints
	}
	have := make(map[int64]struct{}, len(required))
	for _, s := range required {
		have[s.SkillID] = struct{}{}
	}
	var overlap int
	for _, id := range alertSkills {
		if _, ok := have[id]; ok {
			overlap++
		}
	}
	return SkillPoints * float64(overlap) / float64(len(alertSkills))
}

func locationScore(locations []model.Province, p *model.Province) float64 {
	if len(locations) == 0 {
		return LocationPoints
	}
	if p == nil {
		return 0
	}
	for _, l := range locations {
		if l.ID == p.ID {
			return LocationPoints
		}
	}
	return 0
}

func salaryScore(alertMin, jobMax *float64) float64 {
	if alertMin == nil || jobMax == nil || *alertMin <= *jobMax {
		return SalaryPoints
	}
	return 0
}
