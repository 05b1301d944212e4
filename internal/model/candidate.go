package model

import "time"

// CandidateSkill links a candidate to a skill with an optional self-assessed level.
type CandidateSkill struct {
	SkillID     int64       `json:"skill_id"`
	Name        string      `json:"name"`
	Proficiency Proficiency `json:"proficiency_level,omitempty"`
}

// Experience is one entry of a candidate's work history.
type Experience struct {
	Title       string `json:"title"`
	Company     string `json:"company"`
	Description string `json:"description"`
}

// Candidate is the read model of a job seeker profile.
type Candidate struct {
	ID              int64  `json:"id"`
	UserID          int64  `json:"user_id"`
	FullName        string `json:"full_name"`
	Bio             string `json:"bio"`
	CurrentPosition string `json:"current_position"`

	YearsOfExperience int       `json:"years_of_experience"`
	Education         Education `json:"highest_education_level,omitempty"`

	DesiredSalaryMin *float64 `json:"desired_salary_min,omitempty"`
	DesiredSalaryMax *float64 `json:"desired_salary_max,omitempty"`
	SalaryCurrency   string   `json:"salary_currency"`

	Province           *Province  `json:"province,omitempty"`
	PreferredProvinces []Province `json:"preferred_provinces"`

	SearchStatus    SearchStatus `json:"job_search_status"`
	IsProfilePublic bool         `json:"is_profile_public"`

	Skills      []CandidateSkill `json:"skills"`
	Experiences []Experience     `json:"experiences"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// AcceptableProvinces returns the home province followed by preferred ones,
// without duplicates.
func (c *Candidate) AcceptableProvinces() []Province {
	seen := make(map[string]bool, len(c.PreferredProvinces)+1)
	out := make([]Province, 0, len(c.PreferredProvinces)+1)
	add := func(p Province) {
		if p.Code == "" || seen[p.Code] {
			return
		}
		seen[p.Code] = true
		out = append(out, p)
	}
	if c.Province != nil {
		add(*c.Province)
	}
	for _, p := range c.PreferredProvinces {
		add(p)
	}
	return out
}
