package model

import "time"

// Province is a first-level administrative region, identified by a stable code
// such as "ho_chi_minh".
type Province struct {
	ID   int64  `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

// JobSkill links a job to a skill. Only required skills count for scoring.
type JobSkill struct {
	SkillID     int64       `json:"skill_id"`
	Name        string      `json:"name"`
	Proficiency Proficiency `json:"proficiency_level,omitempty"`
	Required    bool        `json:"is_required"`
}

// Job is the read model of a posting with everything scoring needs.
type Job struct {
	ID           int64  `json:"id"`
	CompanyID    int64  `json:"company_id"`
	CompanyName  string `json:"company_name"`
	Title        string `json:"title"`
	Slug         string `json:"slug"`
	Description  string `json:"description"`
	Requirements string `json:"requirements"`
	Benefits     string `json:"benefits"`

	CategoryID *int64  `json:"category_id,omitempty"`
	JobType    JobType `json:"job_type"`
	Level      Level   `json:"level"`

	SalaryMin      *float64     `json:"salary_min,omitempty"`
	SalaryMax      *float64     `json:"salary_max,omitempty"`
	SalaryCurrency string       `json:"salary_currency"`
	SalaryPeriod   SalaryPeriod `json:"salary_type"`

	ExperienceMin *int       `json:"experience_years_min,omitempty"`
	ExperienceMax *int       `json:"experience_years_max,omitempty"`
	Education     *Education `json:"education_level,omitempty"`

	IsRemote bool      `json:"is_remote"`
	Province *Province `json:"province,omitempty"`

	Status           JobStatus  `json:"status"`
	PublishedAt      *time.Time `json:"published_at,omitempty"`
	ViewCount        int        `json:"view_count"`
	ApplicationCount int        `json:"application_count"`

	Skills    []JobSkill `json:"skills"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// RequiredSkills returns the skills the job requires.
func (j *Job) RequiredSkills() []JobSkill {
	out := make([]JobSkill, 0, len(j.Skills))
	for _, s := range j.Skills {
		if s.Required {
			out = append(out, s)
		}
	}
	return out
}

// IsPublished reports whether the job participates in matching and alerting.
func (j *Job) IsPublished() bool { return j.Status == JobPublished }
