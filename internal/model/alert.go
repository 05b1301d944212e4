package model

import "time"

// Alert is a candidate-authored persistent query describing desired jobs.
type Alert struct {
	ID          int64          `json:"id"`
	CandidateID int64          `json:"recruiter_id"`
	UserID      int64          `json:"-"`
	Name        string         `json:"alert_name"`
	Keywords    string         `json:"keywords"`
	CategoryID  *int64         `json:"category_id,omitempty"`
	JobType     *JobType       `json:"job_type,omitempty"`
	Level       *Level         `json:"level,omitempty"`
	SalaryMin   *float64       `json:"salary_min,omitempty"`
	SalaryMax   *float64       `json:"salary_max,omitempty"`
	Locations   []Province     `json:"locations"`
	SkillIDs    []int64        `json:"skill_ids"`
	IsActive    bool           `json:"is_active"`
	Frequency   AlertFrequency `json:"frequency"`
	LastSentAt  *time.Time     `json:"last_sent_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// AlertMatch records that a published job met an alert's threshold.
type AlertMatch struct {
	ID        int64     `json:"id"`
	AlertID   int64     `json:"job_alert_id"`
	JobID     int64     `json:"job_id"`
	Score     float64   `json:"score"`
	IsSent    bool      `json:"is_sent"`
	MatchedAt time.Time `json:"matched_at"`

	JobTitle string `json:"job_title,omitempty"`
	JobSlug  string `json:"job_slug,omitempty"`
}
