// Package model holds the domain entities shared across the matching engine.
// String enums keep their on-wire representation; Parse* functions reject
// unknown values at the boundary.
package model

import "fmt"

// JobStatus mirrors the jobs.status column.
type JobStatus string

const (
	JobDraft     JobStatus = "draft"
	JobPublished JobStatus = "published"
	JobClosed    JobStatus = "closed"
	JobExpired   JobStatus = "expired"
)

// ParseJobStatus converts a raw string to a JobStatus.
func ParseJobStatus(s string) (JobStatus, error) {
	st := JobStatus(s)
	switch st {
	case JobDraft, JobPublished, JobClosed, JobExpired:
		return st, nil
	}
	return "", fmt.Errorf("unknown job status %q", s)
}

// JobType mirrors jobs.job_type and job_alerts.job_type.
type JobType string

const (
	JobTypeFullTime   JobType = "full-time"
	JobTypePartTime   JobType = "part-time"
	JobTypeContract   JobType = "contract"
	JobTypeInternship JobType = "internship"
	JobTypeFreelance  JobType = "freelance"
)

// ParseJobType converts a raw string to a JobType.
func ParseJobType(s string) (JobType, error) {
	jt := JobType(s)
	switch jt {
	case JobTypeFullTime, JobTypePartTime, JobTypeContract, JobTypeInternship, JobTypeFreelance:
		return jt, nil
	}
	return "", fmt.Errorf("unknown job type %q", s)
}

// Level is the seniority of a job or the level an alert asks for.
type Level string

const (
	LevelIntern   Level = "intern"
	LevelFresher  Level = "fresher"
	LevelJunior   Level = "junior"
	LevelMiddle   Level = "middle"
	LevelSenior   Level = "senior"
	LevelLead     Level = "lead"
	LevelManager  Level = "manager"
	LevelDirector Level = "director"
)

// ParseLevel converts a raw string to a Level.
func ParseLevel(s string) (Level, error) {
	l := Level(s)
	switch l {
	case LevelIntern, LevelFresher, LevelJunior, LevelMiddle, LevelSenior, LevelLead, LevelManager, LevelDirector:
		return l, nil
	}
	return "", fmt.Errorf("unknown level %q", s)
}

// SalaryPeriod is the basis a salary figure is quoted on.
type SalaryPeriod string

const (
	SalaryMonthly SalaryPeriod = "monthly"
	SalaryYearly  SalaryPeriod = "yearly"
	SalaryHourly  SalaryPeriod = "hourly"
	SalaryProject SalaryPeriod = "project"
)

// HoursPerMonth converts hourly rates to a monthly figure (22 days of 8 hours).
const HoursPerMonth = 176

// Monthly converts an amount quoted on period p to a monthly amount.
// Project and unknown periods are taken at face value.
func (p SalaryPeriod) Monthly(amount float64) float64 {
	switch p {
	case SalaryYearly:
		return amount / 12
	case SalaryHourly:
		return amount * HoursPerMonth
	}
	return amount
}

// Education is the highest completed education level.
type Education string

const (
	EducationHighSchool Education = "high_school"
	EducationAssociate  Education = "associate"
	EducationBachelor   Education = "bachelor"
	EducationMaster     Education = "master"
	EducationPhD        Education = "phd"
)

var educationRank = map[Education]int{
	EducationHighSchool: 1,
	EducationAssociate:  2,
	EducationBachelor:   3,
	EducationMaster:     4,
	EducationPhD:        5,
}

// Rank returns the ordinal of e, or 0 when e is empty or unknown.
func (e Education) Rank() int { return educationRank[e] }

// Proficiency is a skill level on either side of a match.
type Proficiency string

const (
	ProficiencyBasic        Proficiency = "basic"
	ProficiencyIntermediate Proficiency = "intermediate"
	ProficiencyAdvanced     Proficiency = "advanced"
	ProficiencyExpert       Proficiency = "expert"
)

var proficiencyRank = map[Proficiency]int{
	ProficiencyBasic:        1,
	ProficiencyIntermediate: 2,
	ProficiencyAdvanced:     3,
	ProficiencyExpert:       4,
}

// Rank returns the ordinal of p, or 0 when p is empty or unknown.
func (p Proficiency) Rank() int { return proficiencyRank[p] }

// SearchStatus is a candidate's job_search_status.
type SearchStatus string

const (
	SearchActive     SearchStatus = "active"
	SearchPassive    SearchStatus = "passive"
	SearchNotLooking SearchStatus = "not_looking"
)

// AlertFrequency is how often an alert owner wants to hear about matches.
type AlertFrequency string

const (
	FrequencyInstant AlertFrequency = "instant"
	FrequencyDaily   AlertFrequency = "daily"
	FrequencyWeekly  AlertFrequency = "weekly"
)

// ParseAlertFrequency converts a raw string to an AlertFrequency.
func ParseAlertFrequency(s string) (AlertFrequency, error) {
	f := AlertFrequency(s)
	switch f {
	case FrequencyInstant, FrequencyDaily, FrequencyWeekly:
		return f, nil
	}
	return "", fmt.Errorf("unknown alert frequency %q", s)
}
