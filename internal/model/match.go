package model

import "time"

// Dimension names used as keys in weight tables and details.
const (
	DimSkill      = "skill"
	DimExperience = "experience"
	DimEducation  = "education"
	DimLocation   = "location"
	DimSalary     = "salary"
	DimSemantic   = "semantic"
)

// Weights is one weight table. Semantic is zero in the basic table.
type Weights struct {
	Skill      float64 `json:"skill"`
	Experience float64 `json:"experience"`
	Education  float64 `json:"education"`
	Location   float64 `json:"location"`
	Salary     float64 `json:"salary"`
	Semantic   float64 `json:"semantic,omitempty"`
}

// DimensionResult is the rationale stored for one dimension.
type DimensionResult struct {
	Score   float64        `json:"score"`
	Status  string         `json:"status"`
	Details map[string]any `json:"details,omitempty"`
}

// SemanticResult records the embedding comparison, when it ran.
type SemanticResult struct {
	Score      float64 `json:"score"`
	IsSemantic bool    `json:"is_semantic"`
	Model      string  `json:"model,omitempty"`
	Reason     string  `json:"reason,omitempty"`
}

// MatchDetails is the details blob persisted next to the numeric columns.
type MatchDetails struct {
	Skill           DimensionResult `json:"skill"`
	Experience      DimensionResult `json:"experience"`
	Education       DimensionResult `json:"education"`
	Location        DimensionResult `json:"location"`
	Salary          DimensionResult `json:"salary"`
	Semantic        *SemanticResult `json:"semantic,omitempty"`
	Weights         Weights         `json:"weights"`
	SemanticEnabled bool            `json:"semantic_enabled"`
}

// ScoreBundle is the numeric output of one scoring run.
type ScoreBundle struct {
	Overall    float64  `json:"overall_score"`
	Skill      float64  `json:"skill_match_score"`
	Experience float64  `json:"experience_match_score"`
	Education  float64  `json:"education_match_score"`
	Location   float64  `json:"location_match_score"`
	Salary     float64  `json:"salary_match_score"`
	Semantic   *float64 `json:"semantic_match_score,omitempty"`
}

// MatchScore is a persisted fit score for a (job, candidate) pair.
type MatchScore struct {
	ID          int64 `json:"id"`
	JobID       int64 `json:"job_id"`
	CandidateID int64 `json:"recruiter_id"`
	ScoreBundle
	Details      MatchDetails `json:"matching_details"`
	CalculatedAt time.Time    `json:"calculated_at"`
	IsValid      bool         `json:"is_valid"`

	// Populated by list queries that join the job.
	JobTitle  string    `json:"job_title,omitempty"`
	JobStatus JobStatus `json:"job_status,omitempty"`
}

// ScoreState is the lifecycle of a MatchScore row.
type ScoreState string

const (
	ScoreCurrent     ScoreState = "current"
	ScoreInvalidated ScoreState = "invalidated"
)

// State reports whether the row still reflects live entities. Invalidated
// rows are never re-enabled except by a fresh upsert.
func (m *MatchScore) State() ScoreState {
	if m.IsValid {
		return ScoreCurrent
	}
	return ScoreInvalidated
}

// Aggregate is the insight summary over a filtered set of valid scores.
type Aggregate struct {
	Summary struct {
		TotalMatches int     `json:"total_matches"`
		AvgOverall   float64 `json:"avg_overall_score"`
		MaxOverall   float64 `json:"max_overall_score"`
		MinOverall   float64 `json:"min_overall_score"`
	} `json:"summary"`
	Distribution struct {
		High   int `json:"high"`
		Medium int `json:"medium"`
		Low    int `json:"low"`
	} `json:"score_distribution"`
	ComponentAverages map[string]float64 `json:"component_averages"`
	FiltersApplied    struct {
		JobID       *int64 `json:"job_id"`
		CandidateID *int64 `json:"recruiter_id"`
	} `json:"filters_applied"`
}
