package matching

import (
	"context"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"jobboard/matching-service/internal/apperr"
	"jobboard/matching-service/internal/logger"
	"jobboard/matching-service/internal/model"
	"jobboard/matching-service/internal/oracle"
	"jobboard/matching-service/internal/scorer"
)

// Notes is the qualitative part of an Analysis.
type Notes struct {
	Pros          []string `json:"pros"`
	Cons          []string `json:"cons"`
	MissingSkills []string `json:"missing_skills"`
	Summary       string   `json:"summary"`
}

// Analysis is a generated assessment of one pair. It is returned to the
// caller and never persisted.
type Analysis struct {
	JobID       int64   `json:"job_id"`
	CandidateID int64   `json:"recruiter_id"`
	Overall     float64 `json:"overall_score"`
	Skill       float64 `json:"skill_match_score"`
	Experience  float64 `json:"experience_match_score"`
	Education   float64 `json:"education_match_score"`
	Location    float64 `json:"location_match_score"`
	Salary      float64 `json:"salary_match_score"`
	Notes       Notes   `json:"analysis"`
}

var analysisSchema = func() *oracle.Schema {
	number := func(desc string) *oracle.Schema {
		return &oracle.Schema{Type: oracle.TypeNumber, Description: desc}
	}
	list := &oracle.Schema{Type: oracle.TypeArray, Items: &oracle.Schema{Type: oracle.TypeString}}
	return &oracle.Schema{
		Type: oracle.TypeObject,
		Properties: map[string]*oracle.Schema{
			"overall_score":          number("Overall match score from 0 to 100"),
			"skill_match_score":      number("Skill match score from 0 to 100"),
			"experience_match_score": number("Experience match score from 0 to 100"),
			"education_match_score":  number("Education match score from 0 to 100"),
			"location_match_score":   number("Location match score from 0 to 100"),
			"salary_match_score":     number("Salary match score from 0 to 100"),
			"analysis": {
				Type: oracle.TypeObject,
				Properties: map[string]*oracle.Schema{
					"pros":           list,
					"cons":           list,
					"missing_skills": list,
					"summary":        {Type: oracle.TypeString},
				},
			},
		},
		Required: []string{
			"overall_score",
			"skill_match_score",
			"experience_match_score",
			"education_match_score",
			"location_match_score",
			"salary_match_score",
			"analysis",
		},
	}
}()

// Analyze asks the generation model for a structured assessment of the pair.
func (s *Service) Analyze(ctx context.Context, jobID, candidateID int64) (*Analysis, error) {
	if oracle.IsDisabled(s.oracle) {
		return nil, apperr.Unavailable("oracle", fmt.Errorf("no generation provider configured"))
	}

	job, err := s.catalog.Job(ctx, jobID)
	if err != nil {
		return nil, err
	}
	cand, err := s.catalog.Candidate(ctx, candidateID)
	if err != nil {
		return nil, err
	}

	raw, err := s.oracle.GenerateJSON(ctx, analysisPrompt(job, cand), analysisSchema)
	if err != nil {
		s.log.Warn("analysis generation failed",
			append(logger.EntityFields(jobID, candidateID), zap.Error(err))...)
		return nil, err
	}

	a, err := decodeAnalysis(raw)
	if err != nil {
		return nil, apperr.Unavailable("oracle", err)
	}
	a.JobID = jobID
	a.CandidateID = candidateID
	return a, nil
}

func decodeAnalysis(raw map[string]any) (*Analysis, error) {
	var a Analysis
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Metadata:         nil,
		Result:           &a,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("decode analysis: %w", err)
	}

	for _, v := range []*float64{&a.Overall, &a.Skill, &a.Experience, &a.Education, &a.Location, &a.Salary} {
		*v = scorer.Round2(scorer.Clamp(*v))
	}
	return &a, nil
}

func analysisPrompt(job *model.Job, cand *model.Candidate) string {
	var b strings.Builder
	b.WriteString("Act as an expert recruitment assistant. Analyze how well the candidate profile matches the job.\n\n")

	b.WriteString("JOB DETAILS:\n")
	fmt.Fprintf(&b, "Title: %s\n", job.Title)
	fmt.Fprintf(&b, "Level: %s\nType: %s\n", job.Level, job.JobType)
	fmt.Fprintf(&b, "Experience: %s - %s years\n", intOr(job.ExperienceMin, "0"), intOr(job.ExperienceMax, "unlimited"))
	fmt.Fprintf(&b, "Salary: %s - %s %s\n", floatOr(job.SalaryMin, "0"), floatOr(job.SalaryMax, "negotiable"), job.SalaryCurrency)
	if job.Province != nil {
		fmt.Fprintf(&b, "Location: %s\n", job.Province.Name)
	}
	names := make([]string, 0, len(job.Skills))
	for _, sk := range job.RequiredSkills() {
		names = append(names, sk.Name)
	}
	fmt.Fprintf(&b, "Required skills: %s\n", strings.Join(names, ", "))
	fmt.Fprintf(&b, "Description: %s\nRequirements: %s\n\n", job.Description, job.Requirements)

	b.WriteString("CANDIDATE PROFILE:\n")
	fmt.Fprintf(&b, "Current position: %s\nBio: %s\n", cand.CurrentPosition, cand.Bio)
	fmt.Fprintf(&b, "Years of experience: %d\nEducation level: %s\n", cand.YearsOfExperience, cand.Education)
	fmt.Fprintf(&b, "Desired salary: %s - %s\n", floatOr(cand.DesiredSalaryMin, "0"), floatOr(cand.DesiredSalaryMax, "any"))
	for _, e := range cand.Experiences {
		fmt.Fprintf(&b, "- %s at %s\n", e.Title, e.Company)
	}
	names = names[:0]
	for _, sk := range cand.Skills {
		names = append(names, sk.Name)
	}
	fmt.Fprintf(&b, "Skills: %s\n\n", strings.Join(names, ", "))

	b.WriteString("Score skills, experience, education, location and salary from 0 to 100, ")
	b.WriteString("give an overall score, and list pros, cons and missing skills with a short summary.")
	return b.String()
}

func intOr(v *int, def string) string {
	if v == nil {
		return def
	}
	return fmt.Sprint(*v)
}

func floatOr(v *float64, def string) string {
	if v == nil {
		return def
	}
	return fmt.Sprintf("%.0f", *v)
}
