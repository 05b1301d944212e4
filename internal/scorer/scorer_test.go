package scorer_test

import (
	"math"
	"testing"

	"jobboard/matching-service/internal/model"
	"jobboard/matching-service/internal/scorer"
)

func intp(v int) *int                         { return &v }
func fp(v float64) *float64                   { return &v }
func edu(e model.Education) *model.Education { return &e }

var (
	hcm     = model.Province{ID: 1, Code: "ho_chi_minh"}
	dongNai = model.Province{ID: 2, Code: "dong_nai"}
	haNoi   = model.Province{ID: 3, Code: "ha_noi"}
)

func perfectPair() (*model.Job, *model.Candidate) {
	job := &model.Job{
		ID:            1,
		Title:         "Backend Engineer",
		ExperienceMin: intp(3),
		Province:      &hcm,
		Status:        model.JobPublished,
		Skills: []model.JobSkill{
			{SkillID: 10, Name: "Python", Required: true},
			{SkillID: 11, Name: "Django", Required: true},
		},
	}
	cand := &model.Candidate{
		ID:                2,
		YearsOfExperience: 4,
		Province:          &hcm,
		Skills: []model.CandidateSkill{
			{SkillID: 10, Name: "Python"},
			{SkillID: 11, Name: "Django"},
			{SkillID: 12, Name: "React"},
		},
	}
	return job, cand
}

// ── End-to-end scenarios ───────────────────────────────────────────────────

func TestScore_PerfectSkillMatchNoSalary(t *testing.T) {
	job, cand := perfectPair()

	bundle, details := scorer.Score(job, cand, nil)

	for name, got := range map[string]float64{
		"skill":      bundle.Skill,
		"experience": bundle.Experience,
		"education":  bundle.Education,
		"location":   bundle.Location,
		"salary":     bundle.Salary,
		"overall":    bundle.Overall,
	} {
		if got != 100 {
			t.Errorf("%s = %v, want 100", name, got)
		}
	}
	if details.Weights != scorer.BasicWeights {
		t.Errorf("expected basic weights, got %+v", details.Weights)
	}
	if details.SemanticEnabled || bundle.Semantic != nil {
		t.Error("semantic must be disabled without a semantic result")
	}
}

func TestExperience_OverQualified(t *testing.T) {
	job := &model.Job{ExperienceMin: intp(2), ExperienceMax: intp(4)}
	cand := &model.Candidate{YearsOfExperience: 8}

	got := scorer.Experience(job, cand)
	if got.Score != 80 {
		t.Fatalf("Experience = %v, want 80", got.Score)
	}
}

func TestSalary_GapAgainstExpectation(t *testing.T) {
	job := &model.Job{SalaryMax: fp(15_000_000), SalaryPeriod: model.SalaryMonthly}
	cand := &model.Candidate{DesiredSalaryMin: fp(20_000_000)}

	got := scorer.Salary(job, cand)
	if got.Score != 75 {
		t.Fatalf("Salary = %v, want 75", got.Score)
	}
	if got.Details["direction"] != "below_expectation" {
		t.Errorf("direction = %v", got.Details["direction"])
	}
}

// ── Dimensions ─────────────────────────────────────────────────────────────

func TestSkill(t *testing.T) {
	cases := []struct {
		name string
		req  []model.JobSkill
		have []model.CandidateSkill
		want float64
	}{
		{"no required skills", nil, nil, 100},
		{"optional skills only", []model.JobSkill{{SkillID: 1, Required: false}}, nil, 100},
		{"half", []model.JobSkill{{SkillID: 1, Required: true}, {SkillID: 2, Required: true}},
			[]model.CandidateSkill{{SkillID: 1}}, 50},
		{"none", []model.JobSkill{{SkillID: 1, Required: true}}, []model.CandidateSkill{{SkillID: 9}}, 0},
		{"expert meets advanced", []model.JobSkill{{SkillID: 1, Required: true, Proficiency: model.ProficiencyAdvanced}},
			[]model.CandidateSkill{{SkillID: 1, Proficiency: model.ProficiencyExpert}}, 100},
		{"advanced meets advanced", []model.JobSkill{{SkillID: 1, Required: true, Proficiency: model.ProficiencyAdvanced}},
			[]model.CandidateSkill{{SkillID: 1, Proficiency: model.ProficiencyAdvanced}}, 85},
		{"below required", []model.JobSkill{{SkillID: 1, Required: true, Proficiency: model.ProficiencyExpert}},
			[]model.CandidateSkill{{SkillID: 1, Proficiency: model.ProficiencyIntermediate}}, 50},
		{"level on one side only", []model.JobSkill{{SkillID: 1, Required: true, Proficiency: model.ProficiencyExpert}},
			[]model.CandidateSkill{{SkillID: 1}}, 100},
	}
	for _, tc := range cases {
		got := scorer.Skill(&model.Job{Skills: tc.req}, &model.Candidate{Skills: tc.have})
		if got.Score != tc.want {
			t.Errorf("%s: Skill = %v, want %v", tc.name, got.Score, tc.want)
		}
	}
}

func TestSkill_DetailsAreSorted(t *testing.T) {
	job := &model.Job{Skills: []model.JobSkill{
		{SkillID: 3, Name: "Go", Required: true},
		{SkillID: 1, Name: "Docker", Required: true},
		{SkillID: 2, Name: "AWS", Required: true},
	}}
	cand := &model.Candidate{Skills: []model.CandidateSkill{{SkillID: 3}, {SkillID: 1}}}

	got := scorer.Skill(job, cand)
	matched := got.Details["matched_skills"].([]string)
	if len(matched) != 2 || matched[0] != "Docker" || matched[1] != "Go" {
		t.Fatalf("matched = %v", matched)
	}
	if missing := got.Details["missing_skills"].([]string); len(missing) != 1 || missing[0] != "AWS" {
		t.Fatalf("missing = %v", missing)
	}
}

func TestExperience(t *testing.T) {
	cases := []struct {
		min, max *int
		years    int
		want     float64
	}{
		{nil, nil, 0, 100},
		{intp(3), nil, 3, 100},
		{intp(3), nil, 20, 100},
		{intp(3), nil, 1, 70},
		{intp(10), nil, 0, 0},
		{intp(2), intp(4), 3, 100},
		{intp(2), intp(4), 5, 95},
		{intp(2), intp(4), 30, 60},
		{nil, intp(2), 3, 95},
	}
	for _, tc := range cases {
		got := scorer.Experience(&model.Job{ExperienceMin: tc.min, ExperienceMax: tc.max}, &model.Candidate{YearsOfExperience: tc.years})
		if got.Score != tc.want {
			t.Errorf("Experience(min=%v max=%v years=%d) = %v, want %v", tc.min, tc.max, tc.years, got.Score, tc.want)
		}
	}
}

func TestEducation(t *testing.T) {
	cases := []struct {
		job  *model.Education
		cand model.Education
		want float64
	}{
		{nil, "", 100},
		{edu(model.EducationBachelor), model.EducationMaster, 100},
		{edu(model.EducationBachelor), model.EducationBachelor, 100},
		{edu(model.EducationMaster), model.EducationBachelor, 75},
		{edu(model.EducationPhD), model.EducationHighSchool, 0},
		{edu(model.EducationPhD), "", 0},
	}
	for _, tc := range cases {
		got := scorer.Education(&model.Job{Education: tc.job}, &model.Candidate{Education: tc.cand})
		if got.Score != tc.want {
			t.Errorf("Education(%v, %q) = %v, want %v", tc.job, tc.cand, got.Score, tc.want)
		}
	}
}

func TestLocation(t *testing.T) {
	cases := []struct {
		name string
		job  model.Job
		cand model.Candidate
		want float64
	}{
		{"remote", model.Job{IsRemote: true, Province: &haNoi}, model.Candidate{Province: &hcm}, 100},
		{"same province", model.Job{Province: &hcm}, model.Candidate{Province: &hcm}, 100},
		{"preferred province", model.Job{Province: &haNoi}, model.Candidate{Province: &hcm, PreferredProvinces: []model.Province{haNoi}}, 100},
		{"same region", model.Job{Province: &dongNai}, model.Candidate{Province: &hcm}, 60},
		{"different region", model.Job{Province: &haNoi}, model.Candidate{Province: &hcm}, 0},
		{"job location unknown", model.Job{}, model.Candidate{Province: &hcm}, 50},
		{"candidate location unknown", model.Job{Province: &hcm}, model.Candidate{}, 50},
	}
	for _, tc := range cases {
		got := scorer.Location(&tc.job, &tc.cand)
		if got.Score != tc.want {
			t.Errorf("%s: Location = %v, want %v", tc.name, got.Score, tc.want)
		}
	}
}

func TestRegionOf(t *testing.T) {
	if scorer.RegionOf(" HO_CHI_MINH ") != scorer.RegionSouth {
		t.Error("expected south for ho_chi_minh")
	}
	if scorer.RegionOf("atlantis") != "" {
		t.Error("expected empty region for unknown code")
	}
}

func TestSalary(t *testing.T) {
	cases := []struct {
		name string
		job  model.Job
		cand model.Candidate
		want float64
	}{
		{"nothing specified", model.Job{}, model.Candidate{}, 100},
		{"job only", model.Job{SalaryMin: fp(10)}, model.Candidate{}, 100},
		{"overlap", model.Job{SalaryMin: fp(10), SalaryMax: fp(20)}, model.Candidate{DesiredSalaryMin: fp(15), DesiredSalaryMax: fp(30)}, 100},
		{"open ends overlap", model.Job{SalaryMin: fp(10)}, model.Candidate{DesiredSalaryMax: fp(12)}, 100},
		{"job above candidate max", model.Job{SalaryMin: fp(30)}, model.Candidate{DesiredSalaryMin: fp(10), DesiredSalaryMax: fp(20)}, 66.67},
		{"far below", model.Job{SalaryMax: fp(1)}, model.Candidate{DesiredSalaryMin: fp(100)}, 1},
		{"yearly converted", model.Job{SalaryMin: fp(240), SalaryMax: fp(360), SalaryPeriod: model.SalaryYearly}, model.Candidate{DesiredSalaryMin: fp(20), DesiredSalaryMax: fp(25)}, 100},
		{"currency mismatch", model.Job{SalaryMin: fp(1000), SalaryCurrency: "USD"}, model.Candidate{DesiredSalaryMin: fp(1000), SalaryCurrency: "vnd"}, 50},
	}
	for _, tc := range cases {
		got := scorer.Salary(&tc.job, &tc.cand)
		if got.Score != tc.want {
			t.Errorf("%s: Salary = %v, want %v", tc.name, got.Score, tc.want)
		}
	}
}

// ── Semantic ───────────────────────────────────────────────────────────────

func TestSemanticScore(t *testing.T) {
	if s, ok := scorer.SemanticScore([]float32{1, 0}, []float32{1, 0}); !ok || s != 100 {
		t.Errorf("identical vectors = %v, %v", s, ok)
	}
	if s, ok := scorer.SemanticScore([]float32{1, 0}, []float32{-1, 0}); !ok || s != 0 {
		t.Errorf("opposite vectors = %v, %v", s, ok)
	}
	if s, ok := scorer.SemanticScore([]float32{1, 0}, []float32{1, 1}); !ok || s != 70.71 {
		t.Errorf("45 degrees = %v, %v", s, ok)
	}
	if _, ok := scorer.SemanticScore([]float32{1}, []float32{1, 0}); ok {
		t.Error("length mismatch must be invalid")
	}
	if _, ok := scorer.SemanticScore([]float32{0, 0}, []float32{1, 0}); ok {
		t.Error("zero vector must be invalid")
	}
}

func TestScore_SemanticSelectsSecondTable(t *testing.T) {
	job, cand := perfectPair()
	bundle, details := scorer.Score(job, cand, &model.SemanticResult{Score: 40, IsSemantic: true, Model: "mock"})

	if details.Weights != scorer.SemanticWeights || !details.SemanticEnabled {
		t.Fatalf("expected semantic weights, got %+v", details.Weights)
	}
	// 0.75 · 100 + 0.25 · 40
	if bundle.Overall != 85 {
		t.Fatalf("Overall = %v, want 85", bundle.Overall)
	}
}

func TestScore_FailedSemanticFallsBack(t *testing.T) {
	job, cand := perfectPair()
	_, details := scorer.Score(job, cand, &model.SemanticResult{IsSemantic: false, Reason: "timeout"})

	if details.Weights != scorer.BasicWeights || details.SemanticEnabled {
		t.Fatalf("expected basic weights after failed semantic, got %+v", details.Weights)
	}
	if details.Semantic == nil || details.Semantic.Reason != "timeout" {
		t.Fatal("semantic attempt should still be recorded")
	}
}

// ── Properties ─────────────────────────────────────────────────────────────

func TestWeightTablesSumToOne(t *testing.T) {
	for name, w := range map[string]model.Weights{"basic": scorer.BasicWeights, "semantic": scorer.SemanticWeights} {
		sum := w.Skill + w.Experience + w.Education + w.Location + w.Salary + w.Semantic
		if math.Abs(sum-1) > 1e-9 {
			t.Errorf("%s weights sum to %v", name, sum)
		}
	}
}

// Sub-scores stay in range and the overall equals the weighted sum of the
// stored sub-scores within 0.01, across a grid of inputs.
func TestScore_BoundsAndWeightedSum(t *testing.T) {
	years := []int{-1, 0, 2, 5, 40}
	salaries := []*float64{nil, fp(0), fp(5_000_000), fp(50_000_000)}
	semantics := []*model.SemanticResult{nil, {Score: 150, IsSemantic: true}, {Score: -3, IsSemantic: true}}

	for _, y := range years {
		for _, s := range salaries {
			for _, sem := range semantics {
				job, cand := perfectPair()
				job.ExperienceMax = intp(4)
				job.SalaryMax = s
				job.Education = edu(model.EducationPhD)
				cand.YearsOfExperience = y
				cand.DesiredSalaryMin = fp(20_000_000)

				b, d := scorer.Score(job, cand, sem)
				subs := []float64{b.Skill, b.Experience, b.Education, b.Location, b.Salary, b.Overall}
				if b.Semantic != nil {
					subs = append(subs, *b.Semantic)
				}
				for _, v := range subs {
					if v < 0 || v > 100 {
						t.Fatalf("score %v out of range (years=%d salary=%v sem=%v)", v, y, s, sem)
					}
				}

				w := d.Weights
				sum := w.Skill*b.Skill + w.Experience*b.Experience + w.Education*b.Education +
					w.Location*b.Location + w.Salary*b.Salary
				if b.Semantic != nil {
					sum += w.Semantic * *b.Semantic
				}
				if math.Abs(sum-b.Overall) > 0.01 {
					t.Fatalf("overall %v differs from weighted sum %v", b.Overall, sum)
				}
			}
		}
	}
}

func TestRound2(t *testing.T) {
	cases := map[float64]float64{
		80.125:  80.13,
		66.6666: 66.67,
		0.004:   0,
		99.995:  100,
	}
	for in, want := range cases {
		if got := scorer.Round2(in); got != want {
			t.Errorf("Round2(%v) = %v, want %v", in, got, want)
		}
	}
}

// ── Text rendering ─────────────────────────────────────────────────────────

func TestTexts(t *testing.T) {
	job := &model.Job{Title: "Go Dev", Description: "  APIs ", Requirements: ""}
	if got := scorer.JobText(job); got != "Job Title: Go Dev\nDescription: APIs" {
		t.Errorf("JobText = %q", got)
	}

	cand := &model.Candidate{
		CurrentPosition: "Engineer",
		Experiences:     []model.Experience{{Title: "SWE", Company: "Acme", Description: "payments"}},
	}
	if got := scorer.CandidateText(cand); got != "Position: Engineer\nExperience: SWE at Acme: payments" {
		t.Errorf("CandidateText = %q", got)
	}
	if scorer.CandidateText(&model.Candidate{}) != "" {
		t.Error("empty candidate must render empty text")
	}
}
