package matching

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"jobboard/matching-service/internal/analytics"
	"jobboard/matching-service/internal/apperr"
	"jobboard/matching-service/internal/matchstore"
	"jobboard/matching-service/internal/model"
	"jobboard/matching-service/internal/oracle"
	"jobboard/matching-service/internal/scorer"
	"jobboard/matching-service/internal/settings"
)

// ── Fakes ──────────────────────────────────────────────────────────────────

type fakeCatalog struct {
	jobs       map[int64]*model.Job
	candidates map[int64]*model.Candidate
	err        error
}

func (c *fakeCatalog) Job(_ context.Context, id int64) (*model.Job, error) {
	if c.err != nil {
		return nil, c.err
	}
	j, ok := c.jobs[id]
	if !ok {
		return nil, apperr.Missing("job", id)
	}
	return j, nil
}

func (c *fakeCatalog) Candidate(_ context.Context, id int64) (*model.Candidate, error) {
	cand, ok := c.candidates[id]
	if !ok {
		return nil, apperr.Missing("recruiter", id)
	}
	return cand, nil
}

type fakeScores struct {
	mu        sync.Mutex
	rows      map[matchstore.Pair]*model.MatchScore
	nextID    int64
	upsertErr error
	upserts   int
}

func newFakeScores() *fakeScores {
	return &fakeScores{rows: map[matchstore.Pair]*model.MatchScore{}}
}

func (f *fakeScores) Upsert(_ context.Context, jobID, candidateID int64, b model.ScoreBundle, d model.MatchDetails) (*model.MatchScore, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	if f.upsertErr != nil {
		return nil, f.upsertErr
	}
	key := matchstore.Pair{JobID: jobID, CandidateID: candidateID}
	row, ok := f.rows[key]
	if !ok {
		f.nextID++
		row = &model.MatchScore{ID: f.nextID, JobID: jobID, CandidateID: candidateID}
		f.rows[key] = row
	}
	row.ScoreBundle = b
	row.Details = d
	row.IsValid = true
	row.CalculatedAt = time.Now()
	out := *row
	return &out, nil
}

func (f *fakeScores) Get(_ context.Context, jobID, candidateID int64) (*model.MatchScore, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[matchstore.Pair{JobID: jobID, CandidateID: candidateID}]
	if !ok {
		return nil, apperr.Missing("match score", jobID)
	}
	out := *row
	return &out, nil
}

func (f *fakeScores) Pairs(_ context.Context, flt matchstore.Filter) ([]matchstore.Pair, error) {
	if flt.Empty() {
		return nil, apperr.Validation("job_id or recruiter_id is required")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []matchstore.Pair
	for p, row := range f.rows {
		if !row.IsValid {
			continue
		}
		if flt.JobID != nil && *flt.JobID != p.JobID {
			continue
		}
		if flt.CandidateID != nil && *flt.CandidateID != p.CandidateID {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeScores) Invalidate(_ context.Context, flt matchstore.Filter) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for p, row := range f.rows {
		if flt.JobID != nil && *flt.JobID != p.JobID {
			continue
		}
		if flt.CandidateID != nil && *flt.CandidateID != p.CandidateID {
			continue
		}
		if row.IsValid {
			row.IsValid = false
			n++
		}
	}
	return n, nil
}

type fakeOracle struct {
	vectors map[string][]float32
	err     error
	calls   int
	result  map[string]any
}

func (o *fakeOracle) Model() string { return "fake-embed" }

func (o *fakeOracle) Embed(_ context.Context, text string) ([]float32, error) {
	o.calls++
	if o.err != nil {
		return nil, o.err
	}
	if v, ok := o.vectors[text]; ok {
		return v, nil
	}
	return []float32{1, 0, 0}, nil
}

func (o *fakeOracle) GenerateJSON(context.Context, string, *oracle.Schema) (map[string]any, error) {
	if o.err != nil {
		return nil, o.err
	}
	return o.result, nil
}

type recorder struct {
	mu     sync.Mutex
	events []analytics.Event
}

func (r *recorder) Record(e analytics.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func intp(v int) *int { return &v }

var hcm = model.Province{ID: 1, Code: "ho_chi_minh", Name: "Ho Chi Minh"}

func fixture() *fakeCatalog {
	return &fakeCatalog{
		jobs: map[int64]*model.Job{
			1: {
				ID:            1,
				Title:         "Backend Engineer",
				Description:   "Build APIs",
				ExperienceMin: intp(3),
				Province:      &hcm,
				Status:        model.JobPublished,
				Skills: []model.JobSkill{
					{SkillID: 10, Name: "Python", Required: true},
					{SkillID: 11, Name: "Django", Required: true},
				},
			},
		},
		candidates: map[int64]*model.Candidate{
			2: {
				ID:                2,
				CurrentPosition:   "Python developer",
				YearsOfExperience: 4,
				Province:          &hcm,
				Skills: []model.CandidateSkill{
					{SkillID: 10, Name: "Python"},
					{SkillID: 11, Name: "Django"},
					{SkillID: 12, Name: "React"},
				},
			},
			3: {
				ID:                3,
				YearsOfExperience: 1,
				Skills:            []model.CandidateSkill{{SkillID: 10, Name: "Python"}},
			},
		},
	}
}

func newService(cat *fakeCatalog, scores *fakeScores, o oracle.Oracle, semantic bool) (*Service, *recorder) {
	rec := &recorder{}
	return New(Deps{
		Catalog:  cat,
		Scores:   scores,
		Oracle:   o,
		Knobs:    StaticKnobs(settings.Knobs{SemanticEnabled: semantic}),
		Events:   rec,
		BatchMax: 3,
		Logger:   zap.NewNop(),
	}), rec
}

// ── Compute ────────────────────────────────────────────────────────────────

func TestCompute_PerfectMatch(t *testing.T) {
	scores := newFakeScores()
	svc, rec := newService(fixture(), scores, nil, false)

	ms, err := svc.Compute(context.Background(), 1, 2)
	if err != nil {
		t.Fatalf("Compute returned unexpected error: %v", err)
	}
	if ms.Overall != 100 {
		t.Errorf("Overall = %v, want 100", ms.Overall)
	}
	if ms.Details.Weights != scorer.BasicWeights || ms.Semantic != nil {
		t.Errorf("expected basic weights without semantic, got %+v", ms.Details)
	}
	if len(rec.events) != 1 || rec.events[0].Source != SourceCompute {
		t.Errorf("unexpected analytics events %+v", rec.events)
	}
}

func TestCompute_MissingEntities(t *testing.T) {
	svc, _ := newService(fixture(), newFakeScores(), nil, false)

	cases := []struct {
		name      string
		job, cand int64
	}{
		{"missing job", 99, 2},
		{"missing candidate", 1, 99},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Compute(context.Background(), tc.job, tc.cand)
			if !errors.Is(err, apperr.ErrEntityMissing) {
				t.Fatalf("err = %v, want entity missing", err)
			}
		})
	}
}

func TestCompute_UpsertIsIdempotentPerPair(t *testing.T) {
	scores := newFakeScores()
	svc, _ := newService(fixture(), scores, nil, false)
	for i := 0; i < 3; i++ {
		if _, err := svc.Compute(context.Background(), 1, 2); err != nil {
			t.Fatal(err)
		}
	}
	if len(scores.rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(scores.rows))
	}
}

// ── Semantic ───────────────────────────────────────────────────────────────

func TestCompute_SemanticSelectsSecondTable(t *testing.T) {
	o := &fakeOracle{}
	svc, rec := newService(fixture(), newFakeScores(), o, true)

	ms, err := svc.Compute(context.Background(), 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if ms.Semantic == nil || *ms.Semantic != 100 {
		t.Fatalf("Semantic = %v, want 100", ms.Semantic)
	}
	if ms.Details.Weights != scorer.SemanticWeights || !ms.Details.SemanticEnabled {
		t.Errorf("expected semantic weights, got %+v", ms.Details.Weights)
	}
	if ms.Details.Semantic.Model != "fake-embed" {
		t.Errorf("model = %q", ms.Details.Semantic.Model)
	}
	if !rec.events[0].SemanticUsed {
		t.Error("analytics event must flag semantic use")
	}
	if o.calls != 2 {
		t.Errorf("oracle calls = %d, want 2", o.calls)
	}
}

func TestCompute_SemanticDisabledSkipsOracle(t *testing.T) {
	o := &fakeOracle{}
	svc, _ := newService(fixture(), newFakeScores(), o, false)
	if _, err := svc.Compute(context.Background(), 1, 2); err != nil {
		t.Fatal(err)
	}
	if o.calls != 0 {
		t.Fatalf("oracle consulted %d times with semantic disabled", o.calls)
	}
}

func TestCompute_SemanticFallbacks(t *testing.T) {
	cases := []struct {
		name   string
		oracle *fakeOracle
		candID int64
		reason string
	}{
		{
			name:   "provider failure",
			oracle: &fakeOracle{err: apperr.Unavailable("gemini", errors.New("quota"))},
			candID: 2,
			reason: ReasonProviderUnavailable,
		},
		{
			name:   "no candidate text",
			oracle: &fakeOracle{},
			candID: 3,
			reason: ReasonInsufficientData,
		},
		{
			name: "zero vector",
			oracle: &fakeOracle{vectors: map[string][]float32{
				"Position: Python developer": {0, 0, 0},
			}},
			candID: 2,
			reason: ReasonInvalidVectors,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, _ := newService(fixture(), newFakeScores(), tc.oracle, true)
			ms, err := svc.Compute(context.Background(), 1, tc.candID)
			if err != nil {
				t.Fatalf("semantic problems must not fail Compute: %v", err)
			}
			if ms.Semantic != nil || ms.Details.Weights != scorer.BasicWeights {
				t.Errorf("expected basic weights, got %+v", ms.Details.Weights)
			}
			if ms.Details.Semantic == nil || ms.Details.Semantic.Reason != tc.reason {
				t.Errorf("semantic details = %+v, want reason %s", ms.Details.Semantic, tc.reason)
			}
		})
	}
}

func TestCompute_ProviderFailureLogsWarning(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	svc := New(Deps{
		Catalog: fixture(),
		Scores:  newFakeScores(),
		Oracle:  &fakeOracle{err: errors.New("timeout")},
		Knobs:   StaticKnobs(settings.Knobs{SemanticEnabled: true}),
		Logger:  zap.New(core),
	})
	if _, err := svc.Compute(context.Background(), 1, 2); err != nil {
		t.Fatal(err)
	}
	if logs.FilterMessage("semantic score dropped").Len() != 1 {
		t.Fatalf("expected one warning, got %v", logs.All())
	}
}

// ── BatchCompute ───────────────────────────────────────────────────────────

func TestBatchCompute_SkipsMissingCandidates(t *testing.T) {
	scores := newFakeScores()
	var txCalls int
	svc, rec := newService(fixture(), scores, nil, false)
	svc.inTx = func(ctx context.Context, fn func(Scores) error) error {
		txCalls++
		return fn(scores)
	}

	res, err := svc.BatchCompute(context.Background(), 1, []int64{2, 99, 2})
	if err != nil {
		t.Fatalf("BatchCompute returned unexpected error: %v", err)
	}
	if res.Requested != 3 || res.Calculated != 1 || res.Skipped != 1 {
		t.Errorf("unexpected counts %+v", res)
	}
	if scores.upserts != 1 {
		t.Errorf("upserts = %d, want 1 after dedupe", scores.upserts)
	}
	if txCalls != 1 {
		t.Errorf("transactions = %d, want 1", txCalls)
	}
	if len(rec.events) != 1 || rec.events[0].Source != SourceBatch {
		t.Errorf("unexpected events %+v", rec.events)
	}
}

func TestBatchCompute_CapCountsRawIDs(t *testing.T) {
	svc, _ := newService(fixture(), newFakeScores(), nil, false)
	res, err := svc.BatchCompute(context.Background(), 1, []int64{2, 3, 3})
	if err != nil {
		t.Fatalf("BatchCompute returned unexpected error: %v", err)
	}
	if res.Requested != 3 || res.Calculated != 2 || res.Skipped != 0 {
		t.Errorf("unexpected counts %+v", res)
	}
	if _, err := svc.BatchCompute(context.Background(), 1, []int64{2, 2, 2, 2}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("err = %v, want validation for four raw ids", err)
	}
}

func TestBatchCompute_Validation(t *testing.T) {
	svc, _ := newService(fixture(), newFakeScores(), nil, false)
	for name, ids := range map[string][]int64{
		"empty":    nil,
		"over cap": {1, 2, 3, 4},
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := svc.BatchCompute(context.Background(), 1, ids); !errors.Is(err, apperr.ErrValidation) {
				t.Fatalf("err = %v, want validation", err)
			}
		})
	}
}

func TestBatchCompute_MissingJob(t *testing.T) {
	svc, _ := newService(fixture(), newFakeScores(), nil, false)
	if _, err := svc.BatchCompute(context.Background(), 99, []int64{2}); !errors.Is(err, apperr.ErrEntityMissing) {
		t.Fatalf("err = %v, want entity missing", err)
	}
}

func TestBatchCompute_FailedUpsertRecordsNothing(t *testing.T) {
	scores := newFakeScores()
	scores.upsertErr = errors.New("deadlock")
	svc, rec := newService(fixture(), scores, nil, false)

	if _, err := svc.BatchCompute(context.Background(), 1, []int64{2, 3}); err == nil {
		t.Fatal("expected error")
	}
	if len(rec.events) != 0 {
		t.Fatalf("no events may be recorded for a rolled back batch, got %d", len(rec.events))
	}
}

// ── Refresh ────────────────────────────────────────────────────────────────

func TestRefresh_InvalidatesMissingPairs(t *testing.T) {
	cat := fixture()
	scores := newFakeScores()
	svc, _ := newService(cat, scores, nil, false)
	ctx := context.Background()
	for _, c := range []int64{2, 3} {
		if _, err := svc.Compute(ctx, 1, c); err != nil {
			t.Fatal(err)
		}
	}
	delete(cat.candidates, 3)

	jobID := int64(1)
	res, err := svc.Refresh(ctx, matchstore.Filter{JobID: &jobID})
	if err != nil {
		t.Fatalf("Refresh returned unexpected error: %v", err)
	}
	if res.Refreshed != 1 || res.Invalidated != 1 {
		t.Errorf("unexpected result %+v", res)
	}
	if scores.rows[matchstore.Pair{JobID: 1, CandidateID: 3}].IsValid {
		t.Error("row for deleted candidate must be invalid")
	}
	if !scores.rows[matchstore.Pair{JobID: 1, CandidateID: 2}].IsValid {
		t.Error("row for live pair must stay valid")
	}
}

func TestRefresh_NeverReenablesInvalidRows(t *testing.T) {
	cat := fixture()
	scores := newFakeScores()
	svc, _ := newService(cat, scores, nil, false)
	ctx := context.Background()
	if _, err := svc.Compute(ctx, 1, 3); err != nil {
		t.Fatal(err)
	}
	restored := cat.candidates[3]
	delete(cat.candidates, 3)

	jobID := int64(1)
	if _, err := svc.Refresh(ctx, matchstore.Filter{JobID: &jobID}); err != nil {
		t.Fatal(err)
	}
	cat.candidates[3] = restored
	upserts := scores.upserts

	res, err := svc.Refresh(ctx, matchstore.Filter{JobID: &jobID})
	if err != nil {
		t.Fatalf("Refresh returned unexpected error: %v", err)
	}
	if res.Refreshed != 0 || res.Invalidated != 0 {
		t.Errorf("invalid row must be left alone, got %+v", res)
	}
	if scores.upserts != upserts {
		t.Errorf("upserts = %d, want %d", scores.upserts, upserts)
	}
	if scores.rows[matchstore.Pair{JobID: 1, CandidateID: 3}].IsValid {
		t.Error("invalidated row was re-enabled")
	}
}

func TestRefresh_Idempotent(t *testing.T) {
	scores := newFakeScores()
	svc, _ := newService(fixture(), scores, nil, false)
	ctx := context.Background()
	if _, err := svc.Compute(ctx, 1, 2); err != nil {
		t.Fatal(err)
	}

	candID := int64(2)
	f := matchstore.Filter{CandidateID: &candID}
	if _, err := svc.Refresh(ctx, f); err != nil {
		t.Fatal(err)
	}
	first := *scores.rows[matchstore.Pair{JobID: 1, CandidateID: 2}]
	if _, err := svc.Refresh(ctx, f); err != nil {
		t.Fatal(err)
	}
	second := *scores.rows[matchstore.Pair{JobID: 1, CandidateID: 2}]

	first.CalculatedAt, second.CalculatedAt = time.Time{}, time.Time{}
	if first.ScoreBundle != second.ScoreBundle || first.Details.Weights != second.Details.Weights {
		t.Fatalf("refresh changed the row: %+v vs %+v", first, second)
	}
}

func TestRefresh_RequiresFilter(t *testing.T) {
	svc, _ := newService(fixture(), newFakeScores(), nil, false)
	if _, err := svc.Refresh(context.Background(), matchstore.Filter{}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
}

// ── Analyze ────────────────────────────────────────────────────────────────

func TestAnalyze(t *testing.T) {
	o := &fakeOracle{result: map[string]any{
		"overall_score":          82.456,
		"skill_match_score":      float64(90),
		"experience_match_score": 120.0,
		"education_match_score":  "70",
		"location_match_score":   100,
		"salary_match_score":     -5.0,
		"analysis": map[string]any{
			"pros":           []any{"Strong Python"},
			"cons":           []any{},
			"missing_skills": []any{"Kubernetes"},
			"summary":        "Good fit",
		},
	}}
	svc, _ := newService(fixture(), newFakeScores(), o, false)

	a, err := svc.Analyze(context.Background(), 1, 2)
	if err != nil {
		t.Fatalf("Analyze returned unexpected error: %v", err)
	}
	if a.Overall != 82.46 || a.Experience != 100 || a.Salary != 0 || a.Education != 70 {
		t.Errorf("unexpected scores %+v", a)
	}
	if a.Notes.Summary != "Good fit" || len(a.Notes.MissingSkills) != 1 || a.Notes.Pros[0] != "Strong Python" {
		t.Errorf("unexpected notes %+v", a.Notes)
	}
	if a.JobID != 1 || a.CandidateID != 2 {
		t.Errorf("ids not set: %+v", a)
	}
}

func TestAnalyze_DisabledOracle(t *testing.T) {
	svc, _ := newService(fixture(), newFakeScores(), oracle.Disabled{}, false)
	_, err := svc.Analyze(context.Background(), 1, 2)
	if apperr.HTTPStatus(err) != 503 {
		t.Fatalf("status = %d, want 503 (err=%v)", apperr.HTTPStatus(err), err)
	}
}

func TestAnalysisSchemaRequiresEveryScore(t *testing.T) {
	if len(analysisSchema.Required) != 7 || analysisSchema.Properties["analysis"].Type != oracle.TypeObject {
		t.Fatalf("unexpected schema %+v", analysisSchema)
	}
}

func TestDedupe(t *testing.T) {
	got := dedupe([]int64{3, 1, 3, 2, 1})
	want := []int64{3, 1, 2}
	if len(got) != len(want) {
		t.Fatalf("dedupe = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("dedupe = %v, want %v", got, want)
		}
	}
}

func TestOverallMatchesWeightedSum(t *testing.T) {
	svc, _ := newService(fixture(), newFakeScores(), nil, false)
	ms, err := svc.Compute(context.Background(), 1, 3)
	if err != nil {
		t.Fatal(err)
	}
	w := ms.Details.Weights
	sum := w.Skill*ms.Skill + w.Experience*ms.Experience + w.Education*ms.Education +
		w.Location*ms.Location + w.Salary*ms.Salary
	if math.Abs(sum-ms.Overall) > 0.01 {
		t.Fatalf("overall %v differs from weighted sum %v", ms.Overall, sum)
	}
}
