package alerts

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"jobboard/matching-service/internal/apperr"
	"jobboard/matching-service/internal/model"
	"jobboard/matching-service/internal/notify"
	"jobboard/matching-service/internal/pgtest"
	"jobboard/matching-service/internal/settings"
)

var (
	hcm   = model.Province{ID: 1, Code: "ho_chi_minh", Name: "Ho Chi Minh"}
	hanoi = model.Province{ID: 2, Code: "ha_noi", Name: "Ha Noi"}
)

func f64(v float64) *float64 { return &v }

func publishedJob() *model.Job {
	cat := int64(4)
	return &model.Job{
		ID:          10,
		Title:       "Senior Python Developer",
		Slug:        "senior-python-developer",
		CompanyName: "Acme",
		CategoryID:  &cat,
		JobType:     model.JobTypeFullTime,
		Level:       model.LevelSenior,
		Status:      model.JobPublished,
		Province:    &hcm,
		Skills: []model.JobSkill{
			{SkillID: 1, Name: "Python", Required: true},
			{SkillID: 2, Name: "Django", Required: true},
			{SkillID: 3, Name: "Docker", Required: false},
		},
	}
}

// ── Score ──────────────────────────────────────────────────────────────────

func TestScore(t *testing.T) {
	cases := []struct {
		name  string
		alert model.Alert
		want  Breakdown
	}{
		{
			name:  "open alert gets every point",
			alert: model.Alert{},
			want:  Breakdown{40, 30, 20, 10, 100},
		},
		{
			name:  "keyword hit is case insensitive",
			alert: model.Alert{Keywords: "java, PYTHON"},
			want:  Breakdown{40, 30, 20, 10, 100},
		},
		{
			name:  "keyword miss is partial",
			alert: model.Alert{Keywords: "marketing"},
			want:  Breakdown{20, 30, 20, 10, 80},
		},
		{
			name:  "skill overlap is proportional to alert skills",
			alert: model.Alert{SkillIDs: []int64{1, 3, 9}},
			want:  Breakdown{40, 10, 20, 10, 80},
		},
		{
			name:  "other province",
			alert: model.Alert{Locations: []model.Province{hanoi}},
			want:  Breakdown{40, 30, 0, 10, 80},
		},
		{
			name:  "salary gap",
			alert: model.Alert{SalaryMin: f64(20_000_000)},
			want:  Breakdown{40, 30, 20, 0, 90},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			job := publishedJob()
			job.SalaryMax = f64(15_000_000)
			if got := Score(&tc.alert, job); got != tc.want {
				t.Errorf("Score = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestScore_JobWithoutProvince(t *testing.T) {
	job := publishedJob()
	job.Province = nil
	if got := Score(&model.Alert{Locations: []model.Province{hcm}}, job).Location; got != 0 {
		t.Errorf("Location = %v, want 0", got)
	}
	if got := Score(&model.Alert{}, job).Location; got != LocationPoints {
		t.Errorf("Location = %v, want %d", got, LocationPoints)
	}
}

func TestScore_MonotoneInSkillOverlap(t *testing.T) {
	alert := &model.Alert{SkillIDs: []int64{1, 2, 5, 6}}
	job := publishedJob()
	job.Skills = nil

	prev := Score(alert, job).Total
	for _, id := range []int64{7, 1, 2, 5, 6} {
		job.Skills = append(job.Skills, model.JobSkill{SkillID: id, Required: true})
		got := Score(alert, job).Total
		if got < prev {
			t.Fatalf("adding skill %d lowered total from %v to %v", id, prev, got)
		}
		prev = got
	}
	if prev != 100 {
		t.Errorf("full overlap total = %v, want 100", prev)
	}
}

func TestKeywords(t *testing.T) {
	got := Keywords(" Go ,, Rust,")
	if strings.Join(got, "|") != "go|rust" {
		t.Errorf("Keywords = %q", got)
	}
}

// ── Matcher ────────────────────────────────────────────────────────────────

type fakeJobs map[int64]*model.Job

func (f fakeJobs) Job(_ context.Context, id int64) (*model.Job, error) {
	if j, ok := f[id]; ok {
		return j, nil
	}
	return nil, apperr.Missing("job", id)
}

type matchKey struct{ alert, job int64 }

type fakeMatches struct {
	alerts  []model.Alert
	scores  map[matchKey]float64
	sent    map[matchKey]bool
	pending []Pending
}

func newFakeMatches(alerts ...model.Alert) *fakeMatches {
	return &fakeMatches{alerts: alerts, scores: map[matchKey]float64{}, sent: map[matchKey]bool{}}
}

func (f *fakeMatches) Candidates(context.Context, *model.Job) ([]model.Alert, error) {
	return f.alerts, nil
}

func (f *fakeMatches) UpsertMatch(_ context.Context, alertID, jobID int64, score float64) (bool, error) {
	k := matchKey{alertID, jobID}
	f.scores[k] = score
	return f.sent[k], nil
}

func (f *fakeMatches) MarkSent(_ context.Context, alertID, jobID int64) error {
	f.sent[matchKey{alertID, jobID}] = true
	return nil
}

func (f *fakeMatches) Unsent(context.Context, int) ([]Pending, error) { return f.pending, nil }

type fakeNotifier struct {
	sent []notify.Message
	err  error
	skip bool
}

func (n *fakeNotifier) Send(_ context.Context, m notify.Message) (*model.Notification, error) {
	if n.err != nil {
		return nil, n.err
	}
	if n.skip {
		return nil, nil
	}
	n.sent = append(n.sent, m)
	return &model.Notification{ID: int64(len(n.sent)), UserID: m.UserID}, nil
}

type staticKnobs settings.Knobs

func (k staticKnobs) Knobs(context.Context) settings.Knobs { return settings.Knobs(k) }

func fanoutAlerts() []model.Alert {
	return []model.Alert{
		{ID: 1, UserID: 101, Name: "HCM anything", Keywords: "marketing", SkillIDs: []int64{9}, Locations: []model.Province{hcm}},
		{ID: 2, UserID: 102, Name: "Python in HCM", SkillIDs: []int64{1, 2}, Locations: []model.Province{hcm}},
		{ID: 3, UserID: 103, Name: "Hanoi", Keywords: "marketing", SkillIDs: []int64{9}, Locations: []model.Province{hanoi}},
	}
}

func TestProcessJob_FanOut(t *testing.T) {
	job := publishedJob()
	store := newFakeMatches(fanoutAlerts()...)
	n := &fakeNotifier{}
	m := NewMatcher(fakeJobs{job.ID: job}, store, n, staticKnobs{AlertScoreThreshold: 50}, zap.NewNop())

	res, err := m.ProcessJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("ProcessJob returned unexpected error: %v", err)
	}
	if res != (Result{Considered: 3, Matched: 2, Notified: 2}) {
		t.Fatalf("unexpected result %+v", res)
	}
	if got := store.scores[matchKey{1, job.ID}]; got != 50 {
		t.Errorf("alert 1 score = %v, want 50", got)
	}
	if got := store.scores[matchKey{2, job.ID}]; got != 100 {
		t.Errorf("alert 2 score = %v, want 100", got)
	}
	if _, ok := store.scores[matchKey{3, job.ID}]; ok {
		t.Error("alert 3 must not match")
	}
	if !store.sent[matchKey{1, job.ID}] || !store.sent[matchKey{2, job.ID}] {
		t.Errorf("matches not marked sent: %v", store.sent)
	}

	first := n.sent[0]
	if first.UserID != 101 || first.Title != "Job matched: Senior Python Developer" || first.Link != "/jobs/senior-python-developer" {
		t.Errorf("unexpected message %+v", first)
	}
	if want := "Job Senior Python Developer at Acme is matched with your alert 'HCM anything'."; first.Content != want {
		t.Errorf("content = %q", first.Content)
	}
	if first.Entity.Type != model.EntityJob || *first.Entity.ID != job.ID {
		t.Errorf("entity = %+v", first.Entity)
	}
}

func TestProcessJob_NotifiesOnce(t *testing.T) {
	job := publishedJob()
	store := newFakeMatches(fanoutAlerts()...)
	n := &fakeNotifier{}
	m := NewMatcher(fakeJobs{job.ID: job}, store, n, nil, zap.NewNop())

	for i := 0; i < 2; i++ {
		if _, err := m.ProcessJob(context.Background(), job.ID); err != nil {
			t.Fatal(err)
		}
	}
	if len(n.sent) != 2 {
		t.Errorf("notifications = %d, want 2", len(n.sent))
	}
}

func TestProcessJob_ThresholdFromKnobs(t *testing.T) {
	job := publishedJob()
	store := newFakeMatches(fanoutAlerts()...)
	m := NewMatcher(fakeJobs{job.ID: job}, store, &fakeNotifier{}, staticKnobs{AlertScoreThreshold: 95}, zap.NewNop())

	res, err := m.ProcessJob(context.Background(), job.ID)
	if err != nil || res.Matched != 1 {
		t.Fatalf("res=%+v err=%v, want one match above 95", res, err)
	}
}

func TestProcessJob_Skips(t *testing.T) {
	draft := publishedJob()
	draft.Status = model.JobDraft

	cases := []struct {
		name string
		jobs fakeJobs
	}{
		{"missing job", fakeJobs{}},
		{"unpublished job", fakeJobs{draft.ID: draft}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newFakeMatches(fanoutAlerts()...)
			res, err := NewMatcher(tc.jobs, store, &fakeNotifier{}, nil, zap.NewNop()).ProcessJob(context.Background(), 10)
			if err != nil || res != (Result{}) {
				t.Fatalf("res=%+v err=%v", res, err)
			}
			if len(store.scores) != 0 {
				t.Error("no match should be recorded")
			}
		})
	}
}

func TestProcessJob_FailedSendLeavesMatchUnsent(t *testing.T) {
	for name, n := range map[string]*fakeNotifier{
		"send error":   {err: errors.New("db down")},
		"missing type": {skip: true},
	} {
		t.Run(name, func(t *testing.T) {
			job := publishedJob()
			store := newFakeMatches(fanoutAlerts()...)
			res, err := NewMatcher(fakeJobs{job.ID: job}, store, n, nil, zap.NewNop()).ProcessJob(context.Background(), job.ID)
			if err != nil {
				t.Fatal(err)
			}
			if res.Matched != 2 || res.Notified != 0 || len(store.sent) != 0 {
				t.Fatalf("res=%+v sent=%v", res, store.sent)
			}
		})
	}
}

func TestRedeliver(t *testing.T) {
	store := newFakeMatches()
	store.pending = []Pending{{AlertID: 1, AlertName: "a", UserID: 5, JobID: 10, JobTitle: "Go", JobSlug: "go", CompanyName: "Acme"}}
	n := &fakeNotifier{}

	sent, err := NewMatcher(fakeJobs{}, store, n, nil, zap.NewNop()).Redeliver(context.Background(), 50)
	if err != nil || sent != 1 {
		t.Fatalf("Redeliver = %d, %v", sent, err)
	}
	if !store.sent[matchKey{1, 10}] || n.sent[0].UserID != 5 {
		t.Errorf("sent=%v messages=%+v", store.sent, n.sent)
	}
}

// ── Store ──────────────────────────────────────────────────────────────────

func strp(s string) *string { return &s }

func alertRow(id int64) []any {
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	return []any{
		id, int64(7), int64(70), "Python jobs", "python", nil,
		"full-time", nil, 1000.0, nil, true, "daily",
		nil, now, now,
		[]byte(`[{"id":1,"code":"ho_chi_minh","name":"Ho Chi Minh"}]`), []int64{1, 2},
	}
}

func TestStoreGet(t *testing.T) {
	conn := &pgtest.DB{Handler: func(string, []any) ([][]any, error) {
		return [][]any{alertRow(3)}, nil
	}}
	a, err := NewStore(conn).Get(context.Background(), 7, 3)
	if err != nil {
		t.Fatal(err)
	}
	if a.UserID != 70 || a.Frequency != model.FrequencyDaily || a.Level != nil {
		t.Errorf("unexpected alert %+v", a)
	}
	if a.JobType == nil || *a.JobType != model.JobTypeFullTime {
		t.Errorf("job type = %v", a.JobType)
	}
	if len(a.Locations) != 1 || a.Locations[0] != hcm || len(a.SkillIDs) != 2 {
		t.Errorf("links = %+v %v", a.Locations, a.SkillIDs)
	}
}

func TestStoreGet_NotOwned(t *testing.T) {
	_, err := NewStore(&pgtest.DB{}).Get(context.Background(), 7, 3)
	if apperr.KindOf(err) != apperr.KindEntityMissing {
		t.Fatalf("err = %v", err)
	}
}

func TestStoreCreate_Validation(t *testing.T) {
	cases := []struct {
		name string
		in   Input
	}{
		{"name required", Input{Name: strp("  ")}},
		{"negative salary", Input{Name: strp("x"), SalaryMin: f64(-1)}},
		{"inverted range", Input{Name: strp("x"), SalaryMin: f64(10), SalaryMax: f64(5)}},
		{"bad frequency", Input{Name: strp("x"), Frequency: strp("hourly")}},
		{"bad job type", Input{Name: strp("x"), JobType: strp("gig")}},
		{"bad level", Input{Name: strp("x"), Level: strp("wizard")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			conn := &pgtest.DB{}
			_, err := NewStore(conn).Create(context.Background(), 7, tc.in)
			if apperr.KindOf(err) != apperr.KindValidation {
				t.Fatalf("err = %v, want validation", err)
			}
			if len(conn.Calls) != 0 {
				t.Error("invalid input must not reach the database")
			}
		})
	}
}

func TestStoreCreate(t *testing.T) {
	conn := &pgtest.DB{Handler: func(sql string, _ []any) ([][]any, error) {
		switch {
		case strings.Contains(sql, "INSERT INTO job_alerts"):
			return [][]any{{int64(3)}}, nil
		case strings.Contains(sql, "FROM job_alerts a"):
			return [][]any{alertRow(3)}, nil
		}
		return nil, nil
	}}
	locs := []int64{1}
	skills := []int64{1, 2}
	a, err := NewStore(conn).Create(context.Background(), 7, Input{
		Name: strp("Python jobs"), Keywords: strp("python"), LocationIDs: &locs, SkillIDs: &skills,
	})
	if err != nil {
		t.Fatal(err)
	}
	if a.ID != 3 {
		t.Errorf("id = %d", a.ID)
	}
	if ins := conn.Matching("INSERT INTO job_alert_locations"); len(ins) != 1 || len(ins[0].Args[1].([]int64)) != 1 {
		t.Errorf("location links = %+v", ins)
	}
	if ins := conn.Matching("INSERT INTO job_alert_skills"); len(ins) != 1 {
		t.Errorf("skill links = %+v", ins)
	}
	if args := conn.Matching("INSERT INTO job_alerts")[0].Args; args[8] != true || args[9] != model.FrequencyInstant {
		t.Errorf("defaults not applied: %v", args)
	}
}

func TestStoreToggle(t *testing.T) {
	conn := &pgtest.DB{Handler: func(string, []any) ([][]any, error) { return [][]any{{false}}, nil }}
	active, err := NewStore(conn).Toggle(context.Background(), 7, 3)
	if err != nil || active {
		t.Fatalf("Toggle = %v, %v", active, err)
	}
}

func TestStoreCandidatesFilters(t *testing.T) {
	conn := &pgtest.DB{Handler: func(string, []any) ([][]any, error) {
		return [][]any{alertRow(1), alertRow(2)}, nil
	}}
	job := publishedJob()
	got, err := NewStore(conn).Candidates(context.Background(), job)
	if err != nil || len(got) != 2 {
		t.Fatalf("Candidates = %d, %v", len(got), err)
	}
	args := conn.Calls[0].Args
	if args[0] != job.CategoryID || args[1] != "full-time" || args[2] != "senior" {
		t.Errorf("filter args = %v", args)
	}
}

func TestStoreUpsertMatch(t *testing.T) {
	conn := &pgtest.DB{Handler: func(string, []any) ([][]any, error) { return [][]any{{true}}, nil }}
	sent, err := NewStore(conn).UpsertMatch(context.Background(), 1, 10, 90)
	if err != nil || !sent {
		t.Fatalf("UpsertMatch = %v, %v", sent, err)
	}
	if !strings.Contains(conn.Calls[0].SQL, "ON CONFLICT (alert_id, job_id)") {
		t.Error("match must upsert on (alert_id, job_id)")
	}
}
