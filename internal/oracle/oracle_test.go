package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"jobboard/matching-service/internal/apperr"
	"jobboard/matching-service/internal/config"
	"jobboard/matching-service/internal/scorer"
)

// ── Fakes ──────────────────────────────────────────────────────────────────

type countingOracle struct {
	mu    sync.Mutex
	calls int
	vec   []float32
	err   error
	block bool
}

func (c *countingOracle) Model() string { return "counting" }

func (c *countingOracle) Embed(ctx context.Context, _ string) ([]float32, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if c.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return c.vec, c.err
}

func (c *countingOracle) GenerateJSON(ctx context.Context, _ string, _ *Schema) (map[string]any, error) {
	if c.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return map[string]any{"ok": true}, c.err
}

type fakeModels struct {
	embedModel string
	embedCfg   *genai.EmbedContentConfig
	embedResp  *genai.EmbedContentResponse
	genCfg     *genai.GenerateContentConfig
	genText    string
	err        error
}

func (f *fakeModels) EmbedContent(_ context.Context, model string, _ []*genai.Content, cfg *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error) {
	f.embedModel = model
	f.embedCfg = cfg
	return f.embedResp, f.err
}

func (f *fakeModels) GenerateContent(_ context.Context, _ string, _ []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.genCfg = cfg
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: f.genText}}},
		}},
	}, nil
}

type fakeOpenAI struct {
	embedReq openai.EmbeddingRequest
	chatReq  openai.ChatCompletionRequest
	content  string
	err      error
}

func (f *fakeOpenAI) CreateEmbeddings(_ context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error) {
	f.embedReq = conv.Convert()
	if f.err != nil {
		return openai.EmbeddingResponse{}, f.err
	}
	return openai.EmbeddingResponse{Data: []openai.Embedding{{Embedding: []float32{0.6, 0.8}}}}, nil
}

func (f *fakeOpenAI) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.chatReq = req
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{{
		Message: openai.ChatCompletionMessage{Content: f.content},
	}}}, nil
}

type fakeRow struct {
	vec []float32
	err error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*pgvector.Vector) = pgvector.NewVector(r.vec)
	return nil
}

type fakeDB struct {
	rows   map[string][]float32
	execs  int
	getErr error
}

func (f *fakeDB) Exec(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
	f.execs++
	f.rows[args[0].(string)] = args[2].(pgvector.Vector).Slice()
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakeDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeDB) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	if f.getErr != nil {
		return fakeRow{err: f.getErr}
	}
	vec, ok := f.rows[args[0].(string)]
	if !ok {
		return fakeRow{err: pgx.ErrNoRows}
	}
	return fakeRow{vec: vec}
}

var analysisSchema = &Schema{
	Type: TypeObject,
	Properties: map[string]*Schema{
		"overall_score": {Type: TypeNumber},
		"analysis": {Type: TypeObject, Properties: map[string]*Schema{
			"pros":    {Type: TypeArray, Items: &Schema{Type: TypeString}},
			"summary": {Type: TypeString},
		}},
	},
	Required: []string{"overall_score"},
}

// ── Google ─────────────────────────────────────────────────────────────────

func TestGoogle_Embed(t *testing.T) {
	models := &fakeModels{embedResp: &genai.EmbedContentResponse{
		Embeddings: []*genai.ContentEmbedding{{Values: []float32{1, 2, 3}}},
	}}
	g := newGoogle(models, "text-embedding-004", "gemini-2.0-flash")

	vec, err := g.Embed(context.Background(), "  golang developer ")
	if err != nil {
		t.Fatalf("Embed returned unexpected error: %v", err)
	}
	if len(vec) != 3 || models.embedModel != "text-embedding-004" {
		t.Fatalf("unexpected embed call: vec=%v model=%q", vec, models.embedModel)
	}
	if models.embedCfg == nil || *models.embedCfg.OutputDimensionality != Dimensions {
		t.Fatal("expected output dimensionality to be requested")
	}
}

func TestGoogle_EmbedFailuresAreUnavailable(t *testing.T) {
	cases := []*fakeModels{
		{err: errors.New("503")},
		{embedResp: &genai.EmbedContentResponse{}},
	}
	for i, models := range cases {
		_, err := newGoogle(models, "m", "g").Embed(context.Background(), "text")
		if apperr.KindOf(err) != apperr.KindProviderUnavailable {
			t.Errorf("case %d: kind = %v, want provider_unavailable", i, apperr.KindOf(err))
		}
	}
}

func TestGoogle_EmptyText(t *testing.T) {
	_, err := newGoogle(&fakeModels{}, "m", "g").Embed(context.Background(), "   ")
	if !errors.Is(err, ErrEmptyText) {
		t.Fatalf("expected ErrEmptyText, got %v", err)
	}
}

func TestGoogle_GenerateJSON(t *testing.T) {
	models := &fakeModels{genText: "```json\n{\"overall_score\": 72.5}\n```"}
	g := newGoogle(models, "m", "gemini-2.0-flash")

	out, err := g.GenerateJSON(context.Background(), "analyze", analysisSchema)
	if err != nil {
		t.Fatalf("GenerateJSON returned unexpected error: %v", err)
	}
	if out["overall_score"] != 72.5 {
		t.Errorf("overall_score = %v", out["overall_score"])
	}
	if models.genCfg.ResponseMIMEType != "application/json" {
		t.Errorf("mime type = %q", models.genCfg.ResponseMIMEType)
	}
	rs := models.genCfg.ResponseSchema
	if rs == nil || rs.Type != genai.TypeObject || rs.Properties["analysis"].Properties["pros"].Items.Type != genai.TypeString {
		t.Fatalf("schema not converted: %+v", rs)
	}
}

func TestGoogle_GenerateJSONRejectsNonObject(t *testing.T) {
	g := newGoogle(&fakeModels{genText: "not json"}, "m", "g")
	_, err := g.GenerateJSON(context.Background(), "analyze", nil)
	if apperr.KindOf(err) != apperr.KindProviderUnavailable {
		t.Fatalf("kind = %v, want provider_unavailable", apperr.KindOf(err))
	}
}

// ── OpenAI ─────────────────────────────────────────────────────────────────

func TestOpenAI_ReplacesGeminiDefaults(t *testing.T) {
	o := newOpenAI(&fakeOpenAI{}, "text-embedding-004", "gemini-2.0-flash")
	if o.Model() != string(openai.SmallEmbedding3) || o.generationModel != openai.GPT4oMini {
		t.Fatalf("unexpected models %q / %q", o.Model(), o.generationModel)
	}
}

func TestOpenAI_EmbedAndGenerate(t *testing.T) {
	client := &fakeOpenAI{content: `{"overall_score": 10}`}
	o := newOpenAI(client, "text-embedding-3-large", "gpt-4o")

	vec, err := o.Embed(context.Background(), "hello")
	if err != nil || len(vec) != 2 {
		t.Fatalf("Embed = %v, %v", vec, err)
	}
	if client.embedReq.Dimensions != Dimensions || client.embedReq.Model != "text-embedding-3-large" {
		t.Errorf("unexpected embedding request %+v", client.embedReq)
	}

	out, err := o.GenerateJSON(context.Background(), "analyze", analysisSchema)
	if err != nil || out["overall_score"] != float64(10) {
		t.Fatalf("GenerateJSON = %v, %v", out, err)
	}
	rf := client.chatReq.ResponseFormat
	if rf.Type != openai.ChatCompletionResponseFormatTypeJSONSchema || rf.JSONSchema.Schema == nil {
		t.Fatalf("expected json schema response format, got %+v", rf)
	}
}

func TestOpenAI_Failure(t *testing.T) {
	o := newOpenAI(&fakeOpenAI{err: errors.New("429")}, "", "")
	if _, err := o.Embed(context.Background(), "x"); apperr.KindOf(err) != apperr.KindProviderUnavailable {
		t.Fatalf("kind = %v", apperr.KindOf(err))
	}
}

// ── Mock and Disabled ──────────────────────────────────────────────────────

func TestMock_EmbedIsDeterministicAndUnitLength(t *testing.T) {
	m := Mock{}
	a, _ := m.Embed(context.Background(), "Senior Go engineer, payments")
	b, _ := m.Embed(context.Background(), "senior go ENGINEER payments")
	c, _ := m.Embed(context.Background(), "florist bouquet")

	if len(a) != Dimensions {
		t.Fatalf("len = %d", len(a))
	}
	same, ok := scorer.Cosine(a, b)
	if !ok || same < 0.999 {
		t.Errorf("same words should embed identically, cosine = %v", same)
	}
	diff, _ := scorer.Cosine(a, c)
	if diff >= same {
		t.Errorf("unrelated text should be less similar: %v >= %v", diff, same)
	}
}

func TestMock_GenerateJSONFollowsSchema(t *testing.T) {
	out, err := Mock{}.GenerateJSON(context.Background(), "p", analysisSchema)
	if err != nil {
		t.Fatal(err)
	}
	if out["overall_score"] != float64(0) {
		t.Errorf("overall_score = %v", out["overall_score"])
	}
	analysis, ok := out["analysis"].(map[string]any)
	if !ok {
		t.Fatalf("analysis = %T", out["analysis"])
	}
	if _, ok := analysis["pros"].([]any); !ok {
		t.Errorf("pros = %T", analysis["pros"])
	}
}

func TestDisabled(t *testing.T) {
	var o Oracle = Disabled{}
	if !IsDisabled(o) {
		t.Fatal("IsDisabled(Disabled{}) = false")
	}
	if _, err := o.Embed(context.Background(), "x"); !errors.Is(err, apperr.ErrProviderUnavailable) {
		t.Fatalf("expected provider unavailable, got %v", err)
	}
}

// ── Caches ─────────────────────────────────────────────────────────────────

func TestMemoryCache_HitsAndEviction(t *testing.T) {
	next := &countingOracle{vec: []float32{1}}
	c := NewMemoryCache(next, 2)
	ctx := context.Background()

	for _, text := range []string{"a", "a", " a ", "b", "c", "a"} {
		if _, err := c.Embed(ctx, text); err != nil {
			t.Fatal(err)
		}
	}
	// a, b, c miss; "a" again misses after being evicted by c.
	if next.calls != 4 {
		t.Errorf("calls = %d, want 4", next.calls)
	}
	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}
}

func TestMemoryCache_DoesNotCacheErrors(t *testing.T) {
	next := &countingOracle{err: apperr.Unavailable("x", errors.New("down"))}
	c := NewMemoryCache(next, 8)
	_, _ = c.Embed(context.Background(), "a")
	_, _ = c.Embed(context.Background(), "a")
	if next.calls != 2 || c.Len() != 0 {
		t.Fatalf("calls = %d len = %d", next.calls, c.Len())
	}
}

func TestPersistentCache(t *testing.T) {
	vec := make([]float32, Dimensions)
	vec[0] = 1
	next := &countingOracle{vec: vec}
	store := &fakeDB{rows: map[string][]float32{}}
	c := NewPersistentCache(next, store, zap.NewNop())

	for i := 0; i < 3; i++ {
		got, err := c.Embed(context.Background(), "backend engineer")
		if err != nil || len(got) != Dimensions || got[0] != 1 {
			t.Fatalf("Embed = %v, %v", len(got), err)
		}
	}
	if next.calls != 1 || store.execs != 1 {
		t.Fatalf("calls = %d execs = %d, want 1/1", next.calls, store.execs)
	}
}

func TestPersistentCache_LookupFailureFallsThrough(t *testing.T) {
	next := &countingOracle{vec: []float32{1, 2}}
	store := &fakeDB{rows: map[string][]float32{}, getErr: errors.New("conn reset")}
	c := NewPersistentCache(next, store, zap.NewNop())

	if _, err := c.Embed(context.Background(), "x"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.execs != 0 {
		t.Error("vectors of the wrong width must not be stored")
	}
}

// ── Timeout and factory ────────────────────────────────────────────────────

func TestTimeout(t *testing.T) {
	o := WithTimeout(&countingOracle{block: true}, 10*time.Millisecond)

	_, err := o.Embed(context.Background(), "x")
	if apperr.KindOf(err) != apperr.KindProviderUnavailable {
		t.Fatalf("Embed kind = %v, want provider_unavailable", apperr.KindOf(err))
	}
	_, err = o.GenerateJSON(context.Background(), "x", nil)
	if apperr.KindOf(err) != apperr.KindProviderUnavailable {
		t.Fatalf("GenerateJSON kind = %v, want provider_unavailable", apperr.KindOf(err))
	}
}

func TestNew(t *testing.T) {
	cases := []struct {
		provider string
		disabled bool
	}{
		{config.ProviderNone, true},
		{config.ProviderGoogle, true},
		{config.ProviderOpenAI, true},
		{config.ProviderMock, false},
	}
	for _, tc := range cases {
		cfg := &config.Config{EmbeddingProvider: tc.provider, OracleTimeout: time.Second}
		o, err := New(context.Background(), cfg, nil, zap.NewNop())
		if err != nil {
			t.Fatalf("%s: %v", tc.provider, err)
		}
		if IsDisabled(o) != tc.disabled {
			t.Errorf("%s: disabled = %v, want %v", tc.provider, IsDisabled(o), tc.disabled)
		}
	}
}

func TestSchemaMarshal(t *testing.T) {
	raw, err := json.Marshal(analysisSchema)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), `"required":["overall_score"]`) {
		t.Fatalf("unexpected schema json %s", raw)
	}
}
