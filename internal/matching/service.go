// Package matching orchestrates scoring runs: it loads both aggregates,
// consults the embedding oracle when enabled, and persists the result.
package matching

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"jobboard/matching-service/internal/analytics"
	"jobboard/matching-service/internal/apperr"
	"jobboard/matching-service/internal/db"
	"jobboard/matching-service/internal/logger"
	"jobboard/matching-service/internal/matchstore"
	"jobboard/matching-service/internal/model"
	"jobboard/matching-service/internal/oracle"
	"jobboard/matching-service/internal/scorer"
	"jobboard/matching-service/internal/settings"
)

// Reasons recorded when the semantic dimension is dropped.
const (
	ReasonInsufficientData    = "insufficient_data"
	ReasonProviderUnavailable = "provider_unavailable"
	ReasonInvalidVectors      = "invalid_vectors"
)

// Event sources written to analytics.
const (
	SourceCompute = "compute"
	SourceBatch   = "batch"
	SourceRefresh = "refresh"
)

// Catalog loads the aggregates being scored.
type Catalog interface {
	Job(ctx context.Context, id int64) (*model.Job, error)
	Candidate(ctx context.Context, id int64) (*model.Candidate, error)
}

// Scores is the subset of the match store the service writes through.
type Scores interface {
	Upsert(ctx context.Context, jobID, candidateID int64, b model.ScoreBundle, d model.MatchDetails) (*model.MatchScore, error)
	Get(ctx context.Context, jobID, candidateID int64) (*model.MatchScore, error)
	Pairs(ctx context.Context, f matchstore.Filter) ([]matchstore.Pair, error)
	Invalidate(ctx context.Context, f matchstore.Filter) (int64, error)
}

// TxRunner runs fn with a Scores bound to a single transaction.
type TxRunner func(ctx context.Context, fn func(Scores) error) error

// PostgresTx returns a TxRunner that rebinds store to a pgx transaction.
func PostgresTx(b db.TxBeginner, store *matchstore.Store) TxRunner {
	return func(ctx context.Context, fn func(Scores) error) error {
		return db.WithTx(ctx, b, func(tx pgx.Tx) error {
			return fn(store.WithDB(tx))
		})
	}
}

// KnobSource yields the effective runtime knobs.
type KnobSource interface {
	Knobs(ctx context.Context) settings.Knobs
}

// StaticKnobs is a KnobSource that never changes.
type StaticKnobs settings.Knobs

func (k StaticKnobs) Knobs(context.Context) settings.Knobs { return settings.Knobs(k) }

// Deps wires a Service.
type Deps struct {
	Catalog  Catalog
	Scores   Scores
	InTx     TxRunner
	Oracle   oracle.Oracle
	Knobs    KnobSource
	Events   analytics.Recorder
	BatchMax int
	Logger   *zap.Logger
}

// Service computes and persists match scores.
type Service struct {
	catalog  Catalog
	scores   Scores
	inTx     TxRunner
	oracle   oracle.Oracle
	knobs    KnobSource
	events   analytics.Recorder
	batchMax int
	log      *zap.Logger
}

// New returns a Service. Missing optional dependencies fall back to
// no-op implementations.
func New(d Deps) *Service {
	s := &Service{
		catalog:  d.Catalog,
		scores:   d.Scores,
		inTx:     d.InTx,
		oracle:   d.Oracle,
		knobs:    d.Knobs,
		events:   d.Events,
		batchMax: d.BatchMax,
		log:      logger.OrNop(d.Logger).Named("matching"),
	}
	if s.oracle == nil {
		s.oracle = oracle.Disabled{}
	}
	if s.knobs == nil {
		s.knobs = StaticKnobs{}
	}
	if s.events == nil {
		s.events = analytics.Nop{}
	}
	if s.batchMax <= 0 {
		s.batchMax = 100
	}
	if s.inTx == nil {
		s.inTx = func(ctx context.Context, fn func(Scores) error) error { return fn(s.scores) }
	}
	return s
}

// Compute scores one pair and upserts the result.
func (s *Service) Compute(ctx context.Context, jobID, candidateID int64) (*model.MatchScore, error) {
	job, err := s.catalog.Job(ctx, jobID)
	if err != nil {
		return nil, err
	}
	cand, err := s.catalog.Candidate(ctx, candidateID)
	if err != nil {
		return nil, err
	}

	bundle, details := s.score(ctx, job, cand, s.knobs.Knobs(ctx))
	ms, err := s.scores.Upsert(ctx, jobID, candidateID, bundle, details)
	if err != nil {
		return nil, fmt.Errorf("matching.Compute: %w", err)
	}

	s.record(ms, SourceCompute)
	s.log.Debug("match computed",
		append(logger.EntityFields(jobID, candidateID), zap.Float64("overall", ms.Overall))...)
	return ms, nil
}

// Get returns the stored score for the pair.
func (s *Service) Get(ctx context.Context, jobID, candidateID int64) (*model.MatchScore, error) {
	return s.scores.Get(ctx, jobID, candidateID)
}

// BatchResult reports a BatchCompute run.
type BatchResult struct {
	Requested  int                `json:"total_requested"`
	Calculated int                `json:"total_calculated"`
	Skipped    int                `json:"total_skipped"`
	Scores     []model.MatchScore `json:"scores"`
}

// BatchCompute scores one job against several candidates and writes every
// row in one transaction. Missing candidates are skipped and counted.
func (s *Service) BatchCompute(ctx context.Context, jobID int64, candidateIDs []int64) (*BatchResult, error) {
	if len(candidateIDs) == 0 {
		return nil, apperr.Validation("recruiter_ids must not be empty")
	}
	if len(candidateIDs) > s.batchMax {
		return nil, apperr.Validationf("maximum %d recruiters per batch", s.batchMax).
			WithDetails("recruiter_ids", len(candidateIDs))
	}
	ids := dedupe(candidateIDs)

	job, err := s.catalog.Job(ctx, jobID)
	if err != nil {
		return nil, err
	}

	type computed struct {
		candidateID int64
		bundle      model.ScoreBundle
		details     model.MatchDetails
	}

	knobs := s.knobs.Knobs(ctx)
	res := &BatchResult{Requested: len(candidateIDs)}
	work := make([]computed, 0, len(ids))
	for _, id := range ids {
		cand, err := s.catalog.Candidate(ctx, id)
		if apperr.KindOf(err) == apperr.KindEntityMissing {
			res.Skipped++
			continue
		}
		if err != nil {
			return nil, err
		}
		b, d := s.score(ctx, job, cand, knobs)
		work = append(work, computed{candidateID: id, bundle: b, details: d})
	}

	err = s.inTx(ctx, func(scores Scores) error {
		res.Scores = make([]model.MatchScore, 0, len(work))
		for _, w := range work {
			ms, err := scores.Upsert(ctx, jobID, w.candidateID, w.bundle, w.details)
			if err != nil {
				return err
			}
			res.Scores = append(res.Scores, *ms)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("matching.BatchCompute: %w", err)
	}

	res.Calculated = len(res.Scores)
	for i := range res.Scores {
		s.record(&res.Scores[i], SourceBatch)
	}
	s.log.Info("batch computed",
		zap.Int64(logger.FieldJobID, jobID),
		zap.Int("requested", res.Requested),
		zap.Int("calculated", res.Calculated),
		zap.Int("skipped", res.Skipped))
	return res, nil
}

// RefreshResult reports a Refresh run.
type RefreshResult struct {
	Refreshed   int `json:"total_refreshed"`
	Invalidated int `json:"total_invalidated"`
}

// Refresh recomputes every valid stored pair matching f. Pairs whose job or
// candidate is gone are marked invalid instead and are not revisited by
// later refreshes.
func (s *Service) Refresh(ctx context.Context, f matchstore.Filter) (*RefreshResult, error) {
	pairs, err := s.scores.Pairs(ctx, f)
	if err != nil {
		return nil, err
	}

	knobs := s.knobs.Knobs(ctx)
	res := &RefreshResult{}
	for _, p := range pairs {
		ms, err := s.refreshPair(ctx, p, knobs)
		switch {
		case apperr.KindOf(err) == apperr.KindEntityMissing:
			one := matchstore.Filter{JobID: &p.JobID, CandidateID: &p.CandidateID}
			if _, err := s.scores.Invalidate(ctx, one); err != nil {
				return res, fmt.Errorf("matching.Refresh: %w", err)
			}
			res.Invalidated++
			s.log.Info("match invalidated", logger.EntityFields(p.JobID, p.CandidateID)...)
		case err != nil:
			return res, fmt.Errorf("matching.Refresh: %w", err)
		default:
			res.Refreshed++
			s.record(ms, SourceRefresh)
		}
	}
	return res, nil
}

func (s *Service) refreshPair(ctx context.Context, p matchstore.Pair, knobs settings.Knobs) (*model.MatchScore, error) {
	job, err := s.catalog.Job(ctx, p.JobID)
	if err != nil {
		return nil, err
	}
	cand, err := s.catalog.Candidate(ctx, p.CandidateID)
	if err != nil {
		return nil, err
	}
	b, d := s.score(ctx, job, cand, knobs)
	return s.scores.Upsert(ctx, p.JobID, p.CandidateID, b, d)
}

func (s *Service) score(ctx context.Context, job *model.Job, cand *model.Candidate, knobs settings.Knobs) (model.ScoreBundle, model.MatchDetails) {
	var sem *model.SemanticResult
	if knobs.SemanticEnabled {
		sem = s.semantic(ctx, job, cand)
	}
	return scorer.Score(job, cand, sem)
}

// semantic never fails: every problem becomes a reason and the basic
// weight table is used for the pair.
func (s *Service) semantic(ctx context.Context, job *model.Job, cand *model.Candidate) *model.SemanticResult {
	res := &model.SemanticResult{Model: s.oracle.Model()}

	jobText, candText := scorer.JobText(job), scorer.CandidateText(cand)
	if jobText == "" || candText == "" {
		res.Reason = ReasonInsufficientData
		return res
	}

	jobVec, err := s.oracle.Embed(ctx, jobText)
	if err != nil {
		return s.dropSemantic(res, job.ID, cand.ID, err)
	}
	candVec, err := s.oracle.Embed(ctx, candText)
	if err != nil {
		return s.dropSemantic(res, job.ID, cand.ID, err)
	}

	score, ok := scorer.SemanticScore(jobVec, candVec)
	if !ok {
		res.Reason = ReasonInvalidVectors
		return res
	}
	res.Score = score
	res.IsSemantic = true
	return res
}

func (s *Service) dropSemantic(res *model.SemanticResult, jobID, candidateID int64, err error) *model.SemanticResult {
	res.Reason = ReasonProviderUnavailable
	if !oracle.IsDisabled(s.oracle) {
		s.log.Warn("semantic score dropped",
			append(logger.EntityFields(jobID, candidateID), zap.Error(err))...)
	}
	return res
}

func (s *Service) record(ms *model.MatchScore, source string) {
	e := analytics.Event{
		JobID:        ms.JobID,
		CandidateID:  ms.CandidateID,
		Overall:      ms.Overall,
		Skill:        ms.Skill,
		Experience:   ms.Experience,
		Education:    ms.Education,
		Location:     ms.Location,
		Salary:       ms.Salary,
		Source:       source,
		CalculatedAt: ms.CalculatedAt,
	}
	if ms.Semantic != nil {
		e.Semantic = *ms.Semantic
		e.SemanticUsed = true
	}
	if e.CalculatedAt.IsZero() {
		e.CalculatedAt = time.Now().UTC()
	}
	s.events.Record(e)
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
