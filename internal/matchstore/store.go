// Package matchstore persists MatchScore rows.
//
// Every (job, candidate) pair has at most one row, enforced by the unique
// constraint; Upsert replaces all numeric columns and the details blob in a
// single statement so they always agree. Rows with is_valid = false are
// excluded from every listing.
package matchstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"jobboard/matching-service/internal/apperr"
	"jobboard/matching-service/internal/db"
	"jobboard/matching-service/internal/model"
	"jobboard/matching-service/internal/scorer"
)

// Filter narrows Invalidate, Aggregate and Pairs. Nil fields are ignored.
type Filter struct {
	JobID       *int64
	CandidateID *int64
}

// Empty reports whether no field is set.
func (f Filter) Empty() bool { return f.JobID == nil && f.CandidateID == nil }

// Pair identifies one scored (job, candidate) combination.
type Pair struct {
	JobID       int64
	CandidateID int64
}

// Store reads and writes match_scores.
type Store struct {
	db db.DBTX
}

// NewStore returns a Store running its queries on conn.
func NewStore(conn db.DBTX) *Store {
	return &Store{db: conn}
}

// WithDB returns a copy of s bound to conn, typically a transaction.
func (s *Store) WithDB(conn db.DBTX) *Store {
	return &Store{db: conn}
}

const scoreColumns = `
	m.id, m.job_id, m.candidate_id,
	m.overall_score::float8, m.skill_match_score::float8, m.experience_match_score::float8,
	m.education_match_score::float8, m.location_match_score::float8, m.salary_match_score::float8,
	m.semantic_match_score::float8, m.matching_details, m.calculated_at, m.is_valid`

func scanScore(row pgx.Row, extra ...any) (model.MatchScore, error) {
	var (
		m       model.MatchScore
		details []byte
	)
	dest := []any{
		&m.ID, &m.JobID, &m.CandidateID,
		&m.Overall, &m.Skill, &m.Experience,
		&m.Education, &m.Location, &m.Salary,
		&m.Semantic, &details, &m.CalculatedAt, &m.IsValid,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return m, err
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &m.Details); err != nil {
			return m, fmt.Errorf("decode matching_details: %w", err)
		}
	}
	return m, nil
}

// ─── Writes ──────────────────────────────────────────────────────────────────

// Upsert writes the scores for a pair, replacing any previous row and
// marking it valid.
func (s *Store) Upsert(ctx context.Context, jobID, candidateID int64, b model.ScoreBundle, d model.MatchDetails) (*model.MatchScore, error) {
	details, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode matching_details: %w", err)
	}

	m, err := scanScore(s.db.QueryRow(ctx,
		`INSERT INTO match_scores AS m (
		   job_id, candidate_id, overall_score, skill_match_score, experience_match_score,
		   education_match_score, location_match_score, salary_match_score,
		   semantic_match_score, matching_details, calculated_at, is_valid
		 ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), TRUE)
		 ON CONFLICT (job_id, candidate_id) DO UPDATE SET
		   overall_score          = EXCLUDED.overall_score,
		   skill_match_score      = EXCLUDED.skill_match_score,
		   experience_match_score = EXCLUDED.experience_match_score,
		   education_match_score  = EXCLUDED.education_match_score,
		   location_match_score   = EXCLUDED.location_match_score,
		   salary_match_score     = EXCLUDED.salary_match_score,
		   semantic_match_score   = EXCLUDED.semantic_match_score,
		   matching_details       = EXCLUDED.matching_details,
		   calculated_at          = EXCLUDED.calculated_at,
		   is_valid               = TRUE
		 RETURNING`+scoreColumns,
		jobID, candidateID, b.Overall, b.Skill, b.Experience,
		b.Education, b.Location, b.Salary, b.Semantic, details,
	))
	if err != nil {
		return nil, fmt.Errorf("matchstore.Upsert: %w", err)
	}
	return &m, nil
}

// Invalidate marks every row matching f as invalid and returns how many
// rows changed. An empty filter is rejected.
func (s *Store) Invalidate(ctx context.Context, f Filter) (int64, error) {
	if f.Empty() {
		return 0, apperr.Validation("job_id or recruiter_id is required")
	}
	where, args := f.clauses("is_valid")
	tag, err := s.db.Exec(ctx, `UPDATE match_scores SET is_valid = FALSE WHERE `+where, args...)
	if err != nil {
		return 0, fmt.Errorf("matchstore.Invalidate: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ─── Reads ───────────────────────────────────────────────────────────────────

// Get returns the row for a pair, valid or not.
func (s *Store) Get(ctx context.Context, jobID, candidateID int64) (*model.MatchScore, error) {
	m, err := scanScore(s.db.QueryRow(ctx,
		`SELECT`+scoreColumns+`
		 FROM match_scores m
		 WHERE m.job_id = $1 AND m.candidate_id = $2`,
		jobID, candidateID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.Missing("match score", fmt.Sprintf("%d/%d", jobID, candidateID))
	}
	if err != nil {
		return nil, fmt.Errorf("matchstore.Get: %w", err)
	}
	return &m, nil
}

// ListForJob returns the valid scores of a job, best first, and the total
// number of rows matching before paging.
func (s *Store) ListForJob(ctx context.Context, jobID int64, minScore float64, page model.Page) ([]model.MatchScore, int, error) {
	return s.list(ctx, "matchstore.ListForJob",
		`SELECT`+scoreColumns+`, j.title, j.status, count(*) OVER ()
		 FROM match_scores m
		 JOIN jobs j ON j.id = m.job_id
		 WHERE m.is_valid AND m.job_id = $1 AND m.overall_score >= $2
		 ORDER BY m.overall_score DESC, m.calculated_at DESC
		 LIMIT $3 OFFSET $4`,
		jobID, minScore, page.Limit, page.Offset,
	)
}

// ListForCandidate returns the valid scores of a candidate, best first.
// An empty status matches any job status.
func (s *Store) ListForCandidate(ctx context.Context, candidateID int64, minScore float64, status model.JobStatus, page model.Page) ([]model.MatchScore, int, error) {
	return s.list(ctx, "matchstore.ListForCandidate",
		`SELECT`+scoreColumns+`, j.title, j.status, count(*) OVER ()
		 FROM match_scores m
		 JOIN jobs j ON j.id = m.job_id
		 WHERE m.is_valid AND m.candidate_id = $1 AND m.overall_score >= $2
		   AND ($3 = '' OR j.status = $3)
		 ORDER BY m.overall_score DESC, m.calculated_at DESC
		 LIMIT $4 OFFSET $5`,
		candidateID, minScore, string(status), page.Limit, page.Offset,
	)
}

// Top returns the global ranking of valid scores, ties broken by the most
// recent calculation.
func (s *Store) Top(ctx context.Context, limit int, minScore float64, status model.JobStatus) ([]model.MatchScore, error) {
	out, _, err := s.list(ctx, "matchstore.Top",
		`SELECT`+scoreColumns+`, j.title, j.status, count(*) OVER ()
		 FROM match_scores m
		 JOIN jobs j ON j.id = m.job_id
		 WHERE m.is_valid AND m.overall_score >= $1
		   AND ($2 = '' OR j.status = $2)
		 ORDER BY m.overall_score DESC, m.calculated_at DESC
		 LIMIT $3`,
		minScore, string(status), limit,
	)
	return out, err
}

func (s *Store) list(ctx context.Context, op, query string, args ...any) ([]model.MatchScore, int, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("%s query: %w", op, err)
	}
	defer rows.Close()

	out := make([]model.MatchScore, 0)
	total := 0
	for rows.Next() {
		var title, status string
		m, err := scanScore(rows, &title, &status, &total)
		if err != nil {
			return nil, 0, fmt.Errorf("%s scan: %w", op, err)
		}
		m.JobTitle = title
		m.JobStatus = model.JobStatus(status)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%s rows: %w", op, err)
	}
	return out, total, nil
}

// Pairs lists the valid stored pairs matching f. Invalidated rows stay
// invalid, so they are never handed back for recomputation.
func (s *Store) Pairs(ctx context.Context, f Filter) ([]Pair, error) {
	if f.Empty() {
		return nil, apperr.Validation("job_id or recruiter_id is required")
	}
	where, args := f.clauses("is_valid")
	rows, err := s.db.Query(ctx,
		`SELECT job_id, candidate_id FROM match_scores WHERE `+where+` ORDER BY id`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("matchstore.Pairs query: %w", err)
	}
	pairs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Pair, error) {
		var p Pair
		err := row.Scan(&p.JobID, &p.CandidateID)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("matchstore.Pairs scan: %w", err)
	}
	return pairs, nil
}

// Aggregate summarizes the valid rows matching f. An empty filter covers
// every row.
func (s *Store) Aggregate(ctx context.Context, f Filter) (*model.Aggregate, error) {
	where, args := f.clauses("is_valid")

	var (
		agg                       model.Aggregate
		skill, exp, edu, loc, sal float64
		avg, maxScore, minScore   float64
	)
	err := s.db.QueryRow(ctx,
		`SELECT count(*),
		        COALESCE(avg(overall_score), 0)::float8,
		        COALESCE(max(overall_score), 0)::float8,
		        COALESCE(min(overall_score), 0)::float8,
		        count(*) FILTER (WHERE overall_score >= 80),
		        count(*) FILTER (WHERE overall_score >= 50 AND overall_score < 80),
		        count(*) FILTER (WHERE overall_score < 50),
		        COALESCE(avg(skill_match_score), 0)::float8,
		        COALESCE(avg(experience_match_score), 0)::float8,
		        COALESCE(avg(education_match_score), 0)::float8,
		        COALESCE(avg(location_match_score), 0)::float8,
		        COALESCE(avg(salary_match_score), 0)::float8
		 FROM match_scores
		 WHERE `+where,
		args...,
	).Scan(
		&agg.Summary.TotalMatches, &avg, &maxScore, &minScore,
		&agg.Distribution.High, &agg.Distribution.Medium, &agg.Distribution.Low,
		&skill, &exp, &edu, &loc, &sal,
	)
	if err != nil {
		return nil, fmt.Errorf("matchstore.Aggregate: %w", err)
	}

	agg.Summary.AvgOverall = scorer.Round2(avg)
	agg.Summary.MaxOverall = maxScore
	agg.Summary.MinOverall = minScore
	agg.ComponentAverages = map[string]float64{
		model.DimSkill:      scorer.Round2(skill),
		model.DimExperience: scorer.Round2(exp),
		model.DimEducation:  scorer.Round2(edu),
		model.DimLocation:   scorer.Round2(loc),
		model.DimSalary:     scorer.Round2(sal),
	}
	agg.FiltersApplied.JobID = f.JobID
	agg.FiltersApplied.CandidateID = f.CandidateID
	return &agg, nil
}

// clauses renders f as a WHERE body with positional args. base, when
// non-empty, is always included.
func (f Filter) clauses(base string) (string, []any) {
	var (
		parts []string
		args  []any
	)
	if base != "" {
		parts = append(parts, base)
	}
	if f.JobID != nil {
		args = append(args, *f.JobID)
		parts = append(parts, "job_id = $"+strconv.Itoa(len(args)))
	}
	if f.CandidateID != nil {
		args = append(args, *f.CandidateID)
		parts = append(parts, "candidate_id = $"+strconv.Itoa(len(args)))
	}
	if len(parts) == 0 {
		return "TRUE", nil
	}
	return strings.Join(parts, " AND "), args
}
