// Package catalog is the read side for Job and Candidate aggregates.
// It loads each aggregate with its skills and locations in a fixed number of
// queries and selects fan-out targets for the recompute tasks.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"jobboard/matching-service/internal/apperr"
	"jobboard/matching-service/internal/db"
	"jobboard/matching-service/internal/model"
)

// Store reads jobs and candidates from Postgres.
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

// ─── Jobs ────────────────────────────────────────────────────────────────────

// Job loads a job with its province and skills.
func (s *Store) Job(ctx context.Context, id int64) (*model.Job, error) {
	var (
		j                              model.Job
		jobType, level, period, status string
		education                      *string
		provID                         *int64
		provCode, provName             *string
	)
	err := s.db.QueryRow(ctx,
		`SELECT j.id, j.company_id, COALESCE(c.name, ''), j.title, j.slug,
		        j.description, j.requirements, j.benefits, j.category_id,
		        j.job_type, j.level, j.salary_min::float8, j.salary_max::float8,
		        j.salary_currency, j.salary_type,
		        j.experience_years_min, j.experience_years_max, j.education_level,
		        j.is_remote, p.id, p.code, p.name,
		        j.status, j.published_at, j.view_count, j.application_count,
		        j.created_at, j.updated_at
		 FROM jobs j
		 LEFT JOIN companies c ON c.id = j.company_id
		 LEFT JOIN provinces p ON p.id = j.province_id
		 WHERE j.id = $1`,
		id,
	).Scan(
		&j.ID, &j.CompanyID, &j.CompanyName, &j.Title, &j.Slug,
		&j.Description, &j.Requirements, &j.Benefits, &j.CategoryID,
		&jobType, &level, &j.SalaryMin, &j.SalaryMax,
		&j.SalaryCurrency, &period,
		&j.ExperienceMin, &j.ExperienceMax, &education,
		&j.IsRemote, &provID, &provCode, &provName,
		&status, &j.PublishedAt, &j.ViewCount, &j.ApplicationCount,
		&j.CreatedAt, &j.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.Missing("job", id)
	}
	if err != nil {
		return nil, fmt.Errorf("catalog.Job query: %w", err)
	}

	j.JobType = model.JobType(jobType)
	j.Level = model.Level(level)
	j.SalaryPeriod = model.SalaryPeriod(period)
	j.Status = model.JobStatus(status)
	if education != nil && *education != "" {
		e := model.Education(*education)
		j.Education = &e
	}
	j.Province = province(provID, provCode, provName)

	if j.Skills, err = s.jobSkills(ctx, id); err != nil {
		return nil, err
	}
	return &j, nil
}

func (s *Store) jobSkills(ctx context.Context, jobID int64) ([]model.JobSkill, error) {
	rows, err := s.db.Query(ctx,
		`SELECT js.skill_id, sk.name, COALESCE(js.proficiency_level, ''), js.is_required
		 FROM job_skills js
		 JOIN skills sk ON sk.id = js.skill_id
		 WHERE js.job_id = $1
		 ORDER BY sk.name`,
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("catalog.jobSkills query: %w", err)
	}
	defer rows.Close()

	skills := make([]model.JobSkill, 0)
	for rows.Next() {
		var (
			sk   model.JobSkill
			prof string
		)
		if err := rows.Scan(&sk.SkillID, &sk.Name, &prof, &sk.Required); err != nil {
			return nil, fmt.Errorf("catalog.jobSkills scan: %w", err)
		}
		sk.Proficiency = model.Proficiency(prof)
		skills = append(skills, sk)
	}
	return skills, rows.Err()
}

// RecentPublishedJobs returns up to limit published job ids, newest first.
func (s *Store) RecentPublishedJobs(ctx context.Context, limit int) ([]int64, error) {
	return s.ids(ctx, "catalog.RecentPublishedJobs",
		`SELECT id FROM jobs
		 WHERE status = 'published'
		 ORDER BY published_at DESC NULLS LAST, id DESC
		 LIMIT $1`,
		limit,
	)
}

// ─── Candidates ──────────────────────────────────────────────────────────────

// Candidate loads a candidate with provinces, skills and experiences.
func (s *Store) Candidate(ctx context.Context, id int64) (*model.Candidate, error) {
	var (
		c                  model.Candidate
		education          *string
		searchStatus       string
		provID             *int64
		provCode, provName *string
	)
	err := s.db.QueryRow(ctx,
		`SELECT c.id, c.user_id, c.full_name, c.bio, c.current_position,
		        c.years_of_experience, c.highest_education_level,
		        c.desired_salary_min::float8, c.desired_salary_max::float8, c.salary_currency,
		        p.id, p.code, p.name,
		        c.job_search_status, c.is_profile_public, c.updated_at
		 FROM candidates c
		 LEFT JOIN provinces p ON p.id = c.province_id
		 WHERE c.id = $1`,
		id,
	).Scan(
		&c.ID, &c.UserID, &c.FullName, &c.Bio, &c.CurrentPosition,
		&c.YearsOfExperience, &education,
		&c.DesiredSalaryMin, &c.DesiredSalaryMax, &c.SalaryCurrency,
		&provID, &provCode, &provName,
		&searchStatus, &c.IsProfilePublic, &c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.Missing("candidate", id)
	}
	if err != nil {
		return nil, fmt.Errorf("catalog.Candidate query: %w", err)
	}

	if education != nil {
		c.Education = model.Education(*education)
	}
	c.SearchStatus = model.SearchStatus(searchStatus)
	c.Province = province(provID, provCode, provName)

	if c.PreferredProvinces, err = s.preferredProvinces(ctx, id); err != nil {
		return nil, err
	}
	if c.Skills, err = s.candidateSkills(ctx, id); err != nil {
		return nil, err
	}
	if c.Experiences, err = s.experiences(ctx, id); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) preferredProvinces(ctx context.Context, candidateID int64) ([]model.Province, error) {
	rows, err := s.db.Query(ctx,
		`SELECT p.id, p.code, p.name
		 FROM candidate_locations cl
		 JOIN provinces p ON p.id = cl.province_id
		 WHERE cl.candidate_id = $1
		 ORDER BY p.id`,
		candidateID,
	)
	if err != nil {
		return nil, fmt.Errorf("catalog.preferredProvinces query: %w", err)
	}
	defer rows.Close()

	out := make([]model.Province, 0)
	for rows.Next() {
		var p model.Province
		if err := rows.Scan(&p.ID, &p.Code, &p.Name); err != nil {
			return nil, fmt.Errorf("catalog.preferredProvinces scan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) candidateSkills(ctx context.Context, candidateID int64) ([]model.CandidateSkill, error) {
	rows, err := s.db.Query(ctx,
		`SELECT cs.skill_id, sk.name, COALESCE(cs.proficiency_level, '')
		 FROM candidate_skills cs
		 JOIN skills sk ON sk.id = cs.skill_id
		 WHERE cs.candidate_id = $1`,
		candidateID,
	)
	if err != nil {
		return nil, fmt.Errorf("catalog.candidateSkills query: %w", err)
	}
	defer rows.Close()

	out := make([]model.CandidateSkill, 0)
	for rows.Next() {
		var (
			sk   model.CandidateSkill
			prof string
		)
		if err := rows.Scan(&sk.SkillID, &sk.Name, &prof); err != nil {
			return nil, fmt.Errorf("catalog.candidateSkills scan: %w", err)
		}
		sk.Proficiency = model.Proficiency(prof)
		out = append(out, sk)
	}
	return out, rows.Err()
}

func (s *Store) experiences(ctx context.Context, candidateID int64) ([]model.Experience, error) {
	rows, err := s.db.Query(ctx,
		`SELECT title, company, description
		 FROM candidate_experiences
		 WHERE candidate_id = $1
		 ORDER BY start_date DESC NULLS LAST, id DESC`,
		candidateID,
	)
	if err != nil {
		return nil, fmt.Errorf("catalog.experiences query: %w", err)
	}
	defer rows.Close()

	out := make([]model.Experience, 0)
	for rows.Next() {
		var e model.Experience
		if err := rows.Scan(&e.Title, &e.Company, &e.Description); err != nil {
			return nil, fmt.Errorf("catalog.experiences scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ActiveCandidates returns up to limit ids of public candidates who are
// actively or passively looking, most recently updated first.
func (s *Store) ActiveCandidates(ctx context.Context, limit int) ([]int64, error) {
	return s.ids(ctx, "catalog.ActiveCandidates",
		`SELECT id FROM candidates
		 WHERE job_search_status IN ('active', 'passive') AND is_profile_public
		 ORDER BY updated_at DESC, id DESC
		 LIMIT $1`,
		limit,
	)
}

// CandidateUserID maps a candidate to the owning user.
func (s *Store) CandidateUserID(ctx context.Context, candidateID int64) (int64, error) {
	var userID int64
	err := s.db.QueryRow(ctx, `SELECT user_id FROM candidates WHERE id = $1`, candidateID).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, apperr.Missing("candidate", candidateID)
	}
	if err != nil {
		return 0, fmt.Errorf("catalog.CandidateUserID: %w", err)
	}
	return userID, nil
}

// CandidateIDForUser maps a user to their candidate profile.
func (s *Store) CandidateIDForUser(ctx context.Context, userID int64) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, `SELECT id FROM candidates WHERE user_id = $1`, userID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, apperr.Missing("candidate profile", userID)
	}
	if err != nil {
		return 0, fmt.Errorf("catalog.CandidateIDForUser: %w", err)
	}
	return id, nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func (s *Store) ids(ctx context.Context, op, query string, args ...any) ([]int64, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s query: %w", op, err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("%s scan: %w", op, err)
	}
	return ids, nil
}

func province(id *int64, code, name *string) *model.Province {
	if id == nil {
		return nil
	}
	p := &model.Province{ID: *id}
	if code != nil {
		p.Code = *code
	}
	if name != nil {
		p.Name = *name
	}
	return p
}
