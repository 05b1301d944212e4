package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"jobboard/matching-service/internal/apperr"
	"jobboard/matching-service/internal/db"
	"jobboard/matching-service/internal/model"
)

// Pool runs statements and transactions. Satisfied by *pgxpool.Pool.
type Pool interface {
	db.DBTX
	db.TxBeginner
}

// Store persists alerts and their matches.
type Store struct {
	pool Pool
}

// NewStore returns a Store.
func NewStore(pool Pool) *Store {
	return &Store{pool: pool}
}

// Input carries the writable fields of an alert. Nil fields are left
// unchanged on update.
type Input struct {
	Name        *string  `json:"alert_name"`
	Keywords    *string  `json:"keywords"`
	CategoryID  *int64   `json:"category_id"`
	JobType     *string  `json:"job_type"`
	Level       *string  `json:"level"`
	SalaryMin   *float64 `json:"salary_min"`
	SalaryMax   *float64 `json:"salary_max"`
	LocationIDs *[]int64 `json:"location_ids"`
	SkillIDs    *[]int64 `json:"skill_ids"`
	Frequency   *string  `json:"frequency"`
	IsActive    *bool    `json:"is_active"`
}

// apply merges in onto a and validates the result. An empty job_type or
// level string clears the filter.
func (in Input) apply(a *model.Alert) error {
	if in.Name != nil {
		a.Name = strings.TrimSpace(*in.Name)
	}
	if in.Keywords != nil {
		a.Keywords = strings.TrimSpace(*in.Keywords)
	}
	if in.CategoryID != nil {
		a.CategoryID = in.CategoryID
	}
	if in.JobType != nil {
		a.JobType = nil
		if *in.JobType != "" {
			jt, err := model.ParseJobType(*in.JobType)
			if err != nil {
				return apperr.Validation(err.Error()).WithDetails("job_type", *in.JobType)
			}
			a.JobType = &jt
		}
	}
	if in.Level != nil {
		a.Level = nil
		if *in.Level != "" {
			lv, err := model.ParseLevel(*in.Level)
			if err != nil {
				return apperr.Validation(err.Error()).WithDetails("level", *in.Level)
			}
			a.Level = &lv
		}
	}
	if in.SalaryMin != nil {
		a.SalaryMin = in.SalaryMin
	}
	if in.SalaryMax != nil {
		a.SalaryMax = in.SalaryMax
	}
	if in.LocationIDs != nil {
		a.Locations = make([]model.Province, 0, len(*in.LocationIDs))
		for _, id := range *in.LocationIDs {
			a.Locations = append(a.Locations, model.Province{ID: id})
		}
	}
	if in.SkillIDs != nil {
		a.SkillIDs = append([]int64{}, *in.SkillIDs...)
	}
	if in.Frequency != nil {
		f, err := model.ParseAlertFrequency(*in.Frequency)
		if err != nil {
			return apperr.Validation(err.Error()).WithDetails("frequency", *in.Frequency)
		}
		a.Frequency = f
	}
	if in.IsActive != nil {
		a.IsActive = *in.IsActive
	}

	switch {
	case a.Name == "":
		return apperr.Validation("alert_name is required")
	case a.SalaryMin != nil && *a.SalaryMin < 0:
		return apperr.Validation("salary_min must not be negative")
	case a.SalaryMax != nil && *a.SalaryMax < 0:
		return apperr.Validation("salary_max must not be negative")
	case a.SalaryMin != nil && a.SalaryMax != nil && *a.SalaryMin > *a.SalaryMax:
		return apperr.Validation("salary_min must not exceed salary_max")
	}
	return nil
}

func locationIDs(a *model.Alert) []int64 {
	ids := make([]int64, len(a.Locations))
	for i, p := range a.Locations {
		ids[i] = p.ID
	}
	return ids
}

// ─── CRUD ────────────────────────────────────────────────────────────────────

const alertColumns = `a.id, a.candidate_id, c.user_id, a.alert_name, a.keywords, a.category_id,
	a.job_type, a.level, a.salary_min::float8, a.salary_max::float8, a.is_active, a.frequency,
	a.last_sent_at, a.created_at, a.updated_at,
	COALESCE((SELECT json_agg(json_build_object('id', p.id, 'code', p.code, 'name', p.name) ORDER BY p.id)
	          FROM job_alert_locations l JOIN provinces p ON p.id = l.province_id
	          WHERE l.alert_id = a.id), '[]'),
	COALESCE((SELECT array_agg(s.skill_id ORDER BY s.skill_id)
	          FROM job_alert_skills s WHERE s.alert_id = a.id), '{}')`

func scanAlert(row pgx.Row) (model.Alert, error) {
	var (
		a              model.Alert
		jobType, level *string
		frequency      string
		locations      []byte
	)
	err := row.Scan(&a.ID, &a.CandidateID, &a.UserID, &a.Name, &a.Keywords, &a.CategoryID,
		&jobType, &level, &a.SalaryMin, &a.SalaryMax, &a.IsActive, &frequency,
		&a.LastSentAt, &a.CreatedAt, &a.UpdatedAt, &locations, &a.SkillIDs)
	if err != nil {
		return a, err
	}
	if jobType != nil {
		jt := model.JobType(*jobType)
		a.JobType = &jt
	}
	if level != nil {
		lv := model.Level(*level)
		a.Level = &lv
	}
	a.Frequency = model.AlertFrequency(frequency)
	a.Locations = []model.Province{}
	if len(locations) > 0 {
		if err := json.Unmarshal(locations, &a.Locations); err != nil {
			return a, fmt.Errorf("decode alert locations: %w", err)
		}
	}
	if a.SkillIDs == nil {
		a.SkillIDs = []int64{}
	}
	return a, nil
}

// Get returns an alert owned by the candidate.
func (s *Store) Get(ctx context.Context, candidateID, id int64) (*model.Alert, error) {
	a, err := scanAlert(s.pool.QueryRow(ctx,
		`SELECT `+alertColumns+`
		 FROM job_alerts a JOIN candidates c ON c.id = a.candidate_id
		 WHERE a.id = $1 AND a.candidate_id = $2`,
		id, candidateID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.Missing("job_alert", id)
	}
	if err != nil {
		return nil, fmt.Errorf("alerts.Get: %w", err)
	}
	return &a, nil
}

// List returns the candidate's alerts, newest first.
func (s *Store) List(ctx context.Context, candidateID int64, page model.Page) ([]model.Alert, int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+alertColumns+`, count(*) OVER ()
		 FROM job_alerts a JOIN candidates c ON c.id = a.candidate_id
		 WHERE a.candidate_id = $1
		 ORDER BY a.created_at DESC, a.id DESC
		 LIMIT $2 OFFSET $3`,
		candidateID, page.Limit, page.Offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("alerts.List query: %w", err)
	}
	var total int
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Alert, error) {
		return scanAlert(totalRow{row, &total})
	})
	if err != nil {
		return nil, 0, fmt.Errorf("alerts.List scan: %w", err)
	}
	return out, total, nil
}

// totalRow appends the window count column to a scan.
type totalRow struct {
	pgx.Row
	total *int
}

func (r totalRow) Scan(dest ...any) error {
	return r.Row.Scan(append(dest, r.total)...)
}

// Create stores a new alert for the candidate.
func (s *Store) Create(ctx context.Context, candidateID int64, in Input) (*model.Alert, error) {
	a := model.Alert{CandidateID: candidateID, IsActive: true, Frequency: model.FrequencyInstant}
	if err := in.apply(&a); err != nil {
		return nil, err
	}

	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO job_alerts (candidate_id, alert_name, keywords, category_id, job_type, level,
			                         salary_min, salary_max, is_active, frequency)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 RETURNING id`,
			candidateID, a.Name, a.Keywords, a.CategoryID, a.JobType, a.Level,
			a.SalaryMin, a.SalaryMax, a.IsActive, a.Frequency,
		).Scan(&a.ID)
		if err != nil {
			return fmt.Errorf("alerts.Create insert: %w", err)
		}
		return replaceLinks(ctx, tx, a.ID, locationIDs(&a), a.SkillIDs)
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, candidateID, a.ID)
}

// Update applies a partial update to an alert owned by the candidate.
func (s *Store) Update(ctx context.Context, candidateID, id int64, in Input) (*model.Alert, error) {
	a, err := s.Get(ctx, candidateID, id)
	if err != nil {
		return nil, err
	}
	if err := in.apply(a); err != nil {
		return nil, err
	}

	err = db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE job_alerts
			 SET alert_name = $3, keywords = $4, category_id = $5, job_type = $6, level = $7,
			     salary_min = $8, salary_max = $9, is_active = $10, frequency = $11, updated_at = now()
			 WHERE id = $1 AND candidate_id = $2`,
			id, candidateID, a.Name, a.Keywords, a.CategoryID, a.JobType, a.Level,
			a.SalaryMin, a.SalaryMax, a.IsActive, a.Frequency,
		)
		if err != nil {
			return fmt.Errorf("alerts.Update: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return apperr.Missing("job_alert", id)
		}
		if in.LocationIDs == nil && in.SkillIDs == nil {
			return nil
		}
		return replaceLinks(ctx, tx, id, locationIDs(a), a.SkillIDs)
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, candidateID, id)
}

func replaceLinks(ctx context.Context, tx pgx.Tx, alertID int64, locations, skills []int64) error {
	if _, err := tx.Exec(ctx, `DELETE FROM job_alert_locations WHERE alert_id = $1`, alertID); err != nil {
		return fmt.Errorf("alerts clear locations: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM job_alert_skills WHERE alert_id = $1`, alertID); err != nil {
		return fmt.Errorf("alerts clear skills: %w", err)
	}
	if len(locations) > 0 {
		if _, err := tx.Exec(ctx,
			`INSERT INTO job_alert_locations (alert_id, province_id)
			 SELECT $1, unnest($2::bigint[]) ON CONFLICT DO NOTHING`,
			alertID, locations,
		); err != nil {
			return fmt.Errorf("alerts insert locations: %w", err)
		}
	}
	if len(skills) > 0 {
		if _, err := tx.Exec(ctx,
			`INSERT INTO job_alert_skills (alert_id, skill_id)
			 SELECT $1, unnest($2::bigint[]) ON CONFLICT DO NOTHING`,
			alertID, skills,
		); err != nil {
			return fmt.Errorf("alerts insert skills: %w", err)
		}
	}
	return nil
}

// Delete removes an alert owned by the candidate.
func (s *Store) Delete(ctx context.Context, candidateID, id int64) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM job_alerts WHERE id = $1 AND candidate_id = $2`, id, candidateID)
	if err != nil {
		return fmt.Errorf("alerts.Delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Missing("job_alert", id)
	}
	return nil
}

// Toggle flips is_active and returns the new value.
func (s *Store) Toggle(ctx context.Context, candidateID, id int64) (bool, error) {
	var active bool
	err := s.pool.QueryRow(ctx,
		`UPDATE job_alerts SET is_active = NOT is_active, updated_at = now()
		 WHERE id = $1 AND candidate_id = $2
		 RETURNING is_active`,
		id, candidateID,
	).Scan(&active)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, apperr.Missing("job_alert", id)
	}
	if err != nil {
		return false, fmt.Errorf("alerts.Toggle: %w", err)
	}
	return active, nil
}

// MatchedJobs lists the jobs matched by an alert, newest first.
func (s *Store) MatchedJobs(ctx context.Context, candidateID, alertID int64, page model.Page) ([]model.AlertMatch, int, error) {
	if _, err := s.Get(ctx, candidateID, alertID); err != nil {
		return nil, 0, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT m.id, m.alert_id, m.job_id, m.score::float8, m.is_sent, m.matched_at,
		        j.title, j.slug, count(*) OVER ()
		 FROM job_alert_matches m
		 JOIN jobs j ON j.id = m.job_id
		 WHERE m.alert_id = $1
		 ORDER BY m.matched_at DESC, m.id DESC
		 LIMIT $2 OFFSET $3`,
		alertID, page.Limit, page.Offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("alerts.MatchedJobs query: %w", err)
	}
	var total int
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.AlertMatch, error) {
		var m model.AlertMatch
		err := row.Scan(&m.ID, &m.AlertID, &m.JobID, &m.Score, &m.IsSent, &m.MatchedAt,
			&m.JobTitle, &m.JobSlug, &total)
		return m, err
	})
	if err != nil {
		return nil, 0, fmt.Errorf("alerts.MatchedJobs scan: %w", err)
	}
	return out, total, nil
}

// ─── Matching ────────────────────────────────────────────────────────────────

// Candidates returns the active alerts that pass the hard filters for job:
// category, job type and level each match or are unset on the alert.
func (s *Store) Candidates(ctx context.Context, job *model.Job) ([]model.Alert, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+alertColumns+`
		 FROM job_alerts a JOIN candidates c ON c.id = a.candidate_id
		 WHERE a.is_active
		   AND ($1::bigint IS NULL OR a.category_id IS NULL OR a.category_id = $1)
		   AND (a.job_type IS NULL OR a.job_type = $2)
		   AND (a.level IS NULL OR a.level = $3)
		 ORDER BY a.id`,
		job.CategoryID, string(job.JobType), string(job.Level),
	)
	if err != nil {
		return nil, fmt.Errorf("alerts.Candidates query: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Alert, error) {
		return scanAlert(row)
	})
	if err != nil {
		return nil, fmt.Errorf("alerts.Candidates scan: %w", err)
	}
	return out, nil
}

// UpsertMatch records a match, refreshing its score, and reports whether a
// notification has already gone out for it.
func (s *Store) UpsertMatch(ctx context.Context, alertID, jobID int64, score float64) (sent bool, err error) {
	err = s.pool.QueryRow(ctx,
		`INSERT INTO job_alert_matches (alert_id, job_id, score)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (alert_id, job_id) DO UPDATE SET score = EXCLUDED.score
		 RETURNING is_sent`,
		alertID, jobID, score,
	).Scan(&sent)
	if err != nil {
		return false, fmt.Errorf("alerts.UpsertMatch: %w", err)
	}
	return sent, nil
}

// MarkSent flags the match as delivered and stamps the alert's last_sent_at.
func (s *Store) MarkSent(ctx context.Context, alertID, jobID int64) error {
	_, err := s.pool.Exec(ctx,
		`WITH m AS (
		     UPDATE job_alert_matches SET is_sent = true
		     WHERE alert_id = $1 AND job_id = $2 AND NOT is_sent
		     RETURNING alert_id
		 )
		 UPDATE job_alerts SET last_sent_at = now() WHERE id IN (SELECT alert_id FROM m)`,
		alertID, jobID,
	)
	if err != nil {
		return fmt.Errorf("alerts.MarkSent: %w", err)
	}
	return nil
}

// Pending is an undelivered match with what its notification needs.
type Pending struct {
	AlertID     int64
	AlertName   string
	UserID      int64
	JobID       int64
	JobTitle    string
	JobSlug     string
	CompanyName string
}

// Unsent returns undelivered matches of active alerts on published jobs,
// oldest first.
func (s *Store) Unsent(ctx context.Context, limit int) ([]Pending, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT m.alert_id, a.alert_name, c.user_id, j.id, j.title, j.slug, COALESCE(co.name, '')
		 FROM job_alert_matches m
		 JOIN job_alerts a ON a.id = m.alert_id
		 JOIN candidates c ON c.id = a.candidate_id
		 JOIN jobs j ON j.id = m.job_id
		 LEFT JOIN companies co ON co.id = j.company_id
		 WHERE NOT m.is_sent AND a.is_active AND j.status = 'published'
		 ORDER BY m.matched_at, m.id
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("alerts.Unsent query: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Pending, error) {
		var p Pending
		err := row.Scan(&p.AlertID, &p.AlertName, &p.UserID, &p.JobID, &p.JobTitle, &p.JobSlug, &p.CompanyName)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("alerts.Unsent scan: %w", err)
	}
	return out, nil
}
