package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"jobboard/matching-service/internal/apperr"
	"jobboard/matching-service/internal/matchstore"
	"jobboard/matching-service/internal/model"
)

const (
	defaultTopMatches = 10
	maxTopMatches     = 50
)

func (a *api) matchingRoutes(r chi.Router) {
	r.Route("/ai-matching", func(r chi.Router) {
		r.Post("/calculate", a.calculate)
		r.Post("/analyze", a.analyze)
		r.Get("/{jobID}/{candidateID}", a.getScore)

		r.Group(func(r chi.Router) {
			r.Use(requireRole(RoleEmployer, RoleAdmin))
			r.Post("/batch-calculate", a.batchCalculate)
			r.Post("/refresh", a.refresh)
			r.Get("/top-matches", a.topMatches)
			r.Get("/insights", a.insights)
		})
	})
	r.With(requireRole(RoleEmployer, RoleAdmin)).Get("/jobs/{jobID}/matching-candidates", a.matchingCandidates)
	r.Get("/recruiters/{candidateID}/matching-jobs", a.matchingJobs)
}

type pairRequest struct {
	JobID       int64 `json:"job_id"`
	CandidateID int64 `json:"recruiter_id"`
}

func (p pairRequest) validate() error {
	if p.JobID <= 0 || p.CandidateID <= 0 {
		return apperr.Validation("job_id and recruiter_id are required")
	}
	return nil
}

// authorizeCandidate lets employers and admins act on any candidate and
// everyone else only on their own profile.
func (a *api) authorizeCandidate(r *http.Request, candidateID int64) error {
	p := principal(r)
	if p.is(RoleEmployer, RoleAdmin) {
		return nil
	}
	if a.Candidates == nil {
		return apperr.Forbidden("you do not have permission to perform this action")
	}
	own, err := a.Candidates.CandidateIDForUser(r.Context(), p.UserID)
	if apperr.KindOf(err) == apperr.KindEntityMissing || (err == nil && own != candidateID) {
		return apperr.Forbidden("you can only access your own matches")
	}
	return err
}

// ─── Scores ───────────────────────────────────────────────────────────────────

func (a *api) calculate(w http.ResponseWriter, r *http.Request) {
	var req pairRequest
	if err := decode(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.authorizeCandidate(r, req.CandidateID); err != nil {
		a.fail(w, r, err)
		return
	}
	ms, err := a.Matcher.Compute(r.Context(), req.JobID, req.CandidateID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	jsonCreated(w, ms)
}

func (a *api) getScore(w http.ResponseWriter, r *http.Request) {
	jobID, err := pathID(r, "jobID")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	candidateID, err := pathID(r, "candidateID")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.authorizeCandidate(r, candidateID); err != nil {
		a.fail(w, r, err)
		return
	}
	ms, err := a.Matcher.Get(r.Context(), jobID, candidateID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	jsonOK(w, ms)
}

func (a *api) analyze(w http.ResponseWriter, r *http.Request) {
	var req pairRequest
	if err := decode(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.authorizeCandidate(r, req.CandidateID); err != nil {
		a.fail(w, r, err)
		return
	}
	res, err := a.Matcher.Analyze(r.Context(), req.JobID, req.CandidateID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	jsonOK(w, res)
}

func (a *api) batchCalculate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		JobID        int64   `json:"job_id"`
		CandidateIDs []int64 `json:"recruiter_ids"`
	}
	if err := decode(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	if req.JobID <= 0 {
		a.fail(w, r, apperr.Validation("job_id is required"))
		return
	}
	res, err := a.Matcher.BatchCompute(r.Context(), req.JobID, req.CandidateIDs)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	jsonCreated(w, res)
}

func (a *api) refresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		JobID       *int64 `json:"job_id"`
		CandidateID *int64 `json:"recruiter_id"`
	}
	if err := decode(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	f := matchstore.Filter{JobID: req.JobID, CandidateID: req.CandidateID}
	if f.Empty() {
		a.fail(w, r, apperr.Validation("job_id or recruiter_id is required"))
		return
	}
	res, err := a.Matcher.Refresh(r.Context(), f)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	jsonOK(w, res)
}

// ─── Listings ─────────────────────────────────────────────────────────────────

func statusParam(r *http.Request) (model.JobStatus, error) {
	raw := r.URL.Query().Get("status")
	if raw == "" {
		return "", nil
	}
	st, err := model.ParseJobStatus(raw)
	if err != nil {
		return "", apperr.Validation(err.Error())
	}
	return st, nil
}

func (a *api) topMatches(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	page := model.NewPage(limit, 0, defaultTopMatches, maxTopMatches)
	minScore, err := queryFloat(r, "min_score")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	status, err := statusParam(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	out, err := a.Scores.Top(r.Context(), page.Limit, minScore, status)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	jsonList(w, out, len(out))
}

func (a *api) insights(w http.ResponseWriter, r *http.Request) {
	jobID, err := queryID(r, "job_id")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	candidateID, err := queryID(r, "recruiter_id")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	agg, err := a.Scores.Aggregate(r.Context(), matchstore.Filter{JobID: jobID, CandidateID: candidateID})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	jsonOK(w, agg)
}

func (a *api) matchingCandidates(w http.ResponseWriter, r *http.Request) {
	jobID, err := pathID(r, "jobID")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	minScore, err := queryFloat(r, "min_score")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	out, total, err := a.Scores.ListForJob(r.Context(), jobID, minScore, pageOf(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	jsonList(w, out, total)
}

func (a *api) matchingJobs(w http.ResponseWriter, r *http.Request) {
	candidateID, err := pathID(r, "candidateID")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.authorizeCandidate(r, candidateID); err != nil {
		a.fail(w, r, err)
		return
	}
	minScore, err := queryFloat(r, "min_score")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	status, err := statusParam(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	out, total, err := a.Scores.ListForCandidate(r.Context(), candidateID, minScore, status, pageOf(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	jsonList(w, out, total)
}
