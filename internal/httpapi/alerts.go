package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"jobboard/matching-service/internal/alerts"
	"jobboard/matching-service/internal/apperr"
)

func (a *api) alertRoutes(r chi.Router) {
	r.Get("/", a.listAlerts)
	r.Post("/", a.createAlert)
	r.Route("/{alertID}", func(r chi.Router) {
		r.Get("/", a.getAlert)
		r.Patch("/", a.updateAlert)
		r.Put("/", a.updateAlert)
		r.Delete("/", a.deleteAlert)
		r.Post("/toggle", a.toggleAlert)
		r.Get("/matched-jobs", a.matchedJobs)
	})
}

// callerCandidate resolves the caller's candidate profile. Alerts belong to
// candidates only.
func (a *api) callerCandidate(r *http.Request) (int64, error) {
	id, err := a.Candidates.CandidateIDForUser(r.Context(), principal(r).UserID)
	if apperr.KindOf(err) == apperr.KindEntityMissing {
		return 0, apperr.Forbidden("job alerts require a candidate profile")
	}
	return id, err
}

// alertScope resolves the caller's candidate and the alert id in the path.
func (a *api) alertScope(r *http.Request) (candidateID, alertID int64, err error) {
	if candidateID, err = a.callerCandidate(r); err != nil {
		return 0, 0, err
	}
	if alertID, err = pathID(r, "alertID"); err != nil {
		return 0, 0, err
	}
	return candidateID, alertID, nil
}

func (a *api) listAlerts(w http.ResponseWriter, r *http.Request) {
	cid, err := a.callerCandidate(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	out, total, err := a.Alerts.List(r.Context(), cid, pageOf(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	jsonList(w, out, total)
}

func (a *api) createAlert(w http.ResponseWriter, r *http.Request) {
	cid, err := a.callerCandidate(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var in alerts.Input
	if err := decode(r, &in); err != nil {
		a.fail(w, r, err)
		return
	}
	alert, err := a.Alerts.Create(r.Context(), cid, in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	jsonCreated(w, alert)
}

func (a *api) getAlert(w http.ResponseWriter, r *http.Request) {
	cid, id, err := a.alertScope(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	alert, err := a.Alerts.Get(r.Context(), cid, id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	jsonOK(w, alert)
}

func (a *api) updateAlert(w http.ResponseWriter, r *http.Request) {
	cid, id, err := a.alertScope(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var in alerts.Input
	if err := decode(r, &in); err != nil {
		a.fail(w, r, err)
		return
	}
	alert, err := a.Alerts.Update(r.Context(), cid, id, in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	jsonOK(w, alert)
}

func (a *api) deleteAlert(w http.ResponseWriter, r *http.Request) {
	cid, id, err := a.alertScope(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.Alerts.Delete(r.Context(), cid, id); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) toggleAlert(w http.ResponseWriter, r *http.Request) {
	cid, id, err := a.alertScope(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	active, err := a.Alerts.Toggle(r.Context(), cid, id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	jsonOK(w, map[string]any{"status": "success", "is_active": active})
}

func (a *api) matchedJobs(w http.ResponseWriter, r *http.Request) {
	cid, id, err := a.alertScope(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	out, total, err := a.Alerts.MatchedJobs(r.Context(), cid, id, pageOf(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	jsonList(w, out, total)
}
