package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"jobboard/matching-service/internal/apperr"
)

func (a *api) listSettings(w http.ResponseWriter, r *http.Request) {
	all, err := a.Settings.All(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	jsonOK(w, all)
}

func (a *api) getSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	v, ok, err := a.Settings.Get(r.Context(), key)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if !ok {
		a.fail(w, r, apperr.Missing("setting", key))
		return
	}
	jsonOK(w, map[string]any{"key": key, "value": v})
}

func (a *api) putSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil || !json.Valid(body) {
		a.fail(w, r, apperr.Validation("body must be a JSON value"))
		return
	}
	if err := a.Settings.Put(r.Context(), key, body); err != nil {
		a.fail(w, r, err)
		return
	}
	jsonOK(w, map[string]any{"key": key, "value": json.RawMessage(body)})
}

func (a *api) listParked(w http.ResponseWriter, r *http.Request) {
	out, total, err := a.Parked.List(r.Context(), pageOf(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	jsonList(w, out, total)
}
