package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// chat hands the connection to the hub, which closes it with an
// application close code when the caller may not join.
func (a *api) chat(w http.ResponseWriter, r *http.Request) {
	threadID, err := pathID(r, "threadID")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var userID int64
	if p, ok := principalFrom(r); ok {
		userID = p.UserID
	}
	a.Chat.Serve(w, r, threadID, userID)
}

func (a *api) listMessages(w http.ResponseWriter, r *http.Request) {
	threadID, err := pathID(r, "threadID")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if _, err := a.Membership.Participant(r.Context(), threadID, principal(r).UserID); err != nil {
		a.fail(w, r, err)
		return
	}
	msgs, err := a.Messages.Messages(r.Context(), threadID, pageOf(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	jsonList(w, msgs, len(msgs))
}

func (a *api) deleteMessage(w http.ResponseWriter, r *http.Request) {
	threadID, err := pathID(r, "threadID")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	userID := principal(r).UserID
	if _, err := a.Membership.Participant(r.Context(), threadID, userID); err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.Messages.DeleteMessage(r.Context(), threadID, chi.URLParam(r, "messageID"), userID); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
