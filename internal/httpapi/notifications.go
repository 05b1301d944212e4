package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"jobboard/matching-service/internal/apperr"
	"jobboard/matching-service/internal/notify"
)

func (a *api) notificationRoutes(r chi.Router) {
	r.Get("/", a.listNotifications)
	r.Post("/mark-read", a.markRead)
	r.Get("/unread-count", a.unreadCount)
	r.Delete("/clear", a.clearNotifications)
	r.Delete("/{notificationID}", a.deleteNotification)
}

func (a *api) listNotifications(w http.ResponseWriter, r *http.Request) {
	isRead, err := queryBool(r, "is_read")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	items, total, err := a.Notifications.List(r.Context(), principal(r).UserID, isRead, pageOf(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	for i := range items {
		items[i].Link = notify.ResolveLink(&items[i])
	}
	jsonList(w, items, total)
}

func (a *api) markRead(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs     []int64 `json:"ids"`
		ReadAll bool    `json:"read_all"`
	}
	if err := decode(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	userID := principal(r).UserID

	var (
		n   int64
		err error
	)
	switch {
	case req.ReadAll:
		n, err = a.Notifications.MarkAllRead(r.Context(), userID)
	case len(req.IDs) > 0:
		n, err = a.Notifications.MarkRead(r.Context(), userID, req.IDs)
	default:
		err = apperr.Validation("either ids or read_all is required")
	}
	if err != nil {
		a.fail(w, r, err)
		return
	}
	jsonOK(w, map[string]int64{"marked": n})
}

func (a *api) unreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := a.Notifications.UnreadCount(r.Context(), principal(r).UserID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	jsonOK(w, map[string]int{"unread_count": n})
}

func (a *api) deleteNotification(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "notificationID")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.Notifications.Delete(r.Context(), principal(r).UserID, id); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) clearNotifications(w http.ResponseWriter, r *http.Request) {
	n, err := a.Notifications.Clear(r.Context(), principal(r).UserID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	jsonOK(w, map[string]int64{"deleted": n})
}
