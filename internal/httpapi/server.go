// Package httpapi implements the HTTP+JSON surface of the matching service.
//
// Identity is forwarded by the gateway in the x-user-id and x-user-role
// headers.
//
// Routes:
//
//	POST   /ai-matching/calculate                 → score one pair
//	GET    /ai-matching/{job_id}/{recruiter_id}   → stored score
//	POST   /ai-matching/batch-calculate           → score one job against many candidates
//	POST   /ai-matching/refresh                   → recompute stored pairs
//	POST   /ai-matching/analyze                   → generated assessment of one pair
//	GET    /ai-matching/top-matches               → global ranking
//	GET    /ai-matching/insights                  → aggregates
//	GET    /jobs/{id}/matching-candidates         → scores of one job
//	GET    /recruiters/{id}/matching-jobs         → scores of one candidate
//	*      /job-alerts[/{id}[/toggle|/matched-jobs]]
//	*      /notifications[/mark-read|/unread-count|/clear|/{id}]
//	GET    /threads/{id}/messages                 → message history
//	DELETE /threads/{id}/messages/{message_id}    → delete own message
//	GET    /ws/chat/{thread_id}/                  → live chat
//	GET    /settings, GET|PUT /settings/{key}     → runtime settings (admin)
//	GET    /tasks/parked                          → parked tasks (admin)
//	GET    /health
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"jobboard/matching-service/internal/alerts"
	"jobboard/matching-service/internal/apperr"
	"jobboard/matching-service/internal/logger"
	"jobboard/matching-service/internal/matching"
	"jobboard/matching-service/internal/matchstore"
	"jobboard/matching-service/internal/model"
	"jobboard/matching-service/internal/taskqueue"
)

// ─── Dependencies ─────────────────────────────────────────────────────────────

// Matcher computes scores.
type Matcher interface {
	Compute(ctx context.Context, jobID, candidateID int64) (*model.MatchScore, error)
	Get(ctx context.Context, jobID, candidateID int64) (*model.MatchScore, error)
	BatchCompute(ctx context.Context, jobID int64, candidateIDs []int64) (*matching.BatchResult, error)
	Refresh(ctx context.Context, f matchstore.Filter) (*matching.RefreshResult, error)
	Analyze(ctx context.Context, jobID, candidateID int64) (*matching.Analysis, error)
}

// Scores lists stored scores.
type Scores interface {
	ListForJob(ctx context.Context, jobID int64, minScore float64, page model.Page) ([]model.MatchScore, int, error)
	ListForCandidate(ctx context.Context, candidateID int64, minScore float64, status model.JobStatus, page model.Page) ([]model.MatchScore, int, error)
	Top(ctx context.Context, limit int, minScore float64, status model.JobStatus) ([]model.MatchScore, error)
	Aggregate(ctx context.Context, f matchstore.Filter) (*model.Aggregate, error)
}

// Candidates maps users to candidate profiles.
type Candidates interface {
	CandidateIDForUser(ctx context.Context, userID int64) (int64, error)
}

// Alerts is the job alert store.
type Alerts interface {
	Get(ctx context.Context, candidateID, id int64) (*model.Alert, error)
	List(ctx context.Context, candidateID int64, page model.Page) ([]model.Alert, int, error)
	Create(ctx context.Context, candidateID int64, in alerts.Input) (*model.Alert, error)
	Update(ctx context.Context, candidateID, id int64, in alerts.Input) (*model.Alert, error)
	Delete(ctx context.Context, candidateID, id int64) error
	Toggle(ctx context.Context, candidateID, id int64) (bool, error)
	MatchedJobs(ctx context.Context, candidateID, alertID int64, page model.Page) ([]model.AlertMatch, int, error)
}

// Notifications is the per-user inbox.
type Notifications interface {
	List(ctx context.Context, userID int64, isRead *bool, page model.Page) ([]model.Notification, int, error)
	MarkRead(ctx context.Context, userID int64, ids []int64) (int64, error)
	MarkAllRead(ctx context.Context, userID int64) (int64, error)
	UnreadCount(ctx context.Context, userID int64) (int, error)
	Delete(ctx context.Context, userID, id int64) error
	Clear(ctx context.Context, userID int64) (int64, error)
}

// Membership checks thread participation.
type Membership interface {
	Participant(ctx context.Context, threadID, userID int64) (*model.Participant, error)
}

// Messages is the message history store.
type Messages interface {
	Messages(ctx context.Context, threadID int64, page model.Page) ([]model.Message, error)
	DeleteMessage(ctx context.Context, threadID int64, messageID string, senderID int64) error
}

// ChatServer runs a live chat connection.
type ChatServer interface {
	Serve(w http.ResponseWriter, r *http.Request, threadID, userID int64)
}

// Settings is the runtime settings store.
type Settings interface {
	All(ctx context.Context) (map[string]json.RawMessage, error)
	Get(ctx context.Context, key string) (json.RawMessage, bool, error)
	Put(ctx context.Context, key string, value json.RawMessage) error
}

// Parked lists parked tasks.
type Parked interface {
	List(ctx context.Context, page model.Page) ([]taskqueue.ParkedTask, int, error)
}

// Deps wires the API. Nil groups are not mounted.
type Deps struct {
	Matcher       Matcher
	Scores        Scores
	Candidates    Candidates
	Alerts        Alerts
	Notifications Notifications
	Membership    Membership
	Messages      Messages
	Chat          ChatServer
	Settings      Settings
	Parked        Parked
	Service       string
	Version       string
	Logger        *zap.Logger
}

// ─── Router ───────────────────────────────────────────────────────────────────

type api struct {
	Deps
	log *zap.Logger
}

// NewRouter returns the service's HTTP handler.
func NewRouter(d Deps) http.Handler {
	a := &api{Deps: d, log: logger.OrNop(d.Logger).Named("http")}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, a.accessLog, middleware.Recoverer)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		jsonError(w, "not found", http.StatusNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
	})

	r.Get("/health", a.health)

	if d.Chat != nil {
		r.Get("/ws/chat/{threadID}", a.chat)
		r.Get("/ws/chat/{threadID}/", a.chat)
	}

	r.Group(func(r chi.Router) {
		r.Use(requirePrincipal)

		if d.Matcher != nil && d.Scores != nil {
			a.matchingRoutes(r)
		}
		if d.Alerts != nil && d.Candidates != nil {
			r.Route("/job-alerts", a.alertRoutes)
		}
		if d.Notifications != nil {
			r.Route("/notifications", a.notificationRoutes)
		}
		if d.Messages != nil && d.Membership != nil {
			r.Get("/threads/{threadID}/messages", a.listMessages)
			r.Delete("/threads/{threadID}/messages/{messageID}", a.deleteMessage)
		}

		r.Group(func(r chi.Router) {
			r.Use(requireRole(RoleAdmin))
			if d.Settings != nil {
				r.Get("/settings", a.listSettings)
				r.Get("/settings/{key}", a.getSetting)
				r.Put("/settings/{key}", a.putSetting)
			}
			if d.Parked != nil {
				r.Get("/tasks/parked", a.listParked)
			}
		})
	})
	return r
}

func (a *api) health(w http.ResponseWriter, _ *http.Request) {
	jsonOK(w, map[string]string{
		"status":  "ok",
		"service": a.Service,
		"version": a.Version,
	})
}

func (a *api) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		a.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// ─── Identity ─────────────────────────────────────────────────────────────────

// Roles forwarded by the gateway.
const (
	RoleCandidate = "candidate"
	RoleEmployer  = "employer"
	RoleAdmin     = "admin"
)

// Principal is the authenticated caller.
type Principal struct {
	UserID int64
	Role   string
}

type principalKey struct{}

func principalFrom(r *http.Request) (Principal, bool) {
	id, err := strconv.ParseInt(r.Header.Get("x-user-id"), 10, 64)
	if err != nil || id <= 0 {
		return Principal{}, false
	}
	return Principal{UserID: id, Role: r.Header.Get("x-user-role")}, true
}

func requirePrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := principalFrom(r)
		if !ok {
			jsonError(w, "missing x-user-id header", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, p)))
	})
}

func requireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !principal(r).is(roles...) {
				jsonError(w, "you do not have permission to perform this action", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func principal(r *http.Request) Principal {
	p, _ := r.Context().Value(principalKey{}).(Principal)
	return p
}

func (p Principal) is(roles ...string) bool {
	for _, role := range roles {
		if p.Role == role {
			return true
		}
	}
	return false
}

// ─── Responses ────────────────────────────────────────────────────────────────

type errorBody struct {
	Error   string         `json:"error"`
	Details map[string]any `json:"details,omitempty"`
}

// listBody is the envelope of every paginated listing.
type listBody[T any] struct {
	Count   int `json:"count"`
	Results []T `json:"results"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonOK(w http.ResponseWriter, v any) { writeJSON(w, http.StatusOK, v) }

func jsonCreated(w http.ResponseWriter, v any) { writeJSON(w, http.StatusCreated, v) }

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, errorBody{Error: msg})
}

func jsonList[T any](w http.ResponseWriter, items []T, total int) {
	if items == nil {
		items = []T{}
	}
	jsonOK(w, listBody[T]{Count: total, Results: items})
}

// fail maps err onto the error envelope. Internal failures are logged and
// reported without detail.
func (a *api) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := apperr.HTTPStatus(err)
	if code >= http.StatusInternalServerError {
		a.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	msg, details := apperr.Message(err)
	writeJSON(w, code, errorBody{Error: msg, Details: details})
}

// ─── Request helpers ──────────────────────────────────────────────────────────

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Validation("invalid JSON body")
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validationf("invalid %s", name)
	}
	return id, nil
}

func pageOf(r *http.Request) model.Page {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	return model.NewPage(limit, offset, defaultPageSize, maxPageSize)
}

func queryFloat(r *http.Request, name string) (float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, apperr.Validationf("%s must be a number", name)
	}
	return v, nil
}

func queryID(r *http.Request, name string) (*int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return nil, apperr.Validationf("invalid %s", name)
	}
	return &v, nil
}

func queryBool(r *http.Request, name string) (*bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, apperr.Validationf("%s must be a boolean", name)
	}
	return &v, nil
}
