package alerts

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"jobboard/matching-service/internal/apperr"
	"jobboard/matching-service/internal/logger"
	"jobboard/matching-service/internal/model"
	"jobboard/matching-service/internal/notify"
	"jobboard/matching-service/internal/settings"
)

// Jobs loads a job aggregate.
type Jobs interface {
	Job(ctx context.Context, id int64) (*model.Job, error)
}

// Matches is the store surface the Matcher needs.
type Matches interface {
	Candidates(ctx context.Context, job *model.Job) ([]model.Alert, error)
	UpsertMatch(ctx context.Context, alertID, jobID int64, score float64) (bool, error)
	MarkSent(ctx context.Context, alertID, jobID int64) error
	Unsent(ctx context.Context, limit int) ([]Pending, error)
}

// Notifier delivers a notification. A nil result means the notification
// type is not registered.
type Notifier interface {
	Send(ctx context.Context, m notify.Message) (*model.Notification, error)
}

// Knobs supplies the runtime match threshold.
type Knobs interface {
	Knobs(ctx context.Context) settings.Knobs
}

// Matcher fans a published job out to matching alerts.
type Matcher struct {
	jobs   Jobs
	store  Matches
	notify Notifier
	knobs  Knobs
	log    *zap.Logger
}

// NewMatcher returns a Matcher.
func NewMatcher(jobs Jobs, store Matches, n Notifier, knobs Knobs, log *zap.Logger) *Matcher {
	return &Matcher{jobs: jobs, store: store, notify: n, knobs: knobs, log: logger.OrNop(log).Named("alerts")}
}

// Result summarizes one ProcessJob call.
type Result struct {
	Considered int
	Matched    int
	Notified   int
}

// ProcessJob scores every pre-filtered alert against the job, records the
// matches at or above the threshold and notifies each owner once.
// Missing or unpublished jobs are skipped without error.
func (m *Matcher) ProcessJob(ctx context.Context, jobID int64) (Result, error) {
	var res Result
	log := m.log.With(zap.Int64(logger.FieldJobID, jobID))

	job, err := m.jobs.Job(ctx, jobID)
	if apperr.KindOf(err) == apperr.KindEntityMissing {
		log.Info("job not found for alert fan-out")
		return res, nil
	}
	if err != nil {
		return res, err
	}
	if !job.IsPublished() {
		log.Debug("job not published, skipping alert fan-out", zap.String("status", string(job.Status)))
		return res, nil
	}

	alerts, err := m.store.Candidates(ctx, job)
	if err != nil {
		return res, err
	}
	res.Considered = len(alerts)
	threshold := float64(m.threshold(ctx))

	for i := range alerts {
		a := &alerts[i]
		b := Score(a, job)
		if b.Total < threshold {
			continue
		}
		sent, err := m.store.UpsertMatch(ctx, a.ID, job.ID, b.Total)
		if err != nil {
			return res, err
		}
		res.Matched++
		if sent {
			continue
		}
		ok, err := m.deliver(ctx, a.UserID, a.ID, a.Name, job.ID, job.Title, job.Slug, job.CompanyName)
		if err != nil {
			return res, err
		}
		if ok {
			res.Notified++
		}
	}

	log.Info("alert fan-out complete",
		zap.Int("considered", res.Considered),
		zap.Int("matched", res.Matched),
		zap.Int("notified", res.Notified))
	return res, nil
}

// Redeliver retries notifications for matches that were recorded but never
// delivered. It returns how many were sent.
func (m *Matcher) Redeliver(ctx context.Context, limit int) (int, error) {
	pending, err := m.store.Unsent(ctx, limit)
	if err != nil {
		return 0, err
	}
	var sent int
	for _, p := range pending {
		ok, err := m.deliver(ctx, p.UserID, p.AlertID, p.AlertName, p.JobID, p.JobTitle, p.JobSlug, p.CompanyName)
		if err != nil {
			return sent, err
		}
		if ok {
			sent++
		}
	}
	if len(pending) > 0 {
		m.log.Info("alert redelivery", zap.Int("pending", len(pending)), zap.Int("sent", sent))
	}
	return sent, nil
}

// deliver sends one match notification. A failed or skipped send leaves the
// match unsent for redelivery; only MarkSent errors are returned.
func (m *Matcher) deliver(ctx context.Context, userID, alertID int64, alertName string,
	jobID int64, title, slug, company string) (bool, error) {
	msg := MatchMessage(userID, alertName, jobID, title, slug, company)
	n, err := m.notify.Send(ctx, msg)
	if err != nil {
		m.log.Warn("alert notification failed",
			zap.Int64("alert_id", alertID), zap.Int64(logger.FieldJobID, jobID), zap.Error(err))
		return false, nil
	}
	if n == nil {
		m.log.Warn("alert notification skipped, type not registered",
			zap.Int64("alert_id", alertID), zap.Int64(logger.FieldJobID, jobID))
		return false, nil
	}
	if err := m.store.MarkSent(ctx, alertID, jobID); err != nil {
		return false, err
	}
	return true, nil
}

func (m *Matcher) threshold(ctx context.Context) int {
	if m.knobs != nil {
		if t := m.knobs.Knobs(ctx).AlertScoreThreshold; t > 0 {
			return t
		}
	}
	return DefaultThreshold
}

// MatchMessage builds the notification for an alert match.
func MatchMessage(userID int64, alertName string, jobID int64, title, slug, company string) notify.Message {
	id := jobID
	return notify.Message{
		UserID:  userID,
		Type:    notify.TypeJobAlertMatch,
		Title:   "Job matched: " + title,
		Content: fmt.Sprintf("Job %s at %s is matched with your alert '%s'.", title, company, alertName),
		Link:    "/jobs/" + slug,
		Entity:  model.EntityRef{Type: model.EntityJob, ID: &id},
	}
}
