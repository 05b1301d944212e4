// Package worker binds the background task names to their handlers.
package worker

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"jobboard/matching-service/internal/alerts"
	"jobboard/matching-service/internal/apperr"
	"jobboard/matching-service/internal/logger"
	"jobboard/matching-service/internal/model"
	"jobboard/matching-service/internal/settings"
	"jobboard/matching-service/internal/taskqueue"
)

// Targets selects the fan-out set for recompute tasks.
type Targets interface {
	RecentPublishedJobs(ctx context.Context, limit int) ([]int64, error)
	ActiveCandidates(ctx context.Context, limit int) ([]int64, error)
}

// Scorer computes and stores one pair.
type Scorer interface {
	Compute(ctx context.Context, jobID, candidateID int64) (*model.MatchScore, error)
}

// AlertFanout matches a job against the stored alerts.
type AlertFanout interface {
	ProcessJob(ctx context.Context, jobID int64) (alerts.Result, error)
}

// Messages persists chat bodies and unread counters.
type Messages interface {
	SaveMessage(ctx context.Context, m model.Message) error
	IncrementUnread(ctx context.Context, threadID int64, userIDs []int64) error
}

// Knobs supplies the runtime fan-out limits.
type Knobs interface {
	Knobs(ctx context.Context) settings.Knobs
}

// Registrar is satisfied by *taskqueue.Runner.
type Registrar interface {
	Register(name string, h taskqueue.Handler)
}

// Handlers holds the dependencies of every task handler.
type Handlers struct {
	Targets  Targets
	Scorer   Scorer
	Alerts   AlertFanout
	Messages Messages
	Knobs    Knobs
	Log      *zap.Logger
}

// Register binds every task this package handles.
func (h *Handlers) Register(r Registrar) {
	r.Register(taskqueue.RecomputeForCandidate, h.RecomputeForCandidate)
	r.Register(taskqueue.RecomputeForJob, h.RecomputeForJob)
	r.Register(taskqueue.AlertFanoutForJob, h.AlertFanoutForJob)
	r.Register(taskqueue.PersistChatMessage, h.PersistChatMessage)
}

func (h *Handlers) log() *zap.Logger { return logger.OrNop(h.Log).Named("worker") }

func entityID(t taskqueue.Task) (int64, error) {
	var p taskqueue.EntityPayload
	if err := t.Decode(&p); err != nil {
		return 0, apperr.Validation(err.Error())
	}
	if p.ID <= 0 {
		return 0, apperr.Validationf("%s: id must be positive", t.Name)
	}
	return p.ID, nil
}

// RecomputeForCandidate scores the candidate against the most recently
// published jobs.
func (h *Handlers) RecomputeForCandidate(ctx context.Context, t taskqueue.Task) error {
	candID, err := entityID(t)
	if err != nil {
		return err
	}
	jobs, err := h.Targets.RecentPublishedJobs(ctx, h.Knobs.Knobs(ctx).MatchFanoutJobLimit)
	if err != nil {
		return err
	}
	return h.computeAll(ctx, t, len(jobs), func(i int) (int64, int64) { return jobs[i], candID })
}

// RecomputeForJob scores the job against the most recently active candidates.
func (h *Handlers) RecomputeForJob(ctx context.Context, t taskqueue.Task) error {
	jobID, err := entityID(t)
	if err != nil {
		return err
	}
	cands, err := h.Targets.ActiveCandidates(ctx, h.Knobs.Knobs(ctx).MatchFanoutCandidateLimit)
	if err != nil {
		return err
	}
	return h.computeAll(ctx, t, len(cands), func(i int) (int64, int64) { return jobID, cands[i] })
}

// computeAll scores n pairs. A pair whose entity has disappeared is skipped;
// any other failure aborts so the task is retried.
func (h *Handlers) computeAll(ctx context.Context, t taskqueue.Task, n int, pair func(int) (int64, int64)) error {
	log := logger.WithFields(h.log(), logger.TaskFields(t.ID.String(), t.Name, t.Attempt)...)
	var computed, skipped int
	for i := 0; i < n; i++ {
		jobID, candID := pair(i)
		_, err := h.Scorer.Compute(ctx, jobID, candID)
		switch {
		case err == nil:
			computed++
		case apperr.KindOf(err) == apperr.KindEntityMissing:
			skipped++
			log.Debug("pair skipped", append(logger.EntityFields(jobID, candID), zap.Error(err))...)
		default:
			return err
		}
	}
	log.Info("recompute complete", zap.Int("computed", computed), zap.Int("skipped", skipped))
	return nil
}

// AlertFanoutForJob runs the alert matcher for a published job.
func (h *Handlers) AlertFanoutForJob(ctx context.Context, t taskqueue.Task) error {
	jobID, err := entityID(t)
	if err != nil {
		return err
	}
	_, err = h.Alerts.ProcessJob(ctx, jobID)
	return err
}

// PersistChatMessage stores a chat message body and bumps the recipients'
// unread counters. Saving is idempotent on the message id, so a retry after
// a counter failure does not duplicate the body.
func (h *Handlers) PersistChatMessage(ctx context.Context, t taskqueue.Task) error {
	var p taskqueue.ChatMessagePayload
	if err := t.Decode(&p); err != nil {
		return apperr.Validation(err.Error())
	}
	if p.ThreadID <= 0 || p.SenderID <= 0 {
		return apperr.Validation("persist_chat_message: thread_id and sender_id are required")
	}
	if p.MessageID == "" {
		p.MessageID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = t.EnqueuedAt
	}

	msg := model.Message{
		ID:           p.MessageID,
		Seq:          p.Seq,
		ThreadID:     p.ThreadID,
		SenderID:     p.SenderID,
		SenderName:   p.SenderName,
		SenderAvatar: p.SenderAvatar,
		Content:      p.Content,
		CreatedAt:    p.CreatedAt,
	}
	if err := h.Messages.SaveMessage(ctx, msg); err != nil {
		return apperr.Transient("save chat message", err)
	}
	if err := h.Messages.IncrementUnread(ctx, p.ThreadID, p.RecipientIDs); err != nil {
		return apperr.Transient("increment unread counters", err)
	}
	return nil
}
