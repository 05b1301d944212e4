// Package notify writes per-user notifications and pushes a live event for
// each one on the user's channel.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"jobboard/matching-service/internal/apperr"
	"jobboard/matching-service/internal/db"
	"jobboard/matching-service/internal/logger"
	"jobboard/matching-service/internal/model"
)

// Notification type codes seeded in notification_types.
const (
	TypeJobAlertMatch = "job_alert_match"
	TypeNewMessage    = "new_message"
	TypeSystem        = "system"
)

// UserChannel is the pub/sub channel carrying push events for a user.
func UserChannel(userID int64) string {
	return "user:" + logger.IDString(userID)
}

// Publisher is the part of *redis.Client used for push events.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// Message is the input of Send.
type Message struct {
	UserID  int64
	Type    string
	Title   string
	Content string
	Link    string
	Entity  model.EntityRef
}

// PushEvent is published on UserChannel after a notification is stored.
type PushEvent struct {
	Type           string `json:"type"`
	ID             string `json:"id"`
	NotificationID int64  `json:"notification_id"`
	Title          string `json:"title"`
	Link           string `json:"link"`
}

// Service stores notifications.
type Service struct {
	db   db.DBTX
	push Publisher
	log  *zap.Logger
}

// New returns a Service. push may be nil to disable live events.
func New(conn db.DBTX, push Publisher, log *zap.Logger) *Service {
	return &Service{db: conn, push: push, log: logger.OrNop(log).Named("notify")}
}

// Send stores a notification of an active registered type. It returns nil
// without error when the type is missing or inactive.
func (s *Service) Send(ctx context.Context, m Message) (*model.Notification, error) {
	m.Title = Truncate(m.Title, maxTitleRunes)
	n := &model.Notification{
		UserID:  m.UserID,
		Type:    m.Type,
		Title:   m.Title,
		Content: m.Content,
		Link:    m.Link,
		Entity:  m.Entity,
	}

	var entityType *string
	if m.Entity.Type != "" {
		entityType = &m.Entity.Type
	}
	err := s.db.QueryRow(ctx,
		`INSERT INTO notifications (user_id, type_id, title, content, link, entity_type, entity_id)
		 SELECT $1, t.id, $3, $4, $5, $6, $7
		 FROM notification_types t
		 WHERE t.code = $2 AND t.is_active
		 RETURNING id, created_at`,
		m.UserID, m.Type, m.Title, m.Content, m.Link, entityType, m.Entity.ID,
	).Scan(&n.ID, &n.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		s.log.Warn("notification type missing or inactive",
			zap.String("type", m.Type), zap.Int64(logger.FieldUserID, m.UserID))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("notify.Send: %w", err)
	}

	s.publish(ctx, n)
	return n, nil
}

func (s *Service) publish(ctx context.Context, n *model.Notification) {
	if s.push == nil {
		return
	}
	payload, err := json.Marshal(PushEvent{
		Type:           "notification",
		ID:             uuid.NewString(),
		NotificationID: n.ID,
		Title:          n.Title,
		Link:           ResolveLink(n),
	})
	if err != nil {
		return
	}
	if err := s.push.Publish(ctx, UserChannel(n.UserID), payload).Err(); err != nil {
		s.log.Warn("push notification failed",
			zap.Int64(logger.FieldUserID, n.UserID), zap.Int64("notification_id", n.ID), zap.Error(err))
	}
}

// ResolveLink returns the stored link, or one derived from the entity.
func ResolveLink(n *model.Notification) string {
	if n.Link != "" || n.Entity.ID == nil {
		return n.Link
	}
	id := logger.IDString(*n.Entity.ID)
	switch n.Entity.Type {
	case model.EntityJob:
		return "/jobs/" + id
	case model.EntityThread:
		return "/messages/" + id
	case model.EntityAlert:
		return "/job-alerts/" + id
	}
	return ""
}

const notificationColumns = `n.id, n.user_id, t.code, n.title, n.content, n.link,
	n.entity_type, n.entity_id, n.is_read, n.read_at, n.created_at`

// List returns the user's notifications, newest first. isRead filters when set.
func (s *Service) List(ctx context.Context, userID int64, isRead *bool, page model.Page) ([]model.Notification, int, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+notificationColumns+`, count(*) OVER ()
		 FROM notifications n
		 JOIN notification_types t ON t.id = n.type_id
		 WHERE n.user_id = $1 AND ($2::boolean IS NULL OR n.is_read = $2)
		 ORDER BY n.created_at DESC, n.id DESC
		 LIMIT $3 OFFSET $4`,
		userID, isRead, page.Limit, page.Offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("notify.List query: %w", err)
	}

	var total int
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Notification, error) {
		var (
			n          model.Notification
			entityType *string
		)
		err := row.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Content, &n.Link,
			&entityType, &n.Entity.ID, &n.IsRead, &n.ReadAt, &n.CreatedAt, &total)
		if entityType != nil {
			n.Entity.Type = *entityType
		}
		n.Link = ResolveLink(&n)
		return n, err
	})
	if err != nil {
		return nil, 0, fmt.Errorf("notify.List scan: %w", err)
	}
	return out, total, nil
}

// MarkRead marks the given notifications of the user as read.
func (s *Service) MarkRead(ctx context.Context, userID int64, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, apperr.Validation("notification_ids must not be empty")
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE notifications SET is_read = true, read_at = now()
		 WHERE user_id = $1 AND id = ANY($2) AND NOT is_read`,
		userID, ids,
	)
	if err != nil {
		return 0, fmt.Errorf("notify.MarkRead: %w", err)
	}
	return tag.RowsAffected(), nil
}

// MarkAllRead marks every unread notification of the user as read.
func (s *Service) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE notifications SET is_read = true, read_at = now() WHERE user_id = $1 AND NOT is_read`,
		userID,
	)
	if err != nil {
		return 0, fmt.Errorf("notify.MarkAllRead: %w", err)
	}
	return tag.RowsAffected(), nil
}

// UnreadCount returns the number of unread notifications.
func (s *Service) UnreadCount(ctx context.Context, userID int64) (int, error) {
	var n int
	err := s.db.QueryRow(ctx,
		`SELECT count(*) FROM notifications WHERE user_id = $1 AND NOT is_read`, userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("notify.UnreadCount: %w", err)
	}
	return n, nil
}

// Delete removes one notification owned by the user.
func (s *Service) Delete(ctx context.Context, userID, id int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM notifications WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("notify.Delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Missing("notification", id)
	}
	return nil
}

// Clear removes every notification of the user.
func (s *Service) Clear(ctx context.Context, userID int64) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM notifications WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("notify.Clear: %w", err)
	}
	return tag.RowsAffected(), nil
}

// maxTitleRunes bounds a notification title, not counting the ellipsis.
const maxTitleRunes = 255

// Truncate flattens s onto one line and shortens it to limit runes.
func Truncate(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	return logger.TruncateForLog(s, limit)
}
