package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"jobboard/matching-service/internal/apperr"
	"jobboard/matching-service/internal/db"
	"jobboard/matching-service/internal/model"
)

// previewRunes bounds message_threads.last_message_content.
const previewRunes = 255

// ThreadStore reads and updates thread metadata and participants.
type ThreadStore struct {
	db db.DBTX
}

// NewThreadStore returns a ThreadStore.
func NewThreadStore(conn db.DBTX) *ThreadStore {
	return &ThreadStore{db: conn}
}

// Participant returns the active participant userID of threadID, or
// PermissionDenied when the user is not one.
func (s *ThreadStore) Participant(ctx context.Context, threadID, userID int64) (*model.Participant, error) {
	p := model.Participant{ThreadID: threadID, UserID: userID}
	err := s.db.QueryRow(ctx,
		`SELECT u.full_name, COALESCE(u.avatar_url, ''), p.is_active, p.last_read_at
		 FROM message_participants p
		 JOIN users u ON u.id = p.user_id
		 WHERE p.thread_id = $1 AND p.user_id = $2 AND p.is_active`,
		threadID, userID,
	).Scan(&p.FullName, &p.AvatarURL, &p.IsActive, &p.LastReadAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.Forbidden("not a participant of this thread")
	}
	if err != nil {
		return nil, fmt.Errorf("chat.Participant: %w", err)
	}
	return &p, nil
}

// RecipientIDs returns the active participants other than senderID.
func (s *ThreadStore) RecipientIDs(ctx context.Context, threadID, senderID int64) ([]int64, error) {
	rows, err := s.db.Query(ctx,
		`SELECT user_id FROM message_participants
		 WHERE thread_id = $1 AND is_active AND user_id <> $2
		 ORDER BY user_id`,
		threadID, senderID,
	)
	if err != nil {
		return nil, fmt.Errorf("chat.RecipientIDs query: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("chat.RecipientIDs scan: %w", err)
	}
	return ids, nil
}

// Touch records the latest message on the thread.
func (s *ThreadStore) Touch(ctx context.Context, threadID int64, content string, at time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE message_threads
		 SET last_message_at = $2, last_message_content = $3, updated_at = now()
		 WHERE id = $1`,
		threadID, at, preview(content, previewRunes),
	)
	if err != nil {
		return fmt.Errorf("chat.Touch: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Missing("thread", threadID)
	}
	return nil
}

// MarkRead stamps the participant's last_read_at.
func (s *ThreadStore) MarkRead(ctx context.Context, threadID, userID int64) error {
	_, err := s.db.Exec(ctx,
		`UPDATE message_participants SET last_read_at = now() WHERE thread_id = $1 AND user_id = $2`,
		threadID, userID,
	)
	if err != nil {
		return fmt.Errorf("chat.MarkRead: %w", err)
	}
	return nil
}

// preview cuts content to at most limit runes, keeping its whitespace.
func preview(content string, limit int) string {
	runes := []rune(content)
	if len(runes) <= limit {
		return content
	}
	return string(runes[:limit])
}
