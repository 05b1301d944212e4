// Package taskqueue runs background tasks with bounded parallelism,
// exponential-backoff retries and parking of tasks that keep failing.
package taskqueue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Task names.
const (
	RecomputeForCandidate = "recompute_for_candidate"
	RecomputeForJob       = "recompute_for_job"
	AlertFanoutForJob     = "alert_fanout_for_job"
	PersistChatMessage    = "persist_chat_message"
)

// Task is the envelope carried by every transport.
type Task struct {
	ID         uuid.UUID       `json:"id"`
	Name       string          `json:"name"`
	Payload    json.RawMessage `json:"payload"`
	Attempt    int             `json:"attempt"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// NewTask wraps payload in a fresh envelope.
func NewTask(name string, payload any) (Task, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Task{}, fmt.Errorf("marshal %s payload: %w", name, err)
	}
	return Task{
		ID:         uuid.New(),
		Name:       name,
		Payload:    raw,
		EnqueuedAt: time.Now().UTC(),
	}, nil
}

// Decode unmarshals the payload into v.
func (t Task) Decode(v any) error {
	if err := json.Unmarshal(t.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", t.Name, err)
	}
	return nil
}

// EntityPayload is the payload of the recompute and fan-out tasks.
type EntityPayload struct {
	ID int64 `json:"id"`
}

// ChatMessagePayload is the payload of persist_chat_message.
type ChatMessagePayload struct {
	ThreadID     int64     `json:"thread_id"`
	SenderID     int64     `json:"sender_id"`
	SenderName   string    `json:"sender_name"`
	SenderAvatar string    `json:"sender_avatar,omitempty"`
	Content      string    `json:"content"`
	MessageID    string    `json:"message_id,omitempty"`
	Seq          int64     `json:"seq"`
	RecipientIDs []int64   `json:"recipient_ids,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
