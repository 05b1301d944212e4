package chat

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
)

// Frame types.
const (
	TypeChatMessage = "chat_message"
	TypeTyping      = "typing"
	TypeRead        = "read"
	TypeMessageRead = "message_read"
	TypeUserStatus  = "user_status"
	TypeError       = "error"
)

// User status values.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Close codes sent before dropping a rejected connection.
const (
	CloseUnauthenticated = 4001
	ClosePolicyViolation = 4003
)

// Inbound is a frame received from a client.
type Inbound struct {
	Type     string `json:"type"`
	Content  string `json:"content"`
	IsTyping bool   `json:"is_typing"`
}

// DecodeInbound parses a client frame. A frame without a type is a
// chat message.
func DecodeInbound(data []byte) (Inbound, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Inbound{}, fmt.Errorf("invalid JSON format")
	}

	var in Inbound
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           &in,
	})
	if err != nil {
		return Inbound{}, err
	}
	if err := dec.Decode(raw); err != nil {
		return Inbound{}, fmt.Errorf("invalid frame: %w", err)
	}
	if in.Type == "" {
		in.Type = TypeChatMessage
	}
	in.Content = strings.TrimSpace(in.Content)
	return in, nil
}

// Event is a frame broadcast to a thread group and written to clients.
type Event struct {
	Type string `json:"type"`

	MessageID    string     `json:"message_id,omitempty"`
	Seq          int64      `json:"seq,omitempty"`
	ThreadID     int64      `json:"thread_id,omitempty"`
	Content      string     `json:"content,omitempty"`
	SenderID     int64      `json:"sender_id,omitempty"`
	SenderName   string     `json:"sender_name,omitempty"`
	SenderAvatar string     `json:"sender_avatar,omitempty"`
	CreatedAt    *time.Time `json:"created_at,omitempty"`

	UserID    int64      `json:"user_id,omitempty"`
	UserName  string     `json:"user_name,omitempty"`
	IsTyping  *bool      `json:"is_typing,omitempty"`
	Status    string     `json:"status,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`

	Message string `json:"message,omitempty"`
}

// visibleTo reports whether the event should be written to userID's socket.
// Typing indicators are not echoed to the typist.
func (e Event) visibleTo(userID int64) bool {
	return !(e.Type == TypeTyping && e.UserID == userID)
}

func errorEvent(msg string) Event {
	return Event{Type: TypeError, Message: msg}
}

func statusEvent(userID int64, status string, at time.Time) Event {
	return Event{Type: TypeUserStatus, UserID: userID, Status: status, Timestamp: &at}
}
