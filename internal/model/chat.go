package model

import "time"

// Thread is the relational metadata of a conversation.
type Thread struct {
	ID                 int64      `json:"id"`
	Subject            string     `json:"subject"`
	LastMessageAt      *time.Time `json:"last_message_at,omitempty"`
	LastMessageContent string     `json:"last_message_content"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Participant is a user's membership in a thread.
type Participant struct {
	ThreadID   int64      `json:"thread_id"`
	UserID     int64      `json:"user_id"`
	FullName   string     `json:"full_name"`
	AvatarURL  string     `json:"avatar_url,omitempty"`
	IsActive   bool       `json:"is_active"`
	LastReadAt *time.Time `json:"last_read_at,omitempty"`
}

// Message is a chat message body as stored in the document store.
type Message struct {
	ID           string    `json:"id" bson:"message_id"`
	Seq          int64     `json:"seq" bson:"seq"`
	ThreadID     int64     `json:"thread_id" bson:"thread_id"`
	SenderID     int64     `json:"sender_id" bson:"sender_id"`
	SenderName   string    `json:"sender_name" bson:"sender_name"`
	SenderAvatar string    `json:"sender_avatar,omitempty" bson:"sender_avatar,omitempty"`
	Content      string    `json:"content" bson:"content"`
	CreatedAt    time.Time `json:"created_at" bson:"created_at"`
}
