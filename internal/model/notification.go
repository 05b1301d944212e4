package model

import "time"

// Entity types a notification may point at.
const (
	EntityJob    = "job"
	EntityThread = "thread"
	EntityAlert  = "alert"
)

// EntityRef points at another entity without a typed reference.
type EntityRef struct {
	Type string `json:"entity_type,omitempty"`
	ID   *int64 `json:"entity_id,omitempty"`
}

// Notification is a per-user notification record.
type Notification struct {
	ID        int64      `json:"id"`
	UserID    int64      `json:"user_id"`
	Type      string     `json:"notification_type"`
	Title     string     `json:"title"`
	Content   string     `json:"content"`
	Link      string     `json:"link"`
	Entity    EntityRef  `json:"entity"`
	IsRead    bool       `json:"is_read"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
