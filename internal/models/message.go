package models

import "time"

// Message is a persisted direct message between two users. Delivery (push,
// websockets) is out of scope; clients poll the thread endpoints.
type Message struct {
	ID          string     `db:"id" json:"id"`
	SenderID    string     `db:"sender_id" json:"sender_id"`
	RecipientID string     `db:"recipient_id" json:"recipient_id"`
	Body        string     `db:"body" json:"body"`
	ReadAt      *time.Time `db:"read_at" json:"read_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// MessageThread summarises the latest exchange with a counterpart.
type MessageThread struct {
	CounterpartID   string    `db:"counterpart_id" json:"counterpart_id"`
	CounterpartName string    `db:"counterpart_name" json:"counterpart_name"`
	LastBody        string    `db:"last_body" json:"last_body"`
	LastAt          time.Time `db:"last_at" json:"last_at"`
	UnreadCount     int       `db:"unread_count" json:"unread_count"`
}

// MessageFilter pages through a conversation.
type MessageFilter struct {
	UserID        string
	CounterpartID string
	Page          int
	PageSize      int
}
