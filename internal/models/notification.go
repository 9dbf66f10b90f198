package models

import "time"

// NotificationType labels what triggered a notification.
type NotificationType string

const (
	NotificationRoomAssigned   NotificationType = "ROOM_ASSIGNED"
	NotificationRoomUnassigned NotificationType = "ROOM_UNASSIGNED"
	NotificationAppApproved    NotificationType = "APPLICATION_APPROVED"
	NotificationAppRejected    NotificationType = "APPLICATION_REJECTED"
	NotificationInvoiceIssued  NotificationType = "INVOICE_ISSUED"
	NotificationTicketResolved NotificationType = "TICKET_RESOLVED"
)

// Notification is a persisted in-app notification for a user.
type Notification struct {
	ID        string           `db:"id" json:"id"`
	UserID    string           `db:"user_id" json:"user_id"`
	Type      NotificationType `db:"type" json:"type"`
	Title     string           `db:"title" json:"title"`
	Body      string           `db:"body" json:"body"`
	ReadAt    *time.Time       `db:"read_at" json:"read_at,omitempty"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
}
