package models

import "time"

// TicketStatus represents the lifecycle of a maintenance ticket.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "OPEN"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusResolved   TicketStatus = "RESOLVED"
	TicketStatusClosed     TicketStatus = "CLOSED"
)

// TicketPriority orders maintenance work.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "LOW"
	TicketPriorityNormal TicketPriority = "NORMAL"
	TicketPriorityHigh   TicketPriority = "HIGH"
	TicketPriorityUrgent TicketPriority = "URGENT"
)

// ticketTransitions lists the allowed status moves.
var ticketTransitions = map[TicketStatus][]TicketStatus{
	TicketStatusOpen:       {TicketStatusInProgress, TicketStatusClosed},
	TicketStatusInProgress: {TicketStatusResolved, TicketStatusOpen},
	TicketStatusResolved:   {TicketStatusClosed, TicketStatusInProgress},
}

// CanTransitionTicket reports whether a ticket may move between two statuses.
func CanTransitionTicket(from, to TicketStatus) bool {
	for _, allowed := range ticketTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// MaintenanceTicket tracks a repair request against a room.
type MaintenanceTicket struct {
	ID          string         `db:"id" json:"id"`
	RoomID      string         `db:"room_id" json:"room_id"`
	ReportedBy  string         `db:"reported_by" json:"reported_by"`
	AssignedTo  *string        `db:"assigned_to" json:"assigned_to,omitempty"`
	Title       string         `db:"title" json:"title"`
	Description string         `db:"description" json:"description"`
	Priority    TicketPriority `db:"priority" json:"priority"`
	Status      TicketStatus   `db:"status" json:"status"`
	ResolvedAt  *time.Time     `db:"resolved_at" json:"resolved_at,omitempty"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}

// MaintenanceTicketDetail enriches a ticket with room context.
type MaintenanceTicketDetail struct {
	MaintenanceTicket
	RoomNumber   string `db:"room_number" json:"room_number"`
	ReporterName string `db:"reporter_name" json:"reporter_name"`
}

// MaintenanceFilter provides filters for listing tickets.
type MaintenanceFilter struct {
	RoomID     string
	Status     TicketStatus
	Priority   TicketPriority
	AssignedTo string
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}
