package models

import "time"

// InvoiceStatus represents the billing lifecycle of an invoice.
type InvoiceStatus string

const (
	InvoiceStatusPending InvoiceStatus = "PENDING"
	InvoiceStatusPaid    InvoiceStatus = "PAID"
	InvoiceStatusOverdue InvoiceStatus = "OVERDUE"
	InvoiceStatusVoid    InvoiceStatus = "VOID"
)

// Invoice bills a student for a housing period. RoomID is captured at issue
// time so the invoice survives later unassignment or room deletion.
type Invoice struct {
	ID        string        `db:"id" json:"id"`
	StudentID string        `db:"student_id" json:"student_id"`
	RoomID    *string       `db:"room_id" json:"room_id,omitempty"`
	Period    string        `db:"period" json:"period"`
	Amount    float64       `db:"amount" json:"amount"`
	Currency  string        `db:"currency" json:"currency"`
	Status    InvoiceStatus `db:"status" json:"status"`
	DueDate   time.Time     `db:"due_date" json:"due_date"`
	PaidAt    *time.Time    `db:"paid_at" json:"paid_at,omitempty"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt time.Time     `db:"updated_at" json:"updated_at"`
}

// InvoiceDetail enriches Invoice with student and room labels.
type InvoiceDetail struct {
	Invoice
	StudentName   string  `db:"student_name" json:"student_name"`
	StudentNumber string  `db:"student_number" json:"student_number"`
	RoomNumber    *string `db:"room_number" json:"room_number,omitempty"`
}

// InvoiceFilter provides filters for listing invoices.
type InvoiceFilter struct {
	StudentID string
	Status    InvoiceStatus
	Period    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
