package models

import "time"

// Student represents a resident registered with the housing office.
type Student struct {
	ID            string    `db:"id" json:"id"`
	StudentNumber string    `db:"student_number" json:"student_number"`
	FullName      string    `db:"full_name" json:"full_name"`
	Email         string    `db:"email" json:"email"`
	Phone         string    `db:"phone" json:"phone"`
	Gender        string    `db:"gender" json:"gender"`
	Program       string    `db:"program" json:"program"`
	RoomID        *string   `db:"room_id" json:"room_id,omitempty"`
	Active        bool      `db:"active" json:"active"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// StudentDetail contains student information with housing context.
type StudentDetail struct {
	Student
	RoomNumber *string   `db:"room_number" json:"room_number,omitempty"`
	RoomType   *RoomType `db:"room_type" json:"room_type,omitempty"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search    string
	RoomID    string
	Assigned  *bool
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
