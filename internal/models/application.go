package models

import "time"

// ApplicationStatus represents the review lifecycle of a housing application.
type ApplicationStatus string

const (
	ApplicationStatusSubmitted ApplicationStatus = "SUBMITTED"
	ApplicationStatusApproved  ApplicationStatus = "APPROVED"
	ApplicationStatusRejected  ApplicationStatus = "REJECTED"
	ApplicationStatusCancelled ApplicationStatus = "CANCELLED"
)

// Application captures a student's request for a specific room together with
// their living preferences. Approval is a separate admin action; submitting
// never reserves capacity.
type Application struct {
	ID             string            `db:"id" json:"id"`
	StudentID      string            `db:"student_id" json:"student_id"`
	RoomID         string            `db:"room_id" json:"room_id"`
	Status         ApplicationStatus `db:"status" json:"status"`
	PreferredFloor *int              `db:"preferred_floor" json:"preferred_floor,omitempty"`
	RoommateGender string            `db:"roommate_gender" json:"roommate_gender"`
	StudyHabits    string            `db:"study_habits" json:"study_habits"`
	SleepSchedule  string            `db:"sleep_schedule" json:"sleep_schedule"`
	QuietStudy     bool              `db:"quiet_study" json:"quiet_study"`
	Note           string            `db:"note" json:"note"`
	DecidedBy      *string           `db:"decided_by" json:"decided_by,omitempty"`
	DecidedAt      *time.Time        `db:"decided_at" json:"decided_at,omitempty"`
	CreatedAt      time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time         `db:"updated_at" json:"updated_at"`
}

// ApplicationDetail enriches Application with student and room info.
type ApplicationDetail struct {
	Application
	StudentName   string `db:"student_name" json:"student_name"`
	StudentNumber string `db:"student_number" json:"student_number"`
	RoomNumber    string `db:"room_number" json:"room_number"`
}

// ApplicationFilter provides filters for listing applications.
type ApplicationFilter struct {
	StudentID string
	RoomID    string
	Status    ApplicationStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
