package models

import (
	"time"

	"github.com/lib/pq"
)

// RoomType enumerates supported room layouts.
type RoomType string

const (
	RoomTypeSingle    RoomType = "SINGLE"
	RoomTypeDouble    RoomType = "DOUBLE"
	RoomTypeSuite     RoomType = "SUITE"
	RoomTypeApartment RoomType = "APARTMENT"
)

// GenderPreference restricts who may apply for a room.
type GenderPreference string

const (
	GenderPreferenceAny    GenderPreference = "ANY"
	GenderPreferenceMale   GenderPreference = "MALE"
	GenderPreferenceFemale GenderPreference = "FEMALE"
)

// Room represents a housing unit. Occupied is the authoritative occupancy
// counter; it only moves inside assignment transactions and never exceeds
// Capacity. IsAvailable mirrors occupied < capacity after every mutation.
type Room struct {
	ID               string           `db:"id" json:"id"`
	RoomNumber       string           `db:"room_number" json:"room_number"`
	Type             RoomType         `db:"type" json:"type"`
	Capacity         int              `db:"capacity" json:"capacity"`
	Occupied         int              `db:"occupied" json:"occupied"`
	IsAvailable      bool             `db:"is_available" json:"is_available"`
	Price            float64          `db:"price" json:"price"`
	FloorLevel       int              `db:"floor_level" json:"floor_level"`
	QuietStudy       bool             `db:"quiet_study" json:"quiet_study"`
	GenderPreference GenderPreference `db:"gender_preference" json:"gender_preference"`
	Amenities        pq.StringArray   `db:"amenities" json:"amenities"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time        `db:"updated_at" json:"updated_at"`
}

// RoomOccupant is a student currently holding a slot in the room.
type RoomOccupant struct {
	StudentID     string `db:"student_id" json:"student_id"`
	StudentNumber string `db:"student_number" json:"student_number"`
	FullName      string `db:"full_name" json:"full_name"`
	Email         string `db:"email" json:"email"`
}

// RoomDetail bundles a room with its occupant roster.
type RoomDetail struct {
	Room
	Occupants []RoomOccupant `json:"occupants"`
}

// RoomFilter encapsulates allowed search parameters for listing rooms.
type RoomFilter struct {
	Available  *bool
	Type       RoomType
	MinPrice   *float64
	MaxPrice   *float64
	FloorLevel *int
	QuietStudy *bool
	Search     string
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}
