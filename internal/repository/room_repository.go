package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/dorm-adp-api/internal/models"
)

// RoomRepository manages persistence for room records. Occupancy mutation is
// deliberately absent here; it belongs to AssignmentRepository.
type RoomRepository struct {
	db *sqlx.DB
}

// NewRoomRepository constructs a RoomRepository.
func NewRoomRepository(db *sqlx.DB) *RoomRepository {
	return &RoomRepository{db: db}
}

// List returns rooms matching the provided filters.
func (r *RoomRepository) List(ctx context.Context, filter models.RoomFilter) ([]models.Room, int, error) {
	base := "FROM rooms"
	var conditions []string
	var args []interface{}

	if filter.Available != nil {
		conditions = append(conditions, fmt.Sprintf("is_available = $%d", len(args)+1))
		args = append(args, *filter.Available)
	}
	if filter.Type != "" {
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)+1))
		args = append(args, filter.Type)
	}
	if filter.MinPrice != nil {
		conditions = append(conditions, fmt.Sprintf("price >= $%d", len(args)+1))
		args = append(args, *filter.MinPrice)
	}
	if filter.MaxPrice != nil {
		conditions = append(conditions, fmt.Sprintf("price <= $%d", len(args)+1))
		args = append(args, *filter.MaxPrice)
	}
	if filter.FloorLevel != nil {
		conditions = append(conditions, fmt.Sprintf("floor_level = $%d", len(args)+1))
		args = append(args, *filter.FloorLevel)
	}
	if filter.QuietStudy != nil {
		conditions = append(conditions, fmt.Sprintf("quiet_study = $%d", len(args)+1))
		args = append(args, *filter.QuietStudy)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(room_number) LIKE $%d OR LOWER(type::text) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"room_number": "room_number",
		"price":       "price",
		"capacity":    "capacity",
		"floor_level": "floor_level",
		"created_at":  "created_at",
	}
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "room_number"
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "room_number"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", roomColumns, base+clause, column, order, size, offset)

	var rooms []models.Room
	if err := r.db.SelectContext(ctx, &rooms, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list rooms: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count rooms: %w", err)
	}
	return rooms, total, nil
}

// FindByID fetches a room by ID.
func (r *RoomRepository) FindByID(ctx context.Context, id string) (*models.Room, error) {
	query := fmt.Sprintf("SELECT %s FROM rooms WHERE id = $1", roomColumns)
	var room models.Room
	if err := r.db.GetContext(ctx, &room, query, id); err != nil {
		return nil, err
	}
	return &room, nil
}

// Occupants returns the students currently assigned to the room.
func (r *RoomRepository) Occupants(ctx context.Context, roomID string) ([]models.RoomOccupant, error) {
	const query = `SELECT s.id AS student_id, s.student_number, s.full_name, s.email
        FROM students s WHERE s.room_id = $1 ORDER BY s.full_name ASC`
	var occupants []models.RoomOccupant
	if err := r.db.SelectContext(ctx, &occupants, query, roomID); err != nil {
		return nil, fmt.Errorf("list occupants: %w", err)
	}
	return occupants, nil
}

// ExistsByNumber checks if a room with the given number exists, optionally excluding an ID.
func (r *RoomRepository) ExistsByNumber(ctx context.Context, roomNumber string, excludeID string) (bool, error) {
	query := "SELECT 1 FROM rooms WHERE room_number = $1"
	args := []interface{}{roomNumber}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check room number: %w", err)
	}
	return true, nil
}

// Create inserts a new room record.
func (r *RoomRepository) Create(ctx context.Context, room *models.Room) error {
	if room.ID == "" {
		room.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if room.CreatedAt.IsZero() {
		room.CreatedAt = now
	}
	room.UpdatedAt = now
	room.IsAvailable = room.Occupied < room.Capacity
	const query = `INSERT INTO rooms (id, room_number, type, capacity, occupied, is_available, price, floor_level, quiet_study, gender_preference, amenities, created_at, updated_at)
        VALUES (:id, :room_number, :type, :capacity, :occupied, :is_available, :price, :floor_level, :quiet_study, :gender_preference, :amenities, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, room); err != nil {
		return fmt.Errorf("create room: %w", err)
	}
	return nil
}

// Update modifies descriptive room fields. Capacity changes keep the
// availability flag consistent with the current occupancy.
func (r *RoomRepository) Update(ctx context.Context, room *models.Room) error {
	room.UpdatedAt = time.Now().UTC()
	const query = `UPDATE rooms SET room_number = :room_number, type = :type, capacity = :capacity,
        is_available = occupied < :capacity, price = :price, floor_level = :floor_level,
        quiet_study = :quiet_study, gender_preference = :gender_preference, amenities = :amenities,
        updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, room); err != nil {
		return fmt.Errorf("update room: %w", err)
	}
	return nil
}
