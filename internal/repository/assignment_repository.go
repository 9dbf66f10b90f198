package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/dorm-adp-api/internal/models"
	appErrors "github.com/noah-isme/dorm-adp-api/pkg/errors"
)

const foreignKeyViolation = pq.ErrorCode("23503")

// AssignmentRepository owns the bidirectional room/student occupancy link.
// All writes to rooms.occupied and students.room_id go through here, inside a
// single transaction: the room row lock serializes concurrent assignments per
// room, and the conditional occupancy update is the capacity invariant's last
// line of defence.
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository constructs an AssignmentRepository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

const roomColumns = `id, room_number, type, capacity, occupied, is_available, price, floor_level, quiet_study, gender_preference, amenities, created_at, updated_at`

type occupancyRow struct {
	ID       string `db:"id"`
	Capacity int    `db:"capacity"`
	Occupied int    `db:"occupied"`
}

type studentLinkRow struct {
	ID     string  `db:"id"`
	RoomID *string `db:"room_id"`
}

// Assign adds the student to the room and points the student back at it.
// Returns the room state after the write.
func (r *AssignmentRepository) Assign(ctx context.Context, roomID, studentID string) (*models.Room, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin assignment: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	room, err := lockRoom(ctx, tx, roomID)
	if err != nil {
		return nil, err
	}
	student, err := lockStudent(ctx, tx, studentID)
	if err != nil {
		return nil, err
	}

	if student.RoomID != nil {
		if *student.RoomID == roomID {
			return nil, appErrors.Clone(appErrors.ErrAlreadyAssigned, "student already occupies this room")
		}
		return nil, appErrors.Clone(appErrors.ErrAlreadyAssigned, "student already holds a different room")
	}
	if room.Occupied >= room.Capacity {
		return nil, appErrors.ErrCapacityExceeded
	}

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`UPDATE rooms SET occupied = occupied + 1, is_available = occupied + 1 < capacity, updated_at = $2 WHERE id = $1 AND occupied < capacity`,
		roomID, now)
	if err != nil {
		return nil, fmt.Errorf("increment occupancy: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("increment occupancy: %w", err)
	}
	if affected == 0 {
		return nil, appErrors.ErrCapacityExceeded
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE students SET room_id = $2, updated_at = $3 WHERE id = $1`,
		studentID, roomID, now); err != nil {
		return nil, fmt.Errorf("link student to room: %w", err)
	}

	var updated models.Room
	if err := tx.GetContext(ctx, &updated, fmt.Sprintf("SELECT %s FROM rooms WHERE id = $1", roomColumns), roomID); err != nil {
		return nil, fmt.Errorf("reload room: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit assignment: %w", err)
	}
	return &updated, nil
}

// Unassign removes the student from the room and clears the back reference.
func (r *AssignmentRepository) Unassign(ctx context.Context, roomID, studentID string) (*models.Room, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin unassignment: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := lockRoom(ctx, tx, roomID); err != nil {
		return nil, err
	}
	student, err := lockStudent(ctx, tx, studentID)
	if err != nil {
		return nil, err
	}

	if student.RoomID == nil || *student.RoomID != roomID {
		return nil, appErrors.ErrNotAssigned
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`UPDATE rooms SET occupied = occupied - 1, is_available = TRUE, updated_at = $2 WHERE id = $1 AND occupied > 0`,
		roomID, now); err != nil {
		return nil, fmt.Errorf("decrement occupancy: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE students SET room_id = NULL, updated_at = $2 WHERE id = $1`,
		studentID, now); err != nil {
		return nil, fmt.Errorf("unlink student from room: %w", err)
	}

	var updated models.Room
	if err := tx.GetContext(ctx, &updated, fmt.Sprintf("SELECT %s FROM rooms WHERE id = $1", roomColumns), roomID); err != nil {
		return nil, fmt.Errorf("reload room: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit unassignment: %w", err)
	}
	return &updated, nil
}

// DeleteRoom removes a room. While occupants exist the delete is rejected
// unless force is set, in which case every occupant is unassigned in the same
// transaction so no student is left pointing at a dead room. Room-scoped
// applications and maintenance tickets carry NOT NULL references and are
// removed in the same transaction; invoice and announcement references are
// nullable and detach via ON DELETE SET NULL.
func (r *AssignmentRepository) DeleteRoom(ctx context.Context, roomID string, force bool) (int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin room delete: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := lockRoom(ctx, tx, roomID); err != nil {
		return 0, err
	}

	var occupants int
	if err := tx.GetContext(ctx, &occupants, `SELECT COUNT(*) FROM students WHERE room_id = $1`, roomID); err != nil {
		return 0, fmt.Errorf("count occupants: %w", err)
	}
	if occupants > 0 && !force {
		return 0, appErrors.ErrRoomOccupied
	}

	if occupants > 0 {
		if _, err := tx.ExecContext(ctx,
			`UPDATE students SET room_id = NULL, updated_at = $2 WHERE room_id = $1`,
			roomID, time.Now().UTC()); err != nil {
			return 0, fmt.Errorf("unassign occupants: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM maintenance_tickets WHERE room_id = $1`, roomID); err != nil {
		return 0, fmt.Errorf("delete room tickets: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM applications WHERE room_id = $1`, roomID); err != nil {
		return 0, fmt.Errorf("delete room applications: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM rooms WHERE id = $1`, roomID); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == foreignKeyViolation {
			return 0, appErrors.Clone(appErrors.ErrRoomOccupied, "room is still referenced by other records")
		}
		return 0, fmt.Errorf("delete room: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit room delete: %w", err)
	}
	return occupants, nil
}

func lockRoom(ctx context.Context, tx *sqlx.Tx, roomID string) (*occupancyRow, error) {
	var room occupancyRow
	if err := tx.GetContext(ctx, &room, `SELECT id, capacity, occupied FROM rooms WHERE id = $1 FOR UPDATE`, roomID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "room not found")
		}
		return nil, fmt.Errorf("lock room: %w", err)
	}
	return &room, nil
}

func lockStudent(ctx context.Context, tx *sqlx.Tx, studentID string) (*studentLinkRow, error) {
	var student studentLinkRow
	if err := tx.GetContext(ctx, &student, `SELECT id, room_id FROM students WHERE id = $1 FOR UPDATE`, studentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, fmt.Errorf("lock student: %w", err)
	}
	return &student, nil
}
