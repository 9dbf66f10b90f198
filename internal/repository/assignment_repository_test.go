package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/dorm-adp-api/pkg/errors"
)

func newAssignmentRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func expectRoomLock(mock sqlmock.Sqlmock, roomID string, capacity, occupied int) {
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, capacity, occupied FROM rooms WHERE id = $1 FOR UPDATE")).
		WithArgs(roomID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "capacity", "occupied"}).AddRow(roomID, capacity, occupied))
}

func expectStudentLock(mock sqlmock.Sqlmock, studentID string, roomID *string) {
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, room_id FROM students WHERE id = $1 FOR UPDATE")).
		WithArgs(studentID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "room_id"}).AddRow(studentID, roomID))
}

func roomRows(roomID string, capacity, occupied int) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "room_number", "type", "capacity", "occupied", "is_available", "price", "floor_level", "quiet_study", "gender_preference", "amenities", "created_at", "updated_at"}).
		AddRow(roomID, "101", "DOUBLE", capacity, occupied, occupied < capacity, 450.0, 1, false, "ANY", "{}", now, now)
}

func TestAssignmentRepositoryAssign(t *testing.T) {
	db, mock, cleanup := newAssignmentRepoMock(t)
	defer cleanup()

	repo := NewAssignmentRepository(db)
	mock.ExpectBegin()
	expectRoomLock(mock, "r1", 2, 0)
	expectStudentLock(mock, "s1", nil)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE rooms SET occupied = occupied + 1")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE students SET room_id = $2")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, room_number, type,")).
		WithArgs("r1").
		WillReturnRows(roomRows("r1", 2, 1))
	mock.ExpectCommit()

	room, err := repo.Assign(context.Background(), "r1", "s1")
	require.NoError(t, err)
	require.Equal(t, 1, room.Occupied)
	require.True(t, room.IsAvailable)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentRepositoryAssignLostCapacityRace(t *testing.T) {
	db, mock, cleanup := newAssignmentRepoMock(t)
	defer cleanup()

	// The locked read saw a free slot but the conditional update matched no
	// row, so the assignment must roll back.
	repo := NewAssignmentRepository(db)
	mock.ExpectBegin()
	expectRoomLock(mock, "r1", 2, 1)
	expectStudentLock(mock, "s1", nil)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE rooms SET occupied = occupied + 1")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.Assign(context.Background(), "r1", "s1")
	require.Equal(t, appErrors.ErrCapacityExceeded.Code, errorCode(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentRepositoryAssignFullRoom(t *testing.T) {
	db, mock, cleanup := newAssignmentRepoMock(t)
	defer cleanup()

	repo := NewAssignmentRepository(db)
	mock.ExpectBegin()
	expectRoomLock(mock, "r1", 2, 2)
	expectStudentLock(mock, "s1", nil)
	mock.ExpectRollback()

	_, err := repo.Assign(context.Background(), "r1", "s1")
	require.Equal(t, appErrors.ErrCapacityExceeded.Code, errorCode(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentRepositoryAssignAlreadyHoused(t *testing.T) {
	db, mock, cleanup := newAssignmentRepoMock(t)
	defer cleanup()

	repo := NewAssignmentRepository(db)
	otherRoom := "r9"
	mock.ExpectBegin()
	expectRoomLock(mock, "r1", 2, 0)
	expectStudentLock(mock, "s1", &otherRoom)
	mock.ExpectRollback()

	_, err := repo.Assign(context.Background(), "r1", "s1")
	require.Equal(t, appErrors.ErrAlreadyAssigned.Code, errorCode(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentRepositoryUnassignNotHoused(t *testing.T) {
	db, mock, cleanup := newAssignmentRepoMock(t)
	defer cleanup()

	repo := NewAssignmentRepository(db)
	mock.ExpectBegin()
	expectRoomLock(mock, "r1", 2, 1)
	expectStudentLock(mock, "s1", nil)
	mock.ExpectRollback()

	_, err := repo.Unassign(context.Background(), "r1", "s1")
	require.Equal(t, appErrors.ErrNotAssigned.Code, errorCode(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentRepositoryUnassign(t *testing.T) {
	db, mock, cleanup := newAssignmentRepoMock(t)
	defer cleanup()

	repo := NewAssignmentRepository(db)
	roomID := "r1"
	mock.ExpectBegin()
	expectRoomLock(mock, "r1", 2, 1)
	expectStudentLock(mock, "s1", &roomID)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE rooms SET occupied = occupied - 1")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE students SET room_id = NULL")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, room_number, type,")).
		WithArgs("r1").
		WillReturnRows(roomRows("r1", 2, 0))
	mock.ExpectCommit()

	room, err := repo.Unassign(context.Background(), "r1", "s1")
	require.NoError(t, err)
	require.Equal(t, 0, room.Occupied)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentRepositoryDeleteRoomOccupied(t *testing.T) {
	db, mock, cleanup := newAssignmentRepoMock(t)
	defer cleanup()

	repo := NewAssignmentRepository(db)
	mock.ExpectBegin()
	expectRoomLock(mock, "r1", 2, 2)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM students WHERE room_id = $1")).
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectRollback()

	_, err := repo.DeleteRoom(context.Background(), "r1", false)
	require.Equal(t, appErrors.ErrRoomOccupied.Code, errorCode(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentRepositoryDeleteRoomForce(t *testing.T) {
	db, mock, cleanup := newAssignmentRepoMock(t)
	defer cleanup()

	repo := NewAssignmentRepository(db)
	mock.ExpectBegin()
	expectRoomLock(mock, "r1", 2, 2)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM students WHERE room_id = $1")).
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE students SET room_id = NULL")).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM maintenance_tickets WHERE room_id = $1")).
		WithArgs("r1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM applications WHERE room_id = $1")).
		WithArgs("r1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM rooms WHERE id = $1")).
		WithArgs("r1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	unassigned, err := repo.DeleteRoom(context.Background(), "r1", true)
	require.NoError(t, err)
	require.Equal(t, 2, unassigned)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentRepositoryDeleteEmptyRoomClearsHistory(t *testing.T) {
	db, mock, cleanup := newAssignmentRepoMock(t)
	defer cleanup()

	// A vacant room can still be referenced by past applications and tickets;
	// those rows go in the same transaction so the delete never trips a
	// foreign key.
	repo := NewAssignmentRepository(db)
	mock.ExpectBegin()
	expectRoomLock(mock, "r1", 2, 0)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM students WHERE room_id = $1")).
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM maintenance_tickets WHERE room_id = $1")).
		WithArgs("r1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM applications WHERE room_id = $1")).
		WithArgs("r1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM rooms WHERE id = $1")).
		WithArgs("r1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	unassigned, err := repo.DeleteRoom(context.Background(), "r1", false)
	require.NoError(t, err)
	require.Equal(t, 0, unassigned)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentRepositoryDeleteRoomStillReferenced(t *testing.T) {
	db, mock, cleanup := newAssignmentRepoMock(t)
	defer cleanup()

	repo := NewAssignmentRepository(db)
	mock.ExpectBegin()
	expectRoomLock(mock, "r1", 2, 0)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM students WHERE room_id = $1")).
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM maintenance_tickets WHERE room_id = $1")).
		WithArgs("r1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM applications WHERE room_id = $1")).
		WithArgs("r1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM rooms WHERE id = $1")).
		WithArgs("r1").
		WillReturnError(&pq.Error{Code: "23503", Constraint: "invoices_room_id_fkey"})
	mock.ExpectRollback()

	_, err := repo.DeleteRoom(context.Background(), "r1", false)
	require.Equal(t, appErrors.ErrRoomOccupied.Code, errorCode(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func errorCode(err error) string {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}
