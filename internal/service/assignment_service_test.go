package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/dorm-adp-api/internal/models"
	appErrors "github.com/noah-isme/dorm-adp-api/pkg/errors"
)

type mockAssignmentRepo struct {
	rooms    map[string]*models.Room
	housing  map[string]string
	occupant map[string][]models.RoomOccupant
}

func newMockAssignmentRepo(rooms ...*models.Room) *mockAssignmentRepo {
	m := &mockAssignmentRepo{rooms: map[string]*models.Room{}, housing: map[string]string{}, occupant: map[string][]models.RoomOccupant{}}
	for _, r := range rooms {
		m.rooms[r.ID] = r
	}
	return m
}

func (m *mockAssignmentRepo) Assign(ctx context.Context, roomID, studentID string) (*models.Room, error) {
	room, ok := m.rooms[roomID]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "room not found")
	}
	if _, housed := m.housing[studentID]; housed {
		return nil, appErrors.ErrAlreadyAssigned
	}
	if room.Occupied >= room.Capacity {
		return nil, appErrors.ErrCapacityExceeded
	}
	room.Occupied++
	room.IsAvailable = room.Occupied < room.Capacity
	m.housing[studentID] = roomID
	m.occupant[roomID] = append(m.occupant[roomID], models.RoomOccupant{StudentID: studentID})
	return room, nil
}

func (m *mockAssignmentRepo) Unassign(ctx context.Context, roomID, studentID string) (*models.Room, error) {
	room, ok := m.rooms[roomID]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "room not found")
	}
	if m.housing[studentID] != roomID {
		return nil, appErrors.ErrNotAssigned
	}
	room.Occupied--
	room.IsAvailable = room.Occupied < room.Capacity
	delete(m.housing, studentID)
	kept := m.occupant[roomID][:0]
	for _, o := range m.occupant[roomID] {
		if o.StudentID != studentID {
			kept = append(kept, o)
		}
	}
	m.occupant[roomID] = kept
	return room, nil
}

func (m *mockAssignmentRepo) FindByID(ctx context.Context, id string) (*models.Room, error) {
	if room, ok := m.rooms[id]; ok {
		return room, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAssignmentRepo) Occupants(ctx context.Context, roomID string) ([]models.RoomOccupant, error) {
	return m.occupant[roomID], nil
}

func (m *mockAssignmentRepo) List(ctx context.Context, filter models.RoomFilter) ([]models.Room, int, error) {
	rooms := make([]models.Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, *r)
	}
	return rooms, len(rooms), nil
}

type mockStudentReader struct {
	students map[string]*models.StudentDetail
}

func (m *mockStudentReader) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	if s, ok := m.students[id]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

type capturedNotification struct {
	StudentID string
	Type      models.NotificationType
}

type mockNotifier struct {
	sent []capturedNotification
}

func (m *mockNotifier) NotifyStudent(studentID string, notificationType models.NotificationType, title, body string) {
	m.sent = append(m.sent, capturedNotification{StudentID: studentID, Type: notificationType})
}

type mockInvalidator struct {
	calls int
}

func (m *mockInvalidator) InvalidateRooms(ctx context.Context) {
	m.calls++
}

type mockRecorder struct {
	assignments map[string]int
	occupied    map[string]int
}

func (m *mockRecorder) RecordAssignment(action, outcome string) {
	if m.assignments == nil {
		m.assignments = map[string]int{}
	}
	m.assignments[action+"/"+outcome]++
}

func (m *mockRecorder) SetRoomOccupancy(roomID string, occupied, capacity int) {
	if m.occupied == nil {
		m.occupied = map[string]int{}
	}
	m.occupied[roomID] = occupied
}

func activeStudents(ids ...string) *mockStudentReader {
	m := &mockStudentReader{students: map[string]*models.StudentDetail{}}
	for _, id := range ids {
		m.students[id] = &models.StudentDetail{Student: models.Student{ID: id, Gender: "MALE", Active: true}}
	}
	return m
}

func TestAssignmentServiceAssignUntilFull(t *testing.T) {
	repo := newMockAssignmentRepo(&models.Room{ID: "r1", RoomNumber: "101", Capacity: 2, IsAvailable: true, GenderPreference: models.GenderPreferenceAny})
	notifier := &mockNotifier{}
	invalidator := &mockInvalidator{}
	recorder := &mockRecorder{}
	svc := NewAssignmentService(repo, repo, activeStudents("s1", "s2", "s3"), notifier, invalidator, recorder, zap.NewNop())

	detail, err := svc.Assign(context.Background(), "r1", "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, detail.Occupied)
	assert.True(t, detail.IsAvailable)

	detail, err = svc.Assign(context.Background(), "r1", "s2")
	require.NoError(t, err)
	assert.Equal(t, 2, detail.Occupied)
	assert.False(t, detail.IsAvailable)
	assert.Len(t, detail.Occupants, 2)

	_, err = svc.Assign(context.Background(), "r1", "s3")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrCapacityExceeded.Code, appErr.Code)

	// The failed attempt must leave occupancy untouched.
	assert.Equal(t, 2, repo.rooms["r1"].Occupied)
	assert.Equal(t, 2, recorder.assignments["assign/ok"])
	assert.Equal(t, 1, recorder.assignments["assign/rejected"])
	assert.Equal(t, 2, invalidator.calls)
	assert.Len(t, notifier.sent, 2)
	assert.Equal(t, models.NotificationRoomAssigned, notifier.sent[0].Type)
}

func TestAssignmentServiceAssignRejectsSecondRoom(t *testing.T) {
	repo := newMockAssignmentRepo(
		&models.Room{ID: "r1", RoomNumber: "101", Capacity: 2, IsAvailable: true, GenderPreference: models.GenderPreferenceAny},
		&models.Room{ID: "r2", RoomNumber: "102", Capacity: 2, IsAvailable: true, GenderPreference: models.GenderPreferenceAny},
	)
	svc := NewAssignmentService(repo, repo, activeStudents("s1"), nil, nil, nil, zap.NewNop())

	_, err := svc.Assign(context.Background(), "r1", "s1")
	require.NoError(t, err)

	_, err = svc.Assign(context.Background(), "r2", "s1")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrAlreadyAssigned.Code, appErr.Code)
	assert.Equal(t, 0, repo.rooms["r2"].Occupied)
}

func TestAssignmentServiceAssignGenderPreference(t *testing.T) {
	repo := newMockAssignmentRepo(&models.Room{ID: "r1", RoomNumber: "101", Capacity: 2, IsAvailable: true, GenderPreference: models.GenderPreferenceFemale})
	svc := NewAssignmentService(repo, repo, activeStudents("s1"), nil, nil, nil, zap.NewNop())

	_, err := svc.Assign(context.Background(), "r1", "s1")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErr.Code)
}

func TestAssignmentServiceAssignInactiveStudent(t *testing.T) {
	repo := newMockAssignmentRepo(&models.Room{ID: "r1", RoomNumber: "101", Capacity: 1, IsAvailable: true, GenderPreference: models.GenderPreferenceAny})
	students := &mockStudentReader{students: map[string]*models.StudentDetail{
		"s1": {Student: models.Student{ID: "s1", Gender: "MALE", Active: false}},
	}}
	svc := NewAssignmentService(repo, repo, students, nil, nil, nil, zap.NewNop())

	_, err := svc.Assign(context.Background(), "r1", "s1")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErr.Code)
}

func TestAssignmentServiceUnassign(t *testing.T) {
	repo := newMockAssignmentRepo(&models.Room{ID: "r1", RoomNumber: "101", Capacity: 1, IsAvailable: true, GenderPreference: models.GenderPreferenceAny})
	notifier := &mockNotifier{}
	svc := NewAssignmentService(repo, repo, activeStudents("s1"), notifier, nil, nil, zap.NewNop())

	_, err := svc.Assign(context.Background(), "r1", "s1")
	require.NoError(t, err)

	detail, err := svc.Unassign(context.Background(), "r1", "s1")
	require.NoError(t, err)
	assert.Equal(t, 0, detail.Occupied)
	assert.True(t, detail.IsAvailable)
	assert.Empty(t, detail.Occupants)
	assert.Equal(t, models.NotificationRoomUnassigned, notifier.sent[1].Type)
}

func TestAssignmentServiceUnassignNotAssigned(t *testing.T) {
	repo := newMockAssignmentRepo(&models.Room{ID: "r1", RoomNumber: "101", Capacity: 1, IsAvailable: true, GenderPreference: models.GenderPreferenceAny})
	svc := NewAssignmentService(repo, repo, activeStudents("s1"), nil, nil, nil, zap.NewNop())

	_, err := svc.Unassign(context.Background(), "r1", "s1")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotAssigned.Code, appErr.Code)
}
