package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/dorm-adp-api/internal/models"
	appErrors "github.com/noah-isme/dorm-adp-api/pkg/errors"
)

type mockApplicationRepo struct {
	applications map[string]models.Application
	submitted    map[string]bool
	created      *models.Application
	statuses     map[string]models.ApplicationStatus
	statusErr    error
}

func (m *mockApplicationRepo) List(ctx context.Context, filter models.ApplicationFilter) ([]models.ApplicationDetail, int, error) {
	return nil, 0, nil
}

func (m *mockApplicationRepo) FindByID(ctx context.Context, id string) (*models.Application, error) {
	if a, ok := m.applications[id]; ok {
		return &a, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockApplicationRepo) FindDetailByID(ctx context.Context, id string) (*models.ApplicationDetail, error) {
	if a, ok := m.applications[id]; ok {
		return &models.ApplicationDetail{Application: a}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockApplicationRepo) ExistsSubmitted(ctx context.Context, studentID, roomID string) (bool, error) {
	return m.submitted[studentID+roomID], nil
}

func (m *mockApplicationRepo) Create(ctx context.Context, application *models.Application) error {
	if m.applications == nil {
		m.applications = make(map[string]models.Application)
	}
	if application.ID == "" {
		application.ID = "new-app"
	}
	m.applications[application.ID] = *application
	m.created = application
	return nil
}

func (m *mockApplicationRepo) UpdateStatus(ctx context.Context, id string, status models.ApplicationStatus, decidedBy *string) error {
	if m.statusErr != nil {
		return m.statusErr
	}
	if m.statuses == nil {
		m.statuses = make(map[string]models.ApplicationStatus)
	}
	m.statuses[id] = status
	if a, ok := m.applications[id]; ok {
		a.Status = status
		a.DecidedBy = decidedBy
		m.applications[id] = a
	}
	return nil
}

func newApplicationFixture(t *testing.T, roomCapacity, roomOccupied int) (*ApplicationService, *mockApplicationRepo, *mockAssignmentRepo, *mockNotifier) {
	t.Helper()
	rooms := newMockAssignmentRepo(&models.Room{ID: "r1", RoomNumber: "101", Capacity: roomCapacity, Occupied: roomOccupied, IsAvailable: roomOccupied < roomCapacity, GenderPreference: models.GenderPreferenceAny})
	students := activeStudents("s1")
	notifier := &mockNotifier{}
	assignments := NewAssignmentService(rooms, rooms, students, notifier, nil, nil, zap.NewNop())
	repo := &mockApplicationRepo{applications: map[string]models.Application{}}
	svc := NewApplicationService(repo, students, rooms, assignments, notifier, validator.New(), zap.NewNop())
	return svc, repo, rooms, notifier
}

func TestApplicationServiceSubmit(t *testing.T) {
	svc, repo, rooms, _ := newApplicationFixture(t, 2, 0)

	detail, err := svc.Submit(context.Background(), SubmitApplicationRequest{StudentID: "s1", RoomID: "r1"})
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationStatusSubmitted, detail.Status)
	assert.NotNil(t, repo.created)

	// Submission never touches occupancy.
	assert.Equal(t, 0, rooms.rooms["r1"].Occupied)
}

func TestApplicationServiceSubmitDuplicate(t *testing.T) {
	svc, repo, _, _ := newApplicationFixture(t, 2, 0)
	repo.submitted = map[string]bool{"s1r1": true}

	_, err := svc.Submit(context.Background(), SubmitApplicationRequest{StudentID: "s1", RoomID: "r1"})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestApplicationServiceApprove(t *testing.T) {
	svc, repo, rooms, notifier := newApplicationFixture(t, 2, 0)
	repo.applications["a1"] = models.Application{ID: "a1", StudentID: "s1", RoomID: "r1", Status: models.ApplicationStatusSubmitted}

	detail, err := svc.Approve(context.Background(), "a1", "admin-1")
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationStatusApproved, detail.Status)
	assert.Equal(t, 1, rooms.rooms["r1"].Occupied)
	require.NotNil(t, detail.DecidedBy)
	assert.Equal(t, "admin-1", *detail.DecidedBy)

	// Assignment and approval notifications both fire.
	require.Len(t, notifier.sent, 2)
	assert.Equal(t, models.NotificationRoomAssigned, notifier.sent[0].Type)
	assert.Equal(t, models.NotificationAppApproved, notifier.sent[1].Type)
}

func TestApplicationServiceApproveFullRoomLeavesSubmitted(t *testing.T) {
	svc, repo, rooms, _ := newApplicationFixture(t, 1, 1)
	repo.applications["a1"] = models.Application{ID: "a1", StudentID: "s1", RoomID: "r1", Status: models.ApplicationStatusSubmitted}

	_, err := svc.Approve(context.Background(), "a1", "admin-1")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrCapacityExceeded.Code, appErr.Code)

	// Failed approval must leave the application submitted and occupancy untouched.
	assert.Equal(t, models.ApplicationStatusSubmitted, repo.applications["a1"].Status)
	assert.Equal(t, 1, rooms.rooms["r1"].Occupied)
}

func TestApplicationServiceApproveStatusWriteFailureReleasesRoom(t *testing.T) {
	svc, repo, rooms, notifier := newApplicationFixture(t, 2, 0)
	repo.applications["a1"] = models.Application{ID: "a1", StudentID: "s1", RoomID: "r1", Status: models.ApplicationStatusSubmitted}
	repo.statusErr = errors.New("connection reset")

	_, err := svc.Approve(context.Background(), "a1", "admin-1")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrInternal.Code, appErr.Code)

	// The committed assignment is compensated so the application can be
	// approved again once the database recovers.
	assert.Equal(t, 0, rooms.rooms["r1"].Occupied)
	assert.Equal(t, models.ApplicationStatusSubmitted, repo.applications["a1"].Status)

	repo.statusErr = nil
	detail, err := svc.Approve(context.Background(), "a1", "admin-1")
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationStatusApproved, detail.Status)
	assert.Equal(t, 1, rooms.rooms["r1"].Occupied)

	// Assigned, unassigned, then assigned and approved on the retry.
	require.Len(t, notifier.sent, 4)
	assert.Equal(t, models.NotificationRoomUnassigned, notifier.sent[1].Type)
	assert.Equal(t, models.NotificationAppApproved, notifier.sent[3].Type)
}

func TestApplicationServiceApproveAlreadyDecided(t *testing.T) {
	svc, repo, _, _ := newApplicationFixture(t, 2, 0)
	repo.applications["a1"] = models.Application{ID: "a1", StudentID: "s1", RoomID: "r1", Status: models.ApplicationStatusRejected}

	_, err := svc.Approve(context.Background(), "a1", "admin-1")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErr.Code)
}

func TestApplicationServiceReject(t *testing.T) {
	svc, repo, rooms, notifier := newApplicationFixture(t, 2, 0)
	repo.applications["a1"] = models.Application{ID: "a1", StudentID: "s1", RoomID: "r1", Status: models.ApplicationStatusSubmitted}

	detail, err := svc.Reject(context.Background(), "a1", "admin-1", "no documents")
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationStatusRejected, detail.Status)
	assert.Equal(t, 0, rooms.rooms["r1"].Occupied)
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, models.NotificationAppRejected, notifier.sent[0].Type)
}

func TestApplicationServiceCancel(t *testing.T) {
	svc, repo, _, _ := newApplicationFixture(t, 2, 0)
	repo.applications["a1"] = models.Application{ID: "a1", StudentID: "s1", RoomID: "r1", Status: models.ApplicationStatusSubmitted}

	detail, err := svc.Cancel(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationStatusCancelled, detail.Status)
	assert.Nil(t, detail.DecidedBy)
}
