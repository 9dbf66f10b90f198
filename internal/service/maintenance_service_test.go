package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/dorm-adp-api/internal/models"
	appErrors "github.com/noah-isme/dorm-adp-api/pkg/errors"
)

type mockMaintenanceRepo struct {
	tickets map[string]models.MaintenanceTicket
	created *models.MaintenanceTicket
}

func (m *mockMaintenanceRepo) List(ctx context.Context, filter models.MaintenanceFilter) ([]models.MaintenanceTicketDetail, int, error) {
	return nil, 0, nil
}

func (m *mockMaintenanceRepo) FindByID(ctx context.Context, id string) (*models.MaintenanceTicket, error) {
	if tk, ok := m.tickets[id]; ok {
		return &tk, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockMaintenanceRepo) Create(ctx context.Context, ticket *models.MaintenanceTicket) error {
	if m.tickets == nil {
		m.tickets = make(map[string]models.MaintenanceTicket)
	}
	if ticket.ID == "" {
		ticket.ID = "new-ticket"
	}
	if ticket.Status == "" {
		ticket.Status = models.TicketStatusOpen
	}
	m.tickets[ticket.ID] = *ticket
	m.created = ticket
	return nil
}

func (m *mockMaintenanceRepo) Update(ctx context.Context, ticket *models.MaintenanceTicket) error {
	m.tickets[ticket.ID] = *ticket
	return nil
}

func (m *mockMaintenanceRepo) UpdateStatus(ctx context.Context, id string, status models.TicketStatus, resolvedAt *time.Time) error {
	tk := m.tickets[id]
	tk.Status = status
	tk.ResolvedAt = resolvedAt
	m.tickets[id] = tk
	return nil
}

func newMaintenanceFixture(repo *mockMaintenanceRepo, notifier *mockNotifier) *MaintenanceService {
	rooms := newMockAssignmentRepo(&models.Room{ID: "r1", RoomNumber: "101", Capacity: 2, IsAvailable: true, GenderPreference: models.GenderPreferenceAny})
	return NewMaintenanceService(repo, rooms, notifier, validator.New(), zap.NewNop())
}

func TestMaintenanceServiceCreate(t *testing.T) {
	repo := &mockMaintenanceRepo{}
	svc := newMaintenanceFixture(repo, nil)

	ticket, err := svc.Create(context.Background(), CreateTicketRequest{RoomID: "r1", ReportedBy: "s1", Title: "Broken heater", Description: "No heat since Monday", Priority: "HIGH"})
	require.NoError(t, err)
	assert.Equal(t, models.TicketStatusOpen, ticket.Status)
	assert.Equal(t, models.TicketPriorityHigh, ticket.Priority)
}

func TestMaintenanceServiceCreateUnknownRoom(t *testing.T) {
	svc := newMaintenanceFixture(&mockMaintenanceRepo{}, nil)

	_, err := svc.Create(context.Background(), CreateTicketRequest{RoomID: "missing", ReportedBy: "s1", Title: "Leak", Description: "Dripping pipe"})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestMaintenanceServiceTransitionLifecycle(t *testing.T) {
	repo := &mockMaintenanceRepo{tickets: map[string]models.MaintenanceTicket{
		"t1": {ID: "t1", RoomID: "r1", ReportedBy: "s1", Title: "Broken heater", Status: models.TicketStatusOpen},
	}}
	notifier := &mockNotifier{}
	svc := newMaintenanceFixture(repo, notifier)

	ticket, err := svc.Transition(context.Background(), "t1", models.TicketStatusInProgress)
	require.NoError(t, err)
	assert.Equal(t, models.TicketStatusInProgress, ticket.Status)

	ticket, err = svc.Transition(context.Background(), "t1", models.TicketStatusResolved)
	require.NoError(t, err)
	assert.Equal(t, models.TicketStatusResolved, ticket.Status)
	assert.NotNil(t, ticket.ResolvedAt)
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, models.NotificationTicketResolved, notifier.sent[0].Type)
	assert.Equal(t, "s1", notifier.sent[0].StudentID)
}

func TestMaintenanceServiceTransitionRejected(t *testing.T) {
	repo := &mockMaintenanceRepo{tickets: map[string]models.MaintenanceTicket{
		"t1": {ID: "t1", Status: models.TicketStatusOpen},
	}}
	svc := newMaintenanceFixture(repo, nil)

	_, err := svc.Transition(context.Background(), "t1", models.TicketStatusResolved)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErr.Code)
	assert.Equal(t, models.TicketStatusOpen, repo.tickets["t1"].Status)
}

func TestMaintenanceServiceUpdateClosedTicket(t *testing.T) {
	repo := &mockMaintenanceRepo{tickets: map[string]models.MaintenanceTicket{
		"t1": {ID: "t1", Status: models.TicketStatusClosed},
	}}
	svc := newMaintenanceFixture(repo, nil)

	_, err := svc.Update(context.Background(), "t1", UpdateTicketRequest{Title: "x", Description: "y", Priority: "LOW"})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErr.Code)
}
