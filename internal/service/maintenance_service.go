package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/dorm-adp-api/internal/models"
	appErrors "github.com/noah-isme/dorm-adp-api/pkg/errors"
)

type maintenanceRepository interface {
	List(ctx context.Context, filter models.MaintenanceFilter) ([]models.MaintenanceTicketDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.MaintenanceTicket, error)
	Create(ctx context.Context, ticket *models.MaintenanceTicket) error
	Update(ctx context.Context, ticket *models.MaintenanceTicket) error
	UpdateStatus(ctx context.Context, id string, status models.TicketStatus, resolvedAt *time.Time) error
}

type maintenanceRoomReader interface {
	FindByID(ctx context.Context, id string) (*models.Room, error)
}

// CreateTicketRequest describes a new maintenance report.
type CreateTicketRequest struct {
	RoomID      string `json:"room_id" validate:"required"`
	ReportedBy  string `json:"reported_by" validate:"required"`
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"required,max=4000"`
	Priority    string `json:"priority" validate:"omitempty,oneof=LOW NORMAL HIGH URGENT"`
}

// UpdateTicketRequest describes editable ticket fields.
type UpdateTicketRequest struct {
	AssignedTo  *string `json:"assigned_to"`
	Title       string  `json:"title" validate:"required,max=200"`
	Description string  `json:"description" validate:"required,max=4000"`
	Priority    string  `json:"priority" validate:"required,oneof=LOW NORMAL HIGH URGENT"`
}

// MaintenanceService manages room repair tickets.
type MaintenanceService struct {
	repo      maintenanceRepository
	rooms     maintenanceRoomReader
	notifier  studentNotifier
	validator *validator.Validate
	logger    *zap.Logger
}

// NewMaintenanceService constructs MaintenanceService. Notifier may be nil.
func NewMaintenanceService(repo maintenanceRepository, rooms maintenanceRoomReader, notifier studentNotifier, validate *validator.Validate, logger *zap.Logger) *MaintenanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MaintenanceService{repo: repo, rooms: rooms, notifier: notifier, validator: validate, logger: logger}
}

// List returns tickets with pagination metadata.
func (s *MaintenanceService) List(ctx context.Context, filter models.MaintenanceFilter) ([]models.MaintenanceTicketDetail, *models.Pagination, error) {
	tickets, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list tickets")
	}
	return tickets, paginationFor(filter.Page, filter.PageSize, total), nil
}

// Get returns a single ticket.
func (s *MaintenanceService) Get(ctx context.Context, id string) (*models.MaintenanceTicket, error) {
	ticket, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "ticket not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load ticket")
	}
	return ticket, nil
}

// Create files a new ticket against a room.
func (s *MaintenanceService) Create(ctx context.Context, req CreateTicketRequest) (*models.MaintenanceTicket, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid ticket payload")
	}
	if _, err := s.rooms.FindByID(ctx, req.RoomID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "room not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load room")
	}
	ticket := &models.MaintenanceTicket{
		RoomID:      req.RoomID,
		ReportedBy:  req.ReportedBy,
		Title:       req.Title,
		Description: req.Description,
		Priority:    models.TicketPriority(req.Priority),
	}
	if err := s.repo.Create(ctx, ticket); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create ticket")
	}
	s.logger.Info("maintenance ticket created",
		zap.String("ticket_id", ticket.ID),
		zap.String("room_id", req.RoomID),
		zap.String("priority", string(ticket.Priority)))
	return ticket, nil
}

// Update edits ticket title, description, priority or assignee.
func (s *MaintenanceService) Update(ctx context.Context, id string, req UpdateTicketRequest) (*models.MaintenanceTicket, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid ticket payload")
	}
	ticket, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if ticket.Status == models.TicketStatusClosed {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "closed ticket cannot be edited")
	}
	ticket.AssignedTo = req.AssignedTo
	ticket.Title = req.Title
	ticket.Description = req.Description
	ticket.Priority = models.TicketPriority(req.Priority)
	if err := s.repo.Update(ctx, ticket); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update ticket")
	}
	return ticket, nil
}

// Transition moves a ticket through its lifecycle. Resolving stamps
// resolved_at and notifies the reporter.
func (s *MaintenanceService) Transition(ctx context.Context, id string, target models.TicketStatus) (*models.MaintenanceTicket, error) {
	ticket, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !models.CanTransitionTicket(ticket.Status, target) {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, fmt.Sprintf("cannot move ticket from %s to %s", ticket.Status, target))
	}
	var resolvedAt *time.Time
	if target == models.TicketStatusResolved {
		now := time.Now().UTC()
		resolvedAt = &now
	}
	if err := s.repo.UpdateStatus(ctx, id, target, resolvedAt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update ticket status")
	}
	if target == models.TicketStatusResolved && s.notifier != nil {
		s.notifier.NotifyStudent(ticket.ReportedBy, models.NotificationTicketResolved,
			"Maintenance resolved",
			fmt.Sprintf("Your maintenance report %q has been resolved.", ticket.Title))
	}
	s.logger.Info("ticket status changed",
		zap.String("ticket_id", id),
		zap.String("from", string(ticket.Status)),
		zap.String("to", string(target)))
	ticket.Status = target
	ticket.ResolvedAt = resolvedAt
	return ticket, nil
}
