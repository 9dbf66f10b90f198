package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/dorm-adp-api/internal/models"
)

// MaintenanceRepository handles persistence of maintenance tickets.
type MaintenanceRepository struct {
	db *sqlx.DB
}

// NewMaintenanceRepository constructs the repository.
func NewMaintenanceRepository(db *sqlx.DB) *MaintenanceRepository {
	return &MaintenanceRepository{db: db}
}

// List returns tickets filtered by the provided criteria.
func (r *MaintenanceRepository) List(ctx context.Context, filter models.MaintenanceFilter) ([]models.MaintenanceTicketDetail, int, error) {
	base := `FROM maintenance_tickets t
LEFT JOIN rooms r ON r.id = t.room_id
LEFT JOIN students s ON s.id = t.reported_by`
	var conditions []string
	var args []interface{}

	if filter.RoomID != "" {
		conditions = append(conditions, fmt.Sprintf("t.room_id = $%d", len(args)+1))
		args = append(args, filter.RoomID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("t.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Priority != "" {
		conditions = append(conditions, fmt.Sprintf("t.priority = $%d", len(args)+1))
		args = append(args, filter.Priority)
	}
	if filter.AssignedTo != "" {
		conditions = append(conditions, fmt.Sprintf("t.assigned_to = $%d", len(args)+1))
		args = append(args, filter.AssignedTo)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"created_at": "t.created_at",
		"priority":   "t.priority",
		"status":     "t.status",
	}
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "created_at"
	}
	orderBy := allowedSorts[sortBy]
	if orderBy == "" {
		orderBy = "t.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
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

	query := fmt.Sprintf(`SELECT t.id, t.room_id, t.reported_by, t.assigned_to, t.title, t.description, t.priority, t.status, t.resolved_at, t.created_at, t.updated_at,
        r.room_number AS room_number, s.full_name AS reporter_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var tickets []models.MaintenanceTicketDetail
	if err := r.db.SelectContext(ctx, &tickets, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list tickets: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count tickets: %w", err)
	}
	return tickets, total, nil
}

// FindByID returns a ticket by its ID.
func (r *MaintenanceRepository) FindByID(ctx context.Context, id string) (*models.MaintenanceTicket, error) {
	const query = `SELECT id, room_id, reported_by, assigned_to, title, description, priority, status, resolved_at, created_at, updated_at
        FROM maintenance_tickets WHERE id = $1`
	var ticket models.MaintenanceTicket
	if err := r.db.GetContext(ctx, &ticket, query, id); err != nil {
		return nil, err
	}
	return &ticket, nil
}

// Create persists a new ticket.
func (r *MaintenanceRepository) Create(ctx context.Context, ticket *models.MaintenanceTicket) error {
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = now
	}
	ticket.UpdatedAt = now
	if ticket.Status == "" {
		ticket.Status = models.TicketStatusOpen
	}
	if ticket.Priority == "" {
		ticket.Priority = models.TicketPriorityNormal
	}
	const query = `INSERT INTO maintenance_tickets (id, room_id, reported_by, assigned_to, title, description, priority, status, resolved_at, created_at, updated_at)
        VALUES (:id, :room_id, :reported_by, :assigned_to, :title, :description, :priority, :status, :resolved_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, ticket); err != nil {
		return fmt.Errorf("create ticket: %w", err)
	}
	return nil
}

// Update modifies ticket fields (title, description, priority, assignee).
func (r *MaintenanceRepository) Update(ctx context.Context, ticket *models.MaintenanceTicket) error {
	ticket.UpdatedAt = time.Now().UTC()
	const query = `UPDATE maintenance_tickets SET assigned_to = :assigned_to, title = :title, description = :description,
        priority = :priority, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, ticket); err != nil {
		return fmt.Errorf("update ticket: %w", err)
	}
	return nil
}

// UpdateStatus moves a ticket through its lifecycle.
func (r *MaintenanceRepository) UpdateStatus(ctx context.Context, id string, status models.TicketStatus, resolvedAt *time.Time) error {
	const query = `UPDATE maintenance_tickets SET status = $2, resolved_at = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, resolvedAt, time.Now().UTC()); err != nil {
		return fmt.Errorf("update ticket status: %w", err)
	}
	return nil
}
