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

// InvoiceRepository handles persistence of billing invoices.
type InvoiceRepository struct {
	db *sqlx.DB
}

// NewInvoiceRepository constructs the repository.
func NewInvoiceRepository(db *sqlx.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

// List returns invoices filtered by the provided criteria.
func (r *InvoiceRepository) List(ctx context.Context, filter models.InvoiceFilter) ([]models.InvoiceDetail, int, error) {
	base := `FROM invoices i
LEFT JOIN students s ON s.id = i.student_id
LEFT JOIN rooms r ON r.id = i.room_id`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("i.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("i.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Period != "" {
		conditions = append(conditions, fmt.Sprintf("i.period = $%d", len(args)+1))
		args = append(args, filter.Period)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"due_date":   "i.due_date",
		"amount":     "i.amount",
		"created_at": "i.created_at",
	}
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "due_date"
	}
	orderBy := allowedSorts[sortBy]
	if orderBy == "" {
		orderBy = "i.due_date"
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

	query := fmt.Sprintf(`SELECT i.id, i.student_id, i.room_id, i.period, i.amount, i.currency, i.status, i.due_date, i.paid_at, i.created_at, i.updated_at,
        s.full_name AS student_name, s.student_number AS student_number, r.room_number AS room_number
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var invoices []models.InvoiceDetail
	if err := r.db.SelectContext(ctx, &invoices, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list invoices: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count invoices: %w", err)
	}
	return invoices, total, nil
}

// FindByID returns an invoice by its ID.
func (r *InvoiceRepository) FindByID(ctx context.Context, id string) (*models.Invoice, error) {
	const query = `SELECT id, student_id, room_id, period, amount, currency, status, due_date, paid_at, created_at, updated_at
        FROM invoices WHERE id = $1`
	var invoice models.Invoice
	if err := r.db.GetContext(ctx, &invoice, query, id); err != nil {
		return nil, err
	}
	return &invoice, nil
}

// FindDetailByID returns an invoice with student and room labels.
func (r *InvoiceRepository) FindDetailByID(ctx context.Context, id string) (*models.InvoiceDetail, error) {
	const query = `SELECT i.id, i.student_id, i.room_id, i.period, i.amount, i.currency, i.status, i.due_date, i.paid_at, i.created_at, i.updated_at,
        s.full_name AS student_name, s.student_number AS student_number, r.room_number AS room_number
        FROM invoices i
        LEFT JOIN students s ON s.id = i.student_id
        LEFT JOIN rooms r ON r.id = i.room_id
        WHERE i.id = $1`
	var detail models.InvoiceDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// Create persists a new invoice record.
func (r *InvoiceRepository) Create(ctx context.Context, invoice *models.Invoice) error {
	if invoice.ID == "" {
		invoice.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if invoice.CreatedAt.IsZero() {
		invoice.CreatedAt = now
	}
	invoice.UpdatedAt = now
	if invoice.Status == "" {
		invoice.Status = models.InvoiceStatusPending
	}
	if invoice.Currency == "" {
		invoice.Currency = "USD"
	}
	const query = `INSERT INTO invoices (id, student_id, room_id, period, amount, currency, status, due_date, paid_at, created_at, updated_at)
        VALUES (:id, :student_id, :room_id, :period, :amount, :currency, :status, :due_date, :paid_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, invoice); err != nil {
		return fmt.Errorf("create invoice: %w", err)
	}
	return nil
}

// MarkPaid sets a pending or overdue invoice to paid. Returns false when the
// invoice was not in a payable state at write time.
func (r *InvoiceRepository) MarkPaid(ctx context.Context, id string, paidAt time.Time) (bool, error) {
	const query = `UPDATE invoices SET status = $2, paid_at = $3, updated_at = $3 WHERE id = $1 AND status IN ($4, $5)`
	res, err := r.db.ExecContext(ctx, query, id, models.InvoiceStatusPaid, paidAt, models.InvoiceStatusPending, models.InvoiceStatusOverdue)
	if err != nil {
		return false, fmt.Errorf("mark invoice paid: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark invoice paid: %w", err)
	}
	return affected > 0, nil
}

// MarkOverdue flips pending invoices past their due date to overdue.
func (r *InvoiceRepository) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	const query = `UPDATE invoices SET status = $2, updated_at = $1 WHERE status = $3 AND due_date < $1`
	res, err := r.db.ExecContext(ctx, query, asOf, models.InvoiceStatusOverdue, models.InvoiceStatusPending)
	if err != nil {
		return 0, fmt.Errorf("mark invoices overdue: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark invoices overdue: %w", err)
	}
	return affected, nil
}

// Void cancels an unpaid invoice.
func (r *InvoiceRepository) Void(ctx context.Context, id string) error {
	const query = `UPDATE invoices SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.InvoiceStatusVoid, time.Now().UTC()); err != nil {
		return fmt.Errorf("void invoice: %w", err)
	}
	return nil
}
