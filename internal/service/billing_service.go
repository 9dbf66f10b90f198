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
	"github.com/noah-isme/dorm-adp-api/pkg/export"
)

type invoiceRepository interface {
	List(ctx context.Context, filter models.InvoiceFilter) ([]models.InvoiceDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Invoice, error)
	FindDetailByID(ctx context.Context, id string) (*models.InvoiceDetail, error)
	Create(ctx context.Context, invoice *models.Invoice) error
	MarkPaid(ctx context.Context, id string, paidAt time.Time) (bool, error)
	MarkOverdue(ctx context.Context, asOf time.Time) (int64, error)
	Void(ctx context.Context, id string) error
}

type billingRoomLister interface {
	List(ctx context.Context, filter models.RoomFilter) ([]models.Room, int, error)
}

type documentStore interface {
	Save(filename string, data []byte) (string, error)
}

type documentSigner interface {
	Generate(docID, relPath string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (docID, relPath string, expiresAt time.Time, err error)
}

// IssueInvoiceRequest describes the payload for issuing an invoice.
type IssueInvoiceRequest struct {
	StudentID string  `json:"student_id" validate:"required"`
	Period    string  `json:"period" validate:"required"`
	Amount    float64 `json:"amount" validate:"omitempty,gt=0"`
	Currency  string  `json:"currency" validate:"omitempty,len=3"`
	DueDate   string  `json:"due_date" validate:"required,datetime=2006-01-02"`
}

// InvoiceDownload carries a signed link for a rendered invoice PDF.
type InvoiceDownload struct {
	InvoiceID string    `json:"invoice_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// BillingService manages invoices, invoice PDFs and occupancy exports.
type BillingService struct {
	repo      invoiceRepository
	students  assignmentStudentReader
	rooms     billingRoomLister
	roomInfo  assignmentRoomReader
	pdf       *export.PDFExporter
	csv       *export.CSVExporter
	store     documentStore
	signer    documentSigner
	notifier  studentNotifier
	validator *validator.Validate
	logger    *zap.Logger
}

// NewBillingService constructs BillingService. Notifier may be nil.
func NewBillingService(repo invoiceRepository, students assignmentStudentReader, rooms billingRoomLister, roomInfo assignmentRoomReader, pdf *export.PDFExporter, csv *export.CSVExporter, store documentStore, signer documentSigner, notifier studentNotifier, validate *validator.Validate, logger *zap.Logger) *BillingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BillingService{repo: repo, students: students, rooms: rooms, roomInfo: roomInfo, pdf: pdf, csv: csv, store: store, signer: signer, notifier: notifier, validator: validate, logger: logger}
}

// List returns invoices with pagination metadata.
func (s *BillingService) List(ctx context.Context, filter models.InvoiceFilter) ([]models.InvoiceDetail, *models.Pagination, error) {
	invoices, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list invoices")
	}
	return invoices, paginationFor(filter.Page, filter.PageSize, total), nil
}

// Get returns a single invoice with student and room labels.
func (s *BillingService) Get(ctx context.Context, id string) (*models.InvoiceDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "invoice not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load invoice")
	}
	return detail, nil
}

// Issue creates an invoice for a student's housing period. When no amount is
// provided the current room's monthly price is billed; an unhoused student
// must be billed an explicit amount.
func (s *BillingService) Issue(ctx context.Context, req IssueInvoiceRequest) (*models.InvoiceDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid invoice payload")
	}
	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	amount := req.Amount
	if amount == 0 {
		if student.RoomID == nil {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "student has no room; amount required")
		}
		room, err := s.roomInfo.FindByID(ctx, *student.RoomID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load room price")
		}
		amount = room.Price
	}
	dueDate, err := time.Parse("2006-01-02", req.DueDate)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid due date")
	}

	invoice := &models.Invoice{
		StudentID: req.StudentID,
		RoomID:    student.RoomID,
		Period:    req.Period,
		Amount:    amount,
		Currency:  req.Currency,
		DueDate:   dueDate,
	}
	if err := s.repo.Create(ctx, invoice); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create invoice")
	}
	if s.notifier != nil {
		s.notifier.NotifyStudent(req.StudentID, models.NotificationInvoiceIssued,
			"Invoice issued",
			fmt.Sprintf("An invoice of %.2f %s for %s is due %s.", invoice.Amount, invoice.Currency, invoice.Period, dueDate.Format("2006-01-02")))
	}
	s.logger.Info("invoice issued",
		zap.String("invoice_id", invoice.ID),
		zap.String("student_id", req.StudentID),
		zap.Float64("amount", invoice.Amount))
	detail, err := s.repo.FindDetailByID(ctx, invoice.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load invoice detail")
	}
	return detail, nil
}

// MarkPaid settles a pending or overdue invoice.
func (s *BillingService) MarkPaid(ctx context.Context, id string) (*models.InvoiceDetail, error) {
	invoice, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "invoice not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load invoice")
	}
	if invoice.Status == models.InvoiceStatusPaid {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "invoice already paid")
	}
	if invoice.Status == models.InvoiceStatusVoid {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "invoice is void")
	}
	updated, err := s.repo.MarkPaid(ctx, id, time.Now().UTC())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark invoice paid")
	}
	if !updated {
		return nil, appErrors.Clone(appErrors.ErrConflict, "invoice state changed, retry")
	}
	s.logger.Info("invoice paid", zap.String("invoice_id", id))
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load invoice detail")
	}
	return detail, nil
}

// Void cancels an unpaid invoice.
func (s *BillingService) Void(ctx context.Context, id string) (*models.InvoiceDetail, error) {
	invoice, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "invoice not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load invoice")
	}
	if invoice.Status == models.InvoiceStatusPaid {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "paid invoice cannot be voided")
	}
	if err := s.repo.Void(ctx, id); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to void invoice")
	}
	s.logger.Info("invoice voided", zap.String("invoice_id", id))
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load invoice detail")
	}
	return detail, nil
}

// MarkOverdue flips pending invoices past due date to overdue. Intended to run
// from a periodic job.
func (s *BillingService) MarkOverdue(ctx context.Context) (int64, error) {
	count, err := s.repo.MarkOverdue(ctx, time.Now().UTC())
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark overdue invoices")
	}
	if count > 0 {
		s.logger.Info("invoices marked overdue", zap.Int64("count", count))
	}
	return count, nil
}

// ExportInvoicePDF renders an invoice PDF, stores it and returns a signed
// download token.
func (s *BillingService) ExportInvoicePDF(ctx context.Context, id string) (*InvoiceDownload, error) {
	detail, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	roomLabel := "-"
	if detail.RoomNumber != nil {
		roomLabel = *detail.RoomNumber
	}
	paidLabel := "-"
	if detail.PaidAt != nil {
		paidLabel = detail.PaidAt.Format("2006-01-02")
	}
	doc := export.Document{
		Title: "Housing Invoice",
		Meta: [][2]string{
			{"Invoice ID", detail.ID},
			{"Student", fmt.Sprintf("%s (%s)", detail.StudentName, detail.StudentNumber)},
			{"Room", roomLabel},
			{"Period", detail.Period},
			{"Status", string(detail.Status)},
			{"Due Date", detail.DueDate.Format("2006-01-02")},
			{"Paid At", paidLabel},
		},
		Items: export.Dataset{
			Headers: []string{"Description", "Amount"},
			Rows: []map[string]string{
				{"Description": fmt.Sprintf("Housing fee %s", detail.Period), "Amount": fmt.Sprintf("%.2f %s", detail.Amount, detail.Currency)},
			},
		},
		TotalRow: fmt.Sprintf("Total: %.2f %s", detail.Amount, detail.Currency),
		Footer:   fmt.Sprintf("Generated at %s", time.Now().UTC().Format(time.RFC3339)),
	}
	data, err := s.pdf.RenderDocument(doc)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render invoice pdf")
	}
	relPath := fmt.Sprintf("invoices/%s.pdf", detail.ID)
	if _, err := s.store.Save(relPath, data); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store invoice pdf")
	}
	token, expiresAt, err := s.signer.Generate(detail.ID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign invoice download")
	}
	s.logger.Info("invoice pdf exported", zap.String("invoice_id", detail.ID))
	return &InvoiceDownload{InvoiceID: detail.ID, Token: token, ExpiresAt: expiresAt}, nil
}

// ResolveDownload validates a signed token and returns the stored file path.
func (s *BillingService) ResolveDownload(token string) (string, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid download token")
	}
	return relPath, nil
}

// ExportOccupancyCSV renders the current room occupancy overview as CSV.
func (s *BillingService) ExportOccupancyCSV(ctx context.Context) ([]byte, error) {
	dataset := export.Dataset{
		Headers: []string{"Room", "Type", "Capacity", "Occupied", "Available", "Price"},
	}
	for page := 1; ; page++ {
		rooms, total, err := s.rooms.List(ctx, models.RoomFilter{Page: page, PageSize: 100})
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load rooms")
		}
		for _, room := range rooms {
			dataset.Rows = append(dataset.Rows, map[string]string{
				"Room":      room.RoomNumber,
				"Type":      string(room.Type),
				"Capacity":  fmt.Sprintf("%d", room.Capacity),
				"Occupied":  fmt.Sprintf("%d", room.Occupied),
				"Available": fmt.Sprintf("%t", room.IsAvailable),
				"Price":     fmt.Sprintf("%.2f", room.Price),
			})
		}
		if len(rooms) == 0 || len(dataset.Rows) >= total {
			break
		}
	}
	data, err := s.csv.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render occupancy csv")
	}
	return data, nil
}
