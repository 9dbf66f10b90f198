package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/dorm-adp-api/internal/models"
	appErrors "github.com/noah-isme/dorm-adp-api/pkg/errors"
	"github.com/noah-isme/dorm-adp-api/pkg/export"
	"github.com/noah-isme/dorm-adp-api/pkg/storage"
)

type mockInvoiceRepo struct {
	invoices map[string]models.Invoice
	created  *models.Invoice
	overdue  int64
}

func (m *mockInvoiceRepo) List(ctx context.Context, filter models.InvoiceFilter) ([]models.InvoiceDetail, int, error) {
	return nil, 0, nil
}

func (m *mockInvoiceRepo) FindByID(ctx context.Context, id string) (*models.Invoice, error) {
	if inv, ok := m.invoices[id]; ok {
		return &inv, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockInvoiceRepo) FindDetailByID(ctx context.Context, id string) (*models.InvoiceDetail, error) {
	if inv, ok := m.invoices[id]; ok {
		return &models.InvoiceDetail{Invoice: inv, StudentName: "Ana", StudentNumber: "S-1"}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockInvoiceRepo) Create(ctx context.Context, invoice *models.Invoice) error {
	if m.invoices == nil {
		m.invoices = make(map[string]models.Invoice)
	}
	if invoice.ID == "" {
		invoice.ID = "new-invoice"
	}
	if invoice.Status == "" {
		invoice.Status = models.InvoiceStatusPending
	}
	m.invoices[invoice.ID] = *invoice
	m.created = invoice
	return nil
}

func (m *mockInvoiceRepo) MarkPaid(ctx context.Context, id string, paidAt time.Time) (bool, error) {
	inv, ok := m.invoices[id]
	if !ok || inv.Status == models.InvoiceStatusPaid || inv.Status == models.InvoiceStatusVoid {
		return false, nil
	}
	inv.Status = models.InvoiceStatusPaid
	inv.PaidAt = &paidAt
	m.invoices[id] = inv
	return true, nil
}

func (m *mockInvoiceRepo) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	return m.overdue, nil
}

func (m *mockInvoiceRepo) Void(ctx context.Context, id string) error {
	inv := m.invoices[id]
	inv.Status = models.InvoiceStatusVoid
	m.invoices[id] = inv
	return nil
}

type mockDocumentStore struct {
	saved map[string][]byte
}

func (m *mockDocumentStore) Save(filename string, data []byte) (string, error) {
	if m.saved == nil {
		m.saved = make(map[string][]byte)
	}
	m.saved[filename] = data
	return filename, nil
}

func housedStudent(roomID string) *mockStudentReader {
	return &mockStudentReader{students: map[string]*models.StudentDetail{
		"s1": {Student: models.Student{ID: "s1", Gender: "FEMALE", Active: true, RoomID: &roomID}},
	}}
}

func newBillingFixture(t *testing.T, repo *mockInvoiceRepo, students *mockStudentReader) *BillingService {
	t.Helper()
	rooms := newMockAssignmentRepo(&models.Room{ID: "r1", RoomNumber: "101", Capacity: 2, Price: 450, IsAvailable: true, GenderPreference: models.GenderPreferenceAny})
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)
	store := &mockDocumentStore{}
	return NewBillingService(repo, students, rooms, rooms, export.NewPDFExporter(), export.NewCSVExporter(), store, signer, &mockNotifier{}, validator.New(), zap.NewNop())
}

func TestBillingServiceIssueDefaultsToRoomPrice(t *testing.T) {
	repo := &mockInvoiceRepo{}
	svc := newBillingFixture(t, repo, housedStudent("r1"))

	detail, err := svc.Issue(context.Background(), IssueInvoiceRequest{StudentID: "s1", Period: "2026-09", Currency: "USD", DueDate: "2026-09-15"})
	require.NoError(t, err)
	assert.Equal(t, 450.0, detail.Amount)
	require.NotNil(t, repo.created.RoomID)
	assert.Equal(t, "r1", *repo.created.RoomID)
	assert.Equal(t, models.InvoiceStatusPending, detail.Status)
}

func TestBillingServiceIssueUnhousedRequiresAmount(t *testing.T) {
	repo := &mockInvoiceRepo{}
	students := activeStudents("s1")
	svc := newBillingFixture(t, repo, students)

	_, err := svc.Issue(context.Background(), IssueInvoiceRequest{StudentID: "s1", Period: "2026-09", Currency: "USD", DueDate: "2026-09-15"})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErr.Code)

	detail, err := svc.Issue(context.Background(), IssueInvoiceRequest{StudentID: "s1", Period: "2026-09", Amount: 300, Currency: "USD", DueDate: "2026-09-15"})
	require.NoError(t, err)
	assert.Equal(t, 300.0, detail.Amount)
	assert.Nil(t, detail.RoomID)
}

func TestBillingServiceMarkPaid(t *testing.T) {
	repo := &mockInvoiceRepo{invoices: map[string]models.Invoice{
		"i1": {ID: "i1", StudentID: "s1", Status: models.InvoiceStatusPending, Amount: 450},
	}}
	svc := newBillingFixture(t, repo, housedStudent("r1"))

	detail, err := svc.MarkPaid(context.Background(), "i1")
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusPaid, detail.Status)
	assert.NotNil(t, detail.PaidAt)

	_, err = svc.MarkPaid(context.Background(), "i1")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErr.Code)
}

func TestBillingServiceVoidPaidInvoice(t *testing.T) {
	repo := &mockInvoiceRepo{invoices: map[string]models.Invoice{
		"i1": {ID: "i1", Status: models.InvoiceStatusPaid},
	}}
	svc := newBillingFixture(t, repo, housedStudent("r1"))

	_, err := svc.Void(context.Background(), "i1")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErr.Code)
}

func TestBillingServiceExportAndResolveDownload(t *testing.T) {
	repo := &mockInvoiceRepo{invoices: map[string]models.Invoice{
		"i1": {ID: "i1", StudentID: "s1", Status: models.InvoiceStatusPending, Amount: 450, Currency: "USD", Period: "2026-09", DueDate: time.Now()},
	}}
	svc := newBillingFixture(t, repo, housedStudent("r1"))

	download, err := svc.ExportInvoicePDF(context.Background(), "i1")
	require.NoError(t, err)
	assert.Equal(t, "i1", download.InvoiceID)
	assert.NotEmpty(t, download.Token)
	assert.True(t, download.ExpiresAt.After(time.Now()))

	relPath, err := svc.ResolveDownload(download.Token)
	require.NoError(t, err)
	assert.Equal(t, "invoices/i1.pdf", relPath)

	_, err = svc.ResolveDownload("tampered-token")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErr.Code)
}

func TestBillingServiceExportOccupancyCSV(t *testing.T) {
	repo := &mockInvoiceRepo{}
	svc := newBillingFixture(t, repo, housedStudent("r1"))

	data, err := svc.ExportOccupancyCSV(context.Background())
	require.NoError(t, err)
	content := string(data)
	assert.True(t, strings.HasPrefix(content, "Room,Type,Capacity,Occupied,Available,Price"))
	assert.Contains(t, content, "101")
}
