package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/dorm-adp-api/internal/models"
	"github.com/noah-isme/dorm-adp-api/internal/service"
	appErrors "github.com/noah-isme/dorm-adp-api/pkg/errors"
	"github.com/noah-isme/dorm-adp-api/pkg/response"
	"github.com/noah-isme/dorm-adp-api/pkg/storage"
)

// BillingHandler exposes invoice and reporting endpoints.
type BillingHandler struct {
	billing *service.BillingService
	store   *storage.LocalStorage
}

// NewBillingHandler constructs BillingHandler.
func NewBillingHandler(billing *service.BillingService, store *storage.LocalStorage) *BillingHandler {
	return &BillingHandler{billing: billing, store: store}
}

// List godoc
// @Summary List invoices
// @Tags Billing
// @Produce json
// @Param studentId query string false "Filter by student"
// @Param status query string false "Filter by status"
// @Param period query string false "Filter by period"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /invoices [get]
func (h *BillingHandler) List(c *gin.Context) {
	var filter models.InvoiceFilter
	filter.StudentID = c.Query("studentId")
	filter.Status = models.InvoiceStatus(strings.ToUpper(c.Query("status")))
	filter.Period = c.Query("period")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	invoices, pagination, err := h.billing.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, invoices, pagination)
}

// Get godoc
// @Summary Get invoice
// @Tags Billing
// @Produce json
// @Param id path string true "Invoice ID"
// @Success 200 {object} response.Envelope
// @Router /invoices/{id} [get]
func (h *BillingHandler) Get(c *gin.Context) {
	invoice, err := h.billing.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, invoice, nil)
}

// Issue godoc
// @Summary Issue invoice
// @Tags Billing
// @Accept json
// @Produce json
// @Param payload body service.IssueInvoiceRequest true "Invoice payload"
// @Success 201 {object} response.Envelope
// @Router /invoices [post]
func (h *BillingHandler) Issue(c *gin.Context) {
	var req service.IssueInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	invoice, err := h.billing.Issue(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, invoice)
}

// Pay godoc
// @Summary Mark invoice paid
// @Tags Billing
// @Produce json
// @Param id path string true "Invoice ID"
// @Success 200 {object} response.Envelope
// @Router /invoices/{id}/pay [post]
func (h *BillingHandler) Pay(c *gin.Context) {
	invoice, err := h.billing.MarkPaid(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, invoice, nil)
}

// Void godoc
// @Summary Void invoice
// @Tags Billing
// @Produce json
// @Param id path string true "Invoice ID"
// @Success 200 {object} response.Envelope
// @Router /invoices/{id} [delete]
func (h *BillingHandler) Void(c *gin.Context) {
	invoice, err := h.billing.Void(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, invoice, nil)
}

// Export godoc
// @Summary Export invoice as PDF
// @Tags Billing
// @Produce json
// @Param id path string true "Invoice ID"
// @Success 200 {object} response.Envelope
// @Router /invoices/{id}/export [post]
func (h *BillingHandler) Export(c *gin.Context) {
	download, err := h.billing.ExportInvoicePDF(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, download, nil)
}

// Download godoc
// @Summary Download exported invoice
// @Tags Billing
// @Produce application/pdf
// @Param token query string true "Signed download token"
// @Success 200
// @Router /invoices/download [get]
func (h *BillingHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token required"))
		return
	}
	relPath, err := h.billing.ResolveDownload(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Type", "application/pdf")
	c.File(h.store.Path(relPath))
}

// OccupancyCSV godoc
// @Summary Export occupancy report as CSV
// @Tags Reports
// @Produce text/csv
// @Success 200
// @Router /reports/occupancy.csv [get]
func (h *BillingHandler) OccupancyCSV(c *gin.Context) {
	data, err := h.billing.ExportOccupancyCSV(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="occupancy.csv"`)
	c.Data(http.StatusOK, "text/csv", data)
}
