package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"invoice-extractor/pkg/common"
	"invoice-extractor/pkg/logger"
	"invoice-extractor/pkg/models"
	"invoice-extractor/pkg/services/invoice"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// InvoiceService is the lifecycle API the handlers drive.
type InvoiceService interface {
	Upload(ctx context.Context, req invoice.UploadRequest) (*models.Invoice, error)
	Reprocess(ctx context.Context, id uuid.UUID) (*models.Invoice, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Invoice, error)
	List(ctx context.Context, page, pageSize int) ([]models.Invoice, int64, error)
	Update(ctx context.Context, id uuid.UUID, patch invoice.Patch) (*models.Invoice, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Exporter renders invoices as a spreadsheet.
type Exporter interface {
	ExportInvoicesXLSX(ctx context.Context) ([]byte, error)
}

// UploadConfig bounds accepted documents.
type UploadConfig struct {
	MaxBytes          int64
	AllowedExtensions []string
}

type InvoiceHandler struct {
	service  InvoiceService
	exporter Exporter
	upload   UploadConfig
	logger   *slog.Logger
}

func NewInvoiceHandler(service InvoiceService, exporter Exporter, upload UploadConfig, logger *slog.Logger) *InvoiceHandler {
	return &InvoiceHandler{service: service, exporter: exporter, upload: upload, logger: logger}
}

// Register mounts the invoice routes on rg.
func (h *InvoiceHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/invoices/process", h.Process)
	rg.GET("/invoices", h.List)
	rg.GET("/invoices/export.xlsx", h.Export)
	rg.GET("/invoices/:id", h.Get)
	rg.PATCH("/invoices/:id", h.Update)
	rg.DELETE("/invoices/:id", h.Delete)
	rg.POST("/invoices/:id/reprocess", h.Reprocess)
	// kept for clients of the first API version
	rg.GET("/invoices/:id/reprocess", h.Reprocess)
}

// Process accepts a multipart upload in field "document" and extracts it
// synchronously.
func (h *InvoiceHandler) Process(c *gin.Context) {
	// multipart framing needs some room beyond the file itself
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.upload.MaxBytes+1<<20)

	header, err := c.FormFile("document")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.rejectUpload(c, h.sizeMessage())
			return
		}
		h.rejectUpload(c, "No file was submitted.")
		return
	}
	if msg := h.validateDocument(header.Filename, header.Size); msg != "" {
		h.rejectUpload(c, msg)
		return
	}

	file, err := header.Open()
	if err != nil {
		h.rejectUpload(c, "The submitted file could not be read.")
		return
	}
	defer file.Close()

	inv, err := h.service.Upload(c.Request.Context(), invoice.UploadRequest{
		Filename: header.Filename,
		Size:     header.Size,
		Body:     file,
	})
	if err != nil {
		_ = c.Error(err)
		if inv == nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"status":  models.StatusFailed,
				"message": "An error occurred during processing",
				"error":   common.MessageOf(err),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"id":      inv.ID,
			"status":  models.StatusFailed,
			"message": "Failed to process invoice",
			"error":   common.MessageOf(err),
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":      inv.ID,
		"status":  inv.Status,
		"message": "Invoice processed successfully",
		"data":    inv,
	})
}

func (h *InvoiceHandler) validateDocument(filename string, size int64) string {
	parts := strings.Split(filename, ".")
	ext := strings.ToLower(parts[len(parts)-1])
	if !slices.Contains(h.upload.AllowedExtensions, ext) {
		return "File type not supported. Allowed types: " + strings.Join(h.upload.AllowedExtensions, ", ")
	}
	if size > h.upload.MaxBytes {
		return h.sizeMessage()
	}
	return ""
}

func (h *InvoiceHandler) sizeMessage() string {
	return fmt.Sprintf("File size must not exceed %dMB", h.upload.MaxBytes/(1024*1024))
}

func (h *InvoiceHandler) rejectUpload(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"document": []string{msg}})
}

// Reprocess runs extraction again on the stored document.
func (h *InvoiceHandler) Reprocess(c *gin.Context) {
	id, ok := h.invoiceID(c)
	if !ok {
		return
	}

	inv, err := h.service.Reprocess(c.Request.Context(), id)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{
			"id":      inv.ID,
			"status":  inv.Status,
			"message": "Invoice reprocessed successfully",
			"data":    inv,
		})
	case errors.Is(err, common.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Invoice not found"})
	case errors.Is(err, common.ErrNoDocument):
		c.JSON(http.StatusBadRequest, gin.H{"error": "No document found for this invoice"})
	case errors.Is(err, common.ErrInFlight):
		c.JSON(http.StatusConflict, gin.H{"error": "Invoice is already being processed"})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"id":      id,
			"error":   "Failed to reprocess invoice",
			"details": common.MessageOf(err),
		})
	}
}

func (h *InvoiceHandler) List(c *gin.Context) {
	page, err := positiveQuery(c, "page", 1)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	pageSize, err := positiveQuery(c, "page_size", defaultPageSize)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	pageSize = min(pageSize, maxPageSize)

	invoices, total, err := h.service.List(c.Request.Context(), page, pageSize)
	if err != nil {
		h.internalError(c, err)
		return
	}
	if invoices == nil {
		invoices = []models.Invoice{}
	}
	c.JSON(http.StatusOK, gin.H{
		"count":     total,
		"page":      page,
		"page_size": pageSize,
		"results":   invoices,
	})
}

func (h *InvoiceHandler) Get(c *gin.Context) {
	id, ok := h.invoiceID(c)
	if !ok {
		return
	}
	inv, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		h.lookupError(c, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

func (h *InvoiceHandler) Update(c *gin.Context) {
	id, ok := h.invoiceID(c)
	if !ok {
		return
	}
	var patch invoice.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	inv, err := h.service.Update(c.Request.Context(), id, patch)
	if err != nil {
		var ve common.ValidationError
		if errors.As(err, &ve) {
			c.JSON(http.StatusBadRequest, gin.H{ve.Field: []string{ve.Message}})
			return
		}
		h.lookupError(c, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

func (h *InvoiceHandler) Delete(c *gin.Context) {
	id, ok := h.invoiceID(c)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, common.ErrInFlight) {
			c.JSON(http.StatusConflict, gin.H{"error": "Invoice is already being processed"})
			return
		}
		h.lookupError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Export streams every invoice as an XLSX workbook.
func (h *InvoiceHandler) Export(c *gin.Context) {
	data, err := h.exporter.ExportInvoicesXLSX(c.Request.Context())
	if err != nil {
		h.internalError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="invoices.xlsx"`)
	c.Data(http.StatusOK, xlsxContentType, data)
}

func (h *InvoiceHandler) invoiceID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Invoice not found"})
		return uuid.Nil, false
	}
	return id, true
}

func (h *InvoiceHandler) lookupError(c *gin.Context, err error) {
	if errors.Is(err, common.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Invoice not found"})
		return
	}
	h.internalError(c, err)
}

func (h *InvoiceHandler) internalError(c *gin.Context, err error) {
	_ = c.Error(err)
	logger.WithContext(c.Request.Context(), h.logger).Error("request failed", "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}

func positiveQuery(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
	return v, nil
}
