package repository

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"invoice-extractor/pkg/common"
	"invoice-extractor/pkg/models"
)

// InvoiceRepository persists invoices and their line items.
type InvoiceRepository interface {
	Create(ctx context.Context, inv *models.Invoice) error
	Get(ctx context.Context, id uuid.UUID) (*models.Invoice, error)
	List(ctx context.Context, offset, limit int) ([]models.Invoice, int64, error)
	All(ctx context.Context) ([]models.Invoice, error)
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	Complete(ctx context.Context, inv *models.Invoice, items []models.InvoiceItem) error
	MarkFailed(ctx context.Context, id uuid.UUID, message string) error
	Update(ctx context.Context, id uuid.UUID, changes map[string]any) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type invoiceRepository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewInvoiceRepository(db *gorm.DB, logger *slog.Logger) InvoiceRepository {
	return &invoiceRepository{db: db, logger: logger}
}

func (r *invoiceRepository) Create(ctx context.Context, inv *models.Invoice) error {
	if err := r.db.WithContext(ctx).Create(inv).Error; err != nil {
		r.logger.Error("failed to create invoice", "filename", inv.OriginalFilename, "error", err)
		return err
	}
	r.logger.Info("invoice created", "invoice_id", inv.ID, "status", inv.Status)
	return nil
}

func (r *invoiceRepository) Get(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	var inv models.Invoice
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		First(&inv, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		r.logger.Error("failed to get invoice", "invoice_id", id, "error", err)
		return nil, err
	}
	return &inv, nil
}

// List returns one page of invoices, newest upload first, plus the total count.
func (r *invoiceRepository) List(ctx context.Context, offset, limit int) ([]models.Invoice, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Invoice{}).Count(&total).Error; err != nil {
		r.logger.Error("failed to count invoices", "error", err)
		return nil, 0, err
	}

	var invoices []models.Invoice
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Order("uploaded_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&invoices).Error
	if err != nil {
		r.logger.Error("failed to list invoices", "offset", offset, "limit", limit, "error", err)
		return nil, 0, err
	}
	return invoices, total, nil
}

// All returns every invoice, newest upload first, without line items.
func (r *invoiceRepository) All(ctx context.Context) ([]models.Invoice, error) {
	var invoices []models.Invoice
	if err := r.db.WithContext(ctx).Order("uploaded_at DESC").Find(&invoices).Error; err != nil {
		r.logger.Error("failed to load invoices", "error", err)
		return nil, err
	}
	return invoices, nil
}

func (r *invoiceRepository) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Model(&models.Invoice{}).Where("id = ?", id).Updates(map[string]any{
		"status":        models.StatusProcessing,
		"error_message": nil,
		"processed_at":  nil,
	})
	if res.Error != nil {
		r.logger.Error("failed to mark invoice processing", "invoice_id", id, "error", res.Error)
		return res.Error
	}
	if res.RowsAffected == 0 {
		return common.ErrNotFound
	}
	return nil
}

// Complete writes the extracted fields and replaces the line items in one transaction.
func (r *invoiceRepository) Complete(ctx context.Context, inv *models.Invoice, items []models.InvoiceItem) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Invoice{}).Where("id = ?", inv.ID).Updates(map[string]any{
			"status":           models.StatusCompleted,
			"processed_at":     inv.ProcessedAt,
			"error_message":    nil,
			"invoice_number":   inv.InvoiceNumber,
			"invoice_date":     inv.InvoiceDate,
			"vendor_name":      inv.VendorName,
			"vendor_cuit":      inv.VendorCUIT,
			"vendor_address":   inv.VendorAddress,
			"customer_name":    inv.CustomerName,
			"customer_cuit":    inv.CustomerCUIT,
			"customer_address": inv.CustomerAddress,
			"subtotal":         inv.Subtotal,
			"tax_amount":       inv.TaxAmount,
			"total_amount":     inv.TotalAmount,
			"currency":         inv.Currency,
			"payment_terms":    inv.PaymentTerms,
			"raw_extraction":   inv.RawExtraction,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return common.ErrNotFound
		}

		if err := tx.Where("invoice_id = ?", inv.ID).Delete(&models.InvoiceItem{}).Error; err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}
		for i := range items {
			items[i].InvoiceID = inv.ID
		}
		return tx.Create(&items).Error
	})
	if err != nil {
		r.logger.Error("failed to complete invoice", "invoice_id", inv.ID, "error", err)
		return err
	}
	r.logger.Info("invoice completed", "invoice_id", inv.ID, "items", len(items))
	return nil
}

func (r *invoiceRepository) MarkFailed(ctx context.Context, id uuid.UUID, message string) error {
	err := r.db.WithContext(ctx).Model(&models.Invoice{}).Where("id = ?", id).Updates(map[string]any{
		"status":        models.StatusFailed,
		"error_message": message,
		"processed_at":  nil,
	}).Error
	if err != nil {
		r.logger.Error("failed to mark invoice failed", "invoice_id", id, "error", err)
		return err
	}
	r.logger.Warn("invoice failed", "invoice_id", id, "error", message)
	return nil
}

func (r *invoiceRepository) Update(ctx context.Context, id uuid.UUID, changes map[string]any) error {
	if len(changes) == 0 {
		return nil
	}
	res := r.db.WithContext(ctx).Model(&models.Invoice{}).Where("id = ?", id).Updates(changes)
	if res.Error != nil {
		r.logger.Error("failed to update invoice", "invoice_id", id, "error", res.Error)
		return res.Error
	}
	if res.RowsAffected == 0 {
		return common.ErrNotFound
	}
	return nil
}

// Delete removes the invoice and its line items.
func (r *invoiceRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("invoice_id = ?", id).Delete(&models.InvoiceItem{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&models.Invoice{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return common.ErrNotFound
		}
		r.logger.Info("invoice deleted", "invoice_id", id)
		return nil
	})
}
