// Package invoice drives an invoice through upload, extraction and
// persistence.
package invoice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"invoice-extractor/pkg/common"
	"invoice-extractor/pkg/lock"
	"invoice-extractor/pkg/logger"
	"invoice-extractor/pkg/models"
	"invoice-extractor/pkg/repository"
	"invoice-extractor/pkg/services/extraction"
	"invoice-extractor/pkg/storage"
)

// Extractor produces raw field values for a document on disk.
type Extractor interface {
	Extract(ctx context.Context, path string) (*extraction.Result, error)
}

// UploadRequest is a validated document upload.
type UploadRequest struct {
	Filename string
	Size     int64
	Body     io.Reader
}

// Manager owns the invoice lifecycle:
//
//	pending -> processing -> completed | failed
//	completed | failed -> processing (reprocess)
type Manager struct {
	repo      repository.InvoiceRepository
	store     storage.Store
	extractor Extractor
	locker    lock.Locker
	logger    *slog.Logger
	now       func() time.Time
}

func NewManager(repo repository.InvoiceRepository, store storage.Store, extractor Extractor, locker lock.Locker, logger *slog.Logger) *Manager {
	return &Manager{
		repo:      repo,
		store:     store,
		extractor: extractor,
		locker:    locker,
		logger:    logger,
		now:       time.Now,
	}
}

// Upload stores the document, creates its record in processing and runs
// extraction synchronously. When processing fails the returned record is
// in failed state and the error says why.
func (m *Manager) Upload(ctx context.Context, req UploadRequest) (*models.Invoice, error) {
	ref, err := m.store.Save(ctx, req.Filename, req.Body, req.Size)
	if err != nil {
		return nil, common.New(common.KindPersistence, "invoice.upload", err)
	}

	inv := &models.Invoice{
		ID:               uuid.New(),
		DocumentRef:      ref,
		OriginalFilename: req.Filename,
		Status:           models.StatusProcessing,
	}
	ctx = logger.WithInvoiceID(ctx, inv.ID.String())

	release, err := m.locker.TryLock(ctx, inv.ID.String())
	if err != nil {
		m.removeDocument(ctx, ref)
		return nil, common.New(common.KindPersistence, "invoice.upload", err)
	}
	defer release()

	if err := m.repo.Create(ctx, inv); err != nil {
		m.removeDocument(ctx, ref)
		return nil, common.New(common.KindPersistence, "invoice.upload", err)
	}
	m.log(ctx).Info("invoice uploaded", "filename", req.Filename, "bytes", req.Size)

	return m.process(ctx, inv.ID, ref)
}

// Reprocess runs the full pipeline again on the stored document. Prior
// line items are replaced.
func (m *Manager) Reprocess(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	ctx = logger.WithInvoiceID(ctx, id.String())

	inv, err := m.repo.Get(ctx, id)
	if err != nil {
		return nil, m.lookupError("invoice.reprocess", err)
	}
	if inv.DocumentRef == "" {
		return inv, common.ErrNoDocument
	}

	release, err := m.locker.TryLock(ctx, id.String())
	if errors.Is(err, lock.ErrHeld) {
		return inv, common.ErrInFlight
	}
	if err != nil {
		return inv, common.New(common.KindPersistence, "invoice.reprocess", err)
	}
	defer release()

	if err := m.repo.MarkProcessing(ctx, id); err != nil {
		return inv, m.lookupError("invoice.reprocess", err)
	}
	m.log(ctx).Info("invoice reprocessing", "previous_status", inv.Status)

	return m.process(ctx, id, inv.DocumentRef)
}

// process takes a record in processing to completed or failed. It never
// leaves the record in processing, even when the caller goes away.
func (m *Manager) process(ctx context.Context, id uuid.UUID, ref string) (inv *models.Invoice, err error) {
	dbctx := context.WithoutCancel(ctx)
	start := m.now()

	defer func() {
		if r := recover(); r != nil {
			m.log(ctx).Error("panic while processing invoice", "panic", r)
			inv, err = m.fail(dbctx, id, fmt.Errorf("internal error: %v", r))
		}
	}()

	path, cleanup, err := m.store.Open(ctx, ref)
	if err != nil {
		return m.fail(dbctx, id, common.New(common.KindDocumentLoad, "invoice.process", err))
	}
	defer cleanup()

	res, err := m.extractor.Extract(ctx, path)
	if err != nil {
		if common.KindOf(err) == "" {
			err = common.New(common.KindDocumentLoad, "invoice.process", err)
		}
		return m.fail(dbctx, id, err)
	}

	processedAt := m.now().UTC()
	completed := completedInvoice(id, res, processedAt)
	items := lineItems(res.Items)
	if err := m.repo.Complete(dbctx, completed, items); err != nil {
		return m.fail(dbctx, id, common.New(common.KindPersistence, "invoice.complete", err))
	}

	m.log(ctx).Info("invoice processed",
		"items", len(items),
		"field_errors", len(res.FieldErrors),
		"elapsed_ms", m.now().Sub(start).Milliseconds(),
	)
	inv, err = m.repo.Get(dbctx, id)
	if err != nil {
		return nil, common.New(common.KindPersistence, "invoice.process", err)
	}
	return inv, nil
}

// fail records cause on the invoice and returns the failed record with cause.
func (m *Manager) fail(ctx context.Context, id uuid.UUID, cause error) (*models.Invoice, error) {
	msg := common.MessageOf(cause)
	m.log(ctx).Warn("invoice processing failed", "kind", common.KindOf(cause), "error", cause)

	if err := m.repo.MarkFailed(ctx, id, msg); err != nil {
		m.log(ctx).Error("could not record invoice failure", "error", err)
		return nil, errors.Join(cause, common.New(common.KindPersistence, "invoice.fail", err))
	}
	inv, err := m.repo.Get(ctx, id)
	if err != nil {
		return nil, errors.Join(cause, common.New(common.KindPersistence, "invoice.fail", err))
	}
	return inv, cause
}

func (m *Manager) Get(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	inv, err := m.repo.Get(ctx, id)
	if err != nil {
		return nil, m.lookupError("invoice.get", err)
	}
	return inv, nil
}

// List returns one page of invoices, newest first, and the total count.
// page is 1-based.
func (m *Manager) List(ctx context.Context, page, pageSize int) ([]models.Invoice, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 1
	}
	invoices, total, err := m.repo.List(ctx, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, 0, common.New(common.KindPersistence, "invoice.list", err)
	}
	return invoices, total, nil
}

// All returns every invoice without line items, newest first.
func (m *Manager) All(ctx context.Context) ([]models.Invoice, error) {
	invoices, err := m.repo.All(ctx)
	if err != nil {
		return nil, common.New(common.KindPersistence, "invoice.all", err)
	}
	return invoices, nil
}

// Update applies manual corrections and returns the updated record.
func (m *Manager) Update(ctx context.Context, id uuid.UUID, patch Patch) (*models.Invoice, error) {
	changes, err := patch.changes()
	if err != nil {
		return nil, err
	}
	if len(changes) > 0 {
		if err := m.repo.Update(ctx, id, changes); err != nil {
			return nil, m.lookupError("invoice.update", err)
		}
		m.log(logger.WithInvoiceID(ctx, id.String())).Info("invoice updated", "fields", len(changes))
	}
	return m.Get(ctx, id)
}

// Delete removes the invoice, its line items and, best effort, the stored
// document.
func (m *Manager) Delete(ctx context.Context, id uuid.UUID) error {
	ctx = logger.WithInvoiceID(ctx, id.String())
	inv, err := m.repo.Get(ctx, id)
	if err != nil {
		return m.lookupError("invoice.delete", err)
	}

	release, err := m.locker.TryLock(ctx, id.String())
	if errors.Is(err, lock.ErrHeld) {
		return common.ErrInFlight
	}
	if err != nil {
		return common.New(common.KindPersistence, "invoice.delete", err)
	}
	defer release()

	if err := m.repo.Delete(ctx, id); err != nil {
		return m.lookupError("invoice.delete", err)
	}
	if inv.DocumentRef != "" {
		m.removeDocument(ctx, inv.DocumentRef)
	}
	return nil
}

func (m *Manager) removeDocument(ctx context.Context, ref string) {
	if err := m.store.Remove(context.WithoutCancel(ctx), ref); err != nil {
		m.log(ctx).Warn("failed to remove stored document", "ref", ref, "error", err)
	}
}

func (m *Manager) lookupError(op string, err error) error {
	if errors.Is(err, common.ErrNotFound) {
		return common.ErrNotFound
	}
	return common.New(common.KindPersistence, op, err)
}

func (m *Manager) log(ctx context.Context) *slog.Logger {
	return logger.WithContext(ctx, m.logger)
}
