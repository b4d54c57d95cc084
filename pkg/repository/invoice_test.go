package repository

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"invoice-extractor/pkg/common"
	"invoice-extractor/pkg/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, Migrate(db))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func newTestRepo(t *testing.T) (InvoiceRepository, *gorm.DB) {
	db := newTestDB(t)
	return NewInvoiceRepository(db, slog.New(slog.NewTextHandler(io.Discard, nil))), db
}

func strPtr(s string) *string { return &s }

func TestCreateAndGet(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	inv := &models.Invoice{OriginalFilename: "factura.pdf", DocumentRef: "invoices/factura.pdf", Status: models.StatusProcessing}
	require.NoError(t, repo.Create(ctx, inv))
	require.NotEqual(t, "", inv.ID.String())
	assert.False(t, inv.UploadedAt.IsZero())

	got, err := repo.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "factura.pdf", got.OriginalFilename)
	assert.Equal(t, models.StatusProcessing, got.Status)
	assert.Equal(t, models.DefaultCurrency, got.Currency)
	assert.Nil(t, got.ProcessedAt)
	assert.Empty(t, got.Items)
}

func TestGetMissing(t *testing.T) {
	repo, _ := newTestRepo(t)
	_, err := repo.Get(context.Background(), models.Invoice{}.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestCompleteReplacesItems(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	inv := &models.Invoice{OriginalFilename: "a.pdf", Status: models.StatusProcessing}
	require.NoError(t, repo.Create(ctx, inv))

	processed := time.Now().UTC()
	inv.ProcessedAt = &processed
	inv.InvoiceNumber = strPtr("0001-00001234")
	inv.InvoiceDate = strPtr("2024-01-15")
	inv.TotalAmount = decimal.NullDecimal{Decimal: decimal.RequireFromString("12100.5"), Valid: true}
	inv.Currency = "ARS"
	inv.RawExtraction = datatypes.JSONMap{"invoice_number": "0001-00001234", "subtotal": nil}

	first := []models.InvoiceItem{
		{Description: "Servicio", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(100), TotalPrice: decimal.NewFromInt(100)},
		{Description: "Flete", Quantity: decimal.NewFromInt(2), UnitPrice: decimal.NewFromInt(5), TotalPrice: decimal.NewFromInt(10)},
	}
	require.NoError(t, repo.Complete(ctx, inv, first))

	got, err := repo.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
	require.NotNil(t, got.ProcessedAt)
	assert.Nil(t, got.ErrorMessage)
	assert.Equal(t, "0001-00001234", *got.InvoiceNumber)
	assert.Equal(t, "2024-01-15", *got.InvoiceDate)
	require.True(t, got.TotalAmount.Valid)
	assert.True(t, got.TotalAmount.Decimal.Equal(decimal.RequireFromString("12100.5")))
	assert.False(t, got.Subtotal.Valid)
	assert.Equal(t, "0001-00001234", got.RawExtraction["invoice_number"])
	require.Len(t, got.Items, 2)
	assert.Equal(t, "Servicio", got.Items[0].Description)
	assert.Equal(t, "Flete", got.Items[1].Description)

	second := []models.InvoiceItem{{Description: "Reemplazo", Quantity: decimal.NewFromInt(3)}}
	require.NoError(t, repo.Complete(ctx, inv, second))

	got, err = repo.Get(ctx, inv.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "Reemplazo", got.Items[0].Description)
}

func TestMarkFailedAndProcessing(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	inv := &models.Invoice{OriginalFilename: "a.pdf", Status: models.StatusProcessing}
	require.NoError(t, repo.Create(ctx, inv))

	require.NoError(t, repo.MarkFailed(ctx, inv.ID, "Failed to load document"))
	got, err := repo.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "Failed to load document", *got.ErrorMessage)
	assert.Nil(t, got.ProcessedAt)

	require.NoError(t, repo.MarkProcessing(ctx, inv.ID))
	got, err = repo.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, got.Status)
	assert.Nil(t, got.ErrorMessage)
}

func TestDeleteCascadesItems(t *testing.T) {
	repo, db := newTestRepo(t)
	ctx := context.Background()

	inv := &models.Invoice{OriginalFilename: "a.pdf", Status: models.StatusProcessing}
	require.NoError(t, repo.Create(ctx, inv))
	processed := time.Now().UTC()
	inv.ProcessedAt = &processed
	require.NoError(t, repo.Complete(ctx, inv, []models.InvoiceItem{
		{Description: "uno"}, {Description: "dos"},
	}))

	var count int64
	require.NoError(t, db.Model(&models.InvoiceItem{}).Where("invoice_id = ?", inv.ID).Count(&count).Error)
	require.Equal(t, int64(2), count)

	require.NoError(t, repo.Delete(ctx, inv.ID))

	require.NoError(t, db.Model(&models.InvoiceItem{}).Where("invoice_id = ?", inv.ID).Count(&count).Error)
	assert.Equal(t, int64(0), count)
	_, err := repo.Get(ctx, inv.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)

	assert.ErrorIs(t, repo.Delete(ctx, inv.ID), common.ErrNotFound)
}

func TestListNewestFirst(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	for i, name := range []string{"old.pdf", "mid.pdf", "new.pdf"} {
		inv := &models.Invoice{
			OriginalFilename: name,
			Status:           models.StatusCompleted,
			UploadedAt:       base.Add(time.Duration(i) * time.Hour),
		}
		require.NoError(t, repo.Create(ctx, inv))
	}

	page, total, err := repo.List(ctx, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, page, 2)
	assert.Equal(t, "new.pdf", page[0].OriginalFilename)
	assert.Equal(t, "mid.pdf", page[1].OriginalFilename)

	page, _, err = repo.List(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "old.pdf", page[0].OriginalFilename)

	all, err := repo.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "new.pdf", all[0].OriginalFilename)
}

func TestUpdate(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	inv := &models.Invoice{OriginalFilename: "a.pdf", Status: models.StatusCompleted}
	require.NoError(t, repo.Create(ctx, inv))

	require.NoError(t, repo.Update(ctx, inv.ID, map[string]any{"notes": "revisada"}))
	got, err := repo.Get(ctx, inv.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Notes)
	assert.Equal(t, "revisada", *got.Notes)
}
