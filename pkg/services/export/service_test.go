package export

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"invoice-extractor/pkg/logger"
	"invoice-extractor/pkg/models"
)

type staticSource struct {
	invoices []models.Invoice
	err      error
}

func (s staticSource) All(context.Context) ([]models.Invoice, error) { return s.invoices, s.err }

func TestExportInvoicesXLSX(t *testing.T) {
	number := "0001-00000001"
	vendor := "ACME S.A."
	msg := "Failed to load document"
	id := uuid.New()
	src := staticSource{invoices: []models.Invoice{
		{
			ID:               id,
			OriginalFilename: "a.pdf",
			Status:           models.StatusCompleted,
			UploadedAt:       time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
			InvoiceNumber:    &number,
			VendorName:       &vendor,
			TotalAmount:      decimal.NullDecimal{Decimal: decimal.RequireFromString("1210.5"), Valid: true},
			Currency:         "ARS",
		},
		{
			ID:               uuid.New(),
			OriginalFilename: "b.png",
			Status:           models.StatusFailed,
			Currency:         "ARS",
			ErrorMessage:     &msg,
		},
	}}

	data, err := NewService(src, logger.Discard()).ExportInvoicesXLSX(context.Background())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{sheet}, f.GetSheetList())
	rows, err := f.GetRows(sheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, headers, rows[0])

	assert.Equal(t, id.String(), rows[1][0])
	assert.Equal(t, "2024-01-15T10:00:00Z", rows[1][1])
	assert.Equal(t, "0001-00000001", rows[1][4])
	assert.Equal(t, "ACME S.A.", rows[1][6])
	assert.Equal(t, "1210.5", rows[1][12])

	assert.Equal(t, "failed", rows[2][2])
	assert.Equal(t, msg, rows[2][15])
}

func TestExportSourceError(t *testing.T) {
	_, err := NewService(staticSource{err: errors.New("db down")}, nil).ExportInvoicesXLSX(context.Background())
	assert.ErrorContains(t, err, "db down")
}
