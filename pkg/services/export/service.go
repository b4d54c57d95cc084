package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"invoice-extractor/pkg/models"
)

const sheet = "Invoices"

// InvoiceSource lists the invoices to export.
type InvoiceSource interface {
	All(ctx context.Context) ([]models.Invoice, error)
}

// Service produces XLSX workbooks of invoices.
type Service struct {
	source InvoiceSource
	logger *slog.Logger
}

func NewService(source InvoiceSource, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{source: source, logger: logger}
}

var headers = []string{
	"ID",
	"Uploaded At",
	"Status",
	"File",
	"Invoice Number",
	"Invoice Date",
	"Vendor",
	"Vendor CUIT",
	"Customer",
	"Customer CUIT",
	"Subtotal",
	"Tax (IVA)",
	"Total",
	"Currency",
	"Payment Terms",
	"Error",
}

// ExportInvoicesXLSX returns a workbook with one row per invoice, newest first.
func (s *Service) ExportInvoicesXLSX(ctx context.Context) ([]byte, error) {
	start := time.Now()
	invoices, err := s.source.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("query invoices: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		last, _ := excelize.CoordinatesToCellName(len(headers), 1)
		_ = f.SetCellStyle(sheet, "A1", last, bold)
	}

	for i, inv := range invoices {
		row := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
		write(1, inv.ID.String())
		write(2, inv.UploadedAt.UTC().Format(time.RFC3339))
		write(3, inv.Status)
		write(4, inv.OriginalFilename)
		write(5, str(inv.InvoiceNumber))
		write(6, str(inv.InvoiceDate))
		write(7, str(inv.VendorName))
		write(8, str(inv.VendorCUIT))
		write(9, str(inv.CustomerName))
		write(10, str(inv.CustomerCUIT))
		write(11, num(inv.Subtotal))
		write(12, num(inv.TaxAmount))
		write(13, num(inv.TotalAmount))
		write(14, inv.Currency)
		write(15, str(inv.PaymentTerms))
		write(16, str(inv.ErrorMessage))
	}

	_ = f.SetColWidth(sheet, "A", "A", 38)
	_ = f.SetColWidth(sheet, "B", "C", 22)
	_ = f.SetColWidth(sheet, "D", "E", 24)
	_ = f.SetColWidth(sheet, "G", "G", 32)
	_ = f.SetColWidth(sheet, "I", "I", 32)
	_ = f.SetColWidth(sheet, "K", "M", 14)
	_ = f.SetColWidth(sheet, "O", "P", 40)
	_ = f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	s.logger.InfoContext(ctx, "invoices exported", "rows", len(invoices), "bytes", buf.Len(), "elapsed_ms", time.Since(start).Milliseconds())
	return buf.Bytes(), nil
}

func str(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// num writes amounts as numbers so they can be summed in the sheet.
func num(d decimal.NullDecimal) any {
	if !d.Valid {
		return ""
	}
	return d.Decimal.InexactFloat64()
}
