package invoice

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"invoice-extractor/pkg/models"
	"invoice-extractor/pkg/normalize"
	"invoice-extractor/pkg/services/extraction"
)

// column limits, matching the gorm tags on models.Invoice
const (
	maxNumberLen   = 100
	maxNameLen     = 255
	maxCUITLen     = 20
	maxCurrencyLen = 10
	maxTermsLen    = 255
	maxCodeLen     = 100
	maxUOMLen      = 50
)

// integer digits allowed by numeric(p,2) columns
const (
	amountDigits   = 10
	quantityDigits = 8
	rateDigits     = 3
)

func completedInvoice(id uuid.UUID, res *extraction.Result, processedAt time.Time) *models.Invoice {
	f := res.Fields
	inv := &models.Invoice{
		ID:              id,
		ProcessedAt:     &processedAt,
		InvoiceNumber:   clip(f[extraction.FieldInvoiceNumber], maxNumberLen),
		VendorName:      clip(f[extraction.FieldVendorName], maxNameLen),
		VendorCUIT:      cuit(f[extraction.FieldVendorCUIT]),
		VendorAddress:   f[extraction.FieldVendorAddress],
		CustomerName:    clip(f[extraction.FieldCustomerName], maxNameLen),
		CustomerCUIT:    cuit(f[extraction.FieldCustomerCUIT]),
		CustomerAddress: f[extraction.FieldCustomerAddress],
		Subtotal:        amount(f[extraction.FieldSubtotal], amountDigits),
		TaxAmount:       amount(f[extraction.FieldTaxAmount], amountDigits),
		TotalAmount:     amount(f[extraction.FieldTotalAmount], amountDigits),
		Currency:        models.DefaultCurrency,
		PaymentTerms:    clip(f[extraction.FieldPaymentTerms], maxTermsLen),
		RawExtraction:   datatypes.JSONMap(res.Snapshot()),
	}
	if d, ok := normalize.Date(f[extraction.FieldInvoiceDate]); ok {
		inv.InvoiceDate = &d
	}
	if code, ok := normalize.CurrencyCode(f[extraction.FieldCurrency]); ok {
		inv.Currency = code
	}
	return inv
}

func lineItems(items []extraction.Item) []models.InvoiceItem {
	out := make([]models.InvoiceItem, 0, len(items))
	for _, it := range items {
		out = append(out, models.InvoiceItem{
			Description:   it.Description,
			Quantity:      orZero(bounded(it.Quantity, quantityDigits)),
			UnitPrice:     orZero(bounded(it.UnitPrice, amountDigits)),
			TotalPrice:    orZero(bounded(it.TotalPrice, amountDigits)),
			TaxRate:       bounded(it.TaxRate, rateDigits),
			ProductCode:   clip(it.ProductCode, maxCodeLen),
			UnitOfMeasure: clip(it.UnitOfMeasure, maxUOMLen),
		})
	}
	return out
}

func amount(raw *string, digits int32) decimal.NullDecimal {
	return bounded(normalize.NullCurrency(raw), digits)
}

// bounded rounds to cents and drops values that are negative or too large
// for their column.
func bounded(d decimal.NullDecimal, digits int32) decimal.NullDecimal {
	if !d.Valid || d.Decimal.IsNegative() {
		return decimal.NullDecimal{}
	}
	v := d.Decimal.Round(2)
	if v.GreaterThanOrEqual(decimal.New(1, digits)) {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: v, Valid: true}
}

func orZero(d decimal.NullDecimal) decimal.Decimal {
	if !d.Valid {
		return decimal.Zero
	}
	return d.Decimal
}

// cuit keeps the CUIT found in raw, or the trimmed answer when it names
// none but still fits the column.
func cuit(raw *string) *string {
	if c, ok := normalize.CUIT(raw); ok {
		return &c
	}
	return clip(raw, maxCUITLen)
}

// clip trims s. Empty values and values longer than max runes become nil;
// the raw answer stays in the extraction snapshot.
func clip(s *string, max int) *string {
	v, ok := fits(s, max)
	if !ok || v == "" {
		return nil
	}
	return &v
}

// fits trims s and reports whether it is at most max runes long.
func fits(s *string, max int) (string, bool) {
	if s == nil {
		return "", true
	}
	v := strings.TrimSpace(*s)
	return v, utf8.RuneCountInString(v) <= max
}
