package invoice

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"invoice-extractor/pkg/common"
	"invoice-extractor/pkg/normalize"
)

// Patch carries manual corrections. Nil fields are left alone; an empty
// string clears a text field.
type Patch struct {
	Notes           *string `json:"notes"`
	InvoiceNumber   *string `json:"invoice_number"`
	InvoiceDate     *string `json:"invoice_date"`
	VendorName      *string `json:"vendor_name"`
	VendorCUIT      *string `json:"vendor_cuit"`
	VendorAddress   *string `json:"vendor_address"`
	CustomerName    *string `json:"customer_name"`
	CustomerCUIT    *string `json:"customer_cuit"`
	CustomerAddress *string `json:"customer_address"`
	PaymentTerms    *string `json:"payment_terms"`
	Currency        *string `json:"currency"`

	Subtotal    *decimal.Decimal `json:"subtotal"`
	TaxAmount   *decimal.Decimal `json:"tax_amount"`
	TotalAmount *decimal.Decimal `json:"total_amount"`
}

func (p Patch) changes() (map[string]any, error) {
	changes := make(map[string]any)

	for _, t := range []struct {
		column string
		value  *string
		max    int
	}{
		{"notes", p.Notes, 1 << 20},
		{"invoice_number", p.InvoiceNumber, maxNumberLen},
		{"vendor_name", p.VendorName, maxNameLen},
		{"vendor_cuit", p.VendorCUIT, maxCUITLen},
		{"vendor_address", p.VendorAddress, 1 << 16},
		{"customer_name", p.CustomerName, maxNameLen},
		{"customer_cuit", p.CustomerCUIT, maxCUITLen},
		{"customer_address", p.CustomerAddress, 1 << 16},
		{"payment_terms", p.PaymentTerms, maxTermsLen},
	} {
		if t.value == nil {
			continue
		}
		v, ok := fits(t.value, t.max)
		if !ok {
			return nil, common.ValidationError{Field: t.column, Message: fmt.Sprintf("must be at most %d characters", t.max)}
		}
		if v == "" {
			changes[t.column] = nil
		} else {
			changes[t.column] = v
		}
	}

	if p.Currency != nil {
		v, ok := fits(p.Currency, maxCurrencyLen)
		if !ok || v == "" {
			return nil, common.ValidationError{Field: "currency", Message: "currency must be a code of 1 to 10 characters"}
		}
		changes["currency"] = strings.ToUpper(v)
	}

	if p.InvoiceDate != nil {
		if c := clip(p.InvoiceDate, 32); c == nil {
			changes["invoice_date"] = nil
		} else {
			d, err := normalize.ParseDate(*c)
			if err != nil {
				return nil, common.ValidationError{Field: "invoice_date", Message: "unrecognised date " + *c}
			}
			changes["invoice_date"] = d
		}
	}

	for _, a := range []struct {
		column string
		value  *decimal.Decimal
	}{
		{"subtotal", p.Subtotal},
		{"tax_amount", p.TaxAmount},
		{"total_amount", p.TotalAmount},
	} {
		if a.value == nil {
			continue
		}
		v := bounded(decimal.NullDecimal{Decimal: *a.value, Valid: true}, amountDigits)
		if !v.Valid {
			return nil, common.ValidationError{Field: a.column, Message: "amount must be non-negative and below 10000000000"}
		}
		changes[a.column] = v
	}
	return changes, nil
}
