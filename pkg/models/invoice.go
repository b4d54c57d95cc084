package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Invoice processing status
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// DefaultCurrency applies when extraction finds no currency.
const DefaultCurrency = "ARS"

// Invoice represents an uploaded invoice document with extracted information
type Invoice struct {
	ID               uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentRef      string     `gorm:"size:512" json:"document"`
	OriginalFilename string     `gorm:"size:255;not null" json:"original_filename"`
	Status           string     `gorm:"size:20;not null;default:'pending';index" json:"status"`
	UploadedAt       time.Time  `gorm:"autoCreateTime;index" json:"uploaded_at"`
	ProcessedAt      *time.Time `json:"processed_at"`

	InvoiceNumber *string `gorm:"size:100" json:"invoice_number"`
	// canonical YYYY-MM-DD
	InvoiceDate *string `gorm:"size:10" json:"invoice_date"`

	VendorName    *string `gorm:"size:255" json:"vendor_name"`
	VendorCUIT    *string `gorm:"column:vendor_cuit;size:20" json:"vendor_cuit"`
	VendorAddress *string `gorm:"type:text" json:"vendor_address"`

	CustomerName    *string `gorm:"size:255" json:"customer_name"`
	CustomerCUIT    *string `gorm:"column:customer_cuit;size:20" json:"customer_cuit"`
	CustomerAddress *string `gorm:"type:text" json:"customer_address"`

	Subtotal    decimal.NullDecimal `gorm:"type:numeric(12,2)" json:"subtotal"`
	TaxAmount   decimal.NullDecimal `gorm:"type:numeric(12,2)" json:"tax_amount"`
	TotalAmount decimal.NullDecimal `gorm:"type:numeric(12,2)" json:"total_amount"`
	Currency    string              `gorm:"size:10;not null;default:'ARS'" json:"currency"`

	PaymentTerms *string `gorm:"size:255" json:"payment_terms"`
	Notes        *string `gorm:"type:text" json:"notes"`

	RawExtraction datatypes.JSONMap `json:"raw_extraction"`
	ErrorMessage  *string           `gorm:"type:text" json:"error_message"`

	Items []InvoiceItem `gorm:"constraint:OnDelete:CASCADE" json:"items"`
}

// BeforeCreate assigns the id and the defaults the database would otherwise fill.
func (i *Invoice) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	if i.Status == "" {
		i.Status = StatusPending
	}
	if i.Currency == "" {
		i.Currency = DefaultCurrency
	}
	return nil
}

// InvoiceItem is a single line item of an invoice
type InvoiceItem struct {
	ID            uint                `gorm:"primaryKey" json:"id"`
	InvoiceID     uuid.UUID           `gorm:"type:uuid;not null;index" json:"-"`
	Description   string              `gorm:"type:text;not null" json:"description"`
	Quantity      decimal.Decimal     `gorm:"type:numeric(10,2);not null" json:"quantity"`
	UnitPrice     decimal.Decimal     `gorm:"type:numeric(12,2);not null" json:"unit_price"`
	TotalPrice    decimal.Decimal     `gorm:"type:numeric(12,2);not null" json:"total_price"`
	TaxRate       decimal.NullDecimal `gorm:"type:numeric(5,2)" json:"tax_rate"`
	ProductCode   *string             `gorm:"size:100" json:"product_code"`
	UnitOfMeasure *string             `gorm:"size:50" json:"unit_of_measure"`
}
