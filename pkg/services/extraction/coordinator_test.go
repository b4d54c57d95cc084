package extraction

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoice-extractor/pkg/common"
	"invoice-extractor/pkg/logger"
	"invoice-extractor/pkg/services/engine"
)

func newCoordinator(eng engine.Engine, cfg engine.Config) *Coordinator {
	return NewCoordinator(eng, cfg, logger.Discard())
}

func TestExtractCollectsAnswers(t *testing.T) {
	idx := &fakeIndex{answers: map[string]string{
		question(FieldInvoiceNumber): "  0001-00001234 ",
		question(FieldInvoiceDate):   "15/01/2024",
		question(FieldTotalAmount):   "$1.234,56",
		question(FieldCurrency):      "   ",
		itemsQuestion:                `[{"description":"Servicio","quantity":1,"unit_price":1020.3,"total_price":1020.3,"tax_rate":21}]`,
	}}
	c := newCoordinator(&fakeEngine{index: idx}, engine.Config{})

	res, err := c.Extract(context.Background(), "factura.pdf")
	require.NoError(t, err)

	assert.Len(t, res.Fields, len(Fields))
	require.NotNil(t, res.Fields[FieldInvoiceNumber])
	assert.Equal(t, "0001-00001234", *res.Fields[FieldInvoiceNumber])
	assert.Equal(t, "15/01/2024", *res.Fields[FieldInvoiceDate])
	assert.Equal(t, "$1.234,56", *res.Fields[FieldTotalAmount])
	assert.Nil(t, res.Fields[FieldCurrency], "blank answers carry no value")
	assert.Nil(t, res.Fields[FieldVendorName])
	assert.Empty(t, res.FieldErrors)

	require.Len(t, res.Items, 1)
	assert.Equal(t, "Servicio", res.Items[0].Description)
	assert.Equal(t, "1020.3", res.Items[0].UnitPrice.Decimal.String())
	require.NotNil(t, res.RawItems)

	snap := res.Snapshot()
	assert.Len(t, snap, len(Fields)+1)
	assert.Equal(t, "$1.234,56", snap[FieldTotalAmount])
	assert.Nil(t, snap[FieldVendorName])
	assert.Contains(t, snap[RawItemsKey], "Servicio")

	assert.Len(t, idx.asked, len(Fields)+1)
}

func TestExtractLoadFailureIssuesNoQueries(t *testing.T) {
	idx := &fakeIndex{}
	eng := &fakeEngine{loadErr: errors.New("Failed to load document"), index: idx}
	c := newCoordinator(eng, engine.Config{})

	res, err := c.Extract(context.Background(), "broken.pdf")
	assert.Nil(t, res)
	require.Error(t, err)
	assert.True(t, common.IsKind(err, common.KindDocumentLoad))
	assert.Equal(t, "Failed to load document", common.MessageOf(err))
	assert.Empty(t, idx.asked)
}

func TestExtractFieldFailuresAreIsolated(t *testing.T) {
	idx := &fakeIndex{
		answers: map[string]string{
			question(FieldVendorName): "ACME S.A.",
		},
		failures: map[string]error{
			question(FieldSubtotal): errUpstream,
			itemsQuestion:           errUpstream,
		},
		panics: map[string]bool{
			question(FieldPaymentTerms): true,
		},
	}
	c := newCoordinator(&fakeEngine{index: idx}, engine.Config{})

	res, err := c.Extract(context.Background(), "factura.pdf")
	require.NoError(t, err)

	assert.Equal(t, "ACME S.A.", *res.Fields[FieldVendorName])
	assert.Nil(t, res.Fields[FieldSubtotal])
	assert.Nil(t, res.Fields[FieldPaymentTerms])
	assert.Empty(t, res.Items)
	assert.Nil(t, res.RawItems)

	require.Len(t, res.FieldErrors, 3)
	fields := []string{res.FieldErrors[0].Field, res.FieldErrors[1].Field, res.FieldErrors[2].Field}
	assert.Equal(t, []string{RawItemsKey, FieldPaymentTerms, FieldSubtotal}, fields)
	for _, fe := range res.FieldErrors {
		assert.Equal(t, common.KindFieldQuery, fe.Kind)
	}
	assert.ErrorIs(t, res.FieldErrors[2], errUpstream)
}

func TestExtractBoundsConcurrency(t *testing.T) {
	idx := &fakeIndex{}
	c := newCoordinator(&fakeEngine{index: idx}, engine.Config{Concurrency: 2})

	_, err := c.Extract(context.Background(), "factura.pdf")
	require.NoError(t, err)
	assert.LessOrEqual(t, idx.peak.Load(), int32(2))
	assert.Len(t, idx.asked, len(Fields)+1)
}

func TestExtractQueryTimeout(t *testing.T) {
	idx := &fakeIndex{block: make(chan struct{})}
	c := newCoordinator(&fakeEngine{index: idx}, engine.Config{QueryTimeout: 20 * time.Millisecond, Concurrency: len(Fields) + 1})

	res, err := c.Extract(context.Background(), "factura.pdf")
	require.NoError(t, err)
	assert.Len(t, res.FieldErrors, len(Fields)+1)
	for _, fe := range res.FieldErrors {
		assert.ErrorIs(t, fe, context.DeadlineExceeded)
	}
}
