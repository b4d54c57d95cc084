package extraction

// Field is one invoice value asked of the engine.
type Field struct {
	Name     string
	Question string
}

const (
	FieldInvoiceNumber   = "invoice_number"
	FieldInvoiceDate     = "invoice_date"
	FieldVendorName      = "vendor_name"
	FieldVendorCUIT      = "vendor_cuit"
	FieldVendorAddress   = "vendor_address"
	FieldCustomerName    = "customer_name"
	FieldCustomerCUIT    = "customer_cuit"
	FieldCustomerAddress = "customer_address"
	FieldSubtotal        = "subtotal"
	FieldTaxAmount       = "tax_amount"
	FieldTotalAmount     = "total_amount"
	FieldCurrency        = "currency"
	FieldPaymentTerms    = "payment_terms"

	// RawItemsKey holds the raw line-item answer in the extraction snapshot.
	RawItemsKey = "items"
)

// Fields lists the questions asked for every invoice, in display order.
var Fields = []Field{
	{FieldInvoiceNumber, "What is the invoice number (Número de Factura)?"},
	{FieldInvoiceDate, "What is the invoice date (Fecha de Factura)?"},
	{FieldVendorName, "What is the vendor/seller name (Razón Social)?"},
	{FieldVendorCUIT, "What is the vendor CUIT number (CUIT del vendedor)?"},
	{FieldVendorAddress, "What is the vendor address (Domicilio Comercial)?"},
	{FieldCustomerName, "What is the customer/buyer name?"},
	{FieldCustomerCUIT, "What is the customer CUIT number?"},
	{FieldCustomerAddress, "What is the customer address?"},
	{FieldSubtotal, "What is the subtotal amount (Subtotal)?"},
	{FieldTaxAmount, "What is the IVA/VAT tax amount?"},
	{FieldTotalAmount, "What is the total amount (Total)?"},
	{FieldCurrency, "What is the currency used?"},
	{FieldPaymentTerms, "What are the payment terms (Condiciones de Pago)?"},
}

const itemsQuestion = `List all line items from this invoice as a JSON array.
Each element must be an object with the keys "description" (string), "quantity", "unit_price", "total_price" and "tax_rate" (numbers using a dot as decimal separator, or null when absent), "product_code" and "unit_of_measure" (strings or null).
Reply with the JSON array only. If the invoice has no line items, reply with [].`
