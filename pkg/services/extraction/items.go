package extraction

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/shopspring/decimal"

	"invoice-extractor/pkg/normalize"
)

// Item is one parsed line item. Numeric values are invalid when the
// answer did not carry them.
type Item struct {
	Description   string
	Quantity      decimal.NullDecimal
	UnitPrice     decimal.NullDecimal
	TotalPrice    decimal.NullDecimal
	TaxRate       decimal.NullDecimal
	ProductCode   *string
	UnitOfMeasure *string
}

var itemsSchemaDoc = map[string]any{
	"type": "array",
	"items": map[string]any{
		"type":     "object",
		"required": []string{"description"},
		"properties": map[string]any{
			"description":     map[string]any{"type": "string", "pattern": `\S`},
			"quantity":        numberish(),
			"unit_price":      numberish(),
			"total_price":     numberish(),
			"tax_rate":        numberish(),
			"product_code":    map[string]any{"type": []string{"string", "null"}},
			"unit_of_measure": map[string]any{"type": []string{"string", "null"}},
		},
	},
}

func numberish() map[string]any {
	return map[string]any{"type": []string{"number", "string", "null"}}
}

var (
	itemsSchemaOnce sync.Once
	itemsSchema     *jsonschema.Schema
	itemsSchemaErr  error
)

func compiledItemsSchema() (*jsonschema.Schema, error) {
	itemsSchemaOnce.Do(func() {
		b, err := json.Marshal(itemsSchemaDoc)
		if err != nil {
			itemsSchemaErr = fmt.Errorf("marshal schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("items.json", bytes.NewReader(b)); err != nil {
			itemsSchemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		itemsSchema, itemsSchemaErr = compiler.Compile("items.json")
	})
	return itemsSchema, itemsSchemaErr
}

// ParseItems turns the engine's line-item answer into items. It tries the
// JSON contract first, then a text table, and finally keeps the whole
// answer as the description of a single item.
func ParseItems(raw string) []Item {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if items, err := parseJSONItems(raw); err == nil {
		return items
	}
	if items := parseTableItems(raw); len(items) > 0 {
		return items
	}
	return []Item{{Description: raw}}
}

var fence = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")

func parseJSONItems(raw string) ([]Item, error) {
	if m := fence.FindStringSubmatch(raw); m != nil {
		raw = m[1]
	}

	var doc any
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("decode items: trailing data")
	}
	// tolerate {"items": [...]}
	if obj, ok := doc.(map[string]any); ok {
		if inner, ok := obj["items"]; ok {
			doc = inner
		}
	}

	schema, err := compiledItemsSchema()
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("items do not match schema: %w", err)
	}

	rows := doc.([]any)
	items := make([]Item, 0, len(rows))
	for _, r := range rows {
		obj := r.(map[string]any)
		items = append(items, Item{
			Description:   strings.TrimSpace(obj["description"].(string)),
			Quantity:      jsonDecimal(obj["quantity"]),
			UnitPrice:     jsonDecimal(obj["unit_price"]),
			TotalPrice:    jsonDecimal(obj["total_price"]),
			TaxRate:       jsonDecimal(obj["tax_rate"]),
			ProductCode:   jsonString(obj["product_code"]),
			UnitOfMeasure: jsonString(obj["unit_of_measure"]),
		})
	}
	return items, nil
}

// jsonDecimal reads a JSON number or a quoted one. Quoted values without
// a comma follow the dot-decimal contract ("2.5" is two and a half); the
// rest are read with Argentine conventions ("1.234,50").
func jsonDecimal(v any) decimal.NullDecimal {
	switch t := v.(type) {
	case json.Number:
		return dotDecimal(t.String())
	case string:
		if !strings.Contains(t, ",") {
			if d := dotDecimal(strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(t), "$"))); d.Valid {
				return d
			}
		}
		return normalize.NullCurrency(&t)
	}
	return decimal.NullDecimal{}
}

func dotDecimal(s string) decimal.NullDecimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

func jsonString(v any) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

type column int

const (
	colSkip column = iota
	colDescription
	colQuantity
	colUnitPrice
	colTotal
	colTax
	colCode
	colUOM
)

// defaultColumns is the row layout the engine is asked for.
var defaultColumns = []column{colDescription, colQuantity, colUnitPrice, colTotal}

var (
	bullet    = regexp.MustCompile(`^(?:[-*•·]+|#?\d{1,3}[.)-])\s+`)
	separator = regexp.MustCompile(`^[\s|:+-]+$`)
)

// parseTableItems reads pipe, semicolon or tab separated rows. A header
// row, when present, decides the column order.
func parseTableItems(raw string) []Item {
	cols := defaultColumns
	var items []Item

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || separator.MatchString(line) {
			continue
		}
		line = bullet.ReplaceAllString(line, "")

		cells := splitRow(line)
		if len(cells) < 2 {
			continue
		}
		if hdr, ok := headerColumns(cells); ok {
			cols = hdr
			continue
		}
		if item, ok := rowItem(cells, cols); ok {
			items = append(items, item)
		}
	}
	return items
}

func splitRow(line string) []string {
	var parts []string
	switch {
	case strings.Contains(line, "|"):
		parts = strings.Split(strings.Trim(line, "|"), "|")
	case strings.Contains(line, ";"):
		parts = strings.Split(line, ";")
	case strings.Contains(line, "\t"):
		parts = strings.Split(line, "\t")
	default:
		return nil
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func headerColumns(cells []string) ([]column, bool) {
	cols := make([]column, len(cells))
	known := 0
	for i, c := range cells {
		if _, err := normalize.ParseCurrency(c); err == nil {
			return nil, false
		}
		cols[i] = headerColumn(strings.ToLower(c))
		if cols[i] != colSkip {
			known++
		}
	}
	return cols, known >= 2
}

func headerColumn(h string) column {
	has := func(words ...string) bool {
		for _, w := range words {
			if strings.Contains(h, w) {
				return true
			}
		}
		return false
	}
	switch {
	case has("código", "codigo", "code", "sku"):
		return colCode
	case has("medida", "uom", "unit of measure"):
		return colUOM
	case has("iva", "tax", "alícuota", "alicuota"):
		return colTax
	case has("unit"):
		return colUnitPrice
	case has("total", "importe", "amount"):
		return colTotal
	case has("precio", "price"):
		return colUnitPrice
	case has("cant", "qty", "quantity"):
		return colQuantity
	case has("descrip", "detalle", "concepto", "producto", "item", "artículo", "articulo"):
		return colDescription
	}
	return colSkip
}

func rowItem(cells []string, cols []column) (Item, bool) {
	var item Item
	for i, c := range cells {
		if i >= len(cols) || c == "" {
			continue
		}
		cell := c
		switch cols[i] {
		case colDescription:
			item.Description = cell
		case colQuantity:
			item.Quantity = normalize.NullCurrency(&cell)
		case colUnitPrice:
			item.UnitPrice = normalize.NullCurrency(&cell)
		case colTotal:
			item.TotalPrice = normalize.NullCurrency(&cell)
		case colTax:
			pct := strings.TrimSpace(strings.TrimSuffix(cell, "%"))
			item.TaxRate = normalize.NullCurrency(&pct)
		case colCode:
			item.ProductCode = &cell
		case colUOM:
			item.UnitOfMeasure = &cell
		}
	}
	if item.Description == "" {
		return Item{}, false
	}
	// a description that is just a number means the columns are off
	if _, err := normalize.ParseCurrency(item.Description); err == nil {
		return Item{}, false
	}
	return item, true
}
