package catalog

import "strings"

// CSV column names expected in the upload header.
const (
	ColumnSKU         = "sku"
	ColumnName        = "name"
	ColumnDescription = "description"
)

// NormalizeSKU produces the case-folded, trimmed uniqueness key for a SKU.
func NormalizeSKU(sku string) string {
	return strings.ToLower(strings.TrimSpace(sku))
}

// NormalizeRow cleans one raw CSV record into a Product. The second return
// is false when the row must be skipped (empty or whitespace-only SKU).
// Missing optional fields degrade to defaults; they never abort the row.
func NormalizeRow(row map[string]string) (Product, bool) {
	sku := strings.TrimSpace(row[ColumnSKU])
	if sku == "" {
		return Product{}, false
	}
	return Product{
		SKU:         sku,
		SKUNorm:     NormalizeSKU(sku),
		Name:        strings.TrimSpace(row[ColumnName]),
		Description: strings.TrimSpace(row[ColumnDescription]),
		Active:      true,
	}, true
}
