package refdata

import (
	"strconv"
	"strings"
)

// defaultToken in a warehouse markup cell means "inherit the global
// markup".
const defaultToken = "default"

// MarkupFor returns the markup percentage for a warehouse. An empty or
// "default" cell, an unknown warehouse, or an unparseable cell all fall
// back to the global markup.
func (r *Refs) MarkupFor(warehouseID string, globalMarkup float64) float64 {
	cell, ok := r.WarehouseMarkup[strings.TrimSpace(warehouseID)]
	if !ok {
		return globalMarkup
	}
	cell = strings.TrimSpace(cell)
	if cell == "" || strings.EqualFold(cell, defaultToken) {
		return globalMarkup
	}
	markup, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return globalMarkup
	}
	return markup
}

// BillingCost applies a markup percentage to a carrier cost. Free
// shipments stay free regardless of markup.
func BillingCost(originalCost, markupPct float64) float64 {
	if originalCost == 0 {
		return 0
	}
	return originalCost * (1 + markupPct/100)
}
