package refdata

import (
	"regexp"
	"strings"
)

// ClientUnknown is the sentinel returned when no resolution strategy
// matches a shipment.
const ClientUnknown = "UNKNOWN"

// houseBrandMarker identifies stores owned by the platform operator
// itself. House-brand shipments resolve through the warehouse and the
// order number rather than the store.
const houseBrandMarker = "metscube"

var (
	bracketTagRe  = regexp.MustCompile(`^\[([A-Z]{3})\]`)
	orderPrefixRe = regexp.MustCompile(`(?i)^([A-Za-z]{3})[-_ ]`)
)

// ExtractClientTag pulls a leading bracketed three-letter client code
// from a display name, e.g. "[ABC] Storefront" -> "ABC".
func ExtractClientTag(name string) string {
	if name == "" {
		return ""
	}
	m := bracketTagRe.FindStringSubmatch(name)
	if m == nil {
		return ""
	}
	return m[1]
}

// ExtractClientFromOrderNumber pulls a leading three-letter code
// followed by a separator from an order number, e.g. "ABC-1001" -> "ABC".
func ExtractClientFromOrderNumber(orderNumber string) string {
	if orderNumber == "" {
		return ""
	}
	m := orderPrefixRe.FindStringSubmatch(orderNumber)
	if m == nil {
		return ""
	}
	return strings.ToUpper(m[1])
}

// RowContext carries the shipment fields client resolution reads.
type RowContext struct {
	StoreID       string
	StoreName     string
	WarehouseID   string
	WarehouseName string
	OrderNumber   string
}

// isHouseBrand reports whether the store belongs to the platform
// operator rather than an external client.
func (rc RowContext) isHouseBrand() bool {
	return strings.Contains(strings.ToLower(rc.StoreName), houseBrandMarker)
}

// strategy attempts one resolution rule; ok is false when the rule
// yields nothing and the next rule should run.
type strategy func(rc RowContext, refs *Refs) (clientID string, ok bool)

// strategies are applied in strict order; first match wins.
var strategies = []strategy{
	storeMapping,
	storeNameTag,
	warehouseMapping,
	warehouseNameTag,
	orderNumberPrefix,
}

func storeMapping(rc RowContext, refs *Refs) (string, bool) {
	if rc.isHouseBrand() || rc.StoreID == "" {
		return "", false
	}
	c, ok := refs.StoreClient[rc.StoreID]
	return c, ok
}

func storeNameTag(rc RowContext, _ *Refs) (string, bool) {
	if rc.isHouseBrand() {
		return "", false
	}
	c := ExtractClientTag(rc.StoreName)
	return c, c != ""
}

func warehouseMapping(rc RowContext, refs *Refs) (string, bool) {
	if rc.WarehouseID == "" {
		return "", false
	}
	c, ok := refs.WarehouseClient[rc.WarehouseID]
	return c, ok
}

func warehouseNameTag(rc RowContext, _ *Refs) (string, bool) {
	c := ExtractClientTag(rc.WarehouseName)
	return c, c != ""
}

func orderNumberPrefix(rc RowContext, _ *Refs) (string, bool) {
	if !rc.isHouseBrand() {
		return "", false
	}
	c := ExtractClientFromOrderNumber(rc.OrderNumber)
	return c, c != ""
}

// ResolveClient applies the resolution strategies in order and returns
// the first match, or ClientUnknown.
func (r *Refs) ResolveClient(rc RowContext) string {
	for _, s := range strategies {
		if c, ok := s(rc, r); ok {
			return c
		}
	}
	return ClientUnknown
}
