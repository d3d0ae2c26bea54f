// Package export turns raw shipments into normalized export rows.
package export

import (
	"fmt"
	"strconv"
)

// ColumnCount is the fixed width of the export schema.
const ColumnCount = 25

// VoidedColumn is the zero-based index of the Voided flag in a row.
const VoidedColumn = 15

// Headers is the fixed header row of the export sheet, in column order.
var Headers = []string{
	"Create Date", "Order Number", "Order ID", "Ship To Name", "Tracking Number",
	"Carrier", "Service", "Ship Date", "Store ID", "Batch ID", "Shipping Cost",
	"Warehouse ID", "Warehouse Name", "Billing Cost", "Store Name", "Voided",
	"Shipment ID", "Is Return Label", "Insurance Cost", "Items Count", "Source Type",
	"Weight (oz)", "Package Type", "Dimensions", "Carton Size",
}

// Row is one normalized export row. Field order matches Headers.
type Row struct {
	CreateDate     string
	OrderNumber    string
	OrderID        string
	ShipToName     string
	TrackingNumber string
	Carrier        string
	Service        string
	ShipDate       string
	StoreID        string
	BatchID        string
	ShippingCost   float64
	WarehouseID    string
	WarehouseName  string
	BillingCost    float64
	StoreName      string
	Voided         string // "YES" | "NO"
	ShipmentID     string
	IsReturnLabel  string // "YES" | "NO"
	InsuranceCost  float64
	ItemsCount     int
	SourceType     string
	WeightOz       float64
	PackageType    string
	Dimensions     string
	CartonSize     string

	// ClientID is carried for archive/reporting; it is not a sheet
	// column of its own but feeds the billing fields above.
	ClientID string
}

// Values renders the row in sheet column order. The rendering is
// deterministic: the same Row always yields byte-identical cells.
func (r Row) Values() []string {
	return []string{
		r.CreateDate,
		r.OrderNumber,
		r.OrderID,
		r.ShipToName,
		r.TrackingNumber,
		r.Carrier,
		r.Service,
		r.ShipDate,
		r.StoreID,
		r.BatchID,
		formatMoney(r.ShippingCost),
		r.WarehouseID,
		r.WarehouseName,
		formatMoney(r.BillingCost),
		r.StoreName,
		r.Voided,
		r.ShipmentID,
		r.IsReturnLabel,
		formatMoney(r.InsuranceCost),
		strconv.Itoa(r.ItemsCount),
		r.SourceType,
		formatNumber(r.WeightOz),
		r.PackageType,
		r.Dimensions,
		r.CartonSize,
	}
}

// IsVoided reports whether the row is flagged as voided.
func (r Row) IsVoided() bool {
	return r.Voided == "YES"
}

func formatMoney(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
