// Package archive persists finished export batches as parquet objects
// for downstream analytics, alongside a JSON manifest per run.
package archive

import (
	"time"

	"github.com/metscube/shipsync/internal/export"
)

// ShipmentRow is the parquet schema for one archived export row.
type ShipmentRow struct {
	ShipmentID     string `parquet:"shipment_id"`
	OrderID        string `parquet:"order_id"`
	OrderNumber    string `parquet:"order_number"`
	ClientID       string `parquet:"client_id"`
	CreateDate     string `parquet:"create_date"`
	ShipDate       string `parquet:"ship_date"`
	Carrier        string `parquet:"carrier"`
	Service        string `parquet:"service"`
	TrackingNumber string `parquet:"tracking_number"`
	ShipToName     string `parquet:"ship_to_name"`
	StoreID        string `parquet:"store_id"`
	StoreName      string `parquet:"store_name"`
	WarehouseID    string `parquet:"warehouse_id"`
	WarehouseName  string `parquet:"warehouse_name"`
	BatchID        string `parquet:"batch_id"`

	ShippingCost  float64 `parquet:"shipping_cost"`
	BillingCost   float64 `parquet:"billing_cost"`
	InsuranceCost float64 `parquet:"insurance_cost"`

	Voided        bool    `parquet:"voided"`
	IsReturnLabel bool    `parquet:"is_return_label"`
	ItemsCount    int32   `parquet:"items_count"`
	SourceType    string  `parquet:"source_type"`
	WeightOz      float64 `parquet:"weight_oz"`
	PackageType   string  `parquet:"package_type"`
	Dimensions    string  `parquet:"dimensions"`
	CartonSize    string  `parquet:"carton_size"`

	ArchivedAt time.Time `parquet:"archived_at,timestamp(millisecond)"`
}

// fromExportRow maps a normalized export row into the archive schema.
func fromExportRow(r export.Row, archivedAt time.Time) ShipmentRow {
	return ShipmentRow{
		ShipmentID:     r.ShipmentID,
		OrderID:        r.OrderID,
		OrderNumber:    r.OrderNumber,
		ClientID:       r.ClientID,
		CreateDate:     r.CreateDate,
		ShipDate:       r.ShipDate,
		Carrier:        r.Carrier,
		Service:        r.Service,
		TrackingNumber: r.TrackingNumber,
		ShipToName:     r.ShipToName,
		StoreID:        r.StoreID,
		StoreName:      r.StoreName,
		WarehouseID:    r.WarehouseID,
		WarehouseName:  r.WarehouseName,
		BatchID:        r.BatchID,
		ShippingCost:   r.ShippingCost,
		BillingCost:    r.BillingCost,
		InsuranceCost:  r.InsuranceCost,
		Voided:         r.IsVoided(),
		IsReturnLabel:  r.IsReturnLabel == "YES",
		ItemsCount:     int32(r.ItemsCount),
		SourceType:     r.SourceType,
		WeightOz:       r.WeightOz,
		PackageType:    r.PackageType,
		Dimensions:     r.Dimensions,
		CartonSize:     r.CartonSize,
		ArchivedAt:     archivedAt.UTC(),
	}
}

// Manifest describes one archived run.
type Manifest struct {
	RunID      string    `json:"run_id"`
	Mode       string    `json:"mode"`
	File       string    `json:"file"`
	Checksum   string    `json:"checksum"`
	RowCount   int64     `json:"row_count"`
	ByteSize   int64     `json:"byte_size"`
	AppVersion string    `json:"app_version"`
	CreatedAt  time.Time `json:"created_at"`
}
