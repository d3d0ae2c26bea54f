package export

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/metscube/shipsync/internal/refdata"
	"github.com/metscube/shipsync/internal/shipstation"
)

// SourceShipments marks rows that came from the shipments listing.
const SourceShipments = "shipment"

// Transformer converts raw shipments into export rows using the
// reference maps and configuration captured at run start. Transform is
// pure: the same shipment and the same snapshot always produce a
// byte-identical row.
type Transformer struct {
	refs *refdata.Refs
	cfg  refdata.RunConfig
}

// NewTransformer creates a transformer over a run's snapshot.
func NewTransformer(refs *refdata.Refs, cfg refdata.RunConfig) *Transformer {
	return &Transformer{refs: refs, cfg: cfg}
}

// Transform builds the export row for one shipment.
func (t *Transformer) Transform(s shipstation.ShipmentRecord) Row {
	warehouseID := s.WarehouseID.String()
	if warehouseID == "0" || warehouseID == "" {
		warehouseID = ""
	}
	storeID := s.StoreID.String()
	if storeID == "0" || storeID == "" {
		storeID = ""
	}

	warehouseName := t.refs.WarehouseName[warehouseID]
	storeName := t.refs.StoreName[storeID]

	clientID := t.refs.ResolveClient(refdata.RowContext{
		StoreID:       storeID,
		StoreName:     storeName,
		WarehouseID:   warehouseID,
		WarehouseName: warehouseName,
		OrderNumber:   s.OrderNumber,
	})

	cost := num(s.ShipmentCost)
	markup := t.refs.MarkupFor(warehouseID, t.cfg.GlobalMarkupPct)

	var l, w, h float64
	if s.Dimensions != nil {
		l = num(s.Dimensions.Length)
		w = num(s.Dimensions.Width)
		h = num(s.Dimensions.Height)
	}

	var weight float64
	if s.Weight != nil {
		weight = num(s.Weight.Value)
	}

	shipToName := ""
	if s.ShipTo != nil {
		shipToName = s.ShipTo.Name
	}

	itemCount := 0
	for _, item := range s.Items {
		q := num(item.Quantity)
		itemCount += int(q)
	}

	return Row{
		CreateDate:     s.CreateDate,
		OrderNumber:    s.OrderNumber,
		OrderID:        s.OrderID.String(),
		ShipToName:     shipToName,
		TrackingNumber: s.TrackingNumber,
		Carrier:        NormalizeCarrier(s.Carrier),
		Service:        CleanService(s.ServiceCode),
		ShipDate:       s.ShipDate,
		StoreID:        storeID,
		BatchID:        s.BatchNumber,
		ShippingCost:   cost,
		WarehouseID:    warehouseID,
		WarehouseName:  warehouseName,
		BillingCost:    refdata.BillingCost(cost, markup),
		StoreName:      storeName,
		Voided:         yesNo(s.Voided),
		ShipmentID:     s.ShipmentID.String(),
		IsReturnLabel:  yesNo(s.IsReturnLabel),
		InsuranceCost:  num(s.InsuranceCost),
		ItemsCount:     itemCount,
		SourceType:     SourceShipments,
		WeightOz:       weight,
		PackageType:    s.PackageCode,
		Dimensions:     dimensionsString(l, w, h),
		CartonSize:     CartonSize(l, w, h, s.PackageCode, t.cfg.Cartons),
		ClientID:       clientID,
	}
}

// NormalizeCarrier maps a raw carrier string onto the fixed carrier
// set. Matching is by case-insensitive substring, USPS resellers first.
func NormalizeCarrier(carrier string) string {
	if carrier == "" {
		return "OTHER"
	}
	lower := strings.ToLower(carrier)
	switch {
	case strings.Contains(lower, "usps") || strings.Contains(lower, "stamps"):
		return "USPS"
	case strings.Contains(lower, "ups"):
		return "UPS"
	case strings.Contains(lower, "fedex"):
		return "FedEx"
	case strings.Contains(lower, "dhl"):
		return "DHL"
	default:
		return "OTHER"
	}
}

// CleanService turns a raw service code like "usps_first_class_mail"
// into "First Class Mail": the carrier prefix is dropped and each
// remaining word is title-cased.
func CleanService(serviceCode string) string {
	if serviceCode == "" {
		return ""
	}
	parts := strings.Split(serviceCode, "_")
	if len(parts) <= 1 {
		return ""
	}
	parts = parts[1:]
	for i, w := range parts {
		if w == "" {
			continue
		}
		parts[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(parts, " ")
}

// CartonSize classifies a package into a coarse size bucket.
// Poly mailers are always "PM". Otherwise all three dimensions must be
// non-zero (else "") and the volume is bucketed against the inclusive
// upper bounds; a double-wall ("DW") package type bumps the bucket one
// tier, XL staying XL.
func CartonSize(l, w, h float64, packageType string, th refdata.CartonThresholds) string {
	pkgLower := strings.ToLower(packageType)
	if strings.Contains(pkgLower, "poly mailer") || strings.Contains(pkgLower, "polymailer") {
		return "PM"
	}

	if l == 0 || w == 0 || h == 0 {
		return ""
	}

	volume := l * w * h
	var size string
	switch {
	case volume <= th.SMax:
		size = "S"
	case volume <= th.MMax:
		size = "M"
	case volume <= th.LMax:
		size = "L"
	default:
		size = "XL"
	}

	if strings.Contains(strings.ToUpper(packageType), "DW") {
		switch size {
		case "S":
			size = "M"
		case "M":
			size = "L"
		case "L":
			size = "XL"
		}
	}
	return size
}

// num coerces a JSON number to float64, treating missing or malformed
// input as 0.
func num(n json.Number) float64 {
	if n == "" {
		return 0
	}
	f, err := n.Float64()
	if err != nil {
		return 0
	}
	return f
}

func yesNo(b bool) string {
	if b {
		return "YES"
	}
	return "NO"
}

func dimensionsString(l, w, h float64) string {
	if l == 0 || w == 0 || h == 0 {
		return ""
	}
	return fmt.Sprintf("%sx%sx%s", formatNumber(l), formatNumber(w), formatNumber(h))
}
