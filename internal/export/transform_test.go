package export

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/metscube/shipsync/internal/refdata"
	"github.com/metscube/shipsync/internal/shipstation"
)

func thresholds() refdata.CartonThresholds {
	return refdata.DefaultCartonThresholds()
}

func TestNormalizeCarrier(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"usps", "USPS"},
		{"USPS First Class", "USPS"},
		{"stamps_com", "USPS"},
		{"ups", "UPS"},
		{"UPS Ground", "UPS"},
		{"fedex", "FedEx"},
		{"FedEx Home", "FedEx"},
		{"dhl_express", "DHL"},
		{"ontrac", "OTHER"},
		{"", "OTHER"},
	}
	for _, c := range cases {
		if got := NormalizeCarrier(c.in); got != c.want {
			t.Errorf("NormalizeCarrier(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestCleanService(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"usps_first_class_mail", "First Class Mail"},
		{"ups_ground", "Ground"},
		{"fedex_home_delivery", "Home Delivery"},
		{"ground", ""},
		{"", ""},
	}
	for _, c := range cases {
		if got := CleanService(c.in); got != c.want {
			t.Errorf("CleanService(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestCartonSize_Buckets(t *testing.T) {
	th := thresholds()
	cases := []struct {
		l, w, h float64
		pkg     string
		want    string
	}{
		{7, 5, 10, "", "S"},    // 350, boundary is inclusive
		{7, 5.1, 10, "", "M"},  // just past S_MAX
		{10, 10, 10, "", "M"},  // 1000 boundary
		{10, 10, 35, "", "L"},  // 3500 boundary
		{10, 10, 36, "", "XL"}, // past L_MAX
		{100, 100, 100, "", "XL"},
		{0, 5, 10, "", ""}, // missing dimension
		{7, 5, 0, "", ""},
	}
	for _, c := range cases {
		if got := CartonSize(c.l, c.w, c.h, c.pkg, th); got != c.want {
			t.Errorf("CartonSize(%v,%v,%v,%q) = %q, want %q", c.l, c.w, c.h, c.pkg, got, c.want)
		}
	}
}

func TestCartonSize_Monotonic(t *testing.T) {
	th := thresholds()
	order := map[string]int{"S": 0, "M": 1, "L": 2, "XL": 3}
	prev := 0
	for _, vol := range []float64{1, 350, 351, 1000, 1001, 3500, 3501, 100000} {
		got := CartonSize(vol, 1, 1, "", th)
		if order[got] < prev {
			t.Fatalf("classification regressed at volume %v: %q", vol, got)
		}
		prev = order[got]
	}
}

func TestCartonSize_DoubleWallBumpsOneTier(t *testing.T) {
	th := thresholds()
	cases := []struct {
		l, w, h float64
		want    string
	}{
		{7, 5, 10, "M"},       // S -> M
		{10, 10, 10, "L"},     // M -> L
		{10, 10, 35, "XL"},    // L -> XL
		{100, 100, 100, "XL"}, // XL stays XL
	}
	for _, c := range cases {
		if got := CartonSize(c.l, c.w, c.h, "Box DW", th); got != c.want {
			t.Errorf("DW CartonSize(%v,%v,%v) = %q, want %q", c.l, c.w, c.h, got, c.want)
		}
	}
}

func TestCartonSize_PolyMailer(t *testing.T) {
	th := thresholds()
	for _, pkg := range []string{"Poly Mailer", "poly mailer #4", "PolyMailer", "POLYMAILER"} {
		if got := CartonSize(100, 100, 100, pkg, th); got != "PM" {
			t.Errorf("CartonSize(..., %q) = %q, want PM", pkg, got)
		}
		// PM applies even with zero volume.
		if got := CartonSize(0, 0, 0, pkg, th); got != "PM" {
			t.Errorf("CartonSize(0,0,0, %q) = %q, want PM", pkg, got)
		}
	}
}

func sampleShipment() shipstation.ShipmentRecord {
	return shipstation.ShipmentRecord{
		ShipmentID:     json.Number("123456"),
		OrderID:        json.Number("998877"),
		OrderNumber:    "ABC-10045",
		CreateDate:     "2026-01-15T08:30:00",
		ShipDate:       "2026-01-15",
		TrackingNumber: "9400100000000000000000",
		Carrier:        "stamps_com",
		ServiceCode:    "usps_priority_mail",
		WarehouseID:    json.Number("77"),
		StoreID:        json.Number("10"),
		ShipmentCost:   json.Number("10"),
		InsuranceCost:  json.Number("1.25"),
		Voided:         false,
		ShipTo:         &shipstation.ShipTo{Name: "Pat Doe"},
		Weight:         &shipstation.Weight{Value: json.Number("12.5"), Units: "ounces"},
		Dimensions: &shipstation.Dimensions{
			Length: json.Number("7"),
			Width:  json.Number("5"),
			Height: json.Number("10"),
		},
		PackageCode: "package",
		Items: []shipstation.ShipmentItem{
			{SKU: "SKU-1", Quantity: json.Number("2")},
			{SKU: "SKU-2", Quantity: json.Number("1")},
		},
	}
}

func sampleRefs() *refdata.Refs {
	return &refdata.Refs{
		WarehouseClient: map[string]string{"77": "ABC"},
		WarehouseName:   map[string]string{"77": "[ABC] Main DC"},
		ClientName:      map[string]string{"ABC": "[ABC] Main DC"},
		StoreName:       map[string]string{"10": "[ABC] Storefront"},
		StoreClient:     map[string]string{"10": "ABC"},
		WarehouseMarkup: map[string]string{"77": "20"},
	}
}

func TestTransform(t *testing.T) {
	tr := NewTransformer(sampleRefs(), refdata.RunConfig{
		GlobalMarkupPct: 10,
		Cartons:         thresholds(),
	})

	row := tr.Transform(sampleShipment())

	if row.Carrier != "USPS" {
		t.Errorf("carrier = %q, want USPS", row.Carrier)
	}
	if row.Service != "Priority Mail" {
		t.Errorf("service = %q, want Priority Mail", row.Service)
	}
	if row.ClientID != "ABC" {
		t.Errorf("client = %q, want ABC", row.ClientID)
	}
	// Warehouse 77 has a 20% override, not the 10% global markup.
	if row.BillingCost != 12 {
		t.Errorf("billing cost = %v, want 12", row.BillingCost)
	}
	if row.CartonSize != "S" {
		t.Errorf("carton size = %q, want S", row.CartonSize)
	}
	if row.Dimensions != "7x5x10" {
		t.Errorf("dimensions = %q, want 7x5x10", row.Dimensions)
	}
	if row.ItemsCount != 3 {
		t.Errorf("items count = %d, want 3", row.ItemsCount)
	}
	if row.Voided != "NO" {
		t.Errorf("voided = %q, want NO", row.Voided)
	}
	if row.WarehouseName != "[ABC] Main DC" {
		t.Errorf("warehouse name = %q", row.WarehouseName)
	}
}

func TestTransform_Deterministic(t *testing.T) {
	tr := NewTransformer(sampleRefs(), refdata.RunConfig{
		GlobalMarkupPct: 10,
		Cartons:         thresholds(),
	})
	s := sampleShipment()

	a := tr.Transform(s).Values()
	b := tr.Transform(s).Values()
	if !reflect.DeepEqual(a, b) {
		t.Errorf("transform is not deterministic:\n%v\n%v", a, b)
	}
	if len(a) != ColumnCount {
		t.Errorf("row width = %d, want %d", len(a), ColumnCount)
	}
}

func TestTransform_ZeroCostStaysZero(t *testing.T) {
	tr := NewTransformer(sampleRefs(), refdata.RunConfig{
		GlobalMarkupPct: 50,
		Cartons:         thresholds(),
	})
	s := sampleShipment()
	s.ShipmentCost = json.Number("0")

	row := tr.Transform(s)
	if row.BillingCost != 0 {
		t.Errorf("billing cost for free shipment = %v, want 0", row.BillingCost)
	}
}

func TestTransform_MalformedNumbersCoerceToZero(t *testing.T) {
	tr := NewTransformer(sampleRefs(), refdata.RunConfig{Cartons: thresholds()})
	s := sampleShipment()
	s.ShipmentCost = json.Number("not-a-number")
	s.Dimensions = &shipstation.Dimensions{
		Length: json.Number("x"),
		Width:  json.Number("5"),
		Height: json.Number("10"),
	}
	s.Weight = nil
	s.ShipTo = nil

	row := tr.Transform(s)
	if row.ShippingCost != 0 {
		t.Errorf("malformed cost = %v, want 0", row.ShippingCost)
	}
	if row.BillingCost != 0 {
		t.Errorf("billing cost = %v, want 0", row.BillingCost)
	}
	if row.CartonSize != "" {
		t.Errorf("carton size = %q, want empty for missing dimension", row.CartonSize)
	}
	if row.Dimensions != "" {
		t.Errorf("dimensions = %q, want empty", row.Dimensions)
	}
	if row.WeightOz != 0 {
		t.Errorf("weight = %v, want 0", row.WeightOz)
	}
}

func TestTransform_VoidedShipment(t *testing.T) {
	tr := NewTransformer(sampleRefs(), refdata.RunConfig{Cartons: thresholds()})
	s := sampleShipment()
	s.Voided = true

	row := tr.Transform(s)
	if row.Voided != "YES" {
		t.Errorf("voided = %q, want YES", row.Voided)
	}
	if !row.IsVoided() {
		t.Error("IsVoided() must be true")
	}
	if row.Values()[VoidedColumn] != "YES" {
		t.Errorf("voided column = %q, want YES", row.Values()[VoidedColumn])
	}
}
