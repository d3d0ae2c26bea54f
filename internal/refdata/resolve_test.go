package refdata

import "testing"

func testRefs() *Refs {
	return &Refs{
		WarehouseClient: map[string]string{"77": "WHC"},
		WarehouseName:   map[string]string{"77": "Central DC", "78": "[QRS] East DC"},
		ClientName:      map[string]string{},
		StoreName:       map[string]string{},
		StoreClient:     map[string]string{"10": "XYZ"},
		WarehouseMarkup: map[string]string{},
	}
}

func TestResolveClient_ExplicitStoreMappingWins(t *testing.T) {
	refs := testRefs()
	rc := RowContext{
		StoreID:   "10",
		StoreName: "[ABC] My Store", // tag present, mapping must still win
	}
	if got := refs.ResolveClient(rc); got != "XYZ" {
		t.Errorf("explicit mapping should win over bracket tag, got %q", got)
	}
}

func TestResolveClient_BracketTagFromStoreName(t *testing.T) {
	refs := testRefs()
	rc := RowContext{
		StoreID:   "99", // no explicit mapping
		StoreName: "[ABC] My Store",
	}
	if got := refs.ResolveClient(rc); got != "ABC" {
		t.Errorf("expected ABC from bracket tag, got %q", got)
	}
}

func TestResolveClient_HouseBrandSkipsStore(t *testing.T) {
	refs := testRefs()
	rc := RowContext{
		StoreID:     "10", // mapping exists but store is house brand
		StoreName:   "MetsCube Direct",
		WarehouseID: "77",
	}
	if got := refs.ResolveClient(rc); got != "WHC" {
		t.Errorf("house brand store must resolve via warehouse, got %q", got)
	}
}

func TestResolveClient_WarehouseNameTag(t *testing.T) {
	refs := testRefs()
	rc := RowContext{
		StoreName:     "Some Store",
		WarehouseID:   "78",
		WarehouseName: "[QRS] East DC",
	}
	if got := refs.ResolveClient(rc); got != "QRS" {
		t.Errorf("expected QRS from warehouse name tag, got %q", got)
	}
}

func TestResolveClient_OrderNumberPrefixOnlyForHouseBrand(t *testing.T) {
	refs := testRefs()

	house := RowContext{
		StoreName:   "metscube outlet",
		OrderNumber: "abc-10045",
	}
	if got := refs.ResolveClient(house); got != "ABC" {
		t.Errorf("house brand order prefix should resolve, got %q", got)
	}

	external := RowContext{
		StoreName:   "Plain Store",
		OrderNumber: "ABC-10045",
	}
	if got := refs.ResolveClient(external); got != ClientUnknown {
		t.Errorf("order prefix must not apply to external stores, got %q", got)
	}
}

func TestResolveClient_Unknown(t *testing.T) {
	refs := testRefs()
	rc := RowContext{StoreName: "Nothing Matches", OrderNumber: "1000234"}
	if got := refs.ResolveClient(rc); got != ClientUnknown {
		t.Errorf("expected %s, got %q", ClientUnknown, got)
	}
}

func TestExtractClientTag(t *testing.T) {
	cases := []struct {
		name string
		want string
	}{
		{"[ABC] Storefront", "ABC"},
		{"[AB] Short", ""},
		{"[ABCD] Long", ""},
		{"Store [ABC]", ""},
		{"[abc] lower", ""},
		{"", ""},
	}
	for _, c := range cases {
		if got := ExtractClientTag(c.name); got != c.want {
			t.Errorf("ExtractClientTag(%q) = %q, want %q", c.name, got, c.want)
		}
	}
}

func TestExtractClientFromOrderNumber(t *testing.T) {
	cases := []struct {
		order string
		want  string
	}{
		{"ABC-1001", "ABC"},
		{"abc_1001", "ABC"},
		{"XYZ 42", "XYZ"},
		{"ABCD-1", ""},
		{"AB-1", ""},
		{"1001", ""},
		{"", ""},
	}
	for _, c := range cases {
		if got := ExtractClientFromOrderNumber(c.order); got != c.want {
			t.Errorf("ExtractClientFromOrderNumber(%q) = %q, want %q", c.order, got, c.want)
		}
	}
}

func TestMarkupFor(t *testing.T) {
	refs := testRefs()
	refs.WarehouseMarkup["77"] = "12.5"
	refs.WarehouseMarkup["78"] = "default"
	refs.WarehouseMarkup["79"] = ""
	refs.WarehouseMarkup["80"] = "DEFAULT"
	refs.WarehouseMarkup["81"] = "not-a-number"

	global := 7.0
	cases := []struct {
		warehouse string
		want      float64
	}{
		{"77", 12.5},
		{"78", global},
		{"79", global},
		{"80", global},
		{"81", global},
		{"missing", global},
	}
	for _, c := range cases {
		if got := refs.MarkupFor(c.warehouse, global); got != c.want {
			t.Errorf("MarkupFor(%q) = %v, want %v", c.warehouse, got, c.want)
		}
	}
}

func TestBillingCost(t *testing.T) {
	if got := BillingCost(0, 25); got != 0 {
		t.Errorf("free shipment must stay free, got %v", got)
	}
	if got := BillingCost(10, 25); got != 12.5 {
		t.Errorf("BillingCost(10, 25) = %v, want 12.5", got)
	}
	if got := BillingCost(10, 0); got != 10 {
		t.Errorf("zero markup should return cost unchanged, got %v", got)
	}
}

func TestCartonThresholds_Valid(t *testing.T) {
	if !DefaultCartonThresholds().Valid() {
		t.Error("default thresholds must be valid")
	}
	bad := CartonThresholds{SMax: 1000, MMax: 350, LMax: 3500, XLMax: 999999}
	if bad.Valid() {
		t.Error("non-monotonic thresholds must be invalid")
	}
	zero := CartonThresholds{}
	if zero.Valid() {
		t.Error("zero thresholds must be invalid")
	}
}
