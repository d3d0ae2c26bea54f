package shipstation

import "encoding/json"

// ShipmentRecord is one shipment as returned by the ShipStation API.
// Fields the API sometimes omits or returns as the wrong type are kept
// loose and coerced at transform time.
type ShipmentRecord struct {
	ShipmentID     json.Number `json:"shipmentId"`
	OrderID        json.Number `json:"orderId"`
	OrderNumber    string      `json:"orderNumber"`
	CreateDate     string      `json:"createDate"`
	ShipDate       string      `json:"shipDate"`
	TrackingNumber string      `json:"trackingNumber"`
	Carrier        string      `json:"carrierCode"`
	ServiceCode    string      `json:"serviceCode"`
	WarehouseID    json.Number `json:"warehouseId"`
	StoreID        json.Number `json:"storeId"`
	BatchNumber    string      `json:"batchNumber"`
	ShipmentCost   json.Number `json:"shipmentCost"`
	InsuranceCost  json.Number `json:"insuranceCost"`
	Voided         bool        `json:"voided"`
	IsReturnLabel  bool        `json:"isReturnLabel"`

	ShipTo *ShipTo `json:"shipTo"`
	Weight *Weight `json:"weight"`

	Dimensions *Dimensions `json:"dimensions"`

	PackageCode string         `json:"packageCode"`
	Items       []ShipmentItem `json:"shipmentItems"`
}

// ShipTo is the destination block of a shipment.
type ShipTo struct {
	Name string `json:"name"`
}

// Weight carries a shipment weight with its unit.
type Weight struct {
	Value json.Number `json:"value"`
	Units string      `json:"units"`
}

// Dimensions are the declared package dimensions in inches.
type Dimensions struct {
	Length json.Number `json:"length"`
	Width  json.Number `json:"width"`
	Height json.Number `json:"height"`
}

// ShipmentItem is one line item on a shipment.
type ShipmentItem struct {
	SKU      string      `json:"sku"`
	Quantity json.Number `json:"quantity"`
}

// ShipmentsPage is one page of the paginated shipments listing.
type ShipmentsPage struct {
	Shipments []ShipmentRecord `json:"shipments"`
	Total     int              `json:"total"`
	Page      int              `json:"page"`
	Pages     int              `json:"pages"`
}
