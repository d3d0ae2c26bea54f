package shipstation

import "encoding/json"

// Shape names an expected response structure.
type Shape string

const (
	// ShapeShipments expects a JSON object with a "shipments" array.
	ShapeShipments Shape = "shipments"
	// ShapeArray expects a bare JSON array (unpaged list responses).
	ShapeArray Shape = "array"
)

// Validation is the outcome of a shape check.
type Validation struct {
	Valid  bool
	Reason string
}

// ValidateShape checks a response against the declared shape. Callers
// run this before trusting a payload; a failed check marks the response
// as a permanent (non-retryable) anomaly.
func ValidateShape(r *Result, shape Shape) Validation {
	if r == nil || len(r.Body) == 0 {
		return Validation{Reason: "response body is empty"}
	}

	switch shape {
	case ShapeShipments:
		if r.Data == nil {
			return Validation{Reason: "response is not a JSON object"}
		}
		raw, ok := r.Data["shipments"]
		if !ok {
			return Validation{Reason: "missing shipments property"}
		}
		var arr []json.RawMessage
		if err := json.Unmarshal(raw, &arr); err != nil {
			return Validation{Reason: "shipments is not an array"}
		}
		return Validation{Valid: true}

	case ShapeArray:
		var arr []json.RawMessage
		if err := json.Unmarshal(r.Body, &arr); err != nil {
			return Validation{Reason: "response is not an array"}
		}
		return Validation{Valid: true}

	default:
		return Validation{Reason: "unknown expected shape: " + string(shape)}
	}
}
