package models

import "time"

// CourierPosition is the courier-side position report published upstream
// while a delivery is in transit. The backend folds these into the
// tracking snapshots it broadcasts to subscribers.
type CourierPosition struct {
	OrderID   string    `json:"order_id"`
	Location  GeoPoint  `json:"location"`
	Accuracy  float64   `json:"accuracy,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
