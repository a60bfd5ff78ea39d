package models

import (
	"math"
	"time"
)

// TrackingStatus is the delivery progress state reported by the backend.
// Transitions are owned by the backend; this subsystem renders whatever
// the latest push or pull payload states.
type TrackingStatus string

const (
	StatusPreparing      TrackingStatus = "preparing"
	StatusReadyForPickup TrackingStatus = "ready_for_pickup"
	StatusInTransit      TrackingStatus = "in_transit"
	StatusDelivered      TrackingStatus = "delivered"
)

// Known reports whether the status is one of the recognized states.
func (s TrackingStatus) Known() bool {
	switch s {
	case StatusPreparing, StatusReadyForPickup, StatusInTransit, StatusDelivered:
		return true
	}
	return false
}

// Terminal reports whether the status ends the delivery lifecycle.
func (s TrackingStatus) Terminal() bool {
	return s == StatusDelivered
}

// Coordinate is a geographic point in (latitude, longitude) order.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid reports whether both axes are finite and within range
// (latitude in [-90, 90], longitude in [-180, 180]).
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Latitude) || math.IsInf(c.Latitude, 0) {
		return false
	}
	if math.IsNaN(c.Longitude) || math.IsInf(c.Longitude, 0) {
		return false
	}
	return c.Latitude >= -90 && c.Latitude <= 90 &&
		c.Longitude >= -180 && c.Longitude <= 180
}

// GeoPoint is the backend's GeoJSON point representation. Coordinates
// are stored in (longitude, latitude) order per the GeoJSON convention;
// use Coordinate() instead of indexing the array directly.
type GeoPoint struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

// NewGeoPoint builds a GeoJSON point from a Coordinate.
func NewGeoPoint(c Coordinate) GeoPoint {
	return GeoPoint{
		Type:        "Point",
		Coordinates: [2]float64{c.Longitude, c.Latitude},
	}
}

// Coordinate converts the (lon, lat) pair into a Coordinate.
func (p GeoPoint) Coordinate() Coordinate {
	return Coordinate{
		Latitude:  p.Coordinates[1],
		Longitude: p.Coordinates[0],
	}
}

// TrackingInfo carries the live delivery data attached to an order
// snapshot. Every field is optional; absence means the backend has not
// produced that piece of data yet.
type TrackingInfo struct {
	CurrentLocation *GeoPoint      `json:"currentLocation,omitempty"`
	Status          TrackingStatus `json:"status,omitempty"`
	ETA             string         `json:"eta,omitempty"`
	DistanceMeters  float64        `json:"distanceMeters,omitempty"`
	EncodedRoute    string         `json:"encodedRoute,omitempty"`
	LastUpdated     *time.Time     `json:"lastUpdated,omitempty"`
}

// Destination is the delivery endpoint of an order.
type Destination struct {
	Location *GeoPoint `json:"location,omitempty"`
}

// OrderTrackingSnapshot is the backend-owned view of an order's delivery
// progress, received over both the push and pull paths. It is treated as
// immutable input and never mutated or re-sent.
type OrderTrackingSnapshot struct {
	ID          string         `json:"id"`
	OrderNumber string         `json:"orderNumber"`
	Status      TrackingStatus `json:"status"`
	Tracking    *TrackingInfo  `json:"tracking,omitempty"`
	Destination Destination    `json:"destination"`
}

// RouteDetails is the render-ready result of route resolution: decoded
// geometry plus humanized distance and ETA. Empty fields mean the data
// is not available yet, which is a normal state, not an error.
type RouteDetails struct {
	Route    []Coordinate
	Distance string
	ETA      string
}
