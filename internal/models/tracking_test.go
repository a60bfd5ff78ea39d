package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGeoPoint_AxisOrder(t *testing.T) {
	point := NewGeoPoint(Coordinate{Latitude: 12.93, Longitude: 77.61})

	assert.Equal(t, "Point", point.Type)
	assert.Equal(t, 77.61, point.Coordinates[0])
	assert.Equal(t, 12.93, point.Coordinates[1])

	back := point.Coordinate()
	assert.Equal(t, 12.93, back.Latitude)
	assert.Equal(t, 77.61, back.Longitude)
}

func TestTrackingStatus(t *testing.T) {
	assert.True(t, StatusInTransit.Known())
	assert.True(t, StatusDelivered.Known())
	assert.False(t, TrackingStatus("lost_in_space").Known())

	assert.True(t, StatusDelivered.Terminal())
	assert.False(t, StatusInTransit.Terminal())
}

func TestOrderTrackingSnapshot_Unmarshal(t *testing.T) {
	payload := []byte(`{
		"id": "order-1",
		"orderNumber": "SC-1042",
		"status": "ready_for_pickup",
		"tracking": {
			"status": "ready_for_pickup",
			"eta": "4:45 PM",
			"distanceMeters": 850,
			"currentLocation": {"type": "Point", "coordinates": [77.61, 12.93]}
		},
		"destination": {}
	}`)

	var snapshot OrderTrackingSnapshot
	assert.NoError(t, json.Unmarshal(payload, &snapshot))

	assert.Equal(t, StatusReadyForPickup, snapshot.Status)
	assert.Equal(t, "4:45 PM", snapshot.Tracking.ETA)
	assert.Equal(t, 850.0, snapshot.Tracking.DistanceMeters)
	assert.NotNil(t, snapshot.Tracking.CurrentLocation)
	assert.Nil(t, snapshot.Destination.Location)
}
