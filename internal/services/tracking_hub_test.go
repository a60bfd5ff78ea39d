package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"googlemaps.github.io/maps"

	"github.com/swiftcart/delivery-tracker/internal/models"
	"github.com/swiftcart/delivery-tracker/pkg/orderapi"
)

// mockMQTTClient is a mock implementation of the mqtt.Client interface.
type mockMQTTClient struct {
	mock.Mock
}

func (m *mockMQTTClient) Connect() error {
	return m.Called().Error(0)
}

func (m *mockMQTTClient) Publish(topic string, qos byte, retained bool, payload interface{}) error {
	return m.Called(topic, qos, retained, payload).Error(0)
}

func (m *mockMQTTClient) Subscribe(topic string, qos byte, callback pahomqtt.MessageHandler) error {
	return m.Called(topic, qos, callback).Error(0)
}

func (m *mockMQTTClient) Unsubscribe(topics ...string) error {
	args := make([]interface{}, len(topics))
	for i, t := range topics {
		args[i] = t
	}
	return m.Called(args...).Error(0)
}

func (m *mockMQTTClient) Disconnect(quiesce uint) {
	m.Called(quiesce)
}

func (m *mockMQTTClient) IsConnected() bool {
	return m.Called().Bool(0)
}

// mockOrderAPI is a mock implementation of the orderapi.Client interface.
type mockOrderAPI struct {
	mock.Mock
}

func (m *mockOrderAPI) FetchTracking(ctx context.Context, orderID string) (*models.OrderTrackingSnapshot, error) {
	args := m.Called(ctx, orderID)
	var snapshot *models.OrderTrackingSnapshot
	if v := args.Get(0); v != nil {
		snapshot = v.(*models.OrderTrackingSnapshot)
	}
	return snapshot, args.Error(1)
}

// fakeMessage implements the paho Message interface for dispatch tests.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (f *fakeMessage) Duplicate() bool   { return false }
func (f *fakeMessage) Qos() byte         { return 1 }
func (f *fakeMessage) Retained() bool    { return false }
func (f *fakeMessage) Topic() string     { return f.topic }
func (f *fakeMessage) MessageID() uint16 { return 0 }
func (f *fakeMessage) Payload() []byte   { return f.payload }
func (f *fakeMessage) Ack()              {}

func newTestHub(mqttClient *mockMQTTClient, api *mockOrderAPI, routeAPI *mockRouteAPI) *TrackingHub {
	geo := NewGeoRouteService(routeAPI, zerolog.Nop())
	return NewTrackingHub("orders/tracking", 1, mqttClient, api, geo, zerolog.Nop())
}

func pushUpdate(t *testing.T, hub *TrackingHub, snapshot models.OrderTrackingSnapshot) {
	t.Helper()
	payload, err := json.Marshal(snapshot)
	assert.NoError(t, err)
	hub.handleUpdate(nil, &fakeMessage{topic: "orders/tracking/" + snapshot.ID, payload: payload})
}

func TestSubscribe_ListenerIsolation(t *testing.T) {
	mc := new(mockMQTTClient)
	mc.On("Connect").Return(nil).Once()
	mc.On("Subscribe", "orders/tracking/order-x", byte(1), mock.Anything).Return(nil)
	mc.On("Subscribe", "orders/tracking/order-y", byte(1), mock.Anything).Return(nil)

	hub := newTestHub(mc, new(mockOrderAPI), nil)

	var gotA, gotB int
	_, err := hub.Subscribe("order-x", func(models.OrderTrackingSnapshot) { gotA++ })
	assert.NoError(t, err)
	_, err = hub.Subscribe("order-y", func(models.OrderTrackingSnapshot) { gotB++ })
	assert.NoError(t, err)

	pushUpdate(t, hub, models.OrderTrackingSnapshot{ID: "order-x", Status: models.StatusInTransit})

	assert.Equal(t, 1, gotA)
	assert.Equal(t, 0, gotB)
	mc.AssertExpectations(t)
}

func TestSubscribe_ConnectsExactlyOnce(t *testing.T) {
	mc := new(mockMQTTClient)
	mc.On("Connect").Return(nil).Once()
	mc.On("Subscribe", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	hub := newTestHub(mc, new(mockOrderAPI), nil)

	_, err := hub.Subscribe("order-x", func(models.OrderTrackingSnapshot) {})
	assert.NoError(t, err)
	_, err = hub.Subscribe("order-y", func(models.OrderTrackingSnapshot) {})
	assert.NoError(t, err)

	mc.AssertNumberOfCalls(t, "Connect", 1)
}

func TestSubscribe_ConnectFailure(t *testing.T) {
	mc := new(mockMQTTClient)
	mc.On("Connect").Return(errors.New("broker unreachable"))

	hub := newTestHub(mc, new(mockOrderAPI), nil)

	_, err := hub.Subscribe("order-x", func(models.OrderTrackingSnapshot) {})

	assert.Error(t, err)
	mc.AssertNotCalled(t, "Subscribe", mock.Anything, mock.Anything, mock.Anything)
}

func TestUnsubscribe_LeavesRoomWhenLastListenerGone(t *testing.T) {
	mc := new(mockMQTTClient)
	mc.On("Connect").Return(nil).Once()
	mc.On("Subscribe", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	mc.On("Unsubscribe", "orders/tracking/order-x").Return(nil)

	hub := newTestHub(mc, new(mockOrderAPI), nil)

	got := 0
	unsubscribe, err := hub.Subscribe("order-x", func(models.OrderTrackingSnapshot) { got++ })
	assert.NoError(t, err)

	unsubscribe()
	pushUpdate(t, hub, models.OrderTrackingSnapshot{ID: "order-x"})

	assert.Equal(t, 0, got)
	mc.AssertNumberOfCalls(t, "Unsubscribe", 1)
}

func TestUnsubscribe_SecondCallIsNoOp(t *testing.T) {
	mc := new(mockMQTTClient)
	mc.On("Connect").Return(nil).Once()
	mc.On("Subscribe", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	mc.On("Unsubscribe", "orders/tracking/order-x").Return(nil)

	hub := newTestHub(mc, new(mockOrderAPI), nil)

	unsubscribe, err := hub.Subscribe("order-x", func(models.OrderTrackingSnapshot) {})
	assert.NoError(t, err)

	unsubscribe()
	assert.NotPanics(t, unsubscribe)

	mc.AssertNumberOfCalls(t, "Unsubscribe", 1)
}

func TestUnsubscribe_RoomKeptWhileListenersRemain(t *testing.T) {
	mc := new(mockMQTTClient)
	mc.On("Connect").Return(nil).Once()
	mc.On("Subscribe", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	hub := newTestHub(mc, new(mockOrderAPI), nil)

	unsubA, err := hub.Subscribe("order-x", func(models.OrderTrackingSnapshot) {})
	assert.NoError(t, err)
	gotB := 0
	_, err = hub.Subscribe("order-x", func(models.OrderTrackingSnapshot) { gotB++ })
	assert.NoError(t, err)

	unsubA()
	pushUpdate(t, hub, models.OrderTrackingSnapshot{ID: "order-x"})

	assert.Equal(t, 1, gotB)
	mc.AssertNotCalled(t, "Unsubscribe", mock.Anything)
}

func TestDispatch_SelfUnsubscribeDoesNotBreakFanout(t *testing.T) {
	mc := new(mockMQTTClient)
	mc.On("Connect").Return(nil).Once()
	mc.On("Subscribe", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	hub := newTestHub(mc, new(mockOrderAPI), nil)

	var unsubA func()
	gotA, gotB := 0, 0
	unsubA, err := hub.Subscribe("order-x", func(models.OrderTrackingSnapshot) {
		gotA++
		unsubA()
	})
	assert.NoError(t, err)
	_, err = hub.Subscribe("order-x", func(models.OrderTrackingSnapshot) { gotB++ })
	assert.NoError(t, err)

	assert.NotPanics(t, func() {
		pushUpdate(t, hub, models.OrderTrackingSnapshot{ID: "order-x"})
	})
	assert.Equal(t, 1, gotA)
	assert.Equal(t, 1, gotB)

	// The self-removed listener stays gone on the next event.
	pushUpdate(t, hub, models.OrderTrackingSnapshot{ID: "order-x"})
	assert.Equal(t, 1, gotA)
	assert.Equal(t, 2, gotB)
}

func TestDispatch_EventWithoutListenersIsDropped(t *testing.T) {
	hub := newTestHub(new(mockMQTTClient), new(mockOrderAPI), nil)

	assert.NotPanics(t, func() {
		pushUpdate(t, hub, models.OrderTrackingSnapshot{ID: "order-unknown"})
	})
}

func TestDispatch_MalformedPayloadIsDropped(t *testing.T) {
	mc := new(mockMQTTClient)
	mc.On("Connect").Return(nil).Once()
	mc.On("Subscribe", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	hub := newTestHub(mc, new(mockOrderAPI), nil)

	got := 0
	_, err := hub.Subscribe("order-x", func(models.OrderTrackingSnapshot) { got++ })
	assert.NoError(t, err)

	assert.NotPanics(t, func() {
		hub.handleUpdate(nil, &fakeMessage{topic: "orders/tracking/order-x", payload: []byte("{not json")})
		hub.handleUpdate(nil, &fakeMessage{topic: "orders/tracking/order-x", payload: []byte(`{"orderNumber":"42"}`)})
	})
	assert.Equal(t, 0, got)
}

func TestDispatch_DeliveredInArrivalOrder(t *testing.T) {
	mc := new(mockMQTTClient)
	mc.On("Connect").Return(nil).Once()
	mc.On("Subscribe", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	hub := newTestHub(mc, new(mockOrderAPI), nil)

	var statuses []models.TrackingStatus
	_, err := hub.Subscribe("order-x", func(s models.OrderTrackingSnapshot) {
		statuses = append(statuses, s.Status)
	})
	assert.NoError(t, err)

	pushUpdate(t, hub, models.OrderTrackingSnapshot{ID: "order-x", Status: models.StatusPreparing})
	pushUpdate(t, hub, models.OrderTrackingSnapshot{ID: "order-x", Status: models.StatusInTransit})
	pushUpdate(t, hub, models.OrderTrackingSnapshot{ID: "order-x", Status: models.StatusDelivered})

	assert.Equal(t, []models.TrackingStatus{
		models.StatusPreparing,
		models.StatusInTransit,
		models.StatusDelivered,
	}, statuses)
}

func TestFetchSnapshot_PropagatesFetchError(t *testing.T) {
	api := new(mockOrderAPI)
	fetchErr := &orderapi.FetchError{OrderID: "order-x", Err: errors.New("status 502")}
	api.On("FetchTracking", mock.Anything, "order-x").Return(nil, fetchErr).Once()

	hub := newTestHub(new(mockMQTTClient), api, nil)

	_, err := hub.FetchSnapshot(context.Background(), "order-x")

	var fe *orderapi.FetchError
	assert.ErrorAs(t, err, &fe)
	assert.Equal(t, "order-x", fe.OrderID)
	api.AssertNumberOfCalls(t, "FetchTracking", 1)
}

func TestResolveRoute_DecodesEncodedRoute(t *testing.T) {
	hub := newTestHub(new(mockMQTTClient), new(mockOrderAPI), nil)

	snapshot := &models.OrderTrackingSnapshot{
		ID: "order-x",
		Tracking: &models.TrackingInfo{
			EncodedRoute:   knownEncodedRoute,
			DistanceMeters: 1500,
			ETA:            "5:12 PM",
		},
	}

	details := hub.ResolveRoute(context.Background(), snapshot)

	assert.Len(t, details.Route, 3)
	assert.Equal(t, "1.5 km", details.Distance)
	assert.Equal(t, "5:12 PM", details.ETA)
}

func TestResolveRoute_BackfillsFromDirections(t *testing.T) {
	routeAPI := new(mockRouteAPI)
	routeAPI.On("Directions", mock.Anything, mock.Anything).Return([]maps.Route{
		{
			OverviewPolyline: maps.Polyline{Points: knownEncodedRoute},
			Legs: []*maps.Leg{{
				Distance: maps.Distance{Meters: 1500},
				Duration: time.Hour,
			}},
		},
	}, nil, nil).Once()

	hub := newTestHub(new(mockMQTTClient), new(mockOrderAPI), routeAPI)
	hub.geo.now = func() time.Time {
		return time.Date(2024, 1, 1, 10, 0, 0, 0, time.Local)
	}

	current := models.NewGeoPoint(models.Coordinate{Latitude: 12.93, Longitude: 77.61})
	dest := models.NewGeoPoint(models.Coordinate{Latitude: 12.95, Longitude: 77.64})
	snapshot := &models.OrderTrackingSnapshot{
		ID:          "order-x",
		Tracking:    &models.TrackingInfo{CurrentLocation: &current},
		Destination: models.Destination{Location: &dest},
	}

	details := hub.ResolveRoute(context.Background(), snapshot)

	assert.Len(t, details.Route, 3)
	assert.Equal(t, "1.5 km", details.Distance)
	assert.Equal(t, "11:00 AM", details.ETA)
	routeAPI.AssertExpectations(t)
}

func TestResolveRoute_NoRouteDataIsNormal(t *testing.T) {
	hub := newTestHub(new(mockMQTTClient), new(mockOrderAPI), nil)

	details := hub.ResolveRoute(context.Background(), &models.OrderTrackingSnapshot{
		ID:       "order-x",
		Tracking: &models.TrackingInfo{Status: models.StatusPreparing},
	})

	assert.Empty(t, details.Route)
	assert.Empty(t, details.Distance)
	assert.Empty(t, details.ETA)
}

func TestResolveRoute_DirectionsFailureDegrades(t *testing.T) {
	routeAPI := new(mockRouteAPI)
	routeAPI.On("Directions", mock.Anything, mock.Anything).Return(nil, nil, errors.New("quota exceeded")).Once()

	hub := newTestHub(new(mockMQTTClient), new(mockOrderAPI), routeAPI)

	current := models.NewGeoPoint(models.Coordinate{Latitude: 12.93, Longitude: 77.61})
	dest := models.NewGeoPoint(models.Coordinate{Latitude: 12.95, Longitude: 77.64})
	details := hub.ResolveRoute(context.Background(), &models.OrderTrackingSnapshot{
		ID:          "order-x",
		Tracking:    &models.TrackingInfo{CurrentLocation: &current},
		Destination: models.Destination{Location: &dest},
	})

	assert.Equal(t, models.RouteDetails{}, details)
}

func TestShutdown_LeavesRoomsAndDisconnects(t *testing.T) {
	mc := new(mockMQTTClient)
	mc.On("Connect").Return(nil).Once()
	mc.On("Subscribe", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	mc.On("Unsubscribe", "orders/tracking/order-x").Return(nil).Once()
	mc.On("Disconnect", uint(250)).Once()

	hub := newTestHub(mc, new(mockOrderAPI), nil)

	_, err := hub.Subscribe("order-x", func(models.OrderTrackingSnapshot) {})
	assert.NoError(t, err)

	hub.Shutdown()

	_, err = hub.Subscribe("order-y", func(models.OrderTrackingSnapshot) {})
	assert.ErrorIs(t, err, ErrHubClosed)
	mc.AssertExpectations(t)
}

func TestShutdown_BeforeInitializeIsNoOp(t *testing.T) {
	mc := new(mockMQTTClient)
	hub := newTestHub(mc, new(mockOrderAPI), nil)

	hub.Shutdown()

	mc.AssertNotCalled(t, "Disconnect", mock.Anything)
}
