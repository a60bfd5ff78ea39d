package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/swiftcart/delivery-tracker/internal/models"
	"github.com/swiftcart/delivery-tracker/pkg/mqtt"
	"github.com/swiftcart/delivery-tracker/pkg/orderapi"
)

// disconnectQuiesce is the milliseconds given to in-flight MQTT work
// during shutdown.
const disconnectQuiesce = 250

// ErrHubClosed is returned by operations on a hub after Shutdown.
var ErrHubClosed = errors.New("tracking hub is shut down")

// TrackingListener receives push snapshots for a single order.
type TrackingListener func(models.OrderTrackingSnapshot)

// trackingSubscription ties a listener to the id its unsubscribe closure
// removes it by. Listener functions are not comparable, ids are.
type trackingSubscription struct {
	id       string
	listener TrackingListener
}

// TrackingHub multiplexes any number of per-order tracking subscriptions
// over a single shared MQTT connection. The connection is opened lazily
// on the first subscribe and lives until Shutdown.
//
// Inbound updates are demultiplexed strictly by the payload's own order
// id; a listener registered for one order never sees another order's
// events regardless of topic wiring.
type TrackingHub struct {
	topicPrefix string
	qos         byte

	mqttClient mqtt.Client
	api        orderapi.Client
	geo        *GeoRouteService
	logger     zerolog.Logger

	mu          sync.Mutex
	initialized bool
	closed      bool
	listeners   map[string][]*trackingSubscription
}

// NewTrackingHub creates a new TrackingHub instance. The MQTT client
// must be initialized but not yet connected; the hub connects it on
// first use.
func NewTrackingHub(topicPrefix string, qos int, mqttClient mqtt.Client, api orderapi.Client,
	geo *GeoRouteService, logger zerolog.Logger) *TrackingHub {
	return &TrackingHub{
		topicPrefix: topicPrefix,
		qos:         byte(qos),
		mqttClient:  mqttClient,
		api:         api,
		geo:         geo,
		logger:      logger,
		listeners:   make(map[string][]*trackingSubscription),
	}
}

// Initialize opens the shared transport connection. It is idempotent and
// safe under concurrent Subscribe calls; the connection is opened at
// most once per hub.
func (h *TrackingHub) Initialize() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrHubClosed
	}
	if h.initialized {
		return nil
	}

	if err := h.mqttClient.Connect(); err != nil {
		return fmt.Errorf("open shared tracking connection: %w", err)
	}

	h.initialized = true
	h.logger.Info().Msg("Shared tracking connection established")
	return nil
}

// Subscribe registers a listener for an order's push updates, joining
// the order's room on the shared connection. The returned function
// removes the listener; when the order's last listener is removed the
// hub leaves the room so no server-side subscription leaks. Calling the
// returned function more than once is harmless.
func (h *TrackingHub) Subscribe(orderID string, listener TrackingListener) (func(), error) {
	if err := h.Initialize(); err != nil {
		return nil, err
	}

	// Redundant joins for the same order map onto the same topic and
	// are idempotent broker-side.
	if err := h.mqttClient.Subscribe(h.roomTopic(orderID), h.qos, h.handleUpdate); err != nil {
		return nil, fmt.Errorf("join tracking room for order %s: %w", orderID, err)
	}

	sub := &trackingSubscription{id: uuid.NewString(), listener: listener}

	h.mu.Lock()
	h.listeners[orderID] = append(h.listeners[orderID], sub)
	h.mu.Unlock()

	h.logger.Debug().Str("order_id", orderID).Msg("Tracking listener registered")

	var once sync.Once
	return func() {
		once.Do(func() {
			h.unsubscribe(orderID, sub.id)
		})
	}, nil
}

// unsubscribe removes one listener and leaves the order's room when the
// listener list empties. The replacement slice is built fresh so any
// dispatch iterating the old slice is unaffected.
func (h *TrackingHub) unsubscribe(orderID, subID string) {
	h.mu.Lock()
	subs, ok := h.listeners[orderID]
	if !ok {
		h.mu.Unlock()
		return
	}

	remaining := make([]*trackingSubscription, 0, len(subs))
	removed := false
	for _, s := range subs {
		if s.id == subID {
			removed = true
			continue
		}
		remaining = append(remaining, s)
	}
	if !removed {
		h.mu.Unlock()
		return
	}

	leave := len(remaining) == 0
	if leave {
		delete(h.listeners, orderID)
	} else {
		h.listeners[orderID] = remaining
	}
	h.mu.Unlock()

	if leave {
		if err := h.mqttClient.Unsubscribe(h.roomTopic(orderID)); err != nil {
			h.logger.Warn().Err(err).Str("order_id", orderID).Msg("Failed to leave tracking room")
		} else {
			h.logger.Debug().Str("order_id", orderID).Msg("Left tracking room")
		}
	}
}

// handleUpdate validates an inbound tracking update and fans it out to
// the listeners of the order named in the payload. The topic is not
// trusted for routing. Updates for orders without listeners are dropped
// silently; that race with a pending room leave is expected.
func (h *TrackingHub) handleUpdate(_ pahomqtt.Client, msg pahomqtt.Message) {
	var snapshot models.OrderTrackingSnapshot
	if err := json.Unmarshal(msg.Payload(), &snapshot); err != nil {
		h.logger.Warn().Err(err).Str("topic", msg.Topic()).Msg("Dropping malformed tracking update")
		return
	}
	if snapshot.ID == "" {
		h.logger.Warn().Str("topic", msg.Topic()).Msg("Dropping tracking update without an order id")
		return
	}
	if snapshot.Status != "" && !snapshot.Status.Known() {
		h.logger.Warn().Str("order_id", snapshot.ID).Str("status", string(snapshot.Status)).Msg("Tracking update carries unknown status")
	}

	h.mu.Lock()
	subs := h.listeners[snapshot.ID]
	h.mu.Unlock()

	// subs is a snapshot of the slice header; a listener unsubscribing
	// itself mid-dispatch replaces the stored slice and cannot disturb
	// this iteration.
	for _, s := range subs {
		s.listener(snapshot)
	}
}

// FetchSnapshot pulls the order's current tracking snapshot over HTTP.
// This is the initial/fallback path next to the push feed; failures come
// back as a typed fetch error and are never retried here.
func (h *TrackingHub) FetchSnapshot(ctx context.Context, orderID string) (*models.OrderTrackingSnapshot, error) {
	return h.api.FetchTracking(ctx, orderID)
}

// ResolveRoute derives render-ready route geometry, distance and ETA
// from a snapshot. The encoded route is preferred; when absent and both
// endpoints are known, directions are fetched to back-fill it. Route
// resolution is always best-effort: every failure degrades to an empty
// result and never reaches the caller's render path.
func (h *TrackingHub) ResolveRoute(ctx context.Context, snapshot *models.OrderTrackingSnapshot) models.RouteDetails {
	if snapshot == nil || snapshot.Tracking == nil {
		return models.RouteDetails{}
	}
	tracking := snapshot.Tracking

	if tracking.EncodedRoute != "" {
		route, err := h.geo.DecodePolyline(tracking.EncodedRoute)
		if err != nil {
			h.logger.Warn().Err(err).Str("order_id", snapshot.ID).Msg("Route decoded partially")
		}
		details := models.RouteDetails{Route: route, ETA: tracking.ETA}
		if tracking.DistanceMeters > 0 {
			details.Distance = FormatDistance(tracking.DistanceMeters)
		}
		return details
	}

	if tracking.CurrentLocation == nil || snapshot.Destination.Location == nil {
		// Tracking has not started yet; nothing to draw.
		return models.RouteDetails{}
	}

	routes, err := h.geo.Directions(ctx, tracking.CurrentLocation.Coordinate(), snapshot.Destination.Location.Coordinate())
	if err != nil {
		h.logger.Warn().Err(err).Str("order_id", snapshot.ID).Msg("Directions back-fill failed, rendering without a route")
		return models.RouteDetails{}
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return models.RouteDetails{}
	}

	leg := routes[0].Legs[0]
	route, err := h.geo.DecodePolyline(routes[0].OverviewPolyline.Points)
	if err != nil {
		h.logger.Warn().Err(err).Str("order_id", snapshot.ID).Msg("Directions polyline decoded partially")
	}

	return models.RouteDetails{
		Route:    route,
		Distance: FormatDistance(float64(leg.Distance.Meters)),
		ETA:      h.geo.FormatETA(leg.Duration),
	}
}

// Shutdown leaves every joined room and closes the shared connection.
// The hub cannot be reused afterwards; further subscribes fail with
// ErrHubClosed.
func (h *TrackingHub) Shutdown() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	wasInitialized := h.initialized

	topics := make([]string, 0, len(h.listeners))
	for orderID := range h.listeners {
		topics = append(topics, h.roomTopic(orderID))
	}
	h.listeners = make(map[string][]*trackingSubscription)
	h.mu.Unlock()

	if !wasInitialized {
		return
	}

	if len(topics) > 0 {
		if err := h.mqttClient.Unsubscribe(topics...); err != nil {
			h.logger.Warn().Err(err).Msg("Failed to leave tracking rooms during shutdown")
		}
	}
	h.mqttClient.Disconnect(disconnectQuiesce)
	h.logger.Info().Msg("Tracking hub shut down")
}

// roomTopic maps an order id onto its tracking room topic.
func (h *TrackingHub) roomTopic(orderID string) string {
	return h.topicPrefix + "/" + orderID
}
