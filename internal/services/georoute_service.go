package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"googlemaps.github.io/maps"

	"github.com/swiftcart/delivery-tracker/internal/models"
)

// maxMatrixDestinations is the provider's per-request destination limit.
const maxMatrixDestinations = 25

// polylineScale is the fixed-point scale of the polyline codec.
const polylineScale = 1e5

// ErrTruncatedPolyline reports that an encoded polyline ended in the
// middle of a 5-bit group. The decoded prefix is still returned; route
// geometry is decorative and a partial route beats no route.
var ErrTruncatedPolyline = errors.New("polyline truncated mid-group")

// ErrNoGeocodeResults reports that the geocoder matched nothing for the
// given address, as opposed to the request itself failing.
var ErrNoGeocodeResults = errors.New("no geocoding results")

// RouteAPI is the subset of the Google Maps client used by GeoRouteService.
type RouteAPI interface {
	Directions(ctx context.Context, r *maps.DirectionsRequest) ([]maps.Route, []maps.GeocodedWaypoint, error)
	DistanceMatrix(ctx context.Context, r *maps.DistanceMatrixRequest) (*maps.DistanceMatrixResponse, error)
	Geocode(ctx context.Context, r *maps.GeocodingRequest) ([]maps.GeocodingResult, error)
}

// GeoRouteService provides polyline decoding, coordinate validation and
// distance/ETA humanization on top of the directions provider.
type GeoRouteService struct {
	api    RouteAPI
	logger zerolog.Logger
	now    func() time.Time
}

// NewGeoRouteService creates a new GeoRouteService instance.
func NewGeoRouteService(api RouteAPI, logger zerolog.Logger) *GeoRouteService {
	return &GeoRouteService{
		api:    api,
		logger: logger,
		now:    time.Now,
	}
}

// DecodePolyline decodes the standard signed-delta polyline encoding
// into a coordinate sequence. Decoding is best-effort: a truncated
// trailing group yields the decoded prefix together with
// ErrTruncatedPolyline, and out-of-range points are dropped without
// failing the rest of the route. An empty input yields an empty route.
func (g *GeoRouteService) DecodePolyline(encoded string) ([]models.Coordinate, error) {
	coords := make([]models.Coordinate, 0, len(encoded)/4)

	var lat, lng int64
	i := 0
	for i < len(encoded) {
		latDelta, next, ok := decodeSignedDelta(encoded, i)
		if !ok {
			g.logger.Debug().Int("offset", i).Msg("Polyline ended inside a latitude group, returning decoded prefix")
			return coords, ErrTruncatedPolyline
		}

		lngDelta, next, ok2 := decodeSignedDelta(encoded, next)
		if !ok2 {
			g.logger.Debug().Int("offset", next).Msg("Polyline ended inside a longitude group, returning decoded prefix")
			return coords, ErrTruncatedPolyline
		}

		lat += latDelta
		lng += lngDelta
		i = next

		c := models.Coordinate{
			Latitude:  float64(lat) / polylineScale,
			Longitude: float64(lng) / polylineScale,
		}
		if !c.Valid() {
			g.logger.Debug().
				Float64("latitude", c.Latitude).
				Float64("longitude", c.Longitude).
				Msg("Dropping out-of-range coordinate from decoded route")
			continue
		}
		coords = append(coords, c)
	}

	return coords, nil
}

// decodeSignedDelta consumes one continuation-bit-terminated run of
// 5-bit groups starting at offset i. It returns the signed delta, the
// offset of the next run, and false when the run is cut off or contains
// a byte below the codec's printable base.
func decodeSignedDelta(encoded string, i int) (int64, int, bool) {
	var result int64
	var shift uint

	for {
		if i >= len(encoded) {
			return 0, i, false
		}

		b := int64(encoded[i]) - 63
		i++
		if b < 0 {
			return 0, i, false
		}

		result |= (b & 0x1f) << shift
		shift += 5

		if b&0x20 == 0 {
			break
		}
	}

	if result&1 != 0 {
		return ^(result >> 1), i, true
	}
	return result >> 1, i, true
}

// FormatDistance renders meters as "850 m" below one kilometer and as
// "1.5 km" (one decimal) at or above it.
func FormatDistance(meters float64) string {
	if meters < 1000 {
		return fmt.Sprintf("%.0f m", meters)
	}
	return fmt.Sprintf("%.1f km", meters/1000)
}

// FormatETA renders the wall-clock arrival time for a travel duration.
// Arrivals on the current calendar day render as "3:04 PM"; anything
// later renders as "Tomorrow at 3:04 PM". The two-bucket wording is
// intentional: deliveries never run more than a day out.
func (g *GeoRouteService) FormatETA(duration time.Duration) string {
	now := g.now()
	arrival := now.Add(duration)

	sameDay := arrival.Year() == now.Year() &&
		arrival.Month() == now.Month() &&
		arrival.Day() == now.Day()
	if sameDay {
		return arrival.Format("3:04 PM")
	}
	return "Tomorrow at " + arrival.Format("3:04 PM")
}

// DistanceEntry is one origin-to-destination result from the distance
// matrix. Nil entries in the merged slice mean the owning batch failed
// and that distance is unknown.
type DistanceEntry struct {
	Distance string
	Meters   int
	Duration time.Duration
}

// DistanceMatrix resolves travel distance and duration from origin to
// every destination, splitting the request into provider-limit batches.
// A failed batch is logged and leaves its slots nil; the remaining
// batches still resolve. Batches are never retried.
func (g *GeoRouteService) DistanceMatrix(ctx context.Context, origin models.Coordinate, destinations []models.Coordinate) []*DistanceEntry {
	entries := make([]*DistanceEntry, len(destinations))

	for start := 0; start < len(destinations); start += maxMatrixDestinations {
		end := start + maxMatrixDestinations
		if end > len(destinations) {
			end = len(destinations)
		}
		batch := destinations[start:end]

		req := &maps.DistanceMatrixRequest{
			Origins:      []string{formatLatLng(origin)},
			Destinations: make([]string, 0, len(batch)),
		}
		for _, d := range batch {
			req.Destinations = append(req.Destinations, formatLatLng(d))
		}

		resp, err := g.api.DistanceMatrix(ctx, req)
		if err != nil {
			g.logger.Warn().Err(err).
				Int("batch_start", start).
				Int("batch_size", len(batch)).
				Msg("Distance matrix batch failed, leaving its entries unresolved")
			continue
		}
		if len(resp.Rows) == 0 {
			g.logger.Warn().Int("batch_start", start).Msg("Distance matrix batch returned no rows")
			continue
		}

		for i, element := range resp.Rows[0].Elements {
			if start+i >= len(entries) {
				break
			}
			if element.Status != "OK" {
				continue
			}
			entries[start+i] = &DistanceEntry{
				Distance: element.Distance.HumanReadable,
				Meters:   element.Distance.Meters,
				Duration: element.Duration,
			}
		}
	}

	return entries
}

// Directions fetches driving directions between two points. The provider
// route list is returned as-is; callers pick routes[0] and legs[0].
func (g *GeoRouteService) Directions(ctx context.Context, origin, destination models.Coordinate) ([]maps.Route, error) {
	routes, _, err := g.api.Directions(ctx, &maps.DirectionsRequest{
		Origin:      formatLatLng(origin),
		Destination: formatLatLng(destination),
		Mode:        maps.TravelModeDriving,
	})
	if err != nil {
		return nil, fmt.Errorf("directions request: %w", err)
	}
	return routes, nil
}

// GeocodeAddress forward-geocodes a street address into a GeoJSON point.
// A provider response with zero candidates is reported as
// ErrNoGeocodeResults so callers can tell a bad address from a failed
// request.
func (g *GeoRouteService) GeocodeAddress(ctx context.Context, address string) (models.GeoPoint, error) {
	results, err := g.api.Geocode(ctx, &maps.GeocodingRequest{Address: address})
	if err != nil {
		return models.GeoPoint{}, fmt.Errorf("geocode %q: %w", address, err)
	}
	if len(results) == 0 {
		return models.GeoPoint{}, fmt.Errorf("geocode %q: %w", address, ErrNoGeocodeResults)
	}

	loc := results[0].Geometry.Location
	return models.NewGeoPoint(models.Coordinate{
		Latitude:  loc.Lat,
		Longitude: loc.Lng,
	}), nil
}

// formatLatLng renders a coordinate in the provider's "lat,lng" form.
func formatLatLng(c models.Coordinate) string {
	return fmt.Sprintf("%.6f,%.6f", c.Latitude, c.Longitude)
}
