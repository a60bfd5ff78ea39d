package orderapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/swiftcart/delivery-tracker/internal/models"
	"github.com/swiftcart/delivery-tracker/pkg/auth"
)

// FetchError reports a failed tracking snapshot request. Callers surface
// it to the UI layer and decide whether to retry; no retry happens here.
type FetchError struct {
	OrderID string
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch tracking snapshot for order %s: %v", e.OrderID, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Client fetches order tracking snapshots from the storefront backend.
type Client interface {
	FetchTracking(ctx context.Context, orderID string) (*models.OrderTrackingSnapshot, error)
}

// HTTPClient is the bearer-authenticated implementation of Client.
type HTTPClient struct {
	baseURL    string
	tokens     auth.TokenProvider
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewHTTPClient creates an HTTPClient for the given API base URL.
func NewHTTPClient(baseURL string, tokens auth.TokenProvider, timeout time.Duration, logger zerolog.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokens:     tokens,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// trackingResponse is the backend's response envelope.
type trackingResponse struct {
	Data models.OrderTrackingSnapshot `json:"data"`
}

// FetchTracking performs GET /orders/{orderID}/tracking and returns the
// snapshot from the response envelope.
func (c *HTTPClient) FetchTracking(ctx context.Context, orderID string) (*models.OrderTrackingSnapshot, error) {
	token, err := c.tokens.Token()
	if err != nil {
		return nil, &FetchError{OrderID: orderID, Err: fmt.Errorf("resolve bearer token: %w", err)}
	}

	endpoint := fmt.Sprintf("%s/orders/%s/tracking", c.baseURL, url.PathEscape(orderID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &FetchError{OrderID: orderID, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{OrderID: orderID, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn().Int("status", resp.StatusCode).Str("order_id", orderID).Msg("Tracking snapshot request rejected")
		return nil, &FetchError{OrderID: orderID, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	var body trackingResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &FetchError{OrderID: orderID, Err: fmt.Errorf("decode response: %w", err)}
	}

	return &body.Data, nil
}
