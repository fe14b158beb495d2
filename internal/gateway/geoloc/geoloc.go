// Package geoloc resolves street addresses to coordinates through an
// external geocoding service. Jobs that arrive without coordinates are
// backfilled so distance sorting can include them.
package geoloc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"ferry77-dispatch/internal/domain"
)

// Provider resolves an address to coordinates. A nil result with a nil error
// means the service had no match for the address.
type Provider interface {
	Resolve(ctx context.Context, address string) (*domain.Coordinates, error)
}

// StatusError is returned when the geocoding service answers with a
// non-success HTTP status.
type StatusError struct {
	Code int
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("geoloc: unexpected status %d", e.Code)
}

// HTTPGateway is a Provider backed by a JSON-over-HTTP geocoding endpoint.
type HTTPGateway struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

// NewHTTPGateway creates a geocoding gateway. Returns nil when no endpoint
// is configured so callers can skip enrichment entirely.
func NewHTTPGateway(baseURL, apiKey string, timeout time.Duration) *HTTPGateway {
	if baseURL == "" {
		return nil
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPGateway{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

type geocodeResponse struct {
	Results []struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	} `json:"results"`
}

// Resolve looks up an address.
func (g *HTTPGateway) Resolve(ctx context.Context, address string) (*domain.Coordinates, error) {
	q := url.Values{}
	q.Set("address", address)
	if g.apiKey != "" {
		q.Set("key", g.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("geoloc: build request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geoloc: resolve %q: %w", address, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode}
	}

	var body geocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("geoloc: decode response: %w", err)
	}
	if len(body.Results) == 0 {
		return nil, nil
	}
	return &domain.Coordinates{Lat: body.Results[0].Lat, Lng: body.Results[0].Lng}, nil
}
