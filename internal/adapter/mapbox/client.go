// Package mapbox resolves region centroids to display names through the
// Mapbox reverse geocoding API.
package mapbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/couchcryptid/region-aggregator/internal/observability"
)

const (
	defaultBaseURL = "https://api.mapbox.com/geocoding/v5/mapbox.places"
	methodReverse  = "reverse"
	// regionTypes restricts reverse lookups to administrative areas.
	regionTypes = "region,district,place"
)

// Client implements regions.Geocoder using the Mapbox Geocoding API.
type Client struct {
	token      string
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a Mapbox geocoding client.
func NewClient(token string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		token: token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: defaultBaseURL,
		metrics: metrics,
		logger:  logger,
	}
}

// ReverseGeocode returns the name of the administrative area at (lat, lng),
// or "" when Mapbox has no match.
func (c *Client) ReverseGeocode(ctx context.Context, lat, lng float64) (string, error) {
	// Mapbox uses lon,lat order.
	coord := fmt.Sprintf("%.6f,%.6f", lng, lat)
	u := fmt.Sprintf("%s/%s.json", c.baseURL, coord)
	params := url.Values{
		"access_token": {c.token},
		"limit":        {"1"},
		"types":        {regionTypes},
	}

	start := time.Now()
	name, err := c.doRequest(ctx, u+"?"+params.Encode())
	c.record(time.Since(start), name, err)
	return name, err
}

func (c *Client) doRequest(ctx context.Context, fullURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("reverse geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("mapbox API error: status %d: %s", resp.StatusCode, body)
	}

	var mapboxResp response
	if err := json.NewDecoder(resp.Body).Decode(&mapboxResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(mapboxResp.Features) == 0 {
		return "", nil
	}

	f := mapboxResp.Features[0]
	if f.Text != "" {
		return f.Text, nil
	}
	return f.PlaceName, nil
}

func (c *Client) record(elapsed time.Duration, name string, err error) {
	if c.metrics == nil {
		return
	}
	c.metrics.GeocodeAPIDuration.WithLabelValues(methodReverse).Observe(elapsed.Seconds())
	outcome := "success"
	switch {
	case err != nil:
		outcome = "error"
		c.logger.Debug("mapbox request failed", "error", err)
	case name == "":
		outcome = "empty"
	}
	c.metrics.GeocodeRequests.WithLabelValues(methodReverse, outcome).Inc()
}

type response struct {
	Features []feature `json:"features"`
}

type feature struct {
	Center    []float64 `json:"center"` // [lon, lat]
	PlaceName string    `json:"place_name"`
	Text      string    `json:"text"`
	Relevance float64   `json:"relevance"`
}
