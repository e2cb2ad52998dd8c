//go:build mapbox

package mapbox

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/region-aggregator/internal/observability"
)

// These tests hit the real Mapbox API and require a valid MAPBOX_TOKEN env var.
// Run with: go test -tags=mapbox ./internal/adapter/mapbox/ -v -count=1

func smokeClient(t *testing.T) *Client {
	t.Helper()
	token := os.Getenv("MAPBOX_TOKEN")
	if token == "" {
		t.Fatal("MAPBOX_TOKEN must be set to run smoke tests")
	}
	return NewClient(token, 10*time.Second,
		slog.New(slog.NewTextHandler(io.Discard, nil)), observability.NewMetricsForTesting())
}

func TestSmoke_ReverseGeocode(t *testing.T) {
	c := smokeClient(t)

	// Vienna
	name, err := c.ReverseGeocode(context.Background(), 48.2082, 16.3738)
	require.NoError(t, err)
	assert.NotEmpty(t, name)
}

func TestSmoke_ReverseGeocode_Ocean(t *testing.T) {
	c := smokeClient(t)

	// mid-Atlantic has no administrative area
	_, err := c.ReverseGeocode(context.Background(), 35.0, -40.0)
	require.NoError(t, err)
}

func TestSmoke_CachedGeocoder(t *testing.T) {
	c := smokeClient(t)
	cached := NewCachedGeocoder(c, 10, observability.NewMetricsForTesting())

	n1, err := cached.ReverseGeocode(context.Background(), 47.0707, 15.4395)
	require.NoError(t, err)
	n2, err := cached.ReverseGeocode(context.Background(), 47.0707, 15.4395)
	require.NoError(t, err)
	assert.Equal(t, n1, n2)
}
