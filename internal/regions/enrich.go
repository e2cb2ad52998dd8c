package regions

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/region-aggregator/internal/domain"
	"github.com/couchcryptid/region-aggregator/internal/geometry"
)

// Geocoder resolves a coordinate to a display name.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) (string, error)
}

// EnrichNames fills empty region names by reverse geocoding each region's
// centroid. Failures leave the name empty; only context cancellation is
// returned. regions is updated in place and the number of names set is returned.
func EnrichNames(ctx context.Context, regions []domain.Region, geocoder Geocoder, logger *slog.Logger) (int, error) {
	if geocoder == nil {
		return 0, nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	named := 0
	for i := range regions {
		if err := ctx.Err(); err != nil {
			return named, err
		}
		r := &regions[i]
		if r.Name != "" || r.Geometry == nil {
			continue
		}
		c := geometry.Centroid(r.Geometry)
		name, err := geocoder.ReverseGeocode(ctx, c.Lat(), c.Lon())
		if err != nil {
			logger.Warn("region name lookup failed", "region_id", r.ID, "error", err)
			continue
		}
		if name != "" {
			r.Name = name
			named++
		}
	}
	return named, nil
}
