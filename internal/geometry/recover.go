package geometry

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/paulmach/orb"

	"github.com/couchcryptid/region-aggregator/internal/domain"
)

// coordPairRe matches "<number> <number>" anywhere in the text.
var coordPairRe = regexp.MustCompile(`([-+]?\d+\.?\d*)\s+([-+]?\d+\.?\d*)`)

// recoverPolygon rebuilds a single-ring polygon from coordinate pairs found
// anywhere in s. Every pair must be in WGS-84 range; at least four are needed.
func recoverPolygon(s string) (orb.Polygon, error) {
	matches := coordPairRe.FindAllStringSubmatch(s, -1)
	if len(matches) < minRingPoints {
		return nil, fmt.Errorf("found %d coordinate pairs, need at least %d", len(matches), minRingPoints)
	}

	ring := make(orb.Ring, 0, len(matches)+1)
	for _, m := range matches {
		lng, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", m[1])
		}
		lat, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", m[2])
		}
		if !domain.ValidLatLng(lat, lng) {
			return nil, fmt.Errorf("recovered coordinate (%g %g) out of range", lng, lat)
		}
		ring = append(ring, orb.Point{lng, lat})
	}
	return orb.Polygon{closeRing(ring)}, nil
}
