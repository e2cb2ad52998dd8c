package spatial

import (
	"math"

	"github.com/paulmach/orb"

	"github.com/couchcryptid/region-aggregator/internal/domain"
)

// DefaultMaxRadius is how many rings the nearest search expands by default.
const DefaultMaxRadius = 3

// RingKeys returns the cells at Chebyshev distance r from center, walking
// rows south to north. Ring 0 is the center cell alone.
func RingKeys(center Key, r int) []Key {
	if r < 0 {
		return nil
	}
	if r == 0 {
		return []Key{center}
	}
	d := int64(r)
	keys := make([]Key, 0, 8*r)
	for dlat := -d; dlat <= d; dlat++ {
		if dlat == -d || dlat == d {
			for dlng := -d; dlng <= d; dlng++ {
				keys = append(keys, Key{Lat: center.Lat + dlat, Lng: center.Lng + dlng})
			}
			continue
		}
		keys = append(keys,
			Key{Lat: center.Lat + dlat, Lng: center.Lng - d},
			Key{Lat: center.Lat + dlat, Lng: center.Lng + d},
		)
	}
	return keys
}

// Nearest searches rings 0..maxRadius around the cell containing pt and
// returns the point closest to pt by planar degree distance. The search stops
// after the first ring that contains any point, so a closer point in a later
// ring is not considered. ok is false when no point lies within maxRadius rings.
func (ix *Index) Nearest(pt orb.Point, maxRadius int) (best domain.SamplePoint, ok bool) {
	if ix == nil || ix.count == 0 || !domain.ValidLatLng(pt.Lat(), pt.Lon()) {
		return domain.SamplePoint{}, false
	}
	center := KeyFor(pt.Lat(), pt.Lon(), ix.size)
	bestDist := math.Inf(1)
	for r := 0; r <= maxRadius; r++ {
		for _, k := range RingKeys(center, r) {
			for _, p := range ix.buckets[k] {
				dlat := p.Lat - pt.Lat()
				dlng := p.Lng - pt.Lon()
				if d := dlat*dlat + dlng*dlng; d < bestDist {
					bestDist = d
					best = p
					ok = true
				}
			}
		}
		if ok {
			return best, true
		}
	}
	return domain.SamplePoint{}, false
}
