// Package regionindex answers "which regions contain this coordinate" using
// an R-tree over region bounding boxes.
package regionindex

import (
	"fmt"
	"math"
	"sort"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"

	"github.com/couchcryptid/region-aggregator/internal/domain"
	"github.com/couchcryptid/region-aggregator/internal/geometry"
)

// minExtent keeps rectangles valid for degenerate (zero width or height) bounds.
const minExtent = 1e-9

// searchTolerance is the half-width of the query rectangle around a point.
const searchTolerance = 1e-7

type entry struct {
	region domain.Region
	rect   rtreego.Rect
}

// Bounds implements rtreego.Spatial.
func (e *entry) Bounds() rtreego.Rect {
	return e.rect
}

// Locator finds regions by coordinate. It is read-only after construction
// and safe for concurrent use.
type Locator struct {
	tree *rtreego.Rtree
	size int
}

// NewLocator indexes regions. Regions without a geometry are ignored.
func NewLocator(regions []domain.Region) (*Locator, error) {
	tree := rtreego.NewTree(2, 25, 50)
	n := 0
	for _, r := range regions {
		if r.Geometry == nil {
			continue
		}
		rect, err := boundRect(r.Geometry.Bound())
		if err != nil {
			return nil, fmt.Errorf("index region %s: %w", r.ID, err)
		}
		tree.Insert(&entry{region: r, rect: rect})
		n++
	}
	return &Locator{tree: tree, size: n}, nil
}

func boundRect(b orb.Bound) (rtreego.Rect, error) {
	w := math.Max(b.Max[0]-b.Min[0], minExtent)
	h := math.Max(b.Max[1]-b.Min[1], minExtent)
	return rtreego.NewRect(rtreego.Point{b.Min[0], b.Min[1]}, []float64{w, h})
}

// Len returns the number of indexed regions.
func (l *Locator) Len() int { return l.size }

// Locate returns the regions whose geometry contains (lat, lng), sorted by
// ID. Regions whose containment test fails are left out.
func (l *Locator) Locate(lat, lng float64) ([]domain.Region, error) {
	if !domain.ValidLatLng(lat, lng) {
		return nil, fmt.Errorf("coordinate (%g, %g) out of range", lat, lng)
	}
	search, err := rtreego.NewRect(
		rtreego.Point{lng - searchTolerance, lat - searchTolerance},
		[]float64{2 * searchTolerance, 2 * searchTolerance},
	)
	if err != nil {
		return nil, fmt.Errorf("search rect: %w", err)
	}

	pt := orb.Point{lng, lat}
	var out []domain.Region
	for _, item := range l.tree.SearchIntersect(search) {
		e := item.(*entry)
		in, err := geometry.Contains(e.region.Geometry, pt)
		if err != nil || !in {
			continue
		}
		out = append(out, e.region)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// LocateIDs is Locate returning identifiers only.
func (l *Locator) LocateIDs(lat, lng float64) ([]string, error) {
	regions, err := l.Locate(lat, lng)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(regions))
	for i, r := range regions {
		ids[i] = r.ID
	}
	return ids, nil
}
