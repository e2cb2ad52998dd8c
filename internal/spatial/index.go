// Package spatial holds the grid bucket index used to narrow point-in-polygon
// candidates and to run the expanding-ring nearest-point search.
package spatial

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/paulmach/orb"

	"github.com/couchcryptid/region-aggregator/internal/domain"
)

var (
	// ErrBucketSize is returned for a bucket size that is not a finite number
	// of degrees in [MinBucketSize, 180].
	ErrBucketSize = errors.New("bucket size must be a finite number of degrees in [1e-6, 180]")
	// ErrTooManyCells is returned by QueryBuckets when the padded bounds span
	// more than MaxQueryCells cells.
	ErrTooManyCells = errors.New("query bounds span too many buckets")
)

const (
	// boundPadding widens query bounds by this fraction of a bucket on every side.
	boundPadding = 0.1

	// MinBucketSize keeps cell indices of any WGS84 coordinate well inside int64.
	MinBucketSize = 1e-6
	// MaxQueryCells bounds the key list QueryBuckets will materialize.
	MaxQueryCells = 1 << 22

	// maxQueryDegrees rejects bounds no WGS84 region can produce.
	maxQueryDegrees = 360
)

// Key identifies one grid cell by its integer row and column. The cell covers
// [Lat*size, (Lat+1)*size) × [Lng*size, (Lng+1)*size).
type Key struct {
	Lat int64
	Lng int64
}

// KeyFor returns the cell containing (lat, lng).
func KeyFor(lat, lng, size float64) Key {
	return Key{
		Lat: int64(math.Floor(lat / size)),
		Lng: int64(math.Floor(lng / size)),
	}
}

// Origin returns the south-west corner of the cell in degrees.
func (k Key) Origin(size float64) (lat, lng float64) {
	return float64(k.Lat) * size, float64(k.Lng) * size
}

func (k Key) String() string {
	return fmt.Sprintf("%d:%d", k.Lat, k.Lng)
}

func compareKeys(a, b Key) int {
	if c := cmp.Compare(a.Lat, b.Lat); c != 0 {
		return c
	}
	return cmp.Compare(a.Lng, b.Lng)
}

// Index buckets sample points by grid cell. It is immutable once built; a
// new point set needs a new index.
type Index struct {
	size    float64
	buckets map[Key][]domain.SamplePoint
	count   int
	dropped int
}

// BuildIndex validates size and buckets every usable point. Points with
// non-finite or out-of-range coordinates, or a non-finite value, are dropped
// and logged.
func BuildIndex(points []domain.SamplePoint, size float64, logger *slog.Logger) (*Index, error) {
	if err := checkSize(size); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	ix := &Index{size: size, buckets: make(map[Key][]domain.SamplePoint)}
	for i, p := range points {
		if !p.Valid() {
			ix.dropped++
			logger.Debug("dropping sample point", "index", i, "lat", p.Lat, "lng", p.Lng, "value", p.Value)
			continue
		}
		k := KeyFor(p.Lat, p.Lng, size)
		ix.buckets[k] = append(ix.buckets[k], p)
		ix.count++
	}
	if ix.dropped > 0 {
		logger.Warn("dropped invalid sample points", "dropped", ix.dropped, "indexed", ix.count)
	}
	return ix, nil
}

func checkSize(size float64) error {
	if math.IsNaN(size) || size < MinBucketSize || size > 180 {
		return fmt.Errorf("%w: %v", ErrBucketSize, size)
	}
	return nil
}

// Size returns the bucket size in degrees.
func (ix *Index) Size() float64 { return ix.size }

// Len returns the number of indexed points.
func (ix *Index) Len() int { return ix.count }

// Dropped returns the number of points rejected during construction.
func (ix *Index) Dropped() int { return ix.dropped }

// Buckets returns the number of non-empty cells.
func (ix *Index) Buckets() int { return len(ix.buckets) }

// Points returns the points stored in cell k. The slice must not be modified.
func (ix *Index) Points(k Key) []domain.SamplePoint {
	return ix.buckets[k]
}

// QueryBuckets lists every cell that intersects b after padding it by a tenth
// of a bucket on each side. Keys come back in row-major order. Invalid bounds
// or sizes yield no keys; a range wider than MaxQueryCells is ErrTooManyCells.
func QueryBuckets(b orb.Bound, size float64) ([]Key, error) {
	lo, hi, ok := keyRange(b, size)
	if !ok {
		return nil, nil
	}
	n, ok := cellCount(lo, hi, MaxQueryCells)
	if !ok {
		return nil, fmt.Errorf("%w: more than %d cells at %v degrees", ErrTooManyCells, MaxQueryCells, size)
	}
	keys := make([]Key, 0, n)
	for lat := lo.Lat; lat <= hi.Lat; lat++ {
		for lng := lo.Lng; lng <= hi.Lng; lng++ {
			keys = append(keys, Key{Lat: lat, Lng: lng})
		}
	}
	return keys, nil
}

// cellCount returns the number of cells in [lo, hi], or false when it
// exceeds limit.
func cellCount(lo, hi Key, limit int64) (int64, bool) {
	rows := hi.Lat - lo.Lat + 1
	cols := hi.Lng - lo.Lng + 1
	if rows <= 0 || cols <= 0 || rows > limit || cols > limit/rows {
		return 0, false
	}
	return rows * cols, true
}

func keyRange(b orb.Bound, size float64) (lo, hi Key, ok bool) {
	if checkSize(size) != nil {
		return Key{}, Key{}, false
	}
	for _, v := range []float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]} {
		if math.IsNaN(v) || math.Abs(v) > maxQueryDegrees {
			return Key{}, Key{}, false
		}
	}
	pad := boundPadding * size
	lo = KeyFor(b.Min.Lat()-pad, b.Min.Lon()-pad, size)
	hi = KeyFor(b.Max.Lat()+pad, b.Max.Lon()+pad, size)
	if lo.Lat > hi.Lat || lo.Lng > hi.Lng {
		return Key{}, Key{}, false
	}
	return lo, hi, true
}

// Candidates returns the points in every cell QueryBuckets would list for b.
// Large bounds over a sparse index walk the occupied cells instead of the grid.
func (ix *Index) Candidates(b orb.Bound) []domain.SamplePoint {
	lo, hi, ok := keyRange(b, ix.size)
	if !ok {
		return nil
	}

	var out []domain.SamplePoint
	if _, dense := cellCount(lo, hi, int64(len(ix.buckets))); dense {
		for lat := lo.Lat; lat <= hi.Lat; lat++ {
			for lng := lo.Lng; lng <= hi.Lng; lng++ {
				out = append(out, ix.buckets[Key{Lat: lat, Lng: lng}]...)
			}
		}
		return out
	}

	var keys []Key
	for k := range ix.buckets {
		if k.Lat >= lo.Lat && k.Lat <= hi.Lat && k.Lng >= lo.Lng && k.Lng <= hi.Lng {
			keys = append(keys, k)
		}
	}
	slices.SortFunc(keys, compareKeys)
	for _, k := range keys {
		out = append(out, ix.buckets[k]...)
	}
	return out
}
