// Command genmock writes a deterministic PointBatch fixture: a regular grid of
// sample points over a bounding box with a smooth synthetic value field.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -bbox 9.5,46.3,17.2,49.1 \
//	  -step 0.25 \
//	  -out data/mock/points_at.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"

	"github.com/couchcryptid/region-aggregator/internal/domain"
)

var baseDate = time.Date(2024, time.July, 1, 12, 0, 0, 0, time.UTC)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	bboxFlag := flag.String("bbox", "", "minLng,minLat,maxLng,maxLat")
	step := flag.Float64("step", 0.25, "grid spacing in degrees")
	out := flag.String("out", "", "output path for the point batch fixture")
	id := flag.String("id", "mock-batch", "batch identifier")
	source := flag.String("source", "genmock", "batch source label")
	flag.Parse()

	if *bboxFlag == "" || *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flags: -bbox, -out")
	}
	bound, err := parseBBox(*bboxFlag)
	if err != nil {
		return err
	}
	if *step <= 0 || math.IsNaN(*step) {
		return fmt.Errorf("invalid -step %v: must be > 0", *step)
	}

	// Fixed clock for reproducible timestamps.
	domain.SetClock(clockwork.NewFakeClockAt(baseDate))
	defer domain.SetClock(nil)

	batch := domain.PointBatch{
		ID:        *id,
		Source:    *source,
		Timestamp: domain.Now(),
		Points:    grid(bound, *step),
	}
	if err := writeJSON(*out, batch); err != nil {
		return fmt.Errorf("writing fixture: %w", err)
	}
	log.Printf("wrote %d points to %s", len(batch.Points), *out)
	return nil
}

// parseBBox reads "minLng,minLat,maxLng,maxLat".
func parseBBox(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, fmt.Errorf("invalid -bbox %q: want minLng,minLat,maxLng,maxLat", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("invalid -bbox %q: %w", s, err)
		}
		v[i] = f
	}
	b := orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}
	if !domain.ValidLatLng(v[1], v[0]) || !domain.ValidLatLng(v[3], v[2]) {
		return orb.Bound{}, fmt.Errorf("invalid -bbox %q: coordinates out of range", s)
	}
	if b.Min.X() > b.Max.X() || b.Min.Y() > b.Max.Y() {
		return orb.Bound{}, fmt.Errorf("invalid -bbox %q: min exceeds max", s)
	}
	return b, nil
}

// grid lays points row by row from the south-west corner. Indices are
// multiplied out rather than accumulated so the last row and column land on
// the box edge without drift.
func grid(b orb.Bound, step float64) []domain.SamplePoint {
	rows := int(math.Floor((b.Max.Y()-b.Min.Y())/step+1e-9)) + 1
	cols := int(math.Floor((b.Max.X()-b.Min.X())/step+1e-9)) + 1
	points := make([]domain.SamplePoint, 0, rows*cols)
	for i := range rows {
		lat := round6(b.Min.Y() + float64(i)*step)
		for j := range cols {
			lng := round6(b.Min.X() + float64(j)*step)
			points = append(points, domain.SamplePoint{Lat: lat, Lng: lng, Value: field(lat, lng)})
		}
	}
	return points
}

// field is a temperature-like surface: warmer toward the equator with a
// gentle zonal wave.
func field(lat, lng float64) float64 {
	v := 30*math.Cos(lat*math.Pi/180) - 5 + 2*math.Sin(lng*math.Pi/45)
	return math.Round(v*100) / 100
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}
