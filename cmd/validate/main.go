// Command validate re-checks an aggregation result document written by
// cmd/aggregate: geometry closure and coordinate range, per-result
// consistency, the reported extremes and the load-stat conservation.
//
// Usage:
//
//	go run ./cmd/validate -in data/out/aggregates.geojson
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"

	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"

	"github.com/couchcryptid/region-aggregator/internal/aggregate"
	"github.com/couchcryptid/region-aggregator/internal/domain"
	"github.com/couchcryptid/region-aggregator/internal/geometry"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	in := flag.String("in", "", "path to an aggregation GeoJSON document")
	flag.Parse()

	if *in == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*in); code != 0 {
		os.Exit(code)
	}
}

func run(path string) int {
	fmt.Println("=== Region Aggregate Validation ===")
	fmt.Println()

	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: read %s: %v\n", path, err)
		return 1
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: decode %s: %v\n", path, err)
		return 1
	}

	phases := validate(fc)

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Features: %d\n", len(fc.Features))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			if i >= 20 {
				fmt.Printf("  ... and %d more\n", len(p.errors)-20)
				break
			}
			fmt.Printf("  %s\n", e)
		}
	}

	if !allPassed {
		return 1
	}
	fmt.Println("\nAll checks passed.")
	return 0
}

func validate(fc *geojson.FeatureCollection) []*phase {
	results := decodeResults(fc)
	return []*phase{
		validateGeometry(fc),
		validateResults(results),
		validateExtremes(fc, results),
		validateStats(fc),
	}
}

// decodeResults maps feature properties back onto AggregationResult.
func decodeResults(fc *geojson.FeatureCollection) []domain.AggregationResult {
	out := make([]domain.AggregationResult, len(fc.Features))
	for i, f := range fc.Features {
		p := f.Properties
		r := domain.AggregationResult{
			RegionID:   propString(p, aggregate.PropID),
			RegionName: propString(p, aggregate.PropName),
			Warning:    propString(p, aggregate.PropWarning),
		}
		r.IsFallback, _ = p[aggregate.PropIsFallback].(bool)
		if n, ok := p[aggregate.PropPointCount].(float64); ok {
			r.PointCount = int(n)
		}
		if v, ok := p[aggregate.PropIntensity].(float64); ok {
			r.Intensity = domain.Float(v)
		}
		if c, ok := p[aggregate.PropCentroid].([]any); ok && len(c) == 2 {
			lng, _ := c[0].(float64)
			lat, _ := c[1].(float64)
			r.Centroid = domain.Coordinate{Lng: lng, Lat: lat}
		}
		out[i] = r
	}
	return out
}

func validateGeometry(fc *geojson.FeatureCollection) *phase {
	p := &phase{name: "Geometry closure and range"}
	for i, f := range fc.Features {
		id := propString(f.Properties, aggregate.PropID)
		if id == "" {
			id = fmt.Sprintf("#%d", i)
		}
		if f.Geometry == nil {
			continue
		}
		if err := geometry.Check(f.Geometry); err != nil {
			p.errorf("%s: %v: %s", id, err, geometry.Snippet(wkt.MarshalString(f.Geometry)))
		}
	}
	return p
}

func validateResults(results []domain.AggregationResult) *phase {
	p := &phase{name: "Result consistency"}
	seen := make(map[string]bool, len(results))
	for i, r := range results {
		if r.RegionID == "" {
			p.errorf("feature %d: missing id", i)
			continue
		}
		if seen[r.RegionID] {
			p.errorf("%s: duplicate id", r.RegionID)
		}
		seen[r.RegionID] = true

		switch {
		case r.IsFallback && r.PointCount != 0:
			p.errorf("%s: fallback result with point_count %d", r.RegionID, r.PointCount)
		case r.IsFallback && r.Intensity == nil:
			p.errorf("%s: fallback result without intensity", r.RegionID)
		case r.PointCount > 0 && r.Intensity == nil:
			p.errorf("%s: %d points but no intensity", r.RegionID, r.PointCount)
		}
		if r.PointCount < 0 {
			p.errorf("%s: negative point_count", r.RegionID)
		}
		if !r.Centroid.InRange() {
			p.errorf("%s: centroid out of range (%v, %v)", r.RegionID, r.Centroid.Lat, r.Centroid.Lng)
		}
	}
	return p
}

func validateExtremes(fc *geojson.FeatureCollection, results []domain.AggregationResult) *phase {
	p := &phase{name: "Extremes"}
	raw, ok := fc.ExtraMembers[aggregate.MemberExtremes]
	if !ok {
		p.errorf("document has no %q member", aggregate.MemberExtremes)
		return p
	}
	var got domain.Extremes
	if err := remarshal(raw, &got); err != nil {
		p.errorf("decode extremes: %v", err)
		return p
	}
	want := domain.ComputeExtremes(results)
	if !floatEq(got.Min, want.Min) || !floatEq(got.Max, want.Max) {
		p.errorf("extremes {%v, %v}, recomputed {%v, %v}", got.Min, got.Max, want.Min, want.Max)
	}
	if got.Min > got.Max {
		p.errorf("min %v exceeds max %v", got.Min, got.Max)
	}
	return p
}

func validateStats(fc *geojson.FeatureCollection) *phase {
	p := &phase{name: "Load stats conservation"}
	raw, ok := fc.ExtraMembers[aggregate.MemberStats]
	if !ok {
		p.errorf("document has no %q member", aggregate.MemberStats)
		return p
	}
	var s domain.ProcessingStats
	if err := remarshal(raw, &s); err != nil {
		p.errorf("decode stats: %v", err)
		return p
	}
	if !s.Balanced() {
		p.errorf("processed %d + skipped %d + errored %d != total %d", s.Processed, s.Skipped, s.Errored, s.Total)
	}
	if s.Excluded+s.Duplicates > s.Skipped {
		p.errorf("excluded %d + duplicates %d exceeds skipped %d", s.Excluded, s.Duplicates, s.Skipped)
	}
	return p
}

// propString returns a string property or "" when it is missing or not a string.
func propString(p geojson.Properties, key string) string {
	s, _ := p[key].(string)
	return s
}

// remarshal converts a decoded JSON member into a typed value.
func remarshal(v any, dst any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

func floatEq(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}
