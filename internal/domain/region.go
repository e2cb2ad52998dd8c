package domain

import (
	"encoding/json"
	"math"

	"github.com/paulmach/orb"
)

// Coordinate is a WGS-84 position, longitude first to match geometry order.
type Coordinate struct {
	Lng float64 `json:"lng"`
	Lat float64 `json:"lat"`
}

// CoordinateFromPoint converts an orb point ([lng, lat]) into a Coordinate.
func CoordinateFromPoint(p orb.Point) Coordinate {
	return Coordinate{Lng: p[0], Lat: p[1]}
}

// Point returns the coordinate as an orb point.
func (c Coordinate) Point() orb.Point {
	return orb.Point{c.Lng, c.Lat}
}

// InRange reports whether both components are finite and inside WGS-84 bounds.
func (c Coordinate) InRange() bool {
	return ValidLatLng(c.Lat, c.Lng)
}

// ValidLatLng reports whether lat and lng are finite with |lat| ≤ 90 and |lng| ≤ 180.
func ValidLatLng(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) || math.IsInf(lat, 0) || math.IsInf(lng, 0) {
		return false
	}
	return math.Abs(lat) <= 90 && math.Abs(lng) <= 180
}

// Region is a named administrative area with exactly one Polygon or
// MultiPolygon geometry. Regions are immutable once loaded.
type Region struct {
	ID       string
	Name     string
	Geometry orb.Geometry

	// Value is the precomputed intensity from the source's value column.
	// Nil means the column was empty or not numeric.
	Value *float64
}

// SamplePoint is one measured or modelled value at a grid location.
type SamplePoint struct {
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
	Value float64 `json:"value"`
}

// Valid reports whether the point has finite, in-range coordinates and a finite value.
func (p SamplePoint) Valid() bool {
	return ValidLatLng(p.Lat, p.Lng) && !math.IsNaN(p.Value) && !math.IsInf(p.Value, 0)
}

// UnmarshalJSON decodes missing fields as NaN so the index can drop
// incomplete records instead of treating them as (0, 0).
func (p *SamplePoint) UnmarshalJSON(data []byte) error {
	var raw struct {
		Lat   *float64 `json:"lat"`
		Lng   *float64 `json:"lng"`
		Lon   *float64 `json:"lon"`
		Value *float64 `json:"value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Lng == nil {
		raw.Lng = raw.Lon
	}
	p.Lat = valueOrNaN(raw.Lat)
	p.Lng = valueOrNaN(raw.Lng)
	p.Value = valueOrNaN(raw.Value)
	return nil
}

func valueOrNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}
