// Package domain models administrative regions, gridded sample points, and the
// per-region aggregates derived from them.
//
// # Data Sources
//
// Region geometries arrive either as CSV exports (one row per NUTS region, the
// boundary encoded as WKT text in a "geometry" column) or as GeoJSON
// FeatureCollections. Sample points are produced by an upstream collector that
// flattens a climate model grid (e.g. ERA5 2m temperature, "t2m") into
// {lat, lng, value} records and publishes one [PointBatch] per timestep.
//
// # NUTS Conventions
//
// Identifier format:
//
//	<country><level digits>  →  e.g. "AT", "AT1", "AT13", "AT130"
//	The first two letters are the country code; each extra character is one
//	level finer. Greece uses "EL" and the United Kingdom "UK" instead of the
//	ISO-3166 codes GR and GB. [CountryPrefix] folds both spellings to the ISO
//	code so coverage checks treat them as one country. See [CountryName].
//
// Whole-country rows:
//
//	Some exports carry both a level-0 polygon ("DE") and its subdivisions
//	("DE1", "DE11", ...). Rendering both double-counts the area, so the loader
//	excludes the coarse row. See [CoveredCountries].
//
// # Coordinate Conventions
//
//	Geometries follow GeoJSON/WKT axis order: longitude first, latitude second.
//	Sample points are stored latitude first, as the collector emits them.
//	All coordinates are WGS-84 degrees; |lat| ≤ 90 and |lng| ≤ 180.
//
// # Aggregation Semantics
//
// A region's intensity is the arithmetic mean of the sample values inside its
// polygon. When no sample falls inside (small regions on a coarse grid), the
// value of the sample nearest to the region centroid is used and the result is
// flagged IsFallback. When no sample is found within the search radius the
// intensity is nil ("no data"), which is distinct from a geometry failure.
//
// Extremes are computed over non-nil intensities only. An all-nil pass yields
// {min: 0, max: 0} with Empty set; consumers must check Empty rather than treat
// the zero range as a real scale.
package domain
