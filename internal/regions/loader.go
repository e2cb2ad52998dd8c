package regions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/couchcryptid/region-aggregator/internal/domain"
	"github.com/couchcryptid/region-aggregator/internal/geometry"
)

var (
	// ErrSchema is fatal: a required column is missing from the header.
	ErrSchema = errors.New("region schema error")
	// ErrRowFormat marks a row that could not be split into enough columns.
	// Such rows are always skipped, never returned.
	ErrRowFormat = errors.New("malformed region row")
)

var tracer = otel.Tracer("github.com/couchcryptid/region-aggregator/internal/regions")

// Columns names the header columns the loader reads. Name is optional.
type Columns struct {
	ID       string
	Geometry string
	Value    string
	Name     string
}

// DefaultColumns returns the NUTS export layout.
func DefaultColumns() Columns {
	return Columns{ID: "NUTS_ID", Geometry: "geometry", Value: "t2m", Name: "NUTS_NAME"}
}

// Options configures a Loader.
type Options struct {
	Columns Columns
	// Exclude lists identifiers that are always dropped.
	Exclude []string
	// DeriveExclusions drops country-level rows that have finer rows in the same document.
	DeriveExclusions bool
	// MaxSkippedIDs caps Stats.SkippedRegions and Stats.ErroredRegions; zero means no cap.
	MaxSkippedIDs int
	Logger        *slog.Logger
}

// RegionSet is the output of one load: accepted regions and the stats that
// account for every data row.
type RegionSet struct {
	Regions []domain.Region        `json:"-"`
	Stats   domain.ProcessingStats `json:"stats"`
}

// IDs returns the identifiers of the accepted regions in load order.
func (s RegionSet) IDs() []string {
	ids := make([]string, len(s.Regions))
	for i, r := range s.Regions {
		ids[i] = r.ID
	}
	return ids
}

// Loader turns tabular or GeoJSON region sources into a RegionSet. It keeps no
// state between loads and is safe for concurrent use.
type Loader struct {
	cols    Columns
	exclude map[string]bool
	derive  bool
	maxIDs  int
	logger  *slog.Logger
}

// NewLoader creates a Loader. Empty column names fall back to DefaultColumns.
func NewLoader(opts Options) *Loader {
	cols := opts.Columns
	def := DefaultColumns()
	if cols.ID == "" {
		cols.ID = def.ID
	}
	if cols.Geometry == "" {
		cols.Geometry = def.Geometry
	}
	if cols.Value == "" {
		cols.Value = def.Value
	}

	exclude := make(map[string]bool, len(opts.Exclude))
	for _, id := range opts.Exclude {
		if id = strings.ToUpper(strings.TrimSpace(id)); id != "" {
			exclude[id] = true
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		cols:    cols,
		exclude: exclude,
		derive:  opts.DeriveExclusions,
		maxIDs:  opts.MaxSkippedIDs,
		logger:  logger,
	}
}

// LoadRegions parses a CSV document with the default column layout and no
// exclusions.
func LoadRegions(doc string, skipInvalid bool) (RegionSet, error) {
	return NewLoader(Options{}).LoadCSV(doc, skipInvalid)
}

// Load dispatches on format ("csv" or "geojson") and records a trace span.
func (l *Loader) Load(ctx context.Context, data []byte, format string, skipInvalid bool) (RegionSet, error) {
	_, span := tracer.Start(ctx, "regions.load")
	defer span.End()

	var (
		set RegionSet
		err error
	)
	switch strings.ToLower(format) {
	case "csv", "":
		set, err = l.LoadCSV(string(data), skipInvalid)
	case "geojson", "json":
		set, err = l.LoadGeoJSON(data, skipInvalid)
	default:
		err = fmt.Errorf("unknown region format %q", format)
	}
	if err != nil {
		span.RecordError(err)
		return RegionSet{}, err
	}
	span.SetAttributes(
		attribute.String("regions.format", format),
		attribute.Int("regions.total", set.Stats.Total),
		attribute.Int("regions.processed", set.Stats.Processed),
		attribute.Int("regions.skipped", set.Stats.Skipped),
		attribute.Int("regions.errored", set.Stats.Errored),
	)
	return set, nil
}

type layout struct {
	id, geom, value, name int
	need                  int
}

type row struct {
	line   int
	fields []string
	id     string
	ok     bool
}

// LoadCSV parses a region CSV. A missing required column returns ErrSchema.
// With skipInvalid the loader counts and skips geometry failures; without it
// the first geometry failure aborts the load.
func (l *Loader) LoadCSV(doc string, skipInvalid bool) (RegionSet, error) {
	lines := splitLines(doc)

	hdr := -1
	for i, line := range lines {
		if strings.TrimSpace(line) != "" {
			hdr = i
			break
		}
	}
	if hdr < 0 {
		return RegionSet{}, fmt.Errorf("%w: document has no header row", ErrSchema)
	}
	lay, err := l.parseHeader(lines[hdr])
	if err != nil {
		return RegionSet{}, err
	}

	rows := make([]row, 0, len(lines)-hdr-1)
	for i := hdr + 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "" {
			continue
		}
		fields, ok := splitRecord(lines[i])
		r := row{line: i + 1, fields: fields, ok: ok && len(fields) >= lay.need}
		if !ok {
			// best-effort identifier for the skip report
			fields = strings.Split(lines[i], ",")
		}
		if len(fields) > lay.id {
			r.id = strings.Trim(strings.TrimSpace(fields[lay.id]), `"`)
		}
		rows = append(rows, r)
	}

	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		if r.ok {
			ids = append(ids, r.id)
		}
	}
	excluded := l.exclusions(ids)

	set := RegionSet{Stats: domain.NewProcessingStats(l.maxIDs)}
	accepted := make(map[string]bool, len(rows))
	for _, r := range rows {
		if !r.ok {
			l.logger.Warn("skipping malformed region row",
				"line", r.line, "region_id", r.id,
				"error", fmt.Errorf("%w: got %d columns, need %d", ErrRowFormat, len(r.fields), lay.need))
			set.Stats.MarkSkipped(r.id)
			continue
		}
		if r.id == "" {
			l.logger.Warn("skipping region row without identifier", "line", r.line)
			set.Stats.MarkSkipped("")
			continue
		}
		key := strings.ToUpper(r.id)
		if excluded[key] {
			l.logger.Debug("excluding region", "region_id", r.id)
			set.Stats.MarkExcluded(r.id)
			continue
		}
		if accepted[key] {
			l.logger.Warn("skipping duplicate region", "line", r.line, "region_id", r.id)
			set.Stats.MarkDuplicate(r.id)
			continue
		}

		g, err := l.geometry(r.fields[lay.geom], r.id, &set.Stats)
		if err != nil {
			if !skipInvalid {
				return RegionSet{}, err
			}
			continue
		}

		region := domain.Region{
			ID:       r.id,
			Geometry: g,
			Value:    parseValue(r.fields[lay.value]),
		}
		if lay.name >= 0 && lay.name < len(r.fields) {
			region.Name = strings.TrimSpace(r.fields[lay.name])
		}
		region.Name = defaultName(region)
		set.Regions = append(set.Regions, region)
		set.Stats.MarkProcessed()
		accepted[key] = true
	}

	l.logSummary("csv", set.Stats)
	return set, nil
}

func (l *Loader) parseHeader(line string) (layout, error) {
	fields, ok := splitRecord(line)
	if !ok {
		return layout{}, fmt.Errorf("%w: header has an unterminated quote", ErrSchema)
	}
	pos := make(map[string]int, len(fields))
	for i, f := range fields {
		f = strings.TrimSpace(f)
		if _, dup := pos[f]; !dup {
			pos[f] = i
		}
	}

	var missing []string
	lookup := func(name string) int {
		i, ok := pos[name]
		if !ok {
			missing = append(missing, name)
			return -1
		}
		return i
	}
	lay := layout{
		id:    lookup(l.cols.ID),
		geom:  lookup(l.cols.Geometry),
		value: lookup(l.cols.Value),
		name:  -1,
	}
	if len(missing) > 0 {
		return layout{}, fmt.Errorf("%w: missing required columns %s", ErrSchema, strings.Join(missing, ", "))
	}
	if i, ok := pos[l.cols.Name]; ok && l.cols.Name != "" {
		lay.name = i
	}
	lay.need = max(lay.id, lay.geom, lay.value) + 1
	return lay, nil
}

// geometry parses and validates one WKT field, updating stats on failure.
func (l *Loader) geometry(wkt, id string, stats *domain.ProcessingStats) (orb.Geometry, error) {
	parsed, err := geometry.Parse(wkt, id)
	if err != nil {
		l.logger.Warn("region geometry parse failed", "region_id", id, "error", err)
		stats.MarkErrored(id)
		return nil, err
	}
	for _, w := range parsed.Warnings {
		l.logger.Warn("multipolygon member dropped", "region_id", id, "detail", w)
	}
	if parsed.Recovered {
		l.logger.Info("region geometry recovered from coordinates",
			"region_id", id, "cause", parsed.Cause, "input", geometry.Snippet(wkt))
	}
	if verr := geometry.Check(parsed.Geometry); verr != nil {
		err := geometry.NewError(geometry.KindValidation, id, wkt, verr)
		l.logger.Warn("region geometry rejected", "region_id", id, "error", err)
		stats.MarkSkipped(id)
		return nil, err
	}
	if parsed.Recovered {
		stats.Recovered++
	}
	return parsed.Geometry, nil
}

func (l *Loader) logSummary(source string, s domain.ProcessingStats) {
	l.logger.Info("regions loaded",
		"source", source,
		"total", s.Total,
		"processed", s.Processed,
		"skipped", s.Skipped,
		"errored", s.Errored,
		"excluded", s.Excluded,
		"duplicates", s.Duplicates,
		"recovered", s.Recovered,
	)
}

// parseValue returns nil for empty, non-numeric or non-finite values.
func parseValue(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// defaultName keeps an explicit name and otherwise names country-level regions.
func defaultName(r domain.Region) string {
	if r.Name != "" {
		return r.Name
	}
	if domain.IsCountryLevel(r.ID) {
		name, _ := domain.CountryName(r.ID)
		return name
	}
	return ""
}
