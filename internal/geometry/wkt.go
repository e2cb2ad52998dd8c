package geometry

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	sridRe       = regexp.MustCompile(`(?i)^SRID=\d+;\s*`)
	dimensionRe  = regexp.MustCompile(`(?i)^(ZM|Z|M)\b\s*`)
)

const minRingPoints = 4

// Parsed is the outcome of parsing one WKT string.
type Parsed struct {
	Geometry orb.Geometry

	// Recovered is set when the structured parse failed and the geometry was
	// rebuilt from coordinate pairs found anywhere in the text. Cause holds
	// the structured failure in that case.
	Recovered bool
	Cause     error

	// Warnings lists MultiPolygon members that were dropped.
	Warnings []string
}

// ParseGeometry turns WKT text into an orb.Polygon or orb.MultiPolygon.
// contextID (usually the region identifier) is attached to any error.
func ParseGeometry(wkt, contextID string) (orb.Geometry, error) {
	p, err := Parse(wkt, contextID)
	if err != nil {
		return nil, err
	}
	return p.Geometry, nil
}

// Parse runs the structured parser and, if that fails, the coordinate
// recovery pass. It holds no state between calls.
func Parse(wkt, contextID string) (Parsed, error) {
	norm := normalize(wkt)

	g, warnings, err := parseStructured(norm)
	if err == nil {
		return Parsed{Geometry: g, Warnings: warnings}, nil
	}

	poly, rerr := recoverPolygon(norm)
	if rerr == nil {
		return Parsed{Geometry: poly, Recovered: true, Cause: err}, nil
	}

	kind := KindParse
	if errors.Is(err, ErrUnsupportedFormat) {
		kind = KindUnsupported
	}
	return Parsed{}, NewError(kind, contextID, wkt, fmt.Errorf("%v; recovery: %v", err, rerr))
}

func normalize(s string) string {
	s = strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
	return sridRe.ReplaceAllString(s, "")
}

func parseStructured(s string) (orb.Geometry, []string, error) {
	upper := strings.ToUpper(s)
	switch {
	case strings.HasPrefix(upper, "MULTIPOLYGON"):
		return parseMultiPolygon(stripDimension(s[len("MULTIPOLYGON"):]))
	case strings.HasPrefix(upper, "POLYGON"):
		p, err := parsePolygon(stripDimension(s[len("POLYGON"):]))
		return p, nil, err
	default:
		prefix := s
		if i := strings.IndexAny(prefix, " ("); i >= 0 {
			prefix = prefix[:i]
		}
		return nil, nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, Snippet(prefix))
	}
}

func stripDimension(body string) string {
	return dimensionRe.ReplaceAllString(strings.TrimSpace(body), "")
}

func parsePolygon(body string) (orb.Polygon, error) {
	if strings.EqualFold(body, "EMPTY") {
		return nil, errors.New("empty polygon")
	}
	content, err := outerContent(body)
	if err != nil {
		return nil, err
	}
	return parseRings(content)
}

func parseMultiPolygon(body string) (orb.MultiPolygon, []string, error) {
	if strings.EqualFold(body, "EMPTY") {
		return nil, nil, errors.New("empty multipolygon")
	}
	content, err := outerContent(body)
	if err != nil {
		return nil, nil, err
	}
	members, err := balancedGroups(content)
	if err != nil {
		return nil, nil, err
	}

	var (
		mp       orb.MultiPolygon
		warnings []string
	)
	for i, m := range members {
		p, err := parseRings(m)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("polygon %d skipped: %v", i, err))
			continue
		}
		mp = append(mp, p)
	}
	if len(mp) == 0 {
		return nil, warnings, fmt.Errorf("no parsable polygons in multipolygon (%d candidates)", len(members))
	}
	return mp, warnings, nil
}

// parseRings parses "(x y, ...), (x y, ...)" into a polygon. Ring 0 is the
// exterior; any others are holes.
func parseRings(content string) (orb.Polygon, error) {
	ringTexts, err := balancedGroups(content)
	if err != nil {
		return nil, err
	}
	if len(ringTexts) == 0 {
		return nil, errors.New("polygon has no rings")
	}
	poly := make(orb.Polygon, 0, len(ringTexts))
	for i, rt := range ringTexts {
		ring, err := parseRing(rt)
		if err != nil {
			return nil, fmt.Errorf("ring %d: %w", i, err)
		}
		poly = append(poly, ring)
	}
	return poly, nil
}

func parseRing(text string) (orb.Ring, error) {
	parts := strings.Split(text, ",")
	ring := make(orb.Ring, 0, len(parts)+1)
	for _, part := range parts {
		fields := strings.Fields(part)
		if len(fields) < 2 {
			return nil, fmt.Errorf("coordinate %q needs two values", strings.TrimSpace(part))
		}
		lng, err := parseOrdinate(fields[0])
		if err != nil {
			return nil, err
		}
		lat, err := parseOrdinate(fields[1])
		if err != nil {
			return nil, err
		}
		ring = append(ring, orb.Point{lng, lat})
	}
	if len(ring) < minRingPoints {
		return nil, fmt.Errorf("ring has %d points, need at least %d", len(ring), minRingPoints)
	}
	return closeRing(ring), nil
}

func parseOrdinate(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite number %q", s)
	}
	return v, nil
}

// closeRing appends the first point when the ring is open. No other point is touched.
func closeRing(r orb.Ring) orb.Ring {
	if len(r) > 0 && r[0] != r[len(r)-1] {
		r = append(r, r[0])
	}
	return r
}

// outerContent returns the text inside the parenthesis pair that opens body.
func outerContent(body string) (string, error) {
	body = strings.TrimSpace(body)
	if !strings.HasPrefix(body, "(") {
		return "", errors.New("expected '('")
	}
	depth := 0
	for i, ch := range body {
		switch ch {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				if rest := strings.TrimSpace(body[i+1:]); rest != "" {
					return "", fmt.Errorf("unexpected text after geometry: %q", Snippet(rest))
				}
				return body[1:i], nil
			}
		}
	}
	return "", errors.New("unbalanced parentheses")
}

// balancedGroups splits s into the contents of its top-level parenthesis
// groups. A group opens when depth goes 0→1 and closes when it returns to 0.
func balancedGroups(s string) ([]string, error) {
	var (
		groups []string
		depth  int
		start  int
	)
	for i, ch := range s {
		switch ch {
		case '(':
			depth++
			if depth == 1 {
				start = i + 1
			}
		case ')':
			depth--
			if depth < 0 {
				return nil, errors.New("unbalanced parentheses")
			}
			if depth == 0 {
				groups = append(groups, s[start:i])
			}
		}
	}
	if depth != 0 {
		return nil, errors.New("unbalanced parentheses")
	}
	return groups, nil
}
