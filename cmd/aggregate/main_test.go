package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/region-aggregator/internal/domain"
)

const regionsCSV = `NUTS_ID,NUTS_NAME,t2m,geometry
AT1,Ost,,"POLYGON ((10 47, 11 47, 11 48, 10 48, 10 47))"
AT2,West,,"POLYGON ((12 47, 13 47, 13 48, 12 48, 12 47))"
`

const countriesGeoJSON = `{"type":"FeatureCollection","features":[
{"type":"Feature","properties":{"NUTS_ID":"AT"},"geometry":{"type":"Polygon","coordinates":[[[9,46],[14,46],[14,49],[9,49],[9,46]]]}},
{"type":"Feature","properties":{"NUTS_ID":"CH"},"geometry":{"type":"Polygon","coordinates":[[[6,46],[9,46],[9,47.5],[6,47.5],[6,46]]]}}
]}`

func TestDecodePoints(t *testing.T) {
	pts, err := decodePoints([]byte(` [{"lat":1,"lng":2,"value":3}]`))
	require.NoError(t, err)
	assert.Equal(t, []domain.SamplePoint{{Lat: 1, Lng: 2, Value: 3}}, pts)

	pts, err = decodePoints([]byte(`{"id":"b","points":[{"lat":1,"lon":2,"value":3},{"lat":5}]}`))
	require.NoError(t, err)
	require.Len(t, pts, 2)
	assert.InDelta(t, 2, pts[0].Lng, 0)
	assert.True(t, math.IsNaN(pts[1].Value))

	_, err = decodePoints([]byte(`nope`))
	assert.Error(t, err)
}

func TestRun_WritesFeatureCollection(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
		return p
	}
	opts := options{
		regionsPath:   write("regions.csv", regionsCSV),
		pointsPath:    write("points.json", `{"id":"b1","points":[{"lat":47.5,"lng":10.5,"value":4},{"lat":47.25,"lng":10.25,"value":6},{"lat":46.5,"lng":7.5,"value":1}]}`),
		secondaryPath: write("countries.geojson", countriesGeoJSON),
		bucketSize:    0.5,
		skipInvalid:   true,
		out:           filepath.Join(dir, "out", "result.geojson"),
	}

	require.NoError(t, run(context.Background(), opts, slog.New(slog.NewTextHandler(io.Discard, nil))))

	data, err := os.ReadFile(opts.out)
	require.NoError(t, err)
	var doc struct {
		Extremes domain.Extremes `json:"extremes"`
		Stats    struct {
			Processed int `json:"processed"`
		} `json:"stats"`
		Features []struct {
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))

	// AT is covered by AT1/AT2, so only CH joins from the coarse file.
	require.Len(t, doc.Features, 3)
	ids := []any{doc.Features[0].Properties["id"], doc.Features[1].Properties["id"], doc.Features[2].Properties["id"]}
	assert.Equal(t, []any{"AT1", "AT2", "CH"}, ids)

	at1 := doc.Features[0].Properties
	assert.InDelta(t, 5, at1["intensity"], 1e-9)
	assert.Equal(t, false, at1["is_fallback"])

	ch := doc.Features[2].Properties
	assert.InDelta(t, 1, ch["intensity"], 1e-9)

	assert.Equal(t, domain.Extremes{Min: 1, Max: 5}, doc.Extremes)
	assert.Equal(t, 2, doc.Stats.Processed)
}

func TestRun_WithoutPointsUsesValueColumn(t *testing.T) {
	dir := t.TempDir()
	regionsPath := filepath.Join(dir, "regions.csv")
	require.NoError(t, os.WriteFile(regionsPath, []byte(`NUTS_ID,t2m,geometry
AT1,15.2,"POLYGON ((10 47, 11 47, 11 48, 10 48, 10 47))"
AT2,n/a,"POLYGON ((12 47, 13 47, 13 48, 12 48, 12 47))"
`), 0o600))
	opts := options{
		regionsPath: regionsPath,
		bucketSize:  0.5,
		skipInvalid: true,
		out:         filepath.Join(dir, "result.geojson"),
	}

	require.NoError(t, run(context.Background(), opts, slog.New(slog.NewTextHandler(io.Discard, nil))))

	data, err := os.ReadFile(opts.out)
	require.NoError(t, err)
	var doc struct {
		Extremes domain.Extremes `json:"extremes"`
		Features []struct {
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	require.Len(t, doc.Features, 2)
	assert.InDelta(t, 15.2, doc.Features[0].Properties["intensity"], 1e-9)
	assert.Nil(t, doc.Features[1].Properties["intensity"])
	assert.Equal(t, domain.Extremes{Min: 15.2, Max: 15.2}, doc.Extremes)
}
