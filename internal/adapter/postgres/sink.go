// Package postgres appends every aggregation output to a history table.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/couchcryptid/region-aggregator/internal/domain"
)

// Table receives one row per region per aggregation run.
const Table = "region_aggregates"

const schema = `CREATE TABLE IF NOT EXISTS region_aggregates (
	run_id              TEXT             NOT NULL,
	batch_id            TEXT             NOT NULL,
	region_id           TEXT             NOT NULL,
	region_name         TEXT             NOT NULL DEFAULT '',
	intensity           DOUBLE PRECISION,
	point_count         INTEGER          NOT NULL,
	is_fallback         BOOLEAN          NOT NULL,
	centroid_lat        DOUBLE PRECISION NOT NULL,
	centroid_lng        DOUBLE PRECISION NOT NULL,
	nearest_distance_km DOUBLE PRECISION,
	warning             TEXT             NOT NULL DEFAULT '',
	batch_time          TIMESTAMPTZ,
	processed_at        TIMESTAMPTZ      NOT NULL,
	PRIMARY KEY (run_id, region_id)
)`

var columns = []string{
	"run_id", "batch_id", "region_id", "region_name", "intensity", "point_count",
	"is_fallback", "centroid_lat", "centroid_lng", "nearest_distance_km", "warning",
	"batch_time", "processed_at",
}

// Open connects to Postgres with pool limits suited to a single writer.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	return db, nil
}

// Sink writes aggregation outputs with COPY. It implements pipeline.BatchLoader.
type Sink struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSink creates a Sink over db.
func NewSink(db *sql.DB, logger *slog.Logger) *Sink {
	return &Sink{db: db, logger: logger}
}

// EnsureSchema creates the history table if it does not exist.
func (s *Sink) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create %s: %w", Table, err)
	}
	return nil
}

// LoadBatch copies all results of all outputs in one transaction.
func (s *Sink) LoadBatch(ctx context.Context, events []domain.OutputEvent) error {
	var rows [][]any
	for _, ev := range events {
		var out domain.AggregationOutput
		if err := json.Unmarshal(ev.Value, &out); err != nil {
			return fmt.Errorf("decode aggregation output: %w", err)
		}
		rows = append(rows, resultRows(out)...)
	}
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(Table, columns...))
	if err != nil {
		return fmt.Errorf("prepare copy: %w", err)
	}
	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			_ = stmt.Close()
			return fmt.Errorf("copy row: %w", err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()
		return fmt.Errorf("flush copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("close copy: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.logger.Debug("aggregation history written", "rows", len(rows), "outputs", len(events))
	return nil
}

// resultRows flattens an output into COPY rows in column order. Missing
// intensity and distance become NULL.
func resultRows(out domain.AggregationOutput) [][]any {
	var batchTime any
	if !out.BatchTime.IsZero() {
		batchTime = out.BatchTime
	}
	rows := make([][]any, 0, len(out.Results))
	for _, r := range out.Results {
		var intensity, distance any
		if r.Intensity != nil {
			intensity = *r.Intensity
		}
		if r.IsFallback {
			distance = r.NearestDistanceKm
		}
		rows = append(rows, []any{
			out.RunID, out.BatchID, r.RegionID, r.RegionName, intensity, r.PointCount,
			r.IsFallback, r.Centroid.Lat, r.Centroid.Lng, distance, r.Warning,
			batchTime, out.ProcessedAt,
		})
	}
	return rows
}
