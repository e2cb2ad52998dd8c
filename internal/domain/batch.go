package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// RawEvent represents an unprocessed message from the source topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// PointBatch is one timestep of gridded samples as published by the collector.
type PointBatch struct {
	ID        string        `json:"id"`
	Source    string        `json:"source,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Points    []SamplePoint `json:"points"`
}

// ParsePointBatch decodes a RawEvent's value into a PointBatch. A missing
// batch ID falls back to the message key, then to topic/partition/offset.
func ParsePointBatch(raw RawEvent) (PointBatch, error) {
	var batch PointBatch
	if err := json.Unmarshal(raw.Value, &batch); err != nil {
		return PointBatch{}, fmt.Errorf("parse point batch: %w", err)
	}
	if batch.ID == "" && len(raw.Key) > 0 {
		batch.ID = string(raw.Key)
	}
	if batch.ID == "" {
		batch.ID = fmt.Sprintf("%s-%d-%d", raw.Topic, raw.Partition, raw.Offset)
	}
	if batch.Timestamp.IsZero() {
		batch.Timestamp = raw.Timestamp
	}
	return batch, nil
}

// AggregationOutput is the full result of aggregating one point batch.
type AggregationOutput struct {
	RunID       string              `json:"run_id"`
	BatchID     string              `json:"batch_id"`
	Source      string              `json:"source,omitempty"`
	BatchTime   time.Time           `json:"batch_time"`
	ProcessedAt time.Time           `json:"processed_at"`
	BucketSize  float64             `json:"bucket_size_degrees"`
	PointsUsed  int                 `json:"points_indexed"`
	Dropped     int                 `json:"points_dropped"`
	Results     []AggregationResult `json:"results"`
	Extremes    Extremes            `json:"extremes"`
	Stats       ProcessingStats     `json:"stats"`
}

// Output headers set by SerializeOutput.
const (
	HeaderBatchID       = "batch_id"
	HeaderRunID         = "run_id"
	HeaderProcessedAt   = "processed_at"
	HeaderExtremesEmpty = "extremes_empty"
)

// OutputEvent is the serialized form destined for the sink topic.
type OutputEvent struct {
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// SerializeOutput marshals an AggregationOutput into an OutputEvent keyed by batch ID.
func SerializeOutput(out AggregationOutput) (OutputEvent, error) {
	data, err := json.Marshal(out)
	if err != nil {
		return OutputEvent{}, fmt.Errorf("serialize aggregation output: %w", err)
	}
	return OutputEvent{
		Key:   []byte(out.BatchID),
		Value: data,
		Headers: map[string]string{
			HeaderBatchID:       out.BatchID,
			HeaderRunID:         out.RunID,
			HeaderProcessedAt:   out.ProcessedAt.Format(time.RFC3339),
			HeaderExtremesEmpty: strconv.FormatBool(out.Extremes.Empty),
		},
	}, nil
}
