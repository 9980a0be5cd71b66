package models

import (
	"encoding/json"
	"time"

	"github.com/miradorstack/log-console/internal/utils"
)

// LogRecord is a single ingested log event as served by the storage backend.
type LogRecord struct {
	Timestamp  time.Time      `json:"timestamp"`
	RawLine    string         `json:"raw_line"`
	SourceFile string         `json:"source_file"`
	LineNumber int            `json:"line_number"`
	Fields     map[string]any `json:"fields,omitempty"`
	Tokens     []string       `json:"tokens,omitempty"`
	IngestID   string         `json:"ingest_id,omitempty"`
}

// UnmarshalJSON accepts the backend's naive UTC timestamps as well as RFC3339.
func (r *LogRecord) UnmarshalJSON(data []byte) error {
	type plain LogRecord
	aux := struct {
		*plain
		Timestamp string `json:"timestamp"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	return decodeTimestamp(aux.Timestamp, &r.Timestamp)
}

// LogPage is one page of log records plus the total match count.
type LogPage struct {
	Logs     []LogRecord `json:"logs"`
	Total    int         `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}

// TimeBucket is one point of the event-count time series.
type TimeBucket struct {
	Timestamp time.Time `json:"timestamp"`
	Count     int       `json:"count"`
}

// UnmarshalJSON accepts the same timestamp forms as LogRecord.
func (b *TimeBucket) UnmarshalJSON(data []byte) error {
	type plain TimeBucket
	aux := struct {
		*plain
		Timestamp string `json:"timestamp"`
	}{plain: (*plain)(b)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	return decodeTimestamp(aux.Timestamp, &b.Timestamp)
}

func decodeTimestamp(value string, dst *time.Time) error {
	if value == "" {
		*dst = time.Time{}
		return nil
	}
	t, err := utils.ParseTimestamp(value)
	if err != nil {
		return err
	}
	*dst = t
	return nil
}

// TokenCount is a frequent token and its occurrence count.
type TokenCount struct {
	Token string `json:"token"`
	Count int    `json:"count"`
}

// SourceCount is the number of events from one source file.
type SourceCount struct {
	Source string `json:"source"`
	Count  int    `json:"count"`
}

// AggregationView is the chart projection for a time window. It is replaced wholesale
// on every fetch.
type AggregationView struct {
	TimeSeries []TimeBucket  `json:"time_series"`
	TopTokens  []TokenCount  `json:"top_tokens"`
	Sources    []SourceCount `json:"sources"`
}

// Stats summarises the backend's index.
type Stats struct {
	TotalEvents int64 `json:"total_events"`
	Indices     int   `json:"indices"`
	IndexSize   int64 `json:"index_size"`
}
