package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestLogRecordNaiveTimestamp(t *testing.T) {
	var rec LogRecord
	payload := `{"timestamp":"2024-05-01T12:00:00.123456","raw_line":"ERROR boom","source_file":"app.log","line_number":7,"fields":{"level":"ERROR"}}`
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2024, 5, 1, 12, 0, 0, 123456000, time.UTC)
	if !rec.Timestamp.Equal(want) {
		t.Fatalf("expected %v, got %v", want, rec.Timestamp)
	}
	if rec.RawLine != "ERROR boom" || rec.SourceFile != "app.log" || rec.LineNumber != 7 || rec.Fields["level"] != "ERROR" {
		t.Fatalf("other fields lost: %+v", rec)
	}
}

func TestTimeBucketTimestampForms(t *testing.T) {
	var view AggregationView
	payload := `{"time_series":[{"timestamp":"2024-05-01T12:00:00","count":3},{"timestamp":"2024-05-01T13:00:00Z","count":4}]}`
	if err := json.Unmarshal([]byte(payload), &view); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(view.TimeSeries) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(view.TimeSeries))
	}
	if !view.TimeSeries[0].Timestamp.Equal(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)) || view.TimeSeries[0].Count != 3 {
		t.Fatalf("unexpected first bucket: %+v", view.TimeSeries[0])
	}
	if !view.TimeSeries[1].Timestamp.Equal(time.Date(2024, 5, 1, 13, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected second bucket: %+v", view.TimeSeries[1])
	}
}

func TestLogRecordRejectsGarbageTimestamp(t *testing.T) {
	var rec LogRecord
	if err := json.Unmarshal([]byte(`{"timestamp":"yesterday"}`), &rec); err == nil {
		t.Fatalf("expected an error for an unparseable timestamp")
	}
}
