package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
)

func TestSlogAdapter_WritesFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))
	logger := NewSlogAdapter(base)

	logger.Info("job accepted",
		String("job_id", "j-1"),
		Int("active", 3),
		Float64("distance_km", 4.2),
	)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not json: %v", err)
	}
	if entry["msg"] != "job accepted" {
		t.Fatalf("unexpected msg: %v", entry["msg"])
	}
	if entry["job_id"] != "j-1" {
		t.Fatalf("missing job_id field: %v", entry)
	}
	if entry["distance_km"] != 4.2 {
		t.Fatalf("missing distance_km field: %v", entry)
	}
}

func TestSlogAdapter_WithAttachesFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))
	logger := NewSlogAdapter(base).With(String("driver_id", "d-7"))

	logger.Warn("driver unavailable")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not json: %v", err)
	}
	if entry["driver_id"] != "d-7" {
		t.Fatalf("With field not attached: %v", entry)
	}
}

func TestErrField(t *testing.T) {
	t.Parallel()

	f := Err(errors.New("boom"))
	if f.Key != "err" || f.Value != "boom" {
		t.Fatalf("unexpected err field: %#v", f)
	}
	if f := Err(nil); f.Value != nil {
		t.Fatalf("nil error should produce nil value, got %#v", f)
	}
}

func TestNop_DoesNothing(t *testing.T) {
	t.Parallel()

	l := Nop().With(String("k", "v"))
	l.Debug("x")
	l.Error("y")
	if err := l.Sync(); err != nil {
		t.Fatalf("nop Sync returned error: %v", err)
	}
}
