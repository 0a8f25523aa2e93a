package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"trace", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "warn", Format: "json", Output: &buf})

	logger.Info("hidden")
	logger.Warn("shown", FieldUserID, int64(7))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if rec["msg"] != "shown" || rec[FieldUserID] != float64(7) {
		t.Errorf("unexpected record %v", rec)
	}
}

func TestNewText(t *testing.T) {
	var buf bytes.Buffer
	New(Config{Output: &buf}).Info("hello", FieldComponent, ComponentApp)
	if !strings.Contains(buf.String(), "msg=hello") || !strings.Contains(buf.String(), "component=app") {
		t.Errorf("unexpected text output %q", buf.String())
	}
}

func TestContextLogger(t *testing.T) {
	if FromContext(context.Background()) != slog.Default() {
		t.Error("FromContext without logger should return the default")
	}

	var buf bytes.Buffer
	logger := New(Config{Output: &buf}).With(FieldRequestID, "abc")
	ctx := WithLogger(context.Background(), logger)
	FromContext(ctx).Info("inside")
	if !strings.Contains(buf.String(), "request_id=abc") {
		t.Errorf("context logger lost its attributes: %q", buf.String())
	}
}

func TestFields(t *testing.T) {
	args := NewFields().
		WithComponent(ComponentRecurring).
		WithOperation(OpCreate).
		WithUser(3).
		WithExpense(10, 4, 5000, "Housing").
		WithError(errors.New("boom")).
		WithError(nil).
		Args()

	got := map[any]any{}
	for i := 0; i < len(args); i += 2 {
		got[args[i]] = args[i+1]
	}
	want := map[any]any{
		FieldComponent:   ComponentRecurring,
		FieldOperation:   OpCreate,
		FieldUserID:      int64(3),
		FieldExpenseID:   int64(10),
		FieldTemplateID:  int64(4),
		FieldAmountCents: int64(5000),
		FieldCategory:    "Housing",
		FieldError:       "boom",
	}
	if len(got) != len(want) {
		t.Fatalf("got %d fields, want %d: %v", len(got), len(want), got)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("field %v = %v, want %v", k, got[k], v)
		}
	}
}
