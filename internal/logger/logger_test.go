package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"TRACE", LevelTrace, false},
		{"debug", LevelDebug, false},
		{"", LevelInfo, false},
		{"Info", LevelInfo, false},
		{"WARN", LevelWarning, false},
		{"warning", LevelWarning, false},
		{"ERROR", LevelError, false},
		{"FATAL", LevelFatal, false},
		{"verbose", LevelInfo, true},
	}

	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseLevel(tc.in)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
			}
			if got != tc.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func setupBuffer(t *testing.T, level string) *bytes.Buffer {
	t.Helper()

	var buf bytes.Buffer
	if err := Setup(context.Background(), Options{Level: level, SampleRate: 1, Output: &buf}); err != nil {
		t.Fatalf("Setup() failed: %v", err)
	}
	t.Cleanup(func() {
		_ = Setup(context.Background(), Options{Level: "INFO", SampleRate: 1})
	})
	return &buf
}

func TestSetupWritesJSON(t *testing.T) {
	buf := setupBuffer(t, "DEBUG")

	Info("rule fired", "rule_id", "r1")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	if entry["msg"] != "rule fired" {
		t.Errorf("msg = %v, want 'rule fired'", entry["msg"])
	}
	if entry["rule_id"] != "r1" {
		t.Errorf("rule_id = %v, want r1", entry["rule_id"])
	}
}

func TestLevelFiltering(t *testing.T) {
	buf := setupBuffer(t, "WARN")

	Debug("hidden")
	Info("hidden")
	Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("messages below WARN should be filtered, got %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("WARN message should be logged, got %q", out)
	}
	if GetLevel() != LevelWarning {
		t.Errorf("GetLevel() = %v, want %v", GetLevel(), LevelWarning)
	}
}

func TestCountersIgnoreSampling(t *testing.T) {
	var buf bytes.Buffer
	if err := Setup(context.Background(), Options{SampleRate: 1000000, Output: &buf}); err != nil {
		t.Fatalf("Setup() failed: %v", err)
	}
	t.Cleanup(func() {
		_ = Setup(context.Background(), Options{Level: "INFO", SampleRate: 1})
	})

	warnings := TotalWarnings.Load()
	errs := TotalErrors.Load()

	for i := 0; i < 10; i++ {
		Warn("sampled warning")
		Error("sampled error")
	}

	if got := TotalWarnings.Load() - warnings; got != 10 {
		t.Errorf("TotalWarnings increased by %d, want 10", got)
	}
	if got := TotalErrors.Load() - errs; got != 10 {
		t.Errorf("TotalErrors increased by %d, want 10", got)
	}
}

func TestSetLevel(t *testing.T) {
	original := GetLevel()
	defer SetLevel(original)

	SetLevel(LevelError)
	if GetLevel() != LevelError {
		t.Errorf("GetLevel() = %v, want %v", GetLevel(), LevelError)
	}
}

func TestShutdownWithoutOTEL(t *testing.T) {
	if err := Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() without OTEL should be a no-op, got %v", err)
	}
}
