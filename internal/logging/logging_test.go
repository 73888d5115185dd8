package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestLevel(t *testing.T) {
	cases := []struct {
		o    Options
		want slog.Level
	}{
		{Options{}, slog.LevelWarn},
		{Options{Debug: true}, slog.LevelDebug},
		{Options{Quiet: true}, slog.LevelError},
		{Options{Debug: true, Quiet: true}, slog.LevelDebug},
		{Options{Info: true}, slog.LevelInfo},
		{Options{Info: true, Quiet: true}, slog.LevelError},
	}
	for _, tc := range cases {
		if got := tc.o.Level(); got != tc.want {
			t.Errorf("Level(%+v): expected %v, got %v", tc.o, tc.want, got)
		}
	}
}

func TestNewNonTerminalUsesJSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, Options{})
	l.Warn("counts unavailable", "err", "boom")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("expected a JSON record, got %q: %v", buf.String(), err)
	}
	if rec["msg"] != "counts unavailable" || rec["err"] != "boom" {
		t.Errorf("unexpected record %v", rec)
	}
}

func TestNewFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, Options{})
	l.Info("hidden")
	l.Debug("hidden too")
	if buf.Len() != 0 {
		t.Errorf("info/debug should be filtered at default level, got %q", buf.String())
	}

	buf.Reset()
	New(&buf, Options{Debug: true}).Debug("content fetch", "doc", "nsdp")
	if !strings.Contains(buf.String(), `"doc":"nsdp"`) {
		t.Errorf("debug record missing: %q", buf.String())
	}
}
