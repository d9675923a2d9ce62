package observe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("invalid JSON log line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestLogger_IncludesQueryFields(t *testing.T) {
	var buf bytes.Buffer
	meta := QueryMeta{Hash: `["todos",1]`, Attempt: 2}

	NewLoggerWithWriter("info", &buf).WithQuery(meta).Info(context.Background(), "fetched")

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
	entry := lines[0]
	if got := entry["query.hash"]; got != meta.Hash {
		t.Errorf("query.hash = %v, want %v", got, meta.Hash)
	}
	if got := entry["query.digest"]; got != meta.DigestString() {
		t.Errorf("query.digest = %v, want %v", got, meta.DigestString())
	}
	if got := entry["query.attempt"]; got != float64(2) {
		t.Errorf("query.attempt = %v, want 2", got)
	}
	if got := entry["msg"]; got != "fetched" {
		t.Errorf("msg = %v, want fetched", got)
	}
	if got := entry["level"]; got != "info" {
		t.Errorf("level = %v, want info", got)
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	tests := []struct {
		level string
		want  int
	}{
		{"debug", 4},
		{"info", 3},
		{"warn", 2},
		{"error", 1},
		{"bogus", 3},
	}

	for _, tc := range tests {
		t.Run(tc.level, func(t *testing.T) {
			var buf bytes.Buffer
			l := NewLoggerWithWriter(tc.level, &buf)
			ctx := context.Background()
			l.Debug(ctx, "d")
			l.Info(ctx, "i")
			l.Warn(ctx, "w")
			l.Error(ctx, "e")

			if got := len(decodeLines(t, &buf)); got != tc.want {
				t.Errorf("lines = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestLogger_RedactsPayloadFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriter("info", &buf)

	l.Info(context.Background(), "set",
		Field{Key: "data", Value: map[string]any{"ssn": "123"}},
		Field{Key: "token", Value: "abc"},
		Field{Key: "count", Value: 3},
	)

	entry := decodeLines(t, &buf)[0]
	for _, k := range []string{"data", "token"} {
		if entry[k] != "[REDACTED]" {
			t.Errorf("%s = %v, want [REDACTED]", k, entry[k])
		}
	}
	if entry["count"] != float64(3) {
		t.Errorf("count = %v, want 3", entry["count"])
	}
}

func TestLogger_ErrorValuesAreStrings(t *testing.T) {
	var buf bytes.Buffer
	NewLoggerWithWriter("info", &buf).Error(context.Background(), "failed",
		Field{Key: "error", Value: errors.New("boom")})

	if got := decodeLines(t, &buf)[0]["error"]; got != "boom" {
		t.Errorf("error = %v, want boom", got)
	}
}

func TestLogger_WithQueryDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent := NewLoggerWithWriter("info", &buf)
	_ = parent.WithQuery(QueryMeta{Hash: `["a"]`})

	parent.Info(context.Background(), "plain")

	if _, ok := decodeLines(t, &buf)[0]["query.hash"]; ok {
		t.Error("parent logger gained query.hash")
	}
}

func TestLogger_ConcurrentDerivedLoggers(t *testing.T) {
	var buf bytes.Buffer
	base := NewLoggerWithWriter("info", &buf)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			base.WithQuery(QueryMeta{Hash: `["k"]`, Attempt: i + 1}).Info(context.Background(), "x")
		}(i)
	}
	wg.Wait()

	if got := len(decodeLines(t, &buf)); got != 20 {
		t.Errorf("lines = %d, want 20", got)
	}
}

func TestParseLogLevel(t *testing.T) {
	for _, s := range []string{"debug", "info", "warn", "error"} {
		if got := ParseLogLevel(s).String(); got != s {
			t.Errorf("ParseLogLevel(%q).String() = %q", s, got)
		}
	}
	if got := ParseLogLevel(""); got != LevelInfo {
		t.Errorf("ParseLogLevel(\"\") = %v, want LevelInfo", got)
	}
}
