package log

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(LevelInfo)
	})
	return &buf
}

func TestLevelFiltering(t *testing.T) {
	buf := capture(t)

	SetLevel(LevelWarn)
	Debug("debug msg")
	Info("info msg")
	Warn("warn msg")
	Error("error msg", errors.New("boom"))

	out := buf.String()
	if strings.Contains(out, "debug msg") || strings.Contains(out, "info msg") {
		t.Fatalf("filtered levels leaked:\n%s", out)
	}
	if !strings.Contains(out, "[WARN] warn msg") || !strings.Contains(out, "[ERROR] error msg") {
		t.Fatalf("expected warn and error lines:\n%s", out)
	}
}

func TestErrorIncludesErrField(t *testing.T) {
	buf := capture(t)

	Error("load failed", errors.New("boom"), "id", "team")
	out := buf.String()
	if !strings.Contains(out, "err=boom") || !strings.Contains(out, "id=team") {
		t.Fatalf("unexpected line: %s", out)
	}
}

func TestKeyValueFormatting(t *testing.T) {
	buf := capture(t)

	Info("msg", "count", 3, "name", "x", "dangling")
	out := buf.String()
	if !strings.Contains(out, " count=3 name=x") {
		t.Fatalf("unexpected line: %s", out)
	}
	if strings.Contains(out, "dangling") {
		t.Fatalf("odd trailing arg must be dropped: %s", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"info", LevelInfo},
		{"", LevelInfo},
		{"bogus", LevelInfo},
	}
	for _, tc := range cases {
		if got := ParseLevel(tc.in); got != tc.want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
