package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func newTestLogger(prefix string) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := New(prefix)
	l.SetWriter(&buf)
	l.SetColorize(false)
	l.SetFormat(FormatText)
	l.SetLevel(DEBUG)
	return l, &buf
}

func TestLevelFiltering(t *testing.T) {
	l, buf := newTestLogger("test")
	l.SetLevel(WARN)

	l.Debug("debug message")
	l.Info("info message")
	l.Warn("warn message")
	l.Error("error message")

	out := buf.String()
	if strings.Contains(out, "debug message") || strings.Contains(out, "info message") {
		t.Errorf("messages below WARN were emitted:\n%s", out)
	}
	if !strings.Contains(out, "warn message") || !strings.Contains(out, "error message") {
		t.Errorf("WARN/ERROR messages missing:\n%s", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want Level
	}{
		{"debug", DEBUG},
		{"INFO", INFO},
		{"Warning", WARN},
		{"error", ERROR},
		{"bogus", INFO},
	}
	for _, c := range cases {
		if got := ParseLevel(c.in); got != c.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestTextFormatFields(t *testing.T) {
	l, buf := newTestLogger("axis")

	l.WithFields(Fields{"axis": "x", "steps": 1000}).Info("motion started")

	out := buf.String()
	if !strings.Contains(out, "motion started") {
		t.Fatalf("message missing: %s", out)
	}
	// Fields are sorted by key.
	if !strings.Contains(out, "{axis=x, steps=1000}") {
		t.Errorf("fields not formatted as expected: %s", out)
	}
	if !strings.Contains(out, "axis:") {
		t.Errorf("prefix missing: %s", out)
	}
}

func TestJSONFormat(t *testing.T) {
	l, buf := newTestLogger("gcode")
	l.SetFormat(FormatJSON)

	l.WithField("line", "G1 X10").Warn("slow parse")

	var entry struct {
		Level   string                 `json:"level"`
		Logger  string                 `json:"logger"`
		Message string                 `json:"message"`
		Fields  map[string]interface{} `json:"fields"`
	}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, buf.String())
	}
	if entry.Level != "WARN" || entry.Logger != "gcode" || entry.Message != "slow parse" {
		t.Errorf("unexpected entry: %+v", entry)
	}
	if entry.Fields["line"] != "G1 X10" {
		t.Errorf("field missing: %+v", entry.Fields)
	}
}

func TestWithPrefixInheritsSettings(t *testing.T) {
	l, buf := newTestLogger("root")
	l.SetLevel(ERROR)

	child := l.WithPrefix("child")
	child.Warn("should be filtered")
	child.Error("should appear")

	out := buf.String()
	if strings.Contains(out, "should be filtered") {
		t.Errorf("child did not inherit level: %s", out)
	}
	if !strings.Contains(out, "should appear") {
		t.Errorf("child lost writer: %s", out)
	}
}
