package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCounterAndGauge(t *testing.T) {
	reg := NewRegistry()
	c := reg.NewCounter("test_total", "A test counter.", nil)
	g := reg.NewGauge("test_value", "A test gauge.", nil)

	c.Inc()
	c.Add(4)
	g.Set(2.5)

	if c.Value() != 5 {
		t.Errorf("counter = %d, want 5", c.Value())
	}
	if g.Value() != 2.5 {
		t.Errorf("gauge = %v, want 2.5", g.Value())
	}
}

func TestExportFormat(t *testing.T) {
	reg := NewRegistry()
	reg.NewCounter("steps_total", "Steps.", Labels{"axis": "x"}).Add(42)
	reg.NewCounter("steps_total", "Steps.", Labels{"axis": "y"}).Add(7)
	reg.NewGauge("interval_us", "Interval.", nil).Set(620)

	out := reg.Export()

	for _, want := range []string{
		"# HELP steps_total Steps.",
		"# TYPE steps_total counter",
		`steps_total{axis="x"} 42`,
		`steps_total{axis="y"} 7`,
		"# TYPE interval_us gauge",
		"interval_us 620",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("export missing %q:\n%s", want, out)
		}
	}
	// HELP/TYPE emitted once per family despite two series.
	if strings.Count(out, "# TYPE steps_total") != 1 {
		t.Errorf("duplicate family headers:\n%s", out)
	}
}

func TestHandler(t *testing.T) {
	reg := NewRegistry()
	reg.NewCounter("hits_total", "Hits.", nil).Inc()

	rec := httptest.NewRecorder()
	reg.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "hits_total 1") {
		t.Errorf("body = %q", rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "text/plain") {
		t.Errorf("content type = %q", ct)
	}
}
