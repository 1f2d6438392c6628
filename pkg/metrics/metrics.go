// Package metrics provides Prometheus-compatible counters and gauges for
// the controller, exposed in text exposition format on the API mux.
//
// Counters are incremented from the motion loop's thread; atomics keep the
// scrape path from ever blocking the loop.
package metrics

import (
	"fmt"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// Labels are constant labels attached to a metric at registration.
type Labels map[string]string

func formatLabels(l Labels) string {
	if len(l) == 0 {
		return ""
	}
	keys := make([]string, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "%s=%q", k, l[k])
	}
	sb.WriteByte('}')
	return sb.String()
}

// Counter is a monotonically increasing value.
type Counter struct {
	value  atomic.Uint64
	name   string
	help   string
	labels Labels
}

// Inc increments the counter by one.
func (c *Counter) Inc() {
	c.value.Add(1)
}

// Add increments the counter by n.
func (c *Counter) Add(n uint64) {
	c.value.Add(n)
}

// Value returns the current count.
func (c *Counter) Value() uint64 {
	return c.value.Load()
}

// Gauge is a value that can go up and down.
type Gauge struct {
	bits   atomic.Uint64
	name   string
	help   string
	labels Labels
}

// Set sets the gauge value.
func (g *Gauge) Set(v float64) {
	g.bits.Store(math.Float64bits(v))
}

// Value returns the current gauge value.
func (g *Gauge) Value() float64 {
	return math.Float64frombits(g.bits.Load())
}

// Registry holds all registered metrics.
type Registry struct {
	mu       sync.Mutex
	counters []*Counter
	gauges   []*Gauge
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// NewCounter registers a counter with optional constant labels.
func (r *Registry) NewCounter(name, help string, labels Labels) *Counter {
	c := &Counter{name: name, help: help, labels: labels}
	r.mu.Lock()
	r.counters = append(r.counters, c)
	r.mu.Unlock()
	return c
}

// NewGauge registers a gauge with optional constant labels.
func (r *Registry) NewGauge(name, help string, labels Labels) *Gauge {
	g := &Gauge{name: name, help: help, labels: labels}
	r.mu.Lock()
	r.gauges = append(r.gauges, g)
	r.mu.Unlock()
	return g
}

// Export renders all metrics in Prometheus text exposition format. HELP
// and TYPE headers are emitted once per metric family.
func (r *Registry) Export() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var sb strings.Builder
	seen := make(map[string]bool)
	for _, c := range r.counters {
		if !seen[c.name] {
			fmt.Fprintf(&sb, "# HELP %s %s\n# TYPE %s counter\n", c.name, c.help, c.name)
			seen[c.name] = true
		}
		fmt.Fprintf(&sb, "%s%s %d\n", c.name, formatLabels(c.labels), c.Value())
	}
	for _, g := range r.gauges {
		if !seen[g.name] {
			fmt.Fprintf(&sb, "# HELP %s %s\n# TYPE %s gauge\n", g.name, g.help, g.name)
			seen[g.name] = true
		}
		fmt.Fprintf(&sb, "%s%s %g\n", g.name, formatLabels(g.labels), g.Value())
	}
	return sb.String()
}

// Handler returns an http.Handler serving the registry in text format.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		fmt.Fprint(w, r.Export())
	})
}
