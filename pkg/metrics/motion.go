package metrics

import (
	"strings"

	"stepmotion/pkg/axis"
)

// MotionCounters groups the counters and gauges the motion loop updates on
// its hot path.
type MotionCounters struct {
	// Commands counts dispatched input lines.
	Commands *Counter

	// Steps counts emitted step pulses, indexed like the loop's axes.
	Steps []*Counter

	// Running and Interval expose each axis's live state, indexed like
	// the loop's axes.
	Running  []*Gauge
	Interval []*Gauge
}

// NewMotionCounters registers the standard motion counters. A nil registry
// yields functional but unregistered counters so tests can run without a
// metrics endpoint.
func NewMotionCounters(reg *Registry, axes []*axis.Axis) *MotionCounters {
	if reg == nil {
		reg = NewRegistry()
	}
	mc := &MotionCounters{
		Commands: reg.NewCounter("stepmotion_commands_total", "Command lines dispatched.", nil),
	}
	for _, a := range axes {
		labels := Labels{"axis": strings.ToLower(string(a.Letter()))}
		mc.Steps = append(mc.Steps, reg.NewCounter(
			"stepmotion_steps_total",
			"Step pulses emitted per axis.",
			labels,
		))
		mc.Running = append(mc.Running, reg.NewGauge(
			"stepmotion_axis_running",
			"Whether the axis is currently moving.",
			labels,
		))
		mc.Interval = append(mc.Interval, reg.NewGauge(
			"stepmotion_axis_interval_us",
			"Current pulse interval per axis in microseconds.",
			labels,
		))
	}
	return mc
}
