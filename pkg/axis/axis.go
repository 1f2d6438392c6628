// Package axis holds the per-axis motion state and the two per-tick
// schedulers that drive it: the acceleration ramp and the step pulse
// generator. All scheduling is cooperative; nothing in this package blocks
// for longer than one step pulse width.
package axis

import (
	"stepmotion/pkg/hw"
)

// Timing constants shared by every axis. Intervals are microseconds
// between step pulses; a lower interval means a faster motor.
const (
	// StartInterval is the interval every ramp begins from.
	StartInterval uint64 = 10000

	// MinInterval is the fastest interval a target may be set to.
	MinInterval uint64 = 200

	// PulseWidth is the step pulse high time in microseconds.
	PulseWidth uint64 = 5

	// RampMillis is the fixed duration of the acceleration ramp.
	RampMillis uint64 = 1000
)

// ClampInterval clamps a target interval into [MinInterval, StartInterval].
func ClampInterval(us uint64) uint64 {
	if us < MinInterval {
		return MinInterval
	}
	if us > StartInterval {
		return StartInterval
	}
	return us
}

// Config describes one axis. Values come from the config file, with
// defaults reflecting the different gearing on each motor.
type Config struct {
	// Letter is the upper-case axis letter (X, Y, Z, E, R, T).
	Letter byte

	// StepsPerMM converts G-code millimeter operands to step counts.
	StepsPerMM float64

	// DefaultInterval is the target interval used when a move names no
	// feed rate.
	DefaultInterval uint64

	// Pin names, for logging and status only; the Axis itself holds the
	// resolved OutputPin handles.
	PulsePin  string
	DirPin    string
	EnablePin string
}

// Pins are the resolved output lines for one axis.
type Pins struct {
	Pulse  hw.OutputPin
	Dir    hw.OutputPin
	Enable hw.OutputPin
}

// Axis is the mutable motion state for one stepper. One instance exists
// per physical axis for the process lifetime, owned by the motion loop and
// mutated only from its thread.
type Axis struct {
	Cfg  Config
	Pins Pins

	// TargetInterval is the commanded steady-state interval. Always within
	// [MinInterval, StartInterval].
	TargetInterval uint64

	// CurrentInterval ramps from StartInterval down to TargetInterval over
	// RampMillis, then holds.
	CurrentInterval uint64

	// Running gates all pulse emission.
	Running bool

	// Forward mirrors the direction pin level.
	Forward bool

	// LastStepMicros is when the last pulse was emitted.
	LastStepMicros uint64

	// AccelStartMillis is when the current ramp began.
	AccelStartMillis uint64

	// TargetSteps bounds the motion; 0 means unbounded.
	TargetSteps int64

	// CurrentSteps counts pulses since the motion started. Only advanced
	// while the motion is bounded.
	CurrentSteps int64
}

// New creates an Axis from its config and resolved pins. The enable line is
// asserted immediately; typical stepper drivers (A4988, DRV8825) hold the
// motor when enabled even while no pulses arrive.
func New(cfg Config, pins Pins) *Axis {
	a := &Axis{
		Cfg:             cfg,
		Pins:            pins,
		TargetInterval:  ClampInterval(cfg.DefaultInterval),
		CurrentInterval: StartInterval,
	}
	a.Pins.Enable.Write(true)
	return a
}

// Letter returns the axis letter.
func (a *Axis) Letter() byte {
	return a.Cfg.Letter
}

// SetTargetInterval sets the steady-state interval, clamping out-of-range
// values rather than rejecting them.
func (a *Axis) SetTargetInterval(us uint64) {
	a.TargetInterval = ClampInterval(us)
}

// SetTargetSteps sets the step bound for the next motion. Negative counts
// are coerced to 0, meaning unbounded. Does not start motion.
func (a *Axis) SetTargetSteps(n int64) {
	if n < 0 {
		n = 0
	}
	a.TargetSteps = n
}

// StartUnbounded begins an endless motion in the given direction and
// restarts the ramp from StartInterval.
func (a *Axis) StartUnbounded(clk hw.Clock, forward bool) {
	a.TargetSteps = 0
	a.CurrentSteps = 0
	a.start(clk, forward)
}

// StartBounded begins a motion of exactly steps pulses in the given
// direction. A non-positive count is treated as unbounded, matching
// SetTargetSteps.
func (a *Axis) StartBounded(clk hw.Clock, steps int64, forward bool) {
	if steps < 0 {
		steps = 0
	}
	a.TargetSteps = steps
	a.CurrentSteps = 0
	a.start(clk, forward)
}

func (a *Axis) start(clk hw.Clock, forward bool) {
	a.Forward = forward
	a.Pins.Dir.Write(forward)
	a.CurrentInterval = StartInterval
	a.AccelStartMillis = clk.NowMillis()
	a.LastStepMicros = clk.NowMicros()
	a.Running = true
}

// Stop halts the axis immediately. Both step counters reset so a following
// motion starts clean; ramp state is irrelevant once stopped.
func (a *Axis) Stop() {
	a.Running = false
	a.TargetSteps = 0
	a.CurrentSteps = 0
}

// Advance moves the acceleration ramp one tick forward. No-op while the
// axis is stopped. The interpolation runs StartInterval down to
// TargetInterval over RampMillis with a clamp so it never undershoots the
// target; targets above StartInterval take effect only at ramp completion.
func (a *Axis) Advance(nowMillis uint64) {
	if !a.Running {
		return
	}
	elapsed := nowMillis - a.AccelStartMillis
	if elapsed >= RampMillis {
		a.CurrentInterval = a.TargetInterval
		return
	}
	progress := float64(elapsed) / float64(RampMillis)
	interval := float64(StartInterval) - progress*(float64(StartInterval)-float64(a.TargetInterval))
	if interval < float64(a.TargetInterval) {
		interval = float64(a.TargetInterval)
	}
	a.CurrentInterval = uint64(interval)
}

// Tick emits at most one step pulse if the axis is due. The bounded
// completion check runs before pulse timing so a finished motion never
// emits an extra pulse; on completion the axis stops and both counters
// reset on the same tick. Returns true if a pulse was emitted.
func (a *Axis) Tick(nowMicros uint64, clk hw.Clock) bool {
	if !a.Running {
		return false
	}
	if a.TargetSteps > 0 && a.CurrentSteps >= a.TargetSteps {
		a.Stop()
		return false
	}
	if nowMicros-a.LastStepMicros < a.CurrentInterval {
		return false
	}
	a.Pins.Pulse.Write(true)
	clk.BusyWaitMicros(PulseWidth)
	a.Pins.Pulse.Write(false)
	a.LastStepMicros = nowMicros
	if a.TargetSteps > 0 {
		a.CurrentSteps++
	}
	return true
}
