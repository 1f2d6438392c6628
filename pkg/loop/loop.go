// Package loop runs the controller's single cooperative control loop. One
// tick polls for at most one input line, dispatches it, then advances the
// acceleration ramp and the pulse generator for every axis. Multi-axis
// motion is nothing more than this loop visiting each axis in turn, so no
// consumer may hold the loop longer than the tightest configured pulse
// interval.
package loop

import (
	"context"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"stepmotion/pkg/axis"
	"stepmotion/pkg/command"
	"stepmotion/pkg/gcode"
	"stepmotion/pkg/hw"
	"stepmotion/pkg/log"
	"stepmotion/pkg/metrics"
)

// Transport is the line-oriented command transport. ReadLine is a
// non-blocking poll; WriteLine must not block for longer than the latency
// budget allows.
type Transport interface {
	ReadLine() (string, bool)
	WriteLine(s string)
}

// Loop owns the axes, the servo, and both dispatchers and drives them from
// a single thread.
type Loop struct {
	clock  hw.Clock
	axes   []*axis.Axis
	servo  hw.Servo
	trans  Transport
	logger *log.Logger

	cmd *command.Dispatcher
	gc  *gcode.Dispatcher

	// inject receives lines from outside the transport, e.g. the API
	// server. Drained before the transport each tick.
	inject chan string

	// mirror, when set, receives a copy of every response line.
	mirror func(s string)

	counters *metrics.MotionCounters

	// snap is the published motion-state copy for readers on other
	// goroutines. Only the loop thread stores it.
	snap      atomic.Pointer[Snapshot]
	tickCount uint64
}

// AxisSnapshot is one axis in a published Snapshot.
type AxisSnapshot struct {
	Letter          byte
	Running         bool
	Forward         bool
	TargetSteps     int64
	CurrentSteps    int64
	TargetInterval  uint64
	CurrentInterval uint64
	StepsPerMM      float64
}

// Snapshot is an immutable copy of motion state. Axis fields are owned by
// the loop thread and must never be read directly from other goroutines;
// consumers read the published Snapshot instead.
type Snapshot struct {
	Axes       []AxisSnapshot
	ServoAngle int
}

// New builds a Loop over the given axes and servo.
func New(clk hw.Clock, axes []*axis.Axis, servo hw.Servo, trans Transport, reg *metrics.Registry, logger *log.Logger) *Loop {
	l := &Loop{
		clock:    clk,
		axes:     axes,
		servo:    servo,
		trans:    trans,
		logger:   logger,
		inject:   make(chan string, 64),
		counters: metrics.NewMotionCounters(reg, axes),
	}
	out := &responder{loop: l}
	l.cmd = command.New(axes, servo, clk, out, logger.WithPrefix("command"))
	l.gc = gcode.New(axes, servo, clk, out, l.WaitAllIdle, logger.WithPrefix("gcode"))
	l.publishSnapshot()
	return l
}

// responder writes responses to the transport and any mirror.
type responder struct {
	loop *Loop
}

func (r *responder) WriteLine(s string) {
	r.loop.trans.WriteLine(s)
	if r.loop.mirror != nil {
		r.loop.mirror(s)
	}
}

// SetMirror installs a secondary consumer for response lines. Must be set
// before Run.
func (l *Loop) SetMirror(fn func(s string)) {
	l.mirror = fn
}

// Inject queues a command line from outside the transport. Safe to call
// from other goroutines; drops the line if the queue is full rather than
// block the caller.
func (l *Loop) Inject(line string) bool {
	select {
	case l.inject <- line:
		return true
	default:
		return false
	}
}

// Axes returns the axes driven by this loop.
func (l *Loop) Axes() []*axis.Axis {
	return l.axes
}

// Servo returns the servo driven by this loop.
func (l *Loop) Servo() hw.Servo {
	return l.servo
}

// Tick runs one loop iteration: at most one pending input line, then one
// scheduling pass over every axis.
func (l *Loop) Tick() {
	if line, ok := l.pollLine(); ok {
		l.dispatch(line)
		l.publishSnapshot()
	}
	l.tickAxes()
}

// Snapshot returns the most recently published motion-state copy. Safe to
// call from any goroutine.
func (l *Loop) Snapshot() *Snapshot {
	return l.snap.Load()
}

// snapshotEvery is how many scheduling passes go by between periodic
// snapshot publications. Commands publish immediately; this only bounds
// how stale a snapshot can get while motions run.
const snapshotEvery = 256

func (l *Loop) publishSnapshot() {
	s := &Snapshot{ServoAngle: l.servo.Angle()}
	for _, a := range l.axes {
		s.Axes = append(s.Axes, AxisSnapshot{
			Letter:          a.Letter(),
			Running:         a.Running,
			Forward:         a.Forward,
			TargetSteps:     a.TargetSteps,
			CurrentSteps:    a.CurrentSteps,
			TargetInterval:  a.TargetInterval,
			CurrentInterval: a.CurrentInterval,
			StepsPerMM:      a.Cfg.StepsPerMM,
		})
	}
	l.snap.Store(s)
}

func (l *Loop) pollLine() (string, bool) {
	select {
	case line := <-l.inject:
		return line, true
	default:
	}
	return l.trans.ReadLine()
}

// dispatch routes one input line. Anything starting with G or M goes to
// the G-code dispatcher and never reaches the short-form parser.
func (l *Loop) dispatch(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	l.counters.Commands.Inc()

	first := line[0]
	if first >= 'a' && first <= 'z' {
		first -= 'a' - 'A'
	}
	if first == 'G' || first == 'M' {
		l.gc.Dispatch(line)
		return
	}
	l.cmd.Dispatch(line)
}

// tickAxes runs one scheduling pass over every axis regardless of how many
// are moving.
func (l *Loop) tickAxes() {
	nowMillis := l.clock.NowMillis()
	nowMicros := l.clock.NowMicros()
	for i, a := range l.axes {
		a.Advance(nowMillis)
		if a.Tick(nowMicros, l.clock) {
			l.counters.Steps[i].Inc()
		}
		running := 0.0
		if a.Running {
			running = 1
		}
		l.counters.Running[i].Set(running)
		l.counters.Interval[i].Set(float64(a.CurrentInterval))
	}

	l.tickCount++
	if l.tickCount%snapshotEvery == 0 {
		l.publishSnapshot()
	}
}

// WaitAllIdle blocks until no axis is running, while continuing to tick
// the axes so in-flight motions can finish. The yield keeps other
// goroutines (transport reader, API server) serviced without introducing a
// hard sleep that would cap the step rate.
func (l *Loop) WaitAllIdle() {
	for l.anyRunning() {
		l.tickAxes()
		runtime.Gosched()
	}
}

func (l *Loop) anyRunning() bool {
	for _, a := range l.axes {
		if a.Running {
			return true
		}
	}
	return false
}

// idleThrottle is how long the loop sleeps per iteration when nothing is
// moving and no input is pending, to avoid pegging a CPU core. Far below
// human-perceptible command latency, far above pulse timing needs at rest.
const idleThrottle = 200 * time.Microsecond

// Run drives Tick until the context is cancelled.
func (l *Loop) Run(ctx context.Context) {
	l.logger.WithField("axes", len(l.axes)).Info("motion loop running")
	for {
		select {
		case <-ctx.Done():
			for _, a := range l.axes {
				a.Stop()
			}
			l.logger.Info("motion loop stopped")
			return
		default:
		}

		l.Tick()

		if !l.anyRunning() && len(l.inject) == 0 {
			time.Sleep(idleThrottle)
		}
	}
}
