package loop

import (
	"context"
	"strings"
	"testing"
	"time"

	"stepmotion/pkg/axis"
	"stepmotion/pkg/hw"
	"stepmotion/pkg/log"
)

type fakeTransport struct {
	in  []string
	out []string
}

func (f *fakeTransport) ReadLine() (string, bool) {
	if len(f.in) == 0 {
		return "", false
	}
	line := f.in[0]
	f.in = f.in[1:]
	return line, true
}

func (f *fakeTransport) WriteLine(s string) {
	f.out = append(f.out, s)
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func quietLogger() *log.Logger {
	l := log.New("test")
	l.SetLevel(log.ERROR)
	l.SetWriter(discard{})
	return l
}

func testAxes(clk hw.Clock) []*axis.Axis {
	simClk, _ := clk.(*hw.SimClock)
	var axes []*axis.Axis
	for _, letter := range []byte{'X', 'Y', 'Z'} {
		axes = append(axes, axis.New(axis.Config{
			Letter:          letter,
			StepsPerMM:      80,
			DefaultInterval: 620,
		}, axis.Pins{
			Pulse:  &hw.RecordingPin{Clock: simClk},
			Dir:    &hw.RecordingPin{Clock: simClk},
			Enable: &hw.RecordingPin{Clock: simClk},
		}))
	}
	return axes
}

func newTestLoop(clk hw.Clock) (*Loop, *fakeTransport) {
	trans := &fakeTransport{}
	l := New(clk, testAxes(clk), &hw.StateServo{}, trans, nil, quietLogger())
	return l, trans
}

func pulsePin(a *axis.Axis) *hw.RecordingPin {
	return a.Pins.Pulse.(*hw.RecordingPin)
}

func TestRoutingShortFormAndGcode(t *testing.T) {
	clk := &hw.SimClock{}
	l, trans := newTestLoop(clk)

	trans.in = []string{"xa", "w", "M104 S45"}
	for i := 0; i < 3; i++ {
		l.Tick()
	}

	if l.Axes()[0].Running {
		t.Errorf("axis X still running after stop")
	}
	if got := l.Servo().Angle(); got != 45 {
		t.Errorf("servo angle = %d, want 45", got)
	}
	if got := l.counters.Commands.Value(); got != 3 {
		t.Errorf("command count = %d, want 3", got)
	}
}

func TestLowercaseGcodeRoutes(t *testing.T) {
	clk := &hw.SimClock{}
	l, trans := newTestLoop(clk)

	trans.in = []string{"m104 s90"}
	l.Tick()

	if got := l.Servo().Angle(); got != 90 {
		t.Errorf("servo angle = %d, want 90", got)
	}
}

func TestBlankLinesNotCounted(t *testing.T) {
	clk := &hw.SimClock{}
	l, trans := newTestLoop(clk)

	trans.in = []string{"   ", ""}
	l.Tick()
	l.Tick()

	if got := l.counters.Commands.Value(); got != 0 {
		t.Errorf("command count = %d, want 0", got)
	}
}

func TestBoundedMotionCompletes(t *testing.T) {
	clk := &hw.SimClock{}
	l, trans := newTestLoop(clk)
	x := l.Axes()[0]

	trans.in = []string{"xm=5"}
	l.Tick()
	if !x.Running {
		t.Fatalf("axis X not started")
	}

	for i := 0; x.Running && i < 1_000_000; i++ {
		clk.Advance(500)
		l.Tick()
	}
	if x.Running {
		t.Fatalf("bounded motion never completed")
	}
	if got := pulsePin(x).Pulses(); got != 5 {
		t.Errorf("pulses = %d, want 5", got)
	}
	if got := l.counters.Steps[0].Value(); got != 5 {
		t.Errorf("step counter = %d, want 5", got)
	}
	// The other axes stayed put.
	for _, a := range l.Axes()[1:] {
		if pulsePin(a).Pulses() != 0 {
			t.Errorf("axis %c pulsed without a command", a.Letter())
		}
	}
}

func TestSnapshotReflectsMotion(t *testing.T) {
	clk := &hw.SimClock{}
	l, trans := newTestLoop(clk)

	trans.in = []string{"xa"}
	l.Tick()

	snap := l.Snapshot()
	if !snap.Axes[0].Running || !snap.Axes[0].Forward {
		t.Fatalf("snapshot after start = %+v", snap.Axes[0])
	}

	// A published snapshot is a copy, not an alias of live state.
	l.Axes()[0].Stop()
	if !snap.Axes[0].Running {
		t.Errorf("snapshot mutated by later state change")
	}

	// Periodic publication picks the stop up without another command.
	for i := 0; i < snapshotEvery+1; i++ {
		l.Tick()
	}
	if l.Snapshot().Axes[0].Running {
		t.Errorf("snapshot never republished after stop")
	}
}

func TestSnapshotAvailableBeforeFirstTick(t *testing.T) {
	clk := &hw.SimClock{}
	l, _ := newTestLoop(clk)

	snap := l.Snapshot()
	if snap == nil || len(snap.Axes) != 3 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if snap.Axes[0].TargetInterval != 620 {
		t.Errorf("interval = %d, want 620", snap.Axes[0].TargetInterval)
	}
}

func TestInjectDrainedBeforeTransport(t *testing.T) {
	clk := &hw.SimClock{}
	l, trans := newTestLoop(clk)

	trans.in = []string{"ya"}
	if !l.Inject("xa") {
		t.Fatalf("inject rejected with empty queue")
	}
	l.Tick()

	if !l.Axes()[0].Running {
		t.Errorf("injected command not dispatched first")
	}
	if l.Axes()[1].Running {
		t.Errorf("transport command dispatched in the same tick")
	}
}

func TestInjectDropsWhenFull(t *testing.T) {
	clk := &hw.SimClock{}
	l, _ := newTestLoop(clk)

	n := 0
	for l.Inject("w") {
		n++
		if n > 10_000 {
			t.Fatalf("inject queue never filled")
		}
	}
	if n == 0 {
		t.Fatalf("first inject rejected")
	}
}

func TestMirrorSeesResponses(t *testing.T) {
	clk := &hw.SimClock{}
	l, trans := newTestLoop(clk)

	var mirrored []string
	l.SetMirror(func(s string) { mirrored = append(mirrored, s) })

	trans.in = []string{"x"}
	l.Tick()

	want := "axis X selected"
	if len(trans.out) != 1 || trans.out[0] != want {
		t.Errorf("transport out = %v, want [%q]", trans.out, want)
	}
	if len(mirrored) != 1 || mirrored[0] != want {
		t.Errorf("mirror = %v, want [%q]", mirrored, want)
	}
}

// autoClock advances itself on every read so WaitAllIdle, which never
// sleeps, still sees time pass.
type autoClock struct {
	micros uint64
	step   uint64
}

func (c *autoClock) NowMicros() uint64 {
	c.micros += c.step
	return c.micros
}

func (c *autoClock) NowMillis() uint64 { return c.micros / 1000 }

func (c *autoClock) BusyWaitMicros(n uint64) { c.micros += n }

func TestWaitAllIdleFinishesMotions(t *testing.T) {
	clk := &autoClock{step: 200}
	l, _ := newTestLoop(clk)
	x := l.Axes()[0]

	x.StartBounded(clk, 10, true)
	l.WaitAllIdle()

	if x.Running {
		t.Fatalf("axis X still running after WaitAllIdle")
	}
	if got := pulsePin(x).Pulses(); got != 10 {
		t.Errorf("pulses = %d, want 10", got)
	}
}

func TestGcodeMoveThroughLoop(t *testing.T) {
	clk := &autoClock{step: 200}
	l, trans := newTestLoop(clk)
	x := l.Axes()[0]

	trans.in = []string{"G1 X1 F600"}
	l.Tick()
	if !x.Running {
		t.Fatalf("move not started")
	}
	l.WaitAllIdle()

	if got := pulsePin(x).Pulses(); got != 80 {
		t.Errorf("pulses = %d, want 80", got)
	}
	found := false
	for _, line := range trans.out {
		if strings.Contains(line, "move X") {
			found = true
		}
	}
	if !found {
		t.Errorf("no move acknowledgement in %v", trans.out)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	l, trans := newTestLoop(hw.NewWallClock())

	trans.in = []string{"xa"}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run did not return after cancel")
	}
	for _, a := range l.Axes() {
		if a.Running {
			t.Errorf("axis %c left running after shutdown", a.Letter())
		}
	}
}
