package hw

// SimClock is a manually advanced Clock for tests and simulation. It is not
// safe for concurrent use; the motion loop is single threaded by design.
type SimClock struct {
	Micros uint64
}

func (c *SimClock) NowMicros() uint64 { return c.Micros }
func (c *SimClock) NowMillis() uint64 { return c.Micros / 1000 }

func (c *SimClock) BusyWaitMicros(n uint64) {
	c.Micros += n
}

// Advance moves the simulated clock forward by n microseconds.
func (c *SimClock) Advance(n uint64) {
	c.Micros += n
}

// PinEdge records one transition on a RecordingPin.
type PinEdge struct {
	Level  bool
	Micros uint64
}

// RecordingPin is an OutputPin that records every transition, optionally
// timestamped against a SimClock.
type RecordingPin struct {
	Clock *SimClock
	Edges []PinEdge
	Level bool
}

func (p *RecordingPin) Write(level bool) {
	var now uint64
	if p.Clock != nil {
		now = p.Clock.NowMicros()
	}
	p.Level = level
	p.Edges = append(p.Edges, PinEdge{Level: level, Micros: now})
}

// Pulses counts complete high/low pulse pairs recorded on the pin.
func (p *RecordingPin) Pulses() int {
	n := 0
	for _, e := range p.Edges {
		if e.Level {
			n++
		}
	}
	return n
}
