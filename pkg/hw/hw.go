// Package hw defines the hardware collaborator contracts consumed by the
// motion core: digital output pins, the microsecond clock, and the angular
// servo. Real implementations live outside this module (GPIO drivers, RC
// servo PWM); the package ships simulated versions for tests and for
// running the controller without hardware attached.
package hw

import (
	"sync"
	"time"
)

// OutputPin is a single digital output line.
type OutputPin interface {
	// Write drives the pin high (true) or low (false).
	Write(level bool)
}

// Clock provides the monotonic time base for step scheduling.
type Clock interface {
	NowMicros() uint64
	NowMillis() uint64

	// BusyWaitMicros spins for n microseconds without yielding. Used only
	// for the step pulse width, which must not be preempted.
	BusyWaitMicros(n uint64)
}

// Servo is a single angular actuator with immediate positioning.
type Servo interface {
	// SetAngle moves the servo to the given angle in degrees. Callers are
	// expected to pass a value already clamped to the servo's range.
	SetAngle(degrees int)
	Angle() int
}

// ServoMinAngle and ServoMaxAngle bound the accepted servo range.
const (
	ServoMinAngle = 0
	ServoMaxAngle = 180
)

// ClampAngle clamps an angle to the servo's accepted range.
func ClampAngle(degrees int) int {
	if degrees < ServoMinAngle {
		return ServoMinAngle
	}
	if degrees > ServoMaxAngle {
		return ServoMaxAngle
	}
	return degrees
}

// WallClock implements Clock against the process monotonic clock.
type WallClock struct {
	base time.Time
}

// NewWallClock returns a Clock whose zero point is the moment of creation.
func NewWallClock() *WallClock {
	return &WallClock{base: time.Now()}
}

func (c *WallClock) NowMicros() uint64 {
	return uint64(time.Since(c.base).Microseconds())
}

func (c *WallClock) NowMillis() uint64 {
	return uint64(time.Since(c.base).Milliseconds())
}

func (c *WallClock) BusyWaitMicros(n uint64) {
	deadline := c.NowMicros() + n
	for c.NowMicros() < deadline {
	}
}

// InvertedPin wraps a pin with inverted logic (active low wiring).
type InvertedPin struct {
	Pin OutputPin
}

func (p InvertedPin) Write(level bool) {
	p.Pin.Write(!level)
}

// NopPin is an output pin with no backing hardware.
type NopPin struct{}

func (NopPin) Write(bool) {}

// StateServo is a Servo that only tracks the last commanded angle. It backs
// the controller when no PWM driver is attached, and tests.
type StateServo struct {
	mu    sync.Mutex
	angle int
}

func (s *StateServo) SetAngle(degrees int) {
	s.mu.Lock()
	s.angle = degrees
	s.mu.Unlock()
}

func (s *StateServo) Angle() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.angle
}
