// Package gcode implements the supported G/M code subset: G0/G1 bounded
// moves, G28, M104/M280 servo positioning, and M114 position report.
//
// Moves are strictly sequential: a G0/G1 first waits for every axis to go
// idle, so two G-code moves never overlap each other or a short-form
// motion. The wait is cooperative; the motion loop keeps ticking while the
// dispatcher waits.
package gcode

import (
	"fmt"
	"math"
	"strings"

	"stepmotion/pkg/axis"
	"stepmotion/pkg/cmderr"
	"stepmotion/pkg/hw"
	"stepmotion/pkg/log"
)

// microsPerMinute converts a feed rate in units/minute to a per-step
// interval in microseconds.
const microsPerMinute = 60_000_000

// Responder receives acknowledgement and diagnostic lines.
type Responder interface {
	WriteLine(s string)
}

// Dispatcher executes G/M code lines against the axes and servo. G-code
// always names axes explicitly; it never touches the short-form protocol's
// selection state.
type Dispatcher struct {
	axes   []*axis.Axis
	servo  hw.Servo
	clock  hw.Clock
	out    Responder
	logger *log.Logger

	// waitIdle blocks until every axis is idle while keeping the motion
	// loop ticking. Installed by the loop.
	waitIdle func()
}

// New creates a Dispatcher. waitIdle must keep axis scheduling alive while
// it blocks, or in-flight bounded motions would never finish.
func New(axes []*axis.Axis, servo hw.Servo, clock hw.Clock, out Responder, waitIdle func(), logger *log.Logger) *Dispatcher {
	return &Dispatcher{
		axes:     axes,
		servo:    servo,
		clock:    clock,
		out:      out,
		logger:   logger,
		waitIdle: waitIdle,
	}
}

// Dispatch executes one G/M code line.
func (d *Dispatcher) Dispatch(line string) {
	clean := StripComments(line)
	if clean == "" {
		return
	}
	upper := strings.ToUpper(clean)

	// The code is the leading letter plus digits, so compact lines like
	// G1X10F600 parse the same as spaced ones.
	end := 1
	for end < len(upper) && upper[end] >= '0' && upper[end] <= '9' {
		end++
	}
	code := upper[:end]

	switch code {
	case "G0", "G1":
		d.move(upper)
	case "G28":
		d.home()
	case "M104":
		d.setServo(upper, false)
	case "M280":
		d.setServo(upper, true)
	case "M114":
		d.reportPosition()
	default:
		err := cmderr.UnknownCode(line, code)
		d.logger.WithField("code", code).Debug("rejected g-code")
		d.out.WriteLine(err.Error())
	}
}

// move handles G0/G1. Each named axis starts an independent bounded motion
// with its own ramp; there is no interpolation between axes.
func (d *Dispatcher) move(line string) {
	d.waitIdle()

	feed := Word(line, 'F')
	started := 0
	for _, a := range d.axes {
		operand := Word(line, a.Letter())
		if !operand.Present() {
			continue
		}
		steps := int64(math.Round(operand.Float() * a.Cfg.StepsPerMM))
		if steps == 0 {
			continue
		}

		interval := a.Cfg.DefaultInterval
		if feed.Present() && feed.Float() > 0 {
			interval = uint64(microsPerMinute / (feed.Float() * a.Cfg.StepsPerMM))
		}
		a.SetTargetInterval(interval)

		forward := steps > 0
		if steps < 0 {
			steps = -steps
		}
		a.StartBounded(d.clock, steps, forward)
		started++

		d.logger.WithFields(log.Fields{
			"axis":     string(a.Letter()),
			"steps":    a.TargetSteps,
			"forward":  forward,
			"interval": a.TargetInterval,
		}).Debug("move started")
		d.out.WriteLine(fmt.Sprintf("move %c: %d steps at %dus", a.Letter(), a.TargetSteps, a.TargetInterval))
	}
	if started == 0 {
		d.out.WriteLine("move: nothing to do")
	}
}

// home handles G28. There are no homing switches on this controller, so
// the only safe interpretation is an immediate stop of everything.
func (d *Dispatcher) home() {
	for _, a := range d.axes {
		a.Stop()
	}
	d.logger.Info("G28: all axes stopped")
	d.out.WriteLine(cmderr.Unsupported("G28", "homing requires endstop switches; all axes stopped").Error())
}

// setServo handles M104 and M280. Both take the target angle in S; M280
// additionally accepts a servo index P, which is reported but ignored
// since only one servo is fitted.
func (d *Dispatcher) setServo(line string, withIndex bool) {
	s := Word(line, 'S')
	if !s.Present() {
		d.out.WriteLine(cmderr.MissingParam(line, 'S').Error())
		return
	}
	angle := hw.ClampAngle(s.Int())
	d.servo.SetAngle(angle)

	if withIndex {
		if p := Word(line, 'P'); p.Present() {
			d.out.WriteLine(fmt.Sprintf("servo %d angle %d", p.Int(), angle))
			return
		}
	}
	d.out.WriteLine(fmt.Sprintf("servo angle %d", angle))
}

// reportPosition handles M114. Absolute position is not tracked, only
// relative step counts per motion, so axes always report zero.
func (d *Dispatcher) reportPosition() {
	var sb strings.Builder
	for i, a := range d.axes {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%c:0.000", a.Letter())
	}
	fmt.Fprintf(&sb, " Servo:%d", d.servo.Angle())
	d.out.WriteLine(sb.String())
}
