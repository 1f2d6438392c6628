// Package command implements the short-form line protocol: single-letter
// axis/servo selection followed by one-letter or assignment sub-commands.
//
// The protocol is stateful: a selection letter picks the target and later
// lines without a selection act on it. The selection lives in the
// Dispatcher, not in package state, so tests can run independent
// dispatchers side by side.
package command

import (
	"fmt"
	"strconv"
	"strings"

	"stepmotion/pkg/axis"
	"stepmotion/pkg/cmderr"
	"stepmotion/pkg/hw"
	"stepmotion/pkg/log"
)

// Responder receives one acknowledgement or diagnostic line per command.
type Responder interface {
	WriteLine(s string)
}

// Dispatcher parses short-form command lines and mutates axis and servo
// state. Not safe for concurrent use; the motion loop owns it.
type Dispatcher struct {
	axes   map[byte]*axis.Axis
	servo  hw.Servo
	clock  hw.Clock
	out    Responder
	logger *log.Logger

	// Selection state. servoSelected wins over selected when set.
	selected      *axis.Axis
	servoSelected bool
}

// New creates a Dispatcher over the given axes. The first axis in the
// slice starts out selected, mirroring firmware that boots with X active.
func New(axes []*axis.Axis, servo hw.Servo, clock hw.Clock, out Responder, logger *log.Logger) *Dispatcher {
	d := &Dispatcher{
		axes:   make(map[byte]*axis.Axis, len(axes)),
		servo:  servo,
		clock:  clock,
		out:    out,
		logger: logger,
	}
	for _, a := range axes {
		d.axes[a.Letter()] = a
	}
	if len(axes) > 0 {
		d.selected = axes[0]
	}
	return d
}

// Selected returns the currently selected axis and whether the servo is
// selected instead.
func (d *Dispatcher) Selected() (*axis.Axis, bool) {
	return d.selected, d.servoSelected
}

// Dispatch handles one trimmed, non-empty command line.
func (d *Dispatcher) Dispatch(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	rest := line
	first := upper(line[0])
	if first == 'S' {
		d.servoSelected = true
		d.out.WriteLine("servo selected")
		rest = strings.TrimSpace(line[1:])
		if rest == "" {
			return
		}
	} else if a, ok := d.axes[first]; ok {
		d.selected = a
		d.servoSelected = false
		d.out.WriteLine(fmt.Sprintf("axis %c selected", first))
		rest = strings.TrimSpace(line[1:])
		if rest == "" {
			return
		}
	}

	if d.servoSelected {
		d.dispatchServo(rest)
		return
	}
	if d.selected == nil {
		d.reject(cmderr.Unknown(line))
		return
	}
	d.dispatchAxis(rest)
}

func (d *Dispatcher) dispatchServo(cmd string) {
	key, val, hasVal := splitAssignment(cmd)
	if key == "p" && hasVal {
		angle := hw.ClampAngle(val)
		d.servo.SetAngle(angle)
		d.logger.WithField("angle", angle).Debug("servo positioned")
		d.out.WriteLine(fmt.Sprintf("servo angle %d", angle))
		return
	}
	d.reject(cmderr.Unknown(cmd))
}

func (d *Dispatcher) dispatchAxis(cmd string) {
	a := d.selected
	letter := a.Letter()
	key, val, hasVal := splitAssignment(cmd)

	switch {
	case key == "a" && !hasVal:
		a.StartUnbounded(d.clock, true)
		d.logMotion(a, "unbounded forward")
		d.out.WriteLine(fmt.Sprintf("axis %c forward", letter))

	case key == "d" && !hasVal:
		a.StartUnbounded(d.clock, false)
		d.logMotion(a, "unbounded reverse")
		d.out.WriteLine(fmt.Sprintf("axis %c reverse", letter))

	case key == "w" && !hasVal:
		a.Stop()
		d.logger.WithField("axis", string(letter)).Debug("stopped")
		d.out.WriteLine(fmt.Sprintf("axis %c stopped", letter))

	case key == "v" && hasVal:
		a.SetTargetInterval(clampNonNegative(val))
		d.out.WriteLine(fmt.Sprintf("axis %c interval %dus", letter, a.TargetInterval))

	case key == "s" && hasVal:
		a.SetTargetSteps(int64(val))
		d.out.WriteLine(fmt.Sprintf("axis %c target steps %d", letter, a.TargetSteps))

	case key == "m" && hasVal:
		a.StartBounded(d.clock, int64(val), true)
		d.logMotion(a, "bounded forward")
		d.out.WriteLine(fmt.Sprintf("axis %c forward %d steps", letter, a.TargetSteps))

	case key == "n" && hasVal:
		a.StartBounded(d.clock, int64(val), false)
		d.logMotion(a, "bounded reverse")
		d.out.WriteLine(fmt.Sprintf("axis %c reverse %d steps", letter, a.TargetSteps))

	default:
		d.reject(cmderr.Unknown(cmd))
	}
}

func (d *Dispatcher) logMotion(a *axis.Axis, kind string) {
	d.logger.WithFields(log.Fields{
		"axis":     string(a.Letter()),
		"steps":    a.TargetSteps,
		"interval": a.TargetInterval,
	}).Debug(kind)
}

func (d *Dispatcher) reject(err *cmderr.Error) {
	d.logger.WithField("code", string(err.Code)).Debug("rejected: %s", err.Message)
	d.out.WriteLine(err.Error())
}

// splitAssignment splits a sub-command into its letter key and optional
// integer operand. Malformed numeric text parses as zero rather than being
// rejected.
func splitAssignment(cmd string) (key string, val int, hasVal bool) {
	cmd = strings.TrimSpace(cmd)
	if idx := strings.IndexByte(cmd, '='); idx >= 0 {
		key = strings.ToLower(strings.TrimSpace(cmd[:idx]))
		n, err := strconv.Atoi(strings.TrimSpace(cmd[idx+1:]))
		if err != nil {
			n = 0
		}
		return key, n, true
	}
	return strings.ToLower(cmd), 0, false
}

func clampNonNegative(v int) uint64 {
	if v < 0 {
		return 0
	}
	return uint64(v)
}

func upper(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - 'a' + 'A'
	}
	return b
}
