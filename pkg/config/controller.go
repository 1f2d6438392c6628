package config

import (
	"fmt"

	"stepmotion/pkg/axis"
	"stepmotion/pkg/hw"
)

// AxisLetters lists the supported axes in protocol order.
var AxisLetters = []byte{'X', 'Y', 'Z', 'E', 'R', 'T'}

// AxisSettings is the resolved configuration for one axis.
type AxisSettings struct {
	Letter     byte
	Pulse      Pin
	Dir        Pin
	Enable     Pin
	StepsPerMM float64
	// DefaultInterval is the target interval (us/step) used when no feed
	// rate is given. Differs per axis to reflect gearing.
	DefaultInterval uint64
}

// ServoSettings is the resolved servo configuration.
type ServoSettings struct {
	Pin          Pin
	InitialAngle int
}

// ControllerSettings is the full resolved configuration.
type ControllerSettings struct {
	Device   string // serial device path; empty means stdio
	Baud     int
	APIAddr  string // websocket/metrics listen address; empty disables
	LogLevel string

	Axes  []AxisSettings
	Servo ServoSettings
}

// axisDefaults carries the built-in per-axis values. The default intervals
// match the speeds the original control panel seeded for each motor.
var axisDefaults = map[byte]AxisSettings{
	'X': {Letter: 'X', Pulse: Pin{Name: "D2"}, Dir: Pin{Name: "D5"}, Enable: Pin{Name: "D8", Invert: true}, StepsPerMM: 80, DefaultInterval: 620},
	'Y': {Letter: 'Y', Pulse: Pin{Name: "D3"}, Dir: Pin{Name: "D6"}, Enable: Pin{Name: "D8", Invert: true}, StepsPerMM: 80, DefaultInterval: 300},
	'Z': {Letter: 'Z', Pulse: Pin{Name: "D4"}, Dir: Pin{Name: "D7"}, Enable: Pin{Name: "D8", Invert: true}, StepsPerMM: 400, DefaultInterval: 50},
	'E': {Letter: 'E', Pulse: Pin{Name: "D12"}, Dir: Pin{Name: "D13"}, Enable: Pin{Name: "A2", Invert: true}, StepsPerMM: 93, DefaultInterval: 1500},
	'R': {Letter: 'R', Pulse: Pin{Name: "A0"}, Dir: Pin{Name: "A1"}, Enable: Pin{Name: "A2", Invert: true}, StepsPerMM: 40, DefaultInterval: 1500},
	'T': {Letter: 'T', Pulse: Pin{Name: "A3"}, Dir: Pin{Name: "A4"}, Enable: Pin{Name: "A5", Invert: true}, StepsPerMM: 40, DefaultInterval: 1500},
}

// Defaults returns the built-in configuration used when no file is given.
func Defaults() *ControllerSettings {
	cs := &ControllerSettings{
		Baud:     115200,
		LogLevel: "info",
		Servo:    ServoSettings{Pin: Pin{Name: "D11"}, InitialAngle: 90},
	}
	for _, letter := range AxisLetters {
		cs.Axes = append(cs.Axes, axisDefaults[letter])
	}
	return cs
}

// ParseControllerSettings loads a config file and resolves it against the
// built-in defaults. The raw Config is returned so callers can report
// options that were never consumed. Interval values are clamped into the valid range
// rather than rejected, matching the protocol's handling of out-of-range
// speeds.
func ParseControllerSettings(path string) (*ControllerSettings, *Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, nil, err
	}

	cs := Defaults()

	ctrl := cfg.GetSection("controller")
	cs.Device = ctrl.GetString("device", cs.Device)
	cs.Baud = int(ctrl.GetInt("baud", int64(cs.Baud)))
	cs.APIAddr = ctrl.GetString("api", cs.APIAddr)
	cs.LogLevel = ctrl.GetString("log_level", cs.LogLevel)

	for i := range cs.Axes {
		ax := &cs.Axes[i]
		name := fmt.Sprintf("axis %c", ax.Letter+'a'-'A')
		if !cfg.HasSection(name) {
			continue
		}
		sec := cfg.GetSection(name)
		if ax.Pulse, err = sec.GetPin("pulse_pin", ax.Pulse); err != nil {
			return nil, nil, err
		}
		if ax.Dir, err = sec.GetPin("dir_pin", ax.Dir); err != nil {
			return nil, nil, err
		}
		if ax.Enable, err = sec.GetPin("enable_pin", ax.Enable); err != nil {
			return nil, nil, err
		}
		ax.StepsPerMM = sec.GetFloat("steps_per_mm", ax.StepsPerMM)
		if ax.StepsPerMM <= 0 {
			return nil, nil, fmt.Errorf("config: [%s] steps_per_mm must be positive", name)
		}
		ax.DefaultInterval = axis.ClampInterval(uint64(sec.GetInt("default_interval", int64(ax.DefaultInterval))))
	}

	if cfg.HasSection("servo") {
		sec := cfg.GetSection("servo")
		if cs.Servo.Pin, err = sec.GetPin("pin", cs.Servo.Pin); err != nil {
			return nil, nil, err
		}
		cs.Servo.InitialAngle = hw.ClampAngle(int(sec.GetInt("initial_angle", int64(cs.Servo.InitialAngle))))
	}

	return cs, cfg, nil
}
