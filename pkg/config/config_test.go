package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "controller.cfg")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadSectionsAndOptions(t *testing.T) {
	path := writeConfig(t, `
# comment line
[controller]
device: /dev/ttyACM0
baud = 250000

[axis x]
steps_per_mm: 160  ; trailing comment
default_interval: 400
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if !cfg.HasSection("controller") || !cfg.HasSection("AXIS X") {
		t.Fatalf("sections missing: %v", cfg.SectionNames())
	}

	ctrl := cfg.GetSection("controller")
	if got := ctrl.GetString("device", ""); got != "/dev/ttyACM0" {
		t.Errorf("device = %q", got)
	}
	if got := ctrl.GetInt("baud", 0); got != 250000 {
		t.Errorf("baud = %d", got)
	}

	ax := cfg.GetSection("axis x")
	if got := ax.GetFloat("steps_per_mm", 0); got != 160 {
		t.Errorf("steps_per_mm = %v", got)
	}
}

func TestMalformedValuesFallBack(t *testing.T) {
	path := writeConfig(t, `
[controller]
baud: notanumber
verbose: maybe
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	sec := cfg.GetSection("controller")
	if got := sec.GetInt("baud", 115200); got != 115200 {
		t.Errorf("malformed int should fall back: got %d", got)
	}
	if got := sec.GetBool("verbose", true); got != true {
		t.Errorf("malformed bool should fall back: got %v", got)
	}
}

func TestUnusedOptions(t *testing.T) {
	path := writeConfig(t, `
[controller]
device: /dev/null
bogus_option: 1
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	cfg.GetSection("controller").GetString("device", "")

	unused := cfg.UnusedOptions()
	if len(unused) != 1 || unused[0] != "controller.bogus_option" {
		t.Errorf("unused = %v", unused)
	}
}

func TestParsePin(t *testing.T) {
	cases := []struct {
		in     string
		want   Pin
		hasErr bool
	}{
		{"D2", Pin{Name: "D2"}, false},
		{"!D8", Pin{Name: "D8", Invert: true}, false},
		{"  ! A0 ", Pin{Name: "A0", Invert: true}, false},
		{"", Pin{}, true},
		{"!", Pin{}, true},
		{"D2:extra", Pin{}, true},
	}
	for _, c := range cases {
		got, err := ParsePin(c.in)
		if c.hasErr != (err != nil) {
			t.Errorf("ParsePin(%q) error = %v, want error %v", c.in, err, c.hasErr)
			continue
		}
		if !c.hasErr && got != c.want {
			t.Errorf("ParsePin(%q) = %+v, want %+v", c.in, got, c.want)
		}
	}
}

func TestDefaultsCoverAllAxes(t *testing.T) {
	cs := Defaults()
	if len(cs.Axes) != len(AxisLetters) {
		t.Fatalf("defaults cover %d axes, want %d", len(cs.Axes), len(AxisLetters))
	}
	seen := map[byte]uint64{}
	for _, ax := range cs.Axes {
		seen[ax.Letter] = ax.DefaultInterval
	}
	// The per-axis speeds the original panel seeded.
	for letter, want := range map[byte]uint64{'X': 620, 'Y': 300, 'Z': 50, 'E': 1500, 'R': 1500, 'T': 1500} {
		if seen[letter] != want {
			t.Errorf("axis %c default interval %d, want %d", letter, seen[letter], want)
		}
	}
}

func TestParseControllerSettingsOverrides(t *testing.T) {
	path := writeConfig(t, `
[controller]
device: /dev/ttyUSB1
api: :8155

[axis z]
pulse_pin: !D10
steps_per_mm: 800
default_interval: 25

[servo]
initial_angle: 300
`)
	cs, _, err := ParseControllerSettings(path)
	if err != nil {
		t.Fatal(err)
	}
	if cs.Device != "/dev/ttyUSB1" || cs.APIAddr != ":8155" {
		t.Errorf("controller overrides lost: %+v", cs)
	}
	var z *AxisSettings
	for i := range cs.Axes {
		if cs.Axes[i].Letter == 'Z' {
			z = &cs.Axes[i]
		}
	}
	if z == nil {
		t.Fatal("no Z axis")
	}
	if z.Pulse != (Pin{Name: "D10", Invert: true}) || z.StepsPerMM != 800 {
		t.Errorf("axis overrides lost: %+v", z)
	}
	// default_interval 25 is below the interval floor and must clamp up.
	if z.DefaultInterval != 200 {
		t.Errorf("interval not clamped: %d", z.DefaultInterval)
	}
	// Servo angle clamps into [0,180].
	if cs.Servo.InitialAngle != 180 {
		t.Errorf("servo angle not clamped: %d", cs.Servo.InitialAngle)
	}
	// X keeps its built-in default.
	if cs.Axes[0].Letter != 'X' || cs.Axes[0].DefaultInterval != 620 {
		t.Errorf("untouched axis changed: %+v", cs.Axes[0])
	}
}

func TestParseControllerSettingsRejectsBadSteps(t *testing.T) {
	path := writeConfig(t, `
[axis x]
steps_per_mm: 0
`)
	if _, _, err := ParseControllerSettings(path); err == nil {
		t.Fatal("expected error for non-positive steps_per_mm")
	}
}
