package config

import (
	"fmt"
	"strings"
)

// Pin is a parsed output pin specification.
type Pin struct {
	Name   string // pin name, e.g. "D2", "gpio25"
	Invert bool   // inverted logic (! prefix)
}

// ParsePin parses a pin specification of the form [!]name.
func ParsePin(desc string) (Pin, error) {
	d := strings.TrimSpace(desc)
	if d == "" {
		return Pin{}, fmt.Errorf("config: empty pin specification")
	}

	var p Pin
	if d[0] == '!' {
		p.Invert = true
		d = strings.TrimSpace(d[1:])
	}
	if d == "" {
		return Pin{}, fmt.Errorf("config: empty pin name in specification %q", desc)
	}
	if strings.ContainsAny(d, "!^~: \t") {
		return Pin{}, fmt.Errorf("config: invalid characters in pin name %q", desc)
	}
	p.Name = d
	return p, nil
}

// GetPin returns a parsed pin option, or fallback if the option is absent.
// A present but malformed pin spec is an error.
func (s *Section) GetPin(option string, fallback Pin) (Pin, error) {
	v, ok := s.lookup(option)
	if !ok {
		return fallback, nil
	}
	pin, err := ParsePin(v)
	if err != nil {
		return Pin{}, fmt.Errorf("%w (option %q in [%s])", err, option, s.name)
	}
	return pin, nil
}
