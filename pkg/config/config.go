// Package config loads the controller configuration file.
//
// The format is an INI-style file with one section per axis plus sections
// for the servo and the controller itself:
//
//	[controller]
//	device: /dev/ttyACM0
//	baud: 115200
//	api: :8155
//
//	[axis x]
//	pulse_pin: !D2
//	dir_pin: D3
//	enable_pin: D4
//	steps_per_mm: 80
//	default_interval: 620
//
//	[servo]
//	pin: D9
//	initial_angle: 90
//
// Options are tracked on access so startup can warn about typos that would
// otherwise be silently ignored.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Config provides access to a parsed configuration file.
type Config struct {
	mu       sync.RWMutex
	sections map[string]*Section
	order    []string
}

// New creates an empty Config.
func New() *Config {
	return &Config{sections: make(map[string]*Section)}
}

// Load reads and parses a configuration file.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: unable to open %s: %w", path, err)
	}
	defer f.Close()

	c := New()
	var current string
	var options map[string]string

	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if idx := strings.IndexAny(line, "#;"); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
			if line == "" {
				continue
			}
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			if current != "" {
				c.addSection(current, options)
			}
			current = strings.TrimSpace(line[1 : len(line)-1])
			if current == "" {
				return nil, fmt.Errorf("config: empty section header at line %d in %s", lineNum, path)
			}
			options = make(map[string]string)
			continue
		}

		sep := strings.IndexAny(line, ":=")
		if sep < 0 {
			return nil, fmt.Errorf("config: malformed option at line %d in %s: %q", lineNum, path, line)
		}
		if current == "" {
			return nil, fmt.Errorf("config: option before any section at line %d in %s", lineNum, path)
		}
		key := strings.TrimSpace(line[:sep])
		value := strings.TrimSpace(line[sep+1:])
		if key == "" {
			return nil, fmt.Errorf("config: empty option name at line %d in %s", lineNum, path)
		}
		options[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if current != "" {
		c.addSection(current, options)
	}
	return c, nil
}

func (c *Config) addSection(name string, options map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := strings.ToLower(name)
	if _, exists := c.sections[key]; !exists {
		c.order = append(c.order, key)
	}
	c.sections[key] = newSection(key, options)
}

// HasSection reports whether the named section exists.
func (c *Config) HasSection(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.sections[strings.ToLower(name)]
	return ok
}

// GetSection returns the named section, or an empty placeholder so callers
// can chain typed getters with fallbacks.
func (c *Config) GetSection(name string) *Section {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if s, ok := c.sections[strings.ToLower(name)]; ok {
		return s
	}
	return newSection(strings.ToLower(name), nil)
}

// SectionNames returns all section names in file order.
func (c *Config) SectionNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// UnusedOptions returns "section.option" keys that were never accessed via
// a typed getter. Called after startup to surface config typos.
func (c *Config) UnusedOptions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var unused []string
	for _, name := range c.order {
		for _, opt := range c.sections[name].unusedOptions() {
			unused = append(unused, name+"."+opt)
		}
	}
	return unused
}
