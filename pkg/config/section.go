package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Section provides typed access to one config section with access tracking.
type Section struct {
	name    string
	options map[string]string

	mu       sync.Mutex
	accessed map[string]struct{}
}

func newSection(name string, options map[string]string) *Section {
	opts := make(map[string]string, len(options))
	for k, v := range options {
		opts[strings.ToLower(k)] = v
	}
	return &Section{
		name:     name,
		options:  opts,
		accessed: make(map[string]struct{}),
	}
}

// Name returns the section name.
func (s *Section) Name() string {
	return s.name
}

func (s *Section) lookup(option string) (string, bool) {
	key := strings.ToLower(option)
	v, ok := s.options[key]
	if ok {
		s.mu.Lock()
		s.accessed[key] = struct{}{}
		s.mu.Unlock()
	}
	return v, ok
}

// GetString returns a string option, or fallback if absent.
func (s *Section) GetString(option, fallback string) string {
	if v, ok := s.lookup(option); ok {
		return v
	}
	return fallback
}

// GetInt returns an integer option, or fallback if absent or malformed.
func (s *Section) GetInt(option string, fallback int64) int64 {
	v, ok := s.lookup(option)
	if !ok {
		return fallback
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

// GetFloat returns a float option, or fallback if absent or malformed.
func (s *Section) GetFloat(option string, fallback float64) float64 {
	v, ok := s.lookup(option)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return fallback
	}
	return f
}

// GetBool returns a boolean option, or fallback if absent or malformed.
func (s *Section) GetBool(option string, fallback bool) bool {
	v, ok := s.lookup(option)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	}
	return fallback
}

// RequireString returns a string option or an error naming the section and
// option if it is absent.
func (s *Section) RequireString(option string) (string, error) {
	if v, ok := s.lookup(option); ok {
		return v, nil
	}
	return "", fmt.Errorf("config: [%s] missing required option %q", s.name, option)
}

func (s *Section) unusedOptions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var unused []string
	for opt := range s.options {
		if _, ok := s.accessed[opt]; !ok {
			unused = append(unused, opt)
		}
	}
	sort.Strings(unused)
	return unused
}
