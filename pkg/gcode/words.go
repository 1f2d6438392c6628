package gcode

import (
	"strconv"
	"strings"
)

// Value is an optional numeric operand. It distinguishes "letter absent"
// from "letter present with value zero", which matters for commands like
// G1 Z0.
type Value struct {
	f       float64
	present bool
}

// Present reports whether the operand letter appeared in the line.
func (v Value) Present() bool { return v.present }

// Float returns the operand value, or 0 when absent.
func (v Value) Float() float64 { return v.f }

// Int returns the operand rounded toward zero, or 0 when absent.
func (v Value) Int() int { return int(v.f) }

// Word extracts the operand following the first occurrence of letter in
// line. The scan consumes digits, '.', and '-' immediately after the
// letter; malformed numeric text yields a present zero value, matching the
// tolerant parse behavior of the rest of the protocol.
func Word(line string, letter byte) Value {
	idx := strings.IndexByte(line, letter)
	if idx < 0 {
		return Value{}
	}
	start := idx + 1
	end := start
	for end < len(line) {
		c := line[end]
		if (c >= '0' && c <= '9') || c == '.' || c == '-' {
			end++
			continue
		}
		break
	}
	f, err := strconv.ParseFloat(line[start:end], 64)
	if err != nil {
		f = 0
	}
	return Value{f: f, present: true}
}

// StripComments removes ";" line comments and "(...)" inline comments and
// trims whitespace. Returns the empty string for comment-only lines.
func StripComments(line string) string {
	if idx := strings.IndexByte(line, ';'); idx >= 0 {
		line = line[:idx]
	}
	for {
		open := strings.IndexByte(line, '(')
		if open < 0 {
			break
		}
		close := strings.IndexByte(line[open:], ')')
		if close < 0 {
			line = line[:open]
			break
		}
		line = line[:open] + " " + line[open+close+1:]
	}
	return strings.TrimSpace(line)
}
