package cmderr

import (
	"strings"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	cases := []struct {
		name string
		err  *Error
		want []string
	}{
		{
			name: "unknown with input echo",
			err:  Unknown("q=5"),
			want: []string{"UNKNOWN_COMMAND", `"q=5"`, "unrecognized command"},
		},
		{
			name: "unknown gcode",
			err:  UnknownCode("G92 X0", "G92"),
			want: []string{"UNKNOWN_CODE", "G92"},
		},
		{
			name: "missing param",
			err:  MissingParam("M104", 'S'),
			want: []string{"MISSING_PARAM", "S parameter"},
		},
		{
			name: "unsupported",
			err:  Unsupported("G28", "homing requires endstop switches"),
			want: []string{"UNSUPPORTED", "endstop"},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			msg := c.err.Error()
			for _, w := range c.want {
				if !strings.Contains(msg, w) {
					t.Errorf("message %q missing %q", msg, w)
				}
			}
		})
	}
}

func TestNoInputOmitsEcho(t *testing.T) {
	e := New(ErrUnsupported, "", "nothing attached")
	if strings.Contains(e.Error(), `""`) {
		t.Errorf("empty input should not be echoed: %s", e.Error())
	}
}
