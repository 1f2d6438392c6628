package serial

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
)

// LineTransport adapts a byte stream into the line protocol the motion
// loop consumes. A background goroutine buffers incoming lines so the
// loop's ReadLine poll never blocks on the device.
type LineTransport struct {
	lines chan string
	done  chan struct{}

	stop     chan struct{}
	stopOnce sync.Once

	wmu sync.Mutex
	w   io.Writer

	errmu sync.Mutex
	err   error
}

// NewLineTransport starts reading lines from r. It works over a serial
// Port as well as plain stdio.
func NewLineTransport(r io.Reader, w io.Writer) *LineTransport {
	t := &LineTransport{
		lines: make(chan string, 64),
		done:  make(chan struct{}),
		stop:  make(chan struct{}),
		w:     w,
	}
	go t.readLoop(r)
	return t
}

func (t *LineTransport) readLoop(r io.Reader) {
	defer func() {
		close(t.lines)
		close(t.done)
	}()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		select {
		case t.lines <- strings.TrimRight(scanner.Text(), "\r"):
		case <-t.stop:
			return
		}
	}
	t.errmu.Lock()
	t.err = scanner.Err()
	t.errmu.Unlock()
}

// ReadLine returns the next buffered line without blocking.
func (t *LineTransport) ReadLine() (string, bool) {
	select {
	case line, ok := <-t.lines:
		if !ok {
			return "", false
		}
		return line, true
	default:
		return "", false
	}
}

// WriteLine writes one response line with a trailing newline. Safe for
// concurrent use.
func (t *LineTransport) WriteLine(s string) {
	t.wmu.Lock()
	defer t.wmu.Unlock()
	fmt.Fprintln(t.w, s)
}

// PortReader adapts a Port into a blocking io.Reader by retrying through
// the port's poll timeout. Use it to feed a LineTransport from a Port.
type PortReader struct {
	Port *Port
}

func (r PortReader) Read(buf []byte) (int, error) {
	for {
		n, err := r.Port.Read(buf)
		if err == ErrTimeout || (n == 0 && err == nil) {
			continue
		}
		return n, err
	}
}

// Close releases the reader goroutine once no consumer remains, so a
// transport torn down mid-process does not strand a goroutine blocked on
// a full line buffer. The underlying stream must still be closed
// separately to unblock a read in progress.
func (t *LineTransport) Close() {
	t.stopOnce.Do(func() { close(t.stop) })
}

// Done is closed when the input stream ends or the transport is closed.
func (t *LineTransport) Done() <-chan struct{} {
	return t.done
}

// Err returns the reader error, if any, once Done is closed. A clean EOF
// reports nil.
func (t *LineTransport) Err() error {
	t.errmu.Lock()
	defer t.errmu.Unlock()
	return t.err
}
