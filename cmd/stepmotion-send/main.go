// stepmotion-send streams a G-code file to a controller over a serial
// port, pacing lines so the controller's command buffer is never
// overrun, and echoes the controller's responses.
//
// Usage:
//
//	stepmotion-send -list
//	stepmotion-send -port /dev/ttyUSB0 job.gcode
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"time"

	bugst "go.bug.st/serial"

	"stepmotion/pkg/gcode"
)

func main() {
	port := flag.String("port", "", "Serial port the controller is attached to")
	baud := flag.Int("baud", 115200, "Baud rate")
	delay := flag.Duration("delay", 50*time.Millisecond, "Pause between lines")
	list := flag.Bool("list", false, "List available serial ports and exit")
	flag.Parse()

	if *list {
		listPorts()
		return
	}

	if *port == "" || flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: stepmotion-send -port <device> <file.gcode>")
		fmt.Fprintln(os.Stderr, "       stepmotion-send -list")
		os.Exit(2)
	}

	if err := send(*port, *baud, flag.Arg(0), *delay); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func listPorts() {
	ports, err := bugst.GetPortsList()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if len(ports) == 0 {
		fmt.Println("no serial ports found")
		return
	}
	for _, p := range ports {
		fmt.Println(p)
	}
}

func send(device string, baud int, path string, delay time.Duration) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	conn, err := bugst.Open(device, &bugst.Mode{BaudRate: baud})
	if err != nil {
		return fmt.Errorf("open %s: %w", device, err)
	}
	defer conn.Close()

	// Echo controller responses while the job streams.
	go func() {
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			fmt.Printf("< %s\n", scanner.Text())
		}
	}()

	sent := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := gcode.StripComments(scanner.Text())
		if line == "" {
			continue
		}
		if _, err := conn.Write([]byte(line + "\n")); err != nil {
			return fmt.Errorf("write: %w", err)
		}
		sent++
		fmt.Printf("> %s\n", line)
		time.Sleep(delay)
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	// Give the last responses time to arrive.
	time.Sleep(500 * time.Millisecond)
	fmt.Printf("sent %d lines\n", sent)
	return nil
}
