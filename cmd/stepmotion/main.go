// stepmotion drives a rig of six stepper axes and one servo over a
// line-oriented command protocol, with an optional G-code layer on top.
// Commands arrive on a serial device or stdin; an HTTP/WebSocket API can
// be enabled for remote control and monitoring.
//
// Usage:
//
//	stepmotion [options]
//
// Options:
//
//	-config string   Controller configuration file (optional; built-in
//	                 defaults are used without one)
//	-device string   Serial device to read commands from (default: stdio)
//	-api string      HTTP API listen address (e.g. :8155; empty disables)
//	-logfile string  Log file path (default: stderr)
//	-debug           Log at debug level regardless of config
//
// Examples:
//
//	# Interactive session on stdin
//	stepmotion
//
//	# Serial console with the web API enabled
//	stepmotion -device /dev/ttyUSB0 -api :8155
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"stepmotion/pkg/api"
	"stepmotion/pkg/axis"
	"stepmotion/pkg/config"
	"stepmotion/pkg/hw"
	"stepmotion/pkg/log"
	"stepmotion/pkg/loop"
	"stepmotion/pkg/metrics"
	"stepmotion/pkg/serial"
)

func main() {
	configFile := flag.String("config", "", "Controller configuration file")
	device := flag.String("device", "", "Serial device to read commands from (default: stdio)")
	apiAddr := flag.String("api", "", "HTTP API listen address (empty disables)")
	logFile := flag.String("logfile", "", "Log file path (default: stderr)")
	debug := flag.Bool("debug", false, "Log at debug level")
	flag.Parse()

	logger := log.New("stepmotion")
	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error opening log file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		logger.SetWriter(f)
	}

	cs := config.Defaults()
	var rawCfg *config.Config
	if *configFile != "" {
		var err error
		cs, rawCfg, err = config.ParseControllerSettings(*configFile)
		if err != nil {
			logger.WithError(err).Error("cannot load config")
			os.Exit(1)
		}
	}
	if *device != "" {
		cs.Device = *device
	}
	if *apiAddr != "" {
		cs.APIAddr = *apiAddr
	}
	logger.SetLevel(log.ParseLevel(cs.LogLevel))
	if *debug {
		logger.SetLevel(log.DEBUG)
	}

	axes := buildAxes(cs, logger)
	servo := &hw.StateServo{}
	servo.SetAngle(cs.Servo.InitialAngle)

	var trans *serial.LineTransport
	var port *serial.Port
	if cs.Device != "" {
		cfg := serial.DefaultConfig()
		cfg.Device = cs.Device
		cfg.Baud = cs.Baud
		var err error
		port, err = serial.Open(cfg)
		if err != nil {
			logger.WithError(err).Error("cannot open serial device")
			os.Exit(1)
		}
		defer port.Close()
		logger.WithFields(log.Fields{"device": cs.Device, "baud": cs.Baud}).Info("serial console open")
		trans = serial.NewLineTransport(serial.PortReader{Port: port}, port)
	} else {
		logger.Info("reading commands from stdin")
		trans = serial.NewLineTransport(os.Stdin, os.Stdout)
	}
	defer trans.Close()

	reg := metrics.NewRegistry()
	lp := loop.New(hw.NewWallClock(), axes, servo, trans, reg, logger.WithPrefix("loop"))

	var apiServer *api.Server
	if cs.APIAddr != "" {
		apiServer = api.New(cs.APIAddr, lp, reg, logger.WithPrefix("api"))
		lp.SetMirror(apiServer.Broadcast)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.WithError(err).Warn("api server stopped")
			}
		}()
		defer apiServer.Stop()
	}

	if rawCfg != nil {
		for _, opt := range rawCfg.UnusedOptions() {
			logger.WithField("option", opt).Warn("unused config option")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			logger.WithField("signal", sig.String()).Info("shutting down")
		case <-trans.Done():
			logger.Info("input stream closed")
		}
		cancel()
	}()

	lp.Run(ctx)
}

// buildAxes resolves the configured pin names into output lines. Without a
// GPIO backend the lines are no-ops; the scheduler still times pulses
// against them so latency behavior matches a wired build.
func buildAxes(cs *config.ControllerSettings, logger *log.Logger) []*axis.Axis {
	var axes []*axis.Axis
	for _, as := range cs.Axes {
		a := axis.New(axis.Config{
			Letter:          as.Letter,
			StepsPerMM:      as.StepsPerMM,
			DefaultInterval: as.DefaultInterval,
			PulsePin:        as.Pulse.Name,
			DirPin:          as.Dir.Name,
			EnablePin:       as.Enable.Name,
		}, axis.Pins{
			Pulse:  resolvePin(as.Pulse),
			Dir:    resolvePin(as.Dir),
			Enable: resolvePin(as.Enable),
		})
		logger.WithFields(log.Fields{
			"axis":     string(as.Letter),
			"pulse":    as.Pulse.Name,
			"dir":      as.Dir.Name,
			"enable":   as.Enable.Name,
			"interval": as.DefaultInterval,
		}).Debug("axis configured")
		axes = append(axes, a)
	}
	return axes
}

func resolvePin(p config.Pin) hw.OutputPin {
	var pin hw.OutputPin = hw.NopPin{}
	if p.Invert {
		pin = hw.InvertedPin{Pin: pin}
	}
	return pin
}
