package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	link "github.com/basilfx/go-gcode-link"
	"github.com/basilfx/go-gcode-link/config"
	"github.com/basilfx/go-gcode-link/gateway"

	log "github.com/sirupsen/logrus"
)

const usage = `Usage: gcode-link [flags] [<port> <device> <baud> <test_mode>]

Relays G-code from websocket clients to a 3D printer on a serial port.

Flags:
`

func main() {
	flags := flag.NewFlagSet("gcode-link", flag.ExitOnError)
	flags.Usage = func() {
		fmt.Fprint(flags.Output(), usage)
		flags.PrintDefaults()
	}

	defaults := config.Default()

	configPath := flags.String("config", "", "path to a TOML configuration file")
	listen := flags.String("listen", defaults.Listen, "address to listen on")
	device := flags.String("device", defaults.Device, "serial device of the printer")
	baudRate := flags.Int("baud", defaults.BaudRate, "baud rate of the serial device")
	testMode := flags.Bool("test-mode", defaults.TestMode, "reply without talking to the printer")
	allowUnsafe := flags.Bool("allow-unsafe", defaults.AllowUnsafe, "allow commands that bypass validation")
	logLevel := flags.String("log-level", defaults.LogLevel, "log level")

	flags.Parse(os.Args[1:])

	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})

	cfg, err := load(flags, *configPath)

	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Flags that were given explicitly win over everything else.
	flags.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			cfg.Listen = *listen
		case "device":
			cfg.Device = *device
		case "baud":
			cfg.BaudRate = *baudRate
		case "test-mode":
			cfg.TestMode = *testMode
		case "allow-unsafe":
			cfg.AllowUnsafe = *allowUnsafe
		case "log-level":
			cfg.LogLevel = *logLevel
		}
	})

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	level, _ := log.ParseLevel(cfg.LogLevel)
	log.SetLevel(level)

	if err := run(cfg); err != nil {
		log.Fatal(err)
	}
}

// load layers the configuration file, the environment and the positional
// arguments on top of the defaults.
func load(flags *flag.FlagSet, path string) (config.Config, error) {
	var err error

	cfg := config.Default()

	if path != "" {
		if cfg, err = config.LoadFile(path, cfg); err != nil {
			return cfg, err
		}
	}

	if cfg, err = config.ApplyEnv(cfg); err != nil {
		return cfg, err
	}

	return config.ApplyArgs(flags.Args(), cfg)
}

func run(cfg config.Config) error {
	l := link.New(link.Config{
		Path:            cfg.Device,
		BaudRate:        cfg.BaudRate,
		TestMode:        cfg.TestMode,
		ReadTimeout:     cfg.ReadTimeout,
		MaxEmptyReads:   cfg.MaxEmptyReads,
		MaxResponseTime: cfg.MaxResponseTime,
	})

	go l.Serve()
	defer l.Shutdown()

	if cfg.TestMode {
		log.Warnf("Test mode enabled, commands are not sent to %s.", cfg.Device)
	} else {
		log.Infof("Using device %s at %d baud.", cfg.Device, cfg.BaudRate)
	}

	server := gateway.NewServer(l, gateway.Config{
		AllowUnsafe: cfg.AllowUnsafe,
	})

	mux := http.NewServeMux()
	mux.Handle("/", server)
	mux.Handle("/ws", server)

	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)

	go func() {
		log.Infof("Listening on ws://%s", cfg.Listen)

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- fmt.Errorf("listen on %s: %w", cfg.Listen, err)
		}

		close(errs)
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errs:
		return err
	case s := <-signals:
		log.Infof("Received %s, shutting down.", s)
	}

	// Hijacked connections are not tracked by the http server.
	server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return httpServer.Shutdown(ctx)
}
