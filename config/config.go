// Package config loads the gateway configuration. Values are layered:
// defaults, then a TOML file, then environment variables, then flags.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"

	log "github.com/sirupsen/logrus"
)

// EnvPrefix is the prefix of all environment variables.
const EnvPrefix = "GCODE_LINK_"

// Config is the configuration of the gateway. It is not modified after it
// has been loaded.
type Config struct {
	Listen   string `env:"LISTEN"`
	Device   string `env:"DEVICE"`
	BaudRate int    `env:"BAUD_RATE"`
	TestMode bool   `env:"TEST_MODE"`

	// AllowUnsafe enables the passthrough message types that bypass
	// command validation.
	AllowUnsafe bool `env:"ALLOW_UNSAFE"`

	ReadTimeout     time.Duration `env:"READ_TIMEOUT"`
	MaxEmptyReads   int           `env:"MAX_EMPTY_READS"`
	MaxResponseTime time.Duration `env:"MAX_RESPONSE_TIME"`

	LogLevel string `env:"LOG_LEVEL"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Listen:          "0.0.0.0:9002",
		Device:          "/dev/ttyUSB0",
		BaudRate:        115200,
		TestMode:        false,
		AllowUnsafe:     true,
		ReadTimeout:     time.Second,
		MaxEmptyReads:   10,
		MaxResponseTime: 2 * time.Minute,
		LogLevel:        "info",
	}
}

type fileConfig struct {
	Listen          string `toml:"listen"`
	Port            int    `toml:"port"`
	Device          string `toml:"device"`
	BaudRate        int    `toml:"baud_rate"`
	TestMode        bool   `toml:"test_mode"`
	AllowUnsafe     bool   `toml:"allow_unsafe"`
	ReadTimeout     string `toml:"read_timeout"`
	MaxEmptyReads   int    `toml:"max_empty_reads"`
	MaxResponseTime string `toml:"max_response_time"`
	LogLevel        string `toml:"log_level"`
}

// LoadFile applies the settings of a TOML file on top of cfg. Keys that are
// not present in the file leave cfg untouched.
func LoadFile(path string, cfg Config) (Config, error) {
	var raw fileConfig

	meta, err := toml.DecodeFile(path, &raw)

	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		log.Warnf("Ignoring unknown configuration keys: %v", undecoded)
	}

	if meta.IsDefined("listen") {
		cfg.Listen = strings.TrimSpace(raw.Listen)
	}

	if meta.IsDefined("port") {
		cfg.Listen = withPort(cfg.Listen, strconv.Itoa(raw.Port))
	}

	if meta.IsDefined("device") {
		cfg.Device = strings.TrimSpace(raw.Device)
	}

	if meta.IsDefined("baud_rate") {
		cfg.BaudRate = raw.BaudRate
	}

	if meta.IsDefined("test_mode") {
		cfg.TestMode = raw.TestMode
	}

	if meta.IsDefined("allow_unsafe") {
		cfg.AllowUnsafe = raw.AllowUnsafe
	}

	if meta.IsDefined("read_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ReadTimeout))

		if err != nil {
			return Config{}, fmt.Errorf("parse read_timeout: %w", err)
		}

		cfg.ReadTimeout = d
	}

	if meta.IsDefined("max_empty_reads") {
		cfg.MaxEmptyReads = raw.MaxEmptyReads
	}

	if meta.IsDefined("max_response_time") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.MaxResponseTime))

		if err != nil {
			return Config{}, fmt.Errorf("parse max_response_time: %w", err)
		}

		cfg.MaxResponseTime = d
	}

	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}

	return cfg, nil
}

// ApplyEnv applies environment variables on top of cfg. Variables that are
// not set leave cfg untouched.
func ApplyEnv(cfg Config) (Config, error) {
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}

	return cfg, nil
}

// ApplyArgs applies the positional form `<port> <device> <baud> <test_mode>`
// on top of cfg. An unparsable baud rate falls back to the default.
func ApplyArgs(args []string, cfg Config) (Config, error) {
	if len(args) == 0 {
		return cfg, nil
	}

	if len(args) != 4 {
		return Config{}, fmt.Errorf("expected 4 arguments (port, device, baud rate, test mode), got %d", len(args))
	}

	cfg.Listen = withPort(cfg.Listen, args[0])
	cfg.Device = args[1]

	baudRate, err := strconv.Atoi(args[2])

	if err != nil {
		log.Warnf("Failed to parse baud rate '%s', using %d.", args[2], Default().BaudRate)
		baudRate = Default().BaudRate
	}

	cfg.BaudRate = baudRate
	cfg.TestMode = strings.EqualFold(args[3], "true")

	return cfg, nil
}

// Validate checks that the configuration can be used.
func (c Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		return fmt.Errorf("invalid listen address '%s': %w", c.Listen, err)
	}

	if c.Device == "" && !c.TestMode {
		return errors.New("no device configured")
	}

	if c.BaudRate <= 0 {
		return fmt.Errorf("invalid baud rate %d", c.BaudRate)
	}

	if c.ReadTimeout <= 0 {
		return fmt.Errorf("invalid read timeout %s", c.ReadTimeout)
	}

	if c.MaxEmptyReads <= 0 {
		return fmt.Errorf("invalid maximum number of empty reads %d", c.MaxEmptyReads)
	}

	if c.MaxResponseTime <= 0 {
		return fmt.Errorf("invalid maximum response time %s", c.MaxResponseTime)
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return err
	}

	return nil
}

// withPort replaces the port of a listen address.
func withPort(listen string, port string) string {
	host, _, err := net.SplitHostPort(listen)

	if err != nil {
		host = "0.0.0.0"
	}

	return net.JoinHostPort(host, strings.TrimSpace(port))
}
