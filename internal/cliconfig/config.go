package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/bft-labs/serially/internal/domain"
	"github.com/bft-labs/serially/pkg/jrmp"
)

// DefaultHomeName is the directory under the user's home holding the
// catalog, jar directory and config file.
const DefaultHomeName = ".serially"

// Config holds CLI configuration for serially.
type Config struct {
	Mode   domain.Mode
	Filter string

	// Host and Port address the remote RMI registry. Set iff Mode is remote.
	Host string
	Port int

	Debug   bool
	NoColor bool
	LogFile string

	Home      string
	JarDir    string
	Catalog   string
	OutputDir string

	Timeout         time.Duration
	UseRegistryHost bool

	// Workers bounds concurrent jar parsing while indexing.
	Workers int
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Mode:      domain.ModeLocal,
		Home:      DefaultHome(),
		JarDir:    "", // Derived from Home during Validate
		Catalog:   "", // Derived from Home during Validate
		OutputDir: ".",
		Timeout:   jrmp.DefaultTimeout,
		Workers:   runtime.NumCPU(),
	}
}

// DefaultHome returns ~/.serially, or .serially in the working directory
// when the home directory is unknown.
func DefaultHome() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, DefaultHomeName)
	}
	return DefaultHomeName
}

// Validate checks the configuration for errors and sets derived defaults.
func (c *Config) Validate() error {
	switch c.Mode {
	case domain.ModeLocal:
		if c.Host != "" || c.Port != 0 {
			return fmt.Errorf("%w: host and port are only used in remote mode", domain.ErrInvalidConfig)
		}
	case domain.ModeRemote:
		if c.Host == "" {
			return fmt.Errorf("%w: remote mode requires a host", domain.ErrInvalidConfig)
		}
		if c.Port <= 0 || c.Port > 65535 {
			return fmt.Errorf("%w: port %d out of range", domain.ErrInvalidConfig, c.Port)
		}
	default:
		return fmt.Errorf("%w: unknown mode %q", domain.ErrInvalidConfig, c.Mode)
	}

	if c.Home == "" {
		c.Home = DefaultHome()
	}
	if c.JarDir == "" {
		c.JarDir = filepath.Join(c.Home, "jars")
	}
	if c.Catalog == "" {
		c.Catalog = filepath.Join(c.Home, "java.sqlite")
	}
	if c.OutputDir == "" {
		c.OutputDir = "."
	}

	if c.Timeout < 0 {
		return fmt.Errorf("%w: timeout must not be negative", domain.ErrInvalidConfig)
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	return nil
}

// ParsePort parses a TCP port argument.
func ParsePort(s string) (int, error) {
	p, err := strconv.Atoi(s)
	if err != nil || p <= 0 || p > 65535 {
		return 0, fmt.Errorf("%w: invalid port %q", domain.ErrInvalidConfig, s)
	}
	return p, nil
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setBoolFromString accepts "true" and "1" as true, anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
