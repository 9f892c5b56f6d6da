package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
// Mode, host and port are per invocation and only come from the command line.
type FileConfig struct {
	Home            string `toml:"home"`
	JarDir          string `toml:"jar_dir"`
	Catalog         string `toml:"catalog"`
	OutputDir       string `toml:"output_dir"`
	Filter          string `toml:"filter"`
	LogFile         string `toml:"log_file"`
	Timeout         string `toml:"timeout"`
	Workers         int    `toml:"workers"`
	Debug           *bool  `toml:"debug"`
	NoColor         *bool  `toml:"no_color"`
	UseRegistryHost *bool  `toml:"use_registry_host"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.serially/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, DefaultHomeName, "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("home", fc.Home, &cfg.Home)
	s.setString("jar-dir", fc.JarDir, &cfg.JarDir)
	s.setString("catalog", fc.Catalog, &cfg.Catalog)
	s.setString("output-dir", fc.OutputDir, &cfg.OutputDir)
	s.setString("filter", fc.Filter, &cfg.Filter)
	s.setString("log-file", fc.LogFile, &cfg.LogFile)

	if err := s.setDuration("timeout", fc.Timeout, &cfg.Timeout); err != nil {
		return err
	}
	s.setInt("workers", fc.Workers, &cfg.Workers)

	s.setBool("debug", fc.Debug, &cfg.Debug)
	s.setBool("no-color", fc.NoColor, &cfg.NoColor)
	s.setBool("use-registry-host", fc.UseRegistryHost, &cfg.UseRegistryHost)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
