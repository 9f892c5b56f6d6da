package cliconfig

import "os"

// EnvPrefix prefixes every environment variable read by ApplyEnvConfig.
const EnvPrefix = "SERIALLY_"

// ApplyEnvConfig applies configuration from environment variables (SERIALLY_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("home", os.Getenv(EnvPrefix+"HOME"), &cfg.Home)
	s.setString("jar-dir", os.Getenv(EnvPrefix+"JAR_DIR"), &cfg.JarDir)
	s.setString("catalog", os.Getenv(EnvPrefix+"CATALOG"), &cfg.Catalog)
	s.setString("output-dir", os.Getenv(EnvPrefix+"OUTPUT_DIR"), &cfg.OutputDir)
	s.setString("filter", os.Getenv(EnvPrefix+"FILTER"), &cfg.Filter)
	s.setString("log-file", os.Getenv(EnvPrefix+"LOG_FILE"), &cfg.LogFile)

	if err := s.setDuration("timeout", os.Getenv(EnvPrefix+"TIMEOUT"), &cfg.Timeout); err != nil {
		return err
	}
	if err := s.setIntFromString("workers", os.Getenv(EnvPrefix+"WORKERS"), &cfg.Workers); err != nil {
		return err
	}

	s.setBoolFromString("debug", os.Getenv(EnvPrefix+"DEBUG"), &cfg.Debug)
	s.setBoolFromString("no-color", os.Getenv(EnvPrefix+"NO_COLOR"), &cfg.NoColor)
	s.setBoolFromString("use-registry-host", os.Getenv(EnvPrefix+"USE_REGISTRY_HOST"), &cfg.UseRegistryHost)

	return nil
}
