package cliconfig

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestApplyEnvConfig(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		changed  map[string]bool
		initial  Config
		expected Config
		wantErr  bool
	}{
		{
			name: "applies all valid env vars",
			envVars: map[string]string{
				"SERIALLY_HOME":              "/env/home",
				"SERIALLY_JAR_DIR":           "/env/jars",
				"SERIALLY_CATALOG":           "/env/java.sqlite",
				"SERIALLY_OUTPUT_DIR":        "/env/out",
				"SERIALLY_FILTER":            "org.apache",
				"SERIALLY_LOG_FILE":          "/env/serially.log",
				"SERIALLY_TIMEOUT":           "30s",
				"SERIALLY_WORKERS":           "4",
				"SERIALLY_DEBUG":             "true",
				"SERIALLY_NO_COLOR":          "1",
				"SERIALLY_USE_REGISTRY_HOST": "true",
			},
			changed: map[string]bool{},
			expected: Config{
				Home:            "/env/home",
				JarDir:          "/env/jars",
				Catalog:         "/env/java.sqlite",
				OutputDir:       "/env/out",
				Filter:          "org.apache",
				LogFile:         "/env/serially.log",
				Timeout:         30 * time.Second,
				Workers:         4,
				Debug:           true,
				NoColor:         true,
				UseRegistryHost: true,
			},
		},
		{
			name: "respects changed flags",
			envVars: map[string]string{
				"SERIALLY_HOME":   "/env/home",
				"SERIALLY_FILTER": "org.apache",
			},
			changed:  map[string]bool{"home": true},
			initial:  Config{Home: "/flag/home"},
			expected: Config{Home: "/flag/home", Filter: "org.apache"},
		},
		{
			name:    "returns error for invalid duration",
			envVars: map[string]string{"SERIALLY_TIMEOUT": "soon"},
			changed: map[string]bool{},
			wantErr: true,
		},
		{
			name:    "returns error for invalid int",
			envVars: map[string]string{"SERIALLY_WORKERS": "many"},
			changed: map[string]bool{},
			wantErr: true,
		},
		{
			name:     "ignores non-positive workers",
			envVars:  map[string]string{"SERIALLY_WORKERS": "0"},
			changed:  map[string]bool{},
			initial:  Config{Workers: 8},
			expected: Config{Workers: 8},
		},
		{
			name:     "handles bool 'false' as false",
			envVars:  map[string]string{"SERIALLY_DEBUG": "false"},
			changed:  map[string]bool{},
			initial:  Config{Debug: true},
			expected: Config{Debug: false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg := tt.initial
			err := ApplyEnvConfig(&cfg, tt.changed)
			if tt.wantErr {
				if err == nil {
					t.Error("ApplyEnvConfig() expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("ApplyEnvConfig() unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.expected, cfg); diff != "" {
				t.Errorf("config mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// Precedence order: CLI > Env > File.
func TestConfigPrecedence(t *testing.T) {
	trueVal := true

	fileConf := FileConfig{
		Home:    "/file/home",
		Filter:  "file.filter",
		JarDir:  "/file/jars",
		NoColor: &trueVal,
	}

	t.Setenv("SERIALLY_HOME", "/env/home")
	t.Setenv("SERIALLY_FILTER", "env.filter")

	changed := map[string]bool{"home": true}
	cfg := Config{Home: "/cli/home"}

	if err := ApplyFileConfig(&cfg, fileConf, changed); err != nil {
		t.Fatalf("ApplyFileConfig failed: %v", err)
	}
	if err := ApplyEnvConfig(&cfg, changed); err != nil {
		t.Fatalf("ApplyEnvConfig failed: %v", err)
	}

	want := Config{
		Home:    "/cli/home",
		Filter:  "env.filter",
		JarDir:  "/file/jars",
		NoColor: true,
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}
