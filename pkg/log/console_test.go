package log_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bft-labs/serially/pkg/log"
)

func TestConsoleLogger_Prefixes(t *testing.T) {
	tests := []struct {
		name  string
		debug bool
		emit  func(log.Logger)
		want  string
	}{
		{name: "info", emit: func(l log.Logger) { l.Info("Using catalog") }, want: "[*] Using catalog\n"},
		{name: "found", emit: func(l log.Logger) { l.Found("lib1.jar found") }, want: "[+] lib1.jar found\n"},
		{name: "error", emit: func(l log.Logger) { l.Error("write failed") }, want: "[!] write failed\n"},
		{name: "warn", emit: func(l log.Logger) { l.Warn("careful") }, want: "[!] careful\n"},
		{name: "debug shown", debug: true, emit: func(l log.Logger) { l.Debug("trace") }, want: "[D] trace\n"},
		{name: "debug hidden", emit: func(l log.Logger) { l.Debug("trace") }, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := log.NewConsoleLogger(log.ConsoleOptions{Out: &buf, Debug: tt.debug, NoColor: true})
			defer logger.Close()

			tt.emit(logger)
			if got := buf.String(); got != tt.want {
				t.Errorf("output = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConsoleLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewConsoleLogger(log.ConsoleOptions{Out: &buf, Debug: true, NoColor: true})

	logger.Debug("Couldn't dynamically load jar file", log.String("jar", "a.jar"), log.Err(errors.New("boom")))
	got := buf.String()
	for _, want := range []string{"[D] Couldn't dynamically load jar file", "jar=a.jar", "boom"} {
		if !strings.Contains(got, want) {
			t.Errorf("output %q does not contain %q", got, want)
		}
	}
	if strings.Contains(got, log.FindingKey) {
		t.Errorf("output %q leaks the finding marker", got)
	}
}

func TestConsoleLogger_FindingColor(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewConsoleLogger(log.ConsoleOptions{Out: &buf})

	logger.Found("present")
	if got := buf.String(); !strings.Contains(got, "\x1b[32m") {
		t.Errorf("finding %q is not green", got)
	}
}

func TestConsoleLogger_LogFileGetsDebug(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "serially.log")
	logger := log.NewConsoleLogger(log.ConsoleOptions{Out: &buf, NoColor: true, LogFile: path})

	logger.Debug("hidden on console", log.Int("n", 3))
	logger.Info("shown")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if got := buf.String(); got != "[*] shown\n" {
		t.Errorf("console = %q", got)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("log file has %d lines, want 2:\n%s", len(lines), data)
	}
	var first map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if first["level"] != "debug" || first["message"] != "hidden on console" || first["n"] != float64(3) {
		t.Errorf("first log line = %v", first)
	}
}

func TestNoopLogger(t *testing.T) {
	var l log.Logger = log.NewNoopLogger()
	l.Debug("x")
	l.Info("x")
	l.Warn("x")
	l.Error("x")
	l.Found("x")
}
