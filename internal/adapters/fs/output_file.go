// Package fs writes local-mode output records to the file system.
package fs

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	outputPrefix     = "enumjavalibs_"
	outputTimeLayout = "20060102150405"
)

// OutputName returns the output file name for a session started at t.
func OutputName(t time.Time) string {
	return outputPrefix + t.Format(outputTimeLayout) + ".csv"
}

// OutputFile implements ports.OutputSink with a CSV file of
// "<artifact>,<base64 payload>" lines.
type OutputFile struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

// CreateOutputFile creates a new output file in dir named after now. It
// fails if the file already exists.
func CreateOutputFile(dir string, now time.Time) (*OutputFile, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	path, err := filepath.Abs(filepath.Join(dir, OutputName(now)))
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}
	return &OutputFile{f: f, path: path}, nil
}

// Append writes one record and syncs it to disk.
func (o *OutputFile) Append(handle string, payload []byte) error {
	line := handle + "," + base64.StdEncoding.EncodeToString(payload) + "\n"

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.f == nil {
		return os.ErrClosed
	}
	if _, err := o.f.WriteString(line); err != nil {
		return err
	}
	return o.f.Sync()
}

// Path returns the absolute path of the file.
func (o *OutputFile) Path() string { return o.path }

// Close closes the file. Further appends fail.
func (o *OutputFile) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.f == nil {
		return nil
	}
	err := o.f.Close()
	o.f = nil
	return err
}
