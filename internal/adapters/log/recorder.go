// Package log provides logger adapters for the application layer.
package log

import (
	"sync"

	"github.com/bft-labs/serially/internal/ports"
)

// Log levels recorded by Recorder.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
	LevelFound = "found"
)

// Entry is one recorded log call.
type Entry struct {
	Level  string
	Msg    string
	Fields map[string]any
}

// Recorder implements ports.Logger by keeping every entry in memory.
// It is safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Debug records a debug entry.
func (r *Recorder) Debug(msg string, fields ...ports.Field) { r.add(LevelDebug, msg, fields) }

// Info records an info entry.
func (r *Recorder) Info(msg string, fields ...ports.Field) { r.add(LevelInfo, msg, fields) }

// Warn records a warning entry.
func (r *Recorder) Warn(msg string, fields ...ports.Field) { r.add(LevelWarn, msg, fields) }

// Error records an error entry.
func (r *Recorder) Error(msg string, fields ...ports.Field) { r.add(LevelError, msg, fields) }

// Found records a finding.
func (r *Recorder) Found(msg string, fields ...ports.Field) { r.add(LevelFound, msg, fields) }

func (r *Recorder) add(level, msg string, fields []ports.Field) {
	e := Entry{Level: level, Msg: msg}
	if len(fields) > 0 {
		e.Fields = make(map[string]any, len(fields))
		for _, f := range fields {
			e.Fields[f.Key] = f.Value
		}
	}
	r.mu.Lock()
	r.entries = append(r.entries, e)
	r.mu.Unlock()
}

// Entries returns a copy of everything recorded so far.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}

// Messages returns the messages recorded at level, in order.
func (r *Recorder) Messages(level string) []string {
	var msgs []string
	for _, e := range r.Entries() {
		if e.Level == level {
			msgs = append(msgs, e.Msg)
		}
	}
	return msgs
}
