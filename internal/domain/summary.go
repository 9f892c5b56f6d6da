package domain

import "time"

// RunSummary counts what an enumeration pass did.
type RunSummary struct {
	RunID      string
	Mode       Mode
	Artifacts  int
	Loaded     int
	Untestable int
	Found      int
	Tried      int
	Elapsed    time.Duration
	OutputPath string
}
