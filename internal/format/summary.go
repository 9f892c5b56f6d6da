package format

import (
	"fmt"
	"time"

	"github.com/bft-labs/serially/internal/domain"
)

// Summary renders a run summary as a two-column table.
func Summary(s domain.RunSummary, m Mode) string {
	tb := NewTable(m)
	tb.Header("Field", "Value")
	tb.Row("Run", s.RunID)
	tb.Row("Mode", string(s.Mode))
	tb.Row("Jars", s.Artifacts)
	tb.Row("Loaded", s.Loaded)
	tb.Row("Untestable", s.Untestable)
	tb.Row("Classes tried", s.Tried)
	tb.Row("Found", s.Found)
	tb.Row("Elapsed", Duration(s.Elapsed))
	if s.OutputPath != "" {
		tb.Row("Output", s.OutputPath)
	}
	tb.Columns(ColumnConfig{Number: 2, Align: AlignRight})
	return tb.String()
}

// Duration formats d as "Xm Ys", "Ys" or, below a second, milliseconds.
func Duration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	s := int(d.Seconds())
	if s >= 60 {
		return fmt.Sprintf("%dm %ds", s/60, s%60)
	}
	return fmt.Sprintf("%ds", s)
}

// Truncate shortens s to maxLen runes, appending "..." if truncated.
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
