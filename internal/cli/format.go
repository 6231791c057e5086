package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fpang/etsyflow/internal/batch"
)

// FormatDurationShort formats a duration in a short format (M:SS or H:MM:SS).
func FormatDurationShort(d time.Duration) string {
	totalSeconds := int(d.Seconds())
	hours := totalSeconds / 3600
	minutes := (totalSeconds % 3600) / 60
	seconds := totalSeconds % 60

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}

// PrintBatchSummary writes one line per asset followed by per-state totals.
func PrintBatchSummary(w io.Writer, snap batch.BatchSnapshot, elapsed time.Duration) {
	for _, a := range snap.Assets {
		line := fmt.Sprintf("  %-10s %s", a.State, a.Name)
		if a.Width > 0 {
			line += fmt.Sprintf(" (%dx%d, %s)", a.SourceWidth, a.SourceHeight, a.Resolution)
		}
		if a.LastError != "" {
			line += ": " + a.LastError
		}
		fmt.Fprintln(w, line)
	}

	counts := snap.Counts()
	var parts []string
	for _, s := range []batch.State{batch.StateCompleted, batch.StateReady, batch.StateError} {
		if n := counts[s]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, s))
		}
	}
	if len(parts) == 0 {
		parts = append(parts, "no assets")
	}
	fmt.Fprintf(w, "\n%s in %s\n", strings.Join(parts, ", "), FormatDurationShort(elapsed))
}
