package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/pitwall/racefeed/internal/archive"
)

// FormatSuccessMessage creates a success notification body. A session fetch
// is one task per driver's telemetry plus the lap table, so the counts are
// phrased as downloads, not files.
func FormatSuccessMessage(result *archive.BatchResult, session string, duration time.Duration) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Session %s cached and ready to replay.\n", session))
	sb.WriteString(fmt.Sprintf("Downloaded %d of %d telemetry targets\n", result.Success, result.Total))
	if result.Skipped > 0 {
		sb.WriteString(fmt.Sprintf("Already cached: %d\n", result.Skipped))
	}
	if result.NotFound > 0 {
		sb.WriteString(fmt.Sprintf("Missing from archive: %d\n", result.NotFound))
	}
	sb.WriteString(fmt.Sprintf("Duration: %s", duration.Round(time.Second)))

	return sb.String()
}

// FormatFailureMessage creates a failure notification body.
func FormatFailureMessage(result *archive.BatchResult, session string, duration time.Duration, err error) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Session %s is incomplete: %d of %d targets failed.\n",
		session, result.Failed, result.Total))
	sb.WriteString(fmt.Sprintf("Downloaded: %d, already cached: %d\n", result.Success, result.Skipped))
	sb.WriteString(fmt.Sprintf("Duration: %s", duration.Round(time.Second)))

	if err != nil {
		sb.WriteString(fmt.Sprintf("\n\nError: %v", err))
	}

	// Include first 3 task errors if available
	if len(result.Errors) > 0 {
		sb.WriteString("\n\nFailed targets:\n")
		limit := 3
		if len(result.Errors) < limit {
			limit = len(result.Errors)
		}
		for i := 0; i < limit; i++ {
			sb.WriteString(fmt.Sprintf("- %s\n", result.Errors[i]))
		}
		if len(result.Errors) > 3 {
			sb.WriteString(fmt.Sprintf("... and %d more", len(result.Errors)-3))
		}
	}

	return sb.String()
}
