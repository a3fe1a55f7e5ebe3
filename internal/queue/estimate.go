package queue

import "fmt"

// DefaultEstimatedJobSeconds is the per-position wait unit used when none is configured.
const DefaultEstimatedJobSeconds = 30

// EstimateWait renders the expected wait for a waiting-list position. It is a
// fixed per-position guess, not a measurement of recent jobs.
func EstimateWait(position, unitSeconds int) string {
	seconds := position * unitSeconds
	switch {
	case seconds < 60:
		return fmt.Sprintf("~%d seconds", seconds)
	case seconds < 120:
		return "~1 minute"
	default:
		return fmt.Sprintf("~%d minutes", (seconds+59)/60)
	}
}
