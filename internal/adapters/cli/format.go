package cli

import (
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
)

// sqliteTimestamp is the layout of CURRENT_TIMESTAMP columns.
const sqliteTimestamp = "2006-01-02 15:04:05"

// relativeTime renders a stored UTC timestamp as "3 minutes ago". Values
// that do not parse are returned unchanged.
func relativeTime(ts string) string {
	if ts == "" {
		return "-"
	}
	t, err := time.ParseInLocation(sqliteTimestamp, ts, time.UTC)
	if err != nil {
		return ts
	}
	return humanize.Time(t)
}

// colorStatus colors task and execution statuses.
func colorStatus(status string) string {
	switch status {
	case "done", "completed", "published":
		return color.New(color.FgGreen).Sprint(status)
	case "inprogress", "running", "pending":
		return color.New(color.FgCyan).Sprint(status)
	case "inreview":
		return color.New(color.FgMagenta).Sprint(status)
	case "failed", "killed", "parked":
		return color.New(color.FgRed).Sprint(status)
	case "cancelled":
		return color.New(color.FgYellow).Sprint(status)
	default:
		return status
	}
}
