package notify

import (
	"fmt"
	"time"

	"github.com/notifydone/notifyd/internal/model"
)

// Title builds the notification summary line for a completed task.
func Title(task model.CompletedTask) string {
	return fmt.Sprintf("Command completed: %s", task.Comm)
}

// Body summarizes outcome, duration and exit status.
func Body(task model.CompletedTask) string {
	status := "succeeded"
	if task.ExitCode != 0 {
		status = "failed"
	}
	return fmt.Sprintf("%s\nDuration: %s\nExit code: %d",
		status, formatDuration(task.Duration), task.ExitCode)
}

func formatDuration(d time.Duration) string {
	secs := int64(d.Seconds())
	switch {
	case secs < 60:
		return fmt.Sprintf("%ds", secs)
	case secs < 3600:
		return fmt.Sprintf("%dm %ds", secs/60, secs%60)
	default:
		return fmt.Sprintf("%dh %dm %ds", secs/3600, (secs%3600)/60, secs%60)
	}
}
