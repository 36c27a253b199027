package worker

import (
	"time"
)

// Job is one backup request, from the CLI or a daemon trigger.
type Job struct {
	Source      string
	Incremental bool
	DryRun      bool
	Trigger     string // "cli", "schedule", "watch"
	At          time.Time
}
