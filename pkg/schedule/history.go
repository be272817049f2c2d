package schedule

import (
	"time"
)

// EventJobFinished is published on core.Bus with a JobHistory after every run, skipped ones included.
const EventJobFinished = "event.job.finished"

type JobHistory struct {
	App      string
	Job      string
	Start    time.Time
	Finished time.Time
	Duration time.Duration
	Succeed  bool
	// Skipped is set when the job lock was held elsewhere.
	Skipped bool
	Message string
}
