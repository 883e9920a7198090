package worker

import (
	"time"

	"github.com/google/uuid"
)

// Job is one backup invocation submitted to the worker.
type Job struct {
	ID      string
	Trigger string // "cli", "schedule"
	At      time.Time
}

// NewJob stamps a job with a fresh run ID.
func NewJob(trigger string, at time.Time) Job {
	return Job{
		ID:      uuid.NewString(),
		Trigger: trigger,
		At:      at,
	}
}
