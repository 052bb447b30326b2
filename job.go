package faktory

import (
	"time"

	"github.com/google/uuid"
)

// Job is the wire record for one unit of work. The batch client embeds jobs
// opaquely under a batch's success/complete callbacks: it marshals them and
// never inspects their fields.
type Job struct {
	// JID uniquely identifies the job. Generated by NewJob.
	JID string `json:"jid"`

	// Type is the registered job type the server dispatches on.
	Type string `json:"jobtype"`

	// Args are the positional job arguments.
	Args []any `json:"args"`

	Queue      string         `json:"queue,omitempty"`
	Priority   uint8          `json:"priority,omitempty"`
	Retry      *int           `json:"retry,omitempty"`
	At         string         `json:"at,omitempty"`
	ReserveFor int            `json:"reserve_for,omitempty"`
	Custom     map[string]any `json:"custom,omitempty"`
}

// NewJob builds a job record for jobtype with the given arguments. Args must
// not be nil; pass an empty slice for a job without arguments.
//
// Example:
//
//	job := faktory.NewJob("report.nightly", []any{"2026-08-29"},
//	    faktory.WithQueue("reports"),
//	    faktory.WithRetry(3),
//	)
func NewJob(jobtype string, args []any, opts ...JobOption) *Job {
	job := &Job{
		JID:  uuid.NewString(),
		Type: jobtype,
		Args: args,
	}
	for _, opt := range opts {
		opt(job)
	}
	return job
}

// ScheduledAt formats t the way the server expects for the job's At field.
func ScheduledAt(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
