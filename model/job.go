package model

import (
	"time"

	"github.com/labkit/workcell/internal/clock"
)

// Job status constants, reported verbatim through the job status query.
const (
	JobStatusQueued   = "queued"
	JobStatusStarted  = "started"
	JobStatusFinished = "finished"
	JobStatusFailed   = "failed"
)

// Job is one queued workflow-run request: the workflow definition, the
// workcell snapshot it binds to and the run-scoped payload.  The job record
// is the only shared mutable state between submission and execution; it is
// owned by the job store, never by the runner.
type Job struct {
	ID       string                 `json:"id"`
	Workflow *Workflow              `json:"workflow"`
	Workcell *Workcell              `json:"workcell"`
	Payload  map[string]interface{} `json:"payload,omitempty"`
	Simulate bool                   `json:"simulate,omitempty"`

	Status string     `json:"status"`
	RunID  string     `json:"runId,omitempty"`
	Error  string     `json:"error,omitempty"`
	Result *RunRecord `json:"result,omitempty"`

	CreatedAt  time.Time  `json:"createdAt"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// NewJob creates a queued job.
func NewJob(id string, workflow *Workflow, cell *Workcell, payload map[string]interface{}, simulate bool) *Job {
	return &Job{
		ID:        id,
		Workflow:  workflow,
		Workcell:  cell,
		Payload:   payload,
		Simulate:  simulate,
		Status:    JobStatusQueued,
		CreatedAt: clock.Now(),
	}
}

// Start marks the job as picked up by a worker.
func (j *Job) Start() {
	now := clock.Now()
	j.StartedAt = &now
	j.Status = JobStatusStarted
}

// Finish marks the job as finished with its run record.
func (j *Job) Finish(record *RunRecord) {
	now := clock.Now()
	j.FinishedAt = &now
	j.Status = JobStatusFinished
	j.Result = record
	if record != nil {
		j.RunID = record.RunID
	}
}

// Fail marks the job as failed.  A partial run record, when one exists, is
// still attached so the caller can see how far the run got.
func (j *Job) Fail(err error, record *RunRecord) {
	now := clock.Now()
	j.FinishedAt = &now
	j.Status = JobStatusFailed
	j.Result = record
	if record != nil {
		j.RunID = record.RunID
	}
	if err != nil {
		j.Error = err.Error()
	}
}
