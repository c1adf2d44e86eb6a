package model

import (
	"encoding/json"
	"time"

	"github.com/labkit/workcell/internal/clock"
)

// Run state constants
const (
	RunStatePending   = "pending"
	RunStateRunning   = "running"
	RunStateCompleted = "completed"
	RunStateFailed    = "failed"
)

// StepOutcome is the durable record of one dispatched step.  All three
// fields are string representations - the record must stay readable long
// after the types that produced it have changed.
type StepOutcome struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Log     string `json:"log,omitempty"`
}

// Failed reports whether the module reported a logical failure for the step.
func (o *StepOutcome) Failed() bool {
	return o != nil && o.Status == "failed"
}

// RunRecord is the durable, queryable record of one workflow execution.  It
// is created once per run, appended to step by step and immutable once the
// run terminates.
type RunRecord struct {
	RunID    string                 `json:"runId"`
	Workflow string                 `json:"workflow"`
	LogDir   string                 `json:"logDir"`
	Payload  map[string]interface{} `json:"payload,omitempty"`

	// Steps preserves the dispatch order of History keys; JSON objects do
	// not keep ordering so the order is recorded explicitly
	Steps   []string                `json:"steps"`
	History map[string]*StepOutcome `json:"history"`

	State      string     `json:"state"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// NewRunRecord creates a pending run record.
func NewRunRecord(runID, workflow, logDir string, payload map[string]interface{}) *RunRecord {
	return &RunRecord{
		RunID:     runID,
		Workflow:  workflow,
		LogDir:    logDir,
		Payload:   payload,
		History:   make(map[string]*StepOutcome),
		State:     RunStatePending,
		CreatedAt: clock.Now(),
	}
}

// Record appends a step outcome under the step's name, preserving order.
func (r *RunRecord) Record(stepName string, outcome *StepOutcome) {
	if _, exists := r.History[stepName]; !exists {
		r.Steps = append(r.Steps, stepName)
	}
	r.History[stepName] = outcome
}

// Start marks the run as running.
func (r *RunRecord) Start() {
	r.State = RunStateRunning
}

// Complete marks the run as completed.  Logical step failures recorded in
// History do not prevent completion - they are data, not errors.
func (r *RunRecord) Complete() {
	now := clock.Now()
	r.FinishedAt = &now
	r.State = RunStateCompleted
}

// Fail marks the run as failed with the fatal error that aborted it.
func (r *RunRecord) Fail(err error) {
	now := clock.Now()
	r.FinishedAt = &now
	r.State = RunStateFailed
	if err != nil {
		r.Error = err.Error()
	}
}

// MarshalIndent returns the record as indented JSON, the on-disk form written
// into the run directory.
func (r *RunRecord) MarshalIndent() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// Outcome returns the recorded outcome for a step, nil when absent.
func (r *RunRecord) Outcome(stepName string) *StepOutcome {
	return r.History[stepName]
}
