package workcell

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/labkit/workcell/internal/idgen"
	"github.com/labkit/workcell/model"
	"github.com/labkit/workcell/service/dao"
	"github.com/labkit/workcell/service/messaging"
	"github.com/labkit/workcell/service/processor"
)

// Runtime is the running engine: it accepts workflow submissions and exposes
// job and run queries.
type Runtime struct {
	queue     messaging.Queue[model.Job]
	jobDAO    dao.Service[string, model.Job]
	runDAO    dao.Service[string, model.RunRecord]
	processor *processor.Service
	cell      *model.Workcell
	logger    *slog.Logger
}

// Receipt acknowledges an accepted submission.
type Receipt struct {
	JobID     string `json:"jobId"`
	Status    string `json:"status"`
	JobsAhead int    `json:"jobsAhead"`
}

// QueueInfo summarises the job population by status.
type QueueInfo struct {
	Queued   int `json:"queued"`
	Started  int `json:"started"`
	Finished int `json:"finished"`
	Failed   int `json:"failed"`
}

// Submit validates the workflow against the workcell and enqueues a job.
// Validation is fail fast: a structurally broken workflow or one referencing
// modules the workcell lacks is rejected here and no job exists afterwards.
// The workcell argument may be nil when a default workcell was configured.
func (r *Runtime) Submit(ctx context.Context, workflow *model.Workflow, cell *model.Workcell, payload map[string]interface{}, simulate bool) (*Receipt, error) {
	if workflow == nil {
		return nil, fmt.Errorf("workflow is required")
	}
	if cell == nil {
		cell = r.cell
	}
	if issues := workflow.Validate(); len(issues) > 0 {
		return nil, &model.ConfigurationError{Workflow: workflow.Name, Detail: fmt.Sprintf("invalid workflow: %v", issues)}
	}
	if err := workflow.Bind(cell); err != nil {
		return nil, err
	}

	job := model.NewJob(idgen.New(), workflow, cell, payload, simulate)

	jobsAhead := 0
	if queued, err := r.jobDAO.List(ctx, dao.NewParameter("State", model.JobStatusQueued)); err == nil {
		jobsAhead = len(queued)
	}

	if err := r.jobDAO.Save(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}
	if err := r.queue.Publish(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}
	r.logger.Info("job submitted", "jobId", job.ID, "workflow", workflow.Name, "jobsAhead", jobsAhead, "simulate", simulate)

	return &Receipt{JobID: job.ID, Status: model.JobStatusQueued, JobsAhead: jobsAhead}, nil
}

// Job returns a job by id.
func (r *Runtime) Job(ctx context.Context, id string) (*model.Job, error) {
	return r.jobDAO.Load(ctx, id)
}

// Jobs lists jobs, optionally filtered by the State parameter.
func (r *Runtime) Jobs(ctx context.Context, parameters ...*dao.Parameter) ([]*model.Job, error) {
	return r.jobDAO.List(ctx, parameters...)
}

// Run returns a run record by run id.
func (r *Runtime) Run(ctx context.Context, id string) (*model.RunRecord, error) {
	return r.runDAO.Load(ctx, id)
}

// Runs lists run records, optionally filtered by the State parameter.
func (r *Runtime) Runs(ctx context.Context, parameters ...*dao.Parameter) ([]*model.RunRecord, error) {
	return r.runDAO.List(ctx, parameters...)
}

// Workcell returns the default workcell, nil when none was configured.
func (r *Runtime) Workcell() *model.Workcell {
	return r.cell
}

// QueueInfo returns job counts by status.
func (r *Runtime) QueueInfo(ctx context.Context) (*QueueInfo, error) {
	jobs, err := r.jobDAO.List(ctx)
	if err != nil {
		return nil, err
	}
	info := &QueueInfo{}
	for _, job := range jobs {
		switch job.Status {
		case model.JobStatusQueued:
			info.Queued++
		case model.JobStatusStarted:
			info.Started++
		case model.JobStatusFinished:
			info.Finished++
		case model.JobStatusFailed:
			info.Failed++
		}
	}
	return info, nil
}

// Start starts the job workers.
func (r *Runtime) Start(ctx context.Context) error {
	return r.processor.Start(ctx)
}

// Shutdown stops the workers and waits for in-flight jobs.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.processor.Shutdown()
	return nil
}
