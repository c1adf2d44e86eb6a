package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/viant/afs"

	"github.com/labkit/workcell/model"
	"github.com/labkit/workcell/runtime/runner"
	"github.com/labkit/workcell/service/dao"
	"github.com/labkit/workcell/service/dispatch"
	"github.com/labkit/workcell/service/messaging"
	"github.com/labkit/workcell/service/occupancy"
	"github.com/labkit/workcell/tracing"
)

// Config represents processor service configuration
type Config struct {
	// WorkerCount is the number of workers consuming the job queue
	WorkerCount int

	// PollDelay is the pause between polls when the queue is empty; only
	// polling queue implementations (e.g. filesystem) ever return empty
	PollDelay time.Duration
}

// DefaultConfig returns the default processor configuration
func DefaultConfig() Config {
	return Config{
		WorkerCount: 5,
		PollDelay:   200 * time.Millisecond,
	}
}

// Stats counts processed jobs.
type Stats struct {
	Started  atomic.Int64
	Finished atomic.Int64
	Failed   atomic.Int64
}

// Service consumes queued jobs and executes them.
type Service struct {
	config    Config
	jobDAO    dao.Service[string, model.Job]
	runDAO    dao.Service[string, model.RunRecord]
	queue     messaging.Queue[model.Job]
	registry  *dispatch.Registry
	occupancy occupancy.Tracker
	fs        afs.Service
	runRoot   string
	logger    *slog.Logger
	stats     Stats

	workers  []*worker
	workerWg sync.WaitGroup
}

type worker struct {
	id       int
	service  *Service
	ctx      context.Context
	cancelFn context.CancelFunc
}

// New creates a new processor service
func New(options ...Option) (*Service, error) {
	s := &Service{
		config:  DefaultConfig(),
		runRoot: "runs",
		logger:  slog.Default(),
	}
	for _, opt := range options {
		opt(s)
	}
	if s.queue == nil {
		return nil, fmt.Errorf("job queue is required")
	}
	if s.jobDAO == nil {
		return nil, fmt.Errorf("jobDAO service is required")
	}
	if s.runDAO == nil {
		return nil, fmt.Errorf("runDAO service is required")
	}
	if s.registry == nil {
		s.registry = dispatch.DefaultRegistry(dispatch.DefaultConfig())
	}
	if s.fs == nil {
		s.fs = afs.New()
	}
	return s, nil
}

// Start launches the worker goroutines
func (s *Service) Start(ctx context.Context) error {
	for i := 0; i < s.config.WorkerCount; i++ {
		workerCtx, cancel := context.WithCancel(ctx)
		worker := &worker{
			id:       i,
			service:  s,
			ctx:      workerCtx,
			cancelFn: cancel,
		}
		s.workers = append(s.workers, worker)
		s.workerWg.Add(1)
		go worker.run()
	}
	return nil
}

// run consumes jobs from the queue until the worker context ends
func (w *worker) run() {
	defer w.service.workerWg.Done()

	for {
		msg, err := w.service.queue.Consume(w.ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			time.Sleep(100 * time.Millisecond)
			continue
		}
		if msg == nil {
			// Polling queue with nothing pending
			select {
			case <-w.ctx.Done():
				return
			case <-time.After(w.service.config.PollDelay):
			}
			continue
		}

		if pErr := w.service.processJob(w.ctx, msg); pErr != nil {
			w.service.logger.Error("worker failed to process job", "worker", w.id, "error", pErr)
		}
	}
}

// processJob executes one queued job end to end.  A job that cannot even
// construct a runner (misconfigured workflow) fails immediately; a run is
// attempted exactly once, there is no job-level retry.
func (s *Service) processJob(ctx context.Context, message messaging.Message[model.Job]) (err error) {
	job := message.T()

	ctx, span := tracing.StartSpan(ctx, fmt.Sprintf("processor.job %s", job.ID), "CONSUMER")
	span.WithAttributes(map[string]string{"job.id": job.ID})
	defer func() { tracing.EndSpan(span, err) }()

	job.Start()
	s.stats.Started.Add(1)
	if err := s.jobDAO.Save(ctx, job); err != nil {
		return message.Nack(err)
	}
	s.logger.Info("job started", "jobId", job.ID, "workflow", job.Workflow.Name)

	service, err := runner.New(job.Workflow, job.Workcell,
		runner.WithRegistry(s.registry),
		runner.WithOccupancy(s.occupancy),
		runner.WithRunRoot(s.runRoot),
		runner.WithSimulate(job.Simulate),
		runner.WithFS(s.fs),
		runner.WithLogger(s.logger),
	)
	if err != nil {
		return s.finishJob(ctx, message, job, nil, err)
	}

	record, runErr := service.Run(ctx, job.Payload)
	if record != nil {
		if daoErr := s.runDAO.Save(ctx, record); daoErr != nil {
			s.logger.Warn("failed to save run record", "runId", record.RunID, "error", daoErr)
		}
	}
	return s.finishJob(ctx, message, job, record, runErr)
}

// finishJob records the terminal job state and acknowledges the message.  A
// failed job is acknowledged, not nacked: the failure is recorded on the job
// itself and a retry would redo side effects on hardware.
func (s *Service) finishJob(ctx context.Context, message messaging.Message[model.Job], job *model.Job, record *model.RunRecord, runErr error) error {
	if runErr != nil {
		job.Fail(runErr, record)
		s.stats.Failed.Add(1)
		s.logger.Error("job failed", "jobId", job.ID, "workflow", job.Workflow.Name, "error", runErr)
	} else {
		job.Finish(record)
		s.stats.Finished.Add(1)
		s.logger.Info("job finished", "jobId", job.ID, "workflow", job.Workflow.Name, "runId", job.RunID)
	}
	if err := s.jobDAO.Save(ctx, job); err != nil {
		return message.Nack(err)
	}
	return message.Ack()
}

// Stats returns the processor counters.
func (s *Service) Stats() *Stats {
	return &s.stats
}

// Shutdown stops the workers and waits for in-flight jobs to finish
func (s *Service) Shutdown() {
	for _, worker := range s.workers {
		worker.cancelFn()
	}
	s.workerWg.Wait()
}
