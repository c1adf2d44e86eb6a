package processor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/labkit/workcell/model"
	jmemory "github.com/labkit/workcell/service/dao/job/memory"
	rmemory "github.com/labkit/workcell/service/dao/run/memory"
	"github.com/labkit/workcell/service/messaging/memory"
)

func testWorkcell() *model.Workcell {
	return &model.Workcell{
		Name: "test_cell",
		Modules: []*model.Module{
			{Name: "robotarm", Interface: model.InterfaceSimulated},
		},
	}
}

func testWorkflow() *model.Workflow {
	return &model.Workflow{
		Name:    "transfer",
		Modules: []string{"robotarm"},
		Flowdef: []*model.Step{
			{Name: "move_plate", Module: "robotarm", Command: "transfer"},
		},
	}
}

type fixture struct {
	service *Service
	queue   *memory.Queue[model.Job]
	jobDAO  *jmemory.Service
	runDAO  *rmemory.Service
}

func newFixture(t *testing.T) *fixture {
	queue := memory.NewQueue[model.Job](memory.DefaultConfig())
	jobDAO := jmemory.New()
	runDAO := rmemory.New()
	service, err := New(
		WithMessageQueue(queue),
		WithJobDAO(jobDAO),
		WithRunDAO(runDAO),
		WithRunRoot(t.TempDir()),
		WithWorkers(2),
	)
	if err != nil {
		t.Fatalf("failed to build processor: %v", err)
	}
	return &fixture{service: service, queue: queue, jobDAO: jobDAO, runDAO: runDAO}
}

// submit stores the job and publishes it, the same sequence the runtime uses.
func (f *fixture) submit(t *testing.T, ctx context.Context, job *model.Job) {
	if err := f.jobDAO.Save(ctx, job); err != nil {
		t.Fatalf("failed to save job: %v", err)
	}
	if err := f.queue.Publish(ctx, job); err != nil {
		t.Fatalf("failed to publish job: %v", err)
	}
}

func (f *fixture) waitForJob(t *testing.T, ctx context.Context, id string, terminal ...string) *model.Job {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := f.jobDAO.Load(ctx, id)
		if err == nil {
			for _, status := range terminal {
				if job.Status == status {
					return job
				}
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s never reached %v", id, terminal)
	return nil
}

func TestNewValidation(t *testing.T) {
	queue := memory.NewQueue[model.Job](memory.DefaultConfig())

	_, err := New(WithJobDAO(jmemory.New()), WithRunDAO(rmemory.New()))
	assert.Error(t, err, "queue required")

	_, err = New(WithMessageQueue(queue), WithRunDAO(rmemory.New()))
	assert.Error(t, err, "job store required")

	_, err = New(WithMessageQueue(queue), WithJobDAO(jmemory.New()))
	assert.Error(t, err, "run store required")
}

func TestProcessJob(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	assert.NoError(t, f.service.Start(ctx))
	defer f.service.Shutdown()

	job := model.NewJob("job-1", testWorkflow(), testWorkcell(), map[string]interface{}{"plate": "p1"}, true)
	f.submit(t, ctx, job)

	finished := f.waitForJob(t, ctx, "job-1", model.JobStatusFinished)
	assert.NotEmpty(t, finished.RunID)
	assert.NotNil(t, finished.Result)
	assert.Equal(t, model.RunStateCompleted, finished.Result.State)
	assert.NotNil(t, finished.StartedAt)
	assert.NotNil(t, finished.FinishedAt)

	// The run record was persisted under its run id
	record, err := f.runDAO.Load(ctx, finished.RunID)
	assert.NoError(t, err)
	assert.Equal(t, "transfer", record.Workflow)

	stats := f.service.Stats()
	assert.Equal(t, int64(1), stats.Started.Load())
	assert.Equal(t, int64(1), stats.Finished.Load())
	assert.Equal(t, int64(0), stats.Failed.Load())
}

func TestProcessJobConfigurationError(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	assert.NoError(t, f.service.Start(ctx))
	defer f.service.Shutdown()

	// Workflow references a module the workcell does not have
	workflow := &model.Workflow{
		Name:    "broken",
		Modules: []string{"centrifuge"},
		Flowdef: []*model.Step{{Name: "spin", Module: "centrifuge", Command: "spin"}},
	}
	job := model.NewJob("job-bad", workflow, testWorkcell(), nil, true)
	f.submit(t, ctx, job)

	failed := f.waitForJob(t, ctx, "job-bad", model.JobStatusFailed)
	assert.Contains(t, failed.Error, "centrifuge")
	assert.Nil(t, failed.Result)

	// Failed jobs are acknowledged, never retried
	assert.Equal(t, 0, f.queue.Size())
	assert.Equal(t, 0, f.queue.DLQSize())
	assert.Equal(t, int64(1), f.service.Stats().Failed.Load())
}

func TestProcessMultipleJobs(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	assert.NoError(t, f.service.Start(ctx))
	defer f.service.Shutdown()

	ids := []string{"job-1", "job-2", "job-3"}
	for _, id := range ids {
		f.submit(t, ctx, model.NewJob(id, testWorkflow(), testWorkcell(), nil, true))
	}
	for _, id := range ids {
		f.waitForJob(t, ctx, id, model.JobStatusFinished)
	}

	runs, err := f.runDAO.List(ctx)
	assert.NoError(t, err)
	assert.Len(t, runs, 3)
	assert.Equal(t, int64(3), f.service.Stats().Finished.Load())
}

func TestShutdownStopsWorkers(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	assert.NoError(t, f.service.Start(ctx))

	job := model.NewJob("job-1", testWorkflow(), testWorkcell(), nil, true)
	f.submit(t, ctx, job)
	f.waitForJob(t, ctx, "job-1", model.JobStatusFinished)

	done := make(chan struct{})
	go func() {
		f.service.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown never returned")
	}
}
