package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/labkit/workcell/model"
	"github.com/labkit/workcell/service/dao"
)

func testJob(id, status string) *model.Job {
	return &model.Job{ID: id, Status: status}
}

func TestSaveAndLoad(t *testing.T) {
	service := New()
	ctx := context.Background()

	job := testJob("job-1", model.JobStatusQueued)
	assert.NoError(t, service.Save(ctx, job))

	loaded, err := service.Load(ctx, "job-1")
	assert.NoError(t, err)
	assert.Equal(t, "job-1", loaded.ID)
	assert.Equal(t, model.JobStatusQueued, loaded.Status)
}

func TestSaveValidation(t *testing.T) {
	service := New()
	ctx := context.Background()

	assert.ErrorIs(t, service.Save(ctx, nil), dao.ErrNilEntity)
	assert.ErrorIs(t, service.Save(ctx, testJob("", model.JobStatusQueued)), dao.ErrInvalidID)
}

func TestLoadMissing(t *testing.T) {
	service := New()
	ctx := context.Background()

	_, err := service.Load(ctx, "ghost")
	assert.ErrorIs(t, err, dao.ErrNotFound)
}

func TestDelete(t *testing.T) {
	service := New()
	ctx := context.Background()

	assert.NoError(t, service.Save(ctx, testJob("job-1", model.JobStatusQueued)))
	assert.NoError(t, service.Delete(ctx, "job-1"))

	_, err := service.Load(ctx, "job-1")
	assert.ErrorIs(t, err, dao.ErrNotFound)
}

func TestListFiltersByState(t *testing.T) {
	service := New()
	ctx := context.Background()

	assert.NoError(t, service.Save(ctx, testJob("job-1", model.JobStatusQueued)))
	assert.NoError(t, service.Save(ctx, testJob("job-2", model.JobStatusStarted)))
	assert.NoError(t, service.Save(ctx, testJob("job-3", model.JobStatusQueued)))

	all, err := service.List(ctx)
	assert.NoError(t, err)
	assert.Len(t, all, 3)

	queued, err := service.List(ctx, dao.NewParameter("State", model.JobStatusQueued))
	assert.NoError(t, err)
	assert.Len(t, queued, 2)

	terminal, err := service.List(ctx, dao.NewParameter("State", model.JobStatusFinished, model.JobStatusFailed))
	assert.NoError(t, err)
	assert.Empty(t, terminal)
}

func TestLoadReturnsSnapshot(t *testing.T) {
	// A worker keeps mutating its job after saving it; readers holding a
	// loaded record must see the state as of the save, not the live struct.
	service := New()
	ctx := context.Background()

	job := testJob("job-1", model.JobStatusQueued)
	assert.NoError(t, service.Save(ctx, job))

	loaded, err := service.Load(ctx, "job-1")
	assert.NoError(t, err)

	job.Start()
	assert.Equal(t, model.JobStatusQueued, loaded.Status)

	reloaded, err := service.Load(ctx, "job-1")
	assert.NoError(t, err)
	assert.Equal(t, model.JobStatusQueued, reloaded.Status)

	// Mutating a loaded copy never leaks back into the store.
	reloaded.Status = model.JobStatusFailed
	final, err := service.Load(ctx, "job-1")
	assert.NoError(t, err)
	assert.Equal(t, model.JobStatusQueued, final.Status)
}

func TestSaveReplaces(t *testing.T) {
	service := New()
	ctx := context.Background()

	job := testJob("job-1", model.JobStatusQueued)
	assert.NoError(t, service.Save(ctx, job))

	job.Start()
	assert.NoError(t, service.Save(ctx, job))

	loaded, err := service.Load(ctx, "job-1")
	assert.NoError(t, err)
	assert.Equal(t, model.JobStatusStarted, loaded.Status)

	all, err := service.List(ctx)
	assert.NoError(t, err)
	assert.Len(t, all, 1)
}
