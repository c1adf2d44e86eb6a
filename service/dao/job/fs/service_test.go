package fs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/labkit/workcell/model"
	"github.com/labkit/workcell/service/dao"
)

func testJob(id, status string) *model.Job {
	job := model.NewJob(id, &model.Workflow{Name: "transfer"}, &model.Workcell{Name: "cell"}, nil, true)
	job.Status = status
	return job
}

func TestSaveAndLoad(t *testing.T) {
	service, err := New(t.TempDir())
	assert.NoError(t, err)
	ctx := context.Background()

	assert.NoError(t, service.Save(ctx, testJob("job-1", model.JobStatusQueued)))

	loaded, err := service.Load(ctx, "job-1")
	assert.NoError(t, err)
	assert.Equal(t, "job-1", loaded.ID)
	assert.Equal(t, "transfer", loaded.Workflow.Name)
	assert.True(t, loaded.Simulate)
}

func TestSaveValidation(t *testing.T) {
	service, err := New(t.TempDir())
	assert.NoError(t, err)
	ctx := context.Background()

	assert.ErrorIs(t, service.Save(ctx, nil), dao.ErrNilEntity)
	assert.ErrorIs(t, service.Save(ctx, testJob("", model.JobStatusQueued)), dao.ErrInvalidID)

	_, err = New("")
	assert.Error(t, err)
}

func TestLoadMissing(t *testing.T) {
	service, err := New(t.TempDir())
	assert.NoError(t, err)

	_, err = service.Load(context.Background(), "ghost")
	assert.ErrorIs(t, err, dao.ErrNotFound)
}

func TestDelete(t *testing.T) {
	service, err := New(t.TempDir())
	assert.NoError(t, err)
	ctx := context.Background()

	assert.NoError(t, service.Save(ctx, testJob("job-1", model.JobStatusQueued)))
	assert.NoError(t, service.Delete(ctx, "job-1"))

	_, err = service.Load(ctx, "job-1")
	assert.ErrorIs(t, err, dao.ErrNotFound)
}

func TestListFiltersByState(t *testing.T) {
	service, err := New(t.TempDir())
	assert.NoError(t, err)
	ctx := context.Background()

	assert.NoError(t, service.Save(ctx, testJob("job-1", model.JobStatusQueued)))
	assert.NoError(t, service.Save(ctx, testJob("job-2", model.JobStatusFinished)))

	all, err := service.List(ctx)
	assert.NoError(t, err)
	assert.Len(t, all, 2)

	queued, err := service.List(ctx, dao.NewParameter("State", model.JobStatusQueued))
	assert.NoError(t, err)
	assert.Len(t, queued, 1)
	assert.Equal(t, "job-1", queued[0].ID)
}

func TestSurvivesReopen(t *testing.T) {
	basePath := t.TempDir()
	ctx := context.Background()

	service, err := New(basePath)
	assert.NoError(t, err)
	job := testJob("job-1", model.JobStatusQueued)
	job.Start()
	assert.NoError(t, service.Save(ctx, job))

	reopened, err := New(basePath)
	assert.NoError(t, err)
	loaded, err := reopened.Load(ctx, "job-1")
	assert.NoError(t, err)
	assert.Equal(t, model.JobStatusStarted, loaded.Status)
	assert.NotNil(t, loaded.StartedAt)
}
