package fs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/labkit/workcell/model"
	"github.com/labkit/workcell/service/dao"
)

func testRecord(id, state string) *model.RunRecord {
	record := model.NewRunRecord(id, "transfer_and_measure", "runs/"+id, map[string]interface{}{"wavelength": 562})
	record.State = state
	record.Record("move_plate", &model.StepOutcome{Status: "succeeded", Message: "ok"})
	return record
}

func TestNewCreatesBaseDir(t *testing.T) {
	basePath := filepath.Join(t.TempDir(), "runs")
	_, err := New(basePath)
	assert.NoError(t, err)

	info, err := os.Stat(basePath)
	assert.NoError(t, err)
	assert.True(t, info.IsDir())

	_, err = New("")
	assert.Error(t, err)
}

func TestSaveAndLoad(t *testing.T) {
	service, err := New(t.TempDir())
	assert.NoError(t, err)
	ctx := context.Background()

	assert.NoError(t, service.Save(ctx, testRecord("run-1", model.RunStateCompleted)))

	loaded, err := service.Load(ctx, "run-1")
	assert.NoError(t, err)
	assert.Equal(t, "run-1", loaded.RunID)
	assert.Equal(t, model.RunStateCompleted, loaded.State)
	assert.Equal(t, []string{"move_plate"}, loaded.Steps)
	assert.Equal(t, "succeeded", loaded.Outcome("move_plate").Status)
}

func TestSaveValidation(t *testing.T) {
	service, err := New(t.TempDir())
	assert.NoError(t, err)
	ctx := context.Background()

	assert.ErrorIs(t, service.Save(ctx, nil), dao.ErrNilEntity)
	assert.ErrorIs(t, service.Save(ctx, testRecord("", model.RunStatePending)), dao.ErrInvalidID)
}

func TestLoadMissing(t *testing.T) {
	service, err := New(t.TempDir())
	assert.NoError(t, err)

	_, err = service.Load(context.Background(), "ghost")
	assert.ErrorIs(t, err, dao.ErrNotFound)

	_, err = service.Load(context.Background(), "")
	assert.ErrorIs(t, err, dao.ErrInvalidID)
}

func TestDelete(t *testing.T) {
	service, err := New(t.TempDir())
	assert.NoError(t, err)
	ctx := context.Background()

	assert.NoError(t, service.Save(ctx, testRecord("run-1", model.RunStateCompleted)))
	assert.NoError(t, service.Delete(ctx, "run-1"))

	_, err = service.Load(ctx, "run-1")
	assert.ErrorIs(t, err, dao.ErrNotFound)

	assert.ErrorIs(t, service.Delete(ctx, "run-1"), dao.ErrNotFound)
}

func TestListFiltersByState(t *testing.T) {
	service, err := New(t.TempDir())
	assert.NoError(t, err)
	ctx := context.Background()

	assert.NoError(t, service.Save(ctx, testRecord("run-1", model.RunStateCompleted)))
	assert.NoError(t, service.Save(ctx, testRecord("run-2", model.RunStateFailed)))

	all, err := service.List(ctx)
	assert.NoError(t, err)
	assert.Len(t, all, 2)

	failed, err := service.List(ctx, dao.NewParameter("State", model.RunStateFailed))
	assert.NoError(t, err)
	assert.Len(t, failed, 1)
	assert.Equal(t, "run-2", failed[0].RunID)
}

func TestSurvivesReopen(t *testing.T) {
	basePath := t.TempDir()
	ctx := context.Background()

	service, err := New(basePath)
	assert.NoError(t, err)
	assert.NoError(t, service.Save(ctx, testRecord("run-1", model.RunStateCompleted)))

	reopened, err := New(basePath)
	assert.NoError(t, err)
	loaded, err := reopened.Load(ctx, "run-1")
	assert.NoError(t, err)
	assert.Equal(t, "run-1", loaded.RunID)
}
