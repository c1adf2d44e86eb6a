// Package memory provides the in-memory job store used by default; jobs are
// transient bookkeeping and survive only for the server's lifetime.
package memory

import (
	"context"

	"github.com/labkit/workcell/model"
	"github.com/labkit/workcell/service/dao"
	"github.com/labkit/workcell/service/dao/criteria"
	"github.com/labkit/workcell/service/dao/store"
)

// Service implements an in-memory, thread-safe store for jobs.
type Service struct {
	*store.MemoryStore[string, model.Job]
}

var _ dao.Service[string, model.Job] = (*Service)(nil)

// New creates an empty job store.
func New() *Service {
	return &Service{
		MemoryStore: store.NewMemoryStore[string, model.Job](func(j *model.Job) string { return j.ID }),
	}
}

// Save persists the job, rejecting a missing id.
func (s *Service) Save(ctx context.Context, job *model.Job) error {
	if job == nil {
		return dao.ErrNilEntity
	}
	if job.ID == "" {
		return dao.ErrInvalidID
	}
	return s.MemoryStore.Save(ctx, job)
}

// List returns jobs, optionally filtered by the State parameter.
func (s *Service) List(ctx context.Context, parameters ...*dao.Parameter) ([]*model.Job, error) {
	jobs, err := s.MemoryStore.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*model.Job, 0, len(jobs))
	for _, job := range jobs {
		if !criteria.FilterByState(string(job.Status), parameters) {
			continue
		}
		out = append(out, job)
	}
	return out, nil
}
