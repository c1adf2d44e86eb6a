// Package memory provides the in-memory run-record store.
package memory

import (
	"context"

	"github.com/labkit/workcell/model"
	"github.com/labkit/workcell/service/dao"
	"github.com/labkit/workcell/service/dao/criteria"
	"github.com/labkit/workcell/service/dao/store"
)

// Service implements an in-memory, thread-safe store for run records.
type Service struct {
	*store.MemoryStore[string, model.RunRecord]
}

var _ dao.Service[string, model.RunRecord] = (*Service)(nil)

// New creates an empty run-record store.
func New() *Service {
	return &Service{
		MemoryStore: store.NewMemoryStore[string, model.RunRecord](func(r *model.RunRecord) string { return r.RunID }),
	}
}

// Save persists the record, rejecting a missing run id.
func (s *Service) Save(ctx context.Context, record *model.RunRecord) error {
	if record == nil {
		return dao.ErrNilEntity
	}
	if record.RunID == "" {
		return dao.ErrInvalidID
	}
	return s.MemoryStore.Save(ctx, record)
}

// List returns run records, optionally filtered by the State parameter.
func (s *Service) List(ctx context.Context, parameters ...*dao.Parameter) ([]*model.RunRecord, error) {
	records, err := s.MemoryStore.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*model.RunRecord, 0, len(records))
	for _, record := range records {
		if !criteria.FilterByState(record.State, parameters) {
			continue
		}
		out = append(out, record)
	}
	return out, nil
}
