package workcell

import (
	"log/slog"

	"github.com/viant/afs"

	"github.com/labkit/workcell/model"
	jmemory "github.com/labkit/workcell/service/dao/job/memory"
	rmemory "github.com/labkit/workcell/service/dao/run/memory"
	"github.com/labkit/workcell/service/dispatch"
	"github.com/labkit/workcell/service/messaging"
	mmemory "github.com/labkit/workcell/service/messaging/memory"
	"github.com/labkit/workcell/service/occupancy"
	"github.com/labkit/workcell/service/processor"
)

// Service wires the engine together: queue, stores, dispatch registry and
// the job processor.  Every collaborator can be replaced through an Option;
// anything left unset falls back to an in-memory default.
type Service struct {
	runtime   *Runtime
	config    *Config
	queue     messaging.Queue[model.Job]
	registry  *dispatch.Registry
	occupancy occupancy.Tracker
	fs        afs.Service
	logger    *slog.Logger
}

// New creates an engine service with the supplied options.
func New(options ...Option) (*Service, error) {
	ret := &Service{runtime: &Runtime{}, config: DefaultConfig()}
	if err := ret.init(options); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *Service) init(options []Option) error {
	for _, option := range options {
		option(s)
	}
	s.ensureBaseSetup()
	s.runtime.queue = s.queue
	s.runtime.logger = s.logger
	proc, err := processor.New(
		processor.WithMessageQueue(s.queue),
		processor.WithJobDAO(s.runtime.jobDAO),
		processor.WithRunDAO(s.runtime.runDAO),
		processor.WithRegistry(s.registry),
		processor.WithOccupancy(s.occupancy),
		processor.WithRunRoot(s.config.RunRoot),
		processor.WithFS(s.fs),
		processor.WithWorkers(s.config.Processor.WorkerCount),
		processor.WithLogger(s.logger),
	)
	if err != nil {
		return err
	}
	s.runtime.processor = proc
	return nil
}

func (s *Service) ensureBaseSetup() {
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.queue == nil {
		s.queue = mmemory.NewQueue[model.Job](mmemory.DefaultConfig())
	}
	if s.runtime.jobDAO == nil {
		s.runtime.jobDAO = jmemory.New()
	}
	if s.runtime.runDAO == nil {
		s.runtime.runDAO = rmemory.New()
	}
	if s.registry == nil {
		s.registry = dispatch.DefaultRegistry(s.config.Dispatch)
	}
	if s.fs == nil {
		s.fs = afs.New()
	}
}

// Runtime returns the engine runtime.
func (s *Service) Runtime() *Runtime {
	return s.runtime
}
