package processor

import (
	"log/slog"

	"github.com/viant/afs"

	"github.com/labkit/workcell/model"
	"github.com/labkit/workcell/service/dao"
	"github.com/labkit/workcell/service/dispatch"
	"github.com/labkit/workcell/service/messaging"
	"github.com/labkit/workcell/service/occupancy"
)

// Option customises the processor service.
type Option func(*Service)

// WithJobDAO sets the job store implementation
func WithJobDAO(jobDAO dao.Service[string, model.Job]) Option {
	return func(s *Service) {
		s.jobDAO = jobDAO
	}
}

// WithRunDAO sets the run-record store implementation
func WithRunDAO(runDAO dao.Service[string, model.RunRecord]) Option {
	return func(s *Service) {
		s.runDAO = runDAO
	}
}

// WithMessageQueue sets the job queue implementation
func WithMessageQueue(queue messaging.Queue[model.Job]) Option {
	return func(s *Service) {
		s.queue = queue
	}
}

// WithRegistry sets the dispatch registry used by runs
func WithRegistry(registry *dispatch.Registry) Option {
	return func(s *Service) {
		s.registry = registry
	}
}

// WithOccupancy sets the location occupancy tracker used by runs
func WithOccupancy(tracker occupancy.Tracker) Option {
	return func(s *Service) {
		s.occupancy = tracker
	}
}

// WithRunRoot sets the directory run directories are created under
func WithRunRoot(runRoot string) Option {
	return func(s *Service) {
		s.runRoot = runRoot
	}
}

// WithFS sets the file service used for run artifacts
func WithFS(fs afs.Service) Option {
	return func(s *Service) {
		s.fs = fs
	}
}

// WithWorkers sets the number of worker goroutines
func WithWorkers(count int) Option {
	return func(s *Service) {
		s.config.WorkerCount = count
	}
}

// WithConfig sets the configuration for the service
func WithConfig(config Config) Option {
	return func(s *Service) {
		s.config = config
	}
}

// WithLogger sets the processor logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}
