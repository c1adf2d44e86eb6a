package workcell

import (
	"log/slog"

	"github.com/viant/afs"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/labkit/workcell/model"
	"github.com/labkit/workcell/service/dao"
	"github.com/labkit/workcell/service/dispatch"
	"github.com/labkit/workcell/service/messaging"
	"github.com/labkit/workcell/service/occupancy"
	"github.com/labkit/workcell/tracing"
)

// Option customises the engine service.
type Option func(s *Service)

// WithConfig sets the whole engine configuration.
func WithConfig(config *Config) Option {
	return func(s *Service) {
		if config != nil {
			s.config = config
		}
	}
}

// WithQueue sets the job queue
func WithQueue(queue messaging.Queue[model.Job]) Option {
	return func(s *Service) {
		s.queue = queue
	}
}

// WithJobDAO sets the job store
func WithJobDAO(jobDAO dao.Service[string, model.Job]) Option {
	return func(s *Service) {
		s.runtime.jobDAO = jobDAO
	}
}

// WithRunDAO sets the run-record store
func WithRunDAO(runDAO dao.Service[string, model.RunRecord]) Option {
	return func(s *Service) {
		s.runtime.runDAO = runDAO
	}
}

// WithDispatchRegistry sets the protocol adapter registry
func WithDispatchRegistry(registry *dispatch.Registry) Option {
	return func(s *Service) {
		s.registry = registry
	}
}

// WithOccupancyTracker sets the location occupancy tracker
func WithOccupancyTracker(tracker occupancy.Tracker) Option {
	return func(s *Service) {
		s.occupancy = tracker
	}
}

// WithWorkcell sets the default workcell submissions bind to when the caller
// does not provide one explicitly.
func WithWorkcell(cell *model.Workcell) Option {
	return func(s *Service) {
		s.runtime.cell = cell
	}
}

// WithWorkers sets the number of job workers
func WithWorkers(count int) Option {
	return func(s *Service) {
		s.config.Processor.WorkerCount = count
	}
}

// WithRunRoot sets the directory run directories are created under
func WithRunRoot(runRoot string) Option {
	return func(s *Service) {
		s.config.RunRoot = runRoot
	}
}

// WithLogger sets the engine logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithFS sets the file service used for run artifacts
func WithFS(fs afs.Service) Option {
	return func(s *Service) {
		s.fs = fs
	}
}

// WithTracing configures OpenTelemetry tracing for the service. If outputFile
// is empty the stdout exporter is used; otherwise traces are written to the
// supplied file path. The function is safe to call multiple times - the first
// successful initialisation wins.
func WithTracing(serviceName, serviceVersion, outputFile string) Option {
	return func(s *Service) {
		_ = tracing.Init(serviceName, serviceVersion, outputFile)
	}
}

// WithTracingExporter configures OpenTelemetry tracing using a custom
// SpanExporter. This enables integrations with exporters other than the
// built-in stdout exporter, for example OTLP, Jaeger or Zipkin. The function
// is safe to call multiple times - the first successful initialisation wins.
func WithTracingExporter(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) Option {
	return func(s *Service) {
		_ = tracing.InitWithExporter(serviceName, serviceVersion, exporter)
	}
}
