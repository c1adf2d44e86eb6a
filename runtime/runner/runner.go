// Package runner executes one workflow against one workcell: it resolves the
// whole flowdef up front, dispatches each step through the protocol registry
// in authored order and builds the durable run record.  A module's logical
// failure is recorded and execution continues; a resolution or transport
// failure aborts the run.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/viant/afs"
	"github.com/viant/afs/file"

	"github.com/labkit/workcell/internal/clock"
	"github.com/labkit/workcell/internal/idgen"
	"github.com/labkit/workcell/model"
	"github.com/labkit/workcell/runtime/resolver"
	"github.com/labkit/workcell/service/dispatch"
	"github.com/labkit/workcell/service/occupancy"
	"github.com/labkit/workcell/tracing"
)

// resultsDirName is the per-run directory modules write result files into.
const resultsDirName = "results"

// Service runs one workflow.  A Service is built once per (workflow, workcell)
// pair and may execute any number of runs.
type Service struct {
	workflow  *model.Workflow
	cell      *model.Workcell
	registry  *dispatch.Registry
	occupancy occupancy.Tracker
	fs        afs.Service
	runRoot   string
	simulate  bool
	logger    *slog.Logger
}

// Option customises a runner service.
type Option func(*Service)

// WithRegistry sets the dispatch registry.
func WithRegistry(registry *dispatch.Registry) Option {
	return func(s *Service) { s.registry = registry }
}

// WithOccupancy sets the location occupancy tracker.  Occupancy updates are
// advisory; a tracker failure is logged and never fails the run.
func WithOccupancy(tracker occupancy.Tracker) Option {
	return func(s *Service) { s.occupancy = tracker }
}

// WithRunRoot sets the directory run directories are created under.
func WithRunRoot(runRoot string) Option {
	return func(s *Service) { s.runRoot = runRoot }
}

// WithSimulate forces every step through the simulated dispatcher regardless
// of the module's declared interface.
func WithSimulate(simulate bool) Option {
	return func(s *Service) { s.simulate = simulate }
}

// WithLogger sets the runner logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithFS sets the file service used for run directories and artifacts.
func WithFS(fs afs.Service) Option {
	return func(s *Service) { s.fs = fs }
}

// New builds a runner for one workflow against one workcell.  Construction is
// fail fast: a structurally invalid workflow or a workflow referencing
// modules absent from the workcell is rejected here, before any run exists.
func New(workflow *model.Workflow, cell *model.Workcell, options ...Option) (*Service, error) {
	if workflow == nil {
		return nil, fmt.Errorf("runner: workflow is required")
	}
	if issues := workflow.Validate(); len(issues) > 0 {
		return nil, &model.ConfigurationError{Workflow: workflow.Name, Detail: fmt.Sprintf("invalid workflow: %v", issues)}
	}
	if err := workflow.Bind(cell); err != nil {
		return nil, err
	}
	s := &Service{
		workflow: workflow,
		cell:     cell,
		runRoot:  "runs",
		logger:   slog.Default(),
	}
	for _, option := range options {
		option(s)
	}
	if s.registry == nil {
		s.registry = dispatch.DefaultRegistry(dispatch.DefaultConfig())
	}
	if s.fs == nil {
		s.fs = afs.New()
	}
	return s, nil
}

// Run executes the workflow once with the given payload and returns the run
// record.  The record is returned even on a fatal abort so the caller can
// inspect the partial history; the error is non-nil only for fatal failures
// (resolution errors, transport errors, missing dispatchers).  Logical step
// failures reported by modules are recorded in the history and, unless the
// step or workflow sets HaltOnFailure, execution continues.
func (s *Service) Run(ctx context.Context, payload map[string]interface{}) (*model.RunRecord, error) {
	runID := idgen.New()
	runDir := path.Join(s.runRoot, fmt.Sprintf("%s_%s", s.workflow.Name, runID))
	resultDir := path.Join(runDir, resultsDirName)

	if err := s.fs.Create(ctx, resultDir, file.DefaultDirOsMode, true); err != nil {
		return nil, fmt.Errorf("failed to create run directory %s: %w", resultDir, err)
	}

	record := model.NewRunRecord(runID, s.workflow.Name, runDir, payload)
	record.Start()

	ctx, span := tracing.StartSpan(ctx, "workflow.run", "SERVER")
	span.WithAttributes(map[string]string{"workflow": s.workflow.Name, "runId": runID})

	log := &runLog{}
	log.printf("run %s of workflow %s started", runID, s.workflow.Name)
	s.logger.Info("run started", "workflow", s.workflow.Name, "runId", runID, "steps", len(s.workflow.Flowdef), "simulate", s.simulate)

	// The whole flowdef is resolved up front: a resolution error anywhere in
	// the sequence aborts the run with zero steps dispatched.
	resolvedSteps := make([]*resolver.ResolvedStep, 0, len(s.workflow.Flowdef))
	for _, step := range s.workflow.Flowdef {
		resolved, err := resolver.Resolve(step, s.cell, payload, resultDir)
		if err != nil {
			record.Fail(err)
			log.printf("run aborted before dispatch: %v", err)
			tracing.EndSpan(span, err)
			s.persist(ctx, runDir, record, log)
			s.logger.Error("run rejected at resolution", "workflow", s.workflow.Name, "runId", runID, "step", step.Name, "error", err)
			return record, err
		}
		resolvedSteps = append(resolvedSteps, resolved)
	}

	var fatal error
	for _, resolved := range resolvedSteps {
		step := resolved.Step
		outcome, err := s.runStep(ctx, resolved, runID, log)
		if err != nil {
			fatal = err
			record.Fail(err)
			log.printf("run aborted: %v", err)
			break
		}
		record.Record(step.Name, outcome)
		if outcome.Failed() && (step.HaltOnFailure || s.workflow.HaltOnFailure) {
			log.printf("step %s failed and halts the run; remaining steps skipped", step.Name)
			s.logger.Warn("run halted on step failure", "workflow", s.workflow.Name, "runId", runID, "step", step.Name)
			break
		}
	}

	if fatal == nil {
		record.Complete()
		log.printf("run %s completed", runID)
	}
	tracing.EndSpan(span, fatal)

	s.persist(ctx, runDir, record, log)
	s.logger.Info("run finished", "workflow", s.workflow.Name, "runId", runID, "state", record.State)
	return record, fatal
}

// runStep dispatches one pre-resolved step.  The returned error is fatal to
// the run; a module's logical failure comes back as a failed outcome with a
// nil error.
func (s *Service) runStep(ctx context.Context, resolved *resolver.ResolvedStep, runID string, log *runLog) (*model.StepOutcome, error) {
	step := resolved.Step
	module := s.cell.FindModule(step.Module)
	iface := module.Interface
	if s.simulate {
		iface = model.InterfaceSimulated
	}
	dispatcher, err := s.registry.Lookup(iface)
	if err != nil {
		return nil, err
	}

	ctx, span := tracing.StartSpan(ctx, "workflow.step", "CLIENT")
	span.WithAttributes(map[string]string{"step": step.Name, "module": step.Module, "command": step.Command})

	log.printf("step %s: dispatching command %s to module %s (%s)", step.Name, step.Command, step.Module, iface)
	response, err := dispatcher.Dispatch(ctx, resolved, module)
	tracing.EndSpan(span, err)
	if err != nil {
		return nil, err
	}

	outcome := &model.StepOutcome{
		Status:  string(response.Status),
		Message: response.Message,
		Log:     response.Log,
	}
	log.printf("step %s: %s %s", step.Name, outcome.Status, outcome.Message)
	if outcome.Failed() {
		s.logger.Warn("step reported failure", "workflow", s.workflow.Name, "runId", runID, "step", step.Name, "message", outcome.Message)
	}

	s.updateOccupancy(ctx, resolved, runID, log)
	return outcome, nil
}

// updateOccupancy clears the source location and stamps the target location
// after a transfer-like step.  Failures are advisory.
func (s *Service) updateOccupancy(ctx context.Context, resolved *resolver.ResolvedStep, runID string, log *runLog) {
	if s.occupancy == nil {
		return
	}
	if location, ok := resolved.Locations["source"]; ok {
		if err := s.occupancy.Clear(ctx, location); err != nil {
			s.logger.Warn("failed to clear source occupancy", "location", location, "error", err)
			log.printf("warning: failed to clear occupancy of %s: %v", location, err)
		}
	}
	if location, ok := resolved.Locations["target"]; ok {
		if err := s.occupancy.Set(ctx, location, runID); err != nil {
			s.logger.Warn("failed to set target occupancy", "location", location, "error", err)
			log.printf("warning: failed to set occupancy of %s: %v", location, err)
		}
	}
}

// persist writes the run log and run record into the run directory.  Both are
// best effort; the in-memory record is authoritative.
func (s *Service) persist(ctx context.Context, runDir string, record *model.RunRecord, log *runLog) {
	if err := s.fs.Upload(ctx, path.Join(runDir, "run_log.txt"), file.DefaultFileOsMode, strings.NewReader(log.String())); err != nil {
		s.logger.Warn("failed to write run log", "runId", record.RunID, "error", err)
	}
	data, err := record.MarshalIndent()
	if err != nil {
		s.logger.Warn("failed to encode run record", "runId", record.RunID, "error", err)
		return
	}
	if err := s.fs.Upload(ctx, path.Join(runDir, "run_record.json"), file.DefaultFileOsMode, strings.NewReader(string(data))); err != nil {
		s.logger.Warn("failed to write run record", "runId", record.RunID, "error", err)
	}
}

// runLog accumulates the human-readable, timestamped run log written next to
// the run record.
type runLog struct {
	builder strings.Builder
}

func (l *runLog) printf(format string, args ...interface{}) {
	l.builder.WriteString(clock.Now().UTC().Format(time.RFC3339))
	l.builder.WriteString(" ")
	fmt.Fprintf(&l.builder, format, args...)
	l.builder.WriteString("\n")
}

func (l *runLog) String() string { return l.builder.String() }
