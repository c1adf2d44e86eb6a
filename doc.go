// Package workcell provides a workflow orchestration engine for automated
// laboratories: declarative workflows are dispatched step by step to
// networked instrument modules registered in a workcell.
//
// The engine is built from pluggable service layers:
//
//   - runtime/runner  - sequential execution of one workflow run
//   - service/dispatch - protocol adapters (REST, TCP, simulated)
//   - service/processor - workers consuming the job queue
//   - node - the module-side framework with the action-lock state machine
//
// The engine is designed to be embedded in host applications.  End-users
// typically interact with it via the high-level Service facade exposed by
// the root package:
//
//	srv, err := workcell.New(workcell.WithWorkcell(cell))
//	rt := srv.Runtime()
//	rt.Start(ctx)
//	wf, _ := model.LoadWorkflow(ctx, afs.New(), "workflow.yaml")
//	receipt, _ := rt.Submit(ctx, wf, nil, payload, false)
//	job, _ := rt.Job(ctx, receipt.JobID)
//
// For more details see the individual sub-packages.
package workcell
