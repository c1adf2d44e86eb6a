// Package model contains the in-memory representation of workflow and
// workcell definitions, run history and job state used by the workcell
// engine.
//
// Workflows and workcells are typically loaded from YAML documents; the
// structures here are pure schema with structural validation only.  All
// runtime behaviour (argument resolution, dispatch, run bookkeeping) lives
// in the runtime and service packages.
package model
