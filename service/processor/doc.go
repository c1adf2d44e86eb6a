// Package processor hosts the workers that execute queued jobs.  Every
// worker consumes submissions from the job queue, runs the workflow through
// the runner and writes the job and run records back to their stores.
package processor
