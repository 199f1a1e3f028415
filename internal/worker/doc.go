// Package worker supervises one external transformation process per job.
//
// Overview
// Supervisor.Execute owns the whole lifetime of a worker process: it starts
// the process in its own process group, captures stdout and stderr into
// buffers safe for concurrent reads, and runs a loop at a fixed cadence
// which forwards progress markers, enforces the timeout and honors context
// cancellation.
//
// Data flow:
//
//	Orchestrator          Supervisor                  worker process
//	     |                    |                             |
//	     | Execute(cmd) ----->| os/exec.Start ------------->|
//	     |                    | Wait() in goroutine         |
//	     |                    |<--- stdout/stderr buffers --| PROGRESS:40
//	     |<-- ProgressFunc ---| tick: scan new lines        |
//	     |                    | deadline: kill group ------>X
//	     |<----- Outcome -----| (process reaped)            |
//
// Invariants:
//   - Execute returns only after the process has been reaped, on every path.
//   - Markers are scanned once: a cursor over stdout skips what was seen.
//   - Only complete lines are scanned while the process runs, the trailing
//     partial line is scanned after exit.
//   - Every failure is written to the FailureLog before it is returned.
//   - A non-zero exit code is a failure only when the artifact is missing.
package worker
