// Package service implements the job orchestration of Atelier.
//
// Overview
// The Orchestrator owns the job lifecycle: it validates and stores an upload,
// turns it into a Job, hands the Job to a worker.Supervisor and finalizes
// the ProgressRecord once the worker is done.
//
// Data flow:
//
//	client          Orchestrator              Supervisor        progress.Store
//	  |                  |                        |                   |
//	  | SubmitUpload --->| store input, record -------------------->| uploaded/0
//	  | Start ---------->| go run() ------------->| Execute           |
//	  |                  |<------ Update ---------| (per tick)        |
//	  |                  | processing/n ------------------------------>|
//	  |                  |<------ Outcome --------|                   |
//	  |                  | sidecar, complete/100 --------------------->|
//	  | Poll ------------------------------------------------------->| Read
//
// Invariants:
//   - A job runs exactly once, a second Run or Start gives model.ErrAlreadyStarted.
//   - Validation errors never create a ProgressRecord.
//   - Every started job ends in exactly one terminal record.
//   - Poll never fails, unknown jobs yield model.Unknown.
//   - Running workers are bounded by worker.max_concurrent.
//
// Shutdown: Close cancels the run context, which kills running workers, and
// waits for every run goroutine.
package service
