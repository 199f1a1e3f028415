package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/CZERTAINLY/Atelier/internal/catalog"
	"github.com/CZERTAINLY/Atelier/internal/fsx"
	"github.com/CZERTAINLY/Atelier/internal/log"
	"github.com/CZERTAINLY/Atelier/internal/model"
	"github.com/CZERTAINLY/Atelier/internal/progress"
	"github.com/CZERTAINLY/Atelier/internal/worker"
)

const submissionExt = ".json"

var errShutdown = errors.New("orchestrator is shut down")

// Result describes a finished successful run.
type Result struct {
	Job     model.Job
	Output  string
	Outcome worker.Outcome
}

type Orchestrator struct {
	inputs   string
	maxBytes int64
	wcfg     model.Worker
	env      []string
	timeout  time.Duration

	store   progress.Store
	catalog *catalog.Catalog
	sup     *worker.Supervisor
	sem     *semaphore.Weighted
	now     func() time.Time

	runCtx    context.Context
	runCancel context.CancelCauseFunc

	mx      sync.Mutex
	closed  bool
	started map[string]struct{} // jobs with a run in flight
	wg      sync.WaitGroup
}

// New creates the storage directories of cfg and wires the job pipeline
// around store.
func New(cfg model.Config, store progress.Store) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("progress store is nil")
	}
	if err := os.MkdirAll(cfg.Storage.Inputs, 0o755); err != nil {
		return nil, fmt.Errorf("creating input directory: %w", err)
	}
	cat, err := catalog.New(cfg.Storage.Outputs, cfg.Gallery.Limit)
	if err != nil {
		return nil, err
	}
	failures, err := worker.NewFailureLog(cfg.Storage.Logs)
	if err != nil {
		return nil, err
	}

	maxConcurrent := max(cfg.Worker.MaxConcurrent, 1)
	runCtx, runCancel := context.WithCancelCause(context.Background())
	return &Orchestrator{
		inputs:    cfg.Storage.Inputs,
		maxBytes:  cfg.Upload.MaxBytes,
		wcfg:      cfg.Worker,
		env:       cfg.Worker.Environ(),
		timeout:   cfg.Worker.Timeout.Std(worker.DefaultTimeout),
		store:     store,
		catalog:   cat,
		sup:       worker.NewSupervisor(cfg.Worker.PollInterval.Std(worker.DefaultPollInterval), failures),
		sem:       semaphore.NewWeighted(int64(maxConcurrent)),
		now:       func() time.Time { return time.Now().UTC() },
		runCtx:    runCtx,
		runCancel: runCancel,
		started:   make(map[string]struct{}),
	}, nil
}

// OpenArtifact opens a generated image for download.
func (o *Orchestrator) OpenArtifact(name string) (*os.File, fs.FileInfo, error) {
	return o.catalog.Open(name)
}

// Submit turns an input already present in the input directory into a Job.
func (o *Orchestrator) Submit(ctx context.Context, inputRef string, params model.Params) (model.Job, error) {
	name, err := fsx.CleanName(filepath.Base(inputRef))
	if err != nil || filepath.Ext(name) == submissionExt {
		return model.Job{}, model.NewValidationError("input", "invalid input reference %q", inputRef)
	}
	info, err := os.Stat(filepath.Join(o.inputs, name))
	if err != nil || !info.Mode().IsRegular() {
		return model.Job{}, model.NewValidationError("input", "input %q does not exist", name)
	}
	if !model.ValidJobID(model.JobIDFromInput(name)) {
		return model.Job{}, model.NewValidationError("input", "input name %q can't identify a job", name)
	}

	sub := model.Submission{
		Filename:     name,
		OriginalName: name,
		Size:         info.Size(),
		UploadedAt:   o.now(),
	}
	return o.submit(ctx, sub, params)
}

func (o *Orchestrator) submit(ctx context.Context, sub model.Submission, params model.Params) (model.Job, error) {
	sub.Style = model.ParseStyle(params.Style)
	sub.Strength = model.ParseStrength(params.Strength)
	sub.Prompt = params.Prompt
	sub.Status = model.StatusUploaded
	job := sub.Job()

	rec, err := o.store.Read(ctx, job.ID)
	if err == nil && rec.Status != model.StatusUploaded {
		return model.Job{}, fmt.Errorf("%w: %s", model.ErrAlreadyStarted, job.ID)
	}
	if err := fsx.WriteJSONAtomic(o.submissionPath(job.ID), sub); err != nil {
		return model.Job{}, fmt.Errorf("writing submission: %w", err)
	}
	if err := o.store.Write(ctx, job.ID, model.Uploaded(o.now())); err != nil {
		return model.Job{}, fmt.Errorf("writing progress: %w", err)
	}
	slog.InfoContext(log.WithJob(ctx, job.ID), "job submitted",
		"input", job.Input,
		"style", job.Style,
		"strength", job.Strength,
	)
	return job, nil
}

// Job loads a submitted job.
func (o *Orchestrator) Job(_ context.Context, id string) (model.Job, error) {
	sub, err := o.submission(id)
	if err != nil {
		return model.Job{}, err
	}
	return sub.Job(), nil
}

// Run executes the job and blocks until its record is terminal.
func (o *Orchestrator) Run(ctx context.Context, id string) (Result, error) {
	job, err := o.Job(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if err := o.claim(ctx, id); err != nil {
		return Result{}, err
	}
	defer o.release(id)
	return o.run(ctx, job)
}

// Start schedules the job in the background. Non-nil params replace the
// submitted ones.
func (o *Orchestrator) Start(ctx context.Context, id string, params *model.Params) error {
	sub, err := o.submission(id)
	if err != nil {
		return err
	}
	if err := o.claim(ctx, id); err != nil {
		return err
	}
	if params != nil {
		sub.Style = model.ParseStyle(params.Style)
		sub.Strength = model.ParseStrength(params.Strength)
		sub.Prompt = params.Prompt
		if err := fsx.WriteJSONAtomic(o.submissionPath(id), sub); err != nil {
			o.release(id)
			return fmt.Errorf("writing submission: %w", err)
		}
	}
	job := sub.Job()

	// wg.Go never races the wg.Wait in Close
	o.mx.Lock()
	defer o.mx.Unlock()
	if o.closed {
		delete(o.started, id)
		return errShutdown
	}
	o.wg.Go(func() {
		defer o.release(id)
		_, _ = o.run(o.runCtx, job)
	})
	return nil
}

// Poll returns the current record of id. It never fails.
func (o *Orchestrator) Poll(ctx context.Context, id string) model.Progress {
	rec, err := o.store.Read(ctx, id)
	if err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			slog.WarnContext(ctx, "reading progress", "job_id", id, "error", err)
		}
		return model.Unknown()
	}
	return rec
}

func (o *Orchestrator) Gallery(ctx context.Context, limit int) ([]model.Artifact, error) {
	return o.catalog.List(ctx, limit)
}

// Wait blocks until every started run is done.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Close kills running workers and waits for their runs to finish.
func (o *Orchestrator) Close() error {
	o.mx.Lock()
	o.closed = true
	o.mx.Unlock()
	o.runCancel(errShutdown)
	o.wg.Wait()
	return nil
}

func (o *Orchestrator) claim(ctx context.Context, id string) error {
	o.mx.Lock()
	defer o.mx.Unlock()
	if o.closed {
		return errShutdown
	}
	if _, ok := o.started[id]; ok {
		return fmt.Errorf("%w: %s", model.ErrAlreadyStarted, id)
	}
	rec, err := o.store.Read(ctx, id)
	if err == nil && rec.Status != model.StatusUploaded {
		return fmt.Errorf("%w: %s is %s", model.ErrAlreadyStarted, id, rec.Status)
	}
	o.started[id] = struct{}{}
	return nil
}

// release forgets a finished run, its stored terminal record keeps
// refusing new claims.
func (o *Orchestrator) release(id string) {
	o.mx.Lock()
	delete(o.started, id)
	o.mx.Unlock()
}

func (o *Orchestrator) run(ctx context.Context, job model.Job) (Result, error) {
	ctx = log.WithJob(ctx, job.ID)
	// final records are written even when ctx ends the run
	finalCtx := context.WithoutCancel(ctx)

	if err := o.sem.Acquire(ctx, 1); err != nil {
		err = fmt.Errorf("%w: %w", model.ErrCanceled, err)
		o.finish(finalCtx, job.ID, model.Failed(o.now(), err.Error()))
		return Result{Job: job}, err
	}
	defer o.sem.Release(1)

	output := o.catalog.Path(job.OutputName())
	cmd := worker.Command{
		Name:     job.ID,
		Path:     o.wcfg.Path,
		Args:     o.args(job, output),
		Env:      o.env,
		Timeout:  o.timeout,
		Artifact: output,
	}

	slog.InfoContext(ctx, "generation started", "style", job.Style, "output", filepath.Base(output))
	outcome, err := o.sup.Execute(ctx, cmd, func(ctx context.Context, u worker.Update) {
		if err := o.store.Write(ctx, job.ID, model.Processing(o.now(), u.Percent, u.Message)); err != nil {
			slog.WarnContext(ctx, "writing progress", "error", err)
		}
	})
	res := Result{Job: job, Output: output, Outcome: outcome}
	if err != nil {
		slog.ErrorContext(ctx, "generation failed", "error", err, "exit_code", outcome.ExitCode)
		o.finish(finalCtx, job.ID, model.Failed(o.now(), err.Error()))
		return res, err
	}

	info, err := os.Stat(output)
	if err != nil || !info.Mode().IsRegular() {
		err = fmt.Errorf("%w: output %s is not a file", model.ErrWorkerFailure, filepath.Base(output))
		o.finish(finalCtx, job.ID, model.Failed(o.now(), err.Error()))
		return res, err
	}

	meta := model.ArtifactMeta{
		JobID:     job.ID,
		Input:     job.Input,
		Output:    filepath.Base(output),
		Style:     job.Style,
		Strength:  job.Strength,
		Prompt:    model.ComposePrompt(job.Style, job.Prompt),
		CreatedAt: info.ModTime().UTC(),
	}
	if err := o.catalog.Record(finalCtx, meta); err != nil {
		// gallery falls back to style unknown
		slog.WarnContext(ctx, "recording artifact metadata", "error", err)
	}

	o.finish(finalCtx, job.ID, model.Complete(o.now()))
	slog.InfoContext(ctx, "generation complete",
		"output", meta.Output,
		"duration", outcome.Duration(),
	)
	return res, nil
}

func (o *Orchestrator) finish(ctx context.Context, id string, rec model.Progress) {
	if err := o.store.Write(ctx, id, rec); err != nil {
		slog.ErrorContext(ctx, "writing final progress", "status", rec.Status, "error", err)
	}
}

// args builds the worker invocation:
// <args...> --input <in> --output <out> --style <s> --strength <f> --prompt <p>
func (o *Orchestrator) args(job model.Job, output string) []string {
	return append(slices.Clone(o.wcfg.Args),
		"--input", filepath.Join(o.inputs, job.Input),
		"--output", output,
		"--style", string(job.Style),
		"--strength", model.FormatStrength(job.Strength),
		"--prompt", model.ComposePrompt(job.Style, job.Prompt),
	)
}

func (o *Orchestrator) submissionPath(id string) string {
	return filepath.Join(o.inputs, id+submissionExt)
}

func (o *Orchestrator) submission(id string) (model.Submission, error) {
	if !model.ValidJobID(id) {
		return model.Submission{}, fmt.Errorf("%w: job %q", model.ErrNotFound, id)
	}
	var sub model.Submission
	err := fsx.ReadJSON(o.submissionPath(id), &sub)
	if errors.Is(err, fs.ErrNotExist) {
		return model.Submission{}, fmt.Errorf("%w: job %q", model.ErrNotFound, id)
	}
	if err != nil {
		return model.Submission{}, fmt.Errorf("reading submission: %w", err)
	}
	return sub, nil
}
