package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/CZERTAINLY/Atelier/internal/fsx"
	"github.com/CZERTAINLY/Atelier/internal/model"
)

const (
	DefaultPollInterval = 500 * time.Millisecond
	DefaultTimeout      = 5 * time.Minute
	// waitDelay bounds how long Wait blocks on pipes held open by
	// descendants after the worker itself exited.
	waitDelay = 2 * time.Second
	// reasonMax caps the stderr excerpt carried in a failure reason.
	reasonMax = 200
)

// ProgressFunc receives each new marker found in worker output.
type ProgressFunc func(ctx context.Context, u Update)

// Command describes a single worker invocation.
type Command struct {
	// Name identifies the invocation in logs, usually the job id.
	Name    string
	Path    string
	Args    []string
	Env     []string
	Dir     string
	Timeout time.Duration
	// Artifact is the file a successful worker must leave behind.
	Artifact string
}

// String renders the command line the way a shell user would type it.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	for _, s := range append([]string{c.Path}, c.Args...) {
		if s == "" || strings.ContainsAny(s, " \t\n\"'\\$") {
			s = strconv.Quote(s)
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, " ")
}

// Outcome is everything observed about a finished invocation.
type Outcome struct {
	Command  Command
	Started  time.Time
	Stopped  time.Time
	Stdout   string
	Stderr   string
	ExitCode int
	// Progress is the last marker seen, -1 when there was none.
	Progress int
	Message  string
}

func (o Outcome) Duration() time.Duration {
	if o.Stopped.IsZero() {
		return 0
	}
	return o.Stopped.Sub(o.Started)
}

type Supervisor struct {
	interval time.Duration
	failures *FailureLog
	now      func() time.Time
}

// NewSupervisor returns a supervisor polling at interval. A nil failures
// disables the failure log.
func NewSupervisor(interval time.Duration, failures *FailureLog) *Supervisor {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Supervisor{
		interval: interval,
		failures: failures,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Execute runs cmd and blocks until the process has been reaped. Once the
// process is running progress is called with a zero Update, then once per
// tick that found new markers. Errors
// wrap model.ErrSpawn, model.ErrTimeout, model.ErrCanceled or
// model.ErrWorkerFailure.
func (s *Supervisor) Execute(ctx context.Context, cmd Command, progress ProgressFunc) (Outcome, error) {
	out := Outcome{
		Command:  cmd,
		ExitCode: -1,
		Progress: -1,
	}
	if cmd.Timeout <= 0 {
		slog.WarnContext(ctx, "command has no timeout", "path", cmd.Path)
	}

	c := exec.Command(cmd.Path, cmd.Args...)
	c.Env = cmd.Env
	c.Dir = cmd.Dir
	c.WaitDelay = waitDelay
	configureProcess(c)
	var stdout, stderr buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	out.Started = s.now()
	if err := c.Start(); err != nil {
		out.Stopped = s.now()
		err = fmt.Errorf("%w: %w", model.ErrSpawn, err)
		s.fail(ctx, out, err)
		return out, err
	}
	slog.DebugContext(ctx, "worker started", "pid", c.Process.Pid, "cmd", cmd.String())
	if progress != nil {
		progress(ctx, Update{})
	}

	done := make(chan error, 1)
	go func() {
		done <- c.Wait()
	}()

	var deadline <-chan time.Time
	if cmd.Timeout > 0 {
		timer := time.NewTimer(cmd.Timeout)
		defer timer.Stop()
		deadline = timer.C
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var (
		markers markerScanner
		waitErr error
		runErr  error
	)
	report := func(final bool) {
		u, ok := markers.scan(&stdout, final)
		if !ok {
			return
		}
		out.Progress, out.Message = u.Percent, u.Message
		if progress != nil {
			progress(ctx, u)
		}
	}

loop:
	for {
		select {
		case waitErr = <-done:
			break loop
		case <-ticker.C:
			report(false)
		case <-deadline:
			terminateProcess(c)
			waitErr = <-done
			runErr = fmt.Errorf("%w: worker exceeded %s", model.ErrTimeout, cmd.Timeout)
			break loop
		case <-ctx.Done():
			terminateProcess(c)
			waitErr = <-done
			runErr = fmt.Errorf("%w: %w", model.ErrCanceled, context.Cause(ctx))
			break loop
		}
	}
	// reap whatever the worker left in its process group
	terminateProcess(c)

	out.Stopped = s.now()
	if c.ProcessState != nil {
		out.ExitCode = c.ProcessState.ExitCode()
	}
	if runErr == nil {
		report(true)
	}
	out.Stdout = stdout.String()
	out.Stderr = stderr.String()

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		slog.DebugContext(ctx, "worker wait", "error", waitErr)
	}

	if runErr == nil {
		runErr = s.judge(ctx, out)
	}
	if runErr != nil {
		s.fail(ctx, out, runErr)
	}
	return out, runErr
}

// judge decides a naturally exited worker by its artifact first and its
// exit code second.
func (s *Supervisor) judge(ctx context.Context, out Outcome) error {
	cmd := out.Command
	hasArtifact := cmd.Artifact == "" || fsx.Exists(cmd.Artifact)
	switch {
	case !hasArtifact && out.ExitCode != 0:
		reason := fmt.Sprintf("exit code %d", out.ExitCode)
		if line := lastLine(out.Stderr); line != "" {
			reason += ": " + line
		}
		return fmt.Errorf("%w: %s", model.ErrWorkerFailure, reason)
	case !hasArtifact:
		return fmt.Errorf("%w: worker did not create %s", model.ErrWorkerFailure, filepath.Base(cmd.Artifact))
	case out.ExitCode != 0:
		slog.WarnContext(ctx, "worker exited with error but produced artifact",
			"exit_code", out.ExitCode,
			"artifact", cmd.Artifact,
		)
	}
	return nil
}

func (s *Supervisor) fail(ctx context.Context, out Outcome, cause error) {
	if s.failures == nil {
		return
	}
	path, err := s.failures.Write(out, cause)
	if err != nil {
		slog.ErrorContext(ctx, "can't write failure log", "error", err)
		return
	}
	slog.InfoContext(ctx, "failure log written", "path", path)
}

// lastLine returns the last non-empty line of s, truncated.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	line := strings.TrimSpace(lines[len(lines)-1])
	if len(line) > reasonMax {
		line = line[:reasonMax] + "..."
	}
	return line
}
