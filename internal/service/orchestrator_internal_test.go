package service

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"github.com/CZERTAINLY/Atelier/internal/model"
	"github.com/CZERTAINLY/Atelier/internal/progress"
	"github.com/stretchr/testify/require"
)

func newTestOrchestrator(t *testing.T, script string, jobs int) (*Orchestrator, []string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("skipped, scripts require a POSIX shell")
	}
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skipf("skipped, binary sh not available: %v", err)
	}

	dir := t.TempDir()
	cfg := model.DefaultConfig()
	cfg.Storage = model.Storage{
		Inputs:  filepath.Join(dir, "uploads"),
		Outputs: filepath.Join(dir, "outputs"),
		Logs:    filepath.Join(dir, "logs"),
	}
	cfg.Worker = model.Worker{
		Path:          sh,
		Args:          []string{"-c", script, "worker"},
		Timeout:       "1m",
		PollInterval:  "10ms",
		MaxConcurrent: 2,
	}
	store, err := progress.NewFileStore(cfg.Storage.Inputs)
	require.NoError(t, err)
	o, err := New(cfg, store)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, o.Close())
	})

	ids := make([]string, 0, jobs)
	for i := range jobs {
		name := fmt.Sprintf("photo%d.png", i)
		require.NoError(t, os.WriteFile(filepath.Join(cfg.Storage.Inputs, name), []byte("png"), 0o644))
		job, err := o.Submit(t.Context(), name, model.Params{})
		require.NoError(t, err)
		ids = append(ids, job.ID)
	}
	return o, ids
}

func (o *Orchestrator) inFlight() int {
	o.mx.Lock()
	defer o.mx.Unlock()
	return len(o.started)
}

func TestFinishedRunsAreReleased(t *testing.T) {
	t.Parallel()
	o, ids := newTestOrchestrator(t, "exit 1", 2)

	_, err := o.Run(t.Context(), ids[0])
	require.ErrorIs(t, err, model.ErrWorkerFailure)
	require.NoError(t, o.Start(t.Context(), ids[1], nil))
	o.Wait()
	require.Zero(t, o.inFlight())

	// the terminal record still refuses a second run
	for _, id := range ids {
		require.Equal(t, model.StatusFailed, o.Poll(t.Context(), id).Status)
		_, err = o.Run(t.Context(), id)
		require.ErrorIs(t, err, model.ErrAlreadyStarted)
		require.ErrorIs(t, o.Start(t.Context(), id, nil), model.ErrAlreadyStarted)
	}
}

func TestStartDuringClose(t *testing.T) {
	t.Parallel()
	o, ids := newTestOrchestrator(t, "sleep 30", 8)

	var wg sync.WaitGroup
	errs := make([]error, len(ids))
	for i, id := range ids {
		wg.Go(func() {
			errs[i] = o.Start(t.Context(), id, nil)
		})
	}
	require.NoError(t, o.Close())
	wg.Wait()

	require.Zero(t, o.inFlight())
	for i, id := range ids {
		rec := o.Poll(t.Context(), id)
		if errs[i] != nil {
			require.ErrorIs(t, errs[i], errShutdown)
			require.Equal(t, model.StatusUploaded, rec.Status)
			continue
		}
		require.Equal(t, model.StatusFailed, rec.Status)
	}
}
