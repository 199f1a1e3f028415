package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/CZERTAINLY/Atelier/internal/log"
	"github.com/CZERTAINLY/Atelier/internal/model"
	"github.com/CZERTAINLY/Atelier/internal/service"
)

var (
	flagStyle    string
	flagStrength string
	flagPrompt   string
	flagLimit    int
)

var runCmd = &cobra.Command{
	Use:   "run <image>",
	Short: "run transforms a single image and waits for the result",
	Args:  cobra.ExactArgs(1),
	RunE:  doRun,
}

func doRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	attrs := slog.Group("atelier",
		slog.String("cmd", "run"),
		slog.Int("pid", os.Getpid()),
	)
	ctx = log.ContextAttrs(ctx, attrs)

	a, err := newApp(ctx, config)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.ErrorContext(ctx, "closing", "error", err)
		}
	}()

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
	}()

	job, err := a.orc.SubmitUpload(ctx, service.Upload{Name: filepath.Base(args[0]), Body: f}, model.Params{
		Style:    flagStyle,
		Strength: flagStrength,
		Prompt:   flagPrompt,
	})
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "job %s: %s\n", job.ID, job.Style)

	if err := a.orc.Start(ctx, job.ID, nil); err != nil {
		return err
	}

	last := model.Unknown()
	for !last.Status.Terminal() {
		rec, err := a.store.Next(ctx, job.ID)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if rec != last {
			fmt.Fprintf(out, "%-10s %3d%% %s\n", rec.Status, rec.Progress, rec.Message)
			last = rec
		}
	}

	if last.Status == model.StatusFailed {
		return errors.New(last.Error)
	}
	fmt.Fprintln(out, filepath.Join(config.Storage.Outputs, job.OutputName()))
	return nil
}
