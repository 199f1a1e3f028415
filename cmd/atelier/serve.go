package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/CZERTAINLY/Atelier/internal/httpapi"
	"github.com/CZERTAINLY/Atelier/internal/log"
	"github.com/CZERTAINLY/Atelier/internal/model"
	"github.com/CZERTAINLY/Atelier/internal/progress"
	"github.com/CZERTAINLY/Atelier/internal/service"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "serve starts the HTTP API and runs submitted jobs",
	RunE:  doServe,
}

// app bundles the pieces every command needs.
type app struct {
	store *progress.Broadcast
	orc   *service.Orchestrator
}

func newApp(ctx context.Context, cfg model.Config) (app, error) {
	store, err := progress.Open(ctx, cfg.Progress)
	if err != nil {
		return app{}, fmt.Errorf("opening progress store: %w", err)
	}
	b := progress.NewBroadcast(store)
	orc, err := service.New(cfg, b)
	if err != nil {
		return app{}, errors.Join(err, b.Close())
	}
	return app{store: b, orc: orc}, nil
}

func (a app) Close() error {
	return errors.Join(a.orc.Close(), a.store.Close())
}

func doServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	attrs := slog.Group("atelier",
		slog.String("cmd", "serve"),
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

	ln, err := net.Listen("tcp", config.HTTP.Addr)
	if err != nil {
		return err
	}
	server := httpapi.NewServer(config.HTTP, httpapi.NewRouter(a.orc, config.Upload.MaxBytes))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.InfoContext(ctx, "listening", "addr", ln.Addr().String())
		return server.Serve(ln)
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.InfoContext(ctx, "shutting down")
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return server.Shutdown(sctx)
	})
	return g.Wait()
}
