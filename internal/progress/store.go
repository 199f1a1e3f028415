// Package progress persists one ProgressRecord per job.
//
// Every backend writes a record as a single atomic unit, so pollers never
// observe a partial record and need no coordination with the writer.
// A record in a terminal state (complete, failed) is never replaced: Write
// returns model.ErrTerminal instead.
//
// Read returns model.ErrNotFound together with the model.Unknown sentinel
// when a job has no record yet.
package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/CZERTAINLY/Atelier/internal/model"
)

type Store interface {
	Write(ctx context.Context, jobID string, rec model.Progress) error
	Read(ctx context.Context, jobID string) (model.Progress, error)
}

// StoreCloser is a Store holding resources (connections, handles).
type StoreCloser interface {
	Store
	Close() error
}

// Open builds the backend selected by cfg.
func Open(ctx context.Context, cfg model.ProgressStore) (StoreCloser, error) {
	switch cfg.Backend {
	case "", model.ProgressBackendFile:
		s, err := NewFileStore(cfg.Dir)
		if err != nil {
			return nil, err
		}
		return nopCloser{s}, nil
	case model.ProgressBackendSQLite:
		return OpenSQLite(ctx, cfg.Path)
	case model.ProgressBackendRedis:
		return NewRedisStore(ctx, RedisOptions{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
			TTL:      cfg.TTL.Std(7 * 24 * time.Hour),
		})
	default:
		return nil, fmt.Errorf("progress backend %q is not supported", cfg.Backend)
	}
}

type nopCloser struct {
	Store
}

func (nopCloser) Close() error { return nil }

func checkID(jobID string) error {
	if !model.ValidJobID(jobID) {
		return fmt.Errorf("%w: job id %q", model.ErrNotFound, jobID)
	}
	return nil
}
