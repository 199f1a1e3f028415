package progress

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/CZERTAINLY/Atelier/internal/fsx"
	"github.com/CZERTAINLY/Atelier/internal/model"
)

const fileSuffix = "_progress.json"

// FileStore keeps <job>_progress.json files in a single directory.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("progress: directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("progress: ensure directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(jobID string) string {
	return filepath.Join(s.dir, jobID+fileSuffix)
}

func (s *FileStore) Write(ctx context.Context, jobID string, rec model.Progress) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkID(jobID); err != nil {
		return err
	}
	// one writer per job, so check then replace is race free
	cur, err := s.Read(ctx, jobID)
	switch {
	case err == nil && cur.Status.Terminal():
		return fmt.Errorf("progress %s: %w", jobID, model.ErrTerminal)
	case err != nil && !errors.Is(err, model.ErrNotFound):
		return err
	}
	if err := fsx.WriteJSONAtomic(s.path(jobID), rec); err != nil {
		return fmt.Errorf("progress %s: %w", jobID, err)
	}
	return nil
}

func (s *FileStore) Read(ctx context.Context, jobID string) (model.Progress, error) {
	if err := ctx.Err(); err != nil {
		return model.Unknown(), err
	}
	if err := checkID(jobID); err != nil {
		return model.Unknown(), err
	}
	var rec model.Progress
	err := fsx.ReadJSON(s.path(jobID), &rec)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return model.Unknown(), fmt.Errorf("progress %s: %w", jobID, model.ErrNotFound)
	case err != nil:
		return model.Unknown(), fmt.Errorf("progress %s: %w", jobID, err)
	}
	return rec, nil
}
