// Package catalog lists completed artifacts of the output store.
//
// The listing is recomputed from the directory on every call; an entry only
// exists while its file does. Metadata comes from a <stem>.json sidecar, a
// file without one is listed with style "unknown".
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/CZERTAINLY/Atelier/internal/fsx"
	"github.com/CZERTAINLY/Atelier/internal/model"
)

const (
	DefaultLimit = 50
	metaExt      = ".json"
	metaReaders  = 8
)

var supported = map[string]struct{}{
	".png":  {},
	".jpg":  {},
	".jpeg": {},
	".webp": {},
}

type Catalog struct {
	dir      string
	maxLimit int
}

// New opens the catalog of dir, listings never exceed maxLimit entries.
func New(dir string, maxLimit int) (*Catalog, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("catalog: output directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("catalog: ensure directory: %w", err)
	}
	if maxLimit <= 0 || maxLimit > DefaultLimit {
		maxLimit = DefaultLimit
	}
	return &Catalog{dir: dir, maxLimit: maxLimit}, nil
}

func (c *Catalog) Dir() string {
	return c.dir
}

// Path returns the absolute location of an artifact name inside the store.
func (c *Catalog) Path(name string) string {
	return filepath.Join(c.dir, name)
}

type file struct {
	name string
	info fs.FileInfo
}

// List returns up to limit artifacts, newest first. limit <= 0 means the
// configured maximum.
func (c *Catalog) List(ctx context.Context, limit int) ([]model.Artifact, error) {
	if limit <= 0 || limit > c.maxLimit {
		limit = c.maxLimit
	}

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("catalog: reading %s: %w", c.dir, err)
	}

	files := make([]file, 0, len(entries))
	for _, e := range entries {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !isArtifact(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}
		files = append(files, file{name: e.Name(), info: info})
	}

	slices.SortFunc(files, func(a, b file) int {
		if n := b.info.ModTime().Compare(a.info.ModTime()); n != 0 {
			return n
		}
		return strings.Compare(a.name, b.name)
	})
	if len(files) > limit {
		files = files[:limit]
	}

	out := make([]model.Artifact, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(metaReaders)
	for i, f := range files {
		g.Go(func() error {
			out[i] = c.artifact(gctx, f)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Catalog) artifact(ctx context.Context, f file) model.Artifact {
	art := model.Artifact{
		Output:    f.name,
		Style:     model.StyleUnknown,
		CreatedAt: f.info.ModTime().UTC(),
		Size:      f.info.Size(),
	}
	meta, err := c.meta(f.name)
	switch {
	case err == nil:
		art.Input = meta.Input
		if meta.Style != "" {
			art.Style = meta.Style
		}
	case !errors.Is(err, os.ErrNotExist):
		slog.WarnContext(ctx, "ignoring unreadable artifact metadata", "output", f.name, "error", err)
	}
	return art
}

// Record persists the sidecar of a completed artifact. The artifact file
// must already exist.
func (c *Catalog) Record(ctx context.Context, meta model.ArtifactMeta) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name, err := fsx.CleanName(meta.Output)
	if err != nil || !isArtifact(name) {
		return fmt.Errorf("catalog: artifact %q: %w", meta.Output, model.ErrNotFound)
	}
	if !fsx.Exists(c.Path(name)) {
		return fmt.Errorf("catalog: artifact %s: %w", name, model.ErrNotFound)
	}
	if err := fsx.WriteJSONAtomic(c.Path(metaName(name)), meta); err != nil {
		return fmt.Errorf("catalog: recording %s: %w", name, err)
	}
	return nil
}

// Open returns a handle of the artifact name; unsupported or missing names
// are reported as model.ErrNotFound.
func (c *Catalog) Open(name string) (*os.File, fs.FileInfo, error) {
	clean, err := fsx.CleanName(name)
	if err != nil || !isArtifact(clean) {
		return nil, nil, fmt.Errorf("catalog: artifact %q: %w", name, model.ErrNotFound)
	}
	root, err := os.OpenRoot(c.dir)
	if err != nil {
		return nil, nil, fmt.Errorf("catalog: opening %s: %w", c.dir, err)
	}
	defer func() {
		_ = root.Close()
	}()

	f, err := root.Open(clean)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, fmt.Errorf("catalog: artifact %s: %w", clean, model.ErrNotFound)
	} else if err != nil {
		return nil, nil, fmt.Errorf("catalog: artifact %s: %w", clean, err)
	}
	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		_ = f.Close()
		return nil, nil, fmt.Errorf("catalog: artifact %s: %w", clean, model.ErrNotFound)
	}
	return f, info, nil
}

func (c *Catalog) meta(name string) (model.ArtifactMeta, error) {
	var meta model.ArtifactMeta
	err := fsx.ReadJSON(c.Path(metaName(name)), &meta)
	return meta, err
}

func metaName(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name)) + metaExt
}

func isArtifact(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	_, ok := supported[strings.ToLower(filepath.Ext(name))]
	return ok
}
