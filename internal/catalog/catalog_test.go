package catalog_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/CZERTAINLY/Atelier/internal/catalog"
	"github.com/CZERTAINLY/Atelier/internal/model"

	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, dir, name string, size int, mtime time.Time) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func TestList(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	c, err := catalog.New(dir, 50)
	require.NoError(t, err)
	ctx := t.Context()
	base := time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)

	t.Run("empty", func(t *testing.T) {
		list, err := c.List(ctx, 0)
		require.NoError(t, err)
		require.Empty(t, list)
	})

	touch(t, dir, "gen_old_anime.png", 10, base)
	touch(t, dir, "gen_new_ghibli.png", 20, base.Add(2*time.Minute))
	touch(t, dir, "gen_mid_comic.jpg", 30, base.Add(time.Minute))
	touch(t, dir, "notes.txt", 1, base.Add(time.Hour))
	touch(t, dir, ".gen_tmp.png.123.tmp", 1, base.Add(time.Hour))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "dir.png"), 0o755))

	require.NoError(t, c.Record(ctx, model.ArtifactMeta{
		Input:  "new.jpg",
		Output: "gen_new_ghibli.png",
		Style:  model.StyleGhibli,
	}))

	list, err := c.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.Equal(t, "gen_new_ghibli.png", list[0].Output)
	require.Equal(t, model.StyleGhibli, list[0].Style)
	require.Equal(t, "new.jpg", list[0].Input)
	require.Equal(t, int64(20), list[0].Size)
	require.Equal(t, "gen_mid_comic.jpg", list[1].Output)
	require.Equal(t, model.StyleUnknown, list[1].Style)
	require.Empty(t, list[1].Input)
	require.Equal(t, "gen_old_anime.png", list[2].Output)
	require.True(t, base.Equal(list[2].CreatedAt))

	t.Run("limit", func(t *testing.T) {
		list, err := c.List(ctx, 2)
		require.NoError(t, err)
		require.Len(t, list, 2)
		require.Equal(t, "gen_new_ghibli.png", list[0].Output)
	})

	t.Run("file removed", func(t *testing.T) {
		require.NoError(t, os.Remove(filepath.Join(dir, "gen_new_ghibli.png")))
		list, err := c.List(ctx, 0)
		require.NoError(t, err)
		require.Len(t, list, 2)
		for _, a := range list {
			require.NotEqual(t, "gen_new_ghibli.png", a.Output)
		}
	})
}

func TestListCap(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	c, err := catalog.New(dir, 0)
	require.NoError(t, err)
	base := time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)
	for i := range 60 {
		touch(t, dir, fmt.Sprintf("gen_%02d_anime.png", i), 1, base.Add(time.Duration(i)*time.Second))
	}

	list, err := c.List(t.Context(), 1000)
	require.NoError(t, err)
	require.Len(t, list, catalog.DefaultLimit)
	require.Equal(t, "gen_59_anime.png", list[0].Output)
	for i := 1; i < len(list); i++ {
		require.False(t, list[i].CreatedAt.After(list[i-1].CreatedAt), "not ordered by recency")
	}
}

func TestRecord(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	c, err := catalog.New(dir, 50)
	require.NoError(t, err)

	err = c.Record(t.Context(), model.ArtifactMeta{Output: "gen_missing_anime.png"})
	require.ErrorIs(t, err, model.ErrNotFound)
	_, err = os.Stat(filepath.Join(dir, "gen_missing_anime.json"))
	require.ErrorIs(t, err, os.ErrNotExist)

	err = c.Record(t.Context(), model.ArtifactMeta{Output: "../gen_x_anime.png"})
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestOpen(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	c, err := catalog.New(dir, 50)
	require.NoError(t, err)
	touch(t, dir, "gen_a_anime.png", 42, time.Now())
	touch(t, dir, "gen_a_anime.json", 2, time.Now())

	f, info, err := c.Open("gen_a_anime.png")
	require.NoError(t, err)
	require.Equal(t, int64(42), info.Size())
	require.NoError(t, f.Close())

	for _, name := range []string{"gen_b_anime.png", "gen_a_anime.json", "../catalog.go", ""} {
		_, _, err := c.Open(name)
		require.ErrorIs(t, err, model.ErrNotFound, name)
	}
}
