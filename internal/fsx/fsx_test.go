package fsx_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/CZERTAINLY/Atelier/internal/fsx"
	"github.com/stretchr/testify/require"
)

func TestWriteJSONAtomic(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "rec.json")

	type rec struct {
		Status string `json:"status"`
	}
	require.NoError(t, fsx.WriteJSONAtomic(path, rec{Status: "uploaded"}))
	require.NoError(t, fsx.WriteJSONAtomic(path, rec{Status: "complete"}))

	var got rec
	require.NoError(t, fsx.ReadJSON(path, &got))
	require.Equal(t, "complete", got.Status)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files must not be left behind")

	err = fsx.ReadJSON(filepath.Join(dir, "missing.json"), &got)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestCleanName(t *testing.T) {
	t.Parallel()
	var testCases = []struct {
		scenario string
		given    string
		ok       bool
	}{
		{"plain", "img_1.jpg", true},
		{"spaces trimmed", " img_1.jpg ", true},
		{"empty", "", false},
		{"dot", ".", false},
		{"parent", "..", false},
		{"traversal", "../../etc/passwd", false},
		{"windows traversal", `..\secret`, false},
		{"nested", "a/b.png", false},
		{"hidden", ".img.png.tmp", false},
	}
	for _, tt := range testCases {
		t.Run(tt.scenario, func(t *testing.T) {
			got, err := fsx.CleanName(tt.given)
			if !tt.ok {
				require.ErrorIs(t, err, fsx.ErrInvalidName)
				return
			}
			require.NoError(t, err)
			require.Equal(t, "img_1.jpg", got)
		})
	}
}
