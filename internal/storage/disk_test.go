package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskUsageBytes(t *testing.T) {
	dir := t.TempDir()
	meta := filepath.Join(dir, "metadata.json")
	require.NoError(t, os.WriteFile(meta, []byte("{}\n"), 0644))
	assets := filepath.Join(dir, "assets")
	require.NoError(t, os.Mkdir(assets, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(assets, "documents.json"), []byte("[]"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(assets, "index.dat"), []byte("{}"), 0644))

	tests := []struct {
		name  string
		paths []string
		want  int64
	}{
		{"file", []string{meta}, 3},
		{"directory", []string{assets}, 4},
		{"file and directory", []string{meta, assets}, 7},
		{"missing path skipped", []string{meta, filepath.Join(dir, "gone"), assets}, 7},
		{"empty path skipped", []string{"", meta}, 3},
		{"nothing", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DiskUsageBytes(tt.paths...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDirStore_DiskUsage(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	store, err := NewDirStore(dir)
	require.NoError(t, err)

	n, err := store.DiskUsage()
	require.NoError(t, err)
	assert.Zero(t, n, "nothing saved yet")

	require.NoError(t, store.Save(context.Background(), sampleSnapshot()))
	n, err = store.DiskUsage()
	require.NoError(t, err)
	assert.Positive(t, n)
}
