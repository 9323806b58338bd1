package storage

import (
	"context"
	"io/fs"

	"go.uber.org/zap"
)

// BundleStore reads a snapshot shipped as read-only assets, for example an embed.FS
// or os.DirFS over an installed data directory.
type BundleStore struct {
	fsys   fs.FS
	name   string
	logger *zap.Logger
}

// NewBundleStore returns a read-only store over fsys. name is shown by Describe.
func NewBundleStore(fsys fs.FS, name string, logger *zap.Logger) *BundleStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BundleStore{fsys: fsys, name: name, logger: logger}
}

// Describe returns the bundle name.
func (b *BundleStore) Describe() string {
	return b.name
}

// FS returns the underlying file system.
func (b *BundleStore) FS() fs.FS {
	return b.fsys
}

// Load reads the bundled snapshot.
func (b *BundleStore) Load(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return loadFS(b.fsys)
}

// ReadMetadata reads the bundled metadata.json.
func (b *BundleStore) ReadMetadata(ctx context.Context) (*Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return readMetadataFS(b.fsys)
}

// Save is a no-op: bundled assets are produced by the offline indexing tool and are
// never rewritten at runtime. An engine over a bundle keeps a rebuilt index in memory only.
func (b *BundleStore) Save(ctx context.Context, snap *Snapshot) error {
	b.logger.Debug("bundle store is read-only, save skipped",
		zap.String("bundle", b.name),
		zap.Int("documents", len(snap.Documents)))
	return nil
}
