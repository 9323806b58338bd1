package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/shirabe/internal/models"
	"github.com/hyperjump/shirabe/internal/vector"
)

func sampleSnapshot() *Snapshot {
	return &Snapshot{
		Metadata: Metadata{Dimension: 2, Space: "cosine", ModelName: "all-MiniLM-L6-v2"},
		Documents: []DocumentPair{
			{ID: "1", Doc: models.Document{ID: "1", Text: "hello world", Source: "test", NodeIndex: 0, Bookmark: models.StringPtr("B1")}},
			{ID: "2", Doc: models.Document{ID: "2", Text: "foo bar", Source: "test", NodeIndex: 1}},
		},
		Vectors: []vector.Entry{
			{ID: "1", Vector: []float32{1, 0}},
			{ID: "2", Vector: []float32{0, 1}},
		},
	}
}

func TestDirStore_RoundTrip(t *testing.T) {
	for _, format := range []string{VectorFormatJSON, VectorFormatBinary} {
		t.Run(format, func(t *testing.T) {
			dir := t.TempDir()
			store, err := NewDirStore(dir, WithVectorFormat(format))
			require.NoError(t, err)
			ctx := context.Background()
			require.NoError(t, store.Save(ctx, sampleSnapshot()))

			snap, err := store.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, 2, snap.Metadata.NumElements)
			assert.Equal(t, "all-MiniLM-L6-v2", snap.Metadata.ModelName)
			assert.Equal(t, format, snap.Metadata.VectorFormat)
			assert.NotEmpty(t, snap.Metadata.Generation)
			require.Len(t, snap.Documents, 2)
			assert.Equal(t, "hello world", snap.Documents[0].Doc.Text)
			assert.Equal(t, "B1", snap.Documents[0].Doc.BookmarkID())
			require.Len(t, snap.Vectors, 2)
			assert.Equal(t, []float32{0, 1}, snap.Vectors[1].Vector)

			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			for _, e := range entries {
				assert.NotContains(t, e.Name(), ".tmp", "temp file left behind")
			}
		})
	}
}

func TestDirStore_DocumentsFileIsPairList(t *testing.T) {
	dir := t.TempDir()
	store, err := NewDirStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), sampleSnapshot()))

	data, err := os.ReadFile(filepath.Join(dir, DocumentsFile))
	require.NoError(t, err)
	var raw [][]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Len(t, raw, 2)
	assert.JSONEq(t, `"1"`, string(raw[0][0]))
}

func TestDirStore_MissingIsNoIndex(t *testing.T) {
	store, err := NewDirStore(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	_, err = store.Load(context.Background())
	assert.ErrorIs(t, err, ErrNoIndex)
	_, err = store.ReadMetadata(context.Background())
	assert.ErrorIs(t, err, ErrNoIndex)
}

func TestDirStore_MissingVectorsIsNoIndex(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewDirStore(dir)
	require.NoError(t, store.Save(context.Background(), sampleSnapshot()))
	require.NoError(t, os.Remove(filepath.Join(dir, VectorsFile)))
	_, err := store.Load(context.Background())
	assert.ErrorIs(t, err, ErrNoIndex)
}

func TestDirStore_TornWriteIsCorrupt(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewDirStore(dir)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, sampleSnapshot()))
	oldMeta, err := os.ReadFile(filepath.Join(dir, MetadataFile))
	require.NoError(t, err)

	require.NoError(t, store.Save(ctx, sampleSnapshot()))
	// simulate a crash before the metadata rename of the second save
	require.NoError(t, os.WriteFile(filepath.Join(dir, MetadataFile), oldMeta, 0644))

	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestDirStore_DocumentsOnlyRenameIsCorrupt(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewDirStore(dir)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, sampleSnapshot()))
	oldMeta, err := os.ReadFile(filepath.Join(dir, MetadataFile))
	require.NoError(t, err)
	oldVectors, err := os.ReadFile(filepath.Join(dir, VectorsFile))
	require.NoError(t, err)

	edited := sampleSnapshot()
	edited.Documents[0].Doc.Text = "hello again"
	edited.Vectors[0].Vector = []float32{1, 1}
	require.NoError(t, store.Save(ctx, edited))
	// simulate a crash right after documents.json was renamed into place
	require.NoError(t, os.WriteFile(filepath.Join(dir, MetadataFile), oldMeta, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, VectorsFile), oldVectors, 0644))

	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestDirStore_RecordsDocumentsChecksum(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewDirStore(dir)
	require.NoError(t, store.Save(context.Background(), sampleSnapshot()))

	meta, err := store.ReadMetadata(context.Background())
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(dir, DocumentsFile))
	require.NoError(t, err)
	sum := sha256.Sum256(data)
	assert.Equal(t, hex.EncodeToString(sum[:]), meta.DocumentsSHA256)
}

func TestDirStore_RejectsInconsistentSnapshot(t *testing.T) {
	store, _ := NewDirStore(t.TempDir())
	snap := sampleSnapshot()
	snap.Vectors = snap.Vectors[:1]
	err := store.Save(context.Background(), snap)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestDirStore_Clear(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewDirStore(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, BookmarksFile), []byte("[]"), 0644))
	require.NoError(t, store.Save(context.Background(), sampleSnapshot()))
	require.NoError(t, store.Clear())
	_, err := store.Load(context.Background())
	assert.ErrorIs(t, err, ErrNoIndex)
	assert.FileExists(t, filepath.Join(dir, BookmarksFile))
}

func TestNewDirStore_UnknownFormat(t *testing.T) {
	_, err := NewDirStore(t.TempDir(), WithVectorFormat("parquet"))
	assert.Error(t, err)
}

func TestBundleStore_LoadsLegacyAssets(t *testing.T) {
	fsys := fstest.MapFS{
		MetadataFile:  {Data: []byte(`{"dimension":2,"documentCount":1,"space":"l2","modelName":"Xenova/all-MiniLM-L6-v2"}`)},
		DocumentsFile: {Data: []byte(`[["node_3",{"id":"node_3","text":"Check airway","source":"guide.html","nodeIndex":3,"xpath":"/html/body/p[5]","tagName":"p","bookmark":null}]]`)},
		VectorsFile:   {Data: []byte(`{"vectors":[{"id":"node_3","vector":[0.6,0.8]}],"distanceFunction":"euclideanDistance"}`)},
	}
	store := NewBundleStore(fsys, "bundle", nil)
	snap, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Metadata.NumElements)
	assert.Equal(t, "l2", snap.Metadata.Space)
	assert.Equal(t, "/html/body/p[5]", snap.Documents[0].Doc.XPath)
	assert.Nil(t, snap.Documents[0].Doc.Bookmark)

	// Save is a documented no-op and must not fail.
	require.NoError(t, store.Save(context.Background(), sampleSnapshot()))
	meta, err := store.ReadMetadata(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Xenova/all-MiniLM-L6-v2", meta.ModelName)
}

func TestBundleStore_SpaceMismatchIsCorrupt(t *testing.T) {
	fsys := fstest.MapFS{
		MetadataFile:  {Data: []byte(`{"dimension":2,"numElements":0,"space":"cosine","modelName":"m"}`)},
		DocumentsFile: {Data: []byte(`[]`)},
		VectorsFile:   {Data: []byte(`{"vectors":[],"distanceFunction":"euclideanDistance"}`)},
	}
	_, err := NewBundleStore(fsys, "bundle", nil).Load(context.Background())
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestBundleStore_Empty(t *testing.T) {
	_, err := NewBundleStore(fstest.MapFS{}, "empty", nil).Load(context.Background())
	assert.ErrorIs(t, err, ErrNoIndex)
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "db", "index.sqlite"))
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	_, err = store.Load(ctx)
	require.ErrorIs(t, err, ErrNoIndex)

	require.NoError(t, store.Save(ctx, sampleSnapshot()))
	// a second save replaces rather than appends
	require.NoError(t, store.Save(ctx, sampleSnapshot()))

	snap, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Documents, 2)
	require.Len(t, snap.Vectors, 2)
	assert.Equal(t, "1", snap.Documents[0].ID)
	assert.Equal(t, []float32{1, 0}, snap.Vectors[0].Vector)
	assert.Equal(t, "cosine", snap.Metadata.Space)
}

func TestDocumentPair_JSON(t *testing.T) {
	p := DocumentPair{ID: "a", Doc: models.Document{ID: "a", Text: "x"}}
	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `["a",{"id":"a","text":"x","source":"","nodeIndex":0,"bookmark":null}]`, string(data))

	var bad DocumentPair
	assert.Error(t, json.Unmarshal([]byte(`["a"]`), &bad))
}
