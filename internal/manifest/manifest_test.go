package manifest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/code-bush/robustack-dl/internal/pathguard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	fpA = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	fpB = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
)

func newRoot(t *testing.T) pathguard.Root {
	t.Helper()
	t.Chdir(t.TempDir())
	root, err := pathguard.ResolveRoot(".")
	require.NoError(t, err)
	return root
}

func entry(fp, path string) Entry {
	return Entry{
		SourceURL:   "https://example.substack.com/p/" + path,
		Fingerprint: fp,
		LocalPath:   path,
		Size:        42,
		RecordedAt:  time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestManifest_InsertLastWins(t *testing.T) {
	m := New()
	m.Insert(entry(fpA, "first.html"))
	m.Insert(entry(fpA, "second.html"))

	assert.Equal(t, 1, m.Len())
	got, ok := m.Get(fpA)
	require.True(t, ok)
	assert.Equal(t, "second.html", got.LocalPath)
	assert.True(t, m.Contains(fpA))
	assert.False(t, m.Contains(fpB))
}

func TestManifest_RemovePath(t *testing.T) {
	m := New()
	m.Insert(entry(fpA, "post.html"))
	m.Insert(entry(fpB, "other.html"))
	data, err := m.Encode()
	require.NoError(t, err)

	clean, err := Decode(data)
	require.NoError(t, err)
	require.False(t, clean.Dirty())

	assert.Equal(t, 0, clean.RemovePath("absent.html"))
	assert.False(t, clean.Dirty())

	assert.Equal(t, 1, clean.RemovePath("post.html"))
	assert.True(t, clean.Dirty())
	assert.False(t, clean.Contains(fpA))
	assert.True(t, clean.Contains(fpB))
}

func TestManifest_EntriesSorted(t *testing.T) {
	m := New()
	m.Insert(entry(fpA, "z.html"))
	m.Insert(entry(fpB, "a.html"))

	entries := m.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "a.html", entries[0].LocalPath)
	assert.Equal(t, "z.html", entries[1].LocalPath)
}

func TestLoad_MissingFileIsEmpty(t *testing.T) {
	root := newRoot(t)

	m, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, 0, m.Len())
	assert.True(t, m.Dirty())
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	root := newRoot(t)

	m := New()
	m.Insert(entry(fpA, "post.html"))
	m.Insert(entry(fpB, "images/0123456789abcdef_image.png"))
	require.NoError(t, m.Save(root))
	assert.False(t, m.Dirty())

	loaded, err := Load(root)
	require.NoError(t, err)
	assert.False(t, loaded.Dirty())
	assert.Equal(t, m.Entries(), loaded.Entries())

	data, err := os.ReadFile(filepath.Join(root.Path(), FileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"entries": {`)
	assert.Contains(t, string(data), `"local_path": "post.html"`)
}

func TestLoad_Corrupt(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "malformed JSON", body: `{"entries": `},
		{name: "wrong shape", body: `[1, 2, 3]`},
		{name: "missing field", body: `{"entries": {"` + fpA + `": {"fingerprint": "` + fpA + `"}}}`},
		{name: "key mismatch", body: `{"entries": {"` + fpA + `": {"source_url": "u", "fingerprint": "` + fpB + `", "local_path": "a", "size": 1, "recorded_at": "2024-03-01T10:00:00Z"}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := newRoot(t)
			require.NoError(t, os.WriteFile(filepath.Join(root.Path(), FileName), []byte(tt.body), 0644))

			_, err := Load(root)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrManifestCorrupt)
		})
	}
}

func TestLoad_NotRegularFile(t *testing.T) {
	root := newRoot(t)
	require.NoError(t, os.Mkdir(filepath.Join(root.Path(), FileName), 0755))

	_, err := Load(root)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrManifestIO)
}

func TestLoad_SymlinkOutsideRoot(t *testing.T) {
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, FileName), []byte(`{"entries": {}}`), 0644))

	root := newRoot(t)
	require.NoError(t, os.Symlink(filepath.Join(outside, FileName), filepath.Join(root.Path(), FileName)))

	_, err := Load(root)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrManifestIO)
	assert.ErrorIs(t, err, pathguard.ErrPathTraversal)
}

func TestSave_ReplacesPreviousFile(t *testing.T) {
	root := newRoot(t)

	m := New()
	m.Insert(entry(fpA, "a.html"))
	m.Insert(entry(fpB, "b.html"))
	require.NoError(t, m.Save(root))

	smaller := New()
	smaller.Insert(entry(fpA, "a.html"))
	require.NoError(t, smaller.Save(root))

	loaded, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Len())
}
