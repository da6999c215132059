package audit

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-bush/robustack-dl/internal/integrity"
	"github.com/code-bush/robustack-dl/internal/manifest"
	"github.com/code-bush/robustack-dl/internal/pathguard"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// archive writes files under a fresh root and records them in manifest.json.
func archive(t *testing.T, files map[string]string) pathguard.Root {
	t.Helper()
	t.Chdir(t.TempDir())
	root, err := pathguard.ResolveRoot(".")
	require.NoError(t, err)

	m := manifest.New()
	for rel, body := range files {
		_, err := root.WriteFile(rel, []byte(body))
		require.NoError(t, err)
		m.Insert(manifest.Entry{
			SourceURL:   "https://example.com/" + rel,
			Fingerprint: integrity.Fingerprint([]byte(body)),
			LocalPath:   rel,
			Size:        int64(len(body)),
			RecordedAt:  time.Now().UTC(),
		})
	}
	require.NoError(t, m.Save(root))
	return root
}

func TestRun_AllPass(t *testing.T) {
	archive(t, map[string]string{
		"a.html":                           "<p>a</p>",
		"b.md":                             "# b",
		"images/0123456789abcdef_image.png": "png-bytes",
	})

	result, err := Run(context.Background(), manifest.FileName, Options{Logger: quietLogger()})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Passed)
	assert.Zero(t, result.Failed)
	assert.Zero(t, result.Missing)
	assert.True(t, result.OK())
	assert.Empty(t, result.Problems())
}

func TestRun_Scenarios(t *testing.T) {
	root := archive(t, map[string]string{
		"good.html":    "good",
		"tampered.txt": "original",
		"deleted.md":   "deleted",
	})
	require.NoError(t, os.WriteFile(filepath.Join(root.Path(), "tampered.txt"), []byte("changed"), 0644))
	require.NoError(t, os.Remove(filepath.Join(root.Path(), "deleted.md")))

	result, err := Run(context.Background(), "manifest.json", Options{Jobs: 2, Logger: quietLogger()})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuditFailed)
	require.NotNil(t, result)

	assert.Equal(t, 1, result.Passed)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Missing)
	assert.Equal(t, 3, result.Total())

	statuses := map[string]EntryResult{}
	for _, e := range result.Entries {
		statuses[e.Entry.LocalPath] = e
	}
	assert.Equal(t, StatusPassed, statuses["good.html"].Status)
	assert.Equal(t, StatusFailed, statuses["tampered.txt"].Status)
	assert.ErrorIs(t, statuses["tampered.txt"].Err, integrity.ErrHashMismatch)
	assert.Equal(t, integrity.Fingerprint([]byte("changed")), statuses["tampered.txt"].Actual)
	assert.Empty(t, statuses["good.html"].Actual)
	assert.Equal(t, StatusMissing, statuses["deleted.md"].Status)
	assert.ErrorIs(t, statuses["deleted.md"].Err, integrity.ErrFileMissing)
}

func TestRun_TraversalEntryFails(t *testing.T) {
	root := archive(t, nil)

	m := manifest.New()
	m.Insert(manifest.Entry{
		SourceURL:   "https://evil.example/",
		Fingerprint: integrity.Fingerprint([]byte("root:x:0:0")),
		LocalPath:   "../../etc/passwd",
		Size:        10,
		RecordedAt:  time.Now().UTC(),
	})
	require.NoError(t, m.Save(root))

	result, err := Run(context.Background(), manifest.FileName, Options{Logger: quietLogger()})
	require.Error(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Zero(t, result.Passed)
	assert.Zero(t, result.Missing)
	assert.ErrorIs(t, result.Entries[0].Err, pathguard.ErrPathTraversal)
}

func TestRun_SymlinkEscapeFails(t *testing.T) {
	outside := t.TempDir()
	secret := filepath.Join(outside, "secret.txt")
	require.NoError(t, os.WriteFile(secret, []byte("secret"), 0644))

	root := archive(t, nil)
	require.NoError(t, os.Symlink(secret, filepath.Join(root.Path(), "link.txt")))

	m := manifest.New()
	m.Insert(manifest.Entry{
		SourceURL:   "https://example.com/link",
		Fingerprint: integrity.Fingerprint([]byte("secret")),
		LocalPath:   "link.txt",
		Size:        6,
		RecordedAt:  time.Now().UTC(),
	})
	require.NoError(t, m.Save(root))

	result, err := Run(context.Background(), manifest.FileName, Options{Logger: quietLogger()})
	require.Error(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.ErrorIs(t, result.Entries[0].Err, pathguard.ErrPathTraversal)
}

func TestRun_EmptyManifestPasses(t *testing.T) {
	archive(t, nil)

	result, err := Run(context.Background(), manifest.FileName, Options{Logger: quietLogger()})
	require.NoError(t, err)
	assert.Zero(t, result.Total())
	assert.True(t, result.OK())
}

func TestRun_MissingManifestIsEmpty(t *testing.T) {
	t.Chdir(t.TempDir())

	result, err := Run(context.Background(), manifest.FileName, Options{Logger: quietLogger()})
	require.NoError(t, err)
	assert.Zero(t, result.Total())
}

func TestRun_CorruptManifest(t *testing.T) {
	t.Chdir(t.TempDir())
	require.NoError(t, os.WriteFile(manifest.FileName, []byte("{not json"), 0644))

	_, err := Run(context.Background(), manifest.FileName, Options{Logger: quietLogger()})
	require.Error(t, err)
	assert.ErrorIs(t, err, manifest.ErrManifestCorrupt)
}

func TestRun_ManifestInSubdirectory(t *testing.T) {
	t.Chdir(t.TempDir())
	require.NoError(t, os.Mkdir("out", 0755))
	root, err := pathguard.ResolveRoot("out")
	require.NoError(t, err)

	_, err = root.WriteFile("post.html", []byte("body"))
	require.NoError(t, err)
	m := manifest.New()
	m.Insert(manifest.Entry{
		SourceURL:   "https://example.com/p/post",
		Fingerprint: integrity.Fingerprint([]byte("body")),
		LocalPath:   "post.html",
		Size:        4,
		RecordedAt:  time.Now().UTC(),
	})
	require.NoError(t, m.Save(root))

	result, err := Run(context.Background(), filepath.Join("out", manifest.FileName), Options{Logger: quietLogger()})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Passed)
	assert.Equal(t, root.Path(), result.Root)
}

func TestRun_Cancelled(t *testing.T) {
	archive(t, map[string]string{"a.html": "a"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, manifest.FileName, Options{Logger: quietLogger()})
	assert.ErrorIs(t, err, context.Canceled)
}
