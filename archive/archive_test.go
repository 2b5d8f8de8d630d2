package archive

import (
	"archive/tar"
	"bytes"
	"encoding/hex"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/cfm/securedrop-client/config"
	"github.com/cfm/securedrop-client/interfaces"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/blake2b"
)

type entry struct {
	hdr  tar.Header
	body string
}

func file(name, body string) entry {
	return entry{hdr: tar.Header{Name: name, Typeflag: tar.TypeReg, Mode: 0o644, Size: int64(len(body))}, body: body}
}

func dir(name string) entry {
	return entry{hdr: tar.Header{Name: name, Typeflag: tar.TypeDir, Mode: 0o755}}
}

func buildTar(t *testing.T, entries []entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, e := range entries {
		hdr := e.hdr
		require.NoError(t, tw.WriteHeader(&hdr))
		if e.body != "" {
			_, err := tw.Write([]byte(e.body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

func gzipped(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	_, err := gw.Write(data)
	require.NoError(t, err)
	require.NoError(t, gw.Close())
	return buf.Bytes()
}

func writeArchive(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "archive.sd-export")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func testConfig(t *testing.T) config.Config {
	cfg := config.Default()
	cfg.WorkDirParent = t.TempDir()
	return cfg
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func validEntries() []entry {
	return []entry{
		file("metadata.json", `{"export_method": "start-vm"}`),
		dir("export_data/"),
		file("export_data/doc.txt", "hello"),
		dir("export_data/nested/"),
		file("export_data/nested/img.png", "png"),
	}
}

func TestNew_MissingFile(t *testing.T) {
	cfg := testConfig(t)

	_, err := New(filepath.Join(t.TempDir(), "missing"), cfg, testLogger())
	require.Error(t, err)
	assert.Equal(t, interfaces.StatusErrorFileNotFound, interfaces.StatusFromError(err))

	_, err = New("", cfg, testLogger())
	assert.Equal(t, interfaces.StatusErrorFileNotFound, interfaces.StatusFromError(err))

	leftovers, err := os.ReadDir(cfg.WorkDirParent)
	require.NoError(t, err)
	assert.Empty(t, leftovers, "No work dir may be created for a missing archive")
}

func TestNew_NotRegular(t *testing.T) {
	_, err := New(t.TempDir(), testConfig(t), testLogger())
	assert.Equal(t, interfaces.StatusErrorExtraction, interfaces.StatusFromError(err))
}

func TestArchive_ExtractGzip(t *testing.T) {
	data := gzipped(t, buildTar(t, validEntries()))
	a, err := New(writeArchive(t, data), testConfig(t), testLogger())
	require.NoError(t, err)
	assert.Empty(t, a.WorkDir(), "Nothing is created before Extract")
	assert.Empty(t, a.PayloadDir())

	require.NoError(t, a.Extract())
	defer a.Cleanup()

	fi, err := os.Stat(a.WorkDir())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), fi.Mode().Perm(), "Work dir must be private")

	content, err := os.ReadFile(filepath.Join(a.PayloadDir(), "nested", "img.png"))
	require.NoError(t, err)
	assert.Equal(t, "png", string(content))

	fi, err = os.Stat(filepath.Join(a.PayloadDir(), "doc.txt"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm(), "Archive modes are not honoured")

	sum := blake2b.Sum256(data)
	assert.Equal(t, hex.EncodeToString(sum[:]), a.Digest())

	assert.Regexp(t, `^sd-export-\d{8}-\d{6}$`, a.TargetDirname())
}

func TestArchive_ExtractPlainTar(t *testing.T) {
	a, err := New(writeArchive(t, buildTar(t, validEntries())), testConfig(t), testLogger())
	require.NoError(t, err)
	require.NoError(t, a.Extract())
	defer a.Cleanup()

	_, err = os.Stat(filepath.Join(a.WorkDir(), "metadata.json"))
	assert.NoError(t, err)
}

func TestArchive_ExtractRejects(t *testing.T) {
	tests := []struct {
		name    string
		entries []entry
	}{
		{"parent traversal", []entry{file("../escape.txt", "x")}},
		{"nested traversal", []entry{file("export_data/../../escape.txt", "x")}},
		{"absolute path", []entry{file("/etc/passwd", "x")}},
		{"symlink", []entry{{hdr: tar.Header{Name: "export_data/link", Typeflag: tar.TypeSymlink, Linkname: "/etc/shadow"}}}},
		{"hard link", []entry{file("a.txt", "x"), {hdr: tar.Header{Name: "b.txt", Typeflag: tar.TypeLink, Linkname: "a.txt"}}}},
		{"device", []entry{{hdr: tar.Header{Name: "dev", Typeflag: tar.TypeChar, Devmajor: 1, Devminor: 3}}}},
		{"fifo", []entry{{hdr: tar.Header{Name: "fifo", Typeflag: tar.TypeFifo}}}},
		{"duplicate", []entry{file("a.txt", "x"), file("a.txt", "y")}},
		{"empty", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parent := t.TempDir()
			cfg := config.Default()
			cfg.WorkDirParent = parent

			a, err := New(writeArchive(t, buildTar(t, tt.entries)), cfg, testLogger())
			require.NoError(t, err)

			err = a.Extract()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrArchiveFormat)
			assert.Equal(t, interfaces.StatusErrorExtraction, interfaces.StatusFromError(err))

			_, statErr := os.Lstat(filepath.Join(filepath.Dir(parent), "escape.txt"))
			assert.True(t, os.IsNotExist(statErr), "Nothing may be written outside the work dir")

			require.NoError(t, a.Cleanup())
			leftovers, err := os.ReadDir(parent)
			require.NoError(t, err)
			assert.Empty(t, leftovers, "Cleanup must remove the partial extraction")
		})
	}
}

func TestArchive_ExtractCorrupt(t *testing.T) {
	data := gzipped(t, buildTar(t, validEntries()))
	a, err := New(writeArchive(t, data[:len(data)/2]), testConfig(t), testLogger())
	require.NoError(t, err)

	err = a.Extract()
	assert.Equal(t, interfaces.StatusErrorExtraction, interfaces.StatusFromError(err))
	require.NoError(t, a.Cleanup())
}

func TestArchive_ExtractLimits(t *testing.T) {
	t.Run("entries", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.MaxArchiveEntries = 2

		a, err := New(writeArchive(t, buildTar(t, validEntries())), cfg, testLogger())
		require.NoError(t, err)
		assert.ErrorIs(t, a.Extract(), ErrArchiveFormat)
		require.NoError(t, a.Cleanup())
	})

	t.Run("bytes", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.MaxArchiveBytes = 4

		a, err := New(writeArchive(t, buildTar(t, validEntries())), cfg, testLogger())
		require.NoError(t, err)
		assert.ErrorIs(t, a.Extract(), ErrArchiveFormat)
		require.NoError(t, a.Cleanup())
	})
}

func TestArchive_Cleanup(t *testing.T) {
	var nilArchive *Archive
	assert.NoError(t, nilArchive.Cleanup(), "Cleanup on nil archive is a no-op")

	a, err := New(writeArchive(t, buildTar(t, validEntries())), testConfig(t), testLogger())
	require.NoError(t, err)
	assert.NoError(t, a.Cleanup(), "Cleanup before Extract is a no-op")

	require.NoError(t, a.Extract())
	workDir := a.WorkDir()
	require.NoError(t, a.Cleanup())
	_, err = os.Stat(workDir)
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, a.Cleanup(), "Cleanup is idempotent")
}

func TestArchive_ExtractTwice(t *testing.T) {
	a, err := New(writeArchive(t, buildTar(t, validEntries())), testConfig(t), testLogger())
	require.NoError(t, err)
	require.NoError(t, a.Extract())
	defer a.Cleanup()

	assert.Equal(t, interfaces.StatusErrorGeneric, interfaces.StatusFromError(a.Extract()))
}

func TestSafeJoin(t *testing.T) {
	root := "/work"
	ok := map[string]string{
		"a.txt":             "/work/a.txt",
		"./export_data/b":   "/work/export_data/b",
		"export_data/c/d.x": "/work/export_data/c/d.x",
	}
	for name, want := range ok {
		got, err := safeJoin(root, name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got)
	}

	for _, name := range []string{"", "/abs", "..", "../x", "a/../../x", "a/.."} {
		_, err := safeJoin(root, name)
		assert.ErrorIs(t, err, ErrArchiveFormat, "%q should be rejected", name)
	}
}
