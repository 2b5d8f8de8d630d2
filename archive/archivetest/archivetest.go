// Package archivetest builds submission archives for tests.
package archivetest

import (
	"archive/tar"
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/cfm/securedrop-client/archive"
	"github.com/cfm/securedrop-client/config"
	"github.com/cfm/securedrop-client/metadata"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"
)

// Write creates a gzipped tar holding metadata.json with manifest and each
// payload file under export_data/, and returns its path.
func Write(t *testing.T, manifest string, payload map[string]string) string {
	t.Helper()

	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)

	add := func(name, body string) {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Typeflag: tar.TypeReg, Mode: 0o644, Size: int64(len(body))}))
		_, err := io.WriteString(tw, body)
		require.NoError(t, err)
	}

	add(metadata.FileName, manifest)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: archive.PayloadDirName + "/", Typeflag: tar.TypeDir, Mode: 0o755}))

	names := make([]string, 0, len(payload))
	for name := range payload {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		add(archive.PayloadDirName+"/"+name, payload[name])
	}

	require.NoError(t, tw.Close())
	require.NoError(t, gw.Close())

	path := filepath.Join(t.TempDir(), "submission.sd-export")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	return path
}

// Extracted returns an archive that has been extracted and validated, as
// collaborators receive it. The work dir is removed when the test ends.
func Extracted(t *testing.T, manifest string, payload map[string]string) *archive.Archive {
	t.Helper()

	cfg := config.Default()
	cfg.WorkDirParent = t.TempDir()

	a, err := archive.New(Write(t, manifest, payload), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { a.Cleanup() })

	require.NoError(t, a.Extract())
	md, err := metadata.Parse(a.WorkDir())
	require.NoError(t, err)
	require.NoError(t, a.SetMetadata(md))
	return a
}
