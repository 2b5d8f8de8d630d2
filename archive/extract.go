package archive

import (
	"archive/tar"
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/cfm/securedrop-client/interfaces"
	"github.com/klauspost/compress/gzip"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sys/unix"
)

const (
	workDirPerm = os.FileMode(0o700)
	filePerm    = os.FileMode(0o600)
)

// Extract creates a private work directory and unpacks the archive into it.
// Only regular files and directories are accepted; any link, device, absolute
// or escaping path fails the whole archive. On failure the partially filled
// work directory is left for Cleanup.
func (a *Archive) Extract() error {
	if a.workDir != "" {
		return interfaces.NewStatusError(interfaces.StatusErrorGeneric, errors.New("archive already extracted"))
	}

	f, err := os.Open(a.sourcePath)
	if err != nil {
		return extractionError(fmt.Errorf("%w: %w", ErrArchiveIO, err))
	}
	defer f.Close()

	workDir, err := os.MkdirTemp(a.cfg.WorkDirParent, WorkDirPrefix)
	if err != nil {
		return extractionError(fmt.Errorf("%w: could not create work dir: %w", ErrArchiveIO, err))
	}
	a.workDir = workDir
	if err := os.Chmod(workDir, workDirPerm); err != nil {
		return extractionError(fmt.Errorf("%w: %w", ErrArchiveIO, err))
	}

	hasher, err := blake2b.New256(nil)
	if err != nil {
		return extractionError(err)
	}
	br := bufio.NewReader(io.TeeReader(f, hasher))

	var r io.Reader = br
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return extractionError(fmt.Errorf("%w: %w", ErrArchiveFormat, err))
		}
		defer gz.Close()
		r = gz
	}

	entries, size, err := extractTar(r, workDir, a.cfg.MaxArchiveEntries, a.cfg.MaxArchiveBytes)
	if err != nil {
		return extractionError(err)
	}

	// Hash trailing padding too so the digest covers the whole file.
	if _, err := io.Copy(io.Discard, br); err != nil {
		return extractionError(fmt.Errorf("%w: %w", ErrArchiveIO, err))
	}
	a.digest = hex.EncodeToString(hasher.Sum(nil))

	a.log.Info("Archive extracted",
		slog.String("workDir", workDir),
		slog.Int("entries", entries),
		slog.Int64("bytes", size),
		slog.String("blake2b", a.digest))
	return nil
}

func extractionError(err error) error {
	return interfaces.NewStatusError(interfaces.StatusErrorExtraction, err)
}

func extractTar(r io.Reader, dest string, maxEntries int, maxBytes int64) (int, int64, error) {
	tr := tar.NewReader(r)
	var entries int
	var total int64
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			if entries == 0 {
				return 0, 0, fmt.Errorf("%w: archive is empty", ErrArchiveFormat)
			}
			return entries, total, nil
		}
		if err != nil {
			return entries, total, fmt.Errorf("%w: %w", ErrArchiveFormat, err)
		}

		if hdr.Typeflag == tar.TypeXGlobalHeader {
			continue
		}

		entries++
		if entries > maxEntries {
			return entries, total, fmt.Errorf("%w: more than %d entries", ErrArchiveFormat, maxEntries)
		}

		target, err := safeJoin(dest, hdr.Name)
		if err != nil {
			return entries, total, err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, workDirPerm); err != nil {
				return entries, total, fmt.Errorf("%w: %w", ErrArchiveIO, err)
			}
		case tar.TypeReg:
			if hdr.Size < 0 || hdr.Size > maxBytes-total {
				return entries, total, fmt.Errorf("%w: archive exceeds %d bytes", ErrArchiveFormat, maxBytes)
			}
			n, err := writeFile(target, tr, hdr.Size)
			total += n
			if err != nil {
				return entries, total, err
			}
		default:
			return entries, total, fmt.Errorf("%w: unsupported entry type %q for %s", ErrArchiveFormat, hdr.Typeflag, hdr.Name)
		}
	}
}

func writeFile(target string, src io.Reader, size int64) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), workDirPerm); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrArchiveIO, err)
	}

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL|unix.O_NOFOLLOW, filePerm)
	if errors.Is(err, fs.ErrExist) {
		return 0, fmt.Errorf("%w: duplicate entry %s", ErrArchiveFormat, target)
	} else if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrArchiveIO, err)
	}

	n, err := io.Copy(out, io.LimitReader(src, size))
	if err != nil {
		out.Close()
		return n, fmt.Errorf("%w: %w", ErrArchiveFormat, err)
	}
	if err := out.Close(); err != nil {
		return n, fmt.Errorf("%w: %w", ErrArchiveIO, err)
	}
	return n, nil
}

// safeJoin resolves an entry name under root, rejecting absolute names and
// any name with a ".." component.
func safeJoin(root, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: empty entry name", ErrArchiveFormat)
	}
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("%w: absolute entry name %s", ErrArchiveFormat, name)
	}
	for _, part := range strings.Split(filepath.ToSlash(name), "/") {
		if part == ".." {
			return "", fmt.Errorf("%w: path traversal in %s", ErrArchiveFormat, name)
		}
	}

	target := filepath.Join(root, name)
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: entry %s escapes work dir", ErrArchiveFormat, name)
	}
	return target, nil
}
