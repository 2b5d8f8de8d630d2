package archive

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cfm/securedrop-client/config"
	"github.com/cfm/securedrop-client/interfaces"
	"github.com/cfm/securedrop-client/metadata"
)

// PayloadDirName is the directory inside the archive holding the files to export.
const PayloadDirName = "export_data"

// WorkDirPrefix prefixes every extraction directory name.
const WorkDirPrefix = "sd-export-"

var (
	// ErrArchiveFormat marks archives that are unreadable or violate the entry policy.
	ErrArchiveFormat = errors.New("archive format error")
	// ErrArchiveIO marks local filesystem failures during extraction.
	ErrArchiveIO = errors.New("archive io error")
)

// Archive is one inbound submission and its private extraction state.
// It alone creates and removes its work directory.
type Archive struct {
	sourcePath    string
	workDir       string
	digest        string
	targetDirname string
	metadata      *metadata.Metadata

	cfg config.Config
	log *slog.Logger
}

// New checks that sourcePath names a regular file. Nothing is created on disk.
func New(sourcePath string, cfg config.Config, log *slog.Logger) (*Archive, error) {
	if sourcePath == "" {
		return nil, interfaces.NewStatusError(interfaces.StatusErrorFileNotFound, errors.New("no archive path given"))
	}

	fi, err := os.Stat(sourcePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, interfaces.NewStatusError(interfaces.StatusErrorFileNotFound, err)
	} else if err != nil {
		return nil, interfaces.NewStatusError(interfaces.StatusErrorExtraction, fmt.Errorf("%w: %w", ErrArchiveIO, err))
	}
	if !fi.Mode().IsRegular() {
		return nil, interfaces.NewStatusError(interfaces.StatusErrorExtraction, fmt.Errorf("%w: %s is not a regular file", ErrArchiveFormat, sourcePath))
	}

	return &Archive{
		sourcePath:    sourcePath,
		targetDirname: "sd-export-" + time.Now().Format("20060102-150405"),
		cfg:           cfg,
		log:           log,
	}, nil
}

// SourcePath returns the path supplied by the caller.
func (a *Archive) SourcePath() string {
	return a.sourcePath
}

// WorkDir returns the extraction directory, or "" before extraction.
func (a *Archive) WorkDir() string {
	return a.workDir
}

// PayloadDir returns the directory holding the files to export.
func (a *Archive) PayloadDir() string {
	if a.workDir == "" {
		return ""
	}
	return filepath.Join(a.workDir, PayloadDirName)
}

// TargetDirname is the directory name the disk service creates on the volume.
func (a *Archive) TargetDirname() string {
	return a.targetDirname
}

// Digest returns the hex BLAKE2b-256 of the archive bytes, set by Extract.
func (a *Archive) Digest() string {
	return a.digest
}

// Metadata returns the validated manifest, or nil before validation.
func (a *Archive) Metadata() *metadata.Metadata {
	return a.metadata
}

// SetMetadata attaches the validated manifest. It may be set once.
func (a *Archive) SetMetadata(md *metadata.Metadata) error {
	if md == nil {
		return errors.New("nil metadata")
	}
	if a.metadata != nil {
		return errors.New("metadata already set")
	}
	a.metadata = md
	return nil
}

// Cleanup recursively removes the work directory. It is safe to call more than once.
func (a *Archive) Cleanup() error {
	if a == nil || a.workDir == "" {
		return nil
	}
	if err := os.RemoveAll(a.workDir); err != nil {
		return fmt.Errorf("could not remove work dir %s: %w", a.workDir, err)
	}
	a.log.Debug("Removed work dir", slog.String("path", a.workDir))
	return nil
}
