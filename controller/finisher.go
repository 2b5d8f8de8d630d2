package controller

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/cfm/securedrop-client/archive"
	"github.com/cfm/securedrop-client/interfaces"
	"go.uber.org/atomic"
)

// Finisher is the single exit path of the process: it removes extracted
// material, writes one status token and exits with code 0.
type Finisher struct {
	log *slog.Logger

	// StatusWriter receives the status token. Defaults to os.Stderr.
	StatusWriter io.Writer
	// Exit terminates the process. Defaults to os.Exit.
	Exit func(code int)
	// LogCloser, when set, is closed right before Exit.
	LogCloser io.Closer

	done atomic.Bool
}

// SetLogger replaces the logger once the real log sink is available.
func (f *Finisher) SetLogger(log *slog.Logger, closer io.Closer) {
	f.log = log
	f.LogCloser = closer
}

// NewFinisher returns a Finisher writing to stderr and calling os.Exit.
func NewFinisher(log *slog.Logger) *Finisher {
	return &Finisher{
		log:          log,
		StatusWriter: os.Stderr,
		Exit:         os.Exit,
	}
}

// Finish runs at most once; later calls return immediately. When status is
// empty the status carried by err is used. Anything outside the status set
// is reported as ERROR_GENERIC.
func (f *Finisher) Finish(a *archive.Archive, status interfaces.Status, err error) {
	if !f.done.CompareAndSwap(false, true) {
		f.log.Warn("Finish called more than once", slog.String("status", string(status)))
		return
	}

	if cleanupErr := a.Cleanup(); cleanupErr != nil {
		f.log.Error("Failed to remove work dir", "err", cleanupErr)
	}

	if status == "" && err != nil {
		status = interfaces.StatusFromError(err)
	}
	if !status.Valid() {
		f.log.Error("Invalid final status", slog.String("status", string(status)), "err", err)
		status = interfaces.StatusErrorGeneric
	}

	f.log.Info("Exiting", slog.String("status", status.String()))
	if _, werr := fmt.Fprintln(f.StatusWriter, status.String()); werr != nil {
		f.log.Error("Failed to write status", "err", werr)
	}
	if f.LogCloser != nil {
		f.LogCloser.Close()
	}
	f.Exit(0)
}

// Finished reports whether Finish has run.
func (f *Finisher) Finished() bool {
	return f.done.Load()
}
