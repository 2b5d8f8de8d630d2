package printutil

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os/user"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cfm/securedrop-client/archive"
	"github.com/cfm/securedrop-client/config"
	"github.com/cfm/securedrop-client/deviceutils"
	"github.com/cfm/securedrop-client/interfaces"
)

// Service is the print collaborator. Every operation returns a Status and
// never an error.
type Service struct {
	runner deviceutils.Runner
	cfg    config.Config
	log    *slog.Logger

	// User is granted access to the queue.
	User string
}

// NewService creates a print service for the current user.
func NewService(runner deviceutils.Runner, cfg config.Config, log *slog.Logger) *Service {
	name := "user"
	if u, err := user.Current(); err == nil && u.Username != "" {
		name = u.Username
	}
	return &Service{runner: runner, cfg: cfg, log: log, User: name}
}

// Preflight checks that exactly one supported printer is attached. Nothing
// is installed or printed.
func (s *Service) Preflight(ctx context.Context, a *archive.Archive) (status interfaces.Status) {
	defer s.recoverStatus(&status)

	uri, err := s.findPrinter(ctx)
	if err != nil {
		return s.fail("Printer discovery failed", err)
	}
	if _, ok := ModelFor(uri); !ok {
		return s.fail("Printer not supported", interfaces.NewStatusError(interfaces.StatusErrorPrinterNotSupported, fmt.Errorf("unsupported printer %s", uri)))
	}
	return interfaces.StatusPrintPreflightSuccess
}

// PrinterTest checks that exactly one supported printer is attached and that
// its driver is available. It installs no queue and prints nothing.
func (s *Service) PrinterTest(ctx context.Context, a *archive.Archive) (status interfaces.Status) {
	defer s.recoverStatus(&status)

	uri, err := s.findPrinter(ctx)
	if err != nil {
		return s.fail("Printer discovery failed", err)
	}
	model, ok := ModelFor(uri)
	if !ok {
		return s.fail("Printer not supported", interfaces.NewStatusError(interfaces.StatusErrorPrinterNotSupported, fmt.Errorf("unsupported printer %s", uri)))
	}
	if err := DriverAvailable(model, s.cfg.CupsDrvDir, s.cfg.CupsModelDir); err != nil {
		return s.fail("Printer driver check failed", interfaces.NewStatusError(interfaces.StatusErrorPrinterDriverUnavailable, err))
	}
	s.log.Info("Printer ready", slog.String("uri", uri), slog.String("driver", model.Driver))
	return interfaces.StatusPrintTestSuccess
}

// Print configures the printer and prints every payload file in lexical order.
func (s *Service) Print(ctx context.Context, a *archive.Archive) (status interfaces.Status) {
	defer s.recoverStatus(&status)

	files, err := payloadFiles(a)
	if err != nil {
		return s.fail("Print refused", interfaces.NewStatusError(interfaces.StatusErrorPrint, err))
	}
	if err := s.install(ctx); err != nil {
		return s.fail("Printer setup failed", err)
	}

	for _, file := range files {
		if err := s.printFile(ctx, file); err != nil {
			return s.fail("Printing failed", interfaces.NewStatusError(interfaces.StatusErrorPrint, err))
		}
	}
	if err := s.waitForPrint(ctx); err != nil {
		return s.fail("Printing failed", err)
	}
	return interfaces.StatusPrintSuccess
}

func (s *Service) install(ctx context.Context) error {
	s.log.Info("Searching for printer")
	uri, err := s.findPrinter(ctx)
	if err != nil {
		return err
	}
	model, ok := ModelFor(uri)
	if !ok {
		return interfaces.NewStatusError(interfaces.StatusErrorPrinterNotSupported, fmt.Errorf("unsupported printer %s", uri))
	}

	s.log.Info("Installing printer drivers", slog.String("driver", model.Driver))
	ppd, err := InstallDriver(ctx, s.runner, model, s.cfg.CupsDrvDir, s.cfg.CupsModelDir)
	if err != nil {
		return interfaces.NewStatusError(interfaces.StatusErrorPrinterDriverUnavailable, err)
	}

	s.log.Info("Setting up printer", slog.String("name", s.cfg.PrinterName))
	if err := SetupQueue(ctx, s.runner, s.cfg.PrinterName, uri, ppd, s.User); err != nil {
		return interfaces.NewStatusError(interfaces.StatusErrorPrinterInstall, err)
	}
	return nil
}

// findPrinter waits up to PrinterWait for exactly one USB printer.
func (s *Service) findPrinter(ctx context.Context) (string, error) {
	var uri string
	op := func() error {
		found, err := SingleUSBPrinter(ctx, s.runner)
		switch {
		case err == nil:
			uri = found
			return nil
		case errors.Is(err, errNoPrinter):
			return err
		case errors.Is(err, errMultiPrinters):
			return backoff.Permanent(interfaces.NewStatusError(interfaces.StatusErrorMultiplePrintersFound, err))
		default:
			return backoff.Permanent(interfaces.NewStatusError(interfaces.StatusErrorPrinterNotFound, err))
		}
	}

	if err := backoff.Retry(op, backoff.WithContext(s.backoffFor(s.cfg.PrinterWait()), ctx)); err != nil {
		if errors.Is(err, errNoPrinter) {
			return "", interfaces.NewStatusError(interfaces.StatusErrorPrinterNotFound, err)
		}
		return "", err
	}
	s.log.Info("Found printer", slog.String("uri", uri))
	return uri, nil
}

func (s *Service) printFile(ctx context.Context, path string) error {
	mime, err := MimeType(ctx, s.runner, path)
	if err != nil {
		return fmt.Errorf("could not detect file type: %w", err)
	}

	if IsOfficeDocument(mime) {
		s.log.Info("Converting office document to PDF", slog.String("file", filepath.Base(path)))
		converted := path + ".pdf"
		if _, err := s.runner.Run(ctx, "", "unoconv", "-o", converted, path); err != nil {
			return fmt.Errorf("could not convert document: %w", err)
		}
		path = converted
	}

	s.log.Info("Printing file", slog.String("file", filepath.Base(path)))
	if _, err := s.runner.Run(ctx, "", "lp", "-d", s.cfg.PrinterName, path); err != nil {
		return err
	}
	return nil
}

// waitForPrint polls the queue until it is idle or PrintTimeout expires.
func (s *Service) waitForPrint(ctx context.Context) error {
	op := func() error {
		idle, err := QueueIdle(ctx, s.runner, s.cfg.PrinterName)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !idle {
			return errQueueBusy
		}
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(s.backoffFor(s.cfg.PrintTimeout()), ctx)); err != nil {
		return interfaces.NewStatusError(interfaces.StatusErrorPrint, err)
	}
	return nil
}

func (s *Service) backoffFor(wait time.Duration) backoff.BackOff {
	if wait <= 0 {
		return &backoff.StopBackOff{}
	}
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = wait
	return bo
}

func payloadFiles(a *archive.Archive) ([]string, error) {
	dir := a.PayloadDir()
	if dir == "" {
		return nil, errors.New("archive not extracted")
	}
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("could not list payload: %w", err)
	}
	if len(files) == 0 {
		return nil, errors.New("no files to print")
	}
	return files, nil
}

func (s *Service) fail(msg string, err error) interfaces.Status {
	status := interfaces.StatusFromError(err)
	s.log.Error(msg, "err", err, slog.String("status", status.String()))
	return status
}

func (s *Service) recoverStatus(status *interfaces.Status) {
	if r := recover(); r != nil {
		s.log.Error("Print service panicked", slog.Any("panic", r))
		*status = interfaces.StatusErrorGeneric
	}
}
