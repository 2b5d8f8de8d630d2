package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cfm/securedrop-client/archive"
	"github.com/cfm/securedrop-client/cmd/flags"
	"github.com/cfm/securedrop-client/config"
	"github.com/cfm/securedrop-client/controller"
	"github.com/cfm/securedrop-client/deviceutils"
	"github.com/cfm/securedrop-client/deviceutils/diskutil"
	"github.com/cfm/securedrop-client/deviceutils/printutil"
	"github.com/cfm/securedrop-client/dispatch"
	"github.com/cfm/securedrop-client/interfaces"
	"github.com/urfave/cli/v2"
)

func main() {
	// Nothing may reach stderr before the logger is up, and the logger never
	// writes there.
	finisher := controller.NewFinisher(slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	execute(ctx, newApp(finisher, deviceutils.ExecRunner{}), finisher, os.Args)
}

// newApp builds the CLI. Its action always ends in finisher.Finish.
func newApp(finisher *controller.Finisher, runner deviceutils.Runner) *cli.App {
	return &cli.App{
		Name:      "send-to-usb",
		Usage:     "Export or print a submission archive and report one status token on stderr",
		ArgsUsage: "<archive-path>",
		Flags:     flags.CommonFlags,
		Writer:    io.Discard,
		ErrWriter: io.Discard,
		// Usage errors must not exit non-zero.
		ExitErrHandler: func(*cli.Context, error) {},
		Action: func(cCtx *cli.Context) error {
			return run(cCtx, finisher, runner)
		},
	}
}

// execute runs app and finishes with ERROR_GENERIC if the action did not
// finish itself: usage errors, --help or a panic.
func execute(ctx context.Context, app *cli.App, finisher *controller.Finisher, args []string) {
	defer func() {
		if r := recover(); r != nil {
			finisher.Finish(nil, interfaces.StatusErrorGeneric, fmt.Errorf("panic: %v", r))
		}
	}()

	err := app.RunContext(ctx, args)
	if !finisher.Finished() {
		finisher.Finish(nil, interfaces.StatusErrorGeneric, err)
	}
}

func run(cCtx *cli.Context, finisher *controller.Finisher, runner deviceutils.Runner) error {
	var ctrl *controller.Controller
	defer func() {
		if r := recover(); r != nil {
			var a *archive.Archive
			if ctrl != nil {
				a = ctrl.Archive()
			}
			finisher.Finish(a, interfaces.StatusErrorGeneric, fmt.Errorf("panic: %v", r))
		}
	}()

	if cCtx.NArg() != 1 {
		finisher.Finish(nil, interfaces.StatusErrorGeneric, fmt.Errorf("expected one archive path, got %d arguments", cCtx.NArg()))
		return nil
	}

	logger, closer, err := flags.SetupLogger(cCtx)
	if err != nil {
		finisher.Finish(nil, interfaces.StatusErrorLogging, err)
		return nil
	}
	finisher.SetLogger(logger, closer)

	configPath := cCtx.String(flags.ConfigFlag.Name)
	cfg, found, err := config.Load(configPath)
	if err != nil {
		logger.Error("Configuration rejected", "err", err, slog.String("path", configPath))
		finisher.Finish(nil, interfaces.StatusErrorUSBConfiguration, err)
		return nil
	}
	logger.Info("Starting export", slog.String("config", configPath), slog.Bool("configFound", found))

	dispatcher := dispatch.New(
		printutil.NewService(runner, cfg, logger),
		diskutil.NewService(runner, cfg, logger),
		logger,
	)
	ctrl = controller.New(cfg, dispatcher, logger)

	status := ctrl.Run(cCtx.Context, cCtx.Args().First())
	finisher.Finish(ctrl.Archive(), status, nil)
	return nil
}
