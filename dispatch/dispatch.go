package dispatch

import (
	"context"
	"log/slog"

	"github.com/cfm/securedrop-client/archive"
	"github.com/cfm/securedrop-client/interfaces"
)

// PrintService prints submissions. Implementations fold every failure into
// a Status and must not panic.
type PrintService interface {
	Preflight(ctx context.Context, a *archive.Archive) interfaces.Status
	PrinterTest(ctx context.Context, a *archive.Archive) interfaces.Status
	Print(ctx context.Context, a *archive.Archive) interfaces.Status
}

// ExportService writes submissions to removable media. Implementations fold
// every failure into a Status and must not panic.
type ExportService interface {
	CheckConnectedDevices(ctx context.Context, a *archive.Archive) interfaces.Status
	CheckVolumeFormat(ctx context.Context, a *archive.Archive) interfaces.Status
	Export(ctx context.Context, a *archive.Archive) interfaces.Status
	ExportDryRun(ctx context.Context, a *archive.Archive) interfaces.Status
}

// Handler performs one command against an extracted, validated archive.
type Handler func(ctx context.Context, a *archive.Archive) interfaces.Status

// Dispatcher routes a command to its collaborator by family, then by command.
type Dispatcher struct {
	handlers map[interfaces.Family]map[interfaces.Command]Handler
	log      *slog.Logger
}

// New builds the routing table. Control commands have no handler: they are
// acknowledged by the controller and never dispatched.
func New(printer PrintService, exporter ExportService, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		handlers: map[interfaces.Family]map[interfaces.Command]Handler{
			interfaces.FamilyPrint: {
				interfaces.CommandPrint:          printer.Print,
				interfaces.CommandPrintPreflight: printer.Preflight,
				interfaces.CommandPrintTest:      printer.PrinterTest,
			},
			interfaces.FamilyExport: {
				interfaces.CommandExport:       exporter.Export,
				interfaces.CommandExportDryRun: exporter.ExportDryRun,
				interfaces.CommandCheckUSB:     exporter.CheckConnectedDevices,
				interfaces.CommandCheckVolume:  exporter.CheckVolumeFormat,
			},
		},
		log: log,
	}
}

// Lookup returns the handler for cmd, if any.
func (d *Dispatcher) Lookup(cmd interfaces.Command) (Handler, bool) {
	byCommand, ok := d.handlers[cmd.Family()]
	if !ok {
		return nil, false
	}
	h, ok := byCommand[cmd]
	return h, ok
}

// Dispatch runs the handler for cmd. A command without a handler, a handler
// returning an unknown token or a panicking handler all yield ERROR_GENERIC.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd interfaces.Command, a *archive.Archive) (status interfaces.Status) {
	h, ok := d.Lookup(cmd)
	if !ok {
		d.log.Error("No handler for command",
			slog.String("command", cmd.String()),
			slog.String("family", string(cmd.Family())))
		return interfaces.StatusErrorGeneric
	}

	defer func() {
		if r := recover(); r != nil {
			d.log.Error("Handler panicked", slog.String("command", cmd.String()), slog.Any("panic", r))
			status = interfaces.StatusErrorGeneric
		}
	}()

	d.log.Info("Dispatching command", slog.String("command", cmd.String()))
	status = h(ctx, a)
	if !status.Valid() {
		d.log.Error("Handler returned unknown status", slog.String("command", cmd.String()), slog.String("status", string(status)))
		return interfaces.StatusErrorGeneric
	}
	return status
}
