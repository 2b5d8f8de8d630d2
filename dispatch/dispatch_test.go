package dispatch

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/cfm/securedrop-client/archive"
	"github.com/cfm/securedrop-client/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newMocks() (*MockPrintService, *MockExportService) {
	printer := &MockPrintService{}
	printer.On("Print", mock.Anything, mock.Anything).Return(interfaces.StatusPrintSuccess).Maybe()
	printer.On("Preflight", mock.Anything, mock.Anything).Return(interfaces.StatusPrintPreflightSuccess).Maybe()
	printer.On("PrinterTest", mock.Anything, mock.Anything).Return(interfaces.StatusPrintTestSuccess).Maybe()

	exporter := &MockExportService{}
	exporter.On("Export", mock.Anything, mock.Anything).Return(interfaces.StatusExportSuccess).Maybe()
	exporter.On("ExportDryRun", mock.Anything, mock.Anything).Return(interfaces.StatusExportDryRunSuccess).Maybe()
	exporter.On("CheckConnectedDevices", mock.Anything, mock.Anything).Return(interfaces.StatusUSBConnected).Maybe()
	exporter.On("CheckVolumeFormat", mock.Anything, mock.Anything).Return(interfaces.StatusUSBEncrypted).Maybe()
	return printer, exporter
}

func TestDispatcher_Exhaustive(t *testing.T) {
	expected := map[interfaces.Command]struct {
		method string
		status interfaces.Status
	}{
		interfaces.CommandPrint:          {"Print", interfaces.StatusPrintSuccess},
		interfaces.CommandPrintPreflight: {"Preflight", interfaces.StatusPrintPreflightSuccess},
		interfaces.CommandPrintTest:      {"PrinterTest", interfaces.StatusPrintTestSuccess},
		interfaces.CommandExport:         {"Export", interfaces.StatusExportSuccess},
		interfaces.CommandExportDryRun:   {"ExportDryRun", interfaces.StatusExportDryRunSuccess},
		interfaces.CommandCheckUSB:       {"CheckConnectedDevices", interfaces.StatusUSBConnected},
		interfaces.CommandCheckVolume:    {"CheckVolumeFormat", interfaces.StatusUSBEncrypted},
	}

	for _, cmd := range interfaces.AllCommands() {
		t.Run(cmd.String(), func(t *testing.T) {
			printer, exporter := newMocks()
			d := New(printer, exporter, testLogger())
			a := &archive.Archive{}

			if cmd.Family() == interfaces.FamilyControl {
				_, ok := d.Lookup(cmd)
				assert.False(t, ok, "Control commands have no handler")
				assert.Equal(t, interfaces.StatusErrorGeneric, d.Dispatch(context.Background(), cmd, a))
				printer.AssertNotCalled(t, "Print", mock.Anything, mock.Anything)
				exporter.AssertNotCalled(t, "Export", mock.Anything, mock.Anything)
				return
			}

			want, ok := expected[cmd]
			require.True(t, ok, "Every non-control command needs an expected handler")
			assert.Equal(t, want.status, d.Dispatch(context.Background(), cmd, a))

			switch cmd.Family() {
			case interfaces.FamilyPrint:
				printer.AssertCalled(t, want.method, mock.Anything, a)
				printer.AssertNumberOfCalls(t, want.method, 1)
				assert.Empty(t, exporter.Calls, "Print commands must not reach the export service")
			case interfaces.FamilyExport:
				exporter.AssertCalled(t, want.method, mock.Anything, a)
				exporter.AssertNumberOfCalls(t, want.method, 1)
				assert.Empty(t, printer.Calls, "Export commands must not reach the print service")
			default:
				t.Fatalf("unexpected family %q", cmd.Family())
			}
		})
	}
}

func TestDispatcher_Miss(t *testing.T) {
	printer, exporter := newMocks()
	d := New(printer, exporter, testLogger())

	assert.Equal(t, interfaces.StatusErrorGeneric, d.Dispatch(context.Background(), interfaces.CommandUnknown, nil))
	assert.Equal(t, interfaces.StatusErrorGeneric, d.Dispatch(context.Background(), interfaces.Command(42), nil))

	// Remove a command from its family table to force a command-level miss.
	delete(d.handlers[interfaces.FamilyExport], interfaces.CommandExport)
	assert.Equal(t, interfaces.StatusErrorGeneric, d.Dispatch(context.Background(), interfaces.CommandExport, nil))

	// And a whole family.
	delete(d.handlers, interfaces.FamilyPrint)
	assert.Equal(t, interfaces.StatusErrorGeneric, d.Dispatch(context.Background(), interfaces.CommandPrint, nil))

	assert.Empty(t, printer.Calls)
	assert.Empty(t, exporter.Calls)
}

func TestDispatcher_HandlerMisbehaves(t *testing.T) {
	t.Run("unknown status", func(t *testing.T) {
		printer := &MockPrintService{}
		printer.On("Print", mock.Anything, mock.Anything).Return(interfaces.Status("DONE"))

		d := New(printer, &MockExportService{}, testLogger())
		assert.Equal(t, interfaces.StatusErrorGeneric, d.Dispatch(context.Background(), interfaces.CommandPrint, nil))
	})

	t.Run("panic", func(t *testing.T) {
		exporter := &MockExportService{}
		exporter.On("Export", mock.Anything, mock.Anything).Run(func(mock.Arguments) { panic("device vanished") })

		d := New(&MockPrintService{}, exporter, testLogger())
		assert.Equal(t, interfaces.StatusErrorGeneric, d.Dispatch(context.Background(), interfaces.CommandExport, nil))
	})

	t.Run("failure status passes through", func(t *testing.T) {
		exporter := &MockExportService{}
		exporter.On("Export", mock.Anything, mock.Anything).Return(interfaces.StatusUSBBadPassphrase)

		d := New(&MockPrintService{}, exporter, testLogger())
		assert.Equal(t, interfaces.StatusUSBBadPassphrase, d.Dispatch(context.Background(), interfaces.CommandExport, nil))
	})
}
