package dispatch

import (
	"context"

	"github.com/cfm/securedrop-client/archive"
	"github.com/cfm/securedrop-client/interfaces"
	"github.com/stretchr/testify/mock"
)

// MockPrintService mocks the PrintService interface
type MockPrintService struct {
	mock.Mock
}

// Preflight mocks the Preflight method
func (m *MockPrintService) Preflight(ctx context.Context, a *archive.Archive) interfaces.Status {
	args := m.Called(ctx, a)
	return args.Get(0).(interfaces.Status)
}

// PrinterTest mocks the PrinterTest method
func (m *MockPrintService) PrinterTest(ctx context.Context, a *archive.Archive) interfaces.Status {
	args := m.Called(ctx, a)
	return args.Get(0).(interfaces.Status)
}

// Print mocks the Print method
func (m *MockPrintService) Print(ctx context.Context, a *archive.Archive) interfaces.Status {
	args := m.Called(ctx, a)
	return args.Get(0).(interfaces.Status)
}

// MockExportService mocks the ExportService interface
type MockExportService struct {
	mock.Mock
}

// CheckConnectedDevices mocks the CheckConnectedDevices method
func (m *MockExportService) CheckConnectedDevices(ctx context.Context, a *archive.Archive) interfaces.Status {
	args := m.Called(ctx, a)
	return args.Get(0).(interfaces.Status)
}

// CheckVolumeFormat mocks the CheckVolumeFormat method
func (m *MockExportService) CheckVolumeFormat(ctx context.Context, a *archive.Archive) interfaces.Status {
	args := m.Called(ctx, a)
	return args.Get(0).(interfaces.Status)
}

// Export mocks the Export method
func (m *MockExportService) Export(ctx context.Context, a *archive.Archive) interfaces.Status {
	args := m.Called(ctx, a)
	return args.Get(0).(interfaces.Status)
}

// ExportDryRun mocks the ExportDryRun method
func (m *MockExportService) ExportDryRun(ctx context.Context, a *archive.Archive) interfaces.Status {
	args := m.Called(ctx, a)
	return args.Get(0).(interfaces.Status)
}
