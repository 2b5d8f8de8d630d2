package interfaces

// Status is the outcome token reported to the caller on the status channel.
// Every invocation ends with exactly one Status.
type Status string

const (
	// StatusStartVMSuccess is reported for the control-only start-vm action.
	StatusStartVMSuccess Status = "SUCCESS_START_VM"
	// StatusExportSuccess means all files were copied to the encrypted volume.
	StatusExportSuccess Status = "SUCCESS_EXPORT"
	// StatusExportDryRunSuccess means the volume accepted the passphrase without being mapped.
	StatusExportDryRunSuccess Status = "SUCCESS_EXPORT_DRY_RUN"
	// StatusUSBConnected means exactly one removable disk is attached.
	StatusUSBConnected Status = "USB_CONNECTED"
	// StatusUSBEncrypted means the attached disk carries a LUKS volume.
	StatusUSBEncrypted Status = "USB_ENCRYPTED"
	// StatusPrintSuccess means every payload file was submitted and the queue drained.
	StatusPrintSuccess Status = "PRINT_SUCCESS"
	// StatusPrintPreflightSuccess means a single supported printer is attached.
	StatusPrintPreflightSuccess Status = "PRINT_PREFLIGHT_SUCCESS"
	// StatusPrintTestSuccess means a single supported printer is attached and its
	// driver is available. Nothing is printed.
	StatusPrintTestSuccess Status = "PRINT_TEST_PAGE_SUCCESS"

	// Setup failures.
	StatusErrorLogging          Status = "ERROR_LOGGING"
	StatusErrorUSBConfiguration Status = "ERROR_USB_CONFIGURATION"

	// Intake failures.
	StatusErrorFileNotFound Status = "ERROR_FILE_NOT_FOUND"
	StatusErrorExtraction   Status = "ERROR_EXTRACTION"

	// Validation failures.
	StatusErrorMetadataParsing Status = "ERROR_METADATA_PARSING"
	StatusErrorArchiveMetadata Status = "ERROR_ARCHIVE_METADATA"
	StatusErrorUnknownCommand  Status = "ERROR_UNKNOWN_COMMAND"

	// StatusErrorGeneric covers dispatch misses and every unclassified failure.
	StatusErrorGeneric Status = "ERROR_GENERIC"

	// Disk export collaborator.
	StatusUSBNotConnected           Status = "USB_NOT_CONNECTED"
	StatusUSBMultipleDevices        Status = "USB_MULTIPLE_DEVICES"
	StatusErrorUSBCheck             Status = "ERROR_USB_CHECK"
	StatusUSBEncryptionNotSupported Status = "USB_ENCRYPTION_NOT_SUPPORTED"
	StatusUSBDiskError              Status = "USB_DISK_ERROR"
	StatusUSBBadPassphrase          Status = "USB_BAD_PASSPHRASE"
	StatusErrorUSBMount             Status = "ERROR_USB_MOUNT"
	StatusErrorUSBWrite             Status = "ERROR_USB_WRITE"

	// Print collaborator.
	StatusErrorPrinterNotFound          Status = "ERROR_PRINTER_NOT_FOUND"
	StatusErrorMultiplePrintersFound    Status = "ERROR_MULTIPLE_PRINTERS_FOUND"
	StatusErrorPrinterNotSupported      Status = "ERROR_PRINTER_NOT_SUPPORTED"
	StatusErrorPrinterDriverUnavailable Status = "ERROR_PRINTER_DRIVER_UNAVAILABLE"
	StatusErrorPrinterInstall           Status = "ERROR_PRINTER_INSTALL"
	StatusErrorPrint                    Status = "ERROR_PRINT"
)

var successStatuses = map[Status]struct{}{
	StatusStartVMSuccess:        {},
	StatusExportSuccess:         {},
	StatusExportDryRunSuccess:   {},
	StatusUSBConnected:          {},
	StatusUSBEncrypted:          {},
	StatusPrintSuccess:          {},
	StatusPrintPreflightSuccess: {},
	StatusPrintTestSuccess:      {},
}

var failureStatuses = map[Status]struct{}{
	StatusErrorLogging:                  {},
	StatusErrorUSBConfiguration:         {},
	StatusErrorFileNotFound:             {},
	StatusErrorExtraction:               {},
	StatusErrorMetadataParsing:          {},
	StatusErrorArchiveMetadata:          {},
	StatusErrorUnknownCommand:           {},
	StatusErrorGeneric:                  {},
	StatusUSBNotConnected:               {},
	StatusUSBMultipleDevices:            {},
	StatusErrorUSBCheck:                 {},
	StatusUSBEncryptionNotSupported:     {},
	StatusUSBDiskError:                  {},
	StatusUSBBadPassphrase:              {},
	StatusErrorUSBMount:                 {},
	StatusErrorUSBWrite:                 {},
	StatusErrorPrinterNotFound:          {},
	StatusErrorMultiplePrintersFound:    {},
	StatusErrorPrinterNotSupported:      {},
	StatusErrorPrinterDriverUnavailable: {},
	StatusErrorPrinterInstall:           {},
	StatusErrorPrint:                    {},
}

// String returns the token written to the status channel.
func (s Status) String() string {
	return string(s)
}

// Valid reports whether s is a member of the closed status set.
func (s Status) Valid() bool {
	if _, ok := successStatuses[s]; ok {
		return true
	}
	_, ok := failureStatuses[s]
	return ok
}

// IsSuccess reports whether s is one of the success outcomes.
func (s Status) IsSuccess() bool {
	_, ok := successStatuses[s]
	return ok
}

// AllStatuses returns every member of the status set.
func AllStatuses() []Status {
	all := make([]Status, 0, len(successStatuses)+len(failureStatuses))
	for s := range successStatuses {
		all = append(all, s)
	}
	for s := range failureStatuses {
		all = append(all, s)
	}
	return all
}
