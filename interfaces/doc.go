// Package interfaces defines the closed vocabularies shared by every
// component of the export VM, separating them from the components that
// produce and consume them.
//
// # Status
//
// Status is the machine-readable outcome of one invocation. The set is
// closed: Valid reports membership and IsSuccess classifies a token. Each
// run ends with exactly one Status written to stderr.
//
// StatusError tags an error with the Status it must be reported as.
// Components return it at their boundary, and StatusFromError is the single
// place where leftover errors are mapped: a tagged error yields its Status,
// anything else yields ERROR_GENERIC.
//
// # Command
//
// Command is the action authorized by an archive manifest. Each Command
// belongs to a Family:
//
//   - control: start-vm, acknowledged without any collaborator
//   - export: disk, disk-dry-run, usb-test, disk-test
//   - print: printer, printer-preflight, printer-test
//
// CommandFromString is an exact lookup with no fallback.
package interfaces
