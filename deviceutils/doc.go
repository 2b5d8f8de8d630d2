// Package deviceutils holds the privileged collaborators that act on devices
// once the controller has validated an archive.
//
// # Subpackages
//
// - diskutil: finds the removable disk, checks and unlocks its LUKS volume,
// mounts it and copies the payload
// - printutil: finds a supported USB printer, configures the CUPS queue and
// prints the payload
//
// Both services fold every internal failure into an interfaces.Status and
// never return an error past their boundary. They shell out through Runner,
// which the tests replace with a mock.
package deviceutils
