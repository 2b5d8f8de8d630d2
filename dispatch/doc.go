// Package dispatch routes a validated command to the collaborator that
// serves it.
//
// Routing is a two-level table: the command's family selects the print or
// export collaborator, then the command selects the operation. There is no
// fallback entry. A command missing from the table is reported as
// ERROR_GENERIC, and start-vm is never routed here at all.
//
// Collaborators are consumed through the PrintService and ExportService
// interfaces; MockPrintService and MockExportService implement them with
// testify mocks.
package dispatch
