// Package printutil prints a submission on a locally attached USB printer
// through CUPS.
//
// The Service discovers the printer with lpinfo, compiles the matching driver
// with ppdc when its PPD is missing, (re)creates the queue with lpadmin and
// submits files with lp. Office documents are converted to PDF with unoconv
// first. After submitting, it polls lpstat until the queue is idle.
//
// Preflight and PrinterTest are diagnostics: they discover the printer and
// check support (PrinterTest also checks that a driver is available) but never
// install a queue or print. Only Brother and HP LaserJet printers are supported.
package printutil
