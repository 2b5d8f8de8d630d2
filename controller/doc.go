// Package controller runs one export VM invocation and terminates it
// fail-safe.
//
// A Controller moves through intake, validation and then either the
// control-only path (start-vm) or dispatch to a collaborator:
//
//	intake -> validating -> control-only -> completed
//	                    \-> dispatching  -> completed
//
// Every path produces exactly one Status. The Finisher then removes the
// archive's work directory, writes that Status as a single line on the status
// writer and exits with code 0. Finish runs at most once per process.
//
// Basic usage:
//
//	ctrl := controller.New(cfg, dispatcher, logger)
//	finisher := controller.NewFinisher(logger)
//
//	status := ctrl.Run(ctx, archivePath)
//	finisher.Finish(ctrl.Archive(), status, nil)
package controller
