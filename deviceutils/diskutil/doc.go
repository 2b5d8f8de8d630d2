// Package diskutil exports a submission to an encrypted USB disk.
//
// The Service finds the single attached removable disk with lsblk, locates
// its LUKS container (the whole disk or its only LUKS partition), unlocks it
// with the passphrase from the archive manifest, mounts it and copies the
// payload into a new sd-export-<timestamp> directory. The volume is always
// unmounted and closed again, whatever the outcome.
//
// Main features:
//   - Waits for a removable device to appear, with exponential backoff
//   - Refuses multiple attached devices and non-LUKS volumes
//   - Read-only checks for device presence, volume format and passphrase
//   - Reuses an existing luks-<uuid> mapping only after verifying the passphrase
//
// Basic usage:
//
//	svc := diskutil.NewService(deviceutils.ExecRunner{}, cfg, logger)
//
//	status := svc.Export(ctx, a)
//	if !status.IsSuccess() {
//		// status is one of USB_NOT_CONNECTED, USB_BAD_PASSPHRASE, ERROR_USB_MOUNT, ...
//	}
package diskutil
