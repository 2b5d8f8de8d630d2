package diskutil

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cenkalti/backoff/v4"
	"github.com/cfm/securedrop-client/archive"
	"github.com/cfm/securedrop-client/config"
	"github.com/cfm/securedrop-client/deviceutils"
	"github.com/cfm/securedrop-client/interfaces"
)

var errNoDevice = errors.New("no removable device attached")

// Service is the disk export collaborator. Every operation returns a Status
// and never an error.
type Service struct {
	runner deviceutils.Runner
	cfg    config.Config
	log    *slog.Logger

	// ProcMounts and MapperDir are overridable for tests.
	ProcMounts string
	MapperDir  string
}

// NewService creates a disk export service.
func NewService(runner deviceutils.Runner, cfg config.Config, log *slog.Logger) *Service {
	return &Service{
		runner:     runner,
		cfg:        cfg,
		log:        log,
		ProcMounts: "/proc/mounts",
		MapperDir:  "/dev/mapper",
	}
}

// CheckConnectedDevices reports whether exactly one removable disk is attached.
func (s *Service) CheckConnectedDevices(ctx context.Context, a *archive.Archive) (status interfaces.Status) {
	defer s.recoverStatus(&status)

	if _, err := s.findDevice(ctx); err != nil {
		return s.fail("Device check failed", err)
	}
	return interfaces.StatusUSBConnected
}

// CheckVolumeFormat reports whether the attached disk carries a LUKS volume.
func (s *Service) CheckVolumeFormat(ctx context.Context, a *archive.Archive) (status interfaces.Status) {
	defer s.recoverStatus(&status)

	dev, err := s.findDevice(ctx)
	if err != nil {
		return s.fail("Device check failed", err)
	}
	if _, err := s.findVolume(ctx, dev); err != nil {
		return s.fail("Volume check failed", err)
	}
	return interfaces.StatusUSBEncrypted
}

// ExportDryRun verifies the passphrase against the volume without mapping,
// mounting or writing anything.
func (s *Service) ExportDryRun(ctx context.Context, a *archive.Archive) (status interfaces.Status) {
	defer s.recoverStatus(&status)

	passphrase, err := passphraseFor(a)
	if err != nil {
		return s.fail("Dry run refused", err)
	}
	dev, err := s.findDevice(ctx)
	if err != nil {
		return s.fail("Device check failed", err)
	}
	volume, err := s.findVolume(ctx, dev)
	if err != nil {
		return s.fail("Volume check failed", err)
	}
	if err := TestPassphrase(ctx, s.runner, volume, passphrase); err != nil {
		return s.fail("Passphrase check failed", interfaces.NewStatusError(interfaces.StatusUSBBadPassphrase, err))
	}
	return interfaces.StatusExportDryRunSuccess
}

// Export finds the device, unlocks and mounts its volume, copies the payload
// into a fresh directory and always unmounts and closes the volume afterwards.
func (s *Service) Export(ctx context.Context, a *archive.Archive) (status interfaces.Status) {
	defer s.recoverStatus(&status)

	passphrase, err := passphraseFor(a)
	if err != nil {
		return s.fail("Export refused", err)
	}
	payload := a.PayloadDir()
	if fi, err := os.Stat(payload); err != nil || !fi.IsDir() {
		return s.fail("Export refused", interfaces.NewStatusError(interfaces.StatusErrorUSBWrite, fmt.Errorf("no payload directory in archive: %v", err)))
	}

	s.log.Info("Checking for removable device")
	dev, err := s.findDevice(ctx)
	if err != nil {
		return s.fail("Device check failed", err)
	}
	volume, err := s.findVolume(ctx, dev)
	if err != nil {
		return s.fail("Volume check failed", err)
	}

	s.log.Info("Unlocking volume", slog.String("device", volume))
	diskConfig, opened, err := s.unlock(ctx, volume, passphrase)
	if err != nil {
		return s.fail("Unlock failed", err)
	}

	mounted, createdMountPoint := false, false
	defer func() {
		if err := CleanupMount(ctx, s.runner, diskConfig, mounted, opened); err != nil {
			s.log.Error("Failed to clean up volume", "err", err)
		}
		if createdMountPoint {
			if err := os.Remove(diskConfig.MountPoint); err != nil {
				s.log.Warn("Failed to remove mount point", slog.String("mountPoint", diskConfig.MountPoint), "err", err)
			}
		}
	}()

	if IsMounted(s.ProcMounts, diskConfig.MountPoint) {
		return s.fail("Mount failed", interfaces.NewStatusError(interfaces.StatusErrorUSBMount, fmt.Errorf("%s is already mounted", diskConfig.MountPoint)))
	}
	s.log.Info("Mounting volume", slog.String("mountPoint", diskConfig.MountPoint))
	createdMountPoint, err = MountVolume(ctx, s.runner, diskConfig)
	if err != nil {
		return s.fail("Mount failed", interfaces.NewStatusError(interfaces.StatusErrorUSBMount, err))
	}
	mounted = true

	target := filepath.Join(diskConfig.MountPoint, a.TargetDirname())
	s.log.Info("Copying submission to volume", slog.String("target", target))
	if err := CopyTree(payload, target); err != nil {
		return s.fail("Copy failed", interfaces.NewStatusError(interfaces.StatusErrorUSBWrite, err))
	}

	return interfaces.StatusExportSuccess
}

func (s *Service) checkController() error {
	if s.cfg.PCIBusID == "" {
		return nil
	}
	path := filepath.Join(s.cfg.SysPCIDir, s.cfg.PCIBusID)
	if _, err := os.Stat(path); err != nil {
		return interfaces.NewStatusError(interfaces.StatusErrorUSBConfiguration, fmt.Errorf("usb controller %s not attached: %w", s.cfg.PCIBusID, err))
	}
	return nil
}

// findDevice waits up to USBWait for exactly one removable disk.
func (s *Service) findDevice(ctx context.Context) (BlockDevice, error) {
	if err := s.checkController(); err != nil {
		return BlockDevice{}, err
	}

	var found BlockDevice
	op := func() error {
		disks, err := ListRemovableDisks(ctx, s.runner)
		if err != nil {
			return backoff.Permanent(interfaces.NewStatusError(interfaces.StatusErrorUSBCheck, err))
		}
		switch len(disks) {
		case 0:
			return errNoDevice
		case 1:
			found = disks[0]
			return nil
		default:
			return backoff.Permanent(interfaces.NewStatusError(interfaces.StatusUSBMultipleDevices, fmt.Errorf("%d removable devices attached", len(disks))))
		}
	}

	var bo backoff.BackOff = &backoff.StopBackOff{}
	if wait := s.cfg.USBWait(); wait > 0 {
		exp := backoff.NewExponentialBackOff()
		exp.MaxElapsedTime = wait
		bo = exp
	}

	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		if errors.Is(err, errNoDevice) {
			return BlockDevice{}, interfaces.NewStatusError(interfaces.StatusUSBNotConnected, err)
		}
		return BlockDevice{}, err
	}
	s.log.Info("Found removable device", slog.String("device", found.Name))
	return found, nil
}

func (s *Service) findVolume(ctx context.Context, dev BlockDevice) (string, error) {
	volume, err := LUKSCandidate(dev)
	if err != nil {
		return "", interfaces.NewStatusError(interfaces.StatusUSBEncryptionNotSupported, err)
	}
	if !IsLUKS(ctx, s.runner, volume) {
		return "", interfaces.NewStatusError(interfaces.StatusUSBEncryptionNotSupported, fmt.Errorf("%s is not a LUKS volume", volume))
	}
	return volume, nil
}

// unlock maps the volume as luks-<uuid>. An existing mapping is reused only
// after the passphrase has been verified against the header; opened is false
// in that case and the mapping is left in place afterwards.
func (s *Service) unlock(ctx context.Context, volume, passphrase string) (diskConfig DiskConfig, opened bool, err error) {
	uuid, err := LUKSUUID(ctx, s.runner, volume)
	if err != nil {
		return DiskConfig{}, false, interfaces.NewStatusError(interfaces.StatusUSBDiskError, err)
	}

	diskConfig = NewDiskConfig(volume, s.cfg.MountRoot, "luks-"+uuid)
	diskConfig.MapperDevice = filepath.Join(s.MapperDir, diskConfig.MapperName)

	if _, err := os.Stat(diskConfig.MapperDevice); err == nil {
		s.log.Info("Volume already unlocked", slog.String("mapper", diskConfig.MapperDevice))
		if err := TestPassphrase(ctx, s.runner, volume, passphrase); err != nil {
			return DiskConfig{}, false, interfaces.NewStatusError(interfaces.StatusUSBBadPassphrase, err)
		}
		return diskConfig, false, nil
	}

	if err := OpenVolume(ctx, s.runner, diskConfig, passphrase); err != nil {
		return DiskConfig{}, false, interfaces.NewStatusError(interfaces.StatusUSBBadPassphrase, err)
	}
	return diskConfig, true, nil
}

func passphraseFor(a *archive.Archive) (string, error) {
	if a == nil || a.Metadata() == nil || a.Metadata().EncryptionKey() == "" {
		return "", interfaces.NewStatusError(interfaces.StatusErrorGeneric, errors.New("archive has no validated encryption key"))
	}
	return a.Metadata().EncryptionKey(), nil
}

func (s *Service) fail(msg string, err error) interfaces.Status {
	status := interfaces.StatusFromError(err)
	s.log.Error(msg, "err", err, slog.String("status", status.String()))
	return status
}

func (s *Service) recoverStatus(status *interfaces.Status) {
	if r := recover(); r != nil {
		s.log.Error("Disk service panicked", slog.Any("panic", r))
		*status = interfaces.StatusErrorGeneric
	}
}
