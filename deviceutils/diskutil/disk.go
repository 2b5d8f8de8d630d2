package diskutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cfm/securedrop-client/deviceutils"
)

// FSTypeLUKS is the lsblk fstype of a LUKS container.
const FSTypeLUKS = "crypto_LUKS"

// DiskConfig describes an unlocked volume and where it is mounted.
type DiskConfig struct {
	DevicePath   string
	MountPoint   string
	MapperName   string
	MapperDevice string
}

// NewDiskConfig creates a new DiskConfig with default values for the mapper device.
func NewDiskConfig(devicePath, mountPoint, mapperName string) DiskConfig {
	return DiskConfig{
		DevicePath:   devicePath,
		MountPoint:   mountPoint,
		MapperName:   mapperName,
		MapperDevice: "/dev/mapper/" + mapperName,
	}
}

// BlockDevice is one node of `lsblk --json` output.
type BlockDevice struct {
	Name      string        `json:"name"`
	Removable flexBool      `json:"rm"`
	Type      string        `json:"type"`
	FSType    string        `json:"fstype"`
	Children  []BlockDevice `json:"children"`
}

// flexBool accepts both `true` and `"1"`; older util-linux prints the latter.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	switch strings.Trim(string(data), `"`) {
	case "true", "1":
		*b = true
	case "false", "0", "null", "":
		*b = false
	default:
		return fmt.Errorf("invalid boolean %s", data)
	}
	return nil
}

var lsblkArgs = []string{"--json", "--paths", "--output", "NAME,RM,TYPE,FSTYPE"}

// ListRemovableDisks returns the whole-disk removable devices known to lsblk.
func ListRemovableDisks(ctx context.Context, runner deviceutils.Runner) ([]BlockDevice, error) {
	out, err := runner.Run(ctx, "", "lsblk", lsblkArgs...)
	if err != nil {
		return nil, fmt.Errorf("could not list block devices: %w", err)
	}

	var parsed struct {
		BlockDevices []BlockDevice `json:"blockdevices"`
	}
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, fmt.Errorf("could not parse lsblk output: %w", err)
	}

	var disks []BlockDevice
	for _, dev := range parsed.BlockDevices {
		if dev.Type == "disk" && bool(dev.Removable) {
			disks = append(disks, dev)
		}
	}
	return disks, nil
}

// LUKSCandidate returns the LUKS container on dev: the disk itself, or its
// only LUKS partition.
func LUKSCandidate(dev BlockDevice) (string, error) {
	if dev.FSType == FSTypeLUKS {
		return dev.Name, nil
	}

	var found []string
	for _, child := range dev.Children {
		if child.FSType == FSTypeLUKS {
			found = append(found, child.Name)
		}
	}
	switch len(found) {
	case 0:
		return "", errors.New("no LUKS volume on device")
	case 1:
		return found[0], nil
	default:
		return "", fmt.Errorf("device has %d LUKS partitions", len(found))
	}
}

// IsLUKS checks if a device is formatted with LUKS.
func IsLUKS(ctx context.Context, runner deviceutils.Runner, devicePath string) bool {
	_, err := runner.Run(ctx, "", "cryptsetup", "isLuks", devicePath)
	return err == nil
}

// LUKSUUID reads the UUID from the LUKS header.
func LUKSUUID(ctx context.Context, runner deviceutils.Runner, devicePath string) (string, error) {
	out, err := runner.Run(ctx, "", "cryptsetup", "luksUUID", devicePath)
	if err != nil {
		return "", fmt.Errorf("could not read LUKS UUID: %w", err)
	}
	uuid := strings.TrimSpace(string(out))
	if uuid == "" || strings.ContainsAny(uuid, "/ \t\n") {
		return "", fmt.Errorf("invalid LUKS UUID %q", uuid)
	}
	return uuid, nil
}

// TestPassphrase checks the passphrase against the LUKS header without
// creating a mapping.
func TestPassphrase(ctx context.Context, runner deviceutils.Runner, devicePath, passphrase string) error {
	if _, err := runner.Run(ctx, passphrase, "cryptsetup", "open", "--test-passphrase", devicePath); err != nil {
		return fmt.Errorf("passphrase rejected: %w", err)
	}
	return nil
}

// OpenVolume maps the LUKS container at diskConfig.MapperDevice.
func OpenVolume(ctx context.Context, runner deviceutils.Runner, diskConfig DiskConfig, passphrase string) error {
	if _, err := runner.Run(ctx, passphrase, "cryptsetup", "open", diskConfig.DevicePath, diskConfig.MapperName); err != nil {
		return fmt.Errorf("could not open LUKS device: %w", err)
	}
	return nil
}

// MountVolume mounts the mapped device on diskConfig.MountPoint, creating the
// mount point when missing. created reports whether it did so.
func MountVolume(ctx context.Context, runner deviceutils.Runner, diskConfig DiskConfig) (created bool, err error) {
	if _, err := os.Stat(diskConfig.MountPoint); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(diskConfig.MountPoint, 0o755); err != nil {
			return false, fmt.Errorf("could not create mount point: %w", err)
		}
		created = true
	}
	if _, err := runner.Run(ctx, "", "mount", diskConfig.MapperDevice, diskConfig.MountPoint); err != nil {
		return created, fmt.Errorf("could not mount filesystem: %w", err)
	}
	return created, nil
}

// IsMounted checks if a mountpoint is listed in the given mounts table.
func IsMounted(procMounts string, mountPoint string) bool {
	data, err := os.ReadFile(procMounts)
	if err != nil {
		return false
	}
	return strings.Contains(string(data), " "+filepath.Clean(mountPoint)+" ")
}

// CleanupMount unmounts the volume if mounted and closes the mapping if
// opened. Errors are returned joined so the caller can log them; cleanup
// always attempts every step.
func CleanupMount(ctx context.Context, runner deviceutils.Runner, diskConfig DiskConfig, mounted, opened bool) error {
	var errs []error
	if mounted {
		if _, err := runner.Run(ctx, "", "umount", diskConfig.MountPoint); err != nil {
			errs = append(errs, err)
		}
	}
	if opened {
		if _, err := runner.Run(ctx, "", "cryptsetup", "close", diskConfig.MapperName); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
