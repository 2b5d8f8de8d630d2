// Package config loads the export VM configuration file.
//
// The file is read once at startup; the resulting Config is passed by value
// to the archive, disk and print components. There is no package-level state.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// DefaultPath is the fixed location of the configuration file inside the export VM.
const DefaultPath = "/etc/sd-export-config.json"

// EnvPrefix is prepended to upper-cased keys for environment overrides, e.g. SD_EXPORT_PCI_BUS_ID.
const EnvPrefix = "SD_EXPORT"

// Config holds extraction policy and device settings.
type Config struct {
	// PCIBusID identifies the USB controller attached to the VM. Empty disables the check.
	PCIBusID      string `mapstructure:"pci_bus_id"`
	SysPCIDir     string `mapstructure:"sys_pci_dir"`
	WorkDirParent string `mapstructure:"work_dir_parent"`

	MaxArchiveEntries int   `mapstructure:"max_archive_entries"`
	MaxArchiveBytes   int64 `mapstructure:"max_archive_bytes"`

	USBWaitSeconds int    `mapstructure:"usb_wait_seconds"`
	MountRoot      string `mapstructure:"mount_root"`

	PrinterName         string `mapstructure:"printer_name"`
	PrinterWaitSeconds  int    `mapstructure:"printer_wait_seconds"`
	PrintTimeoutSeconds int    `mapstructure:"print_timeout_seconds"`
	CupsDrvDir          string `mapstructure:"cups_drv_dir"`
	CupsModelDir        string `mapstructure:"cups_model_dir"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		SysPCIDir:           "/sys/bus/pci/devices",
		MaxArchiveEntries:   10000,
		MaxArchiveBytes:     2 << 30,
		USBWaitSeconds:      10,
		MountRoot:           "/media/usb",
		PrinterName:         "sdw-printer",
		PrinterWaitSeconds:  5,
		PrintTimeoutSeconds: 60,
		CupsDrvDir:          "/usr/share/cups/drv",
		CupsModelDir:        "/usr/share/cups/model",
	}
}

// ErrInvalidConfig is returned when the file parses but holds unusable values.
var ErrInvalidConfig = errors.New("invalid configuration")

// Load reads the configuration at path. A missing file yields Default();
// an unreadable or malformed file is an error.
func Load(path string) (Config, bool, error) {
	def := Default()

	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	setDefaults(v, def)

	found := true
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		found = false
	} else {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, true, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, found, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, found, err
	}
	return cfg, found, nil
}

func setDefaults(v *viper.Viper, def Config) {
	v.SetDefault("pci_bus_id", def.PCIBusID)
	v.SetDefault("sys_pci_dir", def.SysPCIDir)
	v.SetDefault("work_dir_parent", def.WorkDirParent)
	v.SetDefault("max_archive_entries", def.MaxArchiveEntries)
	v.SetDefault("max_archive_bytes", def.MaxArchiveBytes)
	v.SetDefault("usb_wait_seconds", def.USBWaitSeconds)
	v.SetDefault("mount_root", def.MountRoot)
	v.SetDefault("printer_name", def.PrinterName)
	v.SetDefault("printer_wait_seconds", def.PrinterWaitSeconds)
	v.SetDefault("print_timeout_seconds", def.PrintTimeoutSeconds)
	v.SetDefault("cups_drv_dir", def.CupsDrvDir)
	v.SetDefault("cups_model_dir", def.CupsModelDir)
}

// Validate rejects values that would make extraction or device handling unsafe.
func (c Config) Validate() error {
	if c.MaxArchiveEntries <= 0 {
		return fmt.Errorf("%w: max_archive_entries must be positive", ErrInvalidConfig)
	}
	if c.MaxArchiveBytes <= 0 {
		return fmt.Errorf("%w: max_archive_bytes must be positive", ErrInvalidConfig)
	}
	if c.MountRoot == "" {
		return fmt.Errorf("%w: mount_root is required", ErrInvalidConfig)
	}
	if c.PrinterName == "" {
		return fmt.Errorf("%w: printer_name is required", ErrInvalidConfig)
	}
	if c.USBWaitSeconds < 0 || c.PrinterWaitSeconds < 0 || c.PrintTimeoutSeconds < 0 {
		return fmt.Errorf("%w: wait durations must not be negative", ErrInvalidConfig)
	}
	return nil
}

// USBWait is how long the disk service waits for a removable device to appear.
func (c Config) USBWait() time.Duration {
	return time.Duration(c.USBWaitSeconds) * time.Second
}

// PrinterWait is how long the print service waits for a printer to appear.
func (c Config) PrinterWait() time.Duration {
	return time.Duration(c.PrinterWaitSeconds) * time.Second
}

// PrintTimeout bounds the wait for the print queue to drain.
func (c Config) PrintTimeout() time.Duration {
	return time.Duration(c.PrintTimeoutSeconds) * time.Second
}
