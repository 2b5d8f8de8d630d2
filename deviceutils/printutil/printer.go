package printutil

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cfm/securedrop-client/deviceutils"
)

// Model pairs a printer URI prefix with the CUPS driver that supports it.
type Model struct {
	URIPrefix string
	Driver    string
	PPD       string
}

// SupportedModels lists the printers the export VM can drive.
var SupportedModels = []Model{
	{URIPrefix: "usb://Brother", Driver: "brlaser.drv", PPD: "br7030.ppd"},
	{URIPrefix: "usb://HP", Driver: "hpcups.drv", PPD: "hp-laserjet_6l.ppd"},
}

var (
	errNoPrinter     = errors.New("no usb printer found")
	errMultiPrinters = errors.New("multiple usb printers found")
	errQueueBusy     = errors.New("print queue not idle")
)

// officeMimeTypes are converted to PDF with unoconv before printing.
var officeMimeTypes = map[string]struct{}{
	"application/msword":                                                        {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   {},
	"application/vnd.ms-excel":                                                  {},
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         {},
	"application/vnd.ms-powerpoint":                                             {},
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": {},
	"application/vnd.oasis.opendocument.text":                                   {},
	"application/vnd.oasis.opendocument.spreadsheet":                            {},
	"application/vnd.oasis.opendocument.presentation":                           {},
}

// ParsePrinterURIs extracts the direct usb:// device URIs from `lpinfo -v` output.
func ParsePrinterURIs(lpinfo []byte) []string {
	var uris []string
	scanner := bufio.NewScanner(bytes.NewReader(lpinfo))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) >= 2 && fields[0] == "direct" && strings.HasPrefix(fields[1], "usb://") {
			uris = append(uris, fields[1])
		}
	}
	return uris
}

// SingleUSBPrinter lists printers once and requires exactly one.
func SingleUSBPrinter(ctx context.Context, runner deviceutils.Runner) (string, error) {
	out, err := runner.Run(ctx, "", "lpinfo", "-v")
	if err != nil {
		return "", fmt.Errorf("could not list printers: %w", err)
	}
	uris := ParsePrinterURIs(out)
	switch len(uris) {
	case 0:
		return "", errNoPrinter
	case 1:
		return uris[0], nil
	default:
		return "", fmt.Errorf("%w: %d", errMultiPrinters, len(uris))
	}
}

// ModelFor returns the supported model matching uri.
func ModelFor(uri string) (Model, bool) {
	for _, m := range SupportedModels {
		if strings.HasPrefix(uri, m.URIPrefix) {
			return m, true
		}
	}
	return Model{}, false
}

// InstallDriver makes sure the model's PPD exists in modelDir, compiling it
// from drvDir with ppdc when missing. It returns the PPD path.
func InstallDriver(ctx context.Context, runner deviceutils.Runner, model Model, drvDir, modelDir string) (string, error) {
	ppd := filepath.Join(modelDir, model.PPD)
	if _, err := os.Stat(ppd); err == nil {
		return ppd, nil
	}

	if _, err := runner.Run(ctx, "", "ppdc", filepath.Join(drvDir, model.Driver), "-d", modelDir); err != nil {
		return "", fmt.Errorf("could not compile driver: %w", err)
	}
	if _, err := os.Stat(ppd); err != nil {
		return "", fmt.Errorf("driver compiled but %s is missing: %w", model.PPD, err)
	}
	return ppd, nil
}

// DriverAvailable reports whether the model's PPD is installed or can be
// compiled from its driver source. Nothing is written.
func DriverAvailable(model Model, drvDir, modelDir string) error {
	if _, err := os.Stat(filepath.Join(modelDir, model.PPD)); err == nil {
		return nil
	}
	if _, err := os.Stat(filepath.Join(drvDir, model.Driver)); err != nil {
		return fmt.Errorf("neither %s nor %s is available: %w", model.PPD, model.Driver, err)
	}
	return nil
}

// SetupQueue creates or replaces the CUPS queue for uri.
func SetupQueue(ctx context.Context, runner deviceutils.Runner, name, uri, ppd, user string) error {
	if _, err := runner.Run(ctx, "", "lpadmin", "-p", name, "-E", "-v", uri, "-P", ppd, "-u", "allow:"+user); err != nil {
		return fmt.Errorf("could not set up printer: %w", err)
	}
	return nil
}

// MimeType asks file(1) for the mime type of path.
func MimeType(ctx context.Context, runner deviceutils.Runner, path string) (string, error) {
	out, err := runner.Run(ctx, "", "file", "--mime-type", "-b", path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// IsOfficeDocument reports whether mime needs conversion before printing.
func IsOfficeDocument(mime string) bool {
	_, ok := officeMimeTypes[mime]
	return ok
}

// QueueIdle reports whether lpstat shows the queue as idle.
func QueueIdle(ctx context.Context, runner deviceutils.Runner, name string) (bool, error) {
	out, err := runner.Run(ctx, "", "lpstat", "-p", name)
	if err != nil {
		return false, fmt.Errorf("could not read printer state: %w", err)
	}
	return strings.Contains(string(out), "idle"), nil
}
