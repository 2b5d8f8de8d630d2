package interfaces

// Family groups commands by the collaborator that serves them.
type Family string

const (
	// FamilyControl commands never reach a collaborator.
	FamilyControl Family = "control"
	// FamilyExport commands are served by the disk export service.
	FamilyExport Family = "export"
	// FamilyPrint commands are served by the print service.
	FamilyPrint Family = "print"
)

// Command is one authorized action, resolved from the archive manifest.
type Command int

const (
	// CommandUnknown is the zero value and is never dispatched.
	CommandUnknown Command = iota
	CommandStartVM
	CommandExport
	CommandExportDryRun
	CommandCheckUSB
	CommandCheckVolume
	CommandPrint
	CommandPrintPreflight
	CommandPrintTest
)

type commandInfo struct {
	name   string
	family Family
	// volumeKey commands unlock a volume and need encryption_method and encryption_key.
	volumeKey bool
}

var commandTable = map[Command]commandInfo{
	CommandStartVM:        {"start-vm", FamilyControl, false},
	CommandExport:         {"disk", FamilyExport, true},
	CommandExportDryRun:   {"disk-dry-run", FamilyExport, true},
	CommandCheckUSB:       {"usb-test", FamilyExport, false},
	CommandCheckVolume:    {"disk-test", FamilyExport, false},
	CommandPrint:          {"printer", FamilyPrint, false},
	CommandPrintPreflight: {"printer-preflight", FamilyPrint, false},
	CommandPrintTest:      {"printer-test", FamilyPrint, false},
}

// AllCommands lists every known command in declaration order.
func AllCommands() []Command {
	return []Command{
		CommandStartVM,
		CommandExport,
		CommandExportDryRun,
		CommandCheckUSB,
		CommandCheckVolume,
		CommandPrint,
		CommandPrintPreflight,
		CommandPrintTest,
	}
}

// String returns the manifest spelling of the command.
func (c Command) String() string {
	if info, ok := commandTable[c]; ok {
		return info.name
	}
	return "unknown"
}

// Family returns the family the command belongs to, or "" for unknown commands.
func (c Command) Family() Family {
	return commandTable[c].family
}

// NeedsVolumeKey reports whether the manifest must carry a LUKS passphrase
// for this command.
func (c Command) NeedsVolumeKey() bool {
	return commandTable[c].volumeKey
}

// Known reports whether c is a member of the closed command set.
func (c Command) Known() bool {
	_, ok := commandTable[c]
	return ok
}

// CommandFromString maps a manifest action string to its Command. There is
// no default: an unrecognized string returns CommandUnknown and false.
func CommandFromString(s string) (Command, bool) {
	for cmd, info := range commandTable {
		if info.name == s {
			return cmd, true
		}
	}
	return CommandUnknown, false
}
