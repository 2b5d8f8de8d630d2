package flags

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cfm/securedrop-client/common"
	"github.com/cfm/securedrop-client/config"
	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
)

// DefaultLogFile is relative to the home directory of the invoking user.
const DefaultLogFile = ".securedrop/logs/export.log"

// SetupLogger builds the file logger from the log flags. The closer releases
// the log file.
func SetupLogger(cCtx *cli.Context) (*slog.Logger, io.Closer, error) {
	logJSON := cCtx.Bool(LogJsonFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUidFlag.Name)
	logService := cCtx.String(LogServiceFlag.Name)

	logFile := cCtx.String(LogFileFlag.Name)
	if logFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, nil, err
		}
		logFile = filepath.Join(home, DefaultLogFile)
	}

	logger, closer, err := common.SetupLogger(&common.LoggingOpts{
		Debug:      logDebug,
		JSON:       logJSON,
		Service:    logService,
		Version:    common.Version,
		File:       logFile,
		MaxSizeMB:  cCtx.Int(LogMaxSizeFlag.Name),
		MaxBackups: cCtx.Int(LogBackupsFlag.Name),
	})
	if err != nil {
		return nil, nil, err
	}

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger, closer, nil
}

var ConfigFlag = &cli.StringFlag{
	Name:    "config",
	Value:   config.DefaultPath,
	EnvVars: []string{config.EnvPrefix + "_CONFIG"},
	Usage:   "path to the export VM configuration file",
}

var LogJsonFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}
var LogUidFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: true,
	Usage: "generate a uuid and add to all log messages",
}
var LogServiceFlag = &cli.StringFlag{
	Name:  "log-service",
	Value: "sd-export",
	Usage: "add 'service' tag to logs",
}
var LogFileFlag = &cli.StringFlag{
	Name:    "log-file",
	EnvVars: []string{config.EnvPrefix + "_LOG_FILE"},
	Usage:   "rotating log file (default ~/" + DefaultLogFile + "); logs never go to stderr",
}
var LogMaxSizeFlag = &cli.IntFlag{
	Name:  "log-max-size",
	Value: 10,
	Usage: "rotate the log file after this many megabytes",
}
var LogBackupsFlag = &cli.IntFlag{
	Name:  "log-backups",
	Value: 5,
	Usage: "number of rotated log files to keep",
}

var CommonFlags = []cli.Flag{
	ConfigFlag,
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
	LogServiceFlag,
	LogFileFlag,
	LogMaxSizeFlag,
	LogBackupsFlag,
}
