/*
Send-to-usb is invoked inside the export VM with the path of a submission
archive. It extracts the archive, validates its metadata.json, performs the
single requested action (export to an encrypted USB disk, print, or one of
their checks) and writes exactly one status token to stderr.

The process always exits with code 0; callers read the outcome from stderr.
Logs go to a rotating file, never to stderr.

Usage:

	send-to-usb [flags] <archive-path>

The flags are:

	--config
		configuration file (default /etc/sd-export-config.json, env SD_EXPORT_CONFIG)
	--log-file
		rotating log file (default ~/.securedrop/logs/export.log)
	--log-json, --log-debug, --log-uid, --log-service
		log format and attributes
*/
package main
