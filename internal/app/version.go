package app

import (
	"fmt"
	"runtime"
)

// Version information
const (
	// Version is the current version of CraftDeck
	Version = "0.3.0"

	// VersionMajor is the major version number
	VersionMajor = 0

	// VersionMinor is the minor version number
	VersionMinor = 3

	// VersionPatch is the patch version number
	VersionPatch = 0

	// VersionPrerelease is the prerelease version (empty for stable)
	VersionPrerelease = ""

	// BuildDate is set during build time
	BuildDate = "dev"

	// GitCommit is set during build time
	GitCommit = "dev"
)

// Application metadata
const (
	// AppName is the name of the application
	AppName = "CraftDeck"

	// AppDescription is a short description of the application
	AppDescription = "Maintenance control panel core for a game-server host"

	// AppLongDescription is a detailed description
	AppLongDescription = "CraftDeck is the maintenance core of a web control panel for a single game-server host. It inventories backup archives and retired world directories, evaluates configurable retention rules with a destructive-action safety envelope, and schedules periodic cleanup runs."

	// AppAuthor is the author/organization
	AppAuthor = "CraftDeck Contributors"

	// AppWebsite is the project website
	AppWebsite = "https://github.com/craftdeck/craftdeck"

	// AppLicense is the license type
	AppLicense = "MIT"
)

// Directory and file constants
const (
	// DataDirName is the name of the panel data directory
	DataDirName = ".craftdeck"

	// BackupsDirName is the subdirectory holding backup archives
	BackupsDirName = "backups"

	// OldWorldsDirName is the subdirectory holding retired world snapshots
	OldWorldsDirName = "old_worlds"

	// LogsDirName is the subdirectory for log files
	LogsDirName = "logs"

	// CleanupConfigFileName is the per-host maintenance configuration file
	CleanupConfigFileName = "cleanup.yaml"

	// HistoryFilePattern names the per-scope run history file
	HistoryFilePattern = "history_%s.yaml"

	// MissedFilePattern names the per-scope missed-run file
	MissedFilePattern = "missed_%s.yaml"

	// AuditLogFileName is the JSON-lines maintenance audit log
	AuditLogFileName = "cleanup.log"

	// ServerPropertiesFileName is the game server's properties file
	ServerPropertiesFileName = "server.properties"
)

// Retention bookkeeping limits
const (
	// MaxHistoryRuns bounds how many run records are kept per scope
	MaxHistoryRuns = 500

	// MaxMissedRuns bounds how many missed-run records are kept per scope
	MaxMissedRuns = 100
)

// CLI constants
const (
	// DefaultHistoryLimit is the default limit for history listings
	DefaultHistoryLimit = 50

	// TableFormat is the table output format
	TableFormat = "table"

	// JSONFormat is the JSON output format
	JSONFormat = "json"

	// YAMLFormat is the YAML output format
	YAMLFormat = "yaml"
)

// Server constants
const (
	// DefaultServerPort is the default port for the CraftDeck panel server
	DefaultServerPort = 4090

	// ServerPortRange defines the range for automatic port selection
	ServerPortRangeStart = 4090
	ServerPortRangeEnd   = 4100

	// ServerPIDFile is the filename for storing server PID
	ServerPIDFile = "server.pid"

	// ServerLogFile is the filename for server logs
	ServerLogFile = "server.log"

	// ServerShutdownTimeout is the timeout for graceful shutdown
	ServerShutdownTimeout = 30 // seconds

	// APIBasePath is the base path for API endpoints
	APIBasePath = "/api/v1"

	// AdminTokenHeader carries the shared admin token on mutating requests
	AdminTokenHeader = "X-Craftdeck-Admin-Token"
)

// Scheduler constants
const (
	// SchedulerPollInterval is how often the maintenance scheduler wakes up,
	// in seconds
	SchedulerPollInterval = 30

	// SchedulerGapFactor times the poll interval defines how large a gap
	// between observed ticks counts as a missed window
	SchedulerGapFactor = 2.5
)

// GetVersion returns the full version string
func GetVersion() string {
	version := Version
	if VersionPrerelease != "" {
		version += "-" + VersionPrerelease
	}
	return version
}

// GetFullVersion returns detailed version information
func GetFullVersion() string {
	return fmt.Sprintf("%s %s\nBuilt with %s %s on %s\nCommit: %s\nBuild Date: %s",
		AppName, GetVersion(), runtime.Compiler, runtime.Version(), runtime.GOOS+"/"+runtime.GOARCH, GitCommit, BuildDate)
}
