package entities

import (
	"regexp"
	"strings"
	"time"
)

// Scope is an independent retention domain. Each scope owns its own rules,
// schedule state, run history, and missed-run list.
type Scope string

const (
	ScopeBackups     Scope = "backups"
	ScopeStaleWorlds Scope = "stale_worlds"
)

// Scopes lists all known scopes in evaluation order.
var Scopes = []Scope{ScopeBackups, ScopeStaleWorlds}

// NormalizeScope maps arbitrary input onto a known scope, defaulting to
// backups the way the panel UI does.
func NormalizeScope(raw string) Scope {
	switch Scope(strings.ToLower(strings.TrimSpace(raw))) {
	case ScopeStaleWorlds:
		return ScopeStaleWorlds
	default:
		return ScopeBackups
	}
}

// IsValid reports whether s names a known scope exactly.
func (s Scope) IsValid() bool {
	return s == ScopeBackups || s == ScopeStaleWorlds
}

// Category classifies a discovered filesystem entity.
type Category string

const (
	// CategoryBackupZip is a zip archive in the backup directory.
	CategoryBackupZip Category = "backup_zip"

	// CategoryStaleWorldDir is a retired world directory left behind by a
	// restore, recognized by its restore timestamp suffix.
	CategoryStaleWorldDir Category = "stale_world_dir"

	// CategoryOldWorldZip is a zipped world snapshot in the old-worlds
	// directory.
	CategoryOldWorldZip Category = "old_world_zip"
)

// BackupBucket subdivides backup archives by origin. Buckets carry their
// own keep-counts in the count gate.
type BackupBucket string

const (
	BucketSession    BackupBucket = "session"
	BucketManual     BackupBucket = "manual"
	BucketPreRestore BackupBucket = "pre_restore"
	BucketAuto       BackupBucket = "auto"
	BucketOther      BackupBucket = "other"
)

// ClassifyBackup assigns a backup archive to its bucket from filename
// markers written by the backup workflow. Pre-restore wins over the other
// markers because restore snapshots embed the original name.
func ClassifyBackup(name string) BackupBucket {
	lowered := strings.ToLower(name)
	switch {
	case strings.Contains(lowered, "_pre_restore"):
		return BucketPreRestore
	case strings.Contains(lowered, "_auto"):
		return BucketAuto
	case strings.Contains(lowered, "_session_end"):
		return BucketSession
	case strings.Contains(lowered, "_manual"):
		return BucketManual
	default:
		return BucketOther
	}
}

// restoreStampRe matches the timestamp suffix the restore workflow appends
// to retired world directories, e.g. world_2025-08-01_14-30-00 or
// world_2025-08-01_14-30-00_2.
var restoreStampRe = regexp.MustCompile(`_\d{4}-\d{2}-\d{2}_\d{2}-\d{2}-\d{2}(?:_\d+)?$`)

// HasRestoreStamp reports whether a directory name carries a restore
// timestamp suffix. Only stamped directories are stale-world candidates;
// anything else under old_worlds is left alone.
func HasRestoreStamp(name string) bool {
	return restoreStampRe.MatchString(name)
}

// Artifact is one discovered filesystem entity. Artifacts are transient:
// they are rebuilt on every scan and never persisted.
type Artifact struct {
	Name      string    `yaml:"name" json:"name"`
	Path      string    `yaml:"path" json:"path"`
	Category  Category  `yaml:"category" json:"category"`
	IsDir     bool      `yaml:"is_dir" json:"is_dir"`
	SizeBytes int64     `yaml:"size_bytes" json:"size_bytes"`
	ModTime   time.Time `yaml:"modified_at" json:"modified_at"`

	// Eligible and Reasons carry the hard safety verdicts attached at scan
	// time (symlink, outside allowed roots, active world, disabled
	// category). The rule evaluator only ever narrows eligibility further.
	Eligible bool     `yaml:"eligible" json:"eligible"`
	Reasons  []string `yaml:"reasons" json:"reasons"`
}

// Bucket returns the backup bucket for backup archives and BucketOther for
// everything else.
func (a *Artifact) Bucket() BackupBucket {
	if a.Category != CategoryBackupZip {
		return BucketOther
	}
	return ClassifyBackup(a.Name)
}
