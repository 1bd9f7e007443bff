package entities

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassifyBackup(t *testing.T) {
	tests := []struct {
		name     string
		expected BackupBucket
	}{
		{"world_pre_restore_2025-08-01.zip", BucketPreRestore},
		{"world_auto_2025-08-01.zip", BucketAuto},
		{"world_session_end_2025-08-01.zip", BucketSession},
		{"world_manual_2025-08-01.zip", BucketManual},
		{"WORLD_MANUAL_UPPER.zip", BucketManual},
		{"plainworld.zip", BucketOther},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, ClassifyBackup(tt.name), "name %s", tt.name)
	}
}

func TestClassifyBackupPreRestoreWins(t *testing.T) {
	// Restore snapshots embed the original name, so a pre-restore copy of
	// a manual backup must still classify as pre-restore.
	assert.Equal(t, BucketPreRestore, ClassifyBackup("world_manual_pre_restore_2025.zip"))
}

func TestHasRestoreStamp(t *testing.T) {
	assert.True(t, HasRestoreStamp("world_2025-08-01_14-30-00"))
	assert.True(t, HasRestoreStamp("world_2025-08-01_14-30-00_2"))
	assert.False(t, HasRestoreStamp("world"))
	assert.False(t, HasRestoreStamp("world_2025-08-01"))
	assert.False(t, HasRestoreStamp("world_2025-08-01_14-30-00_suffix"))
}

func TestNormalizeScope(t *testing.T) {
	assert.Equal(t, ScopeBackups, NormalizeScope("backups"))
	assert.Equal(t, ScopeStaleWorlds, NormalizeScope("stale_worlds"))
	assert.Equal(t, ScopeStaleWorlds, NormalizeScope("  STALE_WORLDS  "))
	assert.Equal(t, ScopeBackups, NormalizeScope("anything else"))
	assert.Equal(t, ScopeBackups, NormalizeScope(""))
}

func TestArtifactBucket(t *testing.T) {
	zip := Artifact{Name: "world_manual.zip", Category: CategoryBackupZip}
	assert.Equal(t, BucketManual, zip.Bucket())

	dir := Artifact{Name: "world_manual", Category: CategoryStaleWorldDir, ModTime: time.Now()}
	assert.Equal(t, BucketOther, dir.Bucket())
}
