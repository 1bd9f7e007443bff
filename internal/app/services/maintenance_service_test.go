package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/craftdeck/craftdeck/internal/domain/entities"
	"github.com/craftdeck/craftdeck/internal/domain/errors"
	"github.com/craftdeck/craftdeck/internal/infrastructure/storage"
)

type maintenanceFixture struct {
	svc        *MaintenanceService
	repo       *storage.FileMaintenanceRepository
	clock      *fakeClock
	backupsDir string
}

func newMaintenanceFixture(t *testing.T, deleter Deleter) *maintenanceFixture {
	t.Helper()

	dataDir := t.TempDir()
	backupsDir := t.TempDir()
	oldWorldsDir := t.TempDir()
	clock := &fakeClock{now: time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)}

	if deleter == nil {
		deleter = FSDeleter{}
	}

	repo := storage.NewFileMaintenanceRepository(dataDir)
	svc := NewMaintenanceService(
		repo,
		NewScannerService(ScanPaths{BackupsDir: backupsDir, OldWorldsDir: oldWorldsDir}),
		NewRuleService(),
		&fakeStats{stats: entities.StorageStats{UsedPercent: 10, TotalBytes: 1 << 40, FreeBytes: 1 << 39}},
		dataDir,
		deleter,
		clock,
		NewAuditLogger(dataDir),
	)

	return &maintenanceFixture{svc: svc, repo: repo, clock: clock, backupsDir: backupsDir}
}

// writeBackup creates a manual backup zip aged by ageDays.
func (f *maintenanceFixture) writeBackup(t *testing.T, name string, ageDays int) string {
	t.Helper()
	path := filepath.Join(f.backupsDir, name)
	require.NoError(t, os.WriteFile(path, []byte("zipdata"), 0644))
	mod := f.clock.now.Add(-time.Duration(ageDays) * 24 * time.Hour)
	require.NoError(t, os.Chtimes(path, mod, mod))
	return path
}

// saveOpenRules persists a permissive rule set: count keep 2, wide caps,
// no guards, no space gate.
func (f *maintenanceFixture) saveOpenRules(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	cfg, err := f.repo.LoadConfig(ctx)
	require.NoError(t, err)
	profile := cfg.Profile(entities.ScopeBackups)
	profile.Rules.Age = entities.AgeRule{Enabled: true, Days: 7}
	profile.Rules.Count.ManualBackupsToKeep = 2
	profile.Rules.Space.Enabled = false
	profile.Rules.Guards = entities.GuardRule{}
	profile.Rules.Caps = entities.CapRule{
		MaxDeleteFilesAbsolute:   500,
		MaxDeletePercentEligible: 100,
		MaxDeleteMinIfNonEmpty:   1,
	}
	require.NoError(t, f.repo.SaveConfig(ctx, cfg))
}

func TestRunRulesIsIdempotent(t *testing.T) {
	// Re-running immediately after a successful apply deletes
	// nothing because eligibility recomputes from the live filesystem.
	ctx := context.Background()
	f := newMaintenanceFixture(t, nil)
	f.saveOpenRules(t)

	for i := 0; i < 6; i++ {
		f.writeBackup(t, fmt.Sprintf("world_manual_%d.zip", i), 10+i)
	}

	first, err := f.svc.RunRules(ctx, entities.ScopeBackups, false, "", "tester")
	require.NoError(t, err)
	assert.Equal(t, 4, first.DeletedCount)
	assert.Empty(t, first.Errors)
	assert.Equal(t, entities.RunResultOK, first.Result())

	second, err := f.svc.RunRules(ctx, entities.ScopeBackups, false, "", "tester")
	require.NoError(t, err)
	assert.Equal(t, 0, second.DeletedCount)

	entries, err := os.ReadDir(f.backupsDir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestDryRunDeletesNothingAndWritesNoHistory(t *testing.T) {
	ctx := context.Background()
	f := newMaintenanceFixture(t, nil)
	f.saveOpenRules(t)

	for i := 0; i < 4; i++ {
		f.writeBackup(t, fmt.Sprintf("world_manual_%d.zip", i), 10+i)
	}

	selection, err := f.svc.RunRules(ctx, entities.ScopeBackups, true, "", "tester")
	require.NoError(t, err)
	assert.True(t, selection.DryRun)
	assert.Equal(t, 2, selection.CappedDeleteCount)
	assert.Equal(t, 0, selection.DeletedCount)
	assert.Equal(t, entities.RunResultDryRun, selection.Result())

	entries, err := os.ReadDir(f.backupsDir)
	require.NoError(t, err)
	assert.Len(t, entries, 4)

	history, err := f.repo.LoadHistory(ctx, entities.ScopeBackups)
	require.NoError(t, err)
	assert.Empty(t, history.Runs)
}

type failingDeleter struct {
	failFor string
}

func (d *failingDeleter) Delete(path string, isDir bool) error {
	if filepath.Base(path) == d.failFor {
		return fmt.Errorf("permission denied")
	}
	if isDir {
		return os.RemoveAll(path)
	}
	return os.Remove(path)
}

func TestRunRulesPartialFailure(t *testing.T) {
	// One bad file must not abort the run; the result degrades to
	// partial and successes are still counted.
	ctx := context.Background()
	f := newMaintenanceFixture(t, &failingDeleter{failFor: "world_manual_4.zip"})
	f.saveOpenRules(t)

	for i := 0; i < 5; i++ {
		f.writeBackup(t, fmt.Sprintf("world_manual_%d.zip", i), 10+i)
	}

	selection, err := f.svc.RunRules(ctx, entities.ScopeBackups, false, "", "tester")
	require.NoError(t, err)
	assert.Equal(t, 2, selection.DeletedCount)
	require.Len(t, selection.Errors, 1)
	assert.Contains(t, selection.Errors[0], "world_manual_4.zip")
	assert.Equal(t, entities.RunResultPartial, selection.Result())

	history, err := f.repo.LoadHistory(ctx, entities.ScopeBackups)
	require.NoError(t, err)
	require.Len(t, history.Runs, 1)
	assert.Equal(t, entities.RunResultPartial, history.Runs[0].Result)
}

type blockingDeleter struct {
	entered chan struct{}
	release chan struct{}
}

func (d *blockingDeleter) Delete(path string, isDir bool) error {
	d.entered <- struct{}{}
	<-d.release
	return os.Remove(path)
}

func TestConcurrentRunFailsFastWithBusy(t *testing.T) {
	ctx := context.Background()
	deleter := &blockingDeleter{entered: make(chan struct{}), release: make(chan struct{})}
	f := newMaintenanceFixture(t, deleter)
	f.saveOpenRules(t)

	for i := 0; i < 3; i++ {
		f.writeBackup(t, fmt.Sprintf("world_manual_%d.zip", i), 10+i)
	}

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.RunRules(ctx, entities.ScopeBackups, false, "", "tester")
		done <- err
	}()

	<-deleter.entered

	_, err := f.svc.RunRules(ctx, entities.ScopeBackups, false, "", "tester")
	assert.ErrorIs(t, err, errors.ErrRunInProgress)

	// Dry runs never take the lock.
	_, err = f.svc.RunRules(ctx, entities.ScopeBackups, true, "", "tester")
	assert.NoError(t, err)

	close(deleter.release)
	require.NoError(t, <-done)
}

func TestManualDeleteBlocksIneligibleSelection(t *testing.T) {
	ctx := context.Background()
	f := newMaintenanceFixture(t, nil)
	f.saveOpenRules(t)

	fresh := f.writeBackup(t, "world_manual_fresh.zip", 1)
	old := f.writeBackup(t, "world_manual_old_a.zip", 30)
	f.writeBackup(t, "world_manual_old_b.zip", 40)
	f.writeBackup(t, "world_manual_old_c.zip", 50)

	selection, err := f.svc.ManualDelete(ctx, entities.ScopeBackups, []string{fresh, old}, false, "tester")
	assert.ErrorIs(t, err, errors.ErrIneligibleSelection)
	require.NotNil(t, selection)
	assert.Contains(t, selection.SelectedIneligible, fresh)
	assert.Equal(t, 0, selection.DeletedCount)

	// The files are untouched.
	_, statErr := os.Stat(fresh)
	assert.NoError(t, statErr)
	_, statErr = os.Stat(old)
	assert.NoError(t, statErr)
}

func TestManualDeleteEligibleSelection(t *testing.T) {
	ctx := context.Background()
	f := newMaintenanceFixture(t, nil)
	f.saveOpenRules(t)

	old := f.writeBackup(t, "world_manual_old_a.zip", 30)
	f.writeBackup(t, "world_manual_old_b.zip", 40)
	f.writeBackup(t, "world_manual_old_c.zip", 50)

	selection, err := f.svc.ManualDelete(ctx, entities.ScopeBackups, []string{old}, false, "tester")
	require.NoError(t, err)
	assert.Equal(t, 1, selection.DeletedCount)

	_, statErr := os.Stat(old)
	assert.True(t, os.IsNotExist(statErr))
}

func TestManualDeleteCappedSelectionProceeds(t *testing.T) {
	// A manual selection that only exceeds the cap is not an ineligible
	// selection: the oldest files up to the cap are deleted and the
	// remainder is reported as capped.
	ctx := context.Background()
	f := newMaintenanceFixture(t, nil)
	f.saveOpenRules(t)

	cfg, err := f.repo.LoadConfig(ctx)
	require.NoError(t, err)
	cfg.Profile(entities.ScopeBackups).Rules.Caps.MaxDeleteFilesAbsolute = 2
	require.NoError(t, f.repo.SaveConfig(ctx, cfg))

	a := f.writeBackup(t, "world_manual_old_a.zip", 30)
	b := f.writeBackup(t, "world_manual_old_b.zip", 40)
	c := f.writeBackup(t, "world_manual_old_c.zip", 50)
	d := f.writeBackup(t, "world_manual_old_d.zip", 60)

	selection, err := f.svc.ManualDelete(ctx, entities.ScopeBackups, []string{a, b, c, d}, false, "tester")
	require.NoError(t, err)
	assert.Equal(t, 4, selection.RequestedDeleteCount)
	assert.Equal(t, 2, selection.CappedDeleteCount)
	assert.Equal(t, 2, selection.DeletedCount)
	assert.ElementsMatch(t, []string{a, b}, selection.SelectedIneligible)

	// The two oldest are gone, the two newest survive.
	_, statErr := os.Stat(d)
	assert.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(c)
	assert.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(a)
	assert.NoError(t, statErr)
	_, statErr = os.Stat(b)
	assert.NoError(t, statErr)
}

func TestRunPersistKeepsConcurrentRuleSave(t *testing.T) {
	// A rule save landing while another scope's run is mid-delete must
	// survive the run's own state write.
	ctx := context.Background()
	deleter := &blockingDeleter{entered: make(chan struct{}), release: make(chan struct{})}
	f := newMaintenanceFixture(t, deleter)
	f.saveOpenRules(t)

	for i := 0; i < 3; i++ {
		f.writeBackup(t, fmt.Sprintf("world_manual_%d.zip", i), 10+i)
	}

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.RunRules(ctx, entities.ScopeBackups, false, "", "tester")
		done <- err
	}()

	<-deleter.entered

	_, verrs, err := f.svc.SaveRules(ctx, entities.ScopeStaleWorlds, entities.DefaultRuleSet(), "editor")
	require.NoError(t, err)
	require.Empty(t, verrs)

	close(deleter.release)
	require.NoError(t, <-done)

	cfg, err := f.repo.LoadConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Profile(entities.ScopeStaleWorlds).Meta.RuleVersion)
	assert.False(t, cfg.Profile(entities.ScopeBackups).Meta.LastRunAt.IsZero())
}

func TestSaveRulesRejectsInvalidValues(t *testing.T) {
	ctx := context.Background()
	f := newMaintenanceFixture(t, nil)

	rules := entities.DefaultRuleSet()
	rules.Age.Days = -1
	rules.Space.UsedTriggerPercent = 10

	_, verrs, err := f.svc.SaveRules(ctx, entities.ScopeBackups, rules, "tester")
	assert.Error(t, err)
	require.NotEmpty(t, verrs)

	fields := make([]string, 0, len(verrs))
	for _, v := range verrs {
		fields = append(fields, v.Field)
	}
	assert.Contains(t, fields, "age.days")
	assert.Contains(t, fields, "space.used_trigger_percent")

	// The rejected save must not bump the persisted version.
	cfg, err := f.repo.LoadConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Profile(entities.ScopeBackups).Meta.RuleVersion)
}

func TestSaveRulesBumpsVersionsAndComputesNextRun(t *testing.T) {
	ctx := context.Background()
	f := newMaintenanceFixture(t, nil)

	rules := entities.DefaultRuleSet()
	rules.TimeBased = entities.TimeRule{
		Enabled:      true,
		TimeOfBackup: "15:00",
		RepeatMode:   entities.RepeatDaily,
		WeeklyDay:    "Sunday",
		MonthlyDate:  1,
		EveryNDays:   1,
	}

	state, verrs, err := f.svc.SaveRules(ctx, entities.ScopeBackups, rules, "tester")
	require.NoError(t, err)
	require.Empty(t, verrs)

	assert.Equal(t, 2, state.Meta.RuleVersion)
	assert.Equal(t, 2, state.Meta.ScheduleVersion)
	assert.Equal(t, "tester", state.Meta.LastChangedBy)
	assert.Equal(t, "2026-08-24", state.Meta.AnchorDate)
	require.NotNil(t, state.NextRunAt)
	assert.Equal(t, time.Date(2026, 8, 24, 15, 0, 0, 0, time.UTC), state.NextRunAt.UTC())
}

func TestRunRulesDisabledScope(t *testing.T) {
	ctx := context.Background()
	f := newMaintenanceFixture(t, nil)

	cfg, err := f.repo.LoadConfig(ctx)
	require.NoError(t, err)
	cfg.Profile(entities.ScopeBackups).Rules.Enabled = false
	require.NoError(t, f.repo.SaveConfig(ctx, cfg))

	_, err = f.svc.RunRules(ctx, entities.ScopeBackups, false, "", "tester")
	assert.ErrorIs(t, err, errors.ErrRulesDisabled)
}

func TestGetStateIncludesPreviewAndMeta(t *testing.T) {
	ctx := context.Background()
	f := newMaintenanceFixture(t, nil)
	f.saveOpenRules(t)

	for i := 0; i < 4; i++ {
		f.writeBackup(t, fmt.Sprintf("world_manual_%d.zip", i), 10+i)
	}

	state, err := f.svc.GetState(ctx, entities.ScopeBackups)
	require.NoError(t, err)
	assert.Equal(t, entities.ScopeBackups, state.Scope)
	require.NotNil(t, state.Preview)
	assert.True(t, state.Preview.DryRun)
	assert.Equal(t, 2, state.Preview.EligibleCount)
	assert.NotNil(t, state.Missed)
	assert.NotNil(t, state.Storage)
}
