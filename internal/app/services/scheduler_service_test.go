package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/craftdeck/craftdeck/internal/domain/entities"
	"github.com/craftdeck/craftdeck/internal/infrastructure/storage"
)

// fakeClock is a settable Clock for scheduler and orchestrator tests.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

// fakeStats returns fixed storage numbers.
type fakeStats struct {
	stats entities.StorageStats
}

func (f *fakeStats) Stats(path string) (*entities.StorageStats, error) {
	s := f.stats
	return &s, nil
}

func timeRule(mode entities.RepeatMode, timeOfDay string) entities.TimeRule {
	return entities.TimeRule{
		Enabled:      true,
		TimeOfBackup: timeOfDay,
		RepeatMode:   mode,
		WeeklyDay:    "Sunday",
		MonthlyDate:  1,
		EveryNDays:   1,
	}
}

func TestNextRunAtWeekly(t *testing.T) {
	// Weekly on Sunday 03:00 seen from Monday 10:00 lands on the
	// following Sunday, six days later.
	rule := timeRule(entities.RepeatWeekly, "03:00")
	now := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC) // a Monday

	next := NextRunAt(rule, entities.DefaultRuleMeta(), now)
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2026, 8, 30, 3, 0, 0, 0, time.UTC), *next)
	assert.Equal(t, time.Sunday, next.Weekday())
}

func TestNextRunAtWeeklySameDay(t *testing.T) {
	rule := timeRule(entities.RepeatWeekly, "03:00")

	// Sunday before 03:00 stays today; Sunday after 03:00 jumps a week.
	sundayEarly := time.Date(2026, 8, 30, 1, 0, 0, 0, time.UTC)
	next := NextRunAt(rule, entities.DefaultRuleMeta(), sundayEarly)
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2026, 8, 30, 3, 0, 0, 0, time.UTC), *next)

	sundayLate := time.Date(2026, 8, 30, 4, 0, 0, 0, time.UTC)
	next = NextRunAt(rule, entities.DefaultRuleMeta(), sundayLate)
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2026, 9, 6, 3, 0, 0, 0, time.UTC), *next)
}

func TestNextRunAtDaily(t *testing.T) {
	rule := timeRule(entities.RepeatDaily, "15:00")

	before := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	next := NextRunAt(rule, entities.DefaultRuleMeta(), before)
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2026, 8, 24, 15, 0, 0, 0, time.UTC), *next)

	after := time.Date(2026, 8, 24, 16, 0, 0, 0, time.UTC)
	next = NextRunAt(rule, entities.DefaultRuleMeta(), after)
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2026, 8, 25, 15, 0, 0, 0, time.UTC), *next)
}

func TestNextRunAtDoesNotRepeat(t *testing.T) {
	rule := timeRule(entities.RepeatDoesNotRepeat, "15:00")

	before := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	next := NextRunAt(rule, entities.DefaultRuleMeta(), before)
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2026, 8, 24, 15, 0, 0, 0, time.UTC), *next)

	// One-shot that already elapsed never fires again.
	after := time.Date(2026, 8, 24, 16, 0, 0, 0, time.UTC)
	assert.Nil(t, NextRunAt(rule, entities.DefaultRuleMeta(), after))
}

func TestNextRunAtMonthlyClampsShortMonths(t *testing.T) {
	rule := timeRule(entities.RepeatMonthly, "03:00")
	rule.MonthlyDate = 31

	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	next := NextRunAt(rule, entities.DefaultRuleMeta(), now)
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2026, 2, 28, 3, 0, 0, 0, time.UTC), *next)

	past := time.Date(2026, 2, 28, 4, 0, 0, 0, time.UTC)
	next = NextRunAt(rule, entities.DefaultRuleMeta(), past)
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2026, 3, 31, 3, 0, 0, 0, time.UTC), *next)

	// Advancing from Jan 31 must land on February's clamped slot, not
	// normalize past it into March.
	janEnd := time.Date(2026, 1, 31, 4, 0, 0, 0, time.UTC)
	next = NextRunAt(rule, entities.DefaultRuleMeta(), janEnd)
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2026, 2, 28, 3, 0, 0, 0, time.UTC), *next)

	// Same from December into January, across the year boundary.
	decEnd := time.Date(2026, 12, 31, 4, 0, 0, 0, time.UTC)
	next = NextRunAt(rule, entities.DefaultRuleMeta(), decEnd)
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2027, 1, 31, 3, 0, 0, 0, time.UTC), *next)
}

func TestNextRunAtWeekdaysSkipsWeekend(t *testing.T) {
	rule := timeRule(entities.RepeatWeekdays, "03:00")

	saturday := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	next := NextRunAt(rule, entities.DefaultRuleMeta(), saturday)
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2026, 8, 31, 3, 0, 0, 0, time.UTC), *next)
	assert.Equal(t, time.Monday, next.Weekday())
}

func TestNextRunAtEveryNDaysKeepsAnchoredCadence(t *testing.T) {
	// The cadence stays a whole multiple of N days from the anchor even
	// when runs were missed in between.
	rule := timeRule(entities.RepeatEveryNDays, "03:00")
	rule.EveryNDays = 3

	meta := entities.DefaultRuleMeta()
	meta.AnchorDate = "2026-08-01"

	now := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	next := NextRunAt(rule, meta, now)
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2026, 8, 25, 3, 0, 0, 0, time.UTC), *next)

	days := int(next.Sub(time.Date(2026, 8, 1, 3, 0, 0, 0, time.UTC)).Hours() / 24)
	assert.Equal(t, 0, days%3)
}

func TestNextRunAtDisabledOrInvalid(t *testing.T) {
	rule := timeRule(entities.RepeatDaily, "03:00")
	rule.Enabled = false
	assert.Nil(t, NextRunAt(rule, entities.DefaultRuleMeta(), time.Now()))

	rule.Enabled = true
	rule.TimeOfBackup = "not a time"
	assert.Nil(t, NextRunAt(rule, entities.DefaultRuleMeta(), time.Now()))
}

// schedulerFixture wires a scheduler against a temp-dir repository.
func schedulerFixture(t *testing.T, clock *fakeClock) (*SchedulerService, *MaintenanceService, *storage.FileMaintenanceRepository) {
	t.Helper()
	dataDir := t.TempDir()

	repo := storage.NewFileMaintenanceRepository(dataDir)
	scanner := NewScannerService(ScanPaths{
		BackupsDir:   t.TempDir(),
		OldWorldsDir: t.TempDir(),
	})
	maintenance := NewMaintenanceService(
		repo,
		scanner,
		NewRuleService(),
		&fakeStats{stats: entities.StorageStats{UsedPercent: 10, TotalBytes: 1 << 40, FreeBytes: 1 << 39}},
		dataDir,
		FSDeleter{},
		clock,
		NewAuditLogger(dataDir),
	)
	scheduler := NewSchedulerService(maintenance, repo, clock, 30*time.Second)
	return scheduler, maintenance, repo
}

func TestSchedulerRecordsMissedRunOnce(t *testing.T) {
	// A next-run slot that elapsed unobserved by more than the poll
	// window produces exactly one missed-run record across repeated
	// polls.
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 8, 24, 5, 0, 0, 0, time.UTC)}
	scheduler, _, repo := schedulerFixture(t, clock)

	cfg, err := repo.LoadConfig(ctx)
	require.NoError(t, err)
	profile := cfg.Profile(entities.ScopeBackups)
	profile.Rules.TimeBased = timeRule(entities.RepeatDaily, "03:00")
	profile.Meta.NextRunAt = time.Date(2026, 8, 24, 3, 0, 0, 0, time.UTC)
	require.NoError(t, repo.SaveConfig(ctx, cfg))

	scheduler.Tick(ctx)

	missed, err := repo.LoadMissed(ctx, entities.ScopeBackups)
	require.NoError(t, err)
	require.Len(t, missed.MissedRuns, 1)
	assert.Equal(t, time.Date(2026, 8, 24, 3, 0, 0, 0, time.UTC), missed.MissedRuns[0].At)

	// Later polls must not duplicate the record.
	clock.now = clock.now.Add(time.Minute)
	scheduler.Tick(ctx)
	clock.now = clock.now.Add(time.Minute)
	scheduler.Tick(ctx)

	missed, err = repo.LoadMissed(ctx, entities.ScopeBackups)
	require.NoError(t, err)
	assert.Len(t, missed.MissedRuns, 1)

	// The next-run pointer advanced past the missed slot.
	cfg, err = repo.LoadConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 25, 3, 0, 0, 0, time.UTC),
		cfg.Profile(entities.ScopeBackups).Meta.NextRunAt.UTC())
}

func TestSchedulerIgnoresStaleNextRunWhenDisabled(t *testing.T) {
	// A leftover next-run stamp with the time-based rule switched off,
	// e.g. after a hand-edited config, must neither run nor count as
	// missed.
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 8, 24, 5, 0, 0, 0, time.UTC)}
	scheduler, _, repo := schedulerFixture(t, clock)

	cfg, err := repo.LoadConfig(ctx)
	require.NoError(t, err)
	profile := cfg.Profile(entities.ScopeBackups)
	profile.Rules.TimeBased = timeRule(entities.RepeatDaily, "03:00")
	profile.Rules.TimeBased.Enabled = false
	profile.Meta.NextRunAt = time.Date(2026, 8, 24, 3, 0, 0, 0, time.UTC)
	require.NoError(t, repo.SaveConfig(ctx, cfg))

	scheduler.Tick(ctx)

	history, err := repo.LoadHistory(ctx, entities.ScopeBackups)
	require.NoError(t, err)
	assert.Empty(t, history.Runs)

	missed, err := repo.LoadMissed(ctx, entities.ScopeBackups)
	require.NoError(t, err)
	assert.Empty(t, missed.MissedRuns)
}

func TestSchedulerRunsDueSlot(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 8, 24, 3, 0, 10, 0, time.UTC)}
	scheduler, _, repo := schedulerFixture(t, clock)

	cfg, err := repo.LoadConfig(ctx)
	require.NoError(t, err)
	profile := cfg.Profile(entities.ScopeBackups)
	profile.Rules.TimeBased = timeRule(entities.RepeatDaily, "03:00")
	profile.Meta.NextRunAt = time.Date(2026, 8, 24, 3, 0, 0, 0, time.UTC)
	require.NoError(t, repo.SaveConfig(ctx, cfg))

	scheduler.Tick(ctx)

	history, err := repo.LoadHistory(ctx, entities.ScopeBackups)
	require.NoError(t, err)
	require.Len(t, history.Runs, 1)
	assert.Equal(t, entities.TriggerScheduled, history.Runs[0].Trigger)
	assert.Equal(t, 0, history.Runs[0].DeletedCount)

	missed, err := repo.LoadMissed(ctx, entities.ScopeBackups)
	require.NoError(t, err)
	assert.Empty(t, missed.MissedRuns)

	cfg, err = repo.LoadConfig(ctx)
	require.NoError(t, err)
	meta := cfg.Profile(entities.ScopeBackups).Meta
	assert.Equal(t, time.Date(2026, 8, 24, 3, 0, 0, 0, time.UTC), meta.LastScheduledRunAt.UTC())
	assert.Equal(t, time.Date(2026, 8, 25, 3, 0, 0, 0, time.UTC), meta.NextRunAt.UTC())
}
