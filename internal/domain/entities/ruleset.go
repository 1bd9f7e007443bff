package entities

import (
	"strings"
	"time"
)

// RepeatMode selects how a time-based rule recurs.
type RepeatMode string

const (
	RepeatDoesNotRepeat RepeatMode = "does_not_repeat"
	RepeatDaily         RepeatMode = "daily"
	RepeatWeekly        RepeatMode = "weekly"
	RepeatMonthly       RepeatMode = "monthly"
	RepeatWeekdays      RepeatMode = "weekdays"
	RepeatEveryNDays    RepeatMode = "every_n_days"
)

// RepeatModes lists all valid repeat modes.
var RepeatModes = []RepeatMode{
	RepeatDoesNotRepeat,
	RepeatDaily,
	RepeatWeekly,
	RepeatMonthly,
	RepeatWeekdays,
	RepeatEveryNDays,
}

// IsValid reports whether m is a known repeat mode.
func (m RepeatMode) IsValid() bool {
	for _, known := range RepeatModes {
		if m == known {
			return true
		}
	}
	return false
}

// CategoryToggles enables or disables whole artifact categories. The
// toggles are forced per scope: the backups scope only ever touches backup
// archives, the stale-worlds scope only retired worlds.
type CategoryToggles struct {
	BackupZip     bool `yaml:"backup_zip" json:"backup_zip"`
	StaleWorldDir bool `yaml:"stale_world_dir" json:"stale_world_dir"`
	OldWorldZip   bool `yaml:"old_world_zip" json:"old_world_zip"`
}

// Enabled reports whether the given category is switched on.
func (c CategoryToggles) Enabled(cat Category) bool {
	switch cat {
	case CategoryBackupZip:
		return c.BackupZip
	case CategoryStaleWorldDir:
		return c.StaleWorldDir
	case CategoryOldWorldZip:
		return c.OldWorldZip
	default:
		return false
	}
}

// AgeRule makes artifacts eligible once they are older than Days.
type AgeRule struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	Days    int  `yaml:"days" json:"days"`
}

// CountRule keeps the newest N artifacts per category; anything beyond the
// keep-count is eligible, oldest first. Backup archives use per-bucket
// keep-counts, everything else falls back to MaxPerCategory.
type CountRule struct {
	Enabled                 bool `yaml:"enabled" json:"enabled"`
	MaxPerCategory          int  `yaml:"max_per_category" json:"max_per_category"`
	SessionBackupsToKeep    int  `yaml:"session_backups_to_keep" json:"session_backups_to_keep"`
	ManualBackupsToKeep     int  `yaml:"manual_backups_to_keep" json:"manual_backups_to_keep"`
	PrerestoreBackupsToKeep int  `yaml:"prerestore_backups_to_keep" json:"prerestore_backups_to_keep"`
}

// KeepFor returns the keep-count applying to the given backup bucket.
func (c CountRule) KeepFor(bucket BackupBucket) int {
	switch bucket {
	case BucketSession:
		return c.SessionBackupsToKeep
	case BucketManual:
		return c.ManualBackupsToKeep
	case BucketPreRestore:
		return c.PrerestoreBackupsToKeep
	default:
		return c.MaxPerCategory
	}
}

// SpaceRule activates space-pressure deletion once disk usage crosses
// UsedTriggerPercent. Hysteresis re-arms the trigger only after usage has
// fallen back below trigger-hysteresis, and CooldownSeconds blocks
// immediate re-triggering after a space-driven run.
type SpaceRule struct {
	Enabled            bool `yaml:"enabled" json:"enabled"`
	UsedTriggerPercent int  `yaml:"used_trigger_percent" json:"used_trigger_percent"`
	TargetFreePercent  int  `yaml:"target_free_percent" json:"target_free_percent"`
	HysteresisPercent  int  `yaml:"hysteresis_percent" json:"hysteresis_percent"`
	CooldownSeconds    int  `yaml:"cooldown_seconds" json:"cooldown_seconds"`
	FreeSpaceBelowGB   int  `yaml:"free_space_below_gb" json:"free_space_below_gb"`
}

// TimeRule describes the scope's time-based schedule.
type TimeRule struct {
	Enabled      bool       `yaml:"enabled" json:"enabled"`
	TimeOfBackup string     `yaml:"time_of_backup" json:"time_of_backup"`
	RepeatMode   RepeatMode `yaml:"repeat_mode" json:"repeat_mode"`
	WeeklyDay    string     `yaml:"weekly_day" json:"weekly_day"`
	MonthlyDate  int        `yaml:"monthly_date" json:"monthly_date"`
	EveryNDays   int        `yaml:"every_n_days" json:"every_n_days"`
}

// weekdayNames maps the persisted day names onto time.Weekday.
var weekdayNames = map[string]time.Weekday{
	"Sunday":    time.Sunday,
	"Monday":    time.Monday,
	"Tuesday":   time.Tuesday,
	"Wednesday": time.Wednesday,
	"Thursday":  time.Thursday,
	"Friday":    time.Friday,
	"Saturday":  time.Saturday,
}

// Weekday resolves WeeklyDay, defaulting to Sunday for unknown values.
func (t TimeRule) Weekday() time.Weekday {
	if day, ok := weekdayNames[normalizeWeekday(t.WeeklyDay)]; ok {
		return day
	}
	return time.Sunday
}

func normalizeWeekday(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	return strings.ToUpper(trimmed[:1]) + strings.ToLower(trimmed[1:])
}

// ClockTime parses TimeOfBackup into hour and minute. ok is false when the
// value is not a valid HH:MM string.
func (t TimeRule) ClockTime() (hour, minute int, ok bool) {
	parsed, err := time.Parse("15:04", strings.TrimSpace(t.TimeOfBackup))
	if err != nil {
		return 0, 0, false
	}
	return parsed.Hour(), parsed.Minute(), true
}

// GuardRule holds the hard safety floor under every other rule: the newest
// N artifacts per category and the newest artifact overall are never
// deleted, and the active world directory is untouchable.
type GuardRule struct {
	NeverDeleteNewestNPerCategory int  `yaml:"never_delete_newest_n_per_category" json:"never_delete_newest_n_per_category"`
	NeverDeleteLastBackupOverall  bool `yaml:"never_delete_last_backup_overall" json:"never_delete_last_backup_overall"`
	ProtectActiveWorld            bool `yaml:"protect_active_world" json:"protect_active_world"`
}

// CapRule bounds how much one run may delete.
type CapRule struct {
	MaxDeleteFilesAbsolute   int `yaml:"max_delete_files_absolute" json:"max_delete_files_absolute"`
	MaxDeletePercentEligible int `yaml:"max_delete_percent_eligible" json:"max_delete_percent_eligible"`
	MaxDeleteMinIfNonEmpty   int `yaml:"max_delete_min_if_non_empty" json:"max_delete_min_if_non_empty"`
}

// RuleSet is the versioned retention configuration of one scope.
type RuleSet struct {
	Enabled    bool            `yaml:"enabled" json:"enabled"`
	Categories CategoryToggles `yaml:"categories" json:"categories"`
	Age        AgeRule         `yaml:"age" json:"age"`
	Count      CountRule       `yaml:"count" json:"count"`
	Space      SpaceRule       `yaml:"space" json:"space"`
	TimeBased  TimeRule        `yaml:"time_based" json:"time_based"`
	Guards     GuardRule       `yaml:"guards" json:"guards"`
	Caps       CapRule         `yaml:"caps" json:"caps"`
}

// DefaultRuleSet returns the documented defaults applied on first access
// and wherever loaded values are missing or unusable.
func DefaultRuleSet() RuleSet {
	return RuleSet{
		Enabled: true,
		Categories: CategoryToggles{
			BackupZip:     true,
			StaleWorldDir: true,
			OldWorldZip:   true,
		},
		Age: AgeRule{Enabled: true, Days: 7},
		Count: CountRule{
			Enabled:                 true,
			MaxPerCategory:          30,
			SessionBackupsToKeep:    30,
			ManualBackupsToKeep:     30,
			PrerestoreBackupsToKeep: 30,
		},
		Space: SpaceRule{
			Enabled:            true,
			UsedTriggerPercent: 80,
			TargetFreePercent:  20,
			HysteresisPercent:  5,
			CooldownSeconds:    600,
			FreeSpaceBelowGB:   0,
		},
		TimeBased: TimeRule{
			Enabled:      false,
			TimeOfBackup: "03:00",
			RepeatMode:   RepeatDoesNotRepeat,
			WeeklyDay:    "Sunday",
			MonthlyDate:  1,
			EveryNDays:   1,
		},
		Guards: GuardRule{
			NeverDeleteNewestNPerCategory: 1,
			NeverDeleteLastBackupOverall:  true,
			ProtectActiveWorld:            true,
		},
		Caps: CapRule{
			MaxDeleteFilesAbsolute:   5,
			MaxDeletePercentEligible: 10,
			MaxDeleteMinIfNonEmpty:   1,
		},
	}
}

// ApplyScopeCategories forces the hard category split by scope. The split
// keeps the two retention domains from ever touching each other's files.
func (r *RuleSet) ApplyScopeCategories(scope Scope) {
	if scope == ScopeStaleWorlds {
		r.Categories = CategoryToggles{BackupZip: false, StaleWorldDir: true, OldWorldZip: true}
		return
	}
	r.Categories = CategoryToggles{BackupZip: true, StaleWorldDir: false, OldWorldZip: false}
}

// clampInt bounds v into [min, max].
func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// Normalize clamps every numeric field into its documented range and
// substitutes defaults for unusable values. It runs exactly once, at load
// time; saves go through validation instead and are rejected rather than
// clamped.
func (r *RuleSet) Normalize() {
	def := DefaultRuleSet()

	r.Age.Days = clampInt(r.Age.Days, 0, 3650)

	r.Count.SessionBackupsToKeep = clampInt(r.Count.SessionBackupsToKeep, 0, 100000)
	r.Count.ManualBackupsToKeep = clampInt(r.Count.ManualBackupsToKeep, 0, 100000)
	r.Count.PrerestoreBackupsToKeep = clampInt(r.Count.PrerestoreBackupsToKeep, 0, 100000)
	maxPer := clampInt(r.Count.MaxPerCategory, 0, 100000)
	for _, keep := range []int{r.Count.SessionBackupsToKeep, r.Count.ManualBackupsToKeep, r.Count.PrerestoreBackupsToKeep} {
		if keep > maxPer {
			maxPer = keep
		}
	}
	r.Count.MaxPerCategory = maxPer

	r.Space.UsedTriggerPercent = clampInt(r.Space.UsedTriggerPercent, 50, 100)
	r.Space.HysteresisPercent = clampInt(r.Space.HysteresisPercent, 1, 30)
	r.Space.CooldownSeconds = clampInt(r.Space.CooldownSeconds, 0, 86400)
	r.Space.FreeSpaceBelowGB = clampInt(r.Space.FreeSpaceBelowGB, 0, 1000000)
	r.Space.TargetFreePercent = clampInt(100-r.Space.UsedTriggerPercent, 0, 50)

	if _, _, ok := r.TimeBased.ClockTime(); !ok {
		r.TimeBased.TimeOfBackup = def.TimeBased.TimeOfBackup
	}
	if !r.TimeBased.RepeatMode.IsValid() {
		r.TimeBased.RepeatMode = RepeatDoesNotRepeat
	}
	if _, ok := weekdayNames[normalizeWeekday(r.TimeBased.WeeklyDay)]; !ok {
		r.TimeBased.WeeklyDay = def.TimeBased.WeeklyDay
	} else {
		r.TimeBased.WeeklyDay = normalizeWeekday(r.TimeBased.WeeklyDay)
	}
	r.TimeBased.MonthlyDate = clampInt(r.TimeBased.MonthlyDate, 1, 31)
	r.TimeBased.EveryNDays = clampInt(r.TimeBased.EveryNDays, 1, 365)

	r.Guards.NeverDeleteNewestNPerCategory = clampInt(r.Guards.NeverDeleteNewestNPerCategory, 0, 1000)

	r.Caps.MaxDeleteFilesAbsolute = clampInt(r.Caps.MaxDeleteFilesAbsolute, 1, 500)
	r.Caps.MaxDeletePercentEligible = clampInt(r.Caps.MaxDeletePercentEligible, 1, 100)
	r.Caps.MaxDeleteMinIfNonEmpty = clampInt(r.Caps.MaxDeleteMinIfNonEmpty, 1, 20)
}

// RuleMeta carries per-scope bookkeeping: configuration versions, last-run
// results, and the explicit scheduler/space-trigger state that used to
// live in process globals in earlier panel generations.
type RuleMeta struct {
	RuleVersion     int       `yaml:"rule_version" json:"rule_version"`
	ScheduleVersion int       `yaml:"schedule_version" json:"schedule_version"`
	LastChangedBy   string    `yaml:"last_changed_by" json:"last_changed_by"`
	LastChangedAt   time.Time `yaml:"last_changed_at" json:"last_changed_at"`

	LastRunAt      time.Time `yaml:"last_run_at" json:"last_run_at"`
	LastRunTrigger string    `yaml:"last_run_trigger" json:"last_run_trigger"`
	LastRunResult  RunResult `yaml:"last_run_result" json:"last_run_result"`
	LastRunDeleted int       `yaml:"last_run_deleted" json:"last_run_deleted"`
	LastRunErrors  int       `yaml:"last_run_errors" json:"last_run_errors"`

	// Space-trigger state: the trigger fires once per pressure episode and
	// re-arms only after usage drops below trigger-hysteresis.
	SpaceTriggerArmed bool  `yaml:"space_trigger_armed" json:"space_trigger_armed"`
	CooldownUntil     int64 `yaml:"cooldown_until_unix" json:"cooldown_until_unix"`

	// Scheduler state, persisted so downtime across a scheduled slot is
	// detectable after restart.
	LastSchedulerTick  int64     `yaml:"last_scheduler_tick" json:"last_scheduler_tick"`
	LastScheduledRunAt time.Time `yaml:"last_scheduled_run_at" json:"last_scheduled_run_at"`
	NextRunAt          time.Time `yaml:"next_run_at" json:"next_run_at"`

	// AnchorDate (YYYY-MM-DD) fixes the every_n_days cadence at save time
	// so missed runs never shift it.
	AnchorDate string `yaml:"anchor_date" json:"anchor_date"`
}

// DefaultRuleMeta returns the initial bookkeeping for a fresh scope.
func DefaultRuleMeta() RuleMeta {
	return RuleMeta{
		RuleVersion:       1,
		ScheduleVersion:   1,
		SpaceTriggerArmed: true,
	}
}

// ScopeProfile bundles one scope's rules and bookkeeping.
type ScopeProfile struct {
	Rules RuleSet  `yaml:"rules" json:"rules"`
	Meta  RuleMeta `yaml:"meta" json:"meta"`
}

// MaintenanceConfigSchemaVersion identifies the persisted config shape.
const MaintenanceConfigSchemaVersion = 1

// MaintenanceConfig is the root persisted maintenance configuration.
type MaintenanceConfig struct {
	SchemaVersion int                     `yaml:"schema_version" json:"schema_version"`
	Scopes        map[Scope]*ScopeProfile `yaml:"scopes" json:"scopes"`
}

// DefaultMaintenanceConfig builds a config with default profiles for every
// scope.
func DefaultMaintenanceConfig() *MaintenanceConfig {
	cfg := &MaintenanceConfig{
		SchemaVersion: MaintenanceConfigSchemaVersion,
		Scopes:        map[Scope]*ScopeProfile{},
	}
	for _, scope := range Scopes {
		cfg.Profile(scope)
	}
	return cfg
}

// Profile returns the mutable profile for a scope, creating it with
// defaults on first access. Category toggles are always re-forced to the
// scope's split.
func (c *MaintenanceConfig) Profile(scope Scope) *ScopeProfile {
	scope = NormalizeScope(string(scope))
	if c.Scopes == nil {
		c.Scopes = map[Scope]*ScopeProfile{}
	}
	profile, ok := c.Scopes[scope]
	if !ok || profile == nil {
		profile = &ScopeProfile{Rules: DefaultRuleSet(), Meta: DefaultRuleMeta()}
		c.Scopes[scope] = profile
	}
	profile.Rules.ApplyScopeCategories(scope)
	return profile
}

// Normalize clamps every profile once at load time.
func (c *MaintenanceConfig) Normalize() {
	c.SchemaVersion = MaintenanceConfigSchemaVersion
	for _, scope := range Scopes {
		profile := c.Profile(scope)
		profile.Rules.Normalize()
	}
}
