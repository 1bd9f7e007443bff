package services

import (
	"fmt"
	"strings"

	"github.com/craftdeck/craftdeck/internal/domain/entities"
	"github.com/craftdeck/craftdeck/internal/domain/errors"
)

// ValidateRuleSet checks a rule set submitted through a save. Unlike
// load-time normalization, saves are rejected with field-level messages
// and never clamped, so a client always sees exactly what was wrong.
func ValidateRuleSet(rules *entities.RuleSet) []*errors.ValidationError {
	var errs []*errors.ValidationError

	add := func(field, format string, args ...interface{}) {
		errs = append(errs, errors.NewValidationError(field, fmt.Sprintf(format, args...)))
	}

	checkRange := func(field string, v, min, max int) {
		if v < min || v > max {
			add(field, "must be between %d and %d, got %d", min, max, v)
		}
	}

	checkRange("age.days", rules.Age.Days, 0, 3650)

	checkRange("count.max_per_category", rules.Count.MaxPerCategory, 0, 100000)
	checkRange("count.session_backups_to_keep", rules.Count.SessionBackupsToKeep, 0, 100000)
	checkRange("count.manual_backups_to_keep", rules.Count.ManualBackupsToKeep, 0, 100000)
	checkRange("count.prerestore_backups_to_keep", rules.Count.PrerestoreBackupsToKeep, 0, 100000)

	checkRange("space.used_trigger_percent", rules.Space.UsedTriggerPercent, 50, 100)
	checkRange("space.hysteresis_percent", rules.Space.HysteresisPercent, 1, 30)
	checkRange("space.cooldown_seconds", rules.Space.CooldownSeconds, 0, 86400)
	if rules.Space.FreeSpaceBelowGB < 0 {
		add("space.free_space_below_gb", "must not be negative, got %d", rules.Space.FreeSpaceBelowGB)
	}

	if _, _, ok := rules.TimeBased.ClockTime(); !ok {
		add("time_based.time_of_backup", "must be a valid HH:MM time, got %q", rules.TimeBased.TimeOfBackup)
	}
	if !rules.TimeBased.RepeatMode.IsValid() {
		add("time_based.repeat_mode", "unknown repeat mode %q", string(rules.TimeBased.RepeatMode))
	}
	if rules.TimeBased.RepeatMode == entities.RepeatWeekly {
		if !validWeekday(rules.TimeBased.WeeklyDay) {
			add("time_based.weekly_day", "unknown day name %q", rules.TimeBased.WeeklyDay)
		}
	}
	if rules.TimeBased.RepeatMode == entities.RepeatMonthly {
		checkRange("time_based.monthly_date", rules.TimeBased.MonthlyDate, 1, 31)
	}
	if rules.TimeBased.RepeatMode == entities.RepeatEveryNDays {
		checkRange("time_based.every_n_days", rules.TimeBased.EveryNDays, 1, 365)
	}

	checkRange("guards.never_delete_newest_n_per_category", rules.Guards.NeverDeleteNewestNPerCategory, 0, 1000)

	checkRange("caps.max_delete_files_absolute", rules.Caps.MaxDeleteFilesAbsolute, 1, 500)
	checkRange("caps.max_delete_percent_eligible", rules.Caps.MaxDeletePercentEligible, 1, 100)
	checkRange("caps.max_delete_min_if_non_empty", rules.Caps.MaxDeleteMinIfNonEmpty, 1, 20)

	return errs
}

func validWeekday(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday":
		return true
	}
	return false
}

// ValidationSummary flattens validation errors into one error suitable
// for wrapping, keeping the individual field messages.
func ValidationSummary(errs []*errors.ValidationError) error {
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Error())
	}
	return fmt.Errorf("%w: %s", errors.ErrInvalidInput, strings.Join(msgs, "; "))
}
