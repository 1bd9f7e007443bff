package services

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/craftdeck/craftdeck/internal/domain/entities"
	"github.com/craftdeck/craftdeck/internal/domain/errors"
)

func TestValidateRuleSetAcceptsDefaults(t *testing.T) {
	rules := entities.DefaultRuleSet()
	assert.Empty(t, ValidateRuleSet(&rules))
}

func TestValidateRuleSetReportsEveryBadField(t *testing.T) {
	rules := entities.DefaultRuleSet()
	rules.Age.Days = 9999
	rules.Space.UsedTriggerPercent = 101
	rules.Space.HysteresisPercent = 0
	rules.Caps.MaxDeleteFilesAbsolute = 0
	rules.TimeBased.TimeOfBackup = "26:00"

	verrs := ValidateRuleSet(&rules)
	require.Len(t, verrs, 5)

	fields := map[string]bool{}
	for _, v := range verrs {
		fields[v.Field] = true
	}
	assert.True(t, fields["age.days"])
	assert.True(t, fields["space.used_trigger_percent"])
	assert.True(t, fields["space.hysteresis_percent"])
	assert.True(t, fields["caps.max_delete_files_absolute"])
	assert.True(t, fields["time_based.time_of_backup"])
}

func TestValidateRuleSetConditionalScheduleFields(t *testing.T) {
	rules := entities.DefaultRuleSet()
	rules.TimeBased.RepeatMode = entities.RepeatWeekly
	rules.TimeBased.WeeklyDay = "Someday"

	verrs := ValidateRuleSet(&rules)
	require.Len(t, verrs, 1)
	assert.Equal(t, "time_based.weekly_day", verrs[0].Field)

	// The same bad day is irrelevant under a daily schedule.
	rules.TimeBased.RepeatMode = entities.RepeatDaily
	assert.Empty(t, ValidateRuleSet(&rules))

	rules.TimeBased.RepeatMode = entities.RepeatMonthly
	rules.TimeBased.MonthlyDate = 0
	verrs = ValidateRuleSet(&rules)
	require.Len(t, verrs, 1)
	assert.Equal(t, "time_based.monthly_date", verrs[0].Field)
}

func TestValidationSummaryWrapsInvalidInput(t *testing.T) {
	rules := entities.DefaultRuleSet()
	rules.Age.Days = -1

	err := ValidationSummary(ValidateRuleSet(&rules))
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrInvalidInput))
	assert.Contains(t, err.Error(), "age.days")

	assert.NoError(t, ValidationSummary(nil))
}
