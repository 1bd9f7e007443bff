package services

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/craftdeck/craftdeck/internal/app"
	"github.com/craftdeck/craftdeck/internal/domain/entities"
	"github.com/craftdeck/craftdeck/internal/domain/errors"
	"github.com/craftdeck/craftdeck/internal/domain/repositories"
)

// SlowDeleteBound stops a run from attempting further deletions after a
// single one took this long. One stuck filesystem call must not hang the
// whole cleanup.
const SlowDeleteBound = 10 * time.Second

// Deleter is the filesystem deletion primitive. Implementations report
// per-path errors and never abort a whole batch.
type Deleter interface {
	Delete(path string, isDir bool) error
}

// FSDeleter removes real files and directories.
type FSDeleter struct{}

// Delete removes path; directories are removed recursively.
func (FSDeleter) Delete(path string, isDir bool) error {
	if isDir {
		return os.RemoveAll(path)
	}
	return os.Remove(path)
}

// MaintenanceState is the full per-scope view served to callers: rules,
// bookkeeping, a fresh preview, history, and missed runs.
type MaintenanceState struct {
	Scope     entities.Scope              `json:"scope" yaml:"scope"`
	Rules     entities.RuleSet            `json:"rules" yaml:"rules"`
	Meta      entities.RuleMeta           `json:"meta" yaml:"meta"`
	Preview   *entities.DeletionSelection `json:"preview" yaml:"preview"`
	History   []entities.HistoryRun       `json:"history" yaml:"history"`
	Missed    *entities.MissedRunLog      `json:"missed" yaml:"missed"`
	NextRunAt *time.Time                  `json:"next_run_at" yaml:"next_run_at"`
	Storage   *entities.StorageStats      `json:"storage" yaml:"storage"`
}

// MaintenanceService is the execution orchestrator: it turns rule
// evaluations into real runs, serializes writers per scope, and keeps
// history and bookkeeping consistent.
type MaintenanceService struct {
	repo      repositories.MaintenanceRepository
	scanner   *ScannerService
	rules     *RuleService
	stats     StorageStatsProvider
	statsPath string
	deleter   Deleter
	clock     Clock
	audit     *AuditLogger

	locks map[entities.Scope]*sync.Mutex

	// cfgMu serializes whole-file config mutations. The config file holds
	// every scope's profile, so two load-modify-save cycles interleaving
	// would silently drop one writer's changes.
	cfgMu sync.Mutex
}

// NewMaintenanceService creates a new maintenance service
func NewMaintenanceService(
	repo repositories.MaintenanceRepository,
	scanner *ScannerService,
	rules *RuleService,
	stats StorageStatsProvider,
	statsPath string,
	deleter Deleter,
	clock Clock,
	audit *AuditLogger,
) *MaintenanceService {
	locks := map[entities.Scope]*sync.Mutex{}
	for _, scope := range entities.Scopes {
		locks[scope] = &sync.Mutex{}
	}

	return &MaintenanceService{
		repo:      repo,
		scanner:   scanner,
		rules:     rules,
		stats:     stats,
		statsPath: statsPath,
		deleter:   deleter,
		clock:     clock,
		audit:     audit,
		locks:     locks,
	}
}

// mutateConfig reloads the config under the config mutex, applies fn,
// and saves. All config writers go through here so concurrent mutations
// of different scopes never overwrite each other.
func (s *MaintenanceService) mutateConfig(ctx context.Context, fn func(cfg *entities.MaintenanceConfig) error) error {
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()

	cfg, err := s.repo.LoadConfig(ctx)
	if err != nil {
		return err
	}
	if err := fn(cfg); err != nil {
		return err
	}
	return s.repo.SaveConfig(ctx, cfg)
}

func (s *MaintenanceService) storageStats() *entities.StorageStats {
	if s.stats == nil {
		return nil
	}
	stats, err := s.stats.Stats(s.statsPath)
	if err != nil {
		return nil
	}
	return stats
}

// GetState returns the scope's rules, a fresh dry-run preview, recent
// history, missed runs, and the next scheduled trigger.
func (s *MaintenanceService) GetState(ctx context.Context, scope entities.Scope) (*MaintenanceState, error) {
	if !scope.IsValid() {
		return nil, errors.New("MaintenanceService.GetState", "scope", errors.ErrScopeInvalid)
	}

	cfg, err := s.repo.LoadConfig(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "MaintenanceService.GetState", "load_config")
	}
	profile := cfg.Profile(scope)

	preview, _, err := s.evaluate(ctx, scope, profile, entities.RunModeRule, entities.TriggerPreview, true, "", nil, false)
	if err != nil {
		return nil, err
	}

	history, err := s.repo.LoadHistory(ctx, scope)
	if err != nil {
		return nil, errors.Wrap(err, "MaintenanceService.GetState", "load_history")
	}
	missed, err := s.repo.LoadMissed(ctx, scope)
	if err != nil {
		return nil, errors.Wrap(err, "MaintenanceService.GetState", "load_missed")
	}

	state := &MaintenanceState{
		Scope:   scope,
		Rules:   profile.Rules,
		Meta:    profile.Meta,
		Preview: preview,
		History: history.NewestFirst(app.DefaultHistoryLimit),
		Missed:  missed,
		Storage: s.storageStats(),
	}
	if !profile.Meta.NextRunAt.IsZero() {
		next := profile.Meta.NextRunAt
		state.NextRunAt = &next
	}
	return state, nil
}

// SaveRules validates and persists a scope's rule set, bumps both
// versions, stamps the change, recomputes the schedule anchor and next
// run, and returns the refreshed state. Validation failures reject the
// save with field-level messages; nothing is clamped and nothing is
// persisted.
func (s *MaintenanceService) SaveRules(ctx context.Context, scope entities.Scope, rules entities.RuleSet, actor string) (*MaintenanceState, []*errors.ValidationError, error) {
	if !scope.IsValid() {
		return nil, nil, errors.New("MaintenanceService.SaveRules", "scope", errors.ErrScopeInvalid)
	}

	rules.ApplyScopeCategories(scope)
	if verrs := ValidateRuleSet(&rules); len(verrs) > 0 {
		return nil, verrs, ValidationSummary(verrs)
	}

	now := s.clock.Now()
	err := s.mutateConfig(ctx, func(cfg *entities.MaintenanceConfig) error {
		profile := cfg.Profile(scope)
		profile.Rules = rules
		profile.Meta.RuleVersion++
		profile.Meta.ScheduleVersion++
		profile.Meta.LastChangedBy = actor
		profile.Meta.LastChangedAt = now
		profile.Meta.AnchorDate = now.Format("2006-01-02")
		profile.Meta.LastScheduledRunAt = time.Time{}
		if next := NextRunAt(rules.TimeBased, profile.Meta, now); next != nil {
			profile.Meta.NextRunAt = *next
		} else {
			profile.Meta.NextRunAt = time.Time{}
		}
		return nil
	})
	if err != nil {
		// Failed saves never surface a bumped version; the in-memory copy
		// is discarded with the request.
		s.audit.LogSave(scope, actor, err)
		return nil, nil, errors.Wrap(err, "MaintenanceService.SaveRules", "save_config")
	}
	s.audit.LogSave(scope, actor, nil)

	state, err := s.GetState(ctx, scope)
	if err != nil {
		return nil, nil, err
	}
	return state, nil, nil
}

// Preview evaluates the scope without any side effects. An optional
// transient rule-set override supports edit-time previews.
func (s *MaintenanceService) Preview(ctx context.Context, scope entities.Scope, override *entities.RuleSet) (*entities.DeletionSelection, error) {
	if !scope.IsValid() {
		return nil, errors.New("MaintenanceService.Preview", "scope", errors.ErrScopeInvalid)
	}

	cfg, err := s.repo.LoadConfig(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "MaintenanceService.Preview", "load_config")
	}
	profile := cfg.Profile(scope)
	if override != nil {
		tmp := *profile
		rules := *override
		rules.ApplyScopeCategories(scope)
		rules.Normalize()
		tmp.Rules = rules
		profile = &tmp
	}

	selection, _, err := s.evaluate(ctx, scope, profile, entities.RunModeRule, entities.TriggerPreview, true, "", nil, false)
	return selection, err
}

// RunRules executes (or previews) a rule-driven cleanup. ruleKey may
// restrict the run to a single gate. Real runs take the scope lock and
// fail fast with a busy condition when one is already in flight.
func (s *MaintenanceService) RunRules(ctx context.Context, scope entities.Scope, dryRun bool, ruleKey, actor string) (*entities.DeletionSelection, error) {
	return s.run(ctx, scope, entities.RunModeRule, entities.TriggerManualRule, dryRun, ruleKey, nil, actor, time.Time{})
}

// ManualDelete deletes exactly the operator's selected paths. Ineligible
// selections are reported and block a real run.
func (s *MaintenanceService) ManualDelete(ctx context.Context, scope entities.Scope, paths []string, dryRun bool, actor string) (*entities.DeletionSelection, error) {
	return s.run(ctx, scope, entities.RunModeManual, entities.TriggerManualSelection, dryRun, "", paths, actor, time.Time{})
}

// RunScheduled executes a rule run for a due schedule slot and advances
// the persisted schedule state.
func (s *MaintenanceService) RunScheduled(ctx context.Context, scope entities.Scope, scheduledFor time.Time) (*entities.DeletionSelection, error) {
	return s.run(ctx, scope, entities.RunModeRule, entities.TriggerScheduled, false, "", nil, "scheduler", scheduledFor)
}

// RunSpacePressure executes a space-triggered rule run.
func (s *MaintenanceService) RunSpacePressure(ctx context.Context, scope entities.Scope) (*entities.DeletionSelection, error) {
	return s.run(ctx, scope, entities.RunModeRule, entities.TriggerSpacePressure, false, RuleKeySpace, nil, "scheduler", time.Time{})
}

func (s *MaintenanceService) run(ctx context.Context, scope entities.Scope, mode entities.RunMode, trigger string, dryRun bool, ruleKey string, paths []string, actor string, scheduledFor time.Time) (*entities.DeletionSelection, error) {
	if !scope.IsValid() {
		return nil, errors.New("MaintenanceService.run", "scope", errors.ErrScopeInvalid)
	}

	cfg, err := s.repo.LoadConfig(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "MaintenanceService.run", "load_config")
	}
	profile := cfg.Profile(scope)

	if mode == entities.RunModeRule && !dryRun && !profile.Rules.Enabled {
		return nil, errors.New("MaintenanceService.run", "disabled", errors.ErrRulesDisabled)
	}

	if dryRun {
		selection, _, err := s.evaluate(ctx, scope, profile, mode, trigger, true, ruleKey, paths, false)
		return selection, err
	}

	lock := s.locks[scope]
	if !lock.TryLock() {
		return nil, errors.New("MaintenanceService.run", "busy", errors.ErrRunInProgress)
	}
	defer lock.Unlock()

	selection, targets, err := s.evaluate(ctx, scope, profile, mode, trigger, false, ruleKey, paths, true)
	if err != nil {
		return nil, err
	}

	if mode == entities.RunModeManual && manualSelectionBlocked(selection) {
		return selection, errors.New("MaintenanceService.run", "ineligible", errors.ErrIneligibleSelection)
	}

	s.deleteTargets(selection, targets)

	now := s.clock.Now()
	run := entities.HistoryRun{
		At:             now,
		Trigger:        trigger,
		Mode:           mode,
		DryRun:         false,
		DeletedCount:   selection.DeletedCount,
		ErrorsCount:    len(selection.Errors),
		RequestedCount: selection.RequestedDeleteCount,
		CappedCount:    selection.CappedDeleteCount,
		Result:         selection.Result(),
		Details:        fmt.Sprintf("deleted %d of %d candidates (%d bytes)", selection.DeletedCount, selection.RequestedDeleteCount, selection.DeletedBytes),
		Scope:          scope,
	}
	if err := s.repo.AppendRun(ctx, scope, run); err != nil {
		selection.Errors = append(selection.Errors, fmt.Sprintf("record history: %v", err))
	}

	if err := s.mutateConfig(ctx, func(cfg *entities.MaintenanceConfig) error {
		p := cfg.Profile(scope)
		p.Meta.LastRunAt = now
		p.Meta.LastRunTrigger = trigger
		p.Meta.LastRunResult = selection.Result()
		p.Meta.LastRunDeleted = selection.DeletedCount
		p.Meta.LastRunErrors = len(selection.Errors)
		// The evaluator consumed the space trigger on the snapshot; carry
		// that bookkeeping into the fresh copy.
		p.Meta.SpaceTriggerArmed = profile.Meta.SpaceTriggerArmed
		p.Meta.CooldownUntil = profile.Meta.CooldownUntil

		if trigger == entities.TriggerScheduled && !scheduledFor.IsZero() {
			p.Meta.LastScheduledRunAt = scheduledFor
			if next := NextRunAt(p.Rules.TimeBased, p.Meta, now); next != nil {
				p.Meta.NextRunAt = *next
			} else {
				p.Meta.NextRunAt = time.Time{}
			}
		}
		return nil
	}); err != nil {
		selection.Errors = append(selection.Errors, fmt.Sprintf("persist state: %v", err))
	}

	s.audit.LogRun(selection, actor, nil)
	return selection, nil
}

// manualSelectionBlocked reports whether a manual selection contains
// paths excluded by an eligibility check. Cap overflow is an expected,
// reported outcome: the capped subset is still deleted, the remainder is
// listed as "capped". Only genuinely ineligible or unknown paths block
// the run.
func manualSelectionBlocked(selection *entities.DeletionSelection) bool {
	capOverflow := selection.RequestedDeleteCount - selection.CappedDeleteCount
	return len(selection.SelectedIneligible) > capOverflow
}

// deleteTargets applies the selection, tolerating per-item failures. A
// single deletion exceeding the wall-clock bound stops further attempts.
func (s *MaintenanceService) deleteTargets(selection *entities.DeletionSelection, targets []entities.Artifact) {
	for i := range targets {
		target := &targets[i]

		started := time.Now()
		if err := s.deleter.Delete(target.Path, target.IsDir); err != nil {
			selection.Errors = append(selection.Errors, fmt.Sprintf("delete %s: %v", target.Path, err))
		} else {
			selection.DeletedCount++
			selection.DeletedBytes += target.SizeBytes
		}

		if time.Since(started) > SlowDeleteBound {
			selection.Errors = append(selection.Errors, fmt.Sprintf("delete %s exceeded %s, stopping run", target.Path, SlowDeleteBound))
			break
		}
	}
}

// RecordMissed appends a missed-run record for a schedule slot and
// advances the next-run pointer so the same slot is recorded exactly
// once.
func (s *MaintenanceService) RecordMissed(ctx context.Context, scope entities.Scope, at time.Time, reason string) error {
	missed := entities.MissedRun{
		At:         at,
		Reason:     reason,
		ScheduleID: fmt.Sprintf("%s@%s", scope, at.Format(time.RFC3339)),
		Scope:      scope,
	}
	if err := s.repo.AppendMissed(ctx, scope, missed); err != nil {
		return errors.Wrap(err, "MaintenanceService.RecordMissed", "append")
	}

	now := s.clock.Now()
	err := s.mutateConfig(ctx, func(cfg *entities.MaintenanceConfig) error {
		profile := cfg.Profile(scope)
		profile.Meta.LastScheduledRunAt = at
		if next := NextRunAt(profile.Rules.TimeBased, profile.Meta, now); next != nil {
			profile.Meta.NextRunAt = *next
		} else {
			profile.Meta.NextRunAt = time.Time{}
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "MaintenanceService.RecordMissed", "save_config")
	}
	return nil
}

// History lists the scope's run history, newest first.
func (s *MaintenanceService) History(ctx context.Context, scope entities.Scope, limit int) ([]entities.HistoryRun, error) {
	if !scope.IsValid() {
		return nil, errors.New("MaintenanceService.History", "scope", errors.ErrScopeInvalid)
	}
	history, err := s.repo.LoadHistory(ctx, scope)
	if err != nil {
		return nil, errors.Wrap(err, "MaintenanceService.History", "load")
	}
	return history.NewestFirst(limit), nil
}

// AcknowledgeMissed clears the scope's missed runs, recording who
// acknowledged and when.
func (s *MaintenanceService) AcknowledgeMissed(ctx context.Context, scope entities.Scope, actor string) (*entities.MissedRunLog, error) {
	if !scope.IsValid() {
		return nil, errors.New("MaintenanceService.AcknowledgeMissed", "scope", errors.ErrScopeInvalid)
	}

	log, err := s.repo.AcknowledgeMissed(ctx, scope, actor, s.clock.Now())
	s.audit.LogAcknowledge(scope, actor, err)
	if err != nil {
		return nil, err
	}
	return log, nil
}

// evaluate performs one scan plus one evaluation. apply marks a real run
// so the space-trigger bookkeeping is consumed; previews leave it alone.
func (s *MaintenanceService) evaluate(ctx context.Context, scope entities.Scope, profile *entities.ScopeProfile, mode entities.RunMode, trigger string, dryRun bool, ruleKey string, paths []string, apply bool) (*entities.DeletionSelection, []entities.Artifact, error) {
	artifacts, scanErrs := s.scanner.Scan(ctx, scope, &profile.Rules)

	selection, targets := s.rules.Evaluate(EvaluationInput{
		Scope:         scope,
		Mode:          mode,
		Trigger:       trigger,
		DryRun:        dryRun,
		Rules:         &profile.Rules,
		Meta:          &profile.Meta,
		Artifacts:     artifacts,
		Stats:         s.storageStats(),
		Now:           s.clock.Now(),
		ScanErrors:    scanErrs,
		SelectedPaths: paths,
		RuleKey:       ruleKey,
		Apply:         apply,
	})
	return selection, targets, nil
}
