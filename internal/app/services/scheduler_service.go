package services

import (
	"context"
	stderrors "errors"
	"log"
	"sync"
	"time"

	"github.com/craftdeck/craftdeck/internal/app"
	"github.com/craftdeck/craftdeck/internal/domain/entities"
	"github.com/craftdeck/craftdeck/internal/domain/errors"
	"github.com/craftdeck/craftdeck/internal/domain/repositories"
)

// NextRunAt computes the next trigger time for a time-based rule, or nil
// when the rule is disabled, unparsable, or a one-shot that already
// elapsed. The calculation is pure: it depends only on the rule, the
// persisted meta, and now.
func NextRunAt(rule entities.TimeRule, meta entities.RuleMeta, now time.Time) *time.Time {
	if !rule.Enabled {
		return nil
	}
	hour, minute, ok := rule.ClockTime()
	if !ok {
		return nil
	}

	at := func(day time.Time) time.Time {
		return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, now.Location())
	}

	switch rule.RepeatMode {
	case entities.RepeatDoesNotRepeat:
		candidate := at(now)
		if candidate.After(now) {
			return &candidate
		}
		return nil

	case entities.RepeatDaily:
		candidate := at(now)
		if !candidate.After(now) {
			candidate = at(now.AddDate(0, 0, 1))
		}
		return &candidate

	case entities.RepeatWeekly:
		target := rule.Weekday()
		ahead := (int(target) - int(now.Weekday()) + 7) % 7
		candidate := at(now.AddDate(0, 0, ahead))
		if !candidate.After(now) {
			candidate = at(now.AddDate(0, 0, ahead+7))
		}
		return &candidate

	case entities.RepeatMonthly:
		candidate := monthlyOccurrence(now.Year(), now.Month(), rule.MonthlyDate, hour, minute, now.Location())
		if !candidate.After(now) {
			// Advance from the first of the month, not from now: AddDate on
			// a day-31 value normalizes past short months and would skip
			// February's clamped slot entirely.
			first := time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, now.Location())
			candidate = monthlyOccurrence(first.Year(), first.Month(), rule.MonthlyDate, hour, minute, now.Location())
		}
		return &candidate

	case entities.RepeatWeekdays:
		candidate := at(now)
		if !candidate.After(now) {
			candidate = at(now.AddDate(0, 0, 1))
		}
		for candidate.Weekday() == time.Saturday || candidate.Weekday() == time.Sunday {
			candidate = at(candidate.AddDate(0, 0, 1))
		}
		return &candidate

	case entities.RepeatEveryNDays:
		n := rule.EveryNDays
		if n < 1 {
			n = 1
		}
		anchor := anchorDay(meta.AnchorDate, now)
		candidate := at(anchor)
		if !candidate.After(now) {
			// Jump to the cadence day containing now, then step until the
			// candidate is in the future. The anchor is fixed at save time
			// so missed runs never shift the cadence.
			elapsed := int(now.Sub(at(anchor)).Hours() / 24)
			steps := elapsed / n
			candidate = at(anchor.AddDate(0, 0, steps*n))
			for !candidate.After(now) {
				candidate = at(candidate.AddDate(0, 0, n))
			}
		}
		return &candidate
	}

	return nil
}

// monthlyOccurrence clamps the configured date to the last day of short
// months.
func monthlyOccurrence(year int, month time.Month, date, hour, minute int, loc *time.Location) time.Time {
	lastDay := time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
	if date > lastDay {
		date = lastDay
	}
	if date < 1 {
		date = 1
	}
	return time.Date(year, month, date, hour, minute, 0, 0, loc)
}

func anchorDay(anchorDate string, now time.Time) time.Time {
	if anchorDate != "" {
		if parsed, err := time.ParseInLocation("2006-01-02", anchorDate, now.Location()); err == nil {
			return parsed
		}
	}
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

// SchedulerService polls the per-scope schedules, runs due slots through
// the orchestrator, records missed slots, and fires space-pressure runs.
// All schedule state lives in the persisted RuleMeta, never in process
// globals, so a restart picks up exactly where the last tick left off.
type SchedulerService struct {
	maintenance *MaintenanceService
	repo        repositories.MaintenanceRepository
	ruleSvc     *RuleService
	clock       Clock
	interval    time.Duration

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex

	// poke wakes the loop early, used by the config watcher.
	poke chan struct{}
}

// NewSchedulerService creates a new scheduler service
func NewSchedulerService(maintenance *MaintenanceService, repo repositories.MaintenanceRepository, clock Clock, interval time.Duration) *SchedulerService {
	if interval <= 0 {
		interval = time.Duration(app.SchedulerPollInterval) * time.Second
	}
	return &SchedulerService{
		maintenance: maintenance,
		repo:        repo,
		ruleSvc:     NewRuleService(),
		clock:       clock,
		interval:    interval,
		poke:        make(chan struct{}, 1),
	}
}

// Start begins the scheduler loop.
func (s *SchedulerService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.running = true

	s.wg.Add(1)
	go s.loop()

	log.Println("Maintenance scheduler started")
	return nil
}

// Stop gracefully stops the scheduler.
func (s *SchedulerService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	s.cancel()
	s.running = false

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Maintenance scheduler stopped")
	case <-time.After(5 * time.Second):
		log.Println("Maintenance scheduler stop timeout")
	}
}

// IsRunning returns whether the scheduler loop is active.
func (s *SchedulerService) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Poke asks the loop to re-check schedules immediately, e.g. after the
// configuration file changed on disk.
func (s *SchedulerService) Poke() {
	select {
	case s.poke <- struct{}{}:
	default:
	}
}

func (s *SchedulerService) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.Tick(s.ctx)
		case <-s.poke:
			s.Tick(s.ctx)
		}
	}
}

// Tick performs one scheduler pass over all scopes. Exported so tests
// and the watcher can drive the scheduler without the ticker.
func (s *SchedulerService) Tick(ctx context.Context) {
	for _, scope := range entities.Scopes {
		if err := s.checkScope(ctx, scope); err != nil {
			log.Printf("scheduler: scope %s: %v", scope, err)
		}
	}
}

func (s *SchedulerService) checkScope(ctx context.Context, scope entities.Scope) error {
	cfg, err := s.repo.LoadConfig(ctx)
	if err != nil {
		return err
	}
	profile := cfg.Profile(scope)
	now := s.clock.Now()

	gapDetected := false
	if profile.Meta.LastSchedulerTick > 0 {
		gap := now.Unix() - profile.Meta.LastSchedulerTick
		if float64(gap) > app.SchedulerGapFactor*s.interval.Seconds() {
			gapDetected = true
		}
	}

	// A stale NextRunAt left behind by a hand-edited config must not fire
	// once the time-based rule is disabled.
	next := profile.Meta.NextRunAt
	due := profile.Rules.TimeBased.Enabled &&
		!next.IsZero() && !now.Before(next) && profile.Meta.LastScheduledRunAt.Before(next)

	// Stamp the tick before running anything so a crash mid-run still
	// narrows the next gap window.
	if err := s.maintenance.mutateConfig(ctx, func(c *entities.MaintenanceConfig) error {
		c.Profile(scope).Meta.LastSchedulerTick = now.Unix()
		return nil
	}); err != nil {
		return err
	}

	if due {
		grace := time.Duration(float64(s.interval) * app.SchedulerGapFactor)
		if gapDetected || now.Sub(next) > grace {
			// The slot elapsed unobserved. Record it exactly once; the
			// next-run pointer advances with the record.
			reason := entities.MissedReasonElapsedWindow
			if gapDetected {
				reason = entities.MissedReasonSchedulerGap
			}
			if err := s.maintenance.RecordMissed(ctx, scope, next, reason); err != nil {
				return err
			}
		} else {
			if _, err := s.maintenance.RunScheduled(ctx, scope, next); err != nil {
				if errorsIsBusy(err) {
					return s.maintenance.RecordMissed(ctx, scope, next, entities.MissedReasonLockHeld)
				}
				return err
			}
		}
	}

	// Space pressure is checked on every tick, independent of the
	// time-based schedule.
	if s.spacePressureDue(profile, now) {
		if _, err := s.maintenance.RunSpacePressure(ctx, scope); err != nil && !errorsIsBusy(err) {
			return err
		}
	}

	return nil
}

func (s *SchedulerService) spacePressureDue(profile *entities.ScopeProfile, now time.Time) bool {
	if !profile.Rules.Enabled || !profile.Rules.Space.Enabled {
		return false
	}
	stats := s.maintenance.storageStats()
	return s.ruleSvc.spaceGateActive(&profile.Rules, &profile.Meta, stats, now)
}

func errorsIsBusy(err error) bool {
	return stderrors.Is(err, errors.ErrRunInProgress)
}
