package services

import (
	"sort"
	"time"

	"github.com/craftdeck/craftdeck/internal/domain/entities"
)

// Per-rule run override keys. An empty key evaluates all enabled gates.
const (
	RuleKeyAge   = "age"
	RuleKeyCount = "count"
	RuleKeySpace = "space"
)

// EvaluationInput carries everything one evaluation needs. Evaluation is
// pure given these values except for the space-trigger bookkeeping on
// Meta, which is touched only when Apply is set.
type EvaluationInput struct {
	Scope     entities.Scope
	Mode      entities.RunMode
	Trigger   string
	DryRun    bool
	Rules     *entities.RuleSet
	Meta      *entities.RuleMeta
	Artifacts []entities.Artifact
	Stats     *entities.StorageStats
	Now       time.Time

	// ScanErrors seeds the selection's error list with what the scanner
	// could not read.
	ScanErrors []string

	// SelectedPaths restricts a manual-mode run to exactly these paths.
	SelectedPaths []string

	// RuleKey restricts a rule-mode run to a single gate (age, count or
	// space). Empty means all enabled gates.
	RuleKey string

	// Apply marks a real run. Previews never consume the space trigger or
	// start its cooldown.
	Apply bool
}

// RuleService computes per-artifact eligibility and the capped deletion
// selection for a scope.
type RuleService struct{}

// NewRuleService creates a new rule service
func NewRuleService() *RuleService {
	return &RuleService{}
}

// Evaluate runs the gates over the inventory and returns the selection
// plus the artifacts that survived the caps, oldest first, ready for
// deletion.
//
// Manual mode treats the gates as a union: any flagging gate makes an
// artifact eligible for listing. Rule mode requires every gate that
// applies to agree; the space gate only applies while pressure is active,
// so an idle disk never vetoes age and count.
func (s *RuleService) Evaluate(input EvaluationInput) (*entities.DeletionSelection, []entities.Artifact) {
	selection := &entities.DeletionSelection{
		Scope:   input.Scope,
		Mode:    input.Mode,
		Trigger: input.Trigger,
		DryRun:  input.DryRun,
		Errors:  append([]string(nil), input.ScanErrors...),
	}

	rules := input.Rules
	if rules == nil || (input.Mode == entities.RunModeRule && !rules.Enabled) {
		// Rule-based cleanup switched off: report the inventory untouched.
		for i := range input.Artifacts {
			selection.Items = append(selection.Items, itemFor(&input.Artifacts[i], false, false, input.Artifacts[i].Reasons))
		}
		return selection, nil
	}

	ageApplies := rules.Age.Enabled && ruleKeyAllows(input.RuleKey, RuleKeyAge)
	countApplies := rules.Count.Enabled && ruleKeyAllows(input.RuleKey, RuleKeyCount)

	spaceActive := s.spaceGateActive(rules, input.Meta, input.Stats, input.Now)
	spaceApplies := rules.Space.Enabled && ruleKeyAllows(input.RuleKey, RuleKeySpace) && spaceActive

	ageFlags := s.ageGate(input.Artifacts, rules, input.Now, ageApplies)
	countFlags := s.countGate(input.Artifacts, rules, countApplies)
	spaceFlags := s.spaceGate(input.Artifacts, rules, input.Stats, spaceApplies)

	guarded := s.guardedSet(input.Artifacts, rules)

	type verdict struct {
		artifact *entities.Artifact
		reasons  []string
		eligible bool
	}

	verdicts := make([]verdict, len(input.Artifacts))
	for i := range input.Artifacts {
		a := &input.Artifacts[i]
		v := verdict{artifact: a, reasons: append([]string(nil), a.Reasons...)}

		hardOK := a.Eligible
		if guarded[a.Path] {
			hardOK = false
			v.reasons = append(v.reasons, entities.ReasonHardGuard)
		}

		agreed := 0
		flagged := 0
		if ageApplies {
			if ageFlags[a.Path] {
				v.reasons = append(v.reasons, entities.ReasonAge)
				flagged++
			}
			agreed++
		}
		if countApplies {
			if countFlags[a.Path] {
				v.reasons = append(v.reasons, entities.ReasonCount)
				flagged++
			}
			agreed++
		}
		if spaceApplies {
			if spaceFlags[a.Path] {
				v.reasons = append(v.reasons, entities.ReasonSpace)
				flagged++
			}
			agreed++
		}

		switch input.Mode {
		case entities.RunModeManual:
			v.eligible = hardOK && flagged > 0
		default:
			gateCount := 0
			if ageApplies && ageFlags[a.Path] {
				gateCount++
			}
			if countApplies && countFlags[a.Path] {
				gateCount++
			}
			if spaceApplies && spaceFlags[a.Path] {
				gateCount++
			}
			v.eligible = hardOK && agreed > 0 && gateCount == agreed
		}

		verdicts[i] = v
	}

	// Candidate order is oldest first, path as tiebreaker, so caps and
	// space simulation behave deterministically.
	sort.SliceStable(verdicts, func(i, j int) bool {
		a, b := verdicts[i].artifact, verdicts[j].artifact
		if a.ModTime.Equal(b.ModTime) {
			return a.Path < b.Path
		}
		return a.ModTime.Before(b.ModTime)
	})

	var candidates []verdict
	manualIneligible := map[string]bool{}
	if input.Mode == entities.RunModeManual {
		wanted := map[string]bool{}
		for _, p := range input.SelectedPaths {
			wanted[p] = true
		}
		seen := map[string]bool{}
		for _, v := range verdicts {
			if !wanted[v.artifact.Path] {
				continue
			}
			seen[v.artifact.Path] = true
			if v.eligible {
				candidates = append(candidates, v)
			} else {
				manualIneligible[v.artifact.Path] = true
				selection.SelectedIneligible = append(selection.SelectedIneligible, v.artifact.Path)
			}
		}
		for _, p := range input.SelectedPaths {
			if !seen[p] {
				selection.SelectedIneligible = append(selection.SelectedIneligible, p)
			}
		}
	} else {
		for _, v := range verdicts {
			if v.eligible {
				candidates = append(candidates, v)
			}
		}
	}

	eligibleCount := 0
	for _, v := range verdicts {
		if v.eligible {
			eligibleCount++
		}
	}
	selection.EligibleCount = eligibleCount
	selection.RequestedDeleteCount = len(candidates)

	limit := s.capFor(rules.Caps, len(candidates))
	if limit > len(candidates) {
		limit = len(candidates)
	}
	selection.CappedDeleteCount = limit

	selected := map[string]bool{}
	capped := map[string]bool{}
	var targets []entities.Artifact
	for i, v := range candidates {
		if i < limit {
			selected[v.artifact.Path] = true
			targets = append(targets, *v.artifact)
			continue
		}
		capped[v.artifact.Path] = true
		selection.SelectedIneligible = append(selection.SelectedIneligible, v.artifact.Path)
	}

	for i := range verdicts {
		v := &verdicts[i]
		reasons := v.reasons
		if input.Mode == entities.RunModeManual && selected[v.artifact.Path] {
			reasons = append(reasons, entities.ReasonManualSelection)
		}
		if manualIneligible[v.artifact.Path] {
			reasons = append(reasons, entities.ReasonIneligibleSelection)
		}
		if capped[v.artifact.Path] {
			reasons = append(reasons, entities.ReasonCapped)
		}
		selection.Items = append(selection.Items, itemFor(v.artifact, v.eligible, selected[v.artifact.Path], reasons))
	}

	if input.Apply && input.Mode == entities.RunModeRule && input.Meta != nil {
		s.consumeSpaceTrigger(rules, input.Meta, input.Stats, input.Now, spaceApplies)
	}

	return selection, targets
}

func ruleKeyAllows(key, gate string) bool {
	return key == "" || key == gate
}

func itemFor(a *entities.Artifact, eligible, selected bool, reasons []string) entities.SelectionItem {
	return entities.SelectionItem{
		Name:              a.Name,
		Path:              a.Path,
		Category:          a.Category,
		SizeBytes:         a.SizeBytes,
		ModTime:           a.ModTime,
		Eligible:          eligible,
		SelectedForDelete: selected,
		Reasons:           reasons,
	}
}

// ageGate flags artifacts at least Age.Days old.
func (s *RuleService) ageGate(artifacts []entities.Artifact, rules *entities.RuleSet, now time.Time, applies bool) map[string]bool {
	flags := map[string]bool{}
	if !applies {
		return flags
	}
	minAge := time.Duration(rules.Age.Days) * 24 * time.Hour
	for i := range artifacts {
		if now.Sub(artifacts[i].ModTime) >= minAge {
			flags[artifacts[i].Path] = true
		}
	}
	return flags
}

// countGate flags everything beyond the newest-N keep-count of its group.
// Backup archives group by bucket with per-bucket keeps; other categories
// group by category under MaxPerCategory.
func (s *RuleService) countGate(artifacts []entities.Artifact, rules *entities.RuleSet, applies bool) map[string]bool {
	flags := map[string]bool{}
	if !applies {
		return flags
	}

	groups := map[string][]*entities.Artifact{}
	keeps := map[string]int{}
	for i := range artifacts {
		a := &artifacts[i]
		var key string
		if a.Category == entities.CategoryBackupZip {
			bucket := a.Bucket()
			key = "bucket:" + string(bucket)
			keeps[key] = rules.Count.KeepFor(bucket)
		} else {
			key = "category:" + string(a.Category)
			keeps[key] = rules.Count.MaxPerCategory
		}
		groups[key] = append(groups[key], a)
	}

	for key, group := range groups {
		sort.SliceStable(group, func(i, j int) bool {
			if group[i].ModTime.Equal(group[j].ModTime) {
				return group[i].Path < group[j].Path
			}
			return group[i].ModTime.After(group[j].ModTime)
		})
		for idx, a := range group {
			if idx >= keeps[key] {
				flags[a.Path] = true
			}
		}
	}
	return flags
}

// spaceGateActive reports whether space pressure exists and the trigger
// may fire: over the usage threshold (or under the absolute free floor),
// armed, and out of cooldown.
func (s *RuleService) spaceGateActive(rules *entities.RuleSet, meta *entities.RuleMeta, stats *entities.StorageStats, now time.Time) bool {
	if !rules.Space.Enabled || stats == nil {
		return false
	}

	pressure := stats.UsedPercent >= float64(rules.Space.UsedTriggerPercent)
	if !pressure && rules.Space.FreeSpaceBelowGB > 0 {
		pressure = stats.FreeBytes < int64(rules.Space.FreeSpaceBelowGB)*1024*1024*1024
	}
	if !pressure {
		return false
	}

	if meta != nil {
		if !meta.SpaceTriggerArmed {
			return false
		}
		if meta.CooldownUntil > 0 && now.Unix() < meta.CooldownUntil {
			return false
		}
	}
	return true
}

// spaceGate flags the oldest artifacts until the simulated free space
// clears the target; if the target stays out of reach every artifact ends
// up flagged.
func (s *RuleService) spaceGate(artifacts []entities.Artifact, rules *entities.RuleSet, stats *entities.StorageStats, applies bool) map[string]bool {
	flags := map[string]bool{}
	if !applies || stats == nil {
		return flags
	}

	targetFree := stats.TotalBytes / 100 * int64(rules.Space.TargetFreePercent)
	simulatedFree := stats.FreeBytes

	ordered := make([]*entities.Artifact, 0, len(artifacts))
	for i := range artifacts {
		ordered = append(ordered, &artifacts[i])
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].ModTime.Equal(ordered[j].ModTime) {
			return ordered[i].Path < ordered[j].Path
		}
		return ordered[i].ModTime.Before(ordered[j].ModTime)
	})

	for _, a := range ordered {
		if simulatedFree >= targetFree {
			break
		}
		flags[a.Path] = true
		simulatedFree += a.SizeBytes
	}
	return flags
}

// guardedSet returns the paths the guard rules make untouchable: the
// newest N per category and the newest artifact overall.
func (s *RuleService) guardedSet(artifacts []entities.Artifact, rules *entities.RuleSet) map[string]bool {
	guarded := map[string]bool{}

	if n := rules.Guards.NeverDeleteNewestNPerCategory; n > 0 {
		groups := map[entities.Category][]*entities.Artifact{}
		for i := range artifacts {
			groups[artifacts[i].Category] = append(groups[artifacts[i].Category], &artifacts[i])
		}
		for _, group := range groups {
			sort.SliceStable(group, func(i, j int) bool {
				if group[i].ModTime.Equal(group[j].ModTime) {
					return group[i].Path < group[j].Path
				}
				return group[i].ModTime.After(group[j].ModTime)
			})
			for idx, a := range group {
				if idx < n {
					guarded[a.Path] = true
				}
			}
		}
	}

	if rules.Guards.NeverDeleteLastBackupOverall {
		var newest *entities.Artifact
		for i := range artifacts {
			a := &artifacts[i]
			if a.Category != entities.CategoryBackupZip {
				continue
			}
			if newest == nil || a.ModTime.After(newest.ModTime) {
				newest = a
			}
		}
		if newest != nil {
			guarded[newest.Path] = true
		}
	}

	return guarded
}

// capFor applies the caps in order: absolute, percent of the candidate
// set rounded down, and the non-empty minimum override.
func (s *RuleService) capFor(caps entities.CapRule, candidateCount int) int {
	if candidateCount == 0 {
		return 0
	}

	pctCap := candidateCount * caps.MaxDeletePercentEligible / 100
	if pctCap < caps.MaxDeleteMinIfNonEmpty {
		pctCap = caps.MaxDeleteMinIfNonEmpty
	}

	limit := caps.MaxDeleteFilesAbsolute
	if pctCap < limit {
		limit = pctCap
	}
	if limit < 0 {
		limit = 0
	}
	return limit
}

// consumeSpaceTrigger records that a space-triggered run happened and
// re-arms the trigger once usage has fallen below trigger-hysteresis.
func (s *RuleService) consumeSpaceTrigger(rules *entities.RuleSet, meta *entities.RuleMeta, stats *entities.StorageStats, now time.Time, fired bool) {
	if fired {
		meta.SpaceTriggerArmed = false
		if rules.Space.CooldownSeconds > 0 {
			meta.CooldownUntil = now.Unix() + int64(rules.Space.CooldownSeconds)
		}
		return
	}

	if stats == nil || meta.SpaceTriggerArmed {
		return
	}
	rearmBelow := float64(rules.Space.UsedTriggerPercent - rules.Space.HysteresisPercent)
	if stats.UsedPercent < rearmBelow {
		meta.SpaceTriggerArmed = true
	}
}
