package entities

import "time"

// RunMode distinguishes rule-driven runs from operator-picked selections.
type RunMode string

const (
	// RunModeRule evaluates the scope's retention gates.
	RunModeRule RunMode = "rule"

	// RunModeManual deletes exactly the operator's selected paths, subject
	// to eligibility and caps.
	RunModeManual RunMode = "manual"
)

// Eligibility and selection reasons reported per artifact.
const (
	ReasonAge                 = "age"
	ReasonCount               = "count"
	ReasonSpace               = "space"
	ReasonManualSelection     = "manual_selection"
	ReasonIneligibleSelection = "ineligible_selection"
	ReasonCapped              = "capped"
	ReasonHardGuard           = "hard_guard"
	ReasonCategoryDisabled    = "category_disabled"
	ReasonSymlinkBlocked      = "symlink_blocked"
	ReasonOutsideRoots        = "outside_allowed_roots"
	ReasonActiveWorld         = "active_world_protected"
	ReasonStatFailed          = "stat_failed"
)

// SelectionItem is one artifact's verdict within a DeletionSelection.
type SelectionItem struct {
	Name              string    `yaml:"name" json:"name"`
	Path              string    `yaml:"path" json:"path"`
	Category          Category  `yaml:"category" json:"category"`
	SizeBytes         int64     `yaml:"size_bytes" json:"size_bytes"`
	ModTime           time.Time `yaml:"modified_at" json:"modified_at"`
	Eligible          bool      `yaml:"eligible" json:"eligible"`
	SelectedForDelete bool      `yaml:"selected_for_delete" json:"selected_for_delete"`
	Reasons           []string  `yaml:"reasons" json:"reasons"`
}

// DeletionSelection is the full outcome of one evaluation or run. A
// dry-run preview and a real run share this shape; only DryRun and the
// deleted counters differ.
type DeletionSelection struct {
	Scope   Scope   `yaml:"scope" json:"scope"`
	Mode    RunMode `yaml:"mode" json:"mode"`
	Trigger string  `yaml:"trigger" json:"trigger"`
	DryRun  bool    `yaml:"dry_run" json:"dry_run"`

	EligibleCount        int `yaml:"eligible_count" json:"eligible_count"`
	RequestedDeleteCount int `yaml:"requested_delete_count" json:"requested_delete_count"`
	CappedDeleteCount    int `yaml:"capped_delete_count" json:"capped_delete_count"`
	DeletedCount         int `yaml:"deleted_count" json:"deleted_count"`

	DeletedBytes int64    `yaml:"deleted_bytes" json:"deleted_bytes"`
	Errors       []string `yaml:"errors" json:"errors"`

	Items []SelectionItem `yaml:"items" json:"items"`

	// SelectedIneligible lists paths that were requested but excluded: cap
	// overflow ("capped") and manually selected artifacts that failed an
	// eligibility check. Never silently dropped.
	SelectedIneligible []string `yaml:"selected_ineligible" json:"selected_ineligible"`
}

// Result summarizes a completed run for history and meta bookkeeping.
// Failed means deletions were attempted and none succeeded; a run whose
// only errors came from scanning reports partial, not failed.
func (s *DeletionSelection) Result() RunResult {
	if s.DryRun {
		return RunResultDryRun
	}
	if len(s.Errors) == 0 {
		return RunResultOK
	}
	if s.CappedDeleteCount > 0 && s.DeletedCount == 0 {
		return RunResultFailed
	}
	return RunResultPartial
}
