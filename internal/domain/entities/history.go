package entities

import "time"

// RunResult classifies the outcome of a run.
type RunResult string

const (
	RunResultOK      RunResult = "ok"
	RunResultPartial RunResult = "partial"
	RunResultFailed  RunResult = "failed"
	RunResultDryRun  RunResult = "dry_run"
)

// Run triggers recorded in history entries.
const (
	TriggerManualRule      = "manual_rule"
	TriggerManualSelection = "manual_selection"
	TriggerScheduled       = "scheduled"
	TriggerSpacePressure   = "space_pressure"
	TriggerPreview         = "preview"
)

// HistoryRun is one append-only record of a maintenance run.
type HistoryRun struct {
	At             time.Time `yaml:"at" json:"at"`
	Trigger        string    `yaml:"trigger" json:"trigger"`
	Mode           RunMode   `yaml:"mode" json:"mode"`
	DryRun         bool      `yaml:"dry_run" json:"dry_run"`
	DeletedCount   int       `yaml:"deleted_count" json:"deleted_count"`
	ErrorsCount    int       `yaml:"errors_count" json:"errors_count"`
	RequestedCount int       `yaml:"requested_count" json:"requested_count"`
	CappedCount    int       `yaml:"capped_count" json:"capped_count"`
	Result         RunResult `yaml:"result" json:"result"`
	Details        string    `yaml:"details" json:"details"`
	Scope          Scope     `yaml:"scope" json:"scope"`
}

// RunHistory is the scope-partitioned run log, oldest first on disk.
type RunHistory struct {
	Runs []HistoryRun `yaml:"runs" json:"runs"`
}

// NewestFirst returns up to limit runs, newest first. A non-positive limit
// returns everything.
func (h *RunHistory) NewestFirst(limit int) []HistoryRun {
	out := make([]HistoryRun, 0, len(h.Runs))
	for i := len(h.Runs) - 1; i >= 0; i-- {
		out = append(out, h.Runs[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// LastScheduledRun returns the most recent run recorded with a scheduled
// trigger, or nil when none exists.
func (h *RunHistory) LastScheduledRun() *HistoryRun {
	for i := len(h.Runs) - 1; i >= 0; i-- {
		if h.Runs[i].Trigger == TriggerScheduled && !h.Runs[i].DryRun {
			run := h.Runs[i]
			return &run
		}
	}
	return nil
}

// MissedRun records a scheduled trigger time that elapsed while the
// process was down or a run could not start. Cleared only by an explicit
// acknowledgment.
type MissedRun struct {
	At         time.Time `yaml:"at" json:"at"`
	Reason     string    `yaml:"reason" json:"reason"`
	ScheduleID string    `yaml:"schedule_id" json:"schedule_id"`
	Scope      Scope     `yaml:"scope" json:"scope"`
}

// Missed-run reasons.
const (
	MissedReasonSchedulerGap  = "scheduler_gap"
	MissedReasonElapsedWindow = "missed_schedule"
	MissedReasonLockHeld      = "lock_held"
)

// MissedRunLog is the scope-partitioned missed-run list plus the audited
// fact of the last acknowledgment.
type MissedRunLog struct {
	MissedRuns []MissedRun `yaml:"missed_runs" json:"missed_runs"`
	LastAckAt  time.Time   `yaml:"last_ack_at" json:"last_ack_at"`
	LastAckBy  string      `yaml:"last_ack_by" json:"last_ack_by"`
}
