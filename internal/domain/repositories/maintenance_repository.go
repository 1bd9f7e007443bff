package repositories

import (
	"context"
	"time"

	"github.com/craftdeck/craftdeck/internal/domain/entities"
)

// MaintenanceRepository defines the persistence interface for the
// maintenance core: rule configuration, run history, and missed-run
// records, all partitioned by scope. Implementations must provide atomic
// read-modify-write semantics per scope; the execution orchestrator
// serializes writers above this interface.
type MaintenanceRepository interface {
	// LoadConfig loads the full maintenance configuration, applying
	// defaults and load-time normalization. A missing or corrupted file
	// yields a default configuration, never an error.
	LoadConfig(ctx context.Context) (*entities.MaintenanceConfig, error)

	// SaveConfig persists the full configuration atomically.
	SaveConfig(ctx context.Context, cfg *entities.MaintenanceConfig) error

	// LoadHistory loads the run history for a scope.
	LoadHistory(ctx context.Context, scope entities.Scope) (*entities.RunHistory, error)

	// AppendRun appends one run record to a scope's history, trimming the
	// log to its retention bound.
	AppendRun(ctx context.Context, scope entities.Scope, run entities.HistoryRun) error

	// LoadMissed loads the missed-run log for a scope.
	LoadMissed(ctx context.Context, scope entities.Scope) (*entities.MissedRunLog, error)

	// AppendMissed appends one missed-run record, trimming the list to its
	// retention bound.
	AppendMissed(ctx context.Context, scope entities.Scope, missed entities.MissedRun) error

	// AcknowledgeMissed clears all missed-run records for a scope and
	// stamps the acknowledging actor and time.
	AcknowledgeMissed(ctx context.Context, scope entities.Scope, actor string, at time.Time) (*entities.MissedRunLog, error)
}
