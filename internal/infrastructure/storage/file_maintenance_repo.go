package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/craftdeck/craftdeck/internal/app"
	"github.com/craftdeck/craftdeck/internal/domain/entities"
	"github.com/craftdeck/craftdeck/internal/domain/errors"
)

// FileMaintenanceRepository implements the MaintenanceRepository interface
// using YAML files under the data directory. Every write goes through a
// temp file and rename so a crash never leaves a half-written config or
// history behind.
type FileMaintenanceRepository struct {
	basePath string
}

// NewFileMaintenanceRepository creates a new file-based maintenance repository
func NewFileMaintenanceRepository(basePath string) *FileMaintenanceRepository {
	return &FileMaintenanceRepository{
		basePath: basePath,
	}
}

// ConfigPath returns the path of the cleanup configuration file.
func (r *FileMaintenanceRepository) ConfigPath() string {
	return filepath.Join(r.basePath, app.CleanupConfigFileName)
}

func (r *FileMaintenanceRepository) historyPath(scope entities.Scope) string {
	return filepath.Join(r.basePath, fmt.Sprintf(app.HistoryFilePattern, scope))
}

func (r *FileMaintenanceRepository) missedPath(scope entities.Scope) string {
	return filepath.Join(r.basePath, fmt.Sprintf(app.MissedFilePattern, scope))
}

// writeAtomic marshals v to YAML and replaces path in a single rename.
func (r *FileMaintenanceRepository) writeAtomic(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return err
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// LoadConfig loads the maintenance configuration. A missing or unreadable
// file yields defaults so the panel always has workable rules; the loaded
// configuration is normalized in place.
func (r *FileMaintenanceRepository) LoadConfig(ctx context.Context) (*entities.MaintenanceConfig, error) {
	data, err := os.ReadFile(r.ConfigPath())
	if err != nil {
		if os.IsNotExist(err) {
			return entities.DefaultMaintenanceConfig(), nil
		}
		return nil, errors.Wrap(err, "FileMaintenanceRepository.LoadConfig", "read")
	}

	var cfg entities.MaintenanceConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		// Corrupted config falls back to defaults rather than blocking
		// every maintenance operation.
		return entities.DefaultMaintenanceConfig(), nil
	}

	cfg.Normalize()
	return &cfg, nil
}

// SaveConfig persists the full configuration atomically.
func (r *FileMaintenanceRepository) SaveConfig(ctx context.Context, cfg *entities.MaintenanceConfig) error {
	if cfg == nil {
		return errors.New("FileMaintenanceRepository.SaveConfig", "nil_config", errors.ErrConfigInvalid)
	}
	if err := r.writeAtomic(r.ConfigPath(), cfg); err != nil {
		return errors.Wrap(err, "FileMaintenanceRepository.SaveConfig", "write")
	}
	return nil
}

// LoadHistory loads the run history for a scope. Missing or corrupted
// files yield an empty history.
func (r *FileMaintenanceRepository) LoadHistory(ctx context.Context, scope entities.Scope) (*entities.RunHistory, error) {
	if !scope.IsValid() {
		return nil, errors.New("FileMaintenanceRepository.LoadHistory", "scope", errors.ErrScopeInvalid)
	}

	data, err := os.ReadFile(r.historyPath(scope))
	if err != nil {
		if os.IsNotExist(err) {
			return &entities.RunHistory{}, nil
		}
		return nil, errors.Wrap(err, "FileMaintenanceRepository.LoadHistory", "read")
	}

	var history entities.RunHistory
	if err := yaml.Unmarshal(data, &history); err != nil {
		return &entities.RunHistory{}, nil
	}
	return &history, nil
}

// AppendRun appends one run record and trims the history to its bound.
func (r *FileMaintenanceRepository) AppendRun(ctx context.Context, scope entities.Scope, run entities.HistoryRun) error {
	history, err := r.LoadHistory(ctx, scope)
	if err != nil {
		return errors.Wrap(err, "FileMaintenanceRepository.AppendRun", "load")
	}

	history.Runs = append(history.Runs, run)
	if len(history.Runs) > app.MaxHistoryRuns {
		history.Runs = history.Runs[len(history.Runs)-app.MaxHistoryRuns:]
	}

	if err := r.writeAtomic(r.historyPath(scope), history); err != nil {
		return errors.Wrap(err, "FileMaintenanceRepository.AppendRun", "write")
	}
	return nil
}

// LoadMissed loads the missed-run log for a scope. Missing or corrupted
// files yield an empty log.
func (r *FileMaintenanceRepository) LoadMissed(ctx context.Context, scope entities.Scope) (*entities.MissedRunLog, error) {
	if !scope.IsValid() {
		return nil, errors.New("FileMaintenanceRepository.LoadMissed", "scope", errors.ErrScopeInvalid)
	}

	data, err := os.ReadFile(r.missedPath(scope))
	if err != nil {
		if os.IsNotExist(err) {
			return &entities.MissedRunLog{}, nil
		}
		return nil, errors.Wrap(err, "FileMaintenanceRepository.LoadMissed", "read")
	}

	var log entities.MissedRunLog
	if err := yaml.Unmarshal(data, &log); err != nil {
		return &entities.MissedRunLog{}, nil
	}
	return &log, nil
}

// AppendMissed appends one missed-run record and trims the list to its
// bound.
func (r *FileMaintenanceRepository) AppendMissed(ctx context.Context, scope entities.Scope, missed entities.MissedRun) error {
	log, err := r.LoadMissed(ctx, scope)
	if err != nil {
		return errors.Wrap(err, "FileMaintenanceRepository.AppendMissed", "load")
	}

	log.MissedRuns = append(log.MissedRuns, missed)
	if len(log.MissedRuns) > app.MaxMissedRuns {
		log.MissedRuns = log.MissedRuns[len(log.MissedRuns)-app.MaxMissedRuns:]
	}

	if err := r.writeAtomic(r.missedPath(scope), log); err != nil {
		return errors.Wrap(err, "FileMaintenanceRepository.AppendMissed", "write")
	}
	return nil
}

// AcknowledgeMissed clears all missed runs for a scope and records who
// acknowledged them and when.
func (r *FileMaintenanceRepository) AcknowledgeMissed(ctx context.Context, scope entities.Scope, actor string, at time.Time) (*entities.MissedRunLog, error) {
	log, err := r.LoadMissed(ctx, scope)
	if err != nil {
		return nil, errors.Wrap(err, "FileMaintenanceRepository.AcknowledgeMissed", "load")
	}

	log.MissedRuns = nil
	log.LastAckAt = at
	log.LastAckBy = actor

	if err := r.writeAtomic(r.missedPath(scope), log); err != nil {
		return nil, errors.Wrap(err, "FileMaintenanceRepository.AcknowledgeMissed", "write")
	}
	return log, nil
}
