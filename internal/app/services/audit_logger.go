package services

import (
	"encoding/json"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"github.com/craftdeck/craftdeck/internal/app"
	"github.com/craftdeck/craftdeck/internal/domain/entities"
)

// AuditLogger appends one JSON line per maintenance action to the audit
// log. The log is append-only and never consulted by the engine itself;
// it exists for operators.
type AuditLogger struct {
	logFile string
}

// AuditEntry is a single audit log record.
type AuditEntry struct {
	Timestamp    time.Time      `json:"timestamp"`
	Operation    string         `json:"operation"`
	Scope        entities.Scope `json:"scope,omitempty"`
	Trigger      string         `json:"trigger,omitempty"`
	DryRun       bool           `json:"dry_run,omitempty"`
	DeletedCount int            `json:"deleted_count,omitempty"`
	DeletedBytes int64          `json:"deleted_bytes,omitempty"`
	Result       string         `json:"result,omitempty"`
	Actor        string         `json:"actor,omitempty"`
	Success      bool           `json:"success"`
	Error        string         `json:"error,omitempty"`
}

// NewAuditLogger creates a new audit logger writing under basePath.
func NewAuditLogger(basePath string) *AuditLogger {
	logFile := filepath.Join(basePath, app.LogsDirName, app.AuditLogFileName)
	os.MkdirAll(filepath.Dir(logFile), 0755)

	return &AuditLogger{logFile: logFile}
}

// LogRun records a completed or previewed maintenance run.
func (l *AuditLogger) LogRun(selection *entities.DeletionSelection, actor string, err error) error {
	entry := &AuditEntry{
		Timestamp:    time.Now(),
		Operation:    "run",
		Scope:        selection.Scope,
		Trigger:      selection.Trigger,
		DryRun:       selection.DryRun,
		DeletedCount: selection.DeletedCount,
		DeletedBytes: selection.DeletedBytes,
		Result:       string(selection.Result()),
		Actor:        resolveActor(actor),
		Success:      err == nil,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	return l.write(entry)
}

// LogSave records a rule-set save.
func (l *AuditLogger) LogSave(scope entities.Scope, actor string, err error) error {
	entry := &AuditEntry{
		Timestamp: time.Now(),
		Operation: "save_rules",
		Scope:     scope,
		Actor:     resolveActor(actor),
		Success:   err == nil,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	return l.write(entry)
}

// LogAcknowledge records a missed-run acknowledgment.
func (l *AuditLogger) LogAcknowledge(scope entities.Scope, actor string, err error) error {
	entry := &AuditEntry{
		Timestamp: time.Now(),
		Operation: "ack_missed",
		Scope:     scope,
		Actor:     resolveActor(actor),
		Success:   err == nil,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	return l.write(entry)
}

func (l *AuditLogger) write(entry *AuditEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(l.logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(append(data, '\n'))
	return err
}

func resolveActor(actor string) string {
	if actor != "" {
		return actor
	}
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return "unknown"
}
