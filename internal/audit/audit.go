// Package audit records the lifecycle events of every task (create,
// pause, resume, cancel, delete, rename, error) to both the structured
// logger and internal/storage's durable audit table. Grounded on the
// teacher's internal/security/audit.go (AuditLogger), stripped of its
// Wails event-emit and MCP-access-log framing — this engine logs task
// lifecycle, not inbound API requests, which is the api package's own
// concern.
package audit

import (
	"log/slog"

	"corefetch/internal/storage"
)

// Logger appends task lifecycle events to the audit table and mirrors
// them to the structured logger.
type Logger struct {
	store *storage.Storage
	log   *slog.Logger
}

// New builds a Logger writing to store and log.
func New(store *storage.Storage, log *slog.Logger) *Logger {
	return &Logger{store: store, log: log}
}

// Record appends one lifecycle event for taskID. Storage failures are
// logged but never returned — an audit-trail write failure must not
// block the task operation that triggered it.
func (l *Logger) Record(taskID, action, details string) {
	if err := l.store.AppendAudit(taskID, action, details); err != nil {
		l.log.Warn("audit: failed to persist entry", "task_id", taskID, "action", action, "error", err)
	}
	l.log.Info("task lifecycle", "task_id", taskID, "action", action, "details", details)
}

// Recent returns the most recent audit entries across all tasks.
func (l *Logger) Recent(limit int) ([]storage.AuditEntry, error) {
	return l.store.RecentAudit(limit)
}
