package observability

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/templio/idgen"
)

// Event types written by templio.
const (
	EventTemplateCreated    = "template.created"
	EventTemplateUpdated    = "template.updated"
	EventTemplateDeleted    = "template.deleted"
	EventThumbnailDropped   = "thumbnail.dropped"
	EventThumbnailGenerated = "thumbnail.generated"
	EventUserSignedIn       = "user.signed_in"
	EventUserSignedOut      = "user.signed_out"
)

// BusinessEvent is one domain-level event.
type BusinessEvent struct {
	ID         string    `json:"id"`
	EventType  string    `json:"event_type"`
	EntityType string    `json:"entity_type,omitempty"`
	EntityID   string    `json:"entity_id,omitempty"`
	UserID     string    `json:"user_id,omitempty"`
	Details    string    `json:"details,omitempty"`
	Success    bool      `json:"success"`
	CreatedAt  time.Time `json:"created_at"`
}

// EventLogger writes business events. A nil *EventLogger is a valid no-op.
type EventLogger struct {
	db     *sql.DB
	newID  idgen.Generator
	logger *slog.Logger
}

// EventLoggerOption configures an EventLogger.
type EventLoggerOption func(*EventLogger)

// WithEventIDGenerator sets the generator used for event IDs.
func WithEventIDGenerator(gen idgen.Generator) EventLoggerOption {
	return func(l *EventLogger) { l.newID = gen }
}

// WithEventLogger sets the slog logger used to report write failures.
func WithEventLogger(logger *slog.Logger) EventLoggerOption {
	return func(l *EventLogger) { l.logger = logger }
}

// NewEventLogger creates an EventLogger writing to db.
func NewEventLogger(db *sql.DB, opts ...EventLoggerOption) *EventLogger {
	l := &EventLogger{
		db:     db,
		newID:  idgen.Prefixed("evt_", idgen.Default),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// LogEvent records event. Write errors are logged and swallowed.
func (l *EventLogger) LogEvent(ctx context.Context, event BusinessEvent) {
	if l == nil {
		return
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO business_event_logs (
			event_id, event_type, entity_type, entity_id, user_id, details, success, created_at
		) VALUES (?,?,?,?,?,?,?,?)`,
		l.newID(), event.EventType, event.EntityType, event.EntityID,
		event.UserID, event.Details, event.Success, time.Now().UnixMilli())
	if err != nil {
		l.logger.Error("observability: event log failed", "error", err, "event_type", event.EventType)
	}
}

// Recent returns the newest events of userID, at most limit (default 50).
func (l *EventLogger) Recent(ctx context.Context, userID string, limit int) ([]BusinessEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT event_id, event_type, entity_type, entity_id, user_id, details, success, created_at
		FROM business_event_logs WHERE user_id = ?
		ORDER BY created_at DESC, rowid DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("observability: recent events: %w", err)
	}
	defer rows.Close()

	var out []BusinessEvent
	for rows.Next() {
		var e BusinessEvent
		var success int
		var created int64
		if err := rows.Scan(&e.ID, &e.EventType, &e.EntityType, &e.EntityID,
			&e.UserID, &e.Details, &success, &created); err != nil {
			return nil, fmt.Errorf("observability: scan event: %w", err)
		}
		e.Success = success != 0
		e.CreatedAt = time.UnixMilli(created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Cleanup deletes events and metrics older than retention.
func Cleanup(ctx context.Context, db *sql.DB, retention time.Duration) error {
	if retention <= 0 {
		return nil
	}
	cutoff := time.Now().Add(-retention)
	if _, err := db.ExecContext(ctx, `DELETE FROM business_event_logs WHERE created_at < ?`, cutoff.UnixMilli()); err != nil {
		return fmt.Errorf("observability: cleanup events: %w", err)
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM metrics_timeseries WHERE timestamp < ?`, cutoff.UnixMilli()); err != nil {
		return fmt.Errorf("observability: cleanup metrics: %w", err)
	}
	return nil
}
