// Package observability records what templio did: business events (template
// created, thumbnail dropped, user signed in) and pipeline metrics (capture
// duration, encoded size). Both live in SQLite tables next to the
// application data and are written without ever failing the caller.
package observability

// Schema holds the DDL for the event and metric tables.
const Schema = `
CREATE TABLE IF NOT EXISTS business_event_logs (
    event_id TEXT PRIMARY KEY,
    event_type TEXT NOT NULL,
    entity_type TEXT NOT NULL DEFAULT '',
    entity_id TEXT NOT NULL DEFAULT '',
    user_id TEXT NOT NULL DEFAULT '',
    details TEXT NOT NULL DEFAULT '',
    success INTEGER NOT NULL DEFAULT 1,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_user_time
    ON business_event_logs(user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS metrics_timeseries (
    metric_name TEXT NOT NULL,
    timestamp INTEGER NOT NULL,
    value REAL NOT NULL,
    labels TEXT,
    unit TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_metrics_name_time
    ON metrics_timeseries(metric_name, timestamp DESC);
`
