package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Pipeline metric names.
const (
	MetricThumbnailDurationMs = "thumbnail_duration_ms"
	MetricThumbnailBytes      = "thumbnail_bytes"
	MetricImagesInlined       = "images_inlined"
	MetricImagesFailed        = "images_failed"
)

// Metric is a single timeseries datapoint.
type Metric struct {
	Name      string
	Timestamp time.Time
	Value     float64
	Labels    map[string]string
	Unit      string
}

// MetricsManager buffers metrics and flushes them in batches, on size or on
// a ticker. Record never blocks on the database.
type MetricsManager struct {
	db            *sql.DB
	bufferSize    int
	flushInterval time.Duration
	logger        *slog.Logger

	mu     sync.Mutex
	buffer []*Metric
	stop   chan struct{}
	done   chan struct{}
}

// NewMetricsManager starts a manager. Defaults: 100 points, 5s.
func NewMetricsManager(db *sql.DB, bufferSize int, flushInterval time.Duration, logger *slog.Logger) *MetricsManager {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	mm := &MetricsManager{
		db:            db,
		bufferSize:    bufferSize,
		flushInterval: flushInterval,
		logger:        logger,
		buffer:        make([]*Metric, 0, bufferSize),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	go mm.flushLoop()
	return mm
}

// Record queues m. A nil manager drops it.
func (mm *MetricsManager) Record(m *Metric) {
	if mm == nil {
		return
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.buffer = append(mm.buffer, m)
	if len(mm.buffer) >= mm.bufferSize {
		mm.flushLocked()
	}
}

// ThumbnailSample is what one pipeline run reports.
type ThumbnailSample struct {
	At       time.Time
	Duration time.Duration
	Inlined  int
	Failed   int
	// Bytes is the stored data URI length; 0 when the screenshot was
	// dropped.
	Bytes  int
	Format string
}

// RecordThumbnail queues the points of one pipeline run. Every point is
// labelled with the outcome ("stored" or "dropped") and, when stored, the
// image format.
func (mm *MetricsManager) RecordThumbnail(s ThumbnailSample) {
	labels := map[string]string{"outcome": "dropped"}
	if s.Bytes > 0 {
		labels = map[string]string{"outcome": "stored", "format": s.Format}
	}
	at := s.At
	if at.IsZero() {
		at = time.Now()
	}
	point := func(name string, v float64, unit string) {
		mm.Record(&Metric{Name: name, Timestamp: at, Value: v, Unit: unit, Labels: labels})
	}
	point(MetricThumbnailDurationMs, float64(s.Duration.Milliseconds()), "ms")
	point(MetricImagesInlined, float64(s.Inlined), "")
	point(MetricImagesFailed, float64(s.Failed), "")
	if s.Bytes > 0 {
		point(MetricThumbnailBytes, float64(s.Bytes), "bytes")
	}
}

// Query returns points for name, newest first. limit <= 0 means no limit.
func (mm *MetricsManager) Query(ctx context.Context, name string, limit int) ([]*Metric, error) {
	q := "SELECT metric_name, timestamp, value, labels, unit FROM metrics_timeseries WHERE metric_name = ? ORDER BY timestamp DESC"
	args := []any{name}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := mm.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("observability: query metrics: %w", err)
	}
	defer rows.Close()

	var out []*Metric
	for rows.Next() {
		var m Metric
		var ts int64
		var labels sql.NullString
		if err := rows.Scan(&m.Name, &ts, &m.Value, &labels, &m.Unit); err != nil {
			return nil, fmt.Errorf("observability: scan metric: %w", err)
		}
		m.Timestamp = time.UnixMilli(ts)
		if labels.Valid {
			_ = json.Unmarshal([]byte(labels.String), &m.Labels)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// Flush writes buffered points now.
func (mm *MetricsManager) Flush() {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.flushLocked()
}

// Close flushes what is left and stops the flush loop.
func (mm *MetricsManager) Close() error {
	close(mm.stop)
	<-mm.done
	return nil
}

func (mm *MetricsManager) flushLoop() {
	defer close(mm.done)
	ticker := time.NewTicker(mm.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-mm.stop:
			mm.Flush()
			return
		case <-ticker.C:
			mm.Flush()
		}
	}
}

func (mm *MetricsManager) flushLocked() {
	if len(mm.buffer) == 0 {
		return
	}
	defer func() { mm.buffer = mm.buffer[:0] }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tx, err := mm.db.BeginTx(ctx, nil)
	if err != nil {
		mm.logger.Error("observability: metrics begin tx", "error", err)
		return
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO metrics_timeseries (metric_name, timestamp, value, labels, unit) VALUES (?,?,?,?,?)`)
	if err != nil {
		tx.Rollback()
		mm.logger.Error("observability: metrics prepare", "error", err)
		return
	}
	defer stmt.Close()

	for _, m := range mm.buffer {
		var labels sql.NullString
		if len(m.Labels) > 0 {
			if b, err := json.Marshal(m.Labels); err == nil {
				labels = sql.NullString{String: string(b), Valid: true}
			}
		}
		if _, err := stmt.ExecContext(ctx, m.Name, m.Timestamp.UnixMilli(), m.Value, labels, m.Unit); err != nil {
			mm.logger.Error("observability: metrics insert", "error", err, "metric", m.Name)
		}
	}
	if err := tx.Commit(); err != nil {
		mm.logger.Error("observability: metrics commit", "error", err)
	}
}
