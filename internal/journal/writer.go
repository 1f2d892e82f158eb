package journal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/rickgao/tutorlink-realtime/internal/dispatch"
)

// Table is the journal table name.
const Table = "realtime_events"

var columns = []string{"id", "user_id", "event", "payload", "received_at"}

const schema = `
CREATE TABLE IF NOT EXISTS realtime_events (
	id          UUID PRIMARY KEY,
	user_id     TEXT NOT NULL,
	event       TEXT NOT NULL,
	payload     JSONB,
	received_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS realtime_events_user_received_idx
	ON realtime_events (user_id, received_at DESC);
`

// ErrNotStarted is returned by Stop on a writer that was never started.
var ErrNotStarted = errors.New("journal: writer not started")

// DB is the subset of pgxpool.Pool the writer uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Observer is notified of journal activity. Used for metrics.
type Observer interface {
	JournalWritten(rows int)
	JournalDropped()
	JournalFlushFailed()
}

// Config holds writer configuration.
type Config struct {
	BatchSize     int           // Rows per COPY (default: 100)
	FlushInterval time.Duration // Max time an event waits (default: 2s)
	BufferSize    int           // Events held before dropping (default: 1000)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     100,
		FlushInterval: 2 * time.Second,
		BufferSize:    1000,
	}
}

// Stats holds writer counters.
type Stats struct {
	Written int64
	Dropped int64
	Flushes int64
	Errors  int64
}

type row struct {
	id         uuid.UUID
	event      string
	payload    []byte
	receivedAt time.Time
}

// Writer journals events for one user.
type Writer struct {
	cfg      Config
	db       DB
	userID   string
	observer Observer
	logger   *slog.Logger

	input chan row

	mu      sync.Mutex
	stats   Stats
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewWriter creates a writer. observer may be nil.
func NewWriter(cfg Config, db DB, userID string, observer Observer, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	return &Writer{
		cfg:      cfg,
		db:       db,
		userID:   userID,
		observer: observer,
		logger:   logger.With("component", "journal", "user_id", userID),
		input:    make(chan row, cfg.BufferSize),
	}
}

// EnsureSchema creates the journal table and index if they do not exist.
func EnsureSchema(ctx context.Context, db DB) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create journal schema: %w", err)
	}
	return nil
}

// OnEvent buffers e for writing. It never blocks and never fails; a full
// buffer drops the event.
func (w *Writer) OnEvent(e dispatch.Event) error {
	r := row{
		id:         uuid.New(),
		event:      e.Name,
		receivedAt: e.ReceivedAt,
	}
	if len(e.Data) > 0 {
		r.payload = []byte(e.Data)
	}
	if r.receivedAt.IsZero() {
		r.receivedAt = time.Now()
	}

	select {
	case w.input <- r:
	default:
		w.drop(1)
		w.logger.Warn("journal buffer full, dropping event", "event", e.Name)
	}
	return nil
}

func (w *Writer) drop(n int) {
	w.mu.Lock()
	w.stats.Dropped += int64(n)
	w.mu.Unlock()
	if w.observer != nil {
		for range n {
			w.observer.JournalDropped()
		}
	}
}

// Start begins the batching loop. A stopped writer may be started again.
func (w *Writer) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}
	w.started = true

	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	go w.run(ctx, w.done)

	w.logger.Info("journal writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop ends the loop and writes whatever is buffered using ctx.
func (w *Writer) Stop(ctx context.Context) error {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel = nil
	w.started = false
	w.mu.Unlock()

	if cancel == nil {
		return ErrNotStarted
	}
	cancel()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("journal writer stop timed out")
		return ctx.Err()
	}

	// Final flush
	batch := w.drain(nil)
	for len(batch) > 0 {
		n := min(len(batch), w.cfg.BatchSize)
		w.flush(ctx, batch[:n])
		batch = batch[n:]
	}

	w.logger.Info("journal writer stopped")
	return nil
}

// Stats returns current counters.
func (w *Writer) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// run accumulates rows and flushes on size or interval.
func (w *Writer) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	// A flush already underway finishes even when Stop cancels the loop.
	flushCtx := context.WithoutCancel(ctx)

	batch := make([]row, 0, w.cfg.BatchSize)
	defer func() { w.requeue(batch) }()

	for {
		select {
		case <-ctx.Done():
			return
		case r := <-w.input:
			batch = append(batch, r)
			if len(batch) >= w.cfg.BatchSize {
				w.flush(flushCtx, batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(flushCtx, batch)
				batch = batch[:0]
			}
		}
	}
}

// requeue hands unflushed rows back to the input so Stop can write them.
// Rows that do not fit are dropped and counted.
func (w *Writer) requeue(rows []row) {
	lost := 0
	for _, r := range rows {
		select {
		case w.input <- r:
		default:
			lost++
		}
	}
	if lost > 0 {
		w.drop(lost)
		w.logger.Warn("journal buffer full, dropping unflushed rows", "rows", lost)
	}
}

// drain empties the input channel into batch.
func (w *Writer) drain(batch []row) []row {
	for {
		select {
		case r := <-w.input:
			batch = append(batch, r)
		default:
			return batch
		}
	}
}

// flush writes rows with COPY. Failed batches are logged and discarded.
func (w *Writer) flush(ctx context.Context, rows []row) {
	start := time.Now()

	src := make([][]any, len(rows))
	for i, r := range rows {
		var payload any
		if r.payload != nil {
			payload = r.payload
		}
		src[i] = []any{
			pgtype.UUID{Bytes: r.id, Valid: true},
			w.userID,
			r.event,
			payload,
			r.receivedAt,
		}
	}

	n, err := w.db.CopyFrom(ctx, pgx.Identifier{Table}, columns, pgx.CopyFromRows(src))
	if err != nil {
		w.mu.Lock()
		w.stats.Errors++
		w.mu.Unlock()
		if w.observer != nil {
			w.observer.JournalFlushFailed()
		}
		w.logger.Error("journal flush failed", "error", err, "count", len(rows))
		return
	}

	w.mu.Lock()
	w.stats.Written += n
	w.stats.Flushes++
	w.mu.Unlock()
	if w.observer != nil {
		w.observer.JournalWritten(int(n))
	}

	w.logger.Debug("flushed journal",
		"count", n,
		"duration", time.Since(start),
	)
}
