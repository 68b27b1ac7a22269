// Package audit records identity lifecycle events and todo mutations.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/netip"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wisbric/todoapi/internal/auth"
)

// Entry is one audit record. Nil pointers are stored as NULL.
type Entry struct {
	UserID     *uuid.UUID
	Action     string
	Resource   string
	ResourceID uuid.UUID
	Detail     json.RawMessage
	IPAddress  *netip.Addr
	UserAgent  *string
}

// BatchSender is satisfied by *pgxpool.Pool and pgx.Tx.
type BatchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

const (
	bufferSize    = 256
	flushInterval = 2 * time.Second
	flushBatch    = 32
	flushTimeout  = 10 * time.Second
)

// Writer queues entries in memory and writes them in batches from a single
// background goroutine. Log never blocks; when the queue is full the entry
// is dropped with a warning.
type Writer struct {
	db      BatchSender
	logger  *slog.Logger
	entries chan Entry
	wg      sync.WaitGroup
	close   sync.Once
}

// NewWriter creates a Writer. Call Start to begin writing.
func NewWriter(db BatchSender, logger *slog.Logger) *Writer {
	return &Writer{
		db:      db,
		logger:  logger,
		entries: make(chan Entry, bufferSize),
	}
}

// Start launches the flush loop. The loop drains what is queued and exits
// when ctx is cancelled or Close is called.
func (w *Writer) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
}

// Close stops accepting entries and waits for the queue to be written.
func (w *Writer) Close() {
	w.close.Do(func() { close(w.entries) })
	w.wg.Wait()
}

// Log enqueues an entry.
func (w *Writer) Log(entry Entry) {
	select {
	case w.entries <- entry:
	default:
		w.logger.Warn("audit log buffer full, dropping entry",
			"action", entry.Action, "resource", entry.Resource)
	}
}

// LogFromRequest enqueues an entry attributed to the authenticated caller,
// with the client address and user agent taken from the request.
func (w *Writer) LogFromRequest(r *http.Request, action, resource string, resourceID uuid.UUID, detail json.RawMessage) {
	entry := Entry{
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		Detail:     detail,
	}
	if id := auth.FromContext(r.Context()); id != nil {
		uid := id.UserID
		entry.UserID = &uid
	}
	if addr, err := netip.ParseAddr(auth.ClientIP(r)); err == nil {
		entry.IPAddress = &addr
	}
	if ua := r.Header.Get("User-Agent"); ua != "" {
		entry.UserAgent = &ua
	}
	w.Log(entry)
}

func (w *Writer) run(ctx context.Context) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]Entry, 0, flushBatch)
	flush := func() {
		if len(batch) > 0 {
			w.flush(batch)
			batch = batch[:0]
		}
	}

	for {
		select {
		case entry, ok := <-w.entries:
			if !ok {
				flush()
				return
			}
			if batch = append(batch, entry); len(batch) >= flushBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			batch = append(batch, w.drain()...)
			flush()
			return
		}
	}
}

// drain returns whatever is currently queued without waiting.
func (w *Writer) drain() []Entry {
	var out []Entry
	for {
		select {
		case entry, ok := <-w.entries:
			if !ok {
				return out
			}
			out = append(out, entry)
		default:
			return out
		}
	}
}

const insertEntry = `INSERT INTO audit_log (user_id, action, resource, resource_id, detail, ip_address, user_agent)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

// flush writes entries in one round trip. A failed row is logged and does
// not abort the rest.
func (w *Writer) flush(entries []Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	b := &pgx.Batch{}
	for _, e := range entries {
		var resourceID *uuid.UUID
		if e.ResourceID != uuid.Nil {
			resourceID = &e.ResourceID
		}
		detail := e.Detail
		if len(detail) == 0 {
			detail = json.RawMessage(`{}`)
		}
		b.Queue(insertEntry, e.UserID, e.Action, e.Resource, resourceID, detail, e.IPAddress, e.UserAgent)
	}

	results := w.db.SendBatch(ctx, b)
	defer func() {
		if err := results.Close(); err != nil {
			w.logger.Error("closing audit batch", "error", err)
		}
	}()

	for _, e := range entries {
		if _, err := results.Exec(); err != nil {
			w.logger.Error("writing audit log entry", "error", err,
				"action", e.Action, "resource", e.Resource)
		}
	}
}
