package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/bondsim/internal/domain"
)

// Archive kinds, used as the second path segment.
const (
	KindTransactions = "transactions"
	KindAnalytics    = "analytics"
)

// snapshotPartSize is the multipart chunk used for bond-book snapshots.
const snapshotPartSize int64 = 8 * 1024 * 1024

// MultipartWriter is implemented by writers that can stream large objects.
type MultipartWriter interface {
	PutMultipart(ctx context.Context, path string, data io.Reader, contentType string, partSize int64) error
}

// ArchiverConfig controls batching.
type ArchiverConfig struct {
	Prefix        string
	FlushInterval time.Duration
	MaxBatch      int
	MaxBuffer     int
}

// Archiver buffers log entries evicted from the in-memory logs and flushes
// them as JSONL objects under {prefix}/{kind}/YYYY-MM-DD/{unixnano}.jsonl.
// Terminal transactions are also written to the relational archive when one
// is configured. Enqueueing never blocks.
type Archiver struct {
	cfg     ArchiverConfig
	writer  domain.BlobWriter
	archive domain.TransactionArchive
	audit   domain.AuditStore
	logger  *slog.Logger
	now     func() time.Time

	mu        sync.Mutex
	txs       []domain.TransactionEvent
	analytics []domain.AnalyticsLog
	kick      chan struct{}
}

// NewArchiver creates an Archiver. writer, archive and audit may each be nil.
func NewArchiver(cfg ArchiverConfig, writer domain.BlobWriter, archive domain.TransactionArchive, audit domain.AuditStore, logger *slog.Logger) *Archiver {
	if cfg.Prefix == "" {
		cfg.Prefix = "archive"
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Minute
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = 500
	}
	if cfg.MaxBuffer < cfg.MaxBatch {
		cfg.MaxBuffer = cfg.MaxBatch * 10
	}
	return &Archiver{
		cfg:     cfg,
		writer:  writer,
		archive: archive,
		audit:   audit,
		logger:  logger.With(slog.String("component", "archiver")),
		now:     time.Now,
		kick:    make(chan struct{}, 1),
	}
}

// ArchiveTransaction queues an evicted transaction.
func (a *Archiver) ArchiveTransaction(tx domain.TransactionEvent) {
	a.mu.Lock()
	a.txs = capped(append(a.txs, tx), a.cfg.MaxBuffer)
	full := len(a.txs) >= a.cfg.MaxBatch
	a.mu.Unlock()
	if full {
		a.signal()
	}
}

// ArchiveAnalytics queues an evicted analytics line.
func (a *Archiver) ArchiveAnalytics(l domain.AnalyticsLog) {
	a.mu.Lock()
	a.analytics = capped(append(a.analytics, l), a.cfg.MaxBuffer)
	full := len(a.analytics) >= a.cfg.MaxBatch
	a.mu.Unlock()
	if full {
		a.signal()
	}
}

func (a *Archiver) signal() {
	select {
	case a.kick <- struct{}{}:
	default:
	}
}

// Pending returns the number of buffered entries.
func (a *Archiver) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.txs) + len(a.analytics)
}

// Run flushes on every interval and whenever a buffer fills, until ctx is
// done. A final flush runs on shutdown.
func (a *Archiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := a.Flush(flushCtx); err != nil {
				a.logger.Error("archiver: final flush failed", slog.String("error", err.Error()))
			}
			cancel()
			return ctx.Err()
		case <-ticker.C:
		case <-a.kick:
		}
		if err := a.Flush(ctx); err != nil {
			a.logger.WarnContext(ctx, "archiver: flush failed, will retry",
				slog.String("error", err.Error()),
			)
		}
	}
}

// Flush writes everything buffered. Entries that could not be written are
// put back for the next attempt.
func (a *Archiver) Flush(ctx context.Context) error {
	a.mu.Lock()
	txs, logs := a.txs, a.analytics
	a.txs, a.analytics = nil, nil
	a.mu.Unlock()

	if len(txs) == 0 && len(logs) == 0 {
		return nil
	}

	var errs []error
	if err := a.flushTransactions(ctx, txs); err != nil {
		errs = append(errs, err)
		a.requeueTransactions(txs)
		txs = nil
	}
	if err := putJSONL(ctx, a, KindAnalytics, logs); err != nil {
		errs = append(errs, err)
		a.requeueAnalytics(logs)
		logs = nil
	}

	if len(txs)+len(logs) > 0 {
		a.logger.InfoContext(ctx, "archived evicted log entries",
			slog.Int("transactions", len(txs)),
			slog.Int("analytics", len(logs)),
		)
		if a.audit != nil {
			if err := a.audit.Log(ctx, "archive_flush", map[string]any{
				"transactions": len(txs),
				"analytics":    len(logs),
			}); err != nil {
				a.logger.WarnContext(ctx, "archiver: audit log failed", slog.String("error", err.Error()))
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("s3blob: flush: %w", errors.Join(errs...))
	}
	return nil
}

func (a *Archiver) flushTransactions(ctx context.Context, txs []domain.TransactionEvent) error {
	if len(txs) == 0 {
		return nil
	}
	if a.archive != nil {
		if err := a.archive.InsertBatch(ctx, txs); err != nil {
			return fmt.Errorf("archive %d transactions: %w", len(txs), err)
		}
	}
	return putJSONL(ctx, a, KindTransactions, txs)
}

// putJSONL uploads items as one JSONL object. It is a no-op without a
// writer or items.
func putJSONL[T any](ctx context.Context, a *Archiver, kind string, items []T) error {
	if a.writer == nil || len(items) == 0 {
		return nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, it := range items {
		if err := enc.Encode(it); err != nil {
			return fmt.Errorf("encode %s: %w", kind, err)
		}
	}

	path := a.objectPath(kind, "jsonl")
	if err := a.writer.Put(ctx, path, &buf, "application/x-ndjson"); err != nil {
		return fmt.Errorf("upload %s: %w", path, err)
	}
	return nil
}

// SnapshotBonds writes the whole bond book as one JSON document and returns
// its path.
func (a *Archiver) SnapshotBonds(ctx context.Context, bonds []domain.Bond) (string, error) {
	if a.writer == nil {
		return "", fmt.Errorf("s3blob: snapshot: %w: no blob writer configured", domain.ErrNotConnected)
	}
	data, err := json.Marshal(bonds)
	if err != nil {
		return "", fmt.Errorf("s3blob: snapshot: encode: %w", err)
	}

	path := a.objectPath("bonds", "json")
	if mw, ok := a.writer.(MultipartWriter); ok {
		err = mw.PutMultipart(ctx, path, bytes.NewReader(data), "application/json", snapshotPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(data), "application/json")
	}
	if err != nil {
		return "", fmt.Errorf("s3blob: snapshot: %w", err)
	}
	a.logger.InfoContext(ctx, "bond book snapshot written",
		slog.String("path", path),
		slog.Int("bonds", len(bonds)),
	)
	return path, nil
}

func (a *Archiver) objectPath(kind, ext string) string {
	now := a.now().UTC()
	return fmt.Sprintf("%s/%s/%s/%d.%s", a.cfg.Prefix, kind, now.Format("2006-01-02"), now.UnixNano(), ext)
}

func (a *Archiver) requeueTransactions(txs []domain.TransactionEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.txs = capped(append(txs, a.txs...), a.cfg.MaxBuffer)
}

func (a *Archiver) requeueAnalytics(logs []domain.AnalyticsLog) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.analytics = capped(append(logs, a.analytics...), a.cfg.MaxBuffer)
}

// capped drops the oldest entries beyond limit.
func capped[T any](s []T, limit int) []T {
	if len(s) <= limit {
		return s
	}
	return append([]T(nil), s[len(s)-limit:]...)
}
