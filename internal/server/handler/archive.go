package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/alanyoungcy/bondsim/internal/domain"
)

// ArchiveLister lists transactions that were archived to postgres.
type ArchiveLister interface {
	List(ctx context.Context, opts domain.ListOpts) ([]domain.TransactionEvent, error)
}

// AuditLister lists audit log entries.
type AuditLister interface {
	List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error)
}

// ArchiveHandler serves the archived history. Every dependency is optional;
// routes backed by a missing one answer 503.
type ArchiveHandler struct {
	blobs  domain.BlobReader
	prefix string
	txs    ArchiveLister
	audit  AuditLister
	logger *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler. prefix is the root under which
// the archiver writes objects.
func NewArchiveHandler(blobs domain.BlobReader, prefix string, txs ArchiveLister, audit AuditLister, logger *slog.Logger) *ArchiveHandler {
	if prefix == "" {
		prefix = "archive"
	}
	return &ArchiveHandler{blobs: blobs, prefix: strings.Trim(prefix, "/"), txs: txs, audit: audit, logger: logger}
}

// ListObjects lists archive objects, optionally narrowed to one kind and day.
// GET /api/archives?kind=transactions&date=2026-05-01
func (h *ArchiveHandler) ListObjects(w http.ResponseWriter, r *http.Request) {
	if h.blobs == nil {
		writeError(w, http.StatusServiceUnavailable, "object storage not configured")
		return
	}
	p := h.prefix + "/"
	if kind := r.URL.Query().Get("kind"); kind != "" {
		p += path.Clean(kind) + "/"
		if day := r.URL.Query().Get("date"); day != "" {
			p += path.Clean(day) + "/"
		}
	}
	infos, err := h.blobs.List(r.Context(), p)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to list archives")
		return
	}
	if infos == nil {
		infos = []domain.BlobInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"objects": infos,
		"count":   len(infos),
	})
}

// GetObject streams one archive object.
// GET /api/archives/object?path=archive/transactions/2026-05-01/1.jsonl
func (h *ArchiveHandler) GetObject(w http.ResponseWriter, r *http.Request) {
	if h.blobs == nil {
		writeError(w, http.StatusServiceUnavailable, "object storage not configured")
		return
	}
	p := path.Clean(r.URL.Query().Get("path"))
	if !strings.HasPrefix(p, h.prefix+"/") {
		writeError(w, http.StatusBadRequest, "path must be inside "+h.prefix+"/")
		return
	}
	rc, err := h.blobs.Get(r.Context(), p)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to read archive")
		return
	}
	defer rc.Close()

	ct := "application/octet-stream"
	switch path.Ext(p) {
	case ".jsonl":
		ct = "application/x-ndjson"
	case ".json":
		ct = "application/json"
	}
	w.Header().Set("Content-Type", ct)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.WarnContext(r.Context(), "handler: archive stream interrupted",
			slog.String("path", p),
			slog.String("error", err.Error()),
		)
	}
}

// ListTransactions pages through transactions archived to postgres.
// GET /api/archives/transactions?limit=&offset=&since=&until=
func (h *ArchiveHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	if h.txs == nil {
		writeError(w, http.StatusServiceUnavailable, "database not configured")
		return
	}
	opts := parseListOpts(r)
	txs, err := h.txs.List(r.Context(), opts)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to list archived transactions")
		return
	}
	if txs == nil {
		txs = []domain.TransactionEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"transactions": txs,
		"limit":        opts.Limit,
		"offset":       opts.Offset,
	})
}

// ListAudit pages through the audit log.
// GET /api/audit?limit=&offset=&since=&until=
func (h *ArchiveHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeError(w, http.StatusServiceUnavailable, "database not configured")
		return
	}
	opts := parseListOpts(r)
	entries, err := h.audit.List(r.Context(), opts)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to list audit log")
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"limit":   opts.Limit,
		"offset":  opts.Offset,
	})
}
