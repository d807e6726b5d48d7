package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/bondsim/internal/domain"
	"github.com/alanyoungcy/bondsim/internal/market"
	"github.com/alanyoungcy/bondsim/internal/markdown"
)

const defaultCommentaryTopic = "Indian corporate bond market outlook"

// BondCatalog is the read side of the bond book.
type BondCatalog interface {
	Get(id string) (domain.Bond, bool)
	List(f market.Filter) []domain.Bond
}

// MarketService is the write side of the bond book.
type MarketService interface {
	Import(ctx context.Context, filename string, r io.Reader, progress func(float64)) (int, error)
	Commentary(ctx context.Context, topic string) markdown.Document
}

// BondHandler serves the marketplace endpoints.
type BondHandler struct {
	bonds     BondCatalog
	market    MarketService
	audit     Auditor
	maxUpload int64
	logger    *slog.Logger
}

// NewBondHandler creates a BondHandler. maxUpload bounds CSV uploads in
// bytes; audit may be nil.
func NewBondHandler(bonds BondCatalog, svc MarketService, audit Auditor, maxUpload int64, logger *slog.Logger) *BondHandler {
	if maxUpload <= 0 {
		maxUpload = 32 << 20
	}
	return &BondHandler{bonds: bonds, market: svc, audit: audit, maxUpload: maxUpload, logger: logger}
}

// ListBonds returns the bonds matching the marketplace filter.
// GET /api/bonds?search=&rating=AAA,AA&minCoupon=&sort=coupon&desc=true&limit=
func (h *BondHandler) ListBonds(w http.ResponseWriter, r *http.Request) {
	bonds := h.bonds.List(parseFilter(r))
	if bonds == nil {
		bonds = []domain.Bond{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"bonds": bonds,
		"count": len(bonds),
	})
}

// GetBond returns a single bond by ISIN.
// GET /api/bonds/{id}
func (h *BondHandler) GetBond(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing bond id")
		return
	}
	bond, ok := h.bonds.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "Bond not found")
		return
	}
	writeJSON(w, http.StatusOK, bond)
}

// ImportBonds replaces the book with a CSV upload sent as the multipart
// field "file".
// POST /api/bonds/import
func (h *BondHandler) ImportBonds(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	logger := h.logger.With(slog.String("file", header.Filename))
	n, err := h.market.Import(r.Context(), header.Filename, file, func(p float64) {
		logger.DebugContext(r.Context(), "import progress", slog.Float64("progress", p))
	})
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to import bonds")
		return
	}

	audit(r.Context(), h.audit, h.logger, "bonds_import", map[string]any{
		"file":  header.Filename,
		"bonds": n,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"imported": n,
		"source":   market.SourceCSV,
	})
}

// Commentary returns AI market commentary as a markdown AST.
// GET /api/commentary?topic=
func (h *BondHandler) Commentary(w http.ResponseWriter, r *http.Request) {
	topic := strings.TrimSpace(r.URL.Query().Get("topic"))
	if topic == "" {
		topic = defaultCommentaryTopic
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"topic":    topic,
		"document": h.market.Commentary(r.Context(), topic),
	})
}
