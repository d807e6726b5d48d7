package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/bondsim/internal/domain"
	"github.com/alanyoungcy/bondsim/internal/market"
	"github.com/alanyoungcy/bondsim/internal/views"
)

// ViewResolver builds page models.
type ViewResolver interface {
	Resolve(ctx context.Context, vs domain.ViewState, f market.Filter) (views.View, error)
}

// ViewHandler serves one resolved page model per request.
type ViewHandler struct {
	views  ViewResolver
	logger *slog.Logger
}

// NewViewHandler creates a ViewHandler.
func NewViewHandler(v ViewResolver, logger *slog.Logger) *ViewHandler {
	return &ViewHandler{views: v, logger: logger}
}

// GetView resolves a page. bondDetail takes the bond as ?bondId=; the
// marketplace accepts the same filter parameters as GET /api/bonds.
// GET /api/views/{page}
func (h *ViewHandler) GetView(w http.ResponseWriter, r *http.Request) {
	vs := domain.ViewState{
		Page:   domain.Page(pathParam(r, "page")),
		BondID: r.URL.Query().Get("bondId"),
	}
	v, err := h.views.Resolve(r.Context(), vs, parseFilter(r))
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to resolve view")
		return
	}
	writeJSON(w, http.StatusOK, v)
}
