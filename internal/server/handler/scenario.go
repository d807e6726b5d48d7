package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/bondsim/internal/domain"
)

// ScenarioService drives the simulated infrastructure.
type ScenarioService interface {
	Scenario() domain.Scenario
	SetScenario(ctx context.Context, sc domain.Scenario) error
	Metrics() []domain.SystemMetric
}

// ScenarioHandler serves scenario and metrics endpoints.
type ScenarioHandler struct {
	engine ScenarioService
	audit  Auditor
	logger *slog.Logger
}

// NewScenarioHandler creates a ScenarioHandler. audit may be nil.
func NewScenarioHandler(engine ScenarioService, audit Auditor, logger *slog.Logger) *ScenarioHandler {
	return &ScenarioHandler{engine: engine, audit: audit, logger: logger}
}

// GetScenario returns the active scenario and the selectable ones.
// GET /api/scenario
func (h *ScenarioHandler) GetScenario(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"scenario":  h.engine.Scenario(),
		"scenarios": domain.Scenarios,
	})
}

type scenarioRequest struct {
	Scenario string `json:"scenario"`
}

// SetScenario switches the active scenario.
// PUT /api/scenario {"scenario":"dlt_congestion"}
func (h *ScenarioHandler) SetScenario(w http.ResponseWriter, r *http.Request) {
	var req scenarioRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sc, ok := domain.ParseScenario(req.Scenario)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown scenario "+req.Scenario)
		return
	}
	prev := h.engine.Scenario()
	if err := h.engine.SetScenario(r.Context(), sc); err != nil {
		writeDomainError(w, r, h.logger, err, "failed to set scenario")
		return
	}
	audit(r.Context(), h.audit, h.logger, "scenario_change", map[string]any{
		"from": string(prev),
		"to":   string(sc),
	})
	writeJSON(w, http.StatusOK, map[string]any{"scenario": sc})
}

// GetMetrics returns the latest metric of every service.
// GET /api/metrics
func (h *ScenarioHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"scenario": h.engine.Scenario(),
		"metrics":  h.engine.Metrics(),
	})
}
