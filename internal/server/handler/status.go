package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/bondsim/internal/domain"
	"github.com/alanyoungcy/bondsim/internal/market"
)

// StatusSource reports the runtime facts shown in the dashboard header.
type StatusSource interface {
	Scenario() domain.Scenario
}

// BookStatus reports where the bond book came from and how big it is.
type BookStatus interface {
	Source() market.Source
	BookSize() int
}

// StatusHandler serves the backend status for the dashboard.
type StatusHandler struct {
	mode      string
	startedAt time.Time
	scenario  StatusSource
	book      BookStatus
	user      UserSource
}

// UserSource returns the current user.
type UserSource interface {
	User() domain.User
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(mode string, startedAt time.Time, scenario StatusSource, book BookStatus, user UserSource) *StatusHandler {
	return &StatusHandler{mode: mode, startedAt: startedAt, scenario: scenario, book: book, user: user}
}

// GetStatus responds with the mode, scenario, book source and session state.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	u := h.user.User()
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.mode,
		"scenario":       h.scenario.Scenario(),
		"contingency":    h.scenario.Scenario() == domain.ScenarioContingency,
		"bookSource":     h.book.Source(),
		"bonds":          h.book.BookSize(),
		"connected":      u.Connected,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	})
}
