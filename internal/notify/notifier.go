// Package notify fans user-facing toasts out to the live feed and to
// operator channels (Telegram, Discord). Operator delivery is filtered by
// event type.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/bondsim/internal/domain"
)

// Event types a toast can carry.
const (
	EventTransactionSuccess = "transaction_success"
	EventTransactionFailed  = "transaction_failed"
	EventScenarioChanged    = "scenario_changed"
)

// Level is the visual severity of a toast.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Toast is a short notification shown to the user.
type Toast struct {
	Event     string    `json:"event"`
	Level     Level     `json:"level"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Sender delivers a toast to one external channel.
type Sender interface {
	Send(ctx context.Context, t Toast) error
	Name() string
}

// Notifier publishes toasts on the signal bus and forwards the allowed event
// types to every sender. A nil bus skips the live feed.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	bus     domain.SignalBus
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. If events is empty every event type is
// forwarded to the senders.
func NewNotifier(senders []Sender, events []string, bus domain.SignalBus, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		bus:     bus,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Toast delivers t. Failures are logged; the toast is best effort.
func (n *Notifier) Toast(ctx context.Context, t Toast) {
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now().UTC()
	}

	if n.bus != nil {
		payload, _ := json.Marshal(t)
		if err := n.bus.Publish(ctx, domain.ChannelToasts, payload); err != nil {
			n.logger.WarnContext(ctx, "publish toast failed", slog.String("error", err.Error()))
		}
	}

	if len(n.events) > 0 && !n.events[t.Event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", t.Event))
		return
	}
	if err := n.dispatch(ctx, t); err != nil {
		n.logger.WarnContext(ctx, "toast delivery incomplete", slog.String("error", err.Error()))
	}
}

// dispatch sends t to every sender, collecting failures.
func (n *Notifier) dispatch(ctx context.Context, t Toast) error {
	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, t); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "toast sent",
			slog.String("sender", s.Name()),
			slog.String("title", t.Title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
