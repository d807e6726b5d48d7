// Package session persists the user session on a best-effort basis. Storage
// failures are logged and never surface to the caller.
package session

import (
	"context"
	"errors"
	"log/slog"

	"github.com/alanyoungcy/bondsim/internal/domain"
)

// Persister adapts a domain.SessionStore to the simulator's fire-and-forget
// persistence contract.
type Persister struct {
	store  domain.SessionStore
	logger *slog.Logger
}

// NewPersister wraps store.
func NewPersister(store domain.SessionStore, logger *slog.Logger) *Persister {
	return &Persister{
		store:  store,
		logger: logger.With(slog.String("component", "session")),
	}
}

// Load returns the stored session. ok is false when nothing is stored or the
// stored blob cannot be read.
func (p *Persister) Load(ctx context.Context) (domain.Session, bool) {
	s, err := p.store.Load(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			p.logger.WarnContext(ctx, "session: load failed, starting fresh",
				slog.String("error", err.Error()),
			)
		}
		return domain.Session{}, false
	}
	return s, true
}

func (p *Persister) Save(ctx context.Context, s domain.Session) {
	if err := p.store.Save(ctx, s); err != nil {
		p.logger.ErrorContext(ctx, "session: save failed",
			slog.String("error", err.Error()),
		)
	}
}

func (p *Persister) Clear(ctx context.Context) {
	if err := p.store.Clear(ctx); err != nil {
		p.logger.ErrorContext(ctx, "session: clear failed",
			slog.String("error", err.Error()),
		)
	}
}
