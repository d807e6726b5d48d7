// Package market owns the in-memory bond book and the providers that fill it.
package market

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/bondsim/internal/domain"
)

// Provider generates bonds, price ticks and market commentary.
type Provider interface {
	Name() string
	Bonds(ctx context.Context, n int) ([]domain.Bond, error)
	PriceUpdates(ctx context.Context, bonds []domain.Bond, n int) ([]domain.PriceUpdate, error)
	Commentary(ctx context.Context, topic string, scenario domain.Scenario) (string, error)
}

// Fallback tries the primary provider and falls back to the secondary when
// the primary fails or returns nothing. A nil primary always uses the
// secondary.
type Fallback struct {
	primary   Provider
	secondary Provider
	logger    *slog.Logger
}

// NewFallback creates a Fallback provider.
func NewFallback(primary, secondary Provider, logger *slog.Logger) *Fallback {
	return &Fallback{primary: primary, secondary: secondary, logger: logger}
}

func (f *Fallback) Name() string {
	if f.primary == nil {
		return f.secondary.Name()
	}
	return f.primary.Name() + "+" + f.secondary.Name()
}

func (f *Fallback) Bonds(ctx context.Context, n int) ([]domain.Bond, error) {
	if f.primary != nil {
		bonds, err := f.primary.Bonds(ctx, n)
		if err == nil && len(bonds) > 0 {
			return bonds, nil
		}
		f.warn(ctx, "bonds", err)
	}
	bonds, err := f.secondary.Bonds(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("market: fallback bonds: %w", err)
	}
	return bonds, nil
}

func (f *Fallback) PriceUpdates(ctx context.Context, bonds []domain.Bond, n int) ([]domain.PriceUpdate, error) {
	if f.primary != nil {
		updates, err := f.primary.PriceUpdates(ctx, bonds, n)
		if err == nil && len(updates) > 0 {
			return updates, nil
		}
		f.warn(ctx, "price updates", err)
	}
	updates, err := f.secondary.PriceUpdates(ctx, bonds, n)
	if err != nil {
		return nil, fmt.Errorf("market: fallback price updates: %w", err)
	}
	return updates, nil
}

func (f *Fallback) Commentary(ctx context.Context, topic string, scenario domain.Scenario) (string, error) {
	if f.primary != nil {
		text, err := f.primary.Commentary(ctx, topic, scenario)
		if err == nil && text != "" {
			return text, nil
		}
		f.warn(ctx, "commentary", err)
	}
	text, err := f.secondary.Commentary(ctx, topic, scenario)
	if err != nil {
		return "", fmt.Errorf("market: fallback commentary: %w", err)
	}
	return text, nil
}

func (f *Fallback) warn(ctx context.Context, op string, err error) {
	msg := "empty response"
	if err != nil {
		msg = err.Error()
	}
	f.logger.WarnContext(ctx, "primary provider failed, using fallback",
		slog.String("provider", f.primary.Name()),
		slog.String("op", op),
		slog.String("error", msg),
	)
}
