// Package gemini generates simulated market data with the Gemini API.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/alanyoungcy/bondsim/internal/domain"
)

const defaultModel = "gemini-2.5-flash"

// generator is the subset of genai.Models used by the provider.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Config holds Gemini provider settings.
type Config struct {
	APIKey            string
	Model             string
	RequestsPerMinute int
	Timeout           time.Duration
	Temperature       float32
}

// Provider implements market.Provider on top of Gemini.
type Provider struct {
	models      generator
	model       string
	limiter     *rate.Limiter
	timeout     time.Duration
	temperature float32
	now         func() time.Time
}

// New creates a Provider. An API key is required.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return newProvider(client.Models, cfg), nil
}

func newProvider(models generator, cfg Config) *Provider {
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 10
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Provider{
		models:      models,
		model:       model,
		limiter:     rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1),
		timeout:     timeout,
		temperature: cfg.Temperature,
		now:         time.Now,
	}
}

func (p *Provider) Name() string { return "gemini" }

// Bonds asks the model for n Indian corporate bonds.
func (p *Provider) Bonds(ctx context.Context, n int) ([]domain.Bond, error) {
	prompt := fmt.Sprintf(bondListPrompt, n, p.now().UTC().Format("2006-01-02"))
	text, err := p.generate(ctx, prompt, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   bondListSchema,
		Temperature:      &p.temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: bonds: %w", err)
	}

	var wire []wireBond
	if err := json.Unmarshal([]byte(text), &wire); err != nil {
		return nil, fmt.Errorf("gemini: bonds: decode: %w", err)
	}
	fallback := p.now().UTC().Truncate(24*time.Hour).AddDate(5, 0, 0)
	seen := make(map[string]bool, len(wire))
	bonds := make([]domain.Bond, 0, len(wire))
	for _, w := range wire {
		b, ok := w.toDomain(fallback)
		if !ok || seen[b.ID] {
			continue
		}
		seen[b.ID] = true
		bonds = append(bonds, b)
	}
	return bonds, nil
}

// PriceUpdates asks the model to move up to n of bonds.
func (p *Provider) PriceUpdates(ctx context.Context, bonds []domain.Bond, n int) ([]domain.PriceUpdate, error) {
	if len(bonds) == 0 || n <= 0 {
		return nil, nil
	}
	var sb strings.Builder
	for _, b := range bonds {
		fmt.Fprintf(&sb, "- %s (%s, %s): price %.2f, volume %.0f\n", b.ID, b.Issuer, b.CreditRating, b.CurrentPrice, b.Volume)
	}
	text, err := p.generate(ctx, fmt.Sprintf(priceUpdatePrompt, n, sb.String()), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   priceUpdateSchema,
		Temperature:      &p.temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: price updates: %w", err)
	}

	var updates []domain.PriceUpdate
	if err := json.Unmarshal([]byte(text), &updates); err != nil {
		return nil, fmt.Errorf("gemini: price updates: decode: %w", err)
	}
	if len(updates) > n {
		updates = updates[:n]
	}
	return updates, nil
}

// Commentary returns free-form markdown commentary on topic.
func (p *Provider) Commentary(ctx context.Context, topic string, scenario domain.Scenario) (string, error) {
	if topic == "" {
		topic = "the Indian corporate bond market"
	}
	text, err := p.generate(ctx, fmt.Sprintf(commentaryPrompt, topic, scenario), &genai.GenerateContentConfig{
		Temperature: &p.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("gemini: commentary: %w", err)
	}
	return text, nil
}

func (p *Provider) generate(ctx context.Context, prompt string, cfg *genai.GenerateContentConfig) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrRateLimited, err)
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.models.GenerateContent(ctx, p.model,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)},
		cfg,
	)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("empty response")
	}
	return text, nil
}
