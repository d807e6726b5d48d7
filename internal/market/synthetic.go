package market

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/bondsim/internal/domain"
)

var syntheticIssuers = []string{
	"Reliance Industries",
	"HDFC Bank",
	"Tata Steel",
	"Larsen & Toubro",
	"NTPC",
	"Power Finance Corporation",
	"REC Limited",
	"Bajaj Finance",
	"ICICI Bank",
	"State Bank of India",
	"Adani Ports",
	"Mahindra & Mahindra",
	"Indian Railway Finance Corporation",
	"National Highways Authority of India",
	"Shriram Finance",
	"Muthoot Finance",
}

const isinAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Synthetic generates plausible market data from a seeded generator. It
// never fails and is the fallback for every other provider.
type Synthetic struct {
	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

// NewSynthetic creates a Synthetic provider.
func NewSynthetic(seed uint64) *Synthetic {
	return &Synthetic{
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		now: time.Now,
	}
}

func (s *Synthetic) Name() string { return "synthetic" }

func (s *Synthetic) Bonds(_ context.Context, n int) ([]domain.Bond, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	today := s.now().UTC().Truncate(24 * time.Hour)
	bonds := make([]domain.Bond, 0, n)
	for i := 0; i < n; i++ {
		isin := s.isinLocked()
		rating := domain.CreditRatings[s.rng.IntN(10)]
		price := round2(92 + s.rng.Float64()*16)
		volume := math.Round(1000 + s.rng.Float64()*99000)
		bonds = append(bonds, domain.Bond{
			ID:                   isin,
			ISIN:                 isin,
			Issuer:               syntheticIssuers[s.rng.IntN(len(syntheticIssuers))],
			Coupon:               round2(6 + s.rng.Float64()*4),
			MaturityDate:         today.AddDate(1+s.rng.IntN(14), s.rng.IntN(12), 0),
			CreditRating:         rating,
			CurrentPrice:         price,
			AIFairValue:          round2(price * (0.98 + s.rng.Float64()*0.05)),
			StandardFairValue:    round2(price * (0.99 + s.rng.Float64()*0.02)),
			Volume:               volume,
			BidAskSpread:         round2(0.05 + s.rng.Float64()*0.45),
			DayChange:            round2(s.rng.Float64()*4 - 2),
			RiskScore:            math.Round(40 + s.rng.Float64()*55),
			PrePlatformVolume:    math.Round(volume * (0.3 + s.rng.Float64()*0.3)),
			PrePlatformInvestors: 50 + s.rng.IntN(450),
		})
	}
	return bonds, nil
}

func (s *Synthetic) isinLocked() string {
	var sb strings.Builder
	sb.WriteString("INE")
	for i := 0; i < 8; i++ {
		sb.WriteByte(isinAlphabet[s.rng.IntN(len(isinAlphabet))])
	}
	sb.WriteByte(byte('0' + s.rng.IntN(10)))
	return sb.String()
}

// PriceUpdates moves up to n randomly chosen bonds by at most 1.5%.
func (s *Synthetic) PriceUpdates(_ context.Context, bonds []domain.Bond, n int) ([]domain.PriceUpdate, error) {
	if len(bonds) == 0 || n <= 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	picks := s.rng.Perm(len(bonds))
	if n < len(picks) {
		picks = picks[:n]
	}
	updates := make([]domain.PriceUpdate, 0, len(picks))
	for _, i := range picks {
		b := bonds[i]
		move := 1 + (s.rng.Float64()*3-1.5)/100
		updates = append(updates, domain.PriceUpdate{
			BondID:       b.ID,
			Price:        round2(b.CurrentPrice * move),
			Volume:       math.Round(b.Volume * (0.9 + s.rng.Float64()*0.2)),
			BidAskSpread: round2(0.05 + s.rng.Float64()*0.45),
		})
	}
	return updates, nil
}

var scenarioNarrative = map[domain.Scenario]string{
	domain.ScenarioNormal:             "Markets are trading in a narrow range with steady institutional participation.",
	domain.ScenarioVolatilitySpike:    "A volatility spike is widening spreads and lifting matching engine load.",
	domain.ScenarioAPIGatewayOverload: "The API gateway is shedding load, so order entry latency is elevated.",
	domain.ScenarioDLTCongestion:      "DLT settlement is congested and confirmations are queuing.",
	domain.ScenarioDPIOutage:          "The DPI identity rail is down, so new KYC verifications will fail.",
	domain.ScenarioContingency:        "Contingency mode is active: AI pricing is suspended and standard fair values apply.",
}

func (s *Synthetic) Commentary(_ context.Context, topic string, scenario domain.Scenario) (string, error) {
	narrative, ok := scenarioNarrative[scenario]
	if !ok {
		narrative = scenarioNarrative[domain.ScenarioNormal]
	}
	if topic == "" {
		topic = "Corporate bond market"
	}
	return fmt.Sprintf("### %s\n\n%s\n\n* **Liquidity:** secondary volumes are in line with the weekly average.\n* **Credit:** AAA and AA issuers remain the most actively quoted.\n* **Rates:** the yield curve is broadly unchanged.\n",
		topic, narrative), nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
