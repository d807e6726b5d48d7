package market

import (
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/alanyoungcy/bondsim/internal/domain"
)

// Book is the in-memory bond list. Bonds keep their insertion order.
type Book struct {
	mu    sync.RWMutex
	bonds []domain.Bond
	index map[string]int
}

// NewBook creates an empty Book.
func NewBook() *Book {
	return &Book{index: make(map[string]int)}
}

// Replace swaps the whole bond list. Later duplicates of an id are dropped.
func (b *Book) Replace(bonds []domain.Bond) {
	next := make([]domain.Bond, 0, len(bonds))
	index := make(map[string]int, len(bonds))
	for _, bond := range bonds {
		if bond.ID == "" {
			bond.ID = bond.ISIN
		}
		if _, dup := index[bond.ID]; dup {
			continue
		}
		index[bond.ID] = len(next)
		next = append(next, bond)
	}

	b.mu.Lock()
	b.bonds = next
	b.index = index
	b.mu.Unlock()
}

// Get returns the bond with the given id.
func (b *Book) Get(id string) (domain.Bond, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	i, ok := b.index[id]
	if !ok {
		return domain.Bond{}, false
	}
	return b.bonds[i], true
}

// Has reports whether id is in the book.
func (b *Book) Has(id string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.index[id]
	return ok
}

// Len returns the number of bonds.
func (b *Book) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.bonds)
}

// All returns a copy of every bond in insertion order.
func (b *Book) All() []domain.Bond {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]domain.Bond, len(b.bonds))
	copy(out, b.bonds)
	return out
}

// SortField names a sortable bond attribute.
type SortField string

const (
	SortNone      SortField = ""
	SortIssuer    SortField = "issuer"
	SortPrice     SortField = "price"
	SortCoupon    SortField = "coupon"
	SortMaturity  SortField = "maturity"
	SortRating    SortField = "rating"
	SortDayChange SortField = "dayChange"
	SortRiskScore SortField = "riskScore"
	SortVolume    SortField = "volume"
)

// Filter selects and orders bonds for the marketplace.
type Filter struct {
	Search    string                `json:"search,omitempty"`
	Ratings   []domain.CreditRating `json:"ratings,omitempty"`
	MinCoupon float64               `json:"minCoupon,omitempty"`
	SortBy    SortField             `json:"sortBy,omitempty"`
	Desc      bool                  `json:"desc,omitempty"`
	Limit     int                   `json:"limit,omitempty"`
}

// List returns the bonds matching f. Search matches issuer or ISIN
// case-insensitively.
func (b *Book) List(f Filter) []domain.Bond {
	search := strings.ToLower(strings.TrimSpace(f.Search))
	var ratings map[domain.CreditRating]bool
	if len(f.Ratings) > 0 {
		ratings = make(map[domain.CreditRating]bool, len(f.Ratings))
		for _, r := range f.Ratings {
			ratings[r] = true
		}
	}

	b.mu.RLock()
	out := make([]domain.Bond, 0, len(b.bonds))
	for _, bond := range b.bonds {
		if search != "" &&
			!strings.Contains(strings.ToLower(bond.Issuer), search) &&
			!strings.Contains(strings.ToLower(bond.ISIN), search) {
			continue
		}
		if ratings != nil && !ratings[bond.CreditRating] {
			continue
		}
		if bond.Coupon < f.MinCoupon {
			continue
		}
		out = append(out, bond)
	}
	b.mu.RUnlock()

	if less := lessFunc(f.SortBy); less != nil {
		sort.SliceStable(out, func(i, j int) bool {
			if f.Desc {
				return less(out[j], out[i])
			}
			return less(out[i], out[j])
		})
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

func lessFunc(field SortField) func(a, b domain.Bond) bool {
	switch field {
	case SortIssuer:
		return func(a, b domain.Bond) bool { return a.Issuer < b.Issuer }
	case SortPrice:
		return func(a, b domain.Bond) bool { return a.CurrentPrice < b.CurrentPrice }
	case SortCoupon:
		return func(a, b domain.Bond) bool { return a.Coupon < b.Coupon }
	case SortMaturity:
		return func(a, b domain.Bond) bool { return a.MaturityDate.Before(b.MaturityDate) }
	case SortRating:
		return func(a, b domain.Bond) bool { return a.CreditRating.Rank() < b.CreditRating.Rank() }
	case SortDayChange:
		return func(a, b domain.Bond) bool { return a.DayChange < b.DayChange }
	case SortRiskScore:
		return func(a, b domain.Bond) bool { return a.RiskScore < b.RiskScore }
	case SortVolume:
		return func(a, b domain.Bond) bool { return a.Volume < b.Volume }
	default:
		return nil
	}
}

// ApplyUpdates overwrites price, volume and spread in place and recomputes
// DayChange as the percentage move from the previous price. Updates for
// unknown bonds or with a non-positive price are ignored. The updated bonds
// are returned.
func (b *Book) ApplyUpdates(updates []domain.PriceUpdate) []domain.Bond {
	b.mu.Lock()
	defer b.mu.Unlock()

	applied := make([]domain.Bond, 0, len(updates))
	for _, u := range updates {
		i, ok := b.index[u.BondID]
		if !ok || u.Price <= 0 || math.IsNaN(u.Price) {
			continue
		}
		bond := &b.bonds[i]
		if old := bond.CurrentPrice; old > 0 {
			bond.DayChange = math.Round((u.Price-old)/old*100*100) / 100
		}
		bond.CurrentPrice = u.Price
		if u.Volume > 0 {
			bond.Volume = u.Volume
		}
		if u.BidAskSpread > 0 {
			bond.BidAskSpread = u.BidAskSpread
		}
		applied = append(applied, *bond)
	}
	return applied
}
