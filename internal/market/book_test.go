package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/bondsim/internal/domain"
)

func sampleBonds() []domain.Bond {
	return []domain.Bond{
		{ID: "INE1", ISIN: "INE1", Issuer: "Tata Steel", Coupon: 7.2, CreditRating: domain.RatingAA, CurrentPrice: 101, MaturityDate: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)},
		{ID: "INE2", ISIN: "INE2", Issuer: "HDFC Bank", Coupon: 8.1, CreditRating: domain.RatingAAA, CurrentPrice: 99, MaturityDate: time.Date(2028, 1, 1, 0, 0, 0, 0, time.UTC)},
		{ID: "INE3", ISIN: "INE3", Issuer: "Bajaj Finance", Coupon: 6.5, CreditRating: domain.RatingBBB, CurrentPrice: 95, MaturityDate: time.Date(2033, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
}

func TestBook_ReplaceAndGet(t *testing.T) {
	b := NewBook()
	b.Replace(append(sampleBonds(), domain.Bond{ID: "INE1", Issuer: "dup"}))

	assert.Equal(t, 3, b.Len())
	got, ok := b.Get("INE1")
	require.True(t, ok)
	assert.Equal(t, "Tata Steel", got.Issuer)
	assert.False(t, b.Has("INE9"))
}

func TestBook_ListFiltersAndSorts(t *testing.T) {
	b := NewBook()
	b.Replace(sampleBonds())

	tests := []struct {
		name string
		f    Filter
		want []string
	}{
		{"all in insertion order", Filter{}, []string{"INE1", "INE2", "INE3"}},
		{"search issuer", Filter{Search: "hdfc"}, []string{"INE2"}},
		{"search isin", Filter{Search: "ine3"}, []string{"INE3"}},
		{"rating filter", Filter{Ratings: []domain.CreditRating{domain.RatingAAA, domain.RatingAA}}, []string{"INE1", "INE2"}},
		{"min coupon", Filter{MinCoupon: 7}, []string{"INE1", "INE2"}},
		{"sort price asc", Filter{SortBy: SortPrice}, []string{"INE3", "INE2", "INE1"}},
		{"sort coupon desc", Filter{SortBy: SortCoupon, Desc: true}, []string{"INE2", "INE1", "INE3"}},
		{"sort rating", Filter{SortBy: SortRating}, []string{"INE2", "INE1", "INE3"}},
		{"sort maturity", Filter{SortBy: SortMaturity}, []string{"INE2", "INE1", "INE3"}},
		{"limit", Filter{SortBy: SortIssuer, Limit: 1}, []string{"INE3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ids []string
			for _, bond := range b.List(tt.f) {
				ids = append(ids, bond.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestBook_ApplyUpdates(t *testing.T) {
	b := NewBook()
	b.Replace(sampleBonds())

	applied := b.ApplyUpdates([]domain.PriceUpdate{
		{BondID: "INE1", Price: 103.02, Volume: 5000, BidAskSpread: 0.2},
		{BondID: "missing", Price: 100},
		{BondID: "INE2", Price: 0},
	})
	require.Len(t, applied, 1)

	got, _ := b.Get("INE1")
	assert.Equal(t, 103.02, got.CurrentPrice)
	assert.Equal(t, 2.0, got.DayChange)
	assert.Equal(t, 5000.0, got.Volume)
	assert.Equal(t, 0.2, got.BidAskSpread)

	untouched, _ := b.Get("INE2")
	assert.Equal(t, 99.0, untouched.CurrentPrice)
}
