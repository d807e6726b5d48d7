package domain

import "time"

// CreditRating is the agency-style grade attached to a bond.
type CreditRating string

const (
	RatingAAA      CreditRating = "AAA"
	RatingAAPlus   CreditRating = "AA+"
	RatingAA       CreditRating = "AA"
	RatingAAMinus  CreditRating = "AA-"
	RatingAPlus    CreditRating = "A+"
	RatingA        CreditRating = "A"
	RatingAMinus   CreditRating = "A-"
	RatingBBBPlus  CreditRating = "BBB+"
	RatingBBB      CreditRating = "BBB"
	RatingBBBMinus CreditRating = "BBB-"
	RatingBBPlus   CreditRating = "BB+"
	RatingBB       CreditRating = "BB"
	RatingB        CreditRating = "B"
	RatingC        CreditRating = "C"
	RatingD        CreditRating = "D"
)

// CreditRatings lists every rating from best to worst.
var CreditRatings = []CreditRating{
	RatingAAA, RatingAAPlus, RatingAA, RatingAAMinus,
	RatingAPlus, RatingA, RatingAMinus,
	RatingBBBPlus, RatingBBB, RatingBBBMinus,
	RatingBBPlus, RatingBB, RatingB, RatingC, RatingD,
}

// ParseCreditRating normalises s into a known rating. ok is false when s does
// not name a rating.
func ParseCreditRating(s string) (CreditRating, bool) {
	for _, r := range CreditRatings {
		if string(r) == s {
			return r, true
		}
	}
	return "", false
}

// Rank returns the rating's position in CreditRatings (0 = AAA). Unknown
// ratings sort last.
func (r CreditRating) Rank() int {
	for i, known := range CreditRatings {
		if known == r {
			return i
		}
	}
	return len(CreditRatings)
}

// Bond is a tradable corporate bond keyed by ISIN. ID always equals ISIN.
// Price, volume, spread and day change are overwritten in place by price
// updates; everything else is fixed for the bond's lifetime.
type Bond struct {
	ID                   string       `json:"id"`
	ISIN                 string       `json:"isin"`
	Issuer               string       `json:"issuer"`
	Coupon               float64      `json:"coupon"`
	MaturityDate         time.Time    `json:"maturityDate"`
	CreditRating         CreditRating `json:"creditRating"`
	CurrentPrice         float64      `json:"currentPrice"`
	AIFairValue          float64      `json:"aiFairValue"`
	StandardFairValue    float64      `json:"standardFairValue"`
	Volume               float64      `json:"volume"`
	BidAskSpread         float64      `json:"bidAskSpread"`
	DayChange            float64      `json:"dayChange"`
	RiskScore            float64      `json:"riskScore"`
	PrePlatformVolume    float64      `json:"prePlatformVolume"`
	PrePlatformInvestors int          `json:"prePlatformInvestors"`
}

// PriceUpdate is a simulated market tick for one bond.
type PriceUpdate struct {
	BondID       string  `json:"bondId"`
	Price        float64 `json:"price"`
	Volume       float64 `json:"volume"`
	BidAskSpread float64 `json:"bidAskSpread"`
}
