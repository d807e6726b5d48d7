package gemini

import (
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/alanyoungcy/bondsim/internal/domain"
)

// wireBond is the JSON shape the model is asked to produce for one bond.
type wireBond struct {
	ISIN                 string  `json:"isin"`
	Issuer               string  `json:"issuer"`
	Coupon               float64 `json:"coupon"`
	MaturityDate         string  `json:"maturityDate"`
	CreditRating         string  `json:"creditRating"`
	CurrentPrice         float64 `json:"currentPrice"`
	AIFairValue          float64 `json:"aiFairValue"`
	StandardFairValue    float64 `json:"standardFairValue"`
	Volume               float64 `json:"volume"`
	BidAskSpread         float64 `json:"bidAskSpread"`
	DayChange            float64 `json:"dayChange"`
	RiskScore            float64 `json:"riskScore"`
	PrePlatformVolume    float64 `json:"prePlatformVolume"`
	PrePlatformInvestors int     `json:"prePlatformInvestors"`
}

// toDomain validates w. ok is false for records without an ISIN or price.
func (w wireBond) toDomain(fallbackMaturity time.Time) (domain.Bond, bool) {
	isin := strings.ToUpper(strings.TrimSpace(w.ISIN))
	if isin == "" || w.CurrentPrice <= 0 {
		return domain.Bond{}, false
	}
	rating, ok := domain.ParseCreditRating(strings.ToUpper(strings.TrimSpace(w.CreditRating)))
	if !ok {
		rating = domain.RatingBBB
	}
	maturity, err := time.Parse("2006-01-02", w.MaturityDate)
	if err != nil {
		maturity = fallbackMaturity
	}
	issuer := strings.TrimSpace(w.Issuer)
	if issuer == "" {
		issuer = isin
	}
	ai, std := w.AIFairValue, w.StandardFairValue
	if ai <= 0 {
		ai = w.CurrentPrice * 1.005
	}
	if std <= 0 {
		std = w.CurrentPrice * 1.002
	}
	return domain.Bond{
		ID:                   isin,
		ISIN:                 isin,
		Issuer:               issuer,
		Coupon:               w.Coupon,
		MaturityDate:         maturity.UTC(),
		CreditRating:         rating,
		CurrentPrice:         w.CurrentPrice,
		AIFairValue:          ai,
		StandardFairValue:    std,
		Volume:               w.Volume,
		BidAskSpread:         w.BidAskSpread,
		DayChange:            w.DayChange,
		RiskScore:            w.RiskScore,
		PrePlatformVolume:    w.PrePlatformVolume,
		PrePlatformInvestors: w.PrePlatformInvestors,
	}, true
}

func ratingEnum() []string {
	out := make([]string, len(domain.CreditRatings))
	for i, r := range domain.CreditRatings {
		out[i] = string(r)
	}
	return out
}

var bondListSchema = &genai.Schema{
	Type: genai.TypeArray,
	Items: &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"isin":                 {Type: genai.TypeString, Description: "12 character Indian ISIN starting with INE"},
			"issuer":               {Type: genai.TypeString},
			"coupon":               {Type: genai.TypeNumber},
			"maturityDate":         {Type: genai.TypeString, Description: "YYYY-MM-DD"},
			"creditRating":         {Type: genai.TypeString, Enum: ratingEnum()},
			"currentPrice":         {Type: genai.TypeNumber},
			"aiFairValue":          {Type: genai.TypeNumber},
			"standardFairValue":    {Type: genai.TypeNumber},
			"volume":               {Type: genai.TypeNumber},
			"bidAskSpread":         {Type: genai.TypeNumber},
			"dayChange":            {Type: genai.TypeNumber},
			"riskScore":            {Type: genai.TypeNumber},
			"prePlatformVolume":    {Type: genai.TypeNumber},
			"prePlatformInvestors": {Type: genai.TypeInteger},
		},
		Required: []string{"isin", "issuer", "coupon", "maturityDate", "creditRating", "currentPrice"},
	},
}

var priceUpdateSchema = &genai.Schema{
	Type: genai.TypeArray,
	Items: &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"bondId":       {Type: genai.TypeString},
			"price":        {Type: genai.TypeNumber},
			"volume":       {Type: genai.TypeNumber},
			"bidAskSpread": {Type: genai.TypeNumber},
		},
		Required: []string{"bondId", "price"},
	},
}
