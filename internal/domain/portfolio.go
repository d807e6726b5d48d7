package domain

// PortfolioHolding is one position in the user's portfolio. There is at most
// one holding per bond.
type PortfolioHolding struct {
	BondID   string  `json:"bondId"`
	Quantity float64 `json:"quantity"`
	AvgPrice float64 `json:"avgPrice"`
}

// TradeSide is the direction of a user trade.
type TradeSide string

const (
	TradeSideBuy  TradeSide = "BUY"
	TradeSideSell TradeSide = "SELL"
)

// Valid reports whether s is BUY or SELL.
func (s TradeSide) Valid() bool {
	return s == TradeSideBuy || s == TradeSideSell
}

// TradeRequest is a user-initiated order against the marketplace.
type TradeRequest struct {
	BondID   string    `json:"bondId"`
	Side     TradeSide `json:"side"`
	Quantity float64   `json:"quantity"`
}
