package ingest

import "strings"

type field int

const (
	fieldISIN field = iota
	fieldIssuer
	fieldCoupon
	fieldMaturity
	fieldRating
	fieldPrice
	fieldVolume
)

// headerAliases maps normalised header names to logical columns.
var headerAliases = map[field][]string{
	fieldISIN:     {"isin", "isincode", "securityid", "symbol"},
	fieldIssuer:   {"issuer", "issuername", "name", "company", "securityname"},
	fieldCoupon:   {"coupon", "couponrate", "rate", "interest"},
	fieldMaturity: {"maturity", "maturitydate", "expiry", "redemptiondate"},
	fieldRating:   {"rating", "creditrating", "grade"},
	fieldPrice:    {"price", "ltp", "close", "lastprice", "cmp", "currentprice"},
	fieldVolume:   {"volume", "vol", "qty", "tradedqty"},
}

var headerReplacer = strings.NewReplacer(" ", "", "_", "", "-", "", "\ufeff", "")

func normaliseHeader(h string) string {
	return headerReplacer.Replace(strings.ToLower(strings.TrimSpace(h)))
}

// resolveColumns returns the column index of every logical field found in
// header. The first matching column wins.
func resolveColumns(header []string) map[field]int {
	cols := make(map[field]int, len(headerAliases))
	for i, h := range header {
		name := normaliseHeader(h)
		for f, aliases := range headerAliases {
			if _, taken := cols[f]; taken {
				continue
			}
			for _, a := range aliases {
				if name == a {
					cols[f] = i
					break
				}
			}
		}
	}
	return cols
}
