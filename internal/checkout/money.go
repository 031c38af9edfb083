package checkout

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// ToKobo converts a major-unit (naira) amount to kobo, flooring any
// sub-kobo fraction. This is the single major→minor conversion point;
// every computation after it stays in int64 kobo.
func ToKobo(major decimal.Decimal) int64 {
	return major.Mul(hundred).Floor().IntPart()
}

// ToMajor converts kobo back to a major-unit decimal for display.
// Internal logic must never round-trip through this.
func ToMajor(kobo int64) decimal.Decimal {
	return decimal.NewFromInt(kobo).Div(hundred)
}
