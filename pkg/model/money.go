package model

import "github.com/shopspring/decimal"

// MoneyScale is the number of fractional digits kept for persisted currency
// values. Accumulation happens at full precision; rounding to MoneyScale is
// applied once, when an aggregate row is emitted.
const MoneyScale int32 = 8

// RoundMoney rounds d to MoneyScale fractional digits.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyScale)
}
