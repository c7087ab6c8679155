package codec

import "github.com/shopspring/decimal"

// Decimal fields are stored as int64 scaled by 10^decimalScale.
const decimalScale = 8

func putDecimal(d decimal.Decimal) uint64 {
	return uint64(d.Shift(decimalScale).Round(0).IntPart())
}

func getDecimal(v uint64) decimal.Decimal {
	return decimal.New(int64(v), -decimalScale)
}
