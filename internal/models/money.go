package models

import (
	"strconv"

	"github.com/shopspring/decimal"
)

// MoneyScale is the number of decimal places prices and totals carry.
const MoneyScale = 2

// Money is a currency amount. It scans and compares like decimal.Decimal
// but always renders with MoneyScale places, so 598 is "598.00".
type Money struct {
	decimal.Decimal
}

// NewMoney wraps d as a Money amount.
func NewMoney(d decimal.Decimal) Money {
	return Money{Decimal: d}
}

func (m Money) String() string {
	return m.StringFixed(MoneyScale)
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(m.String())), nil
}
