package postgres

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// parseMoney reads a NUMERIC column selected as ::text.
func parseMoney(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return d, nil
}
