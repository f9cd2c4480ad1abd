package store

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// lockTimeLayout has a fixed width so stored lock times compare correctly as text.
const lockTimeLayout = "2006-01-02T15:04:05.000000000Z"

// marshalMoney renders an amount as decimal TEXT without losing precision.
func marshalMoney(d decimal.Decimal) string {
	return d.String()
}

func unmarshalMoney(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("unmarshal money %q: %w", s, err)
	}
	return d, nil
}

// marshalTime keeps the original offset so the local wall clock survives a
// round trip; invoices are dated with the shop's local time.
func marshalTime(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

func unmarshalTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("unmarshal time %q: %w", s, err)
	}
	return t, nil
}

func marshalLockTime(t time.Time) string {
	return t.UTC().Format(lockTimeLayout)
}

// nullString maps the empty string to SQL NULL.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
