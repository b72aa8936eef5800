package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const DateLayout = "2006-01-02"

// RoundCents rounds a monetary amount to two decimal places. Every amount is
// rounded before it is stored or compared.
func RoundCents(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// SumBaixas returns the settled total of the given entries.
func SumBaixas(baixas []Baixa) decimal.Decimal {
	total := decimal.Zero
	for _, b := range baixas {
		total = total.Add(RoundCents(b.Valor))
	}
	return total
}

func DateOnly(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func ParseDate(raw string) (time.Time, error) {
	parsed, err := time.Parse(DateLayout, raw)
	if err != nil {
		return time.Time{}, err
	}
	return parsed.UTC(), nil
}
