package expense

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxItemLength caps the stored item description, in runes.
const MaxItemLength = 80

var (
	ErrEmptyItem         = errors.New("item is empty")
	ErrAmountNotNumber   = errors.New("not a number")
	ErrAmountNotPositive = errors.New("must be greater than 0")
)

// NormalizeItem collapses runs of whitespace and truncates to MaxItemLength runes.
func NormalizeItem(item string) string {
	clean := strings.Join(strings.Fields(item), " ")
	runes := []rune(clean)
	if len(runes) > MaxItemLength {
		clean = strings.TrimRight(string(runes[:MaxItemLength]), " ")
	}
	return clean
}

// NormalizeAmount parses a decimal string and rounds it half-up to two places.
//
//	NormalizeAmount("4.5")   -> 4.50
//	NormalizeAmount("0.005") -> 0.01
//	NormalizeAmount("0.004") -> ErrAmountNotPositive
func NormalizeAmount(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, ErrAmountNotNumber
	}
	if !d.IsPositive() {
		return decimal.Zero, ErrAmountNotPositive
	}
	// decimal rounds half away from zero, which is half-up for positive values.
	d = d.Round(2)
	if !d.IsPositive() {
		return decimal.Zero, ErrAmountNotPositive
	}
	return d, nil
}
