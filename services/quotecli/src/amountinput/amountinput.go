// Package amountinput converts between human readable token amounts and base units.
package amountinput

import (
	"errors"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrInvalidAmount = errors.New("invalid amount")
var ErrTooPrecise = errors.New("amount has more fractional digits than the token supports")

// ParseAmount parses text such as "1.5" into base units of a token with the given
// decimals. Empty input yields nil, which disables quoting.
func ParseAmount(text string, decimals int32) (*big.Int, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	value, err := decimal.NewFromString(text)
	if err != nil {
		return nil, ErrInvalidAmount
	}

	shifted := value.Shift(decimals)
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, ErrTooPrecise
	}

	return shifted.BigInt(), nil
}

func FormatAmount(amount *big.Int, decimals int32) string {
	if amount == nil {
		return "-"
	}

	return decimal.NewFromBigInt(amount, -decimals).String()
}
