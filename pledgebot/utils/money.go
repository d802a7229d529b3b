package utils

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// USDCDecimals is the number of fractional digits of the stake token.
const USDCDecimals = 6

var (
	errEmptyAmount     = errors.New("amount is empty")
	errAmountPrecision = fmt.Errorf("amount has more than %d decimals", USDCDecimals)
	errAmountRange     = errors.New("amount is out of range")
)

var maxUnits = decimal.NewFromInt(math.MaxInt64)

// ParseUSDC converts a human amount ("12.5", "1,000", "$3") into micro-units.
// Zero and negative amounts parse fine; the ledger rejects them.
func ParseUSDC(s string) (int64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	s = strings.TrimSuffix(strings.TrimSpace(s), "USDC")
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, errEmptyAmount
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if !d.Equal(d.Truncate(USDCDecimals)) {
		return 0, errAmountPrecision
	}

	units := d.Shift(USDCDecimals)
	if units.Abs().GreaterThan(maxUnits) {
		return 0, errAmountRange
	}
	return units.IntPart(), nil
}

// FormatUSDC renders micro-units with grouped thousands and two to six decimals.
func FormatUSDC(units int64) string {
	fixed := decimal.New(units, -USDCDecimals).StringFixed(USDCDecimals)

	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign, fixed = "-", fixed[1:]
	}
	whole, frac, _ := strings.Cut(fixed, ".")
	frac = strings.TrimRight(frac, "0")
	for len(frac) < 2 {
		frac += "0"
	}

	n, _ := strconv.ParseInt(whole, 10, 64)
	return sign + FormatNumber(n) + "." + frac
}

// FormatStake is FormatUSDC with the token symbol.
func FormatStake(units int64) string {
	return FormatUSDC(units) + " USDC"
}

func FormatNumber(n int64) string {
	str := strconv.FormatInt(n, 10)
	neg := n < 0
	if neg {
		str = str[1:]
	}

	var b strings.Builder
	for i, c := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}

	if neg {
		return "-" + b.String()
	}
	return b.String()
}
