/*
This file contains common utility functions for converting between different types,
particularly for SDK math operations and fixed-point precision handling.
*/

package utils

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"

	sdkmath "cosmossdk.io/math"
)

// RewardDecimals is the precision used for reward amounts and USD metrics.
const RewardDecimals = 18

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidPrecision = errors.New("precision is invalid")
	ErrAmountNil        = errors.New("amount is nil")
	ErrAmountNegative   = errors.New("amount is negative")
	ErrNotFinite        = errors.New("value is not finite")
	ErrConversionFailed = errors.New("conversion failed")
	ErrDivisionByZero   = errors.New("division by zero")
	ErrRatioOutOfRange  = errors.New("ratio must be between 0 and 1")
)

// SDKIntToFloat64 converts an SDK Int to float64 with proper precision handling.
// Only used for logging and metrics; amounts are never computed in floating point.
func SDKIntToFloat64(amount sdkmath.Int, precision int) (float64, error) {
	if precision < 0 || precision > RewardDecimals {
		return 0, fmt.Errorf("%w: %d (must be between 0 and %d)", ErrInvalidPrecision, precision, RewardDecimals)
	}
	if amount.IsNil() {
		return 0, ErrAmountNil
	}
	if amount.IsNegative() {
		return 0, ErrAmountNegative
	}

	result := sdkmath.LegacyNewDecFromInt(amount).Quo(pow10Dec(precision))
	resultFloat, err := result.Float64()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}

	if math.IsNaN(resultFloat) || math.IsInf(resultFloat, 0) {
		return 0, fmt.Errorf("%w: result is %f", ErrNotFinite, resultFloat)
	}

	return resultFloat, nil
}

// ParseUnits converts a decimal string such as "1000.5" into an integer amount with the given precision.
// Extra fractional digits beyond the precision are truncated.
func ParseUnits(value string, precision int) (sdkmath.Int, error) {
	if precision < 0 || precision > RewardDecimals {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %d (must be between 0 and %d)", ErrInvalidPrecision, precision, RewardDecimals)
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: empty value", ErrConversionFailed)
	}
	if strings.HasPrefix(value, "-") {
		return sdkmath.ZeroInt(), ErrAmountNegative
	}

	whole, frac, _ := strings.Cut(value, ".")
	if (whole == "" && frac == "") || !isDigits(whole) || !isDigits(frac) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: invalid decimal %q", ErrConversionFailed, value)
	}
	if len(frac) > precision {
		frac = frac[:precision]
	}
	frac += strings.Repeat("0", precision-len(frac))

	digits := strings.TrimLeft(whole+frac, "0")
	if digits == "" {
		return sdkmath.ZeroInt(), nil
	}
	// base 10 explicitly: NewIntFromString would read a leading zero as octal
	result, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: invalid decimal %q", ErrConversionFailed, value)
	}
	return sdkmath.NewIntFromBigInt(result), nil
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// FormatUnits renders an integer amount as a decimal string with the given precision, trimming trailing zeros.
func FormatUnits(amount sdkmath.Int, precision int) string {
	if amount.IsNil() {
		return "0"
	}
	if precision <= 0 {
		return amount.String()
	}

	neg := amount.IsNegative()
	digits := amount.Abs().String()
	if len(digits) <= precision {
		digits = strings.Repeat("0", precision-len(digits)+1) + digits
	}
	whole := digits[:len(digits)-precision]
	frac := strings.TrimRight(digits[len(digits)-precision:], "0")

	out := whole
	if frac != "" {
		out += "." + frac
	}
	if neg {
		out = "-" + out
	}
	return out
}

// MulDiv returns a*b/c truncated toward zero, using an unbounded intermediate product.
func MulDiv(a, b, c sdkmath.Int) (sdkmath.Int, error) {
	if a.IsNil() || b.IsNil() || c.IsNil() {
		return sdkmath.ZeroInt(), ErrAmountNil
	}
	if c.IsZero() {
		return sdkmath.ZeroInt(), ErrDivisionByZero
	}

	intermediate := new(big.Int).Mul(a.BigInt(), b.BigInt())
	result := new(big.Int).Quo(intermediate, c.BigInt())
	return sdkmath.NewIntFromBigInt(result), nil
}

// ParseRatio parses a decimal fraction and checks it lies in [0, 1].
func ParseRatio(value string) (sdkmath.LegacyDec, error) {
	ratio, err := sdkmath.LegacyNewDecFromStr(strings.TrimSpace(value))
	if err != nil {
		return sdkmath.LegacyDec{}, fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}
	if err := ValidateRatio(ratio); err != nil {
		return sdkmath.LegacyDec{}, err
	}
	return ratio, nil
}

// ValidateRatio checks that a ratio is set and within [0, 1].
func ValidateRatio(ratio sdkmath.LegacyDec) error {
	if ratio.IsNil() {
		return ErrAmountNil
	}
	if ratio.IsNegative() || ratio.GT(sdkmath.LegacyOneDec()) {
		return fmt.Errorf("%w: got %s", ErrRatioOutOfRange, ratio.String())
	}
	return nil
}

func pow10Dec(precision int) sdkmath.LegacyDec {
	factor := sdkmath.LegacyNewDec(1)
	for i := 0; i < precision; i++ {
		factor = factor.Mul(sdkmath.LegacyNewDec(10))
	}
	return factor
}
