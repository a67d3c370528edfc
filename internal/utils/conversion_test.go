package utils

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUnits(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		value     string
		precision int
		want      string
		wantErr   error
	}{
		{name: "whole number", value: "1000", precision: 18, want: "1000000000000000000000"},
		{name: "fraction", value: "0.231", precision: 18, want: "231000000000000000"},
		{name: "truncates extra digits", value: "1.23456", precision: 2, want: "123"},
		{name: "leading dot", value: ".5", precision: 1, want: "5"},
		{name: "zero precision", value: "42", precision: 0, want: "42"},
		{name: "below one", value: "0.5", precision: 18, want: "500000000000000000"},
		{name: "leading zeros are decimal", value: "007", precision: 2, want: "700"},
		{name: "leading zero with fraction", value: "010.25", precision: 2, want: "1025"},
		{name: "trailing dot", value: "3.", precision: 1, want: "30"},
		{name: "zero", value: "0.000", precision: 18, want: "0"},
		{name: "hex prefix", value: "0x10", precision: 18, wantErr: ErrConversionFailed},
		{name: "underscore separator", value: "1_000", precision: 18, wantErr: ErrConversionFailed},
		{name: "plus sign", value: "+1", precision: 18, wantErr: ErrConversionFailed},
		{name: "exponent", value: "1e3", precision: 18, wantErr: ErrConversionFailed},
		{name: "lone dot", value: ".", precision: 18, wantErr: ErrConversionFailed},
		{name: "two dots", value: "1.2.3", precision: 18, wantErr: ErrConversionFailed},
		{name: "negative", value: "-1", precision: 18, wantErr: ErrAmountNegative},
		{name: "garbage", value: "abc", precision: 18, wantErr: ErrConversionFailed},
		{name: "empty", value: " ", precision: 18, wantErr: ErrConversionFailed},
		{name: "bad precision", value: "1", precision: 19, wantErr: ErrInvalidPrecision},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseUnits(tt.value, tt.precision)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestFormatUnits(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "1000", FormatUnits(sdkmath.NewIntWithDecimal(1000, 18), 18))
	assert.Equal(t, "0.231", FormatUnits(sdkmath.NewInt(231_000_000_000_000_000), 18))
	assert.Equal(t, "0", FormatUnits(sdkmath.ZeroInt(), 18))
	assert.Equal(t, "0", FormatUnits(sdkmath.Int{}, 18))
	assert.Equal(t, "-1.5", FormatUnits(sdkmath.NewInt(-15), 1))
	assert.Equal(t, "77", FormatUnits(sdkmath.NewInt(77), 0))
}

func TestMulDiv(t *testing.T) {
	t.Parallel()

	got, err := MulDiv(sdkmath.NewInt(231), sdkmath.NewInt(1), sdkmath.NewInt(3))
	require.NoError(t, err)
	assert.Equal(t, int64(77), got.Int64())

	got, err = MulDiv(sdkmath.NewInt(10), sdkmath.NewInt(1), sdkmath.NewInt(3))
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Int64(), "truncates toward zero")

	// The product overflows 256 bits but the quotient does not.
	big := sdkmath.NewIntWithDecimal(1, 70)
	got, err = MulDiv(big, big, big)
	require.NoError(t, err)
	assert.True(t, got.Equal(big))

	_, err = MulDiv(sdkmath.NewInt(1), sdkmath.NewInt(1), sdkmath.ZeroInt())
	require.ErrorIs(t, err, ErrDivisionByZero)

	_, err = MulDiv(sdkmath.Int{}, sdkmath.NewInt(1), sdkmath.NewInt(1))
	require.ErrorIs(t, err, ErrAmountNil)
}

func TestParseRatio(t *testing.T) {
	t.Parallel()

	ratio, err := ParseRatio("0.231")
	require.NoError(t, err)
	assert.Equal(t, "0.231000000000000000", ratio.String())

	_, err = ParseRatio("1")
	require.NoError(t, err)
	_, err = ParseRatio("0")
	require.NoError(t, err)

	_, err = ParseRatio("1.0001")
	require.ErrorIs(t, err, ErrRatioOutOfRange)
	_, err = ParseRatio("-0.1")
	require.ErrorIs(t, err, ErrRatioOutOfRange)
	_, err = ParseRatio("half")
	require.ErrorIs(t, err, ErrConversionFailed)
}

func TestSDKIntToFloat64(t *testing.T) {
	t.Parallel()

	f, err := SDKIntToFloat64(sdkmath.NewIntWithDecimal(15, 17), 18)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, f, 1e-12)

	_, err = SDKIntToFloat64(sdkmath.NewInt(-1), 18)
	require.ErrorIs(t, err, ErrAmountNegative)
	_, err = SDKIntToFloat64(sdkmath.Int{}, 18)
	require.ErrorIs(t, err, ErrAmountNil)
}
