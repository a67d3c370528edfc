package state

import (
	"database/sql"
	"fmt"
	"math/big"
	"time"

	sdkmath "cosmossdk.io/math"
)

// numericArg renders an amount for a NUMERIC column. Nil is stored as 0.
func numericArg(v sdkmath.Int) string {
	if v.IsNil() {
		return "0"
	}
	return v.String()
}

func decArg(v sdkmath.LegacyDec) string {
	if v.IsNil() {
		return "0"
	}
	return v.String()
}

func parseNumeric(column, s string) (sdkmath.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return sdkmath.Int{}, fmt.Errorf("invalid %s value %q", column, s)
	}
	return sdkmath.NewIntFromBigInt(v), nil
}

func parseDec(column, s string) (sdkmath.LegacyDec, error) {
	v, err := sdkmath.LegacyNewDecFromStr(s)
	if err != nil {
		return sdkmath.LegacyDec{}, fmt.Errorf("invalid %s value %q: %w", column, s, err)
	}
	return v, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func timeOrZero(t sql.NullTime) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time.UTC()
}
