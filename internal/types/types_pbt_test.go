package types

import (
	"strconv"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
)

// Property: scaling is exact, shifting the result back yields the raw integer
func TestScaleAmountRoundTrip(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("scaled amount shifts back to raw", prop.ForAll(
		func(raw int64, decimals int32) bool {
			got, err := ScaleAmount(strconv.FormatInt(raw, 10), decimals)
			if err != nil {
				return false
			}
			return got.Shift(decimals).Equal(decimal.NewFromInt(raw))
		},
		gen.Int64Range(0, 1<<62),
		gen.Int32Range(0, 30),
	))

	properties.Property("scaled amount is never negative", prop.ForAll(
		func(raw int64) bool {
			got, err := ScaleAmount(strconv.FormatInt(raw, 10), 18)
			return err == nil && !got.IsNegative()
		},
		gen.Int64Range(0, 1<<62),
	))

	properties.Property("negative raw amounts are rejected", prop.ForAll(
		func(raw int64) bool {
			_, err := ScaleAmount(strconv.FormatInt(raw, 10), 6)
			return err != nil
		},
		gen.Int64Range(-(1 << 62), -1),
	))

	properties.TestingRun(t)
}
