package metrics

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObservePaid(t *testing.T) {
	before := testutil.ToFloat64(RewardsPaidTotal)

	ObservePaid(sdkmath.Int{})
	ObservePaid(sdkmath.ZeroInt())
	ObservePaid(sdkmath.NewInt(-5))
	assert.Equal(t, before, testutil.ToFloat64(RewardsPaidTotal))

	ObservePaid(sdkmath.NewIntWithDecimal(25, 17))
	assert.InDelta(t, before+2.5, testutil.ToFloat64(RewardsPaidTotal), 1e-9)
}
