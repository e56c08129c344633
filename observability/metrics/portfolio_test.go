package metrics

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestPublishConvertsToWholeUnits(t *testing.T) {
	m := Portfolio()
	m.Publish(Snapshot{
		Vault:       "senior",
		Decimals:    6,
		TotalAssets: big.NewInt(100_100_000),
	})
	require.InDelta(t, 100.1, testutil.ToFloat64(m.TotalAssetsGaugeVec().WithLabelValues("senior")), 1e-9)
}

func TestObserveCallOutcome(t *testing.T) {
	m := Portfolio()
	m.ObserveCall("deposit", time.Millisecond, nil)
	m.ObserveCall("deposit", time.Millisecond, errors.New("boom"))
	require.Equal(t, 1.0, testutil.ToFloat64(m.CallsCounterVec().WithLabelValues("deposit", "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.CallsCounterVec().WithLabelValues("deposit", "error")))
}

func TestUnitsNil(t *testing.T) {
	require.Zero(t, Units(nil, 6))
	require.Equal(t, 1.5, Units(big.NewInt(1500), 3))
}
