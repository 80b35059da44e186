package grid

import (
	"testing"

	"github.com/rustyeddy/gridtrader/ledger"
	"github.com/rustyeddy/gridtrader/market"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scenarioA() Config {
	return Config{BaseVolume: 1, VolumeMultiplier: 2, PriceGap: 10, GapMultiplier: 1, MaxLayers: 3}
}

func TestFirstLayerAlwaysAdded(t *testing.T) {
	d := ShouldAddLayer(123, market.Long, ledger.New(market.Long), scenarioA())
	assert.True(t, d.Add)
	assert.Equal(t, 1.0, d.Volume)
	assert.Equal(t, 0, d.Layer)

	d = ShouldAddLayer(123, market.Short, nil, scenarioA())
	assert.True(t, d.Add)
}

func TestGridGrowthScenario(t *testing.T) {
	cfg := scenarioA()
	l := ledger.New(market.Long)

	for _, px := range []float64{100, 89, 78} {
		d := ShouldAddLayer(px, market.Long, l, cfg)
		require.True(t, d.Add, "price %v: %s", px, d.Reason)
		require.NoError(t, l.AddLeg(ledger.Leg{Price: px, Volume: d.Volume, Layer: d.Layer}))
	}

	legs := l.Legs()
	require.Len(t, legs, 3)
	assert.Equal(t, []float64{1, 2, 4}, []float64{legs[0].Volume, legs[1].Volume, legs[2].Volume})

	avg, err := l.AveragePrice()
	require.NoError(t, err)
	assert.InDelta(t, 85.14, avg, 0.005)
}

func TestSkipWhenGapNotReached(t *testing.T) {
	cfg := scenarioA()
	l := ledger.New(market.Long)
	require.NoError(t, l.AddLeg(ledger.Leg{Price: 100, Volume: 1}))

	d := ShouldAddLayer(91, market.Long, l, cfg)
	assert.False(t, d.Add)
	assert.NotEmpty(t, d.Reason)

	// a favorable move is never a reason to add
	d = ShouldAddLayer(120, market.Long, l, cfg)
	assert.False(t, d.Add)
}

func TestShortLayersOnRisingPrice(t *testing.T) {
	cfg := scenarioA()
	l := ledger.New(market.Short)
	require.NoError(t, l.AddLeg(ledger.Leg{Price: 100, Volume: 1}))

	assert.False(t, ShouldAddLayer(90, market.Short, l, cfg).Add)

	d := ShouldAddLayer(110, market.Short, l, cfg)
	assert.True(t, d.Add)
	assert.Equal(t, 2.0, d.Volume)
	assert.Equal(t, 1, d.Layer)
}

func TestNeverExceedsMaxLayers(t *testing.T) {
	cfg := scenarioA()
	l := ledger.New(market.Long)
	for i, px := range []float64{100, 89, 78} {
		require.NoError(t, l.AddLeg(ledger.Leg{Price: px, Volume: 1, Layer: i}))
	}

	for _, px := range []float64{67, 10, 0.01, 1e-9} {
		d := ShouldAddLayer(px, market.Long, l, cfg)
		assert.False(t, d.Add, "price %v", px)
	}
}

func TestGapMultiplierWidensSpacing(t *testing.T) {
	cfg := Config{BaseVolume: 1, VolumeMultiplier: 1, PriceGap: 10, GapMultiplier: 2, MaxLayers: 5}
	l := ledger.New(market.Long)
	require.NoError(t, l.AddLeg(ledger.Leg{Price: 100, Volume: 1, Layer: 0}))

	// layer 1 needs 20
	assert.False(t, ShouldAddLayer(85, market.Long, l, cfg).Add)
	d := ShouldAddLayer(80, market.Long, l, cfg)
	require.True(t, d.Add)
	assert.Equal(t, 1.0, d.Volume)
}

func TestPartialFillsCountAsOneLayer(t *testing.T) {
	cfg := scenarioA()
	l := ledger.New(market.Long)
	require.NoError(t, l.AddLeg(ledger.Leg{Price: 100, Volume: 0.5, Layer: 0}))
	require.NoError(t, l.AddLeg(ledger.Leg{Price: 100, Volume: 0.5, Layer: 0}))

	d := ShouldAddLayer(89, market.Long, l, cfg)
	require.True(t, d.Add)
	assert.Equal(t, 1, d.Layer)
	assert.Equal(t, 2.0, d.Volume)
}
