package ledger

import (
	"math/rand"
	"testing"
	"time"

	"github.com/rustyeddy/gridtrader/market"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddLegRejectsNonPositiveVolume(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		volume float64
	}{
		{"zero", 0},
		{"negative", -1},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			l := New(market.Long)
			err := l.AddLeg(Leg{Price: 100, Volume: tt.volume})
			assert.ErrorIs(t, err, ErrInvalidVolume)
			assert.True(t, l.Empty())
		})
	}
}

func TestAddLegRejectsWrongSide(t *testing.T) {
	l := New(market.Long)
	err := l.AddLeg(Leg{Side: market.Short, Price: 100, Volume: 1})
	assert.ErrorIs(t, err, ErrWrongSide)
}

func TestAveragePriceEmpty(t *testing.T) {
	l := New(market.Short)
	_, err := l.AveragePrice()
	assert.ErrorIs(t, err, ErrEmptyLedger)
	assert.Equal(t, 0.0, l.AggregateVolume())
}

func TestGridGrowthAverage(t *testing.T) {
	l := New(market.Long)
	require.NoError(t, l.AddLeg(Leg{Price: 100, Volume: 1, Layer: 0}))
	require.NoError(t, l.AddLeg(Leg{Price: 89, Volume: 2, Layer: 1}))
	require.NoError(t, l.AddLeg(Leg{Price: 78, Volume: 4, Layer: 2}))

	avg, err := l.AveragePrice()
	require.NoError(t, err)
	assert.InDelta(t, 7.0, l.AggregateVolume(), 1e-12)
	assert.InDelta(t, (100*1+89*2+78*4)/7.0, avg, 1e-9)
	assert.InDelta(t, 85.142857, avg, 1e-6)

	last, ok := l.Last()
	require.True(t, ok)
	assert.Equal(t, 78.0, last.Price)
	assert.Equal(t, 3, l.LayerCount())
}

func TestAggregateInvariantRandomSequence(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	l := New(market.Long)

	var sumVol, sumPV float64
	for i := 0; i < 200; i++ {
		price := 50 + rng.Float64()*100
		vol := 0.01 + rng.Float64()*5
		require.NoError(t, l.AddLeg(Leg{Price: price, Volume: vol, Layer: i}))
		sumVol += vol
		sumPV += price * vol

		avg, err := l.AveragePrice()
		require.NoError(t, err)
		assert.InDelta(t, sumVol, l.AggregateVolume(), 1e-9)
		assert.InDelta(t, sumPV/sumVol, avg, 1e-9)
	}
	assert.Equal(t, 200, l.LegCount())
}

func TestLayerCountWithPartialFills(t *testing.T) {
	l := New(market.Long)
	require.NoError(t, l.AddLeg(Leg{Price: 100, Volume: 0.4, Layer: 0}))
	require.NoError(t, l.AddLeg(Leg{Price: 100.1, Volume: 0.6, Layer: 0}))
	require.NoError(t, l.AddLeg(Leg{Price: 90, Volume: 2, Layer: 1}))

	assert.Equal(t, 3, l.LegCount())
	assert.Equal(t, 2, l.LayerCount())
}

func TestReduceFIFO(t *testing.T) {
	l := New(market.Short)
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, l.AddLeg(Leg{Price: 100, Volume: 1, OpenTime: t0}))
	require.NoError(t, l.AddLeg(Leg{Price: 110, Volume: 2, OpenTime: t0.Add(time.Hour)}))

	closed, err := l.Reduce(1.5)
	require.NoError(t, err)
	require.Len(t, closed, 2)
	assert.Equal(t, 1.0, closed[0].Volume)
	assert.InDelta(t, 0.5, closed[1].Volume, 1e-12)
	assert.Equal(t, 110.0, closed[1].Price)

	assert.InDelta(t, 1.5, l.AggregateVolume(), 1e-12)
	avg, err := l.AveragePrice()
	require.NoError(t, err)
	assert.InDelta(t, 110.0, avg, 1e-12)

	_, err = l.Reduce(1.5)
	require.NoError(t, err)
	assert.True(t, l.Empty())
	_, err = l.AveragePrice()
	assert.ErrorIs(t, err, ErrEmptyLedger)
}

func TestReduceEmpty(t *testing.T) {
	l := New(market.Long)
	_, err := l.Reduce(1)
	assert.ErrorIs(t, err, ErrEmptyLedger)
}

func TestUnrealizedPL(t *testing.T) {
	long := New(market.Long)
	require.NoError(t, long.AddLeg(Leg{Price: 100, Volume: 2}))
	assert.InDelta(t, 40.0, long.UnrealizedPL(120), 1e-9)

	short := New(market.Short)
	require.NoError(t, short.AddLeg(Leg{Price: 100, Volume: 2}))
	assert.InDelta(t, -40.0, short.UnrealizedPL(120), 1e-9)
}

func TestCloneIsIndependent(t *testing.T) {
	l := New(market.Long)
	require.NoError(t, l.AddLeg(Leg{Price: 100, Volume: 1}))

	c := l.Clone()
	require.NoError(t, c.AddLeg(Leg{Price: 90, Volume: 1}))

	assert.Equal(t, 1, l.LegCount())
	assert.Equal(t, 2, c.LegCount())
}
