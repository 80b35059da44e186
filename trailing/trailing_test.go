package trailing

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/gridtrader/market"
)

var t0 = time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)

func at(i int, px float64) market.Quote {
	return market.QuoteAt(t0.Add(time.Duration(i)*time.Minute), px)
}

func TestFixedRatchetLong(t *testing.T) {
	p := Params{Modes: Fixed, FixedDistance: 5}

	st, res := p.Arm(market.Long, 100, at(0, 100), Inputs{})
	assert.Equal(t, Armed, st.Phase)
	assert.False(t, res.Stop.Ready, "no stop while the trail is still at a loss")

	steps := []struct {
		px       float64
		wantStop float64
		wantExit bool
	}{
		{106, 101, false},
		{104, 101, false},
		{110, 105, false},
		{95, 105, true},
	}

	for i, s := range steps {
		st, res = p.Step(st, 100, at(i+1, s.px), Inputs{})
		require.True(t, st.Stop.Ready, "step %d", i)
		assert.InDelta(t, s.wantStop, st.Stop.Value, 1e-12, "step %d", i)
		assert.Equal(t, s.wantExit, res.Exit, "step %d", i)
	}
	assert.Equal(t, Trailing, st.Phase)
}

func TestFixedRatchetShort(t *testing.T) {
	p := Params{Modes: Fixed, FixedDistance: 5}

	st, _ := p.Arm(market.Short, 100, at(0, 100), Inputs{})
	st, res := p.Step(st, 100, at(1, 94), Inputs{})
	require.True(t, res.Changed)
	assert.InDelta(t, 99.0, st.Stop.Value, 1e-12)

	st, res = p.Step(st, 100, at(2, 96), Inputs{})
	assert.False(t, res.Changed)
	assert.InDelta(t, 99.0, st.Stop.Value, 1e-12)

	_, res = p.Step(st, 100, at(3, 99), Inputs{})
	assert.True(t, res.Exit, "short exits when high >= stop")
}

func TestStopStaysBelowMarketAfterAveragingDown(t *testing.T) {
	p := Params{Modes: Fixed, FixedDistance: 5}

	st, _ := p.Arm(market.Long, 100, at(0, 100), Inputs{})
	st, res := p.Step(st, 100, at(1, 103), Inputs{})
	assert.False(t, res.Stop.Ready)
	st, _ = p.Step(st, 100, at(2, 89), Inputs{})

	// a second layer at 89 pulls the average to 94.5; the reference is still 103
	st, res = p.Step(st, 94.5, at(3, 90), Inputs{})
	assert.False(t, res.Changed, "98 would sit above a market of 90")
	assert.False(t, st.Stop.Ready)

	st, res = p.Step(st, 94.5, at(4, 90), Inputs{})
	assert.False(t, res.Exit)

	st, res = p.Step(st, 94.5, at(5, 99), Inputs{})
	require.True(t, res.Changed)
	assert.InDelta(t, 98.0, st.Stop.Value, 1e-12)
	assert.False(t, res.Exit)

	_, res = p.Step(st, 94.5, at(6, 97.5), Inputs{})
	assert.True(t, res.Exit)
}

func TestExternalAboveMarketDeferredOnceStopExists(t *testing.T) {
	p := Params{Modes: Fixed | ExternalIndicator, FixedDistance: 2}

	st, res := p.Arm(market.Long, 100, at(0, 100), Inputs{External: Some(101)})
	assert.True(t, res.Deferred)

	st, _ = p.Step(st, 100, at(1, 105), Inputs{External: Some(103)})
	require.True(t, st.Stop.Ready)
	assert.InDelta(t, 103.0, st.Stop.Value, 1e-12)

	st, res = p.Step(st, 100, at(2, 104), Inputs{External: Some(106)})
	assert.True(t, res.Deferred)
	assert.False(t, res.Changed)
	assert.False(t, res.Exit)
	assert.InDelta(t, 103.0, st.Stop.Value, 1e-12)

	_, res = p.Step(st, 100, at(3, 104), Inputs{External: Some(106)})
	assert.False(t, res.Exit)
}

func TestShortStopStaysAboveMarket(t *testing.T) {
	p := Params{Modes: Fixed, FixedDistance: 5}

	st, _ := p.Arm(market.Short, 100, at(0, 100), Inputs{})
	st, _ = p.Step(st, 100, at(1, 97), Inputs{})
	st, _ = p.Step(st, 100, at(2, 111), Inputs{})

	st, res := p.Step(st, 105.5, at(3, 110), Inputs{})
	assert.False(t, res.Changed)
	assert.False(t, st.Stop.Ready)

	st, res = p.Step(st, 105.5, at(4, 101), Inputs{})
	require.True(t, res.Changed)
	assert.InDelta(t, 102.0, st.Stop.Value, 1e-12)
}

func TestArmAtEntry(t *testing.T) {
	p := Params{Modes: Fixed, FixedDistance: 5, ArmAtEntry: true}

	st, res := p.Arm(market.Long, 100, at(0, 100), Inputs{})
	require.True(t, res.Stop.Ready)
	assert.InDelta(t, 95.0, st.Stop.Value, 1e-12)

	st, _ = p.Arm(market.Short, 100, at(0, 100), Inputs{})
	assert.InDelta(t, 105.0, st.Stop.Value, 1e-12)
}

func TestStopNeverLoosens(t *testing.T) {
	t.Parallel()

	params := []Params{
		{Modes: Fixed, FixedDistance: 3},
		{Modes: Fixed, FixedDistance: 3, ArmAtEntry: true},
		{Modes: AtrScaled, AtrMultiplier: 2},
		{Modes: Channel, ChannelBuffer: 0.5},
		{Modes: Fixed | Channel | AtrScaled, FixedDistance: 4, AtrMultiplier: 1.5},
	}

	for _, side := range market.Sides {
		for _, p := range params {
			r := rand.New(rand.NewSource(7))
			st, _ := p.Arm(side, 100, at(0, 100), Inputs{})
			px := 100.0
			var prev Optional
			for i := 1; i < 500; i++ {
				px += r.Float64()*4 - 2
				in := Inputs{
					ATR:          Some(0.5 + r.Float64()*3),
					ChannelUpper: Some(px + r.Float64()*6),
					ChannelLower: Some(px - r.Float64()*6),
				}
				st, _ = p.Advance(st, 100, market.Quote{Last: px, High: px + 1, Low: px - 1}, in)
				if prev.Ready {
					require.True(t, st.Stop.Ready)
					require.False(t, side.Better(prev.Value, st.Stop.Value),
						"%s %s loosened at %d: %v -> %v", side, p.Modes, i, prev.Value, st.Stop.Value)
				}
				prev = st.Stop
			}
		}
	}
}

func TestAtrNotReady(t *testing.T) {
	p := Params{Modes: AtrScaled, AtrMultiplier: 2, ArmAtEntry: true}

	st, res := p.Arm(market.Long, 100, at(0, 100), Inputs{})
	assert.False(t, res.Stop.Ready)
	assert.Equal(t, []Mode{AtrScaled}, res.NotReady)

	st, res = p.Advance(st, 100, at(1, 101), Inputs{ATR: Some(1.5)})
	assert.Empty(t, res.NotReady)
	require.True(t, res.Changed)
	assert.InDelta(t, 98.0, st.Stop.Value, 1e-12)
}

func TestChannelStop(t *testing.T) {
	p := Params{Modes: Channel, ChannelBuffer: 0.5}

	st, res := p.Arm(market.Long, 100, at(0, 100), Inputs{ChannelLower: Some(96), ChannelUpper: Some(104)})
	require.True(t, res.Stop.Ready)
	assert.InDelta(t, 95.5, st.Stop.Value, 1e-12)

	// a lower channel never pulls the stop down
	st, res = p.Advance(st, 100, at(1, 99), Inputs{ChannelLower: Some(94)})
	assert.False(t, res.Changed)
	assert.InDelta(t, 95.5, st.Stop.Value, 1e-12)

	st, _ = p.Arm(market.Short, 100, at(0, 100), Inputs{ChannelLower: Some(96), ChannelUpper: Some(104)})
	assert.InDelta(t, 104.5, st.Stop.Value, 1e-12)
}

func TestExternalDeferredUntilFlipped(t *testing.T) {
	p := Params{Modes: ExternalIndicator}

	// indicator still above a long entry: defer
	st, res := p.Arm(market.Long, 100, at(0, 100), Inputs{External: Some(101)})
	assert.True(t, res.Deferred)
	assert.False(t, st.Stop.Ready)
	assert.Equal(t, Armed, st.Phase)

	// equal to entry is not strictly beyond
	st, res = p.Advance(st, 100, at(1, 100), Inputs{External: Some(100)})
	assert.True(t, res.Deferred)
	assert.False(t, st.Stop.Ready)

	st, res = p.Advance(st, 100, at(2, 102), Inputs{External: Some(97)})
	assert.False(t, res.Deferred)
	require.True(t, st.Stop.Ready)
	assert.InDelta(t, 97.0, st.Stop.Value, 1e-12)
	assert.Equal(t, Trailing, st.Phase)

	st, _ = p.Advance(st, 100, at(3, 104), Inputs{External: Some(99)})
	assert.InDelta(t, 99.0, st.Stop.Value, 1e-12)
}

func TestExternalShort(t *testing.T) {
	p := Params{Modes: ExternalIndicator}

	st, res := p.Arm(market.Short, 100, at(0, 100), Inputs{External: Some(99)})
	assert.True(t, res.Deferred)

	st, _ = p.Advance(st, 100, at(1, 98), Inputs{External: Some(103)})
	require.True(t, st.Stop.Ready)
	assert.InDelta(t, 103.0, st.Stop.Value, 1e-12)
}

func TestCompositionTightestWins(t *testing.T) {
	p := Params{Modes: Fixed | Channel, FixedDistance: 5, ArmAtEntry: true}

	st, _ := p.Arm(market.Long, 100, at(0, 100), Inputs{ChannelLower: Some(97)})
	assert.InDelta(t, 97.0, st.Stop.Value, 1e-12, "channel is tighter than fixed")

	st, _ = p.Arm(market.Short, 100, at(0, 100), Inputs{ChannelUpper: Some(107)})
	assert.InDelta(t, 105.0, st.Stop.Value, 1e-12, "fixed is tighter than channel")
}

func TestInactiveDoesNothing(t *testing.T) {
	p := Params{Modes: Fixed, FixedDistance: 1}
	st, res := p.Step(Reset(), 100, at(0, 50), Inputs{})
	assert.False(t, st.Active())
	assert.False(t, res.Exit)
	assert.False(t, res.Stop.Ready)
}

func TestParseModes(t *testing.T) {
	m, err := ParseModes([]string{"fixed", "ATR", "sar"})
	require.NoError(t, err)
	assert.True(t, m.Has(Fixed))
	assert.True(t, m.Has(AtrScaled))
	assert.True(t, m.Has(ExternalIndicator))
	assert.False(t, m.Has(Channel))
	assert.Equal(t, "fixed+atr+external", m.String())
	assert.Equal(t, []string{"fixed", "atr", "external"}, m.Names())

	_, err = ParseModes([]string{"bogus"})
	assert.Error(t, err)
}

func TestParamsValidate(t *testing.T) {
	assert.NoError(t, Params{}.Validate())
	assert.Error(t, Params{Modes: Fixed}.Validate())
	assert.Error(t, Params{Modes: AtrScaled}.Validate())
	assert.Error(t, Params{Modes: Channel, ChannelBuffer: -1}.Validate())
	assert.NoError(t, Params{Modes: Fixed | Channel, FixedDistance: 2}.Validate())
}
