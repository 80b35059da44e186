package grid

import (
	"fmt"

	"github.com/rustyeddy/gridtrader/ledger"
	"github.com/rustyeddy/gridtrader/market"
)

// Decision is the scheduler's answer for one evaluation.
type Decision struct {
	Add    bool
	Volume float64
	Layer  int
	Reason string
}

func skip(format string, args ...any) Decision {
	return Decision{Reason: fmt.Sprintf(format, args...)}
}

// ShouldAddLayer decides whether side should add another layer at price.
// The first layer is always requested; later layers need the price to have
// moved against the most recent leg by the layer's gap.
func ShouldAddLayer(price float64, side market.Side, l *ledger.Ledger, cfg Config) Decision {
	if l == nil || l.Empty() {
		return Decision{Add: true, Volume: cfg.BaseVolume, Layer: 0, Reason: "first layer"}
	}

	layer := l.LayerCount()
	if layer >= cfg.MaxLayers {
		return skip("max layers reached (%d)", cfg.MaxLayers)
	}

	last, _ := l.Last()
	gap := cfg.LayerGap(layer)
	adverse := side.Sign() * (last.Price - price)
	if adverse < gap {
		return skip("adverse move %.5f below gap %.5f", adverse, gap)
	}

	return Decision{
		Add:    true,
		Volume: cfg.LayerVolume(layer),
		Layer:  layer,
		Reason: fmt.Sprintf("layer %d after adverse move %.5f", layer, adverse),
	}
}
