package market

import "fmt"

// Instrument carries the contract metadata needed for sizing orders.
// StepPrice is the money value of one PriceStep move for one unit of volume.
type Instrument struct {
	Name          string  `json:"name" yaml:"name" mapstructure:"name"`
	QuoteCurrency string  `json:"quote_currency" yaml:"quote_currency" mapstructure:"quote_currency"`
	PriceStep     float64 `json:"price_step" yaml:"price_step" mapstructure:"price_step"`
	StepPrice     float64 `json:"step_price" yaml:"step_price" mapstructure:"step_price"`
	VolumeStep    float64 `json:"volume_step" yaml:"volume_step" mapstructure:"volume_step"`
	MinVolume     float64 `json:"min_volume" yaml:"min_volume" mapstructure:"min_volume"`
	MaxVolume     float64 `json:"max_volume" yaml:"max_volume" mapstructure:"max_volume"`
}

var Instruments = map[string]Instrument{
	"EUR_USD": {
		Name:          "EUR_USD",
		QuoteCurrency: "USD",
		PriceStep:     0.00001,
		StepPrice:     0.00001,
		VolumeStep:    1,
		MinVolume:     1,
		MaxVolume:     10_000_000,
	},
	"USD_JPY": {
		Name:          "USD_JPY",
		QuoteCurrency: "JPY",
		PriceStep:     0.001,
		StepPrice:     0.001,
		VolumeStep:    1,
		MinVolume:     1,
		MaxVolume:     10_000_000,
	},
	"BTC_USDT": {
		Name:          "BTC_USDT",
		QuoteCurrency: "USDT",
		PriceStep:     0.1,
		StepPrice:     0.1,
		VolumeStep:    0.001,
		MinVolume:     0.001,
		MaxVolume:     100,
	},
}

// Validate checks the metadata is usable for sizing.
func (i Instrument) Validate() error {
	if i.Name == "" {
		return fmt.Errorf("instrument name is required")
	}
	if i.PriceStep <= 0 || i.StepPrice <= 0 {
		return fmt.Errorf("instrument %s: price_step and step_price must be positive", i.Name)
	}
	if i.VolumeStep <= 0 {
		return fmt.Errorf("instrument %s: volume_step must be positive", i.Name)
	}
	if i.MaxVolume > 0 && i.MinVolume > i.MaxVolume {
		return fmt.Errorf("instrument %s: min_volume exceeds max_volume", i.Name)
	}
	return nil
}

// LookupInstrument returns metadata for a known instrument.
func LookupInstrument(name string) (Instrument, error) {
	meta, ok := Instruments[name]
	if !ok {
		return Instrument{}, fmt.Errorf("unknown instrument %s", name)
	}
	return meta, nil
}
