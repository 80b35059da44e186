package trailing

import (
	"fmt"
	"strings"
)

// Mode selects how a candidate stop is computed. Modes combine as a bit set;
// when several are enabled the most protective candidate wins.
type Mode uint8

const (
	Fixed Mode = 1 << iota
	AtrScaled
	Channel
	ExternalIndicator
)

// AllModes lists every mode in evaluation order.
var AllModes = []Mode{Fixed, AtrScaled, Channel, ExternalIndicator}

func (m Mode) Has(o Mode) bool { return m&o != 0 }

func (m Mode) String() string {
	var names []string
	for _, o := range AllModes {
		if m.Has(o) {
			names = append(names, modeName(o))
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "+")
}

func modeName(m Mode) string {
	switch m {
	case Fixed:
		return "fixed"
	case AtrScaled:
		return "atr"
	case Channel:
		return "channel"
	case ExternalIndicator:
		return "external"
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

// ParseMode parses one mode name.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fixed":
		return Fixed, nil
	case "atr", "atr_scaled", "atrscaled":
		return AtrScaled, nil
	case "channel", "donchian":
		return Channel, nil
	case "external", "external_indicator", "sar", "psar":
		return ExternalIndicator, nil
	}
	return 0, fmt.Errorf("unknown trailing mode %q", s)
}

// ParseModes combines a list of mode names into one set.
func ParseModes(names []string) (Mode, error) {
	var m Mode
	for _, n := range names {
		o, err := ParseMode(n)
		if err != nil {
			return 0, err
		}
		m |= o
	}
	return m, nil
}

// Names returns the mode names in the set.
func (m Mode) Names() []string {
	var out []string
	for _, o := range AllModes {
		if m.Has(o) {
			out = append(out, modeName(o))
		}
	}
	return out
}
