package market

import (
	"fmt"
	"strings"
)

// Side is the direction of a position: +1 long, -1 short.
type Side int8

const (
	Long  Side = +1
	Short Side = -1
)

// Sides lists both directions in evaluation order.
var Sides = []Side{Long, Short}

func (s Side) Sign() float64 { return float64(s) }

func (s Side) Opposite() Side { return -s }

func (s Side) Valid() bool { return s == Long || s == Short }

func (s Side) String() string {
	switch s {
	case Long:
		return "long"
	case Short:
		return "short"
	default:
		return fmt.Sprintf("side(%d)", int8(s))
	}
}

// ParseSide accepts long/short and buy/sell in any case.
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "long", "buy":
		return Long, nil
	case "short", "sell":
		return Short, nil
	default:
		return 0, fmt.Errorf("unknown side %q", s)
	}
}

// Better reports whether a is more favorable than b for a position on side s
// (higher for long, lower for short).
func (s Side) Better(a, b float64) bool {
	if s == Long {
		return a > b
	}
	return a < b
}
