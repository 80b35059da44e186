package market

import (
	"math"
	"testing"
	"time"
)

func TestTickMid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		bid      float64
		ask      float64
		expected float64
	}{
		{"simple", 1.0, 3.0, 2.0},
		{"same", 2.5, 2.5, 2.5},
		{"zero", 0.0, 0.0, 0.0},
		{"negative", -2.0, 2.0, 0.0},
		{"fractional", 1.1, 1.3, 1.2},
	}

	const tol = 1e-9

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := Tick{Bid: tt.bid, Ask: tt.ask}
			got := p.Mid()
			if math.Abs(got-tt.expected) > tol {
				t.Fatalf("Mid() = %v, expected %v", got, tt.expected)
			}
		})
	}
}

func TestQuoteFromTick(t *testing.T) {
	tk := Tick{Bid: 1.1000, Ask: 1.1002}
	if q := QuoteFromTick(tk, Long); q.Last != 1.1000 || q.High != q.Low {
		t.Fatalf("long quote = %+v", q)
	}
	if q := QuoteFromTick(tk, Short); q.Last != 1.1002 {
		t.Fatalf("short quote = %+v", q)
	}
}

func TestTickValid(t *testing.T) {
	tm := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		tick Tick
		want bool
	}{
		{"ok", Tick{Time: tm, Bid: 1.1, Ask: 1.1002}, true},
		{"locked", Tick{Time: tm, Bid: 1.1, Ask: 1.1}, true},
		{"crossed", Tick{Time: tm, Bid: 1.1002, Ask: 1.1}, false},
		{"no bid", Tick{Time: tm, Ask: 1.1}, false},
		{"no time", Tick{Bid: 1.1, Ask: 1.1002}, false},
	}
	for _, tt := range tests {
		if got := tt.tick.Valid(); got != tt.want {
			t.Errorf("%s: Valid() = %v, want %v", tt.name, got, tt.want)
		}
	}
}
