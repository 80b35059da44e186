package backtest

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/rustyeddy/gridtrader/engine"
	"github.com/rustyeddy/gridtrader/journal"
	"github.com/rustyeddy/gridtrader/pkg/id"
)

// Result summarizes a run. A trade is one closed side cycle.
type Result struct {
	Start time.Time
	End   time.Time
	Bars  int // candles, or ticks in a tick replay

	Trades    int
	Wins      int
	Losses    int
	MaxLayers int
	Reasons   map[string]int

	GrossProfit float64
	GrossLoss   float64

	StartBalance float64
	EndBalance   float64
	Equity       float64

	MaxDrawdown float64
	MaxDDPct    float64
}

func (r Result) NetPL() float64 { return r.EndBalance - r.StartBalance }

// WinRate is the fraction of closed cycles that made money.
func (r Result) WinRate() float64 {
	if r.Trades == 0 {
		return 0
	}
	return float64(r.Wins) / float64(r.Trades)
}

func (r Result) ReturnPct() float64 {
	if r.StartBalance == 0 {
		return 0
	}
	return r.NetPL() / r.StartBalance * 100
}

// ProfitFactor is zero when there were no losing cycles.
func (r Result) ProfitFactor() float64 {
	if r.GrossLoss == 0 {
		return 0
	}
	return r.GrossProfit / r.GrossLoss
}

// Run describes where a result came from, for the journal report.
type Run struct {
	Timeframe string
	Dataset   string
	Config    []byte
	OrgPath   string
	Notes     []string
}

// BacktestRun converts the result for the Org-mode journal.
func (r Result) BacktestRun(cfg engine.Config, meta Run) journal.BacktestRun {
	return journal.BacktestRun{
		RunID:             id.New(),
		Created:           time.Now(),
		Timeframe:         meta.Timeframe,
		Dataset:           meta.Dataset,
		Instrument:        cfg.Instrument.Name,
		Config:            meta.Config,
		MaxLayers:         cfg.Grid.MaxLayers,
		VolumeMultiplier:  cfg.Grid.VolumeMultiplier,
		PriceGap:          cfg.Grid.PriceGap,
		ProfitTargetMoney: cfg.Exit.ProfitTargetMoney,
		TrailingModes:     cfg.Trailing.Modes.String(),
		Start:             r.Start,
		End:               r.End,
		Trades:            r.Trades,
		Wins:              r.Wins,
		Losses:            r.Losses,
		Layers:            r.MaxLayers,
		StartBalance:      r.StartBalance,
		EndBalance:        r.EndBalance,
		NetPL:             r.NetPL(),
		ReturnPct:         r.ReturnPct(),
		WinRate:           r.WinRate(),
		ProfitFactor:      r.ProfitFactor(),
		MaxDDPct:          r.MaxDDPct,
		OrgPath:           meta.OrgPath,
		Notes:             meta.Notes,
	}
}

// Print writes a human readable summary.
func (r Result) Print(w io.Writer) {
	fmt.Fprintln(w, "==================================================")
	fmt.Fprintln(w, " Backtest Result")
	fmt.Fprintln(w, "==================================================")

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Period")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Start:         %s\n", r.Start.Format(time.RFC3339))
	fmt.Fprintf(w, "End:           %s\n", r.End.Format(time.RFC3339))
	fmt.Fprintf(w, "Bars:          %d\n", r.Bars)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Cycle Statistics")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Cycles:        %d\n", r.Trades)
	fmt.Fprintf(w, "Wins:          %d\n", r.Wins)
	fmt.Fprintf(w, "Losses:        %d\n", r.Losses)
	fmt.Fprintf(w, "Win Rate:      %.2f%%\n", r.WinRate()*100)
	fmt.Fprintf(w, "Max Layers:    %d\n", r.MaxLayers)

	if len(r.Reasons) > 0 {
		reasons := make([]string, 0, len(r.Reasons))
		for k := range r.Reasons {
			reasons = append(reasons, k)
		}
		sort.Strings(reasons)
		for _, k := range reasons {
			fmt.Fprintf(w, "  %-12s %d\n", k+":", r.Reasons[k])
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Account Performance")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Start Balance: %.2f\n", r.StartBalance)
	fmt.Fprintf(w, "End Balance:   %.2f\n", r.EndBalance)
	fmt.Fprintf(w, "Equity:        %.2f\n", r.Equity)
	fmt.Fprintf(w, "Net P/L:       %.2f\n", r.NetPL())
	fmt.Fprintf(w, "Return:        %.2f%%\n", r.ReturnPct())

	if pf := r.ProfitFactor(); pf > 0 {
		fmt.Fprintf(w, "Profit Factor: %.2f\n", pf)
	}
	if r.MaxDDPct > 0 {
		fmt.Fprintf(w, "Max Drawdown:  %.2f (%.2f%%)\n", r.MaxDrawdown, r.MaxDDPct)
	}
	fmt.Fprintln(w)
}
