package journal

import (
	"bytes"
	"fmt"
	"os"
	"text/template"
	"time"
)

// BacktestRun summarizes one backtest for the Org report.
type BacktestRun struct {
	RunID     string
	Created   time.Time
	Timeframe string
	Dataset   string

	Instrument string
	Config     []byte // engine config as YAML

	// Grid and exit parameters
	MaxLayers         int
	VolumeMultiplier  float64
	PriceGap          float64
	ProfitTargetMoney float64
	TrailingModes     string

	Start time.Time
	End   time.Time

	Trades int
	Wins   int
	Losses int
	Layers int // deepest cycle

	StartBalance float64
	EndBalance   float64

	NetPL        float64
	ReturnPct    float64
	WinRate      float64
	ProfitFactor float64
	MaxDDPct     float64

	OrgPath string

	Notes []string
}

var backtestOrgFuncs = template.FuncMap{
	"mul100": func(x float64) float64 { return x * 100.0 },
	"orTime": func(t time.Time) time.Time {
		if t.IsZero() {
			return time.Now()
		}
		return t
	},
}

var backtestOrg = template.Must(template.New("backtest").Funcs(backtestOrgFuncs).Parse(BacktestOrgTemplate))

// Org renders the run as an Org-mode entry.
func (v *BacktestRun) Org() (string, error) {
	buf := new(bytes.Buffer)
	if err := backtestOrg.Execute(buf, v); err != nil {
		return "", fmt.Errorf("render backtest org: %w", err)
	}
	return buf.String(), nil
}

// WriteBacktestOrg writes the Org entry to OrgPath.
func (v *BacktestRun) WriteBacktestOrg() error {
	if v.OrgPath == "" {
		return fmt.Errorf("backtest org: no output path")
	}
	s, err := v.Org()
	if err != nil {
		return err
	}
	return os.WriteFile(v.OrgPath, []byte(s), 0644)
}

const BacktestOrgTemplate = `
* BACKTEST: Grid {{.Instrument}} {{if .Timeframe}}{{.Timeframe}}{{else}}(timeframe?){{end}}
:PROPERTIES:
:RUN_ID:      {{if .RunID}}{{.RunID}}{{else}}(run-id?){{end}}
:STRATEGY:    grid
:TIMEFRAME:   {{if .Timeframe}}{{.Timeframe}}{{else}}(timeframe?){{end}}
:INSTRUMENT:  {{.Instrument}}
:DATASET:     {{if .Dataset}}{{.Dataset}}{{else}}(dataset?){{end}}
:START_DATE:  {{.Start.Format "2006-01-02"}}
:END_DATE:    {{.End.Format "2006-01-02"}}
:START_BAL:   {{printf "%.2f" .StartBalance}}
:END_BAL:     {{printf "%.2f" .EndBalance}}
:NET_PL:      {{printf "%.2f" .NetPL}}
:RETURN_PCT:  {{printf "%.2f" .ReturnPct}}
:MAX_DD_PCT:  {{printf "%.2f" .MaxDDPct}}
:TRADES:      {{.Trades}}
:WINS:        {{.Wins}}
:LOSSES:      {{.Losses}}
:MAX_LAYERS:  {{.Layers}}
:WIN_RATE:    {{printf "%.2f" (mul100 .WinRate)}}
:PROFIT_FAC:  {{if ne .ProfitFactor 0.0}}{{printf "%.2f" .ProfitFactor}}{{else}}(profit-factor?){{end}}
:CREATED:     [{{(orTime .Created).Format "2006-01-02 Mon 15:04"}}]
:END:

** Grid Parameters
| Parameter         | Value |
|-------------------+-------|
| Max layers        | {{.MaxLayers}} |
| Volume multiplier | {{printf "%.2f" .VolumeMultiplier}} |
| Price gap         | {{printf "%.5f" .PriceGap}} |
| Profit target     | {{printf "%.2f" .ProfitTargetMoney}} |
| Trailing          | {{.TrailingModes}} |
{{- if .Config }}

#+begin_src yaml
{{printf "%s" .Config}}#+end_src
{{- end }}

** Performance Summary
- Net P/L:          *{{printf "%.2f" .NetPL}}*
- Return:           *{{printf "%.2f" .ReturnPct}}%*
- Max Drawdown:     *{{printf "%.2f" .MaxDDPct}}%*
- Win Rate:         *{{printf "%.2f" (mul100 .WinRate)}}%*
- Profit Factor:    *{{if ne .ProfitFactor 0.0}}{{printf "%.2f" .ProfitFactor}}{{else}}(profit-factor?){{end}}*

** Trade Distribution
| Outcome | Count |
|---------+-------|
| Wins    | {{.Wins}} |
| Losses  | {{.Losses}} |
| Total   | {{.Trades}} |

{{- if .Notes }}
** Observations
{{- range .Notes }}
- {{.}}
{{- end }}
{{- end }}
`
