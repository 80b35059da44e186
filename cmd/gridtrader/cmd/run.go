package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/gridtrader/backtest"
	"github.com/rustyeddy/gridtrader/logger"
	"github.com/rustyeddy/gridtrader/metrics"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Replay candle data through the grid engine",
	Long: `Run replays a candle CSV through the grid engine against a simulated
venue and prints a summary once the data is exhausted.

The candle file has columns time,open,high,low,close[,volume]. A tick file
(time,instrument,bid,ask) replays quote by quote instead; ticks are rolled
into simulation.tick_period candles for the indicators. Time is RFC3339 or
unix seconds.

Examples:
  gridtrader run -c gridtrader.yaml --data data/eurusd-h1.csv
  gridtrader run -c gridtrader.yaml --ticks data/eurusd-ticks.csv
  gridtrader run --data data/eurusd-h1.csv --org reports/run.org --timeframe H1`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

var (
	runDataPath    string
	runTicksPath   string
	runMetricsAddr string
	runOrgPath     string
	runTimeframe   string
	runNotes       []string
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runDataPath, "data", "", "candle CSV (overrides simulation.data)")
	runCmd.Flags().StringVar(&runTicksPath, "ticks", "", "tick CSV (overrides simulation.ticks)")
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running, e.g. :9090")
	runCmd.Flags().StringVar(&runOrgPath, "org", "", "write an Org-mode report of the run to this path")
	runCmd.Flags().StringVar(&runTimeframe, "timeframe", "", "timeframe label for the report, e.g. H1")
	runCmd.Flags().StringSliceVar(&runNotes, "note", nil, "note for the report (repeatable)")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer log.Sync()

	data, ticks := runDataPath, runTicksPath
	if data == "" && ticks == "" {
		data, ticks = cfg.Simulation.Data, cfg.Simulation.Ticks
	}
	if ticks != "" {
		data = ""
	}
	if data == "" && ticks == "" {
		return fmt.Errorf("no candle data: set --data, --ticks, simulation.data or simulation.ticks")
	}

	from, to, err := cfg.Simulation.Range()
	if err != nil {
		return err
	}
	ec, err := cfg.EngineConfig()
	if err != nil {
		return err
	}
	sc, err := cfg.SimConfig()
	if err != nil {
		return err
	}

	period, err := cfg.Simulation.TickCandle()
	if err != nil {
		return err
	}

	j, err := cfg.Journal.Open()
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer func() {
		if err := j.Close(); err != nil {
			log.Warn("close journal", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if runMetricsAddr != "" {
		srv := serveMetrics(runMetricsAddr, log)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(sctx)
		}()
	}

	r, err := backtest.NewRunner(backtest.Options{
		Engine:      ec,
		Venue:       sc,
		Indicators:  cfg.Indicators,
		TickPeriod:  period,
		SettleAtEnd: cfg.Simulation.SettleAtEnd,
	}, j, log)
	if err != nil {
		return err
	}

	src := data
	if ticks != "" {
		src = ticks
	}
	log.Info("replay started",
		zap.String("data", src),
		zap.Bool("ticks", ticks != ""),
		zap.String("instrument", ec.Instrument.Name),
		zap.Int("max_layers", ec.Grid.MaxLayers),
		zap.String("trailing", ec.Trailing.Modes.String()))

	var res backtest.Result
	if ticks != "" {
		feed, ferr := backtest.NewCSVTickFeed(ticks, ec.Instrument.Name, from, to)
		if ferr != nil {
			return fmt.Errorf("open ticks: %w", ferr)
		}
		res, err = r.RunTicks(ctx, feed)
	} else {
		feed, ferr := backtest.NewCSVCandleFeed(data, from, to)
		if ferr != nil {
			return fmt.Errorf("open candles: %w", ferr)
		}
		res, err = r.Run(ctx, feed)
	}
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	res.Print(cmd.OutOrStdout())

	if runOrgPath == "" {
		return nil
	}
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	run := res.BacktestRun(ec, backtest.Run{
		Timeframe: runTimeframe,
		Dataset:   filepath.Base(src),
		Config:    raw,
		OrgPath:   runOrgPath,
		Notes:     runNotes,
	})
	if err := run.WriteBacktestOrg(); err != nil {
		return fmt.Errorf("write org report: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\n✓ Report written to %s\n", runOrgPath)
	return nil
}

func serveMetrics(addr string, log *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server", zap.Error(err))
		}
	}()
	log.Info("serving metrics", zap.String("addr", addr))
	return srv
}
