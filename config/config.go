// Package config loads and validates the gridtrader configuration file.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/gridtrader/engine"
	"github.com/rustyeddy/gridtrader/exit"
	"github.com/rustyeddy/gridtrader/grid"
	"github.com/rustyeddy/gridtrader/indicators"
	"github.com/rustyeddy/gridtrader/journal"
	"github.com/rustyeddy/gridtrader/logger"
	"github.com/rustyeddy/gridtrader/market"
	"github.com/rustyeddy/gridtrader/sim"
	"github.com/rustyeddy/gridtrader/trailing"
)

// EnvPrefix prefixes environment overrides, e.g. GRIDTRADER_GRID_MAX_LAYERS.
const EnvPrefix = "GRIDTRADER"

// Config represents the complete engine configuration
type Config struct {
	Account    AccountConfig           `json:"account" yaml:"account" mapstructure:"account"`
	Instrument market.Instrument       `json:"instrument" yaml:"instrument" mapstructure:"instrument"`
	Grid       grid.Config             `json:"grid" yaml:"grid" mapstructure:"grid"`
	Exit       exit.Config             `json:"exit" yaml:"exit" mapstructure:"exit"`
	Trailing   TrailingConfig          `json:"trailing" yaml:"trailing" mapstructure:"trailing"`
	Risk       RiskConfig              `json:"risk" yaml:"risk" mapstructure:"risk"`
	Engine     EngineConfig            `json:"engine" yaml:"engine" mapstructure:"engine"`
	Indicators indicators.WindowConfig `json:"indicators" yaml:"indicators" mapstructure:"indicators"`
	Simulation SimulationConfig        `json:"simulation" yaml:"simulation" mapstructure:"simulation"`
	Journal    JournalConfig           `json:"journal" yaml:"journal" mapstructure:"journal"`
	Log        logger.Config           `json:"log" yaml:"log" mapstructure:"log"`
}

// AccountConfig contains account initialization parameters
type AccountConfig struct {
	ID       string  `json:"id" yaml:"id" mapstructure:"id"`
	Currency string  `json:"currency" yaml:"currency" mapstructure:"currency"`
	Balance  float64 `json:"balance" yaml:"balance" mapstructure:"balance"`
}

type TrailingConfig struct {
	Modes         []string `json:"modes" yaml:"modes" mapstructure:"modes"`
	FixedDistance float64  `json:"fixed_distance" yaml:"fixed_distance" mapstructure:"fixed_distance"`
	AtrMultiplier float64  `json:"atr_multiplier" yaml:"atr_multiplier" mapstructure:"atr_multiplier"`
	ChannelBuffer float64  `json:"channel_buffer" yaml:"channel_buffer" mapstructure:"channel_buffer"`
	ArmAtEntry    bool     `json:"arm_at_entry" yaml:"arm_at_entry" mapstructure:"arm_at_entry"`
	StopOrders    bool     `json:"stop_orders" yaml:"stop_orders" mapstructure:"stop_orders"`
}

type RiskConfig struct {
	// Percent of equity risked on the first layer of a cycle. Zero uses
	// grid.base_volume as is.
	Percent float64 `json:"percent" yaml:"percent" mapstructure:"percent"`
}

type EngineConfig struct {
	Sides           []string `json:"sides" yaml:"sides" mapstructure:"sides"`
	RequireSignal   bool     `json:"require_signal" yaml:"require_signal" mapstructure:"require_signal"`
	StaleAfter      string   `json:"stale_after" yaml:"stale_after" mapstructure:"stale_after"`           // e.g. "5m"
	ReevaluateEvery string   `json:"reevaluate_every" yaml:"reevaluate_every" mapstructure:"reevaluate_every"` // e.g. "30s"
}

// SimulationConfig contains simulated venue and replay parameters
type SimulationConfig struct {
	Data          string  `json:"data" yaml:"data" mapstructure:"data"`    // candle CSV
	Ticks         string  `json:"ticks" yaml:"ticks" mapstructure:"ticks"` // tick CSV, replayed instead of data when set
	TickPeriod    string  `json:"tick_period" yaml:"tick_period" mapstructure:"tick_period"`
	From          string  `json:"from" yaml:"from" mapstructure:"from"` // RFC3339, inclusive
	To            string  `json:"to" yaml:"to" mapstructure:"to"`       // RFC3339, exclusive
	MaxFillVolume float64 `json:"max_fill_volume" yaml:"max_fill_volume" mapstructure:"max_fill_volume"`
	MarginRate    float64 `json:"margin_rate" yaml:"margin_rate" mapstructure:"margin_rate"`
	SettleAtEnd   bool    `json:"settle_at_end" yaml:"settle_at_end" mapstructure:"settle_at_end"`
}

// JournalConfig contains journaling parameters
type JournalConfig struct {
	Type       string `json:"type" yaml:"type" mapstructure:"type"` // "csv", "sqlite" or "none"
	TradesFile string `json:"trades_file" yaml:"trades_file" mapstructure:"trades_file"`
	FillsFile  string `json:"fills_file" yaml:"fills_file" mapstructure:"fills_file"`
	EquityFile string `json:"equity_file" yaml:"equity_file" mapstructure:"equity_file"`
	DBPath     string `json:"db_path" yaml:"db_path" mapstructure:"db_path"`
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	inst, _ := market.LookupInstrument("EUR_USD")
	return &Config{
		Account: AccountConfig{
			ID:       "SIM-001",
			Currency: "USD",
			Balance:  100000,
		},
		Instrument: inst,
		Grid: grid.Config{
			BaseVolume:       1000,
			VolumeMultiplier: 1.5,
			PriceGap:         0.0020,
			GapMultiplier:    1.2,
			MaxLayers:        5,
		},
		Exit: exit.Config{
			ProfitTargetMoney: 50,
			LockDownDistance:  0.0030,
			LockOffset:        0.0005,
			PointValue:        1,
		},
		Trailing: TrailingConfig{
			Modes:         []string{"fixed", "atr"},
			FixedDistance: 0.0025,
			AtrMultiplier: 2,
		},
		Engine: EngineConfig{
			Sides: []string{"long"},
		},
		Indicators: indicators.DefaultWindowConfig(),
		Simulation: SimulationConfig{
			TickPeriod: "1m",
		},
		Journal: JournalConfig{
			Type:       "csv",
			TradesFile: "./trades.csv",
			FillsFile:  "./fills.csv",
			EquityFile: "./equity.csv",
		},
		Log: logger.DefaultConfig(),
	}
}

// LoadFromFile loads configuration from a file (JSON or YAML based on
// extension) over the defaults, then applies GRIDTRADER_* environment
// overrides.
func LoadFromFile(path string) (*Config, error) {
	v, err := newViper()
	if err != nil {
		return nil, err
	}

	v.SetConfigFile(path)
	v.SetConfigType(strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."))
	if err := v.MergeInConfig(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return decode(v)
}

// LoadDefaults returns the defaults with environment overrides applied.
func LoadDefaults() (*Config, error) {
	v, err := newViper()
	if err != nil {
		return nil, err
	}
	return decode(v)
}

// newViper seeds a viper instance with every default key so AutomaticEnv
// can override keys the file does not mention.
func newViper() (*viper.Viper, error) {
	seed, err := yaml.Marshal(Default())
	if err != nil {
		return nil, fmt.Errorf("marshal defaults: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(seed)); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v, nil
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	// List values from the environment arrive as one string.
	cfg.Trailing.Modes = splitList(cfg.Trailing.Modes)
	cfg.Engine.Sides = splitList(cfg.Engine.Sides)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, f := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' }) {
			out = append(out, f)
		}
	}
	return out
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Account.Currency == "" {
		return fmt.Errorf("account.currency is required")
	}
	if c.Account.Balance <= 0 {
		return fmt.Errorf("account.balance must be positive")
	}
	if _, err := c.InstrumentSpec(); err != nil {
		return err
	}
	if _, err := c.EngineConfig(); err != nil {
		return err
	}
	if err := c.Indicators.Validate(); err != nil {
		return fmt.Errorf("indicators: %w", err)
	}
	if err := c.checkIndicatorInputs(); err != nil {
		return err
	}
	if c.Simulation.MaxFillVolume < 0 {
		return fmt.Errorf("simulation.max_fill_volume must not be negative")
	}
	if c.Simulation.MarginRate < 0 || c.Simulation.MarginRate >= 1 {
		return fmt.Errorf("simulation.margin_rate must be in [0, 1)")
	}
	if _, _, err := c.Simulation.Range(); err != nil {
		return err
	}
	if _, err := parseDuration("simulation.tick_period", c.Simulation.TickPeriod); err != nil {
		return err
	}
	if err := c.Journal.Validate(); err != nil {
		return err
	}
	return c.Log.Validate()
}

// checkIndicatorInputs rejects trailing modes whose input is switched off.
func (c *Config) checkIndicatorInputs() error {
	modes, err := trailing.ParseModes(c.Trailing.Modes)
	if err != nil {
		return err
	}
	switch {
	case modes.Has(trailing.AtrScaled) && c.Indicators.ATRPeriod == 0:
		return fmt.Errorf("trailing mode atr needs indicators.atr_period")
	case modes.Has(trailing.Channel) && c.Indicators.ChannelPeriod == 0:
		return fmt.Errorf("trailing mode channel needs indicators.channel_period")
	case modes.Has(trailing.ExternalIndicator) && c.Indicators.SARAcceleration == 0:
		return fmt.Errorf("trailing mode external needs indicators.sar_acceleration")
	case c.Engine.RequireSignal && c.Indicators.SlowPeriod == 0:
		return fmt.Errorf("engine.require_signal needs indicators.fast_period and slow_period")
	}
	return nil
}

func (j JournalConfig) Validate() error {
	switch j.Type {
	case "none":
	case "csv":
		if j.TradesFile == "" || j.FillsFile == "" || j.EquityFile == "" {
			return fmt.Errorf("journal trades_file, fills_file and equity_file required for CSV type")
		}
	case "sqlite":
		if j.DBPath == "" {
			return fmt.Errorf("journal db_path required for SQLite type")
		}
	default:
		return fmt.Errorf("journal.type must be 'csv', 'sqlite' or 'none'")
	}
	return nil
}

// Open creates the configured journal.
func (j JournalConfig) Open() (journal.Journal, error) {
	switch j.Type {
	case "csv":
		return journal.NewCSV(j.TradesFile, j.FillsFile, j.EquityFile)
	case "sqlite":
		return journal.NewSQLite(j.DBPath)
	case "none":
		return journal.Discard, nil
	}
	return nil, fmt.Errorf("journal.type %q not supported", j.Type)
}

// Range parses the replay window. Zero times leave that end open.
func (s SimulationConfig) Range() (from, to time.Time, err error) {
	if s.From != "" {
		if from, err = time.Parse(time.RFC3339, s.From); err != nil {
			return from, to, fmt.Errorf("simulation.from: %w", err)
		}
	}
	if s.To != "" {
		if to, err = time.Parse(time.RFC3339, s.To); err != nil {
			return from, to, fmt.Errorf("simulation.to: %w", err)
		}
	}
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		return from, to, fmt.Errorf("simulation.from must be before simulation.to")
	}
	return from, to, nil
}

// TickCandle is the candle length ticks are rolled into for indicators.
func (s SimulationConfig) TickCandle() (time.Duration, error) {
	return parseDuration("simulation.tick_period", s.TickPeriod)
}

// InstrumentSpec fills a known instrument's metadata when only its name is
// given.
func (c *Config) InstrumentSpec() (market.Instrument, error) {
	inst := c.Instrument
	if inst.PriceStep == 0 && inst.StepPrice == 0 && inst.VolumeStep == 0 {
		known, err := market.LookupInstrument(inst.Name)
		if err != nil {
			return market.Instrument{}, fmt.Errorf("instrument: %w", err)
		}
		inst = known
	}
	if err := inst.Validate(); err != nil {
		return market.Instrument{}, err
	}
	return inst, nil
}

func (c *Config) GridConfig() grid.Config { return c.Grid }

func (c *Config) ExitTargets() exit.Config { return c.Exit }

func (c *Config) TrailingParams() (trailing.Params, error) {
	modes, err := trailing.ParseModes(c.Trailing.Modes)
	if err != nil {
		return trailing.Params{}, err
	}
	return trailing.Params{
		Modes:         modes,
		FixedDistance: c.Trailing.FixedDistance,
		AtrMultiplier: c.Trailing.AtrMultiplier,
		ChannelBuffer: c.Trailing.ChannelBuffer,
		ArmAtEntry:    c.Trailing.ArmAtEntry,
		StopOrders:    c.Trailing.StopOrders,
	}, nil
}

// EngineConfig assembles and validates the engine's configuration.
func (c *Config) EngineConfig() (engine.Config, error) {
	inst, err := c.InstrumentSpec()
	if err != nil {
		return engine.Config{}, err
	}
	tp, err := c.TrailingParams()
	if err != nil {
		return engine.Config{}, err
	}

	ec := engine.Config{
		Instrument:    inst,
		Grid:          c.GridConfig(),
		Exit:          c.ExitTargets(),
		Trailing:      tp,
		RiskPercent:   c.Risk.Percent,
		RequireSignal: c.Engine.RequireSignal,
	}
	for _, name := range c.Engine.Sides {
		s, err := market.ParseSide(name)
		if err != nil {
			return engine.Config{}, fmt.Errorf("engine.sides: %w", err)
		}
		ec.Sides = append(ec.Sides, s)
	}
	if ec.StaleAfter, err = parseDuration("engine.stale_after", c.Engine.StaleAfter); err != nil {
		return engine.Config{}, err
	}
	if ec.ReevaluateEvery, err = parseDuration("engine.reevaluate_every", c.Engine.ReevaluateEvery); err != nil {
		return engine.Config{}, err
	}

	if err := ec.Validate(); err != nil {
		return engine.Config{}, err
	}
	return ec, nil
}

func parseDuration(key, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", key)
	}
	return d, nil
}

// SimConfig configures the simulated venue.
func (c *Config) SimConfig() (sim.Config, error) {
	inst, err := c.InstrumentSpec()
	if err != nil {
		return sim.Config{}, err
	}
	return sim.Config{
		Instrument:    inst,
		Currency:      c.Account.Currency,
		Balance:       c.Account.Balance,
		PointValue:    c.Exit.PointValue,
		MaxFillVolume: c.Simulation.MaxFillVolume,
		MarginRate:    c.Simulation.MarginRate,
	}, nil
}
