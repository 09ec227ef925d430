// Package config loads the YAML configuration of the backtest tools.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"stock-strategy-lab/internal/domain"
	"stock-strategy-lab/internal/pricing"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// Environment overrides
const (
	EnvPostgresDSN   = "SSL_POSTGRES_DSN"
	EnvClickHouseDSN = "SSL_CLICKHOUSE_DSN"
	EnvLogLevel      = "SSL_LOG_LEVEL"
	EnvWorkers       = "SSL_WORKERS"
)

// Price and filter sources, storage backends
const (
	SourceMemory     = "memory"
	SourceParquet    = "parquet"
	SourceClickHouse = "clickhouse"
	SourceSQLite     = "sqlite"
	SourceNone       = "none"
	BackendMemory    = "memory"
	BackendPostgres  = "postgres"
	FormatMarkdown   = "markdown"
	FormatCSV        = "csv"
)

// Config is the top-level configuration.
type Config struct {
	Log      Log               `yaml:"log"`
	Engine   Engine            `yaml:"engine"`
	Costs    pricing.CostModel `yaml:"costs"`
	Strategy Strategy          `yaml:"strategy"`
	Data     Data              `yaml:"data"`
	Storage  Storage           `yaml:"storage"`
	Report   Report            `yaml:"report"`
	Metrics  Metrics           `yaml:"metrics"`
}

// Log configures the application logger.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json | console
}

// Engine holds worker pool and sizing defaults.
type Engine struct {
	Workers        int               `yaml:"workers"`
	Timeout        time.Duration     `yaml:"timeout"`
	InitialCapital float64           `yaml:"initial_capital"`
	LotPolicy      string            `yaml:"lot_policy"`
	LotSize        int64             `yaml:"lot_size"`
	Ticks          pricing.TickTable `yaml:"ticks"`
}

// Strategy selects the strategy and its parameters.
type Strategy struct {
	ID     string            `yaml:"id"`
	Params domain.Parameters `yaml:"params"`
}

// Data describes where prices and the allow-list come from.
type Data struct {
	PriceSource   string   `yaml:"price_source"` // parquet | clickhouse | memory
	ParquetDir    string   `yaml:"parquet_dir"`
	ClickHouseDSN string   `yaml:"clickhouse_dsn"`
	FilterSource  string   `yaml:"filter_source"` // sqlite | none
	SQLitePath    string   `yaml:"sqlite_path"`
	Instruments   []string `yaml:"instruments"`
	Start         string   `yaml:"start"` // YYYY-MM-DD, optional
	End           string   `yaml:"end"`
}

// Storage selects where runs and trades are persisted.
type Storage struct {
	Backend     string `yaml:"backend"` // memory | postgres
	PostgresDSN string `yaml:"postgres_dsn"`
}

// Report configures rendered output.
type Report struct {
	OutputDir string   `yaml:"output_dir"`
	Formats   []string `yaml:"formats"`
}

// Metrics configures the Prometheus listener. Empty address disables it.
type Metrics struct {
	ListenAddr string `yaml:"listen_addr"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	return &Config{
		Log: Log{Level: "info", Format: "json"},
		Engine: Engine{
			InitialCapital: 1_000_000,
			LotPolicy:      string(pricing.LotMixed),
			LotSize:        pricing.DefaultLotSize,
		},
		Costs:   pricing.DefaultCostModel,
		Data:    Data{PriceSource: SourceParquet, ParquetDir: "data/prices", FilterSource: SourceNone},
		Storage: Storage{Backend: BackendMemory},
		Report:  Report{OutputDir: "reports", Formats: []string{FormatMarkdown, FormatCSV}},
	}
}

// Load reads the YAML configuration file at path over the defaults, applies
// environment variable overrides and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse is Load for an in-memory document.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv(EnvPostgresDSN); v != "" {
		cfg.Storage.PostgresDSN = v
	}
	if v := os.Getenv(EnvClickHouseDSN); v != "" {
		cfg.Data.ClickHouseDSN = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv(EnvWorkers); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidConfig, EnvWorkers, v)
		}
		cfg.Engine.Workers = n
	}
	return nil
}

// Validate checks enumerations, ranges and required companions.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
	}

	if c.Engine.Workers < 0 {
		return invalid("engine.workers must not be negative")
	}
	if c.Engine.Timeout < 0 {
		return invalid("engine.timeout must not be negative")
	}
	if c.Engine.InitialCapital <= 0 {
		return invalid("engine.initial_capital must be positive")
	}
	if _, err := pricing.ParseLotPolicy(c.Engine.LotPolicy); err != nil {
		return invalid("engine.lot_policy: %v", err)
	}
	if c.Engine.LotSize <= 0 {
		return invalid("engine.lot_size must be positive")
	}
	if err := c.Engine.Ticks.Validate(); err != nil {
		return invalid("engine.ticks: %v", err)
	}
	if err := c.Costs.Validate(); err != nil {
		return invalid("costs: %v", err)
	}

	switch c.Data.PriceSource {
	case SourceParquet:
		if c.Data.ParquetDir == "" {
			return invalid("data.parquet_dir is required for the parquet source")
		}
	case SourceClickHouse:
		if c.Data.ClickHouseDSN == "" {
			return invalid("data.clickhouse_dsn is required for the clickhouse source")
		}
	case SourceMemory:
	default:
		return invalid("data.price_source %q", c.Data.PriceSource)
	}

	switch c.Data.FilterSource {
	case SourceSQLite:
		if c.Data.SQLitePath == "" {
			return invalid("data.sqlite_path is required for the sqlite filter source")
		}
	case SourceNone, "":
	default:
		return invalid("data.filter_source %q", c.Data.FilterSource)
	}

	start, end, err := c.Data.DateRange()
	if err != nil {
		return invalid("data: %v", err)
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return invalid("data.end %s before data.start %s", c.Data.End, c.Data.Start)
	}

	switch c.Storage.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Storage.PostgresDSN == "" {
			return invalid("storage.postgres_dsn is required for the postgres backend")
		}
	default:
		return invalid("storage.backend %q", c.Storage.Backend)
	}

	for _, f := range c.Report.Formats {
		if !slices.Contains([]string{FormatMarkdown, FormatCSV}, f) {
			return invalid("report.formats: unknown format %q", f)
		}
	}
	return nil
}

// DateRange parses the optional start and end dates.
func (d Data) DateRange() (start, end time.Time, err error) {
	if d.Start != "" {
		if start, err = domain.ParseDate(d.Start); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	if d.End != "" {
		if end, err = domain.ParseDate(d.End); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	return start, end, nil
}

// Calculator returns a price calculator over the configured tick table.
func (e Engine) Calculator() *pricing.Calculator {
	return pricing.NewCalculator(e.Ticks)
}
