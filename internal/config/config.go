// Package config loads the engine configuration from YAML. Everything the
// core consumes is supplied at construction; nothing reads the environment.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/quantlab-io/tradecost/internal/fees"
	"github.com/quantlab-io/tradecost/internal/impact"
	"github.com/quantlab-io/tradecost/internal/makertaker"
)

// Config is the root configuration document
type Config struct {
	Simulator  SimulatorConfig       `yaml:"simulator"`
	Volatility VolatilityConfig      `yaml:"volatility"`
	Impact     ImpactConfig          `yaml:"impact"`
	MakerTaker makertaker.Parameters `yaml:"maker_taker"`
	FeeTiers   map[string]fees.Rates `yaml:"fee_tiers"`
	MarketData MarketDataConfig      `yaml:"market_data"`
	HTTP       HTTPConfig            `yaml:"http"`
	Store      StoreConfig           `yaml:"store"`
}

// SimulatorConfig tunes the orchestrator
type SimulatorConfig struct {
	Workers        int `yaml:"workers"`
	BatchQueueSize int `yaml:"batch_queue_size"`
	CacheSize      int `yaml:"cache_size"`
	LatencyWindow  int `yaml:"latency_window"`
}

// VolatilityConfig tunes the volatility calculator
type VolatilityConfig struct {
	Windows    []int   `yaml:"windows"`
	EWMALambda float64 `yaml:"ewma_lambda"`
}

// ImpactConfig carries per-variant impact parameter sets
type ImpactConfig struct {
	Models map[string]impact.Parameters `yaml:"models"`
}

// MarketDataConfig tunes the websocket ingestion client
type MarketDataConfig struct {
	URL                  string  `yaml:"url"`
	Symbol               string  `yaml:"symbol"`
	PingInterval         int     `yaml:"ping_interval_seconds"`
	ReconnectDelay       int     `yaml:"reconnect_delay_seconds"`
	MaxReconnectAttempts int     `yaml:"max_reconnect_attempts"`
	UpdatesPerSecond     float64 `yaml:"updates_per_second"`
}

// HTTPConfig tunes the API server
type HTTPConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StoreConfig wires the optional persistence backends. Empty values
// disable the corresponding backend.
type StoreConfig struct {
	PostgresDSN string `yaml:"postgres_dsn"`
	RedisAddr   string `yaml:"redis_addr"`
}

// Default returns the built-in configuration
func Default() Config {
	schedule := fees.DefaultSchedule()
	tiers := make(map[string]fees.Rates, len(schedule))
	for tier, rates := range schedule {
		tiers[tier.String()] = rates
	}

	return Config{
		Simulator: SimulatorConfig{
			Workers:        4,
			BatchQueueSize: 64,
			CacheSize:      100,
			LatencyWindow:  100,
		},
		Volatility: VolatilityConfig{
			Windows:    []int{10, 30, 60, 120},
			EWMALambda: 0.94,
		},
		Impact: ImpactConfig{
			Models: map[string]impact.Parameters{
				string(impact.KindHybrid):     impact.DefaultParameters(),
				string(impact.KindSquareRoot): impact.DefaultParameters(),
				string(impact.KindLinear):     impact.DefaultParameters(),
			},
		},
		MakerTaker: makertaker.DefaultParameters(),
		FeeTiers:   tiers,
		MarketData: MarketDataConfig{
			URL:                  "wss://ws.gomarket-cpp.goquant.io/ws/l2-orderbook/okx/%s",
			Symbol:               "BTC-USDT-SWAP",
			PingInterval:         10,
			ReconnectDelay:       5,
			MaxReconnectAttempts: 5,
			UpdatesPerSecond:     20,
		},
		HTTP: HTTPConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
	}
}

// Load reads a YAML file over the defaults. An empty path returns the
// defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot run with
func (c Config) Validate() error {
	if c.Simulator.Workers <= 0 {
		return fmt.Errorf("simulator.workers must be positive, got %d", c.Simulator.Workers)
	}
	if c.Simulator.BatchQueueSize <= 0 {
		return fmt.Errorf("simulator.batch_queue_size must be positive, got %d", c.Simulator.BatchQueueSize)
	}
	if c.Simulator.CacheSize <= 0 {
		return fmt.Errorf("simulator.cache_size must be positive, got %d", c.Simulator.CacheSize)
	}
	if c.Volatility.EWMALambda <= 0 || c.Volatility.EWMALambda >= 1 {
		return fmt.Errorf("volatility.ewma_lambda must be in (0,1), got %f", c.Volatility.EWMALambda)
	}
	for _, w := range c.Volatility.Windows {
		if w <= 0 {
			return fmt.Errorf("volatility windows must be positive, got %d", w)
		}
	}
	for name, rates := range c.FeeTiers {
		if rates.Maker < 0 || rates.Taker < 0 {
			return fmt.Errorf("fee tier %s has negative rates", name)
		}
	}
	return nil
}

// FeeSchedule converts the configured tier table into a fees.Schedule
func (c Config) FeeSchedule() fees.Schedule {
	schedule := make(fees.Schedule, len(c.FeeTiers))
	for name, rates := range c.FeeTiers {
		schedule[fees.ParseTier(name)] = rates
	}
	return schedule
}

// ImpactParameters returns the parameter set for a model kind, falling
// back to defaults when the kind is not configured.
func (c Config) ImpactParameters(kind impact.Kind) impact.Parameters {
	if params, ok := c.Impact.Models[string(kind)]; ok {
		return params
	}
	return impact.DefaultParameters()
}
