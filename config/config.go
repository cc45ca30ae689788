package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	DataDir     string `toml:"DataDir"`
	InMemory    bool   `toml:"InMemory"`
	GenesisFile string `toml:"GenesisFile"`
	Environment string `toml:"Environment"`

	Token        TokenConfig     `toml:"Token"`
	LegacyTokens []TokenConfig   `toml:"LegacyTokens"`
	Exchange     ExchangeConfig  `toml:"Exchange"`
	Rates        RatesConfig     `toml:"Rates"`
	RPC          RPCConfig       `toml:"RPC"`
	Collector    CollectorConfig `toml:"Collector"`
	EventLog     EventLogConfig  `toml:"EventLog"`
	Logging      LoggingConfig   `toml:"Logging"`
	Telemetry    TelemetryConfig `toml:"Telemetry"`
}

type TokenConfig struct {
	Symbol       string `toml:"Symbol"`
	Name         string `toml:"Name"`
	PeggedSymbol string `toml:"PeggedSymbol"`
	Decimals     uint8  `toml:"Decimals"`
}

type ExchangeConfig struct {
	// Pricing is "midpoint" (the default) or "sell" (the sell order's price).
	Pricing     string `toml:"Pricing"`
	MatchBudget int    `toml:"MatchBudget"`
}

type RatesConfig struct {
	MaxAgeSeconds uint64 `toml:"MaxAgeSeconds"`
}

type RPCConfig struct {
	ListenAddress      string  `toml:"ListenAddress"`
	JWTSecretEnv       string  `toml:"JWTSecretEnv"`
	RateLimitPerSecond float64 `toml:"RateLimitPerSecond"`
	RateLimitBurst     int     `toml:"RateLimitBurst"`
	ReadTimeoutSeconds int     `toml:"ReadTimeoutSeconds"`
	WriteTimeoutSecs   int     `toml:"WriteTimeoutSeconds"`
}

type CollectorConfig struct {
	Enabled   bool   `toml:"Enabled"`
	Schedule  string `toml:"Schedule"`
	Account   string `toml:"Account"`
	BatchSize int    `toml:"BatchSize"`
}

type EventLogConfig struct {
	// Driver is "sqlite", "postgres" or empty to disable the archive.
	Driver string `toml:"Driver"`
	DSN    string `toml:"DSN"`
}

type LoggingConfig struct {
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
}

type TelemetryConfig struct {
	Endpoint    string  `toml:"Endpoint"`
	Insecure    bool    `toml:"Insecure"`
	Headers     string  `toml:"Headers"`
	Traces      bool    `toml:"Traces"`
	Metrics     bool    `toml:"Metrics"`
	SampleRatio float64 `toml:"SampleRatio"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := &Config{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s: unknown key %s", path, undecoded[0].String())
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns the configuration written for a fresh node.
func Default() *Config {
	cfg := &Config{
		DataDir:      "./augmint-data",
		Environment:  "local",
		LegacyTokens: []TokenConfig{},
	}
	cfg.applyDefaults()
	cfg.Collector.Enabled = true
	return cfg
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Environment) == "" {
		c.Environment = "local"
	}
	if c.Token.Symbol == "" {
		c.Token = TokenConfig{Symbol: "AEUR", Name: "Augmint Euro", PeggedSymbol: "EUR", Decimals: 4}
	}
	if c.LegacyTokens == nil {
		c.LegacyTokens = []TokenConfig{}
	}
	if c.Exchange.Pricing == "" {
		c.Exchange.Pricing = "midpoint"
	}
	if c.RPC.ListenAddress == "" {
		c.RPC.ListenAddress = ":8080"
	}
	if c.RPC.JWTSecretEnv == "" {
		c.RPC.JWTSecretEnv = "AUGMINT_RPC_JWT_SECRET"
	}
	if c.RPC.RateLimitPerSecond == 0 {
		c.RPC.RateLimitPerSecond = 20
	}
	if c.RPC.RateLimitBurst == 0 {
		c.RPC.RateLimitBurst = 40
	}
	if c.RPC.ReadTimeoutSeconds == 0 {
		c.RPC.ReadTimeoutSeconds = 15
	}
	if c.RPC.WriteTimeoutSecs == 0 {
		c.RPC.WriteTimeoutSecs = 15
	}
	if c.Collector.Schedule == "" {
		c.Collector.Schedule = "@every 1m"
	}
	if c.Collector.BatchSize == 0 {
		c.Collector.BatchSize = 50
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// JWTSecret resolves the RPC signing secret from the configured environment
// variable. An empty secret selects header-based caller identity.
func (c *Config) JWTSecret() string {
	if c.RPC.JWTSecretEnv == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(c.RPC.JWTSecretEnv))
}
