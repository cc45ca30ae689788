package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "AEUR", cfg.Token.Symbol)
	require.Equal(t, "@every 1m", cfg.Collector.Schedule)
	require.True(t, cfg.Collector.Enabled)
	require.Equal(t, "midpoint", cfg.Exchange.Pricing)
	require.FileExists(t, path)

	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg, reloaded)
}

func TestLoadParsesSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	contents := `DataDir = "./data"
GenesisFile = "genesis.yaml"
Environment = "testnet"

[Token]
Symbol = "AEUR"
Name = "Augmint Euro"
PeggedSymbol = "EUR"
Decimals = 4

[[LegacyTokens]]
Symbol = "AEURV1"
Name = "Augmint Euro v1"
PeggedSymbol = "EUR"
Decimals = 4

[Exchange]
Pricing = "sell"
MatchBudget = 25

[RPC]
ListenAddress = "127.0.0.1:9000"
RateLimitPerSecond = 5.5

[Collector]
Enabled = true
Schedule = "*/5 * * * *"
Account = "0x1111111111111111111111111111111111111111"

[EventLog]
Driver = "sqlite"
DSN = "events.db"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "testnet", cfg.Environment)
	require.Len(t, cfg.LegacyTokens, 1)
	require.Equal(t, "AEURV1", cfg.LegacyTokens[0].Symbol)
	require.Equal(t, "sell", cfg.Exchange.Pricing)
	require.Equal(t, 25, cfg.Exchange.MatchBudget)
	require.Equal(t, 5.5, cfg.RPC.RateLimitPerSecond)
	require.Equal(t, 40, cfg.RPC.RateLimitBurst)
	require.Equal(t, "*/5 * * * *", cfg.Collector.Schedule)
	require.Equal(t, 50, cfg.Collector.BatchSize)
	require.Equal(t, "sqlite", cfg.EventLog.Driver)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("DataDir = \"x\"\nValidatorKey = \"abc\"\n"), 0o600))
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"pricing":         func(c *Config) { c.Exchange.Pricing = "best" },
		"duplicate token": func(c *Config) { c.LegacyTokens = []TokenConfig{c.Token} },
		"schedule":        func(c *Config) { c.Collector.Schedule = "whenever" },
		"eventlog dsn":    func(c *Config) { c.EventLog.Driver = "postgres" },
		"eventlog driver": func(c *Config) { c.EventLog = EventLogConfig{Driver: "mysql", DSN: "x"} },
		"data dir":        func(c *Config) { c.DataDir = "" },
		"sample ratio":    func(c *Config) { c.Telemetry.SampleRatio = 2 },
	}
	require.NoError(t, Default().Validate())
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestJWTSecretFromEnv(t *testing.T) {
	cfg := Default()
	cfg.RPC.JWTSecretEnv = "AUGMINT_TEST_JWT"
	t.Setenv("AUGMINT_TEST_JWT", " s3cret ")
	require.Equal(t, "s3cret", cfg.JWTSecret())
}
