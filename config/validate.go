package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validate checks the settings that cannot be defaulted.
func (c *Config) Validate() error {
	if !c.InMemory && strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("DataDir must be set unless InMemory is true")
	}
	seen := map[string]struct{}{}
	for _, token := range append([]TokenConfig{c.Token}, c.LegacyTokens...) {
		symbol := strings.ToUpper(strings.TrimSpace(token.Symbol))
		if symbol == "" || strings.TrimSpace(token.Name) == "" {
			return fmt.Errorf("token: symbol and name are required")
		}
		if _, dup := seen[symbol]; dup {
			return fmt.Errorf("token %s configured twice", symbol)
		}
		seen[symbol] = struct{}{}
		if strings.TrimSpace(token.PeggedSymbol) == "" {
			return fmt.Errorf("token %s: PeggedSymbol is required", symbol)
		}
	}
	switch strings.ToLower(c.Exchange.Pricing) {
	case "sell", "midpoint":
	default:
		return fmt.Errorf("exchange: unknown pricing rule %q", c.Exchange.Pricing)
	}
	if c.Exchange.MatchBudget < 0 {
		return fmt.Errorf("exchange: MatchBudget must not be negative")
	}
	if c.RPC.RateLimitPerSecond < 0 || c.RPC.RateLimitBurst < 0 {
		return fmt.Errorf("rpc: rate limits must not be negative")
	}
	if c.Collector.Enabled {
		if _, err := cron.ParseStandard(c.Collector.Schedule); err != nil {
			return fmt.Errorf("collector: schedule %q: %w", c.Collector.Schedule, err)
		}
		if c.Collector.BatchSize <= 0 {
			return fmt.Errorf("collector: BatchSize must be positive")
		}
	}
	switch strings.ToLower(c.EventLog.Driver) {
	case "":
	case "sqlite", "postgres":
		if strings.TrimSpace(c.EventLog.DSN) == "" {
			return fmt.Errorf("eventlog: DSN required for driver %s", c.EventLog.Driver)
		}
	default:
		return fmt.Errorf("eventlog: unknown driver %q", c.EventLog.Driver)
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry: SampleRatio must be within [0, 1]")
	}
	return nil
}
