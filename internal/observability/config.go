package observability

import (
	"strings"

	"github.com/smallbiznis/kiraya/internal/config"
)

// Config is the process identity plus telemetry settings shared by the
// logger, tracer and meter.
type Config struct {
	ServiceName string
	Environment string
	Version     string
	Telemetry   config.TelemetryConfig
}

func LoadConfig(cfg config.Config) Config {
	name := strings.TrimSpace(cfg.AppName)
	if name == "" {
		name = "kiraya"
	}
	return Config{
		ServiceName: name,
		Environment: strings.TrimSpace(cfg.Environment),
		Version:     strings.TrimSpace(cfg.AppVersion),
		Telemetry:   cfg.Telemetry,
	}
}

// Debug is true for debug logging or a non-production-like environment.
func (c Config) Debug() bool {
	if c.Telemetry.LogLevel == "debug" {
		return true
	}
	switch strings.ToLower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}
