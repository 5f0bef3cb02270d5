package config

import (
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewPolicyHolder),
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	NodeID      int64

	Telemetry TelemetryConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
	DBAutoMigrate     bool

	Redis RedisConfig

	PolicyPaths []string

	SnapshotExport SnapshotExportConfig

	Bootstrap BootstrapConfig
}

// TelemetryConfig carries log and OpenTelemetry exporter settings. The
// OTEL_* names follow the OpenTelemetry SDK environment conventions.
type TelemetryConfig struct {
	LogLevel     string
	LogFormat    string
	OTLPEnabled  bool
	OTLPEndpoint string
	OTLPProtocol string
	SampleRatio  float64
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// SnapshotExportConfig controls pushing occupancy snapshots to an external
// Prometheus sink. Exporter is one of prometheus_remote_write or
// prometheus_pushgateway; empty disables export.
type SnapshotExportConfig struct {
	Exporter  string
	Endpoint  string
	AuthToken string
	Timeout   time.Duration
}

// BootstrapConfig seeds a first account and owner on an empty database.
// An empty AccountName disables it.
type BootstrapConfig struct {
	AccountName string
	OwnerName   string
	OwnerEmail  string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "kiraya"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		NodeID:            getenvInt64("SNOWFLAKE_NODE_ID", 1),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "kiraya"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME_SECONDS", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME_SECONDS", 60),
		DBAutoMigrate:     getenvBool("DATABASE_AUTO_MIGRATE", true),
		Telemetry: TelemetryConfig{
			LogLevel:     strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
			LogFormat:    strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
			OTLPEnabled:  getenvBool("OTEL_ENABLED", false),
			OTLPEndpoint: strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")),
			OTLPProtocol: strings.ToLower(strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))),
			SampleRatio:  getenvRatio("OTEL_SAMPLING_RATIO", 0.1),
		},
		Redis: RedisConfig{
			Enabled:  getenvBool("REDIS_ENABLED", false),
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "localhost:6379")),
			Password: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:       getenvInt("REDIS_DB", 0),
		},
		PolicyPaths: splitList(getenv("POLICY_PATHS", "/etc/kiraya,.")),
		SnapshotExport: SnapshotExportConfig{
			Exporter:  strings.ToLower(strings.TrimSpace(getenv("SNAPSHOT_EXPORTER", ""))),
			Endpoint:  strings.TrimSpace(getenv("SNAPSHOT_ENDPOINT", "")),
			AuthToken: strings.TrimSpace(getenv("SNAPSHOT_AUTH_TOKEN", "")),
			Timeout:   time.Duration(getenvInt("SNAPSHOT_TIMEOUT_SECONDS", 5)) * time.Second,
		},
		Bootstrap: BootstrapConfig{
			AccountName: strings.TrimSpace(getenv("BOOTSTRAP_ACCOUNT_NAME", "")),
			OwnerName:   strings.TrimSpace(getenv("BOOTSTRAP_OWNER_NAME", "Owner")),
			OwnerEmail:  strings.TrimSpace(getenv("BOOTSTRAP_OWNER_EMAIL", "")),
		},
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

// getenvRatio parses a float and clamps it to [0, 1].
func getenvRatio(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return math.Min(1, math.Max(0, parsed))
}

func getenvInt(key string, def int) int {
	return int(getenvInt64(key, int64(def)))
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
