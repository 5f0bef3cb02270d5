package observability

import (
	"github.com/smallbiznis/kiraya/internal/observability/logger"
	"github.com/smallbiznis/kiraya/internal/observability/metrics"
	"github.com/smallbiznis/kiraya/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(
		LoadConfig,
		splitConfig,
		logger.New,
		tracing.NewProvider,
		metrics.NewProvider,
		metrics.New,
		metrics.NewHTTPMetrics,
		metrics.OccupancyWithConfig,
	),
	// Nothing else depends on the tracer provider or scheduler metrics;
	// invoking forces their construction.
	fx.Invoke(func(*sdktrace.TracerProvider) {}),
	fx.Invoke(metrics.SchedulerWithConfig),
)

type componentConfigs struct {
	fx.Out

	Logger  logger.Config
	Tracing tracing.Config
	Metrics metrics.Config
}

func splitConfig(cfg Config) componentConfigs {
	t := cfg.Telemetry
	debug := cfg.Debug()
	return componentConfigs{
		Logger: logger.Config{
			ServiceName:         cfg.ServiceName,
			Environment:         cfg.Environment,
			Version:             cfg.Version,
			Level:               t.LogLevel,
			Format:              t.LogFormat,
			Debug:               debug,
			IncludeCaller:       true,
			IncludeStackOnError: debug,
		},
		Tracing: tracing.Config{
			Enabled:          t.OTLPEnabled,
			ServiceName:      cfg.ServiceName,
			ServiceVersion:   cfg.Version,
			Environment:      cfg.Environment,
			ExporterEndpoint: t.OTLPEndpoint,
			ExporterProtocol: t.OTLPProtocol,
			SamplingRatio:    t.SampleRatio,
		},
		Metrics: metrics.Config{
			Enabled:          t.OTLPEnabled,
			ExporterEndpoint: t.OTLPEndpoint,
			ExporterProtocol: t.OTLPProtocol,
			ServiceName:      cfg.ServiceName,
			Environment:      cfg.Environment,
		},
	}
}
