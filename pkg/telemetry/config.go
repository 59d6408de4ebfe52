package telemetry

import (
	"fmt"
	"time"
)

// Config is the root telemetry configuration: one struct covering the
// four concerns (logging, tracing, metrics, events) the build core
// wires up together through NewTelemetry.
type Config struct {
	// ServiceName identifies this process in exported telemetry.
	ServiceName string

	// ServiceVersion is stamped on the trace resource of every span;
	// metrics do not carry it.
	ServiceVersion string

	// Environment distinguishes dev/staging/prod deployments of the
	// same tool.
	Environment string

	Logging LoggingConfig
	Tracing TracingConfig
	Metrics MetricsConfig
	Events  EventsConfig

	// ResourceAttributes are extra OTel resource attributes, e.g. the
	// workspace root a long-lived cook daemon serves.
	ResourceAttributes map[string]string
}

// LoggingConfig configures the zerolog-backed structured logger.
type LoggingConfig struct {
	// Level is the minimum level emitted: trace, debug, info, warn,
	// error or fatal.
	Level string

	// Format selects console (human) or json (machine) rendering.
	Format string

	// Output is stdout, stderr, or a file path.
	Output string

	// EnableCaller stamps file:line on each entry.
	EnableCaller bool

	// EnableSampling rate-limits high-frequency entries; a cook pass
	// over thousands of jobs can otherwise flood the log.
	EnableSampling bool

	// SamplingInitial is the per-second burst allowed before sampling
	// kicks in.
	SamplingInitial int

	// SamplingThereafter keeps every Nth entry once sampling is active.
	SamplingThereafter int

	// TimeFormat is unix, unixms, unixmicro or rfc3339.
	TimeFormat string
}

// TracingConfig configures the OTel tracer.
type TracingConfig struct {
	Enabled bool

	// Exporter is otlp, stdout or none.
	Exporter string

	// Endpoint is the OTLP collector address when Exporter is otlp.
	Endpoint string

	// SamplingRate in [0, 1]; instantiation and cook spans are sampled
	// at this ratio.
	SamplingRate float64

	MaxExportBatchSize int
	ExportTimeout      time.Duration

	// Headers are sent with every OTLP export request.
	Headers map[string]string

	// Insecure disables TLS toward the collector.
	Insecure bool
}

// MetricsConfig configures the Prometheus registry and its HTTP
// exposition endpoint.
type MetricsConfig struct {
	Enabled       bool
	ListenAddress string
	Path          string
	Namespace     string

	// DefaultHistogramBuckets bound the duration histograms. Cook jobs
	// range from sub-millisecond cache checks to multi-second extern
	// installs, so the ladder runs wider than a typical RPC service's.
	DefaultHistogramBuckets []float64
}

// EventsConfig configures the in-process event publisher.
type EventsConfig struct {
	Enabled       bool
	BufferSize    int
	FlushInterval time.Duration
	MaxBatchSize  int
	EnableAsync   bool
}

// DefaultConfig is the baseline: console logging at info, stdout
// tracing, metrics on :9090.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "plywood",
		ServiceVersion: "dev",
		Environment:    "development",
		Logging: LoggingConfig{
			Level:              "info",
			Format:             "console",
			Output:             "stdout",
			EnableCaller:       true,
			SamplingInitial:    100,
			SamplingThereafter: 100,
			TimeFormat:         "rfc3339",
		},
		Tracing: TracingConfig{
			Enabled:            true,
			Exporter:           "stdout",
			SamplingRate:       1.0,
			MaxExportBatchSize: 512,
			ExportTimeout:      30 * time.Second,
			Headers:            map[string]string{},
			Insecure:           true,
		},
		Metrics: MetricsConfig{
			Enabled:       true,
			ListenAddress: ":9090",
			Path:          "/metrics",
			Namespace:     "plywood",
			DefaultHistogramBuckets: []float64{
				0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 15, 60,
			},
		},
		Events: EventsConfig{
			Enabled:       true,
			BufferSize:    1000,
			FlushInterval: 5 * time.Second,
			MaxBatchSize:  100,
			EnableAsync:   true,
		},
		ResourceAttributes: map[string]string{},
	}
}

// DevelopmentConfig is DefaultConfig with debug logging and every
// trace sampled — what `plytool` runs with interactively.
func DevelopmentConfig() *Config {
	cfg := DefaultConfig()
	cfg.Logging.Level = "debug"
	cfg.Tracing.SamplingRate = 1.0
	return cfg
}

// ProductionConfig tunes for a long-lived embedding of the core: json
// logs with sampling, OTLP export, 10% trace sampling.
func ProductionConfig() *Config {
	cfg := DefaultConfig()
	cfg.Environment = "production"
	cfg.Logging.Format = "json"
	cfg.Logging.EnableSampling = true
	cfg.Logging.TimeFormat = "unix"
	cfg.Tracing.Exporter = "otlp"
	cfg.Tracing.SamplingRate = 0.1
	cfg.Tracing.Insecure = false
	return cfg
}

// Validate rejects configurations NewTelemetry cannot act on.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("telemetry: service name is required")
	}
	if c.ServiceVersion == "" {
		return fmt.Errorf("telemetry: service version is required")
	}
	if err := oneOf("log level", c.Logging.Level, "trace", "debug", "info", "warn", "error", "fatal"); err != nil {
		return err
	}
	if err := oneOf("log format", c.Logging.Format, "console", "json"); err != nil {
		return err
	}
	if c.Tracing.Enabled {
		if err := oneOf("trace exporter", c.Tracing.Exporter, "otlp", "stdout", "none"); err != nil {
			return err
		}
	}
	if r := c.Tracing.SamplingRate; r < 0 || r > 1 {
		return fmt.Errorf("telemetry: trace sampling rate %v outside [0, 1]", r)
	}
	if c.Metrics.Enabled && c.Metrics.ListenAddress == "" {
		return fmt.Errorf("telemetry: metrics enabled without a listen address")
	}
	if c.Events.Enabled && c.Events.BufferSize <= 0 {
		return fmt.Errorf("telemetry: event buffer size must be positive, got %d", c.Events.BufferSize)
	}
	return nil
}

func oneOf(what, got string, allowed ...string) error {
	for _, a := range allowed {
		if got == a {
			return nil
		}
	}
	return fmt.Errorf("telemetry: invalid %s %q (allowed: %v)", what, got, allowed)
}
