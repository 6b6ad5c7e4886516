// Package observability wires OpenTelemetry tracing and metrics behind
// the domain telemetry ports.
package observability

import (
	"time"

	trackergo "github.com/elephant-oracle/tracker-go"
)

// ExporterType selects where a pipeline exports to.
type ExporterType string

const (
	// ExporterOTLP exports over OTLP gRPC to a collector.
	ExporterOTLP ExporterType = "otlp"

	// ExporterStdout pretty-prints to stdout for local runs.
	ExporterStdout ExporterType = "stdout"

	// ExporterNoop discards everything.
	ExporterNoop ExporterType = "noop"
)

// Config configures the telemetry provider.
type Config struct {
	// ServiceName identifies this service in exported telemetry.
	ServiceName string

	// ServiceVersion is stamped onto the service resource.
	ServiceVersion string

	// Environment is the deployment environment resource attribute.
	Environment string

	// Tracing configures the trace pipeline.
	Tracing TracingConfig

	// Metrics configures the metric pipeline.
	Metrics MetricsConfig
}

// TracingConfig configures the trace pipeline.
type TracingConfig struct {
	// Enabled turns the pipeline on.
	Enabled bool

	// Exporter selects the span exporter.
	Exporter ExporterType

	// Endpoint is the collector address for OTLP export.
	Endpoint string

	// Insecure disables TLS on the exporter connection.
	Insecure bool

	// SampleRate is the fraction of traces kept, clamped to [0, 1].
	SampleRate float64

	// BatchTimeout bounds how long spans wait for a full batch.
	BatchTimeout time.Duration

	// MaxExportBatchSize caps spans per export.
	MaxExportBatchSize int
}

// MetricsConfig configures the metric pipeline.
type MetricsConfig struct {
	// Enabled turns the pipeline on.
	Enabled bool

	// Exporter selects the metric exporter.
	Exporter ExporterType

	// Endpoint is the collector address for OTLP export.
	Endpoint string

	// Insecure disables TLS on the exporter connection.
	Insecure bool

	// ExportInterval is the periodic reader cadence.
	ExportInterval time.Duration
}

// DefaultConfig returns a config with both pipelines off. The version
// defaults to the module version; builds override it through
// WithServiceVersion.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "tracker",
		ServiceVersion: trackergo.Version,
		Environment:    "development",
		Tracing: TracingConfig{
			Exporter:           ExporterNoop,
			SampleRate:         1.0,
			BatchTimeout:       5 * time.Second,
			MaxExportBatchSize: 512,
		},
		Metrics: MetricsConfig{
			Exporter:       ExporterNoop,
			ExportInterval: 60 * time.Second,
		},
	}
}

// Option configures the telemetry provider.
type Option func(*Config)

// WithServiceName sets the service name.
func WithServiceName(name string) Option {
	return func(c *Config) {
		c.ServiceName = name
	}
}

// WithServiceVersion sets the service version.
func WithServiceVersion(version string) Option {
	return func(c *Config) {
		c.ServiceVersion = version
	}
}

// WithEnvironment sets the deployment environment.
func WithEnvironment(env string) Option {
	return func(c *Config) {
		c.Environment = env
	}
}

// WithOTLP enables both pipelines against one collector endpoint.
func WithOTLP(endpoint string) Option {
	return func(c *Config) {
		c.Tracing.Enabled = true
		c.Tracing.Exporter = ExporterOTLP
		c.Tracing.Endpoint = endpoint
		c.Metrics.Enabled = true
		c.Metrics.Exporter = ExporterOTLP
		c.Metrics.Endpoint = endpoint
	}
}

// WithTracing enables the trace pipeline with the given exporter.
func WithTracing(exporter ExporterType, endpoint string) Option {
	return func(c *Config) {
		c.Tracing.Enabled = true
		c.Tracing.Exporter = exporter
		c.Tracing.Endpoint = endpoint
	}
}

// WithMetrics enables the metric pipeline with the given exporter.
func WithMetrics(exporter ExporterType, endpoint string) Option {
	return func(c *Config) {
		c.Metrics.Enabled = true
		c.Metrics.Exporter = exporter
		c.Metrics.Endpoint = endpoint
	}
}

// WithStdoutTracing enables stdout trace export for local runs.
func WithStdoutTracing() Option {
	return func(c *Config) {
		c.Tracing.Enabled = true
		c.Tracing.Exporter = ExporterStdout
	}
}

// WithStdoutMetrics enables stdout metric export for local runs.
func WithStdoutMetrics() Option {
	return func(c *Config) {
		c.Metrics.Enabled = true
		c.Metrics.Exporter = ExporterStdout
	}
}

// WithTracingInsecure disables TLS for trace export.
func WithTracingInsecure() Option {
	return func(c *Config) {
		c.Tracing.Insecure = true
	}
}

// WithMetricsInsecure disables TLS for metric export.
func WithMetricsInsecure() Option {
	return func(c *Config) {
		c.Metrics.Insecure = true
	}
}

// WithSampleRate sets the trace sampling rate.
func WithSampleRate(rate float64) Option {
	return func(c *Config) {
		c.Tracing.SampleRate = rate
	}
}

// WithMetricsInterval sets the metric export cadence.
func WithMetricsInterval(interval time.Duration) Option {
	return func(c *Config) {
		c.Metrics.ExportInterval = interval
	}
}
