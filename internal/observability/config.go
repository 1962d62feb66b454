// Package observability bootstraps logging, metrics, and tracing
// configuration for the broker process, and wires the OpenTelemetry SDK
// exporters (jaeger, otlp, zipkin, prometheus) selected by that config.
package observability

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	Enabled        bool `yaml:"enabled"`
	PrometheusPort int  `yaml:"prometheus_port"`
}

type TracingConfig struct {
	Enabled        bool    `yaml:"enabled"`
	Exporter       string  `yaml:"exporter"`
	JaegerEndpoint string  `yaml:"jaeger_endpoint"`
	OTLPEndpoint   string  `yaml:"otlp_endpoint"`
	ZipkinEndpoint string  `yaml:"zipkin_endpoint"`
	SampleRate     float64 `yaml:"sample_rate"`
	ServiceName    string  `yaml:"service_name"`
	ServiceVersion string  `yaml:"service_version"`
}

type Config struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

type fileConfig struct {
	Observability struct {
		Logging LoggingConfig `yaml:"logging"`
		Metrics MetricsConfig `yaml:"metrics"`
		Tracing TracingConfig `yaml:"tracing"`
	} `yaml:"observability"`
}

func DefaultConfig() Config {
	return Config{
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Metrics: MetricsConfig{Enabled: true, PrometheusPort: 9090},
		Tracing: TracingConfig{Enabled: false, Exporter: "jaeger", SampleRate: 1.0},
	}
}

// LoadConfig reads the observability section of a YAML config file,
// merging it over DefaultConfig. A missing file is not an error: the
// defaults apply, matching the teacher's permissive config bootstrap.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return config, err
	}

	var parsed fileConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return config, err
	}

	if parsed.Observability.Logging.Level != "" {
		config.Logging.Level = parsed.Observability.Logging.Level
	}
	if parsed.Observability.Logging.Format != "" {
		config.Logging.Format = parsed.Observability.Logging.Format
	}

	config.Metrics.Enabled = parsed.Observability.Metrics.Enabled
	if parsed.Observability.Metrics.PrometheusPort != 0 {
		config.Metrics.PrometheusPort = parsed.Observability.Metrics.PrometheusPort
	}

	config.Tracing.Enabled = parsed.Observability.Tracing.Enabled
	if parsed.Observability.Tracing.Exporter != "" {
		config.Tracing.Exporter = parsed.Observability.Tracing.Exporter
	}
	if parsed.Observability.Tracing.JaegerEndpoint != "" {
		config.Tracing.JaegerEndpoint = parsed.Observability.Tracing.JaegerEndpoint
	}
	if parsed.Observability.Tracing.OTLPEndpoint != "" {
		config.Tracing.OTLPEndpoint = parsed.Observability.Tracing.OTLPEndpoint
	}
	if parsed.Observability.Tracing.ZipkinEndpoint != "" {
		config.Tracing.ZipkinEndpoint = parsed.Observability.Tracing.ZipkinEndpoint
	}
	if parsed.Observability.Tracing.SampleRate != 0 {
		config.Tracing.SampleRate = parsed.Observability.Tracing.SampleRate
	}
	if parsed.Observability.Tracing.ServiceName != "" {
		config.Tracing.ServiceName = parsed.Observability.Tracing.ServiceName
	}
	if parsed.Observability.Tracing.ServiceVersion != "" {
		config.Tracing.ServiceVersion = parsed.Observability.Tracing.ServiceVersion
	}

	return config, nil
}

// SaveConfig writes config to path as YAML under an "observability" root
// key, creating parent directories as needed.
func SaveConfig(config Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	var wrapper fileConfig
	wrapper.Observability.Logging = config.Logging
	wrapper.Observability.Metrics = config.Metrics
	wrapper.Observability.Tracing = config.Tracing

	data, err := yaml.Marshal(wrapper)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
