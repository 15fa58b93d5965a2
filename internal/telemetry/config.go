package telemetry

// Config holds OpenTelemetry and profiling configuration.
type Config struct {
	// Enabled turns on trace export.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// ServiceName is reported as service.name. Set by the binary, not the
	// config file.
	ServiceName string `mapstructure:"-" yaml:"-"`

	// ServiceVersion is reported as service.version.
	ServiceVersion string `mapstructure:"-" yaml:"-"`

	// Endpoint is the OTLP/gRPC collector address (e.g. "localhost:4317").
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint" validate:"required_if=Enabled true"`

	// Insecure disables TLS to the collector.
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate is the fraction of traces kept, 0.0 to 1.0.
	SampleRate float64 `mapstructure:"sample_rate" yaml:"sample_rate" validate:"min=0,max=1"`

	// Profiling configures Pyroscope continuous profiling.
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// DefaultConfig returns tracing and profiling disabled with local endpoints.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "resolvd",
		ServiceVersion: "dev",
		Endpoint:       "localhost:4317",
		Insecure:       true,
		SampleRate:     1.0,
		Profiling: ProfilingConfig{
			ServiceName:  "resolvd",
			Endpoint:     "http://localhost:4040",
			ProfileTypes: []string{"cpu", "alloc_space", "inuse_space", "goroutines"},
		},
	}
}
