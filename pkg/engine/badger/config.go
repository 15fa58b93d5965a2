package badger

import (
	"time"

	"github.com/marmos91/resolvd/internal/bytesize"
)

// Config configures the badger-backed engine.
type Config struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string `mapstructure:"path" yaml:"path" validate:"required_unless=InMemory true"`

	// InMemory keeps all data in memory. Intended for tests and demos.
	InMemory bool `mapstructure:"in_memory" yaml:"in_memory"`

	// DataSources are registered at startup if missing.
	DataSources []string `mapstructure:"data_sources" yaml:"data_sources" validate:"dive,required,uppercase"`

	// MatchFeatures are the attribute names whose normalized values resolve
	// records to the same entity.
	// Default: EMAIL, PHONE, SSN
	MatchFeatures []string `mapstructure:"match_features" yaml:"match_features" validate:"dive,required"`

	// MaxRecords is the licensed record limit. Zero means unlimited.
	MaxRecords int64 `mapstructure:"max_records" yaml:"max_records" validate:"gte=0"`

	// MaxRetries bounds retries of conflicting write transactions.
	// Default: 5
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries" validate:"gte=0"`

	// RetryBackoff is the base delay between conflicting write retries.
	// Default: 5ms
	RetryBackoff time.Duration `mapstructure:"retry_backoff" yaml:"retry_backoff"`

	// BlockCacheSize is the badger block cache. Accepts sizes like "256Mi".
	// Default: 256Mi
	BlockCacheSize bytesize.ByteSize `mapstructure:"block_cache_size" yaml:"block_cache_size"`

	// ExportBuffer is the number of report lines buffered ahead of the consumer.
	// Default: 64
	ExportBuffer int `mapstructure:"export_buffer" yaml:"export_buffer" validate:"gte=0"`
}

// ApplyDefaults fills in zero values.
func (c *Config) ApplyDefaults() {
	if len(c.MatchFeatures) == 0 {
		c.MatchFeatures = []string{"EMAIL", "PHONE", "SSN"}
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 5
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = 5 * time.Millisecond
	}
	if c.BlockCacheSize == 0 {
		c.BlockCacheSize = 256 * bytesize.MiB
	}
	if c.ExportBuffer == 0 {
		c.ExportBuffer = 64
	}
}
