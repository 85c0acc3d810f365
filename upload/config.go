package upload

import (
	"github.com/bitrise-io/go-resumable-upload/codec"
	"github.com/bitrise-io/go-resumable-upload/transport"
	"github.com/bitrise-io/go-utils/v2/log"
)

const (
	// DefaultMaxSliceSize is the slice size used when none is configured.
	DefaultMaxSliceSize int64 = 5 * 1024 * 1024
	// DefaultMaxTries is the number of upload rounds before giving up.
	DefaultMaxTries = 3
)

// Config holds configuration for an upload task.
type Config struct {
	// MaxSliceSize is the upper bound of a single slice in bytes.
	// Default: 5 MiB
	MaxSliceSize int64

	// HTTPClient sends slice and session requests.
	// If nil, a retrying client with upload telemetry is created.
	HTTPClient Doer

	// Codec decodes response bodies.
	// If nil, the JSON codec registry is used.
	Codec Codec

	// Logger ...
	// If nil, log.NewLogger() is used.
	Logger log.Logger

	// Progress is called after every slice the service accepted.
	Progress ProgressFunc
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		MaxSliceSize: DefaultMaxSliceSize,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxSliceSize <= 0 {
		c.MaxSliceSize = DefaultMaxSliceSize
	}
	if c.Logger == nil {
		c.Logger = log.NewLogger()
	}
	if c.Codec == nil {
		c.Codec = codec.NewRegistry()
	}
	if c.HTTPClient == nil {
		features := transport.NewFeatureUsage(transport.FileUploadFlag)
		c.HTTPClient = transport.NewClient(c.Logger, transport.Options{Features: features})
	}
	return c
}
