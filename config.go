package tierstore

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Default configuration values.
const (
	DefaultChunkSize = 4 << 20
	// Unbounded disables a cache size or retention bound.
	Unbounded = -1
)

// Config is the parsed, immutable plug-in configuration.
type Config struct {
	ChunkSize int

	CompressionEnabled   bool
	CompressionHeuristic bool

	EncryptionEnabled bool
	PublicKeyFile     string
	PrivateKeyFile    string

	KeyPrefix string

	ChunkCacheSize      int64
	ChunkCacheRetention time.Duration
	ChunkCachePath      string

	ManifestCacheSize      int
	ManifestCacheRetention time.Duration

	PrefetchCount int
}

// DefaultConfig returns the configuration used when no keys are set:
// 4 MiB chunks, no transforms, unbounded caches without expiry.
func DefaultConfig() Config {
	return Config{
		ChunkSize:              DefaultChunkSize,
		ChunkCacheSize:         Unbounded,
		ChunkCacheRetention:    Unbounded,
		ManifestCacheSize:      Unbounded,
		ManifestCacheRetention: Unbounded,
	}
}

// ParseConfig builds a Config from Kafka-style properties. Unknown keys are
// an error so typos fail fast.
func ParseConfig(props map[string]string) (Config, error) {
	cfg := DefaultConfig()
	for key, value := range props {
		if err := cfg.apply(key, value); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) apply(key, value string) error {
	switch key {
	case "chunk.size":
		return parseInt(key, value, &c.ChunkSize)
	case "compression.enabled":
		return parseBool(key, value, &c.CompressionEnabled)
	case "compression.heuristic.enabled":
		return parseBool(key, value, &c.CompressionHeuristic)
	case "encryption.enabled":
		return parseBool(key, value, &c.EncryptionEnabled)
	case "encryption.public.key.file":
		c.PublicKeyFile = value
	case "encryption.private.key.file":
		c.PrivateKeyFile = value
	case "key.prefix":
		c.KeyPrefix = value
	case "chunk.cache.size":
		return parseInt64(key, value, &c.ChunkCacheSize)
	case "chunk.cache.retention.ms":
		return parseMillis(key, value, &c.ChunkCacheRetention)
	case "chunk.cache.path":
		c.ChunkCachePath = value
	case "segment.manifest.cache.size":
		return parseInt(key, value, &c.ManifestCacheSize)
	case "segment.manifest.cache.retention.ms":
		return parseMillis(key, value, &c.ManifestCacheRetention)
	case "fetch.prefetch.count":
		return parseInt(key, value, &c.PrefetchCount)
	default:
		return fmt.Errorf("tierstore: unknown configuration key %q", key)
	}
	return nil
}

func (c *Config) validate() error {
	if c.ChunkSize <= 0 {
		return errors.New("tierstore: chunk.size must be positive")
	}
	if err := validateBound("chunk.cache.size", c.ChunkCacheSize); err != nil {
		return err
	}
	if err := validateBound("chunk.cache.retention.ms", int64(c.ChunkCacheRetention)); err != nil {
		return err
	}
	if err := validateBound("segment.manifest.cache.size", int64(c.ManifestCacheSize)); err != nil {
		return err
	}
	if err := validateBound("segment.manifest.cache.retention.ms", int64(c.ManifestCacheRetention)); err != nil {
		return err
	}
	if c.PrefetchCount < 0 {
		return errors.New("tierstore: fetch.prefetch.count must not be negative")
	}
	if c.EncryptionEnabled && (c.PublicKeyFile == "" || c.PrivateKeyFile == "") {
		return errors.New("tierstore: encryption.enabled requires both key files")
	}
	return nil
}

func validateBound(key string, v int64) error {
	if v == 0 || v < -1 {
		return fmt.Errorf("tierstore: %s must be positive or -1", key)
	}
	return nil
}

func parseBool(key, value string, dst *bool) error {
	v, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("tierstore: %s: %q is not a boolean", key, value)
	}
	*dst = v
	return nil
}

func parseInt(key, value string, dst *int) error {
	v, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("tierstore: %s: %q is not an integer", key, value)
	}
	*dst = v
	return nil
}

func parseInt64(key, value string, dst *int64) error {
	v, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fmt.Errorf("tierstore: %s: %q is not an integer", key, value)
	}
	*dst = v
	return nil
}

func parseMillis(key, value string, dst *time.Duration) error {
	v, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fmt.Errorf("tierstore: %s: %q is not an integer", key, value)
	}
	if v == -1 {
		*dst = Unbounded
		return nil
	}
	*dst = time.Duration(v) * time.Millisecond
	return nil
}
