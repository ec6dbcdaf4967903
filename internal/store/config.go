package store

// Config holds configuration for the storage layer
type Config struct {
	RocksDB RocksDBConfig `json:"rocksdb"`
}

// RocksDBConfig configures RocksDB settings
type RocksDBConfig struct {
	Path string `json:"path"`

	// Performance tuning
	MaxOpenFiles         int  `json:"max_open_files"`
	WriteBufferSize      int  `json:"write_buffer_size"` // MB
	MaxWriteBufferNumber int  `json:"max_write_buffer_number"`
	BlockCacheSize       int  `json:"block_cache_size"` // MB
	EnableWAL            bool `json:"enable_wal"`
	SyncWrites           bool `json:"sync_writes"`

	// Compression
	CompressionType string `json:"compression_type"` // none, snappy, lz4, zstd
}

// DefaultConfig returns sensible defaults for storage configuration
func DefaultConfig() *Config {
	return &Config{
		RocksDB: RocksDBConfig{
			Path:                 "./data/chain",
			MaxOpenFiles:         1000,
			WriteBufferSize:      64,
			MaxWriteBufferNumber: 3,
			BlockCacheSize:       128,
			EnableWAL:            true,
			SyncWrites:           true,
			CompressionType:      "snappy",
		},
	}
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if c.RocksDB.Path == "" {
		return ErrEmptyPath
	}
	return nil
}
