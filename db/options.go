package db

import (
	"github.com/carewell/recordstore/pkg/logger"
)

// Config holds all tunable parameters for a [PebbleDB] instance.
// Use functional [Option] values with [Open] rather than constructing
// a Config directly.
type Config struct {
	// ColumnFamilies lists logical column families to register.
	// Pebble simulates CFs via key-prefixing; this list controls which
	// CF names are accepted by Store methods. The [DefaultColumnFamily]
	// ("default") is always included automatically.
	ColumnFamilies []string

	// CacheSize is the shared block-cache capacity in bytes. The record
	// store's working set is small (one facility's documents), so the
	// default is deliberately modest.
	CacheSize int64

	// MemTableSize is the size of a single memtable in bytes.
	MemTableSize uint64

	// WALDir overrides the WAL directory. Leave empty to co-locate WAL
	// files with the database.
	WALDir string

	// SyncWrites controls whether each commit is synced to stable
	// storage. Defaults to true: the store holds care records that must
	// survive a crash or power loss, and write volume is low enough that
	// per-commit fsync cost is irrelevant.
	SyncWrites bool

	// Logger receives structured operational log messages.
	// If not set, the global logger.Default() is used.
	Logger logger.Logger
}

// DefaultConfig returns a Config with defaults tuned for a client-resident
// record store: small working set, low write volume, durability first.
func DefaultConfig() *Config {
	return &Config{
		ColumnFamilies: RecordColumnFamilies(),
		CacheSize:      32 << 20, // 32 MB
		MemTableSize:   8 << 20,  // 8 MB
		SyncWrites:     true,
	}
}

// Option is a functional option applied to [Config] during [Open].
type Option func(*Config)

// WithColumnFamilies registers logical column families.
// The [DefaultColumnFamily] ("default") is always present regardless.
func WithColumnFamilies(cfs ...string) Option {
	return func(c *Config) { c.ColumnFamilies = cfs }
}

// WithCacheSize sets the shared block-cache capacity in bytes.
func WithCacheSize(size int64) Option {
	return func(c *Config) { c.CacheSize = size }
}

// WithMemTableSize sets the memtable size in bytes.
func WithMemTableSize(size uint64) Option {
	return func(c *Config) { c.MemTableSize = size }
}

// WithWALDir sets a separate directory for write-ahead log files.
func WithWALDir(dir string) Option {
	return func(c *Config) { c.WALDir = dir }
}

// WithSyncWrites controls per-commit durability (fsync). Disable only for
// tests or bulk loads where losing the tail of the write log is acceptable.
func WithSyncWrites(sync bool) Option {
	return func(c *Config) { c.SyncWrites = sync }
}

// WithLogger sets a custom logger for the database.
// If not set, the global logger.Default() is used.
func WithLogger(l logger.Logger) Option {
	return func(c *Config) { c.Logger = l }
}
