package idtree

import (
	"github.com/prometheus/client_golang/prometheus"

	"idtree/internal/wal"
)

// SyncMode controls when WAL writes are fsynced to disk
type SyncMode = wal.SyncMode

const (
	// SyncEveryCommit fsyncs the WAL on every insert.
	// - Guarantees zero data loss on power failure
	// - Limited by fsync latency (typically 1-10ms per insert)
	SyncEveryCommit = wal.SyncEveryCommit

	// SyncBytes fsyncs when at least N bytes have been written since the last
	// fsync.
	// - Some data loss possible on crash (up to N bytes)
	SyncBytes = wal.SyncBytes

	// SyncOff disables fsync entirely (testing/bulk loads only).
	// - All unflushed data lost on crash
	SyncOff = wal.SyncOff
)

// Options configures tree behavior.
type Options struct {
	syncMode        SyncMode
	syncBytes       int   // Number of bytes to write before fsync when SyncMode is SyncBytes.
	cacheSize       int   // Maximum number of clean pages held in memory.
	checkpointBytes int64 // WAL size that triggers a checkpoint.
	logger          Logger
	registerer      prometheus.Registerer
}

// DefaultOptions returns safe default configuration.
//
// goland:noinspection GoUnusedExportedFunction
func DefaultOptions() Options {
	return Options{
		syncMode:        SyncEveryCommit,
		syncBytes:       1024 * 1024,     // 1MB
		cacheSize:       4096,            // 16MB of pages
		checkpointBytes: 4 * 1024 * 1024, // 4MB
		logger:          DiscardLogger{},
	}
}

// Option configures tree options using the functional options pattern.
type Option func(*Options)

// WithSyncMode sets the WAL sync mode.
//
//goland:noinspection GoUnusedExportedFunction
func WithSyncMode(mode SyncMode) Option {
	return func(opts *Options) {
		opts.syncMode = mode
	}
}

// WithSyncBytes fsyncs the WAL once n bytes accumulate since the last fsync.
//
//goland:noinspection GoUnusedExportedFunction
func WithSyncBytes(n int) Option {
	return func(opts *Options) {
		opts.syncMode = SyncBytes
		opts.syncBytes = n
	}
}

// WithCacheSize sets the maximum number of clean pages kept in memory. Pages
// logged but not yet checkpointed are held in addition to this.
//
//goland:noinspection GoUnusedExportedFunction
func WithCacheSize(pages int) Option {
	return func(opts *Options) {
		opts.cacheSize = pages
	}
}

// WithCheckpointBytes sets the WAL size at which logged pages are written
// into the data file. Zero or negative checkpoints after every insert.
//
//goland:noinspection GoUnusedExportedFunction
func WithCheckpointBytes(n int64) Option {
	return func(opts *Options) {
		opts.checkpointBytes = n
	}
}

// WithLogger sets the logger. Defaults to DiscardLogger.
//
//goland:noinspection GoUnusedExportedFunction
func WithLogger(logger Logger) Option {
	return func(opts *Options) {
		if logger == nil {
			logger = DiscardLogger{}
		}
		opts.logger = logger
	}
}

// WithMetrics registers the tree's Prometheus collectors on reg. Series are
// labelled with the data file path so several trees can share a registry.
//
//goland:noinspection GoUnusedExportedFunction
func WithMetrics(reg prometheus.Registerer) Option {
	return func(opts *Options) {
		opts.registerer = reg
	}
}
