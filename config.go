package strata

import "time"

// Config holds the tunables for a Database and the Collections it opens.
// Zero values are replaced with defaults before use.
type Config struct {
	// ShardCount is the fixed number of shards each collection partitions
	// its records into. Default 100.
	ShardCount uint32

	// MaxCachedShards bounds the in-memory shard cache per collection;
	// clean shards beyond this are evicted LRU. Default 10.
	MaxCachedShards int

	// PageSize is the branching factor / leaf capacity of sort indexes.
	// Default 1000; tests use small values (2-3) to force splits.
	PageSize int

	// DebounceDelay is how long the persistence worker waits after the
	// last scheduled save before flushing. Default 300ms.
	DebounceDelay time.Duration

	// MaxSaveDelay bounds how long a steady stream of writes can postpone
	// a flush. Default 1000ms.
	MaxSaveDelay time.Duration

	// MaxRetries bounds the bounded-backoff retry around each shard
	// write and shard-file delete. Default 3. Sort-index node and
	// root-block writes do not use it and are attempted once.
	MaxRetries uint64

	// VerifyShardWrites enables a post-write re-read verification of
	// shard files. Only safe in single-writer mode; default false.
	VerifyShardWrites bool
}

func (c Config) withDefaults() Config {
	if c.ShardCount == 0 {
		c.ShardCount = 100
	}
	if c.MaxCachedShards == 0 {
		c.MaxCachedShards = 10
	}
	if c.PageSize == 0 {
		c.PageSize = 1000
	}
	if c.DebounceDelay == 0 {
		c.DebounceDelay = 300 * time.Millisecond
	}
	if c.MaxSaveDelay == 0 {
		c.MaxSaveDelay = 1000 * time.Millisecond
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	return c
}
