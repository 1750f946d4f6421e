// Collection owns one shard cache and a single-consumer background
// persistence worker: mutations run on the caller's goroutine and one
// worker goroutine flushes dirty shards, with c.mu guarding all shard
// state shared between them.
package strata

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"

	"github.com/strata-db/strata/storage"
)

// Collection routes records to shards by hashing their id, caches shards
// in memory, and debounces their persistence.
type Collection struct {
	name  string
	dir   string
	store storage.Storage
	cfg   Config
	clk   clock.Clock
	sorts *sortManager

	mu      sync.Mutex
	shards  map[uint32]*shard
	dirty   map[uint32]bool
	alive   bool
	haveSaved bool
	lastSaveTime time.Time
	timer   *clock.Timer
	wake    chan struct{}
	done    chan struct{}
	flushed chan struct{}
	failCh  chan error
}

func openCollection(store storage.Storage, name string, cfg Config, clk clock.Clock) *Collection {
	c := &Collection{
		name:   name,
		dir:    name,
		store:  store,
		cfg:    cfg,
		clk:    clk,
		shards: map[uint32]*shard{},
		dirty:  map[uint32]bool{},
		alive:  true,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		flushed: make(chan struct{}, 1),
		failCh: make(chan error, 16),
	}
	c.sorts = newSortManager(c)
	go c.run()
	return c
}

// checkFailure returns the oldest background persistence failure reported
// since the last call, if any, without blocking. A failed flush is retried
// automatically, but the caller still needs to know a save once failed.
func (c *Collection) checkFailure() error {
	select {
	case err := <-c.failCh:
		return err
	default:
		return nil
	}
}

// insertOne generates an id when missing, routes the record to its
// shard, marks it dirty, and schedules a save.
func (c *Collection) insertOne(ctx context.Context, rec Record) (Record, error) {
	if err := c.checkFailure(); err != nil {
		return nil, err
	}
	id := rec.ID()
	if id == "" {
		id = newID()
		rec = rec.WithID(id)
	}
	if err := validateID(id); err != nil {
		return nil, err
	}

	sh, err := c.loadShardFor(ctx, id)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	sh.records[id] = rec
	sh.dirty = true
	sh.touch()
	c.dirty[sh.id] = true
	c.scheduleSaveLocked()
	c.mu.Unlock()

	if err := c.sorts.addRecord(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// getOne returns the record by id, loading its shard if needed.
func (c *Collection) getOne(ctx context.Context, id string) (Record, error) {
	if err := c.checkFailure(); err != nil {
		return nil, err
	}
	if err := validateID(id); err != nil {
		return nil, err
	}
	sh, err := c.loadShardFor(ctx, id)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := sh.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: record %s", ErrNotFound, id)
	}
	return rec, nil
}

// updateOneOptions carries the {upsert?} option.
type updateOneOptions struct{ Upsert bool }

// updateOne shallow-merges updates into the existing record. With
// Upsert set and no existing record, it constructs {_id: id, ...updates}.
func (c *Collection) updateOne(ctx context.Context, id string, updates Record, opts updateOneOptions) (Record, bool, error) {
	if err := c.checkFailure(); err != nil {
		return nil, false, err
	}
	if err := validateID(id); err != nil {
		return nil, false, err
	}
	sh, err := c.loadShardFor(ctx, id)
	if err != nil {
		return nil, false, err
	}

	c.mu.Lock()
	existing, ok := sh.records[id]
	var next Record
	if ok {
		next = existing.merge(updates)
	} else if opts.Upsert {
		next = updates.WithID(id)
	} else {
		c.mu.Unlock()
		return nil, false, nil
	}
	sh.records[id] = next
	sh.dirty = true
	sh.touch()
	c.dirty[sh.id] = true
	c.scheduleSaveLocked()
	c.mu.Unlock()

	if err := c.sorts.updateRecord(ctx, next, existing); err != nil {
		return nil, false, err
	}
	return next, true, nil
}

// replaceOne swaps the whole record, same upsert semantics as updateOne.
func (c *Collection) replaceOne(ctx context.Context, id string, rec Record, opts updateOneOptions) (Record, bool, error) {
	if err := c.checkFailure(); err != nil {
		return nil, false, err
	}
	if err := validateID(id); err != nil {
		return nil, false, err
	}
	sh, err := c.loadShardFor(ctx, id)
	if err != nil {
		return nil, false, err
	}

	c.mu.Lock()
	existing, ok := sh.records[id]
	if !ok && !opts.Upsert {
		c.mu.Unlock()
		return nil, false, nil
	}
	next := rec.WithID(id)
	sh.records[id] = next
	sh.dirty = true
	sh.touch()
	c.dirty[sh.id] = true
	c.scheduleSaveLocked()
	c.mu.Unlock()

	if err := c.sorts.updateRecord(ctx, next, existing); err != nil {
		return nil, false, err
	}
	return next, true, nil
}

// deleteOne removes a record, returning whether it existed.
func (c *Collection) deleteOne(ctx context.Context, id string) (bool, error) {
	if err := c.checkFailure(); err != nil {
		return false, err
	}
	if err := validateID(id); err != nil {
		return false, err
	}
	sh, err := c.loadShardFor(ctx, id)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	existing, ok := sh.records[id]
	if !ok {
		c.mu.Unlock()
		return false, nil
	}
	delete(sh.records, id)
	sh.dirty = true
	sh.touch()
	c.dirty[sh.id] = true
	c.scheduleSaveLocked()
	c.mu.Unlock()

	if err := c.sorts.deleteRecord(ctx, existing); err != nil {
		return false, err
	}
	return true, nil
}

// iterateRecords lists shard files directly from storage and decodes
// them sequentially; the cache is never consulted, so only persisted
// state is visible.
func (c *Collection) iterateRecords(ctx context.Context) func(yield func(Record, error) bool) {
	return func(yield func(Record, error) bool) {
		token := ""
		for {
			listing, err := c.store.ListFiles(ctx, c.dir+"/shards", 64, token)
			if err != nil {
				yield(nil, err)
				return
			}
			for _, name := range listing.Names {
				recs, err := c.decodeShardFile(ctx, c.dir+"/shards/"+name)
				if err != nil {
					if !yield(nil, err) {
						return
					}
					continue
				}
				for _, rec := range recs {
					if !yield(rec, nil) {
						return
					}
				}
			}
			if listing.Next == "" {
				return
			}
			token = listing.Next
		}
	}
}

func (c *Collection) decodeShardFile(ctx context.Context, path string) ([]Record, error) {
	body, err := codecLoadShard(ctx, c.store, path)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(body))
	for _, rec := range body {
		out = append(out, rec)
	}
	return out, nil
}

// getAll wraps iterateRecords with skip/limit; skip is linear-cost.
func (c *Collection) getAll(ctx context.Context, skip, limit int) ([]Record, error) {
	if err := c.checkFailure(); err != nil {
		return nil, err
	}
	out := make([]Record, 0, limit)
	skipped := 0
	var iterErr error
	for rec, err := range c.iterateRecords(ctx) {
		if err != nil {
			iterErr = err
			break
		}
		if skipped < skip {
			skipped++
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, iterErr
}

// EnsureSortIndex creates or returns the (field, direction) sort index,
// building it from persisted records when it has no persisted tree yet.
func (c *Collection) EnsureSortIndex(ctx context.Context, field, direction string, typ indexType) error {
	_, err := c.sorts.ensureSortIndex(ctx, field, direction, typ)
	return err
}

// GetSortedRecords returns one page of an already-ensured sort index.
func (c *Collection) GetSortedRecords(ctx context.Context, field, direction, pageID string) (Page, error) {
	return c.sorts.getSortedRecords(ctx, field, direction, pageID)
}

// ListSortIndexes returns the union of in-memory and on-disk indexes.
func (c *Collection) ListSortIndexes(ctx context.Context) ([]string, error) {
	return c.sorts.listSortIndexes(ctx)
}

// DeleteSortIndex removes one sort index, reporting whether it existed.
func (c *Collection) DeleteSortIndex(ctx context.Context, field, direction string) (bool, error) {
	return c.sorts.deleteSortIndex(ctx, field, direction)
}

// DeleteAllSortIndexes removes every sort index this collection has.
func (c *Collection) DeleteAllSortIndexes(ctx context.Context) error {
	return c.sorts.deleteAllSortIndexes(ctx)
}

// shutdown cancels the timer, stops the writer, flushes dirty shards,
// and clears the cache.
func (c *Collection) shutdown(ctx context.Context) error {
	c.mu.Lock()
	if !c.alive {
		c.mu.Unlock()
		return nil
	}
	c.alive = false
	if c.timer != nil {
		c.timer.Stop()
	}
	c.mu.Unlock()

	close(c.done)
	c.notifyWake()
	<-c.flushed

	sortErr := c.sorts.shutdown(ctx)

	c.mu.Lock()
	c.shards = map[uint32]*shard{}
	c.mu.Unlock()

	if sortErr != nil {
		return sortErr
	}

	return c.checkFailure()
}

// drop cancels any scheduled save, clears caches, and deletes the
// collection's storage directory.
func (c *Collection) drop(ctx context.Context) error {
	c.shutdown(ctx)
	return c.store.DeleteDir(ctx, c.dir)
}

// loadShardFor loads (or returns cached) the shard owning id.
func (c *Collection) loadShardFor(ctx context.Context, id string) (*shard, error) {
	sid, err := shardFor(id, c.cfg.ShardCount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidID, err)
	}
	return c.loadShard(ctx, sid)
}

func (c *Collection) loadShard(ctx context.Context, sid uint32) (*shard, error) {
	c.mu.Lock()
	if sh, ok := c.shards[sid]; ok {
		sh.touch()
		c.mu.Unlock()
		return sh, nil
	}
	c.mu.Unlock()

	path := shardPath(c.dir, sid)
	exists, err := c.store.FileExists(ctx, path)
	if err != nil {
		return nil, err
	}

	sh := newShard(sid)
	if exists {
		records, err := codecLoadShard(ctx, c.store, path)
		if err != nil {
			return nil, err
		}
		sh.records = records
	}

	c.mu.Lock()
	c.shards[sid] = sh
	c.evictLocked()
	c.mu.Unlock()
	return sh, nil
}

// evictLocked drops clean shards oldest-first until the cache is at or
// below the configured cap. Called with c.mu held.
func (c *Collection) evictLocked() {
	if len(c.shards) <= c.cfg.MaxCachedShards {
		return
	}
	type candidate struct {
		id    uint32
		since time.Time
	}
	var clean []candidate
	for id, sh := range c.shards {
		if !sh.dirty {
			clean = append(clean, candidate{id, sh.lastAccessed})
		}
	}
	sort.Slice(clean, func(i, j int) bool { return clean[i].since.Before(clean[j].since) })
	for _, cand := range clean {
		if len(c.shards) <= c.cfg.MaxCachedShards {
			return
		}
		delete(c.shards, cand.id)
	}
}

// scheduleSaveLocked implements §4.3/§9's debounce-with-max-delay rule.
// Called with c.mu held.
func (c *Collection) scheduleSaveLocked() {
	now := c.clk.Now()
	if !c.haveSaved {
		c.haveSaved = true
		c.lastSaveTime = now
		c.armTimerLocked(c.cfg.DebounceDelay)
		return
	}
	if now.Sub(c.lastSaveTime) > c.cfg.MaxSaveDelay {
		c.notifyWake()
		return
	}
	c.armTimerLocked(c.cfg.DebounceDelay)
}

func (c *Collection) armTimerLocked(d time.Duration) {
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = c.clk.AfterFunc(d, c.notifyWake)
}

func (c *Collection) notifyWake() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// run is the single-consumer persistence worker: wait for a wake, drain
// the dirty set, flush each shard in parallel with bounded retry, record
// last_save_time, then evict.
func (c *Collection) run() {
	for {
		select {
		case <-c.wake:
			c.flushOnce()
		case <-c.done:
			c.flushOnce()
			c.flushed <- struct{}{}
			return
		}
	}
}

func (c *Collection) flushOnce() {
	c.mu.Lock()
	ids := make([]uint32, 0, len(c.dirty))
	for id := range c.dirty {
		ids = append(ids, id)
	}
	c.dirty = map[uint32]bool{}
	type snap struct {
		id      uint32
		records map[string]Record
	}
	snaps := make([]snap, 0, len(ids))
	for _, id := range ids {
		sh, ok := c.shards[id]
		if !ok {
			continue
		}
		cp := make(map[string]Record, len(sh.records))
		for k, v := range sh.records {
			cp[k] = v
		}
		snaps = append(snaps, snap{id, cp})
	}
	c.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range snaps {
		wg.Add(1)
		go func(s snap) {
			defer wg.Done()
			if err := c.persistShard(context.Background(), s.id, s.records); err != nil {
				select {
				case c.failCh <- fmt.Errorf("collection %s: shard %d: %w", c.name, s.id, err):
				default:
				}
				c.mu.Lock()
				c.dirty[s.id] = true
				c.mu.Unlock()
				return
			}
			c.mu.Lock()
			if sh, ok := c.shards[s.id]; ok {
				sh.dirty = false
			}
			c.mu.Unlock()
		}(s)
	}
	wg.Wait()

	c.mu.Lock()
	c.lastSaveTime = c.clk.Now()
	c.evictLocked()
	c.mu.Unlock()
}

// persistShard writes (or, if empty, deletes) one shard file with
// bounded retry.
func (c *Collection) persistShard(ctx context.Context, id uint32, records map[string]Record) error {
	path := shardPath(c.dir, id)
	if len(records) == 0 {
		op := func() error { return c.store.DeleteFile(ctx, path) }
		return backoff.Retry(op, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.cfg.MaxRetries))
	}
	if err := codecSaveShard(ctx, c.store, path, records, c.cfg.MaxRetries); err != nil {
		return err
	}
	if c.cfg.VerifyShardWrites {
		res, err := codecVerifyShard(ctx, c.store, path)
		if err != nil {
			return err
		}
		if !res.Valid {
			return fmt.Errorf("%w: shard %d post-write verification: %v", ErrCorruption, id, res.Err)
		}
	}
	return nil
}
