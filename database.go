// Database maps collection names to Collection instances over one
// storage root, one lazily-opened Collection per named partition.
package strata

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/strata-db/strata/storage"
)

// Database is the top-level handle for a document store rooted at a
// storage.Storage backend.
type Database struct {
	store storage.Storage
	cfg   Config
	clk   clock.Clock

	mu          sync.Mutex
	collections map[string]*Collection
}

// Open returns a Database backed by store, filling unset Config fields
// with their defaults.
func Open(store storage.Storage, cfg Config) *Database {
	return &Database{
		store:       store,
		cfg:         cfg.withDefaults(),
		clk:         clock.New(),
		collections: map[string]*Collection{},
	}
}

// Collection is lazy and idempotent: the first call for a name opens
// it, every subsequent call returns the same instance.
func (d *Database) Collection(name string) *Collection {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok := d.collections[name]; ok {
		return c
	}
	c := openCollection(d.store, name, d.cfg, d.clk)
	d.collections[name] = c
	return c
}

// Collections returns the union of in-memory collection names and
// storage-directory names rooted at this database.
func (d *Database) Collections(ctx context.Context) ([]string, error) {
	seen := map[string]bool{}
	var out []string

	d.mu.Lock()
	for name := range d.collections {
		seen[name] = true
		out = append(out, name)
	}
	d.mu.Unlock()

	token := ""
	for {
		listing, err := d.store.ListDirs(ctx, "", 64, token)
		if err != nil {
			if isNotFound(err) {
				break
			}
			return nil, err
		}
		for _, name := range listing.Names {
			if !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
		if listing.Next == "" {
			break
		}
		token = listing.Next
	}
	return out, nil
}

// Shutdown shuts down every opened collection.
func (d *Database) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	cols := make([]*Collection, 0, len(d.collections))
	for _, c := range d.collections {
		cols = append(cols, c)
	}
	d.collections = map[string]*Collection{}
	d.mu.Unlock()

	for _, c := range cols {
		if err := c.shutdown(ctx); err != nil {
			return err
		}
	}
	return nil
}
