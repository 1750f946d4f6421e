// sortManager is a per-collection registry of sort indexes keyed by
// (field, direction), fanning record mutations out to every live index
// dispatching a single record mutation across every affected index.
package strata

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

type sortManagerKey struct{ field, direction string }

func (k sortManagerKey) dirName() string { return k.field + "_" + k.direction }

type sortManager struct {
	col *Collection

	mu      sync.Mutex
	indexes map[sortManagerKey]*sortIndex
}

func newSortManager(col *Collection) *sortManager {
	return &sortManager{col: col, indexes: map[sortManagerKey]*sortIndex{}}
}

func sortIndexesRoot(col *Collection) string {
	return fmt.Sprintf("%s/sort_indexes/%s", col.dir, col.name)
}

// ensureSortIndex creates (building it from the collection's persisted
// records) or returns the already-open index for (field, direction).
func (m *sortManager) ensureSortIndex(ctx context.Context, field, direction string, typ indexType) (*sortIndex, error) {
	if direction != "asc" && direction != "desc" {
		return nil, fmt.Errorf("%w: direction must be asc or desc, got %q", ErrInternal, direction)
	}
	if !typ.valid() {
		return nil, fmt.Errorf("%w: unknown sort index type %q", ErrInternal, typ)
	}

	key := sortManagerKey{field, direction}

	m.mu.Lock()
	if idx, ok := m.indexes[key]; ok {
		m.mu.Unlock()
		if idx.typ != typ {
			return nil, fmt.Errorf("%w: index %s/%s is %s, requested %s", ErrIndexTypeMismatch, field, direction, idx.typ, typ)
		}
		return idx, nil
	}
	m.mu.Unlock()

	dir := sortIndexDir(m.col.dir, m.col.name, field, direction)
	idx, err := openSortIndex(ctx, m.col.store, dir, field, direction, typ, m.col.cfg.PageSize, false)
	if err != nil {
		return nil, err
	}

	freshlyBuilt := idx.rootID == ""
	m.mu.Lock()
	m.indexes[key] = idx
	m.mu.Unlock()

	if freshlyBuilt {
		if err := idx.build(ctx, m.col); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

// getSortedRecords delegates to an already-ensured index's getPage.
func (m *sortManager) getSortedRecords(ctx context.Context, field, direction, pageID string) (Page, error) {
	m.mu.Lock()
	idx, ok := m.indexes[sortManagerKey{field, direction}]
	m.mu.Unlock()
	if !ok {
		return Page{}, fmt.Errorf("%w: sort index %s/%s not open", ErrNotFound, field, direction)
	}
	return idx.getPage(ctx, pageID)
}

// listSortIndexes returns the union of in-memory keys and on-disk
// "<field>_<dir>" directories.
func (m *sortManager) listSortIndexes(ctx context.Context) ([]string, error) {
	seen := map[string]bool{}
	var out []string

	m.mu.Lock()
	for k := range m.indexes {
		name := k.dirName()
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	m.mu.Unlock()

	token := ""
	for {
		listing, err := m.col.store.ListDirs(ctx, sortIndexesRoot(m.col), 64, token)
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

// deleteSortIndex removes both the in-memory entry and the on-disk
// directory, reporting whether either existed.
func (m *sortManager) deleteSortIndex(ctx context.Context, field, direction string) (bool, error) {
	key := sortManagerKey{field, direction}

	m.mu.Lock()
	idx, hadMemory := m.indexes[key]
	delete(m.indexes, key)
	m.mu.Unlock()

	dir := sortIndexDir(m.col.dir, m.col.name, field, direction)
	hadDisk, err := m.col.store.DirExists(ctx, dir)
	if err != nil {
		return false, err
	}

	if hadMemory {
		if err := idx.delete(ctx); err != nil {
			return false, err
		}
	} else if hadDisk {
		if err := m.col.store.DeleteDir(ctx, dir); err != nil {
			return false, err
		}
	}
	return hadMemory || hadDisk, nil
}

// deleteAllSortIndexes deletes every index, in-memory or on-disk only.
func (m *sortManager) deleteAllSortIndexes(ctx context.Context) error {
	names, err := m.listSortIndexes(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		field, direction, ok := splitIndexDirName(name)
		if !ok {
			continue
		}
		if _, err := m.deleteSortIndex(ctx, field, direction); err != nil {
			return err
		}
	}
	return nil
}

func splitIndexDirName(name string) (field, direction string, ok bool) {
	idx := strings.LastIndex(name, "_")
	if idx < 0 {
		return "", "", false
	}
	return name[:idx], name[idx+1:], true
}

// addRecord/updateRecord/deleteRecord fan mutations out to every live index.

func (m *sortManager) addRecord(ctx context.Context, rec Record) error {
	for _, idx := range m.snapshot() {
		if err := idx.addRecord(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func (m *sortManager) updateRecord(ctx context.Context, newRec, oldRec Record) error {
	for _, idx := range m.snapshot() {
		if err := idx.updateRecord(ctx, newRec, oldRec); err != nil {
			return err
		}
	}
	return nil
}

func (m *sortManager) deleteRecord(ctx context.Context, rec Record) error {
	for _, idx := range m.snapshot() {
		if err := idx.deleteRecord(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func (m *sortManager) snapshot() []*sortIndex {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*sortIndex, 0, len(m.indexes))
	for _, idx := range m.indexes {
		out = append(out, idx)
	}
	return out
}

// shutdown shuts down every live index and clears the registry.
func (m *sortManager) shutdown(ctx context.Context) error {
	for _, idx := range m.snapshot() {
		if err := idx.shutdown(ctx); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.indexes = map[sortManagerKey]*sortIndex{}
	m.mu.Unlock()
	return nil
}
