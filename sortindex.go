// SortIndex is a persistent B-tree over (value, record_id) keyed
// entries, storing whole records at its leaves so a page read never
// has to consult the owning collection's shards. A root block names
// the current tree root the way a header names a store's current
// generation.
package strata

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/strata-db/strata/codec"
	"github.com/strata-db/strata/storage"
)

type pathStep struct {
	nodeID     string
	childIndex int
}

// sortIndex is one (field, direction) B-tree for a collection.
type sortIndex struct {
	store     storage.Storage
	dir       string
	field     string
	direction string
	typ       indexType
	pageSize  int
	readonly  bool
	onProgress func(n int)

	mu     sync.Mutex
	rootID string
	total  int64
	cache  map[string]*node
	dirty  map[string]bool
	rootDirty bool
}

func (s *sortIndex) desc() bool { return s.direction == "desc" }

func sortIndexDir(collectionDir, collectionName, field, direction string) string {
	return fmt.Sprintf("%s/sort_indexes/%s/%s_%s", collectionDir, collectionName, field, direction)
}

// openSortIndex loads an existing index's root block, or starts a fresh
// empty tree if none is persisted yet.
func openSortIndex(ctx context.Context, store storage.Storage, dir, field, direction string, typ indexType, pageSize int, readonly bool) (*sortIndex, error) {
	s := &sortIndex{
		store: store, dir: dir, field: field, direction: direction,
		typ: typ, pageSize: pageSize, readonly: readonly,
		cache: map[string]*node{}, dirty: map[string]bool{},
	}

	exists, err := store.FileExists(ctx, s.rootBlockPath())
	if err != nil {
		return nil, err
	}
	if !exists {
		return s, nil
	}

	rb, err := codecLoadRootBlock(ctx, store, s.rootBlockPath())
	if err != nil {
		return nil, err
	}
	if indexType(rb.Type) != typ {
		return nil, fmt.Errorf("%w: index %s/%s declared %s, opened as %s", ErrIndexTypeMismatch, field, direction, rb.Type, typ)
	}
	s.rootID = rb.RootID
	s.total = rb.TotalEntries
	return s, nil
}

func (s *sortIndex) rootBlockPath() string { return s.dir + "/tree.dat" }
func (s *sortIndex) nodePath(id string) string { return s.dir + "/" + id }

func (s *sortIndex) loadNode(ctx context.Context, id string) (*node, error) {
	if n, ok := s.cache[id]; ok {
		return n, nil
	}
	n, err := codecLoadNode(ctx, s.store, s.nodePath(id))
	if err != nil {
		return nil, err
	}
	n.id = id
	s.cache[id] = n
	return n, nil
}

func (s *sortIndex) newNode(isLeaf bool) *node {
	n := &node{id: uuid.NewString(), isLeaf: isLeaf, dirty: true}
	s.cache[n.id] = n
	s.dirty[n.id] = true
	return n
}

func (s *sortIndex) markDirty(n *node) {
	n.dirty = true
	s.dirty[n.id] = true
}

// saveTree flushes every dirty node and, if changed, rewrites the root
// block.
func (s *sortIndex) saveTree(ctx context.Context) error {
	if s.readonly {
		return nil
	}
	for id := range s.dirty {
		n, ok := s.cache[id]
		if !ok {
			continue
		}
		if err := codecSaveNode(ctx, s.store, s.nodePath(id), n); err != nil {
			return err
		}
		n.dirty = false
	}
	s.dirty = map[string]bool{}

	if s.rootDirty {
		rb := rootBlock{RootID: s.rootID, Field: s.field, Direction: s.direction, Type: string(s.typ), TotalEntries: s.total, SchemaVersion: 1}
		if err := codecSaveRootBlock(ctx, s.store, s.rootBlockPath(), rb); err != nil {
			return err
		}
		s.rootDirty = false
	}
	return nil
}

// build iterates the owning collection's persisted records and inserts
// every one that has the indexed field.
func (s *sortIndex) build(ctx context.Context, col *Collection) error {
	if s.readonly {
		return ErrReadonly
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	processed := 0
	for rec, err := range col.iterateRecords(ctx) {
		if err != nil {
			return err
		}
		if err := s.insertLocked(ctx, rec); err != nil {
			return err
		}
		processed++
		if processed%1000 == 0 && s.onProgress != nil {
			s.onProgress(processed)
		}
	}
	// Always write the root block, so a built index exists on disk even
	// when no record carried the field.
	s.rootDirty = true
	return s.saveTree(ctx)
}

func (s *sortIndex) key(rec Record) (entryKey, bool) {
	v, ok := rec.fieldValue(s.field)
	if !ok {
		return entryKey{}, false
	}
	return entryKey{value: valueFromField(v), id: rec.ID()}, true
}

// addRecord inserts rec if it carries the indexed field.
func (s *sortIndex) addRecord(ctx context.Context, rec Record) error {
	if s.readonly {
		return ErrReadonly
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.insertLocked(ctx, rec); err != nil {
		return err
	}
	return s.saveTree(ctx)
}

func (s *sortIndex) insertLocked(ctx context.Context, rec Record) error {
	k, ok := s.key(rec)
	if !ok {
		return nil
	}

	if s.rootID == "" {
		root := s.newNode(true)
		root.entries = []leafEntry{{key: k, record: rec}}
		s.rootID = root.id
		s.rootDirty = true
		s.total++
		return nil
	}

	path, leaf, err := s.descend(ctx, k)
	if err != nil {
		return err
	}
	idx := sort.Search(len(leaf.entries), func(i int) bool {
		return compareKeys(s.typ, s.desc(), leaf.entries[i].key, k) >= 0
	})
	leaf.entries = append(leaf.entries, leafEntry{})
	copy(leaf.entries[idx+1:], leaf.entries[idx:])
	leaf.entries[idx] = leafEntry{key: k, record: rec}
	s.markDirty(leaf)
	s.total++
	s.rootDirty = true

	if len(leaf.entries) > s.pageSize {
		if err := s.splitLeaf(ctx, leaf, path); err != nil {
			return err
		}
	}
	return nil
}

// descend walks from the root to the leaf that could contain key,
// recording the (node, child index) path taken.
func (s *sortIndex) descend(ctx context.Context, key entryKey) ([]pathStep, *node, error) {
	var path []pathStep
	cur := s.rootID
	for {
		n, err := s.loadNode(ctx, cur)
		if err != nil {
			return nil, nil, err
		}
		if n.isLeaf {
			return path, n, nil
		}
		idx := len(n.children) - 1
		for i, sp := range n.seps {
			if compareKeys(s.typ, s.desc(), key, sp.key) < 0 {
				idx = i
				break
			}
		}
		path = append(path, pathStep{nodeID: n.id, childIndex: idx})
		cur = n.children[idx]
	}
}

func (s *sortIndex) splitLeaf(ctx context.Context, leaf *node, path []pathStep) error {
	n := len(leaf.entries)
	medianIdx := n / 2
	right := s.newNode(true)
	right.entries = append([]leafEntry{}, leaf.entries[medianIdx:]...)
	right.nextLeaf = leaf.nextLeaf
	right.prevLeaf = leaf.id

	if leaf.nextLeaf != "" {
		nxt, err := s.loadNode(ctx, leaf.nextLeaf)
		if err != nil {
			return err
		}
		nxt.prevLeaf = right.id
		s.markDirty(nxt)
	}

	leaf.entries = append([]leafEntry{}, leaf.entries[:medianIdx]...)
	leaf.nextLeaf = right.id
	s.markDirty(leaf)

	return s.propagateSplit(ctx, path, right.entries[0].key, right.id, leaf.id)
}

func (s *sortIndex) propagateSplit(ctx context.Context, path []pathStep, sepKey entryKey, newChildID, leftID string) error {
	if len(path) == 0 {
		root := s.newNode(false)
		root.children = []string{leftID, newChildID}
		root.seps = []sep{{key: sepKey}}
		s.rootID = root.id
		s.rootDirty = true
		return nil
	}

	last := path[len(path)-1]
	parent, err := s.loadNode(ctx, last.nodeID)
	if err != nil {
		return err
	}

	seps := make([]sep, 0, len(parent.seps)+1)
	seps = append(seps, parent.seps[:last.childIndex]...)
	seps = append(seps, sep{key: sepKey})
	seps = append(seps, parent.seps[last.childIndex:]...)
	parent.seps = seps

	children := make([]string, 0, len(parent.children)+1)
	children = append(children, parent.children[:last.childIndex+1]...)
	children = append(children, newChildID)
	children = append(children, parent.children[last.childIndex+1:]...)
	parent.children = children
	s.markDirty(parent)

	if len(parent.seps) > s.pageSize {
		return s.splitInternal(ctx, parent, path[:len(path)-1])
	}
	return nil
}

func (s *sortIndex) splitInternal(ctx context.Context, n *node, parentPath []pathStep) error {
	medianIdx := len(n.seps) / 2
	promoted := n.seps[medianIdx]

	right := s.newNode(false)
	right.seps = append([]sep{}, n.seps[medianIdx+1:]...)
	right.children = append([]string{}, n.children[medianIdx+1:]...)

	leftID := n.id
	n.seps = append([]sep{}, n.seps[:medianIdx]...)
	n.children = append([]string{}, n.children[:medianIdx+1]...)
	s.markDirty(n)

	return s.propagateSplit(ctx, parentPath, promoted.key, right.id, leftID)
}

// updateRecord overwrites in place when the indexed value hasn't
// changed; otherwise deletes the old mapping (if any) and inserts new.
func (s *sortIndex) updateRecord(ctx context.Context, newRec Record, oldRec Record) error {
	if s.readonly {
		return ErrReadonly
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	newKey, newOk := s.key(newRec)
	if oldRec != nil {
		oldKey, oldOk := s.key(oldRec)
		if oldOk && newOk && compareValues(s.typ, oldKey.value, newKey.value) == 0 {
			_, leaf, err := s.descend(ctx, newKey)
			if err != nil {
				return err
			}
			for i := range leaf.entries {
				if leaf.entries[i].key.id == newKey.id {
					leaf.entries[i].record = newRec
					s.markDirty(leaf)
					return s.saveTree(ctx)
				}
			}
		}
		if oldOk {
			if err := s.deleteLocked(ctx, oldKey); err != nil {
				return err
			}
		}
	}
	if newOk {
		if err := s.insertLocked(ctx, newRec); err != nil {
			return err
		}
	}
	return s.saveTree(ctx)
}

// deleteRecord removes rec's mapping using its current field value as
// the hint to locate the owning leaf.
func (s *sortIndex) deleteRecord(ctx context.Context, rec Record) error {
	if s.readonly {
		return ErrReadonly
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.key(rec)
	if !ok {
		return nil
	}
	if err := s.deleteLocked(ctx, k); err != nil {
		return err
	}
	return s.saveTree(ctx)
}

func (s *sortIndex) deleteLocked(ctx context.Context, k entryKey) error {
	if s.rootID == "" {
		return nil
	}
	_, leaf, err := s.descend(ctx, k)
	if err != nil {
		return err
	}
	idx := sort.Search(len(leaf.entries), func(i int) bool {
		return compareKeys(s.typ, s.desc(), leaf.entries[i].key, k) >= 0
	})
	for i := idx; i < len(leaf.entries); i++ {
		if compareKeys(s.typ, s.desc(), leaf.entries[i].key, k) != 0 {
			break
		}
		if leaf.entries[i].key.id == k.id {
			leaf.entries = append(leaf.entries[:i], leaf.entries[i+1:]...)
			s.markDirty(leaf)
			s.total--
			s.rootDirty = true
			return nil
		}
	}
	return nil
}

// findByValue returns every record whose indexed value equals v.
func (s *sortIndex) findByValue(ctx context.Context, v any) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rootID == "" {
		return nil, nil
	}
	target := valueFromField(v)
	k := entryKey{value: target, id: ""}
	_, leaf, err := s.descend(ctx, k)
	if err != nil {
		return nil, err
	}

	var out []Record
	for leaf != nil {
		exit := false
		for _, e := range leaf.entries {
			c := compareValues(s.typ, e.key.value, target)
			if s.desc() {
				c = -c
			}
			if c == 0 {
				out = append(out, e.record)
			} else if c > 0 {
				exit = true
				break
			}
		}
		if exit || leaf.nextLeaf == "" {
			break
		}
		next, err := s.loadNode(ctx, leaf.nextLeaf)
		if err != nil {
			return nil, err
		}
		leaf = next
	}
	return out, nil
}

// rangeOptions bounds findByRange; at least one of Min/Max must be set.
type rangeOptions struct {
	Min, Max                   any
	HasMin, HasMax             bool
	MinInclusive, MaxInclusive bool
}

func (s *sortIndex) findByRange(ctx context.Context, opts rangeOptions) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !opts.HasMin && !opts.HasMax {
		return nil, fmt.Errorf("%w: findByRange requires at least one bound", ErrInternal)
	}
	if s.rootID == "" {
		return nil, nil
	}

	var start *node
	var err error
	if opts.HasMin {
		k := entryKey{value: valueFromField(opts.Min)}
		_, start, err = s.descend(ctx, k)
	} else {
		start, err = s.leftmostLeaf(ctx)
	}
	if err != nil {
		return nil, err
	}

	var minV, maxV codec.Value
	if opts.HasMin {
		minV = valueFromField(opts.Min)
	}
	if opts.HasMax {
		maxV = valueFromField(opts.Max)
	}

	var out []Record
	leaf := start
	for leaf != nil {
		exitedHigh := false
		for _, e := range leaf.entries {
			if opts.HasMin {
				c := compareValues(s.typ, e.key.value, minV)
				if s.desc() {
					c = -c
				}
				if c < 0 || (c == 0 && !opts.MinInclusive) {
					continue
				}
			}
			if opts.HasMax {
				c := compareValues(s.typ, e.key.value, maxV)
				if s.desc() {
					c = -c
				}
				if c > 0 || (c == 0 && !opts.MaxInclusive) {
					exitedHigh = true
					break
				}
			}
			out = append(out, e.record)
		}
		if exitedHigh || leaf.nextLeaf == "" {
			break
		}
		next, err := s.loadNode(ctx, leaf.nextLeaf)
		if err != nil {
			return nil, err
		}
		leaf = next
	}
	return out, nil
}

func (s *sortIndex) leftmostLeaf(ctx context.Context) (*node, error) {
	cur := s.rootID
	for {
		n, err := s.loadNode(ctx, cur)
		if err != nil {
			return nil, err
		}
		if n.isLeaf {
			return n, nil
		}
		cur = n.children[0]
	}
}

// Page is one page of a sort index's cursor-paginated leaf sequence.
type Page struct {
	Records        []Record
	TotalRecords   int64
	CurrentPageID  string
	TotalPages     int64
	NextPageID     string
	PreviousPageID string
}

// getPage returns the leaf named by pageID, or the leftmost leaf when
// pageID is empty. Requesting past the end yields an empty page.
func (s *sortIndex) getPage(ctx context.Context, pageID string) (Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	totalPages := int64(0)
	if s.pageSize > 0 {
		totalPages = int64(math.Ceil(float64(s.total) / float64(s.pageSize)))
	}

	if s.rootID == "" {
		return Page{TotalRecords: 0, TotalPages: 0}, nil
	}

	var leaf *node
	var err error
	if pageID == "" {
		leaf, err = s.leftmostLeaf(ctx)
	} else {
		leaf, err = s.loadNode(ctx, pageID)
	}
	if err != nil {
		if isNotFound(err) {
			return Page{TotalRecords: s.total, TotalPages: 0}, nil
		}
		return Page{}, err
	}
	if !leaf.isLeaf {
		return Page{}, fmt.Errorf("%w: page id %s is not a leaf", ErrInternal, pageID)
	}

	recs := make([]Record, 0, len(leaf.entries))
	for _, e := range leaf.entries {
		recs = append(recs, e.record)
	}
	return Page{
		Records:        recs,
		TotalRecords:   s.total,
		CurrentPageID:  leaf.id,
		TotalPages:     totalPages,
		NextPageID:     leaf.nextLeaf,
		PreviousPageID: leaf.prevLeaf,
	}, nil
}

// isNotFound matches both the package-level sentinel and the codec
// package's own (paths read through codec.Load/Verify wrap codec.ErrNotFound,
// not strata.ErrNotFound, since the codec layer has no dependency on strata).
func isNotFound(err error) bool {
	return err != nil && (errors.Is(err, ErrNotFound) || errors.Is(err, codec.ErrNotFound))
}

// shutdown flushes dirty state and drops in-memory caches.
func (s *sortIndex) shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.saveTree(ctx); err != nil {
		return err
	}
	s.cache = map[string]*node{}
	return nil
}

// delete flushes, then removes the entire index directory.
func (s *sortIndex) delete(ctx context.Context) error {
	if err := s.shutdown(ctx); err != nil {
		return err
	}
	return s.store.DeleteDir(ctx, s.dir)
}
