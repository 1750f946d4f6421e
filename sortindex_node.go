// Node file format: one file per B-tree node, named by its UUID,
// framed through the codec package like every other on-disk artifact.
// Entries carry BSON-encoded values to handle heterogeneous field types,
// mirroring record.go's own use of BSON for record bodies.
package strata

import (
	"context"
	"fmt"
	"time"

	"github.com/strata-db/strata/codec"
	"github.com/strata-db/strata/storage"
)

const nodeFileVersion = 1

const (
	nodeKindLeaf     = 1
	nodeKindInternal = 0
)

// leafEntry is one (value, record_id, record) triple held at a leaf.
type leafEntry struct {
	key    entryKey
	record Record
}

// sep is one (value, record_id) separator key held at an internal node.
type sep struct {
	key entryKey
}

// node is one persisted page: exactly one of the leaf/internal field
// groups is populated, selected by isLeaf.
type node struct {
	id     string
	isLeaf bool

	// leaf fields
	entries  []leafEntry
	nextLeaf string
	prevLeaf string

	// internal fields
	children []string
	seps     []sep

	dirty bool
}

// valueDoc is the BSON shape a codec.Value is marshaled through.
type valueDoc struct {
	Kind  uint8     `bson:"k"`
	Bool  bool      `bson:"b,omitempty"`
	Int64 int64     `bson:"i,omitempty"`
	Float float64   `bson:"f,omitempty"`
	Str   string    `bson:"s,omitempty"`
	Bytes []byte    `bson:"by,omitempty"`
	Time  time.Time `bson:"t,omitempty"`
}

func toValueDoc(v codec.Value) valueDoc {
	return valueDoc{Kind: uint8(v.Kind), Bool: v.Bool, Int64: v.Int64, Float: v.Float, Str: v.Str, Bytes: v.Bytes, Time: v.Time}
}

func fromValueDoc(d valueDoc) codec.Value {
	return codec.Value{Kind: codec.ValueKind(d.Kind), Bool: d.Bool, Int64: d.Int64, Float: d.Float, Str: d.Str, Bytes: d.Bytes, Time: d.Time}
}

var nodeVersions = codec.NewVersionTable[*node]()

func init() {
	nodeVersions.RegisterDecoder(1, decodeNode)
}

func encodeNode(w *codec.Writer, n *node) error {
	if n.isLeaf {
		w.WriteU8(nodeKindLeaf)
		w.WriteU32(uint32(len(n.entries)))
		w.WriteString(n.nextLeaf)
		w.WriteString(n.prevLeaf)
		for _, e := range n.entries {
			if err := codec.WriteBSON(w, toValueDoc(e.key.value)); err != nil {
				return fmt.Errorf("sort index: encode value: %w", err)
			}
			w.WriteString(e.key.id)
			if err := codec.WriteBSON(w, e.record); err != nil {
				return fmt.Errorf("sort index: encode record: %w", err)
			}
		}
		return nil
	}

	w.WriteU8(nodeKindInternal)
	w.WriteU32(uint32(len(n.children)))
	for _, c := range n.children {
		w.WriteString(c)
	}
	w.WriteU32(uint32(len(n.seps)))
	for _, s := range n.seps {
		if err := codec.WriteBSON(w, toValueDoc(s.key.value)); err != nil {
			return fmt.Errorf("sort index: encode separator value: %w", err)
		}
		w.WriteString(s.key.id)
	}
	return nil
}

func decodeNode(r *codec.Reader) (*node, error) {
	kind, err := r.ReadU8()
	if err != nil {
		return nil, fmt.Errorf("%w: node kind: %v", ErrCorruption, err)
	}

	n := &node{}
	switch kind {
	case nodeKindLeaf:
		n.isLeaf = true
		count, err := r.ReadU32()
		if err != nil {
			return nil, fmt.Errorf("%w: leaf entry count: %v", ErrCorruption, err)
		}
		if n.nextLeaf, err = r.ReadString(); err != nil {
			return nil, fmt.Errorf("%w: next_leaf_id: %v", ErrCorruption, err)
		}
		if n.prevLeaf, err = r.ReadString(); err != nil {
			return nil, fmt.Errorf("%w: prev_leaf_id: %v", ErrCorruption, err)
		}
		n.entries = make([]leafEntry, 0, count)
		for i := uint32(0); i < count; i++ {
			var vd valueDoc
			if err := codec.ReadBSON(r, &vd); err != nil {
				return nil, fmt.Errorf("%w: leaf value: %v", ErrCorruption, err)
			}
			id, err := r.ReadString()
			if err != nil {
				return nil, fmt.Errorf("%w: leaf record id: %v", ErrCorruption, err)
			}
			var rec Record
			if err := codec.ReadBSON(r, &rec); err != nil {
				return nil, fmt.Errorf("%w: leaf record: %v", ErrCorruption, err)
			}
			if rec == nil {
				rec = Record{}
			}
			n.entries = append(n.entries, leafEntry{key: entryKey{value: fromValueDoc(vd), id: id}, record: rec})
		}
		return n, nil

	case nodeKindInternal:
		n.isLeaf = false
		childCount, err := r.ReadU32()
		if err != nil {
			return nil, fmt.Errorf("%w: internal child count: %v", ErrCorruption, err)
		}
		n.children = make([]string, 0, childCount)
		for i := uint32(0); i < childCount; i++ {
			c, err := r.ReadString()
			if err != nil {
				return nil, fmt.Errorf("%w: internal child id: %v", ErrCorruption, err)
			}
			n.children = append(n.children, c)
		}
		sepCount, err := r.ReadU32()
		if err != nil {
			return nil, fmt.Errorf("%w: internal separator count: %v", ErrCorruption, err)
		}
		n.seps = make([]sep, 0, sepCount)
		for i := uint32(0); i < sepCount; i++ {
			var vd valueDoc
			if err := codec.ReadBSON(r, &vd); err != nil {
				return nil, fmt.Errorf("%w: separator value: %v", ErrCorruption, err)
			}
			id, err := r.ReadString()
			if err != nil {
				return nil, fmt.Errorf("%w: separator id: %v", ErrCorruption, err)
			}
			n.seps = append(n.seps, sep{key: entryKey{value: fromValueDoc(vd), id: id}})
		}
		return n, nil

	default:
		return nil, fmt.Errorf("%w: unexpected node kind %d", ErrCorruption, kind)
	}
}

// rootBlock is the small file naming an index's current root and
// tree-wide metadata.
type rootBlock struct {
	RootID        string
	Field         string
	Direction     string
	Type          string
	TotalEntries  int64
	SchemaVersion uint32
}

const rootBlockFileVersion = 1

var rootBlockVersions = codec.NewVersionTable[rootBlock]()

func init() {
	rootBlockVersions.RegisterDecoder(1, decodeRootBlock)
}

func encodeRootBlock(w *codec.Writer, rb rootBlock) error {
	w.WriteString(rb.RootID)
	w.WriteString(rb.Field)
	w.WriteString(rb.Direction)
	w.WriteString(rb.Type)
	w.WriteI64(rb.TotalEntries)
	w.WriteU32(rb.SchemaVersion)
	return nil
}

func decodeRootBlock(r *codec.Reader) (rootBlock, error) {
	var rb rootBlock
	var err error
	if rb.RootID, err = r.ReadString(); err != nil {
		return rb, fmt.Errorf("%w: root_id: %v", ErrCorruption, err)
	}
	if rb.Field, err = r.ReadString(); err != nil {
		return rb, fmt.Errorf("%w: field_name: %v", ErrCorruption, err)
	}
	if rb.Direction, err = r.ReadString(); err != nil {
		return rb, fmt.Errorf("%w: direction: %v", ErrCorruption, err)
	}
	if rb.Type, err = r.ReadString(); err != nil {
		return rb, fmt.Errorf("%w: type: %v", ErrCorruption, err)
	}
	if rb.TotalEntries, err = r.ReadI64(); err != nil {
		return rb, fmt.Errorf("%w: total_entries: %v", ErrCorruption, err)
	}
	if rb.SchemaVersion, err = r.ReadU32(); err != nil {
		return rb, fmt.Errorf("%w: schema_version: %v", ErrCorruption, err)
	}
	return rb, nil
}

func codecSaveNode(ctx context.Context, store storage.Storage, path string, n *node) error {
	return codec.Save(ctx, store, path, nodeFileVersion, n, encodeNode, codec.SaveOptions{})
}

func codecLoadNode(ctx context.Context, store storage.Storage, path string) (*node, error) {
	return codec.Load(ctx, store, path, nodeVersions, codec.LoadOptions{})
}

func codecSaveRootBlock(ctx context.Context, store storage.Storage, path string, rb rootBlock) error {
	return codec.Save(ctx, store, path, rootBlockFileVersion, rb, encodeRootBlock, codec.SaveOptions{})
}

func codecLoadRootBlock(ctx context.Context, store storage.Storage, path string) (rootBlock, error) {
	return codec.Load(ctx, store, path, rootBlockVersions, codec.LoadOptions{})
}
