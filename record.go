// Record format: a schemaless BSON document keyed by a UUID _id.
//
// On disk, _id lives in its own fixed 16-byte slot (see shard.go's
// record_entry framing) and is elided from the BSON body — the same
// "don't repeat the key in the value" economy.
package strata

import (
	"fmt"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
)

// Record is a schemaless document. The only field the engine requires
// is "_id"; everything else is caller-defined.
type Record map[string]any

// IDField is the mandatory identifier key.
const IDField = "_id"

// ID returns the record's _id as a string, or "" if absent/non-string.
func (r Record) ID() string {
	v, ok := r[IDField]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// WithID returns a shallow copy of r with _id set.
func (r Record) WithID(id string) Record {
	out := make(Record, len(r)+1)
	for k, v := range r {
		out[k] = v
	}
	out[IDField] = id
	return out
}

// clone returns a shallow copy, used whenever a caller's map must not be
// aliased by the shard cache.
func (r Record) clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// merge shallow-merges updates into a copy of r, including any
// generated _id already present in one side.
func (r Record) merge(updates Record) Record {
	out := r.clone()
	for k, v := range updates {
		out[k] = v
	}
	return out
}

// validateID checks that id is a canonical 36-character UUID: 32 hex
// digits and dashes at positions 8, 13, 18, 23. uuid.Parse alone accepts
// looser forms (no-dash 32-hex, braced, urn:uuid:-prefixed); the length
// and dash check rejects those before it ever runs.
func validateID(id string) error {
	if len(id) != 36 || id[8] != '-' || id[13] != '-' || id[18] != '-' || id[23] != '-' {
		return fmt.Errorf("%w: %q: not a canonical 36-character UUID", ErrInvalidID, id)
	}
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidID, id, err)
	}
	return nil
}

// newID generates a fresh UUID for a record missing _id.
func newID() string { return uuid.NewString() }

// bodyBytes marshals r's body (every key except _id) to BSON, for the
// shard file's record_entry body_len-prefixed slot.
func (r Record) bodyBytes() ([]byte, error) {
	body := make(Record, len(r))
	for k, v := range r {
		if k == IDField {
			continue
		}
		body[k] = v
	}
	return bson.Marshal(body)
}

// recordFromBody decodes a BSON body and reattaches id as _id, mirroring
// how shard.go stores id once in the fixed slot and reconstitutes the
// full record on read.
func recordFromBody(id string, body []byte) (Record, error) {
	var r Record
	if err := bson.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("%w: record body: %v", ErrCorruption, err)
	}
	if r == nil {
		r = Record{}
	}
	r[IDField] = id
	return r, nil
}

// fieldValue projects a record's field for sort-index insertion,
// reporting ok=false when the field is absent (the index then skips
// this record when building an index).
func (r Record) fieldValue(field string) (any, bool) {
	v, ok := r[field]
	return v, ok
}
