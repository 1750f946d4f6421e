// Shard files hold a fixed slice of a collection's records, chosen by
// hashing the record id (hash.go). Encoding is a length-prefixed record
// stream framed through the codec package's [version][body][checksum]
// envelope.
package strata

import (
	"context"
	"fmt"
	"time"

	"github.com/strata-db/strata/codec"
	"github.com/strata-db/strata/storage"
)

const shardFileVersion = 1

// shard is an in-memory cache of one shard's records plus dirty/LRU
// bookkeeping for the collection's persistence worker.
type shard struct {
	id           uint32
	records      map[string]Record
	dirty        bool
	lastAccessed time.Time
}

func newShard(id uint32) *shard {
	return &shard{id: id, records: map[string]Record{}, lastAccessed: time.Now()}
}

func (s *shard) touch() { s.lastAccessed = time.Now() }

func shardPath(collectionDir string, id uint32) string {
	return fmt.Sprintf("%s/shards/%d.shard", collectionDir, id)
}

var shardVersions = codec.NewVersionTable[map[string]Record]()

func init() {
	shardVersions.RegisterDecoder(1, decodeShardBody)
}

// encodeShardBody writes [u32 record_count][entries...], one entry per
// record: [16-byte uuid][u32 body_len][body_len bytes BSON].
func encodeShardBody(w *codec.Writer, records map[string]Record) error {
	w.WriteU32(uint32(len(records)))
	for id, rec := range records {
		raw, err := parseUUIDBytes(id)
		if err != nil {
			return fmt.Errorf("%w: shard entry id %q: %v", ErrInvalidID, id, err)
		}
		body, err := rec.bodyBytes()
		if err != nil {
			return fmt.Errorf("shard encode: %w", err)
		}
		w.WriteRaw(raw[:])
		w.WriteU32(uint32(len(body)))
		w.WriteRaw(body)
	}
	return nil
}

func decodeShardBody(r *codec.Reader) (map[string]Record, error) {
	count, err := r.ReadU32()
	if err != nil {
		return nil, fmt.Errorf("%w: shard record count: %v", ErrCorruption, err)
	}
	out := make(map[string]Record, count)
	for i := uint32(0); i < count; i++ {
		idBytes, err := r.ReadRaw(16)
		if err != nil {
			return nil, fmt.Errorf("%w: shard entry id: %v", ErrCorruption, err)
		}
		id := formatUUIDBytes(idBytes)
		bodyLen, err := r.ReadU32()
		if err != nil {
			return nil, fmt.Errorf("%w: shard entry body len: %v", ErrCorruption, err)
		}
		body, err := r.ReadRaw(int(bodyLen))
		if err != nil {
			return nil, fmt.Errorf("%w: shard entry body: %v", ErrCorruption, err)
		}
		rec, err := recordFromBody(id, body)
		if err != nil {
			return nil, err
		}
		out[id] = rec
	}
	return out, nil
}

// codecSaveShard frames and persists a shard's records via the codec
// package's versioned save.
func codecSaveShard(ctx context.Context, store storage.Storage, path string, records map[string]Record, maxRetries uint64) error {
	return codec.Save(ctx, store, path, shardFileVersion, records, encodeShardBody, codec.SaveOptions{MaxRetries: maxRetries})
}

// codecLoadShard reads and decodes a shard file.
func codecLoadShard(ctx context.Context, store storage.Storage, path string) (map[string]Record, error) {
	return codec.Load(ctx, store, path, shardVersions, codec.LoadOptions{})
}

// codecVerifyShard re-reads a just-written shard file to catch a torn
// write; used only when Config.VerifyShardWrites is enabled.
func codecVerifyShard(ctx context.Context, store storage.Storage, path string) (codec.VerifyResult, error) {
	return codec.Verify(ctx, store, path)
}
