package strata

import "testing"

// TestShardForZeroUUID checks that the all-zero UUID hashes via md5
// to d41d8cd9..., whose first 4 bytes big-endian mod 100 is 89.
func TestShardForZeroUUID(t *testing.T) {
	id, err := shardFor("00000000-0000-0000-0000-000000000000", 100)
	if err != nil {
		t.Fatal(err)
	}
	if id != 89 {
		t.Fatalf("shard = %d, want 89", id)
	}
}

// TestShardForStability checks that shard_id depends only on id and
// numShards, not on call order or anything ambient.
func TestShardForStability(t *testing.T) {
	id := "11111111-1111-1111-1111-111111111111"
	first, err := shardFor(id, 100)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		got, err := shardFor(id, 100)
		if err != nil || got != first {
			t.Fatalf("call %d: got %d, %v; want %d", i, got, err, first)
		}
	}
}

func TestShardForRejectsInvalidID(t *testing.T) {
	if _, err := shardFor("not-a-uuid", 100); err == nil {
		t.Fatal("expected error for malformed id")
	}
}

func TestShardForRange(t *testing.T) {
	ids := []string{
		"00000000-0000-0000-0000-000000000000",
		"ffffffff-ffff-ffff-ffff-ffffffffffff",
		"11111111-1111-1111-1111-111111111111",
	}
	for _, id := range ids {
		got, err := shardFor(id, 7)
		if err != nil {
			t.Fatal(err)
		}
		if got >= 7 {
			t.Fatalf("shard %d out of range for numShards=7", got)
		}
	}
}
