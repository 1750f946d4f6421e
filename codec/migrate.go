// Migration graph traversal: given a registry of "from:to" edges, find
// the shortest chain of migrations between two versions via BFS and
// compose them.
package codec

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseEdgeKey parses a "from:to" migration registry key into a from/to
// pair.
func ParseEdgeKey(key string) (from, to uint32, err error) {
	parts := strings.SplitN(key, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("codec: malformed migration key %q", key)
	}
	f, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("codec: malformed migration key %q: %w", key, err)
	}
	t, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("codec: malformed migration key %q: %w", key, err)
	}
	return uint32(f), uint32(t), nil
}

// RegisterMigrationKey registers a migration using the "from:to" string
// key form the migration registry uses, rather than separate from/to
// arguments.
func (vt *VersionTable[T]) RegisterMigrationKey(key string, m Migration[T]) error {
	from, to, err := ParseEdgeKey(key)
	if err != nil {
		return err
	}
	vt.RegisterMigration(from, to, m)
	return nil
}

// migrate finds the shortest path from -> to via BFS over the directed
// graph of registered edges and applies each migration in order.
func migrate[T any](value T, from, to uint32, migrations map[edge]Migration[T]) (T, error) {
	if from == to {
		return value, nil
	}

	adj := map[uint32][]uint32{}
	for e := range migrations {
		adj[e.from] = append(adj[e.from], e.to)
	}

	path, ok := bfsPath(adj, from, to)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: no path from %d to %d", ErrMigration, from, to)
	}

	cur := value
	for i := 0; i+1 < len(path); i++ {
		m, ok := migrations[edge{path[i], path[i+1]}]
		if !ok {
			var zero T
			return zero, fmt.Errorf("%w: missing edge %d:%d", ErrMigration, path[i], path[i+1])
		}
		next, err := m(cur)
		if err != nil {
			var zero T
			return zero, fmt.Errorf("%w: %v", ErrMigration, err)
		}
		cur = next
	}
	return cur, nil
}

// bfsPath finds the shortest path from start to goal in adj, returning
// the full node sequence.
func bfsPath(adj map[uint32][]uint32, start, goal uint32) ([]uint32, bool) {
	type frame struct {
		node uint32
		path []uint32
	}

	visited := map[uint32]bool{start: true}
	queue := []frame{{start, []uint32{start}}}

	for len(queue) > 0 {
		f := queue[0]
		queue = queue[1:]

		if f.node == goal {
			return f.path, true
		}
		for _, next := range adj[f.node] {
			if visited[next] {
				continue
			}
			visited[next] = true
			path := make([]uint32, len(f.path), len(f.path)+1)
			copy(path, f.path)
			path = append(path, next)
			queue = append(queue, frame{next, path})
		}
	}
	return nil, false
}
