// Cooperative write locks persisted as small JSON files.
//
// A lock older than LockExpiry may be taken by a new owner — this is a
// crash-recovery valve, not a correctness guarantee, since two processes
// racing past the expiry window can both believe they hold the lock. The
// engine's own single-writer model (§5) is what actually prevents
// concurrent mutation; this lock only keeps two *processes* from opening
// the same storage location for write at once.
package storage

import (
	"context"
	"time"

	json "github.com/goccy/go-json"
)

// LockExpiry is how long a lock file may go unrefreshed before a new
// owner is allowed to take it over.
const LockExpiry = 30 * time.Second

// nowFn is a package-level indirection so lock tests can freeze time.
var nowFn = time.Now

func (fs *LocalFS) AcquireWriteLock(ctx context.Context, path, owner string) error {
	existing, err := fs.CheckWriteLock(ctx, path)
	if err != nil && err != ErrLockNotFound {
		return err
	}
	if existing != nil && existing.Owner != owner && nowFn().Sub(existing.Timestamp) < LockExpiry {
		return ErrLocked
	}

	info := LockInfo{Owner: owner, AcquiredAt: nowFn(), Timestamp: nowFn()}
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return fs.Write(ctx, path, "application/json", data)
}

func (fs *LocalFS) CheckWriteLock(ctx context.Context, path string) (*LockInfo, error) {
	ok, err := fs.FileExists(ctx, path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockNotFound
	}
	data, err := fs.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (fs *LocalFS) RefreshWriteLock(ctx context.Context, path, owner string) error {
	existing, err := fs.CheckWriteLock(ctx, path)
	if err != nil {
		return err
	}
	if existing.Owner != owner {
		return ErrNotOwner
	}
	existing.Timestamp = nowFn()
	data, err := json.Marshal(existing)
	if err != nil {
		return err
	}
	return fs.Write(ctx, path, "application/json", data)
}

func (fs *LocalFS) ReleaseWriteLock(ctx context.Context, path string) error {
	return fs.DeleteFile(ctx, path)
}
