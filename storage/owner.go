// Lock-owner fingerprints: reduce a string identifying the current
// process to a short hex token, for use as the owner of a write lock.
package storage

import (
	"fmt"
	"os"

	"golang.org/x/crypto/blake2b"
)

// DefaultOwner derives a stable 16 hex character token from the current
// hostname and process id, suitable as the owner argument to
// AcquireWriteLock when the caller has no more specific identity to use.
func DefaultOwner() string {
	host, _ := os.Hostname()
	seed := fmt.Sprintf("%s:%d", host, os.Getpid())
	h, _ := blake2b.New(8, nil)
	h.Write([]byte(seed))
	return fmt.Sprintf("%016x", h.Sum(nil))
}
