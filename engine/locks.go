package engine

import (
	"sync"

	"github.com/cespare/xxhash/v2"

	"coderhack/core"
)

const lockStripes = 64

// keyLocks serializes writers per user id within a process using striped mutexes.
// Distinct ids may share a stripe; that only costs throughput.
type keyLocks struct {
	stripes [lockStripes]sync.Mutex
}

func (k *keyLocks) lock(id core.UserID) (unlock func()) {
	m := &k.stripes[xxhash.Sum64String(string(id))%lockStripes]
	m.Lock()
	return m.Unlock
}
