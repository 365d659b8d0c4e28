package grants

import (
	"hash/fnv"
	"sync"
)

const lockStripes = 64

// userLocks serializes read-modify-write sequences on one user's grants within
// this process. Users hashing to the same stripe share a lock.
type userLocks struct {
	stripes [lockStripes]sync.Mutex
}

func (l *userLocks) lock(userID string) func() {
	m := &l.stripes[stripeOf(userID)]
	m.Lock()
	return m.Unlock
}

func stripeOf(userID string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return h.Sum32() % lockStripes
}
