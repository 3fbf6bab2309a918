package engine

import (
	"hash/fnv"
	"sync"

	"github.com/subchannel-org/subchannel-go-base/types"
)

const lockShardCount = 64

// keyLock linearizes operations per identity with a sharded lock map:
// identities hash onto a fixed set of mutexes, so two operations for the
// same identity always serialize while operations on (most) different
// identities proceed in parallel.
type keyLock struct {
	shards [lockShardCount]sync.Mutex
}

// lock acquires the shard for the identity and returns the unlock func.
func (k *keyLock) lock(id types.Identity) func() {
	h := fnv.New32a()
	h.Write(id)
	m := &k.shards[h.Sum32()%lockShardCount]
	m.Lock()
	return m.Unlock
}
