package kafka

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// seqTracker remembers the highest change sequence applied per layer and
// producer. Producers number their own events, so two publishers of the same
// layer never shadow each other.
type seqTracker struct {
	mu   sync.Mutex
	last *lru.Cache[seqKey, uint64]
}

type seqKey struct {
	layer, source string
}

func newSeqTracker(size int) *seqTracker {
	if size <= 0 {
		size = 1024
	}
	c, _ := lru.New[seqKey, uint64](size)
	return &seqTracker{last: c}
}

// advance records seq and reports whether it is newer than anything seen
// for the layer and source. Replays and reordered duplicates return false.
func (t *seqTracker) advance(layer, source string, seq uint64) bool {
	k := seqKey{layer: layer, source: source}
	t.mu.Lock()
	defer t.mu.Unlock()
	if last, ok := t.last.Get(k); ok && seq <= last {
		return false
	}
	t.last.Add(k, seq)
	return true
}
