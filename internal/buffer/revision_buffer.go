package buffer

import (
	"sort"
	"strings"
	"sync"

	v1 "safeflag/pkg/api/v1"
)

const defaultSize = 1000

// RevisionBuffer keeps the most recent state changes, ordered by etcd revision,
// so reconnecting stream clients can catch up without a full snapshot.
type RevisionBuffer struct {
	mu       sync.RWMutex
	messages []v1.Message
	size     int
	head     int
	full     bool
	floor    int64 // changes at or below floor are not replayable
}

func NewRevisionBuffer(size int) *RevisionBuffer {
	if size <= 0 {
		size = defaultSize
	}
	return &RevisionBuffer{
		messages: make([]v1.Message, size),
		size:     size,
	}
}

// Add appends msg. Revisions must be added in increasing order.
func (b *RevisionBuffer) Add(msg v1.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.full {
		b.floor = b.messages[b.head].Revision
	}
	b.messages[b.head] = msg
	b.head = (b.head + 1) % b.size
	if b.head == 0 {
		b.full = true
	}
}

// Reset drops every buffered change and marks rev as the point replay starts from,
// typically the revision of a fresh snapshot.
func (b *RevisionBuffer) Reset(rev int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.head = 0
	b.full = false
	b.floor = rev
}

func (b *RevisionBuffer) window() (start, count int) {
	if b.full {
		return b.head, b.size
	}
	return 0, b.head
}

func (b *RevisionBuffer) at(start, i int) v1.Message {
	return b.messages[(start+i)%b.size]
}

// Latest returns the newest buffered revision, or the reset point when empty.
func (b *RevisionBuffer) Latest() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	start, count := b.window()
	if count == 0 {
		return b.floor
	}
	return b.at(start, count-1).Revision
}

// Since returns messages newer than lastRev for env (every env when empty).
// ok is false when changes after lastRev were already evicted and the caller must resync.
func (b *RevisionBuffer) Since(lastRev int64, env string) ([]v1.Message, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if lastRev < b.floor {
		return nil, false
	}
	start, count := b.window()
	if count == 0 {
		return nil, true
	}

	idx := sort.Search(count, func(i int) bool {
		return b.at(start, i).Revision > lastRev
	})

	var result []v1.Message
	for i := idx; i < count; i++ {
		msg := b.at(start, i)
		if env != "" && !strings.EqualFold(msg.Env, env) {
			continue
		}
		result = append(result, msg)
	}
	return result, true
}
