package queue

import (
	"context"
	"sync"

	"github.com/cadencebot/cadence/internal/player"
)

// Queue is an in-memory FIFO of playback entries for one guild. Entries may
// be added before their backing media has finished downloading; NextEntry
// reports such a head as pending rather than skipping past it, so playback
// order is preserved.
type Queue struct {
	mu      sync.Mutex
	entries []*player.Entry
	added   []func(*player.Entry)
}

func New() *Queue {
	return &Queue{}
}

// Add appends an entry and notifies entry-added listeners.
func (q *Queue) Add(e *player.Entry) {
	q.mu.Lock()
	q.entries = append(q.entries, e)
	listeners := append([]func(*player.Entry){}, q.added...)
	q.mu.Unlock()
	for _, fn := range listeners {
		fn(e)
	}
}

// Append appends an entry without notifying listeners. Used when rebuilding
// a queue from persisted state, where firing autoplay per entry is wrong.
func (q *Queue) Append(e *player.Entry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, e)
}

// PushFront inserts an entry at the head of the queue.
func (q *Queue) PushFront(e *player.Entry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append([]*player.Entry{e}, q.entries...)
}

// NextEntry pops the head of the queue. An empty queue returns (nil, nil).
// A head whose media is still downloading is left in place and reported as
// ErrEntryPending so the caller retries shortly.
func (q *Queue) NextEntry(ctx context.Context) (*player.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return nil, nil
	}
	head := q.entries[0]
	if head.Filename == "" && !head.IsLive {
		return nil, player.ErrEntryPending
	}
	q.entries = q.entries[1:]
	return head, nil
}

// Entries returns a copy of the queued entries in order.
func (q *Queue) Entries() []*player.Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*player.Entry(nil), q.entries...)
}

// Remove deletes the entry at position i, returning it, or nil when out of
// range.
func (q *Queue) Remove(i int) *player.Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	if i < 0 || i >= len(q.entries) {
		return nil
	}
	e := q.entries[i]
	q.entries = append(q.entries[:i], q.entries[i+1:]...)
	return e
}

// Drop removes a specific entry wherever it sits in the queue. Used when an
// entry's media download fails and the entry can never become playable.
func (q *Queue) Drop(e *player.Entry) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, cur := range q.entries {
		if cur == e {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return true
		}
	}
	return false
}

func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = nil
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// OnEntryAdded registers a listener called for every Add.
func (q *Queue) OnEntryAdded(fn func(*player.Entry)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.added = append(q.added, fn)
}

// HasFile reports whether any queued entry still references filename. The
// player consults this before deleting a finished entry's media, since the
// same file may be queued again.
func (q *Queue) HasFile(filename string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range q.entries {
		if e.Filename == filename {
			return true
		}
	}
	return false
}

// MarkReady records the downloaded media path on a queued entry.
func (q *Queue) MarkReady(e *player.Entry, filename string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e.Filename = filename
}
