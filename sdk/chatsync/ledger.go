package chatsync

import "sync"

// ReadLedger is the session-wide set of message ids already submitted for a
// read-mark or already known to be read by the viewer. The local read path
// and the echo path both go through InsertIfAbsent, so an id is submitted to
// the backend at most once.
type ReadLedger struct {
	mu  sync.Mutex
	ids map[int64]struct{}
}

// NewReadLedger creates an empty ledger
func NewReadLedger() *ReadLedger {
	return &ReadLedger{ids: make(map[int64]struct{})}
}

// InsertIfAbsent adds ids and returns the subset that was not present, in
// input order with duplicates removed
func (l *ReadLedger) InsertIfAbsent(ids []int64) []int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	var fresh []int64
	for _, id := range ids {
		if _, ok := l.ids[id]; ok {
			continue
		}
		l.ids[id] = struct{}{}
		fresh = append(fresh, id)
	}
	return fresh
}

// Release forgets ids so a later MarkRead may submit them again. Only used
// after a transient failure.
func (l *ReadLedger) Release(ids []int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, id := range ids {
		delete(l.ids, id)
	}
}

// Contains reports whether id is in the ledger
func (l *ReadLedger) Contains(id int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.ids[id]
	return ok
}

// Len returns the number of ids in the ledger
func (l *ReadLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.ids)
}

// Reset empties the ledger
func (l *ReadLedger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ids = make(map[int64]struct{})
}
