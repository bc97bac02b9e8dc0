package chatsync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mbeoliero/kit/log"
)

const (
	defaultReadBatchWindow = 50 * time.Millisecond
	defaultReadTimeout     = 10 * time.Second
)

// ReadResult is the outcome of one batched mark-read call
type ReadResult struct {
	ConversationId string
	// MessageIds are the submitted ids. On success all of them are read
	// server-side, whether this call or an earlier one flipped them.
	MessageIds []int64
	// Confirmed are the ids this call flipped
	Confirmed []int64
	Err       error
}

// ReceiptTracker deduplicates and batches mark-read requests. Ids pass the
// ledger first; only net-new ids are queued, and queued ids of one
// conversation are sent in a single call after a short window.
type ReceiptTracker struct {
	backend Backend
	ledger  *ReadLedger
	window  time.Duration
	timeout time.Duration
	onDone  func(ReadResult)

	mu      sync.Mutex
	pending map[string][]int64
	timers  map[string]*time.Timer
	closed  bool
}

// NewReceiptTracker creates a tracker. onDone receives every batch outcome.
func NewReceiptTracker(backend Backend, ledger *ReadLedger, window time.Duration, onDone func(ReadResult)) *ReceiptTracker {
	if window <= 0 {
		window = defaultReadBatchWindow
	}
	if onDone == nil {
		onDone = func(ReadResult) {}
	}
	return &ReceiptTracker{
		backend: backend,
		ledger:  ledger,
		window:  window,
		timeout: defaultReadTimeout,
		onDone:  onDone,
		pending: make(map[string][]int64),
		timers:  make(map[string]*time.Timer),
	}
}

// MarkRead queues ids for conversationId and returns how many were net-new.
// It never blocks on the network.
func (t *ReceiptTracker) MarkRead(conversationId string, ids []int64) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0
	}

	fresh := t.ledger.InsertIfAbsent(ids)
	if len(fresh) == 0 {
		return 0
	}

	t.pending[conversationId] = append(t.pending[conversationId], fresh...)
	if _, ok := t.timers[conversationId]; !ok {
		t.timers[conversationId] = time.AfterFunc(t.window, func() {
			ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
			defer cancel()
			t.flushConversation(ctx, conversationId)
		})
	}
	return len(fresh)
}

// Flush sends every queued batch now
func (t *ReceiptTracker) Flush(ctx context.Context) {
	t.mu.Lock()
	ids := make([]string, 0, len(t.pending))
	for conversationId := range t.pending {
		ids = append(ids, conversationId)
	}
	t.mu.Unlock()

	for _, conversationId := range ids {
		t.flushConversation(ctx, conversationId)
	}
}

// Pending returns the number of queued ids
func (t *ReceiptTracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, ids := range t.pending {
		n += len(ids)
	}
	return n
}

// Close drops queued batches. Queued ids stay in the ledger.
func (t *ReceiptTracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	for conversationId, timer := range t.timers {
		timer.Stop()
		delete(t.timers, conversationId)
	}
	t.pending = make(map[string][]int64)
}

func (t *ReceiptTracker) take(conversationId string) []int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := t.pending[conversationId]
	delete(t.pending, conversationId)
	if timer, ok := t.timers[conversationId]; ok {
		timer.Stop()
		delete(t.timers, conversationId)
	}
	return ids
}

func (t *ReceiptTracker) flushConversation(ctx context.Context, conversationId string) {
	ids := t.take(conversationId)
	if len(ids) == 0 {
		return
	}

	confirmed, err := t.backend.MarkRead(ctx, conversationId, ids)
	switch {
	case err == nil:
		t.onDone(ReadResult{ConversationId: conversationId, MessageIds: ids, Confirmed: confirmed})
	case errors.Is(err, ErrDuplicateSubmission):
		// already read by an earlier attempt or another device
		t.onDone(ReadResult{ConversationId: conversationId, MessageIds: ids})
	case isTransient(err):
		t.ledger.Release(ids)
		log.CtxWarn(ctx, "mark read deferred: conversation_id=%s, count=%d, error=%v", conversationId, len(ids), err)
		t.onDone(ReadResult{ConversationId: conversationId, MessageIds: ids, Err: err})
	default:
		log.CtxWarn(ctx, "mark read rejected: conversation_id=%s, count=%d, error=%v", conversationId, len(ids), err)
		t.onDone(ReadResult{ConversationId: conversationId, MessageIds: ids, Err: err})
	}
}
