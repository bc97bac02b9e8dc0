package chatsync

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mbeoliero/jobchat/sdk"
)

// maxPendingReads bounds read flags buffered for messages not seen yet
const maxPendingReads = 1024

// History is the in-memory message buffer of one open conversation. It is a
// map keyed by message id with a sorted view derived on demand, so pages and
// live events may arrive in any order.
type History struct {
	mu             sync.RWMutex
	conversationId string
	messages       map[int64]*sdk.Message
	sorted         []*sdk.Message
	dirty          bool
	// read flags received before the message itself
	pendingReads map[int64]struct{}
}

// NewHistory creates an empty buffer for conversationId
func NewHistory(conversationId string) *History {
	return &History{
		conversationId: conversationId,
		messages:       make(map[int64]*sdk.Message),
		pendingReads:   make(map[int64]struct{}),
	}
}

// ConversationId returns the conversation the buffer belongs to
func (h *History) ConversationId() string {
	return h.conversationId
}

// Insert adds msg unless a message with the same id is present. It reports
// whether the buffer changed.
func (h *History) Insert(msg *sdk.Message) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.insertLocked(msg)
}

// Merge inserts every message and returns how many were new
func (h *History) Merge(msgs []*sdk.Message) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	added := 0
	for _, msg := range msgs {
		if h.insertLocked(msg) {
			added++
		}
	}
	return added
}

func (h *History) insertLocked(msg *sdk.Message) bool {
	if msg == nil || msg.ConversationId != h.conversationId {
		return false
	}

	if existing, ok := h.messages[msg.Id]; ok {
		// the read flag never reverts, so a stale copy cannot unset it
		if msg.IsRead && !existing.IsRead {
			existing.IsRead = true
			return true
		}
		return false
	}

	cp := *msg
	if _, ok := h.pendingReads[cp.Id]; ok {
		cp.IsRead = true
		delete(h.pendingReads, cp.Id)
	}
	h.messages[cp.Id] = &cp
	h.dirty = true
	return true
}

// ApplyRead flips the read flag of the listed messages. Ids not in the
// buffer yet are remembered and applied when the message arrives. It
// returns the ids whose flag changed.
func (h *History) ApplyRead(ids []int64) []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	var flipped []int64
	for _, id := range ids {
		msg, ok := h.messages[id]
		if !ok {
			if len(h.pendingReads) < maxPendingReads {
				h.pendingReads[id] = struct{}{}
			}
			continue
		}
		if !msg.IsRead {
			msg.IsRead = true
			flipped = append(flipped, id)
		}
	}
	return flipped
}

// Snapshot returns copies of all messages ordered oldest to newest
func (h *History) Snapshot() []sdk.Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sortLocked()
	out := make([]sdk.Message, len(h.sorted))
	for i, msg := range h.sorted {
		out[i] = *msg
	}
	return out
}

// UnreadFor returns the ids of unread messages received by viewer, oldest first
func (h *History) UnreadFor(viewer string) []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sortLocked()
	var ids []int64
	for _, msg := range h.sorted {
		if msg.ReceiverId == viewer && !msg.IsRead {
			ids = append(ids, msg.Id)
		}
	}
	return ids
}

// Get returns a copy of the message with id
func (h *History) Get(id int64) (sdk.Message, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	msg, ok := h.messages[id]
	if !ok {
		return sdk.Message{}, false
	}
	return *msg, true
}

// Len returns the number of buffered messages
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages)
}

// PendingReads returns how many read flags wait for their message
func (h *History) PendingReads() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.pendingReads)
}

// Clear drops every message and buffered read flag
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.messages = make(map[int64]*sdk.Message)
	h.pendingReads = make(map[int64]struct{})
	h.sorted = nil
	h.dirty = false
}

func (h *History) sortLocked() {
	if !h.dirty && len(h.sorted) == len(h.messages) {
		return
	}
	sorted := make([]*sdk.Message, 0, len(h.messages))
	for _, msg := range h.messages {
		sorted = append(sorted, msg)
	}
	sortMessages(sorted)
	h.sorted = sorted
	h.dirty = false
}

// sortMessages orders by creation time, then id
func sortMessages(msgs []*sdk.Message) {
	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].CreatedAt != msgs[j].CreatedAt {
			return msgs[i].CreatedAt < msgs[j].CreatedAt
		}
		return msgs[i].Id < msgs[j].Id
	})
}

// HistoryStore pages a conversation's history, page 1 being the newest
// window. It remembers where each fetched page ended, so page n+1 always
// starts below every message pages 1..n returned, however many messages
// arrived in between.
type HistoryStore struct {
	backend  Backend
	pageSize int

	mu sync.Mutex
	// bounds[cid][n-1] is the cursor of page n+1
	bounds map[string][]int64
}

// NewHistoryStore creates a pager over backend
func NewHistoryStore(backend Backend, pageSize int) *HistoryStore {
	if pageSize <= 0 {
		pageSize = sdk.DefaultPageSize
	}
	return &HistoryStore{backend: backend, pageSize: pageSize, bounds: make(map[string][]int64)}
}

// Fetch returns page of conversationId ordered oldest to newest and whether
// older pages exist. Pages not fetched before are walked to first.
func (s *HistoryStore) Fetch(ctx context.Context, conversationId string, page int) ([]*sdk.Message, bool, error) {
	if page < 1 {
		return nil, false, fmt.Errorf("chatsync: invalid page %d", page)
	}

	for known := s.known(conversationId); known+1 < page; known = s.known(conversationId) {
		_, more, err := s.Fetch(ctx, conversationId, known+1)
		if err != nil || !more {
			return nil, false, err
		}
		if s.known(conversationId) == known {
			// the walked page came back empty
			return nil, false, nil
		}
	}

	var before int64
	if page > 1 {
		s.mu.Lock()
		before = s.bounds[conversationId][page-2]
		s.mu.Unlock()
	}

	msgs, hasMore, err := s.backend.FetchMessages(ctx, conversationId, before, s.pageSize)
	if err != nil {
		return nil, false, err
	}
	sortMessages(msgs)
	if len(msgs) > 0 {
		s.record(conversationId, page, oldestId(msgs))
	}
	return msgs, hasMore, nil
}

// Forget drops the page cursors of conversationId
func (s *HistoryStore) Forget(conversationId string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bounds, conversationId)
}

// known returns how many pages have a recorded end
func (s *HistoryStore) known(conversationId string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bounds[conversationId])
}

func (s *HistoryStore) record(conversationId string, page int, oldest int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.bounds[conversationId]
	switch {
	case page-1 < len(b):
		// a refetched page only ever moves its end down
		b[page-1] = min(b[page-1], oldest)
	case page-1 == len(b):
		b = append(b, oldest)
	}
	s.bounds[conversationId] = b
}

func oldestId(msgs []*sdk.Message) int64 {
	oldest := msgs[0].Id
	for _, m := range msgs[1:] {
		oldest = min(oldest, m.Id)
	}
	return oldest
}
