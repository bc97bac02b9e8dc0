package chatsync

import (
	"sort"
	"sync"

	"github.com/mbeoliero/jobchat/sdk"
)

const previewSnippetLen = 80

// PreviewList keeps one summary row per conversation of the viewer. It is
// seeded by a bulk fetch and kept current by per-user events, so no
// conversation has to be open for its row to update.
//
// Unread counts are kept as sets of message ids. A fetch and the live
// events racing it merge the same way whatever order they land in, and a
// receipt for a message not seen yet only removes that message.
type PreviewList struct {
	mu     sync.RWMutex
	viewer string
	items  map[string]*previewRow
	// ids the viewer has read; read is final
	read map[int64]struct{}
}

// previewRow remembers the newest message covered by the last bulk fetch.
// Messages at or before that mark were accounted for by the fetch.
type previewRow struct {
	sdk.Preview
	markAt int64
	markId int64
	// unread ids with their creation time
	unread map[int64]int64
	// unread messages older than every id the fetch listed, known by count only
	overflow     int64
	oldestListed int64
}

func (p *previewRow) covers(at, id int64) bool {
	return p.markId != 0 && !after(at, id, p.markAt, p.markId)
}

func (p *previewRow) recount() {
	p.UnreadCount = int64(len(p.unread)) + p.overflow
}

// NewPreviewList creates an empty list for viewer
func NewPreviewList(viewer string) *PreviewList {
	return &PreviewList{
		viewer: viewer,
		items:  make(map[string]*previewRow),
		read:   make(map[int64]struct{}),
	}
}

// Replace merges a bulk fetch into the list. Each fetched row replaces the
// older state of its conversation, except for messages newer than the
// fetch, which are kept, and ids read meanwhile, which stay read. Rows the
// fetch did not return are kept.
func (l *PreviewList) Replace(previews []*sdk.Preview) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, p := range previews {
		if p == nil {
			continue
		}
		row := &previewRow{
			Preview: *p,
			markAt:  p.LastActivityAt,
			markId:  p.LastMessageId,
			unread:  make(map[int64]int64, len(p.UnreadIds)),
		}
		row.UnreadIds = nil
		for _, id := range p.UnreadIds {
			if row.oldestListed == 0 || id < row.oldestListed {
				row.oldestListed = id
			}
			if _, ok := l.read[id]; !ok {
				row.unread[id] = p.LastActivityAt
			}
		}
		row.overflow = max(0, p.UnreadCount-int64(len(p.UnreadIds)))
		if row.oldestListed == 0 {
			row.oldestListed = p.LastMessageId + 1
		}

		if old, ok := l.items[p.ConversationId]; ok {
			for id, at := range old.unread {
				if _, ok := l.read[id]; !ok && !row.covers(at, id) {
					row.unread[id] = at
				}
			}
			if old.LastMessageId != 0 && after(old.LastActivityAt, old.LastMessageId, row.LastActivityAt, row.LastMessageId) {
				row.LastMessageId = old.LastMessageId
				row.LastSenderId = old.LastSenderId
				row.LastMessage = old.LastMessage
				row.LastActivityAt = old.LastActivityAt
			}
		}
		row.recount()
		l.items[p.ConversationId] = row
	}
}

// ApplyMessage folds a new message into its conversation's row and reports
// whether the row changed. Unknown conversations get a new row. Delivering
// the same message twice has no further effect.
func (l *PreviewList) ApplyMessage(msg *sdk.Message) bool {
	if msg == nil || (msg.SenderId != l.viewer && msg.ReceiverId != l.viewer) {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.items[msg.ConversationId]
	if !ok {
		counterpart := msg.SenderId
		if counterpart == l.viewer {
			counterpart = msg.ReceiverId
		}
		p = &previewRow{
			Preview: sdk.Preview{ConversationId: msg.ConversationId, CounterpartId: counterpart},
			unread:  make(map[int64]int64),
		}
		l.items[msg.ConversationId] = p
	}

	changed := false
	if p.LastMessageId == 0 || after(msg.CreatedAt, msg.Id, p.LastActivityAt, p.LastMessageId) {
		p.LastMessageId = msg.Id
		p.LastSenderId = msg.SenderId
		p.LastMessage = snippet(msg.Content, previewSnippetLen)
		p.LastActivityAt = msg.CreatedAt
		changed = true
	}

	if msg.ReceiverId != l.viewer || msg.IsRead || p.covers(msg.CreatedAt, msg.Id) {
		return changed
	}
	if _, read := l.read[msg.Id]; read {
		return changed
	}
	if _, dup := p.unread[msg.Id]; !dup {
		p.unread[msg.Id] = msg.CreatedAt
		p.recount()
		changed = true
	}
	return changed
}

// ApplyRead applies a read receipt. Only reads by the viewer change unread
// counts. Ids the list has not seen are remembered, so the message does not
// count as unread when it arrives later.
func (l *PreviewList) ApplyRead(r *ReadReceipt) bool {
	if r == nil || r.ActingUserId != l.viewer {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	p := l.items[r.ConversationId]
	changed := false
	for _, id := range r.MessageIds {
		if _, ok := l.read[id]; ok {
			continue
		}
		l.read[id] = struct{}{}
		if p == nil {
			continue
		}
		if _, ok := p.unread[id]; ok {
			delete(p.unread, id)
			changed = true
			continue
		}
		// below the listed ids only the counted remainder can hold it
		if p.overflow > 0 && id < p.oldestListed {
			p.overflow--
			changed = true
		}
	}
	if changed {
		p.recount()
	}
	return changed
}

// List returns the rows ordered by last activity, newest first
func (l *PreviewList) List() []sdk.Preview {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]sdk.Preview, 0, len(l.items))
	for _, p := range l.items {
		out = append(out, p.Preview)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastActivityAt != out[j].LastActivityAt {
			return out[i].LastActivityAt > out[j].LastActivityAt
		}
		return out[i].ConversationId < out[j].ConversationId
	})
	return out
}

// Get returns the row of conversationId
func (l *PreviewList) Get(conversationId string) (sdk.Preview, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	p, ok := l.items[conversationId]
	if !ok {
		return sdk.Preview{}, false
	}
	return p.Preview, true
}

// UnreadTotal sums unread counts over all conversations
func (l *PreviewList) UnreadTotal() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var total int64
	for _, p := range l.items {
		total += p.UnreadCount
	}
	return total
}

// Clear drops every row and the dedup state
func (l *PreviewList) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.items = make(map[string]*previewRow)
	l.read = make(map[int64]struct{})
}

// after reports whether message (at, id) is newer than message (markAt, markId)
func after(at, id, markAt, markId int64) bool {
	if at != markAt {
		return at > markAt
	}
	return id > markId
}

func snippet(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
