package chatsync

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/mbeoliero/jobchat/sdk"
)

type markCall struct {
	conversationId string
	ids            []int64
}

// fakeBackend serves canned data and records calls. Hooks override the
// default behaviour when set.
type fakeBackend struct {
	mu sync.Mutex

	// sender and receiver of messages created by SendMessage
	self string
	peer string

	conversations map[string]string
	messages      map[string][]*sdk.Message
	previews      []*sdk.Preview
	notifications *sdk.NotificationPage

	resolveCalls int
	fetchCalls   int
	sendCalls    int
	markCalls    []markCall
	cursors      []int64

	resolveHook func(ctx context.Context, counterpartId string) (string, error)
	sendHook    func(attempt int) error
	markHook    func(call markCall) ([]int64, error)
	markAllHook func() (*sdk.MarkAllReadResult, error)
	previewErr  error
	fetchHook   func() error
	// runs after the preview snapshot is taken, before it is returned
	previewHook func()
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		self:          "js__2",
		peer:          "em__1",
		conversations: make(map[string]string),
		messages:      make(map[string][]*sdk.Message),
		notifications: &sdk.NotificationPage{},
	}
}

func (b *fakeBackend) ResolveConversation(ctx context.Context, counterpartId string) (string, error) {
	b.mu.Lock()
	b.resolveCalls++
	hook := b.resolveHook
	id, ok := b.conversations[counterpartId]
	b.mu.Unlock()

	if hook != nil {
		return hook(ctx, counterpartId)
	}
	if !ok {
		return "", ErrInvalidParticipant
	}
	return id, nil
}

// FetchMessages pages newest first by id cursor like the API
func (b *fakeBackend) FetchMessages(_ context.Context, conversationId string, beforeId int64, pageSize int) ([]*sdk.Message, bool, error) {
	b.mu.Lock()
	hook := b.fetchHook
	b.mu.Unlock()
	if hook != nil {
		if err := hook(); err != nil {
			return nil, false, err
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.fetchCalls++
	b.cursors = append(b.cursors, beforeId)

	var all []*sdk.Message
	for _, m := range b.messages[conversationId] {
		if beforeId == 0 || m.Id < beforeId {
			all = append(all, m)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Id > all[j].Id })

	hasMore := len(all) > pageSize
	if hasMore {
		all = all[:pageSize]
	}
	out := make([]*sdk.Message, 0, len(all))
	for _, m := range all {
		cp := *m
		out = append(out, &cp)
	}
	return out, hasMore, nil
}

func (b *fakeBackend) SendMessage(_ context.Context, conversationId, clientMsgId, content string) (*sdk.Message, error) {
	b.mu.Lock()
	b.sendCalls++
	attempt := b.sendCalls
	hook := b.sendHook
	b.mu.Unlock()

	if hook != nil {
		if err := hook(attempt); err != nil {
			return nil, err
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, m := range b.messages[conversationId] {
		if m.ClientMsgId == clientMsgId {
			cp := *m
			return &cp, nil
		}
	}
	msg := &sdk.Message{
		Id:             int64(1000 + len(b.messages[conversationId])),
		ConversationId: conversationId,
		ClientMsgId:    clientMsgId,
		SenderId:       b.self,
		ReceiverId:     b.peer,
		Content:        content,
		CreatedAt:      int64(1000 + len(b.messages[conversationId])),
	}
	b.messages[conversationId] = append(b.messages[conversationId], msg)
	cp := *msg
	return &cp, nil
}

func (b *fakeBackend) MarkRead(_ context.Context, conversationId string, messageIds []int64) ([]int64, error) {
	call := markCall{conversationId: conversationId, ids: append([]int64(nil), messageIds...)}

	b.mu.Lock()
	b.markCalls = append(b.markCalls, call)
	hook := b.markHook
	b.mu.Unlock()

	if hook != nil {
		return hook(call)
	}
	return call.ids, nil
}

func (b *fakeBackend) FetchPreviews(context.Context) ([]*sdk.Preview, error) {
	b.mu.Lock()
	if b.previewErr != nil {
		b.mu.Unlock()
		return nil, b.previewErr
	}
	out := make([]*sdk.Preview, 0, len(b.previews))
	for _, p := range b.previews {
		cp := *p
		cp.UnreadIds = append([]int64(nil), p.UnreadIds...)
		out = append(out, &cp)
	}
	hook := b.previewHook
	b.mu.Unlock()

	if hook != nil {
		hook()
	}
	return out, nil
}

func (b *fakeBackend) fetchCursors() []int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]int64(nil), b.cursors...)
}

func (b *fakeBackend) FetchNotifications(context.Context, int, int) (*sdk.NotificationPage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	page := &sdk.NotificationPage{HasMore: b.notifications.HasMore, UnreadCount: b.notifications.UnreadCount}
	for _, n := range b.notifications.Notifications {
		cp := *n
		page.Notifications = append(page.Notifications, &cp)
	}
	return page, nil
}

func (b *fakeBackend) MarkAllNotificationsRead(context.Context) (*sdk.MarkAllReadResult, error) {
	b.mu.Lock()
	hook := b.markAllHook
	b.mu.Unlock()

	if hook != nil {
		return hook()
	}
	return &sdk.MarkAllReadResult{Cutoff: 1 << 40, ReadAt: 1 << 40}, nil
}

func (b *fakeBackend) marks() []markCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]markCall(nil), b.markCalls...)
}

func (b *fakeBackend) resolves() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.resolveCalls
}

func (b *fakeBackend) sends() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sendCalls
}

// fakeTransport confirms subscriptions unless a topic is set to fail
type fakeTransport struct {
	mu       sync.Mutex
	events   chan Event
	topics   map[string]bool
	failures map[string]error
	subCalls map[string]int
	refs     int
	released bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		events:   make(chan Event),
		topics:   make(map[string]bool),
		failures: make(map[string]error),
		subCalls: make(map[string]int),
	}
}

func (t *fakeTransport) Subscribe(_ context.Context, topic string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.subCalls[topic]++
	if err := t.failures[topic]; err != nil {
		return err
	}
	t.topics[topic] = true
	return nil
}

func (t *fakeTransport) Unsubscribe(_ context.Context, topic string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.topics, topic)
	return nil
}

func (t *fakeTransport) Events() <-chan Event {
	return t.events
}

func (t *fakeTransport) Acquire() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.refs++
}

func (t *fakeTransport) Release() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.refs--
	if t.refs == 0 {
		t.released = true
	}
	return nil
}

func (t *fakeTransport) fail(topic string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures[topic] = err
}

func (t *fakeTransport) subscribed(topic string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.topics[topic]
}

func (t *fakeTransport) subscribeCalls(topic string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.subCalls[topic]
}

func (t *fakeTransport) isReleased() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.released
}

func incoming(id int64, conversationId, from, to string, at int64) *sdk.Message {
	return &sdk.Message{
		Id:             id,
		ConversationId: conversationId,
		ClientMsgId:    "c" + strconv.FormatInt(id, 10),
		SenderId:       from,
		ReceiverId:     to,
		Content:        "message",
		CreatedAt:      at,
	}
}
