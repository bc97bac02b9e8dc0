package service

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/mbeoliero/jobchat/internal/entity"
	"github.com/mbeoliero/jobchat/pkg/protocol"
	"gorm.io/gorm"
)

type fakeUsers struct {
	users map[string]*entity.User
}

func newFakeUsers(ids ...string) *fakeUsers {
	f := &fakeUsers{users: map[string]*entity.User{}}
	for _, id := range ids {
		f.users[id] = &entity.User{Id: id}
	}
	return f
}

func (f *fakeUsers) Create(_ context.Context, user *entity.User) error {
	f.users[user.Id] = user
	return nil
}

func (f *fakeUsers) EnsureExists(_ context.Context, user *entity.User) error {
	if _, ok := f.users[user.Id]; !ok {
		f.users[user.Id] = user
	}
	return nil
}

func (f *fakeUsers) GetById(_ context.Context, id string) (*entity.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return u, nil
}

func (f *fakeUsers) GetByIds(_ context.Context, ids []string) ([]*entity.User, error) {
	var out []*entity.User
	for _, id := range ids {
		if u, ok := f.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeUsers) Exists(_ context.Context, id string) (bool, error) {
	_, ok := f.users[id]
	return ok, nil
}

type fakeConvs struct {
	mu     sync.Mutex
	byId   map[string]*entity.Conversation
	nextId int
}

func newFakeConvs() *fakeConvs {
	return &fakeConvs{byId: map[string]*entity.Conversation{}}
}

func (f *fakeConvs) GetById(_ context.Context, id string) (*entity.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byId[id], nil
}

func (f *fakeConvs) GetOrCreate(_ context.Context, userA, userB string) (*entity.Conversation, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, b := entity.SortParticipants(userA, userB)
	for _, c := range f.byId {
		if c.ParticipantA == a && c.ParticipantB == b {
			return c, false, nil
		}
	}
	f.nextId++
	c := &entity.Conversation{Id: "conv-" + string(rune('0'+f.nextId)), ParticipantA: a, ParticipantB: b, CreatedAt: int64(f.nextId)}
	f.byId[c.Id] = c
	return c, true, nil
}

func (f *fakeConvs) ListByUser(_ context.Context, userId string) ([]*entity.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entity.Conversation
	for _, c := range f.byId {
		if c.HasParticipant(userId) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeConvs) TouchLastMessage(_ context.Context, _ *gorm.DB, id string, at int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.byId[id]; ok && c.LastMessageAt < at {
		c.LastMessageAt = at
	}
	return nil
}

type fakeMessages struct {
	msgs      []*entity.Message
	createErr error
}

func (f *fakeMessages) Create(_ context.Context, _ *gorm.DB, msg *entity.Message) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeMessages) GetByClientMsgId(_ context.Context, senderId, clientMsgId string) (*entity.Message, error) {
	for _, m := range f.msgs {
		if m.SenderId == senderId && m.ClientMsgId == clientMsgId {
			return m, nil
		}
	}
	return nil, nil
}

func (f *fakeMessages) ListBefore(_ context.Context, conversationId string, beforeId int64, pageSize int) ([]*entity.Message, bool, error) {
	var conv []*entity.Message
	for _, m := range f.msgs {
		if m.ConversationId == conversationId && (beforeId == 0 || m.Id < beforeId) {
			conv = append(conv, m)
		}
	}
	sort.Slice(conv, func(i, j int) bool { return conv[i].Id > conv[j].Id })
	hasMore := len(conv) > pageSize
	if hasMore {
		conv = conv[:pageSize]
	}
	out := append([]*entity.Message(nil), conv...)
	sort.Slice(out, func(i, j int) bool { return out[i].Id < out[j].Id })
	return out, hasMore, nil
}

func (f *fakeMessages) MarkRead(_ context.Context, conversationId, receiverId string, ids []int64) ([]int64, error) {
	want := map[int64]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var flipped []int64
	for _, m := range f.msgs {
		if want[m.Id] && m.ConversationId == conversationId && m.ReceiverId == receiverId && !m.IsRead {
			m.IsRead = true
			flipped = append(flipped, m.Id)
		}
	}
	return flipped, nil
}

func (f *fakeMessages) PreviewState(_ context.Context, receiverId string, _ []string, perConversation int) (map[string]*entity.Message, map[string]*entity.UnreadSummary, error) {
	latest := map[string]*entity.Message{}
	unread := map[string]*entity.UnreadSummary{}
	byNewest := append([]*entity.Message(nil), f.msgs...)
	sort.Slice(byNewest, func(i, j int) bool { return byNewest[i].Id > byNewest[j].Id })
	for _, m := range byNewest {
		if _, ok := latest[m.ConversationId]; !ok {
			latest[m.ConversationId] = m
		}
		if m.ReceiverId != receiverId || m.IsRead {
			continue
		}
		u, ok := unread[m.ConversationId]
		if !ok {
			u = &entity.UnreadSummary{}
			unread[m.ConversationId] = u
		}
		u.Count++
		if len(u.RecentIds) < perConversation {
			u.RecentIds = append(u.RecentIds, m.Id)
		}
	}
	return latest, unread, nil
}

type fakeNotifications struct {
	items      []*entity.Notification
	markAllErr error
}

func (f *fakeNotifications) Create(_ context.Context, n *entity.Notification) error {
	f.items = append(f.items, n)
	return nil
}

func (f *fakeNotifications) List(_ context.Context, userId string, page, pageSize int) ([]*entity.Notification, bool, error) {
	var out []*entity.Notification
	for i := len(f.items) - 1; i >= 0; i-- {
		if f.items[i].UserId == userId {
			out = append(out, f.items[i])
		}
	}
	return out, false, nil
}

func (f *fakeNotifications) UnreadCount(_ context.Context, userId string) (int64, error) {
	var n int64
	for _, item := range f.items {
		if item.UserId == userId && item.ReadAt == nil {
			n++
		}
	}
	return n, nil
}

func (f *fakeNotifications) MarkAllRead(_ context.Context, userId string, cutoff, readAt int64) (int64, error) {
	if f.markAllErr != nil {
		return 0, f.markAllErr
	}
	var n int64
	for _, item := range f.items {
		if item.UserId == userId && item.ReadAt == nil && item.CreatedAt <= cutoff {
			at := readAt
			item.ReadAt = &at
			n++
		}
	}
	return n, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*protocol.PushEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event *protocol.PushEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) topics(kind string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		if e.Kind == kind {
			out = append(out, e.Topic)
		}
	}
	return out
}

func inlineTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

var errBoom = errors.New("boom")
