package chatsync

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/mbeoliero/jobchat/pkg/constant"
	"github.com/mbeoliero/jobchat/sdk"
)

// ErrEmptyMessage is returned by Send for blank content
var ErrEmptyMessage = errors.New("chatsync: empty message")

// ConversationView is an open conversation. It owns the conversation's
// message buffer and its chat.<id> subscription for as long as it is open.
type ConversationView struct {
	session        *Session
	conversationId string
	counterpartId  string
	topic          string
	history        *History

	// guarded by session.mu
	refs int
	// closed once the first load finished; loadErr is its result
	ready   chan struct{}
	loadErr error

	mu       sync.Mutex
	loaded   bool
	nextPage int
	hasMore  bool
}

func newConversationView(s *Session, conversationId, counterpartId string) *ConversationView {
	return &ConversationView{
		session:        s,
		conversationId: conversationId,
		counterpartId:  counterpartId,
		topic:          constant.ChatTopic(conversationId),
		history:        NewHistory(conversationId),
		refs:           1,
		ready:          make(chan struct{}),
		nextPage:       1,
	}
}

// ConversationId returns the conversation id
func (v *ConversationView) ConversationId() string {
	return v.conversationId
}

// CounterpartId returns the other participant
func (v *ConversationView) CounterpartId() string {
	return v.counterpartId
}

// Messages returns the buffered messages, oldest first
func (v *ConversationView) Messages() []sdk.Message {
	return v.history.Snapshot()
}

// HasMore reports whether older pages remain
func (v *ConversationView) HasMore() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.hasMore
}

// Live reports whether the conversation topic is delivering events. When it
// is not, callers poll with Refresh.
func (v *ConversationView) Live() bool {
	return v.session.router.State(v.topic) == Active
}

// Resubscribe retries the conversation topic subscription
func (v *ConversationView) Resubscribe(ctx context.Context) error {
	if v.session.closed.Load() {
		return ErrSessionClosed
	}
	return v.session.router.Subscribe(ctx, v.topic)
}

// Refresh fetches the newest page and merges it into the buffer. It is also
// the manual fallback while the push channel is degraded.
func (v *ConversationView) Refresh(ctx context.Context) error {
	if v.session.closed.Load() {
		return ErrSessionClosed
	}

	msgs, hasMore, err := v.session.store.Fetch(ctx, v.conversationId, 1)
	if err != nil {
		return err
	}
	v.history.Merge(msgs)

	v.mu.Lock()
	if !v.loaded {
		v.loaded = true
		v.hasMore = hasMore
		v.nextPage = 2
	}
	v.mu.Unlock()

	v.markVisibleRead()
	return nil
}

// LoadOlder fetches the next older page and returns how many messages were
// new to the buffer
func (v *ConversationView) LoadOlder(ctx context.Context) (int, error) {
	if v.session.closed.Load() {
		return 0, ErrSessionClosed
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.loaded && !v.hasMore {
		return 0, nil
	}

	page := v.nextPage
	msgs, hasMore, err := v.session.store.Fetch(ctx, v.conversationId, page)
	if err != nil {
		return 0, err
	}
	added := v.history.Merge(msgs)
	v.loaded = true
	v.hasMore = hasMore
	v.nextPage = page + 1

	v.markVisibleRead()
	return added, nil
}

// Send posts content to the conversation. Transient failures are retried
// with the same client message id, so the message is stored at most once.
func (v *ConversationView) Send(ctx context.Context, content string) (*sdk.Message, error) {
	if v.session.closed.Load() {
		return nil, ErrSessionClosed
	}
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyMessage
	}

	clientMsgId := uuid.NewString()
	var msg *sdk.Message
	op := func() error {
		m, err := v.session.backend.SendMessage(ctx, v.conversationId, clientMsgId, content)
		if err == nil {
			msg = m
			return nil
		}
		if isTransient(err) {
			return err
		}
		return backoff.Permanent(err)
	}
	if err := backoff.Retry(op, backoff.WithContext(v.session.opts.sendBackoff(), ctx)); err != nil {
		return nil, err
	}

	sent := *msg
	_ = v.session.apply(ctx, func() {
		v.history.Insert(&sent)
		if v.session.previews.ApplyMessage(&sent) {
			v.session.agg.Recount()
		}
	})
	return msg, nil
}

// Close unsubscribes the conversation topic and drops the buffer once every
// Open of this conversation has been closed
func (v *ConversationView) Close(ctx context.Context) error {
	return v.session.releaseView(ctx, v)
}

// markVisibleRead hands every unread incoming message to the tracker
func (v *ConversationView) markVisibleRead() {
	ids := v.history.UnreadFor(v.session.viewer)
	if len(ids) > 0 {
		v.session.tracker.MarkRead(v.conversationId, ids)
	}
}
