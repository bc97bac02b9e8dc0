package chatsync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbeoliero/jobchat/pkg/constant"
)

type routerFixture struct {
	router    *Router
	backend   *fakeBackend
	transport *fakeTransport
	tracker   *ReceiptTracker
	ledger    *ReadLedger
	previews  *PreviewList
	degraded  map[string]error
	restored  [][]string
}

func newRouterFixture(viewer string) *routerFixture {
	f := &routerFixture{
		backend:   newFakeBackend(),
		transport: newFakeTransport(),
		ledger:    NewReadLedger(),
		previews:  NewPreviewList(viewer),
		degraded:  make(map[string]error),
	}
	f.tracker = NewReceiptTracker(f.backend, f.ledger, time.Hour, nil)
	feed := NewNotificationFeed()
	f.router = NewRouter(viewer, f.transport, RouterDeps{
		Tracker:    f.tracker,
		Ledger:     f.ledger,
		Previews:   f.previews,
		Feed:       feed,
		Aggregator: NewAggregator(f.backend, f.previews, feed, 10),
	})
	f.router.SetDegradedHandler(func(topic string, err error) {
		f.degraded[topic] = err
	})
	f.router.onRestored = func(topics []string) {
		f.restored = append(f.restored, topics)
	}
	return f
}

func TestRouter_SubscribeStates(t *testing.T) {
	f := newRouterFixture("js__2")
	ctx := context.Background()
	topic := constant.ChatTopic("c1")

	assert.Equal(t, Unsubscribed, f.router.State(topic))
	require.NoError(t, f.router.Subscribe(ctx, topic))
	assert.Equal(t, Active, f.router.State(topic))

	// already active, no second request
	require.NoError(t, f.router.Subscribe(ctx, topic))
	assert.Equal(t, 1, f.transport.subscribeCalls(topic))

	require.NoError(t, f.router.Unsubscribe(ctx, topic))
	assert.Equal(t, Unsubscribed, f.router.State(topic))
	assert.False(t, f.transport.subscribed(topic))
}

func TestRouter_SubscribeFailureDegrades(t *testing.T) {
	f := newRouterFixture("js__2")
	topic := constant.ChatTopic("c1")
	f.transport.fail(topic, ErrTransportUnavailable)

	err := f.router.Subscribe(context.Background(), topic)
	assert.ErrorIs(t, err, ErrTransportUnavailable)
	assert.Equal(t, Unsubscribed, f.router.State(topic))
	assert.ErrorIs(t, f.degraded[topic], ErrTransportUnavailable)
}

func TestRouter_DownThenUp(t *testing.T) {
	f := newRouterFixture("js__2")
	ctx := context.Background()
	chat := constant.ChatTopic("c1")
	msgs := constant.UserMessagesTopic("js__2")
	require.NoError(t, f.router.Subscribe(ctx, chat))
	require.NoError(t, f.router.Subscribe(ctx, msgs))

	f.router.Dispatch(Event{Kind: EventTransportDown})
	assert.Equal(t, Unsubscribed, f.router.State(chat))
	assert.Contains(t, f.degraded, chat)
	assert.Contains(t, f.degraded, msgs)

	f.degraded = make(map[string]error)
	f.router.Dispatch(Event{Kind: EventTransportUp, Topics: []string{msgs}})
	assert.Equal(t, Active, f.router.State(msgs))
	assert.Equal(t, Unsubscribed, f.router.State(chat))
	assert.Contains(t, f.degraded, chat)
	assert.Equal(t, [][]string{{msgs}}, f.restored)
}

func TestRouter_MessageIntoOpenConversationMarksRead(t *testing.T) {
	f := newRouterFixture("js__2")
	h := NewHistory("c1")
	f.router.Attach(h)

	f.router.Dispatch(Event{Kind: EventNewMessage, Message: incoming(1, "c1", "em__1", "js__2", 10)})
	// the same message again through the per-user topic
	f.router.Dispatch(Event{Kind: EventNewMessage, Message: incoming(1, "c1", "em__1", "js__2", 10)})

	assert.Equal(t, 1, h.Len())
	assert.Equal(t, 1, f.tracker.Pending())
	assert.Equal(t, int64(1), f.previews.UnreadTotal())
}

func TestRouter_ClosedConversationOnlyUpdatesPreview(t *testing.T) {
	f := newRouterFixture("js__2")

	f.router.Dispatch(Event{Kind: EventNewMessage, Message: incoming(1, "c1", "em__1", "js__2", 10)})

	assert.Equal(t, 0, f.tracker.Pending())
	assert.Equal(t, int64(1), f.previews.UnreadTotal())
}

func TestRouter_OwnReceiptEchoDoesNotResubmit(t *testing.T) {
	f := newRouterFixture("js__2")
	h := NewHistory("c1")
	f.router.Attach(h)
	f.previews.ApplyMessage(incoming(1, "c1", "em__1", "js__2", 10))

	// another device of the viewer read the message
	f.router.Dispatch(Event{Kind: EventReadReceipt, Receipt: &ReadReceipt{
		ConversationId: "c1", MessageIds: []int64{1}, ActingUserId: "js__2",
	}})
	assert.True(t, f.ledger.Contains(1))
	assert.Equal(t, int64(0), f.previews.UnreadTotal())

	// the message itself arrives later and is not submitted again
	f.router.Dispatch(Event{Kind: EventNewMessage, Message: incoming(1, "c1", "em__1", "js__2", 10)})
	f.tracker.Flush(context.Background())
	assert.Empty(t, f.backend.marks())
	msg, ok := h.Get(1)
	require.True(t, ok)
	assert.True(t, msg.IsRead)
}

func TestRouter_CounterpartReceiptUpdatesHistory(t *testing.T) {
	f := newRouterFixture("em__1")
	h := NewHistory("c1")
	f.router.Attach(h)
	h.Insert(incoming(1, "c1", "em__1", "js__2", 10))

	f.router.Dispatch(Event{Kind: EventReadReceipt, Receipt: &ReadReceipt{
		ConversationId: "c1", MessageIds: []int64{1}, ActingUserId: "js__2",
	}})

	msg, ok := h.Get(1)
	require.True(t, ok)
	assert.True(t, msg.IsRead)
	assert.Empty(t, f.backend.marks())
}

func TestRouter_Kicked(t *testing.T) {
	f := newRouterFixture("js__2")
	kicked := false
	f.router.onKicked = func() { kicked = true }

	f.router.Dispatch(Event{Kind: EventKicked})
	assert.True(t, kicked)
}
