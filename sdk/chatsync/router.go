package chatsync

import (
	"context"
	"sync"

	"github.com/mbeoliero/kit/log"
)

// SubState is the lifecycle state of one topic subscription
type SubState int

const (
	Unsubscribed SubState = iota
	Subscribing
	Active
)

func (s SubState) String() string {
	switch s {
	case Subscribing:
		return "subscribing"
	case Active:
		return "active"
	default:
		return "unsubscribed"
	}
}

// DegradedHandler is told when a topic stops delivering live events. The
// affected views fall back to manual refresh until the topic is active again.
type DegradedHandler func(topic string, err error)

type subscription struct {
	state SubState
	err   error
}

// Router owns topic subscriptions and applies inbound events to the session
// state. Dispatch must be called from a single goroutine.
type Router struct {
	viewer    string
	transport Transport
	tracker   *ReceiptTracker
	ledger    *ReadLedger
	previews  *PreviewList
	feed      *NotificationFeed
	agg       *Aggregator

	degraded   DegradedHandler
	onRestored func(topics []string)
	onKicked   func()

	mu    sync.Mutex
	subs  map[string]*subscription
	views map[string]*History
}

// RouterDeps are the components a Router writes to
type RouterDeps struct {
	Tracker    *ReceiptTracker
	Ledger     *ReadLedger
	Previews   *PreviewList
	Feed       *NotificationFeed
	Aggregator *Aggregator
}

// NewRouter creates a router for viewer
func NewRouter(viewer string, transport Transport, deps RouterDeps) *Router {
	return &Router{
		viewer:     viewer,
		transport:  transport,
		tracker:    deps.Tracker,
		ledger:     deps.Ledger,
		previews:   deps.Previews,
		feed:       deps.Feed,
		agg:        deps.Aggregator,
		degraded:   func(string, error) {},
		onRestored: func([]string) {},
		onKicked:   func() {},
		subs:       make(map[string]*subscription),
		views:      make(map[string]*History),
	}
}

// SetDegradedHandler replaces the degraded callback
func (r *Router) SetDegradedHandler(fn DegradedHandler) {
	if fn != nil {
		r.degraded = fn
	}
}

// Subscribe moves topic from Unsubscribed to Active. A failure leaves it
// Unsubscribed, reports it to the degraded handler and is returned so the
// caller may retry.
func (r *Router) Subscribe(ctx context.Context, topic string) error {
	r.mu.Lock()
	sub, ok := r.subs[topic]
	if ok && sub.state != Unsubscribed {
		r.mu.Unlock()
		return nil
	}
	if !ok {
		sub = &subscription{}
		r.subs[topic] = sub
	}
	sub.state = Subscribing
	r.mu.Unlock()

	err := r.transport.Subscribe(ctx, topic)

	r.mu.Lock()
	if r.subs[topic] != sub {
		// unsubscribed while the request was in flight
		r.mu.Unlock()
		if err == nil {
			_ = r.transport.Unsubscribe(ctx, topic)
		}
		return nil
	}
	if err != nil {
		sub.state = Unsubscribed
		sub.err = err
		r.mu.Unlock()
		log.CtxWarn(ctx, "subscribe failed: topic=%s, error=%v", topic, err)
		r.degraded(topic, err)
		return err
	}
	sub.state = Active
	sub.err = nil
	r.mu.Unlock()
	return nil
}

// Unsubscribe drops topic whatever its state
func (r *Router) Unsubscribe(ctx context.Context, topic string) error {
	r.mu.Lock()
	_, ok := r.subs[topic]
	delete(r.subs, topic)
	r.mu.Unlock()

	if !ok {
		return nil
	}
	return r.transport.Unsubscribe(ctx, topic)
}

// UnsubscribeAll drops every subscription
func (r *Router) UnsubscribeAll(ctx context.Context) {
	r.mu.Lock()
	topics := make([]string, 0, len(r.subs))
	for topic := range r.subs {
		topics = append(topics, topic)
	}
	r.subs = make(map[string]*subscription)
	r.mu.Unlock()

	for _, topic := range topics {
		if err := r.transport.Unsubscribe(ctx, topic); err != nil {
			log.CtxDebug(ctx, "unsubscribe failed: topic=%s, error=%v", topic, err)
		}
	}
}

// State returns the subscription state of topic
func (r *Router) State(topic string) SubState {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sub, ok := r.subs[topic]; ok {
		return sub.state
	}
	return Unsubscribed
}

// Attach routes events of h's conversation into h
func (r *Router) Attach(h *History) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.views[h.ConversationId()] = h
}

// Detach stops routing events into the conversation's buffer
func (r *Router) Detach(conversationId string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.views, conversationId)
}

func (r *Router) view(conversationId string) *History {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.views[conversationId]
}

// Dispatch applies one inbound event
func (r *Router) Dispatch(ev Event) {
	switch ev.Kind {
	case EventNewMessage:
		r.onMessage(ev)
	case EventReadReceipt:
		r.onReceipt(ev)
	case EventNewNotification:
		if r.feed.Apply(ev.Notification) {
			r.agg.Recount()
		}
	case EventTransportDown:
		r.onDown(ev.Err)
	case EventTransportUp:
		r.onUp(ev.Topics)
	case EventKicked:
		r.onKicked()
	}
}

func (r *Router) onMessage(ev Event) {
	msg := ev.Message
	if msg == nil {
		return
	}

	r.previews.ApplyMessage(msg)

	if h := r.view(msg.ConversationId); h != nil {
		h.Insert(msg)
		// only the receiver of an unread message marks it, and only while the
		// conversation is on screen
		if msg.SenderId != r.viewer && msg.ReceiverId == r.viewer && !msg.IsRead {
			r.tracker.MarkRead(msg.ConversationId, []int64{msg.Id})
		}
	}

	r.agg.Recount()
}

func (r *Router) onReceipt(ev Event) {
	receipt := ev.Receipt
	if receipt == nil || len(receipt.MessageIds) == 0 {
		return
	}

	if receipt.ActingUserId == r.viewer {
		// Echo of the viewer's own read, from this device or another one.
		// Recording the ids keeps them from ever being submitted again.
		r.ledger.InsertIfAbsent(receipt.MessageIds)
		if h := r.view(receipt.ConversationId); h != nil {
			h.ApplyRead(receipt.MessageIds)
		}
		if r.previews.ApplyRead(receipt) {
			r.agg.Recount()
		}
		return
	}

	// the counterpart read the viewer's messages
	if h := r.view(receipt.ConversationId); h != nil {
		h.ApplyRead(receipt.MessageIds)
	}
}

func (r *Router) onDown(err error) {
	if err == nil {
		err = ErrTransportUnavailable
	}

	r.mu.Lock()
	var lost []string
	for topic, sub := range r.subs {
		if sub.state == Unsubscribed {
			continue
		}
		sub.state = Unsubscribed
		sub.err = err
		lost = append(lost, topic)
	}
	r.mu.Unlock()

	for _, topic := range lost {
		r.degraded(topic, err)
	}
}

func (r *Router) onUp(restored []string) {
	set := make(map[string]struct{}, len(restored))
	for _, topic := range restored {
		set[topic] = struct{}{}
	}

	r.mu.Lock()
	var missing []string
	for topic, sub := range r.subs {
		if _, ok := set[topic]; ok {
			sub.state = Active
			sub.err = nil
			continue
		}
		if sub.state != Unsubscribed {
			continue
		}
		missing = append(missing, topic)
	}
	r.mu.Unlock()

	for _, topic := range missing {
		r.degraded(topic, ErrTransportUnavailable)
	}
	r.onRestored(restored)
}
