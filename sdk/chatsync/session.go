package chatsync

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/jobchat/pkg/constant"
	"github.com/mbeoliero/jobchat/sdk"
)

const commandBuffer = 256

// Session is the chat state of one logged-in user. Inbound events and state
// updates that follow network calls run on a single reactor goroutine, so
// they are applied one at a time in arrival order. Network calls run on the
// caller's goroutine and never block the reactor.
type Session struct {
	viewer    string
	backend   Backend
	transport Transport
	opts      options

	resolver *Resolver
	store    *HistoryStore
	ledger   *ReadLedger
	tracker  *ReceiptTracker
	router   *Router
	previews *PreviewList
	feed     *NotificationFeed
	agg      *Aggregator

	cmds      chan func()
	done      chan struct{}
	started   atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error

	// keeps bulk loads from landing out of order
	refreshMu sync.Mutex

	mu    sync.Mutex
	views map[string]*ConversationView
}

// NewSession creates a session for viewer. It takes a reference on
// transport, released by Close.
func NewSession(viewer string, backend Backend, transport Transport, opts ...Option) (*Session, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	resolver, err := NewResolver(viewer, backend, o.resolverCacheSize)
	if err != nil {
		return nil, err
	}

	s := &Session{
		viewer:    viewer,
		backend:   backend,
		transport: transport,
		opts:      o,
		resolver:  resolver,
		store:     NewHistoryStore(backend, o.pageSize),
		ledger:    NewReadLedger(),
		previews:  NewPreviewList(viewer),
		feed:      NewNotificationFeed(),
		cmds:      make(chan func(), commandBuffer),
		done:      make(chan struct{}),
		views:     make(map[string]*ConversationView),
	}
	s.agg = NewAggregator(backend, s.previews, s.feed, o.pageSize)
	s.agg.run = s.apply
	s.tracker = NewReceiptTracker(backend, s.ledger, o.readBatchWindow, func(res ReadResult) {
		s.post(func() { s.applyReadResult(res) })
	})
	s.router = NewRouter(viewer, transport, RouterDeps{
		Tracker:    s.tracker,
		Ledger:     s.ledger,
		Previews:   s.previews,
		Feed:       s.feed,
		Aggregator: s.agg,
	})
	s.router.SetDegradedHandler(o.degraded)
	s.router.onRestored = func([]string) {
		go s.resync()
	}
	s.router.onKicked = func() {
		o.kicked(errKicked)
		go func() {
			_ = s.Close(context.Background())
		}()
	}

	transport.Acquire()
	return s, nil
}

// Start runs the reactor, subscribes the per-user topics and loads previews
// and notifications. Subscription failures are reported to the degraded
// handler only; a failed initial load is returned and can be retried with
// Refresh.
func (s *Session) Start(ctx context.Context) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	if !s.started.CompareAndSwap(false, true) {
		return nil
	}

	go s.loop()

	_ = s.router.Subscribe(ctx, constant.UserMessagesTopic(s.viewer))
	_ = s.router.Subscribe(ctx, constant.UserNotificationsTopic(s.viewer))

	return s.Refresh(ctx)
}

func (s *Session) loop() {
	events := s.transport.Events()
	for {
		select {
		case <-s.done:
			return
		case fn := <-s.cmds:
			fn()
		case ev := <-events:
			s.router.Dispatch(ev)
		}
	}
}

// post queues fn on the reactor. It reports false once the session is closed.
func (s *Session) post(fn func()) bool {
	select {
	case s.cmds <- fn:
		return true
	case <-s.done:
		return false
	}
}

// do runs fn on the reactor and waits for it
func (s *Session) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !s.post(func() {
		fn()
		close(finished)
	}) {
		return ErrSessionClosed
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrSessionClosed
	}
}

// apply runs fn on the reactor. Before Start nothing else touches the
// state, so fn runs inline.
func (s *Session) apply(ctx context.Context, fn func()) error {
	if !s.started.Load() {
		if s.closed.Load() {
			return ErrSessionClosed
		}
		fn()
		return nil
	}
	return s.do(ctx, fn)
}

// Viewer returns the session's user id
func (s *Session) Viewer() string {
	return s.viewer
}

// Refresh reloads previews and the first notification page. The fetched
// state is merged on the reactor, so live events that arrived while the
// fetch was in flight are kept.
func (s *Session) Refresh(ctx context.Context) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}

	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	previews, perr := s.backend.FetchPreviews(ctx)
	if perr == nil {
		perr = s.apply(ctx, func() {
			s.previews.Replace(previews)
			s.agg.Recount()
		})
	}
	nerr := s.agg.Refresh(ctx)
	return errors.Join(perr, nerr)
}

// Open returns the view of the conversation with counterpartId, resolving or
// creating the conversation first. Opening the same conversation again
// returns the same view once its first load finished; each Open needs its
// own Close.
func (s *Session) Open(ctx context.Context, counterpartId string) (*ConversationView, error) {
	if s.closed.Load() {
		return nil, ErrSessionClosed
	}

	conversationId, err := s.resolver.Resolve(ctx, counterpartId)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if v, ok := s.views[conversationId]; ok {
		v.refs++
		s.mu.Unlock()
		return s.awaitView(ctx, v)
	}
	v := newConversationView(s, conversationId, counterpartId)
	s.views[conversationId] = v
	s.mu.Unlock()

	// attach before loading so live events arriving meanwhile are kept
	s.router.Attach(v.history)
	if err := s.router.Subscribe(ctx, v.topic); err != nil {
		log.CtxWarn(ctx, "conversation live updates unavailable: conversation_id=%s, error=%v", conversationId, err)
	}

	err = v.Refresh(ctx)
	v.loadErr = err
	close(v.ready)
	if err != nil {
		_ = v.Close(ctx)
		return nil, err
	}
	return v, nil
}

// awaitView waits for the first load of a view another Open created. The
// caller's reference is dropped again if that load failed.
func (s *Session) awaitView(ctx context.Context, v *ConversationView) (*ConversationView, error) {
	select {
	case <-v.ready:
	case <-ctx.Done():
		_ = v.Close(context.WithoutCancel(ctx))
		return nil, ctx.Err()
	case <-s.done:
		return nil, ErrSessionClosed
	}

	if v.loadErr != nil {
		_ = v.Close(ctx)
		return nil, v.loadErr
	}
	return v, nil
}

// releaseView drops one reference and tears the view down with the last one
func (s *Session) releaseView(ctx context.Context, v *ConversationView) error {
	s.mu.Lock()
	if s.views[v.conversationId] != v {
		s.mu.Unlock()
		return nil
	}
	v.refs--
	if v.refs > 0 {
		s.mu.Unlock()
		return nil
	}
	delete(s.views, v.conversationId)
	s.mu.Unlock()

	s.router.Detach(v.conversationId)
	v.history.Clear()
	s.store.Forget(v.conversationId)
	return s.router.Unsubscribe(ctx, v.topic)
}

// Previews returns the chat preview list, most recent activity first
func (s *Session) Previews() []sdk.Preview {
	return s.previews.List()
}

// Notifications returns the loaded notifications, newest first
func (s *Session) Notifications() []sdk.Notification {
	return s.feed.List()
}

// BadgeCount returns unread messages plus unread notifications
func (s *Session) BadgeCount() int64 {
	return s.agg.BadgeCount()
}

// OnBadgeChange registers fn to be called with every new badge count
func (s *Session) OnBadgeChange(fn func(badge int64)) {
	s.agg.OnChange(fn)
}

// MarkAllNotificationsRead marks every notification read. On failure
// nothing changes locally.
func (s *Session) MarkAllNotificationsRead(ctx context.Context) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	return s.agg.MarkAllNotificationsRead(ctx)
}

// SubscriptionState returns the state of a topic subscription
func (s *Session) SubscriptionState(topic string) SubState {
	return s.router.State(topic)
}

// FlushReads sends queued mark-read requests now instead of after the
// batching window
func (s *Session) FlushReads(ctx context.Context) {
	s.tracker.Flush(ctx)
}

// Close unsubscribes everything, drops all buffered state and releases the
// transport. It is safe to call more than once.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.tracker.Close()
		s.router.UnsubscribeAll(ctx)

		s.mu.Lock()
		views := s.views
		s.views = make(map[string]*ConversationView)
		s.mu.Unlock()
		for id, v := range views {
			s.router.Detach(id)
			v.history.Clear()
			s.store.Forget(id)
		}

		close(s.done)
		s.previews.Clear()
		s.feed.Clear()
		s.ledger.Reset()
		s.resolver.Purge()
		s.closeErr = s.transport.Release()
	})
	return s.closeErr
}

// applyReadResult runs on the reactor after a mark-read batch settled
func (s *Session) applyReadResult(res ReadResult) {
	if res.Err != nil {
		return
	}

	if h := s.router.view(res.ConversationId); h != nil {
		h.ApplyRead(res.MessageIds)
	}
	s.previews.ApplyRead(&ReadReceipt{
		ConversationId: res.ConversationId,
		MessageIds:     res.MessageIds,
		ActingUserId:   s.viewer,
	})
	s.agg.Recount()
}

// resync catches up on events missed while the push channel was down
func (s *Session) resync() {
	if s.closed.Load() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.syncTimeout)
	defer cancel()

	if err := s.Refresh(ctx); err != nil {
		log.CtxWarn(ctx, "resync failed: user_id=%s, error=%v", s.viewer, err)
	}

	s.mu.Lock()
	views := make([]*ConversationView, 0, len(s.views))
	for _, v := range s.views {
		views = append(views, v)
	}
	s.mu.Unlock()

	for _, v := range views {
		if err := v.Refresh(ctx); err != nil {
			log.CtxWarn(ctx, "resync conversation failed: conversation_id=%s, error=%v", v.conversationId, err)
		}
	}
}
