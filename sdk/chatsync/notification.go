package chatsync

import (
	"context"
	"sort"
	"sync"

	"github.com/mbeoliero/jobchat/sdk"
)

// NotificationFeed holds the loaded notifications and the unread count. The
// count starts from the server total and then follows push events.
type NotificationFeed struct {
	mu      sync.RWMutex
	items   map[int64]*sdk.Notification
	unread  int64
	hasMore bool
}

// NewNotificationFeed creates an empty feed
func NewNotificationFeed() *NotificationFeed {
	return &NotificationFeed{items: make(map[int64]*sdk.Notification)}
}

// Replace loads the first page of the feed. Pushed notifications newer
// than everything on the page arrived after it was read and are kept.
func (f *NotificationFeed) Replace(page *sdk.NotificationPage) {
	f.mu.Lock()
	defer f.mu.Unlock()

	items := make(map[int64]*sdk.Notification, len(page.Notifications))
	var newestAt, newestId int64
	for _, n := range page.Notifications {
		if n == nil {
			continue
		}
		cp := *n
		items[cp.Id] = &cp
		if after(cp.CreatedAt, cp.Id, newestAt, newestId) {
			newestAt, newestId = cp.CreatedAt, cp.Id
		}
	}

	unread := page.UnreadCount
	for id, n := range f.items {
		if _, ok := items[id]; ok || !after(n.CreatedAt, n.Id, newestAt, newestId) {
			continue
		}
		items[id] = n
		if !n.IsRead() {
			unread++
		}
	}
	f.items = items
	f.unread = unread
	f.hasMore = page.HasMore
}

// Apply adds a pushed notification. Duplicates are ignored.
func (f *NotificationFeed) Apply(n *sdk.Notification) bool {
	if n == nil {
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.items[n.Id]; ok {
		return false
	}
	cp := *n
	f.items[cp.Id] = &cp
	if !cp.IsRead() {
		f.unread++
	}
	return true
}

// markAllRead applies a successful mark-all-read. Notifications created
// after cutoff arrived while the call was in flight and stay unread.
func (f *NotificationFeed) markAllRead(res *sdk.MarkAllReadResult) {
	f.mu.Lock()
	defer f.mu.Unlock()

	readAt := res.ReadAt
	var remaining int64
	for _, n := range f.items {
		if n.IsRead() {
			continue
		}
		if n.CreatedAt <= res.Cutoff {
			at := readAt
			n.ReadAt = &at
			continue
		}
		remaining++
	}
	f.unread = remaining
}

// UnreadCount returns the number of unread notifications
func (f *NotificationFeed) UnreadCount() int64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.unread
}

// List returns the loaded notifications, newest first
func (f *NotificationFeed) List() []sdk.Notification {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]sdk.Notification, 0, len(f.items))
	for _, n := range f.items {
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].Id > out[j].Id
	})
	return out
}

// Clear empties the feed
func (f *NotificationFeed) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.items = make(map[int64]*sdk.Notification)
	f.unread = 0
	f.hasMore = false
}

// Aggregator combines unread chat messages and unread notifications into one
// badge count. The two sources keep their own counters and are only summed
// here.
type Aggregator struct {
	backend  Backend
	previews *PreviewList
	feed     *NotificationFeed
	pageSize int

	// run applies fetched state; the session points it at its reactor
	run func(ctx context.Context, fn func()) error

	mu        sync.Mutex
	listeners []func(int64)
	// held from computing a badge until its listeners returned
	emitMu sync.Mutex
	last   int64
	// serializes mark-all-read against itself
	markMu sync.Mutex
}

// NewAggregator creates an aggregator over the two sources
func NewAggregator(backend Backend, previews *PreviewList, feed *NotificationFeed, pageSize int) *Aggregator {
	if pageSize <= 0 {
		pageSize = sdk.DefaultPageSize
	}
	return &Aggregator{
		backend:  backend,
		previews: previews,
		feed:     feed,
		pageSize: pageSize,
		run: func(_ context.Context, fn func()) error {
			fn()
			return nil
		},
	}
}

// BadgeCount returns unread messages plus unread notifications
func (a *Aggregator) BadgeCount() int64 {
	return a.previews.UnreadTotal() + a.feed.UnreadCount()
}

// OnChange registers fn to be called with the new badge count whenever
// Recount observes a change
func (a *Aggregator) OnChange(fn func(badge int64)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = append(a.listeners, fn)
}

// Recount recomputes the badge and notifies listeners if it changed.
// Listeners see badges in the order they were computed and must not call
// Recount themselves.
func (a *Aggregator) Recount() int64 {
	a.emitMu.Lock()
	defer a.emitMu.Unlock()

	badge := a.BadgeCount()
	if badge == a.last {
		return badge
	}
	a.last = badge

	a.mu.Lock()
	listeners := append([]func(int64){}, a.listeners...)
	a.mu.Unlock()

	for _, fn := range listeners {
		fn(badge)
	}
	return badge
}

// Refresh reloads the first notification page
func (a *Aggregator) Refresh(ctx context.Context) error {
	page, err := a.backend.FetchNotifications(ctx, 1, a.pageSize)
	if err != nil {
		return err
	}
	return a.run(ctx, func() {
		a.feed.Replace(page)
		a.Recount()
	})
}

// MarkAllNotificationsRead marks every notification read. Local state only
// changes once the backend confirmed, so a failure leaves the feed as it was.
func (a *Aggregator) MarkAllNotificationsRead(ctx context.Context) error {
	a.markMu.Lock()
	defer a.markMu.Unlock()

	res, err := a.backend.MarkAllNotificationsRead(ctx)
	if err != nil {
		return err
	}
	return a.run(ctx, func() {
		a.feed.markAllRead(res)
		a.Recount()
	})
}
