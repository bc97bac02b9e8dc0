package chatsync

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbeoliero/jobchat/sdk"
)

func notification(id, at int64) *sdk.Notification {
	return &sdk.Notification{Id: id, Type: sdk.NotificationJobMatch, CreatedAt: at}
}

func newAggregatorFixture() (*Aggregator, *fakeBackend, *PreviewList, *NotificationFeed) {
	b := newFakeBackend()
	previews := NewPreviewList("js__2")
	feed := NewNotificationFeed()
	return NewAggregator(b, previews, feed, 10), b, previews, feed
}

func TestNotificationFeed_ApplyDedupes(t *testing.T) {
	f := NewNotificationFeed()
	assert.True(t, f.Apply(notification(1, 10)))
	assert.False(t, f.Apply(notification(1, 10)))
	assert.Equal(t, int64(1), f.UnreadCount())

	readAt := int64(5)
	read := notification(2, 20)
	read.ReadAt = &readAt
	f.Apply(read)
	assert.Equal(t, int64(1), f.UnreadCount())

	list := f.List()
	require.Len(t, list, 2)
	assert.Equal(t, int64(2), list[0].Id)
}

func TestAggregator_BadgeSumsBothSources(t *testing.T) {
	agg, b, previews, feed := newAggregatorFixture()
	b.notifications = &sdk.NotificationPage{
		Notifications: []*sdk.Notification{notification(1, 10), notification(2, 20)},
		UnreadCount:   5,
	}

	var seen []int64
	agg.OnChange(func(badge int64) { seen = append(seen, badge) })

	require.NoError(t, agg.Refresh(context.Background()))
	previews.ApplyMessage(incoming(1, "c1", "em__1", "js__2", 10))
	agg.Recount()
	feed.Apply(notification(3, 30))
	agg.Recount()
	agg.Recount()

	assert.Equal(t, int64(7), agg.BadgeCount())
	assert.Equal(t, []int64{5, 6, 7}, seen)
}

func TestAggregator_MarkAllReadLeavesOnlyMessages(t *testing.T) {
	agg, b, previews, feed := newAggregatorFixture()
	b.notifications = &sdk.NotificationPage{
		Notifications: []*sdk.Notification{notification(1, 10), notification(2, 20)},
		UnreadCount:   2,
	}
	require.NoError(t, agg.Refresh(context.Background()))
	previews.ApplyMessage(incoming(1, "c1", "em__1", "js__2", 10))
	b.markAllHook = func() (*sdk.MarkAllReadResult, error) {
		return &sdk.MarkAllReadResult{Updated: 2, Cutoff: 25, ReadAt: 30}, nil
	}
	// arrived while the call was in flight
	feed.Apply(notification(3, 40))

	require.NoError(t, agg.MarkAllNotificationsRead(context.Background()))

	assert.Equal(t, int64(1), feed.UnreadCount())
	assert.Equal(t, previews.UnreadTotal()+feed.UnreadCount(), agg.BadgeCount())
	assert.Equal(t, int64(2), agg.BadgeCount())
}

func TestAggregator_MarkAllReadFailureChangesNothing(t *testing.T) {
	agg, b, _, feed := newAggregatorFixture()
	b.notifications = &sdk.NotificationPage{
		Notifications: []*sdk.Notification{notification(1, 10)},
		UnreadCount:   1,
	}
	require.NoError(t, agg.Refresh(context.Background()))
	b.markAllHook = func() (*sdk.MarkAllReadResult, error) {
		return nil, ErrTransportUnavailable
	}

	err := agg.MarkAllNotificationsRead(context.Background())
	assert.ErrorIs(t, err, ErrTransportUnavailable)
	assert.Equal(t, int64(1), feed.UnreadCount())
	assert.False(t, feed.List()[0].IsRead())
}

func TestNotificationFeed_ReplaceKeepsNewerPushes(t *testing.T) {
	f := NewNotificationFeed()
	f.Replace(&sdk.NotificationPage{Notifications: []*sdk.Notification{notification(1, 10)}, UnreadCount: 1})

	// pushed while the next page was being fetched
	f.Apply(notification(3, 30))
	f.Replace(&sdk.NotificationPage{
		Notifications: []*sdk.Notification{notification(1, 10), notification(2, 20)},
		UnreadCount:   2,
	})

	assert.Equal(t, int64(3), f.UnreadCount())
	list := f.List()
	require.Len(t, list, 3)
	assert.Equal(t, int64(3), list[0].Id)

	// a later page that includes the push does not count it twice
	f.Replace(&sdk.NotificationPage{
		Notifications: []*sdk.Notification{notification(1, 10), notification(2, 20), notification(3, 30)},
		UnreadCount:   3,
	})
	assert.Equal(t, int64(3), f.UnreadCount())
	assert.Len(t, f.List(), 3)
}

func TestAggregator_ListenersEndOnCurrentBadge(t *testing.T) {
	agg, _, previews, feed := newAggregatorFixture()

	var mu sync.Mutex
	var last int64
	agg.OnChange(func(badge int64) {
		mu.Lock()
		defer mu.Unlock()
		last = badge
	})

	var wg sync.WaitGroup
	for i := int64(1); i <= 50; i++ {
		wg.Add(1)
		go func(i int64) {
			defer wg.Done()
			if i%2 == 0 {
				previews.ApplyMessage(incoming(i, "c1", "em__1", "js__2", i))
			} else {
				feed.Apply(notification(i, i))
			}
			agg.Recount()
		}(i)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, int64(50), agg.BadgeCount())
	assert.Equal(t, agg.BadgeCount(), last)
}
