package chatsync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbeoliero/jobchat/sdk"
)

func ids(msgs []sdk.Message) []int64 {
	out := make([]int64, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Id)
	}
	return out
}

func TestHistory_InsertIsIdempotent(t *testing.T) {
	h := NewHistory("c1")

	assert.True(t, h.Insert(incoming(1, "c1", "em__1", "js__2", 10)))
	assert.False(t, h.Insert(incoming(1, "c1", "em__1", "js__2", 10)))
	assert.False(t, h.Insert(incoming(2, "other", "em__1", "js__2", 11)))
	assert.Equal(t, 1, h.Len())
}

func TestHistory_ReadFlagNeverReverts(t *testing.T) {
	h := NewHistory("c1")
	read := incoming(1, "c1", "em__1", "js__2", 10)
	read.IsRead = true
	h.Insert(read)

	assert.False(t, h.Insert(incoming(1, "c1", "em__1", "js__2", 10)))
	msg, ok := h.Get(1)
	require.True(t, ok)
	assert.True(t, msg.IsRead)
}

func TestHistory_MergeOlderPageAfterLiveEvents(t *testing.T) {
	h := NewHistory("c1")
	h.Insert(incoming(5, "c1", "em__1", "js__2", 50))
	h.Insert(incoming(6, "c1", "em__1", "js__2", 60))

	added := h.Merge([]*sdk.Message{
		incoming(4, "c1", "em__1", "js__2", 40),
		incoming(5, "c1", "em__1", "js__2", 50),
		incoming(3, "c1", "em__1", "js__2", 30),
	})

	assert.Equal(t, 2, added)
	assert.Equal(t, []int64{3, 4, 5, 6}, ids(h.Snapshot()))
}

func TestHistory_SameTimestampOrdersById(t *testing.T) {
	h := NewHistory("c1")
	h.Merge([]*sdk.Message{
		incoming(9, "c1", "em__1", "js__2", 10),
		incoming(7, "c1", "em__1", "js__2", 10),
	})
	assert.Equal(t, []int64{7, 9}, ids(h.Snapshot()))
}

func TestHistory_ReadBeforeMessage(t *testing.T) {
	h := NewHistory("c1")

	assert.Empty(t, h.ApplyRead([]int64{8}))
	assert.Equal(t, 1, h.PendingReads())

	h.Insert(incoming(8, "c1", "js__2", "em__1", 10))
	msg, ok := h.Get(8)
	require.True(t, ok)
	assert.True(t, msg.IsRead)
	assert.Equal(t, 0, h.PendingReads())
}

func TestHistory_UnreadFor(t *testing.T) {
	h := NewHistory("c1")
	h.Insert(incoming(1, "c1", "em__1", "js__2", 10))
	h.Insert(incoming(2, "c1", "js__2", "em__1", 20))
	h.Insert(incoming(3, "c1", "em__1", "js__2", 30))

	assert.Equal(t, []int64{1, 3}, h.UnreadFor("js__2"))
	assert.Equal(t, []int64{3}, h.ApplyRead([]int64{3, 99}))
	assert.Equal(t, []int64{1}, h.UnreadFor("js__2"))

	h.Clear()
	assert.Equal(t, 0, h.Len())
	assert.Equal(t, 0, h.PendingReads())
}

func TestHistoryStore_Fetch(t *testing.T) {
	b := newFakeBackend()
	for i := int64(1); i <= 5; i++ {
		b.messages["c1"] = append(b.messages["c1"], incoming(i, "c1", "em__1", "js__2", i*10))
	}
	store := NewHistoryStore(b, 2)

	page1, more, err := store.Fetch(context.Background(), "c1", 1)
	require.NoError(t, err)
	assert.True(t, more)
	assert.Equal(t, []int64{4, 5}, []int64{page1[0].Id, page1[1].Id})

	page3, more, err := store.Fetch(context.Background(), "c1", 3)
	require.NoError(t, err)
	assert.False(t, more)
	require.Len(t, page3, 1)
	assert.Equal(t, int64(1), page3[0].Id)

	_, _, err = store.Fetch(context.Background(), "c1", 0)
	assert.Error(t, err)
}

func TestHistoryStore_OlderPageIgnoresNewArrivals(t *testing.T) {
	b := newFakeBackend()
	for i := int64(1); i <= 6; i++ {
		b.messages["c1"] = append(b.messages["c1"], incoming(i, "c1", "em__1", "js__2", i*10))
	}
	store := NewHistoryStore(b, 3)
	ctx := context.Background()

	page1, _, err := store.Fetch(ctx, "c1", 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 5, 6}, []int64{page1[0].Id, page1[1].Id, page1[2].Id})

	for i := int64(7); i <= 9; i++ {
		b.messages["c1"] = append(b.messages["c1"], incoming(i, "c1", "em__1", "js__2", i*10))
	}

	// a refreshed first page must not move the start of page 2
	_, _, err = store.Fetch(ctx, "c1", 1)
	require.NoError(t, err)

	page2, more, err := store.Fetch(ctx, "c1", 2)
	require.NoError(t, err)
	assert.False(t, more)
	require.Len(t, page2, 3)
	assert.Equal(t, int64(1), page2[0].Id)
	assert.Equal(t, int64(3), page2[2].Id)
	assert.Equal(t, []int64{0, 0, 4}, b.fetchCursors())

	store.Forget("c1")
	_, _, err = store.Fetch(ctx, "c1", 2)
	require.NoError(t, err)
	// forgotten cursors are rebuilt from page 1
	assert.Equal(t, []int64{0, 0, 4, 0, 7}, b.fetchCursors())
}
