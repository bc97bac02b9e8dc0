package chatsync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolver_CachesConversation(t *testing.T) {
	b := newFakeBackend()
	b.conversations["js__2"] = "c1"
	r, err := NewResolver("em__1", b, 0)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		id, err := r.Resolve(context.Background(), "js__2")
		require.NoError(t, err)
		assert.Equal(t, "c1", id)
	}
	assert.Equal(t, 1, b.resolves())

	r.Forget("js__2")
	_, err = r.Resolve(context.Background(), "js__2")
	require.NoError(t, err)
	assert.Equal(t, 2, b.resolves())
}

func TestResolver_RejectsSelfAndEmpty(t *testing.T) {
	b := newFakeBackend()
	r, err := NewResolver("em__1", b, 8)
	require.NoError(t, err)

	_, err = r.Resolve(context.Background(), "em__1")
	assert.ErrorIs(t, err, ErrInvalidParticipant)
	_, err = r.Resolve(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidParticipant)
	assert.Equal(t, 0, b.resolves())
}

func TestResolver_CoalescesConcurrentCalls(t *testing.T) {
	b := newFakeBackend()
	release := make(chan struct{})
	b.resolveHook = func(context.Context, string) (string, error) {
		<-release
		return "c1", nil
	}
	r, err := NewResolver("em__1", b, 8)
	require.NoError(t, err)

	const callers = 8
	var wg sync.WaitGroup
	results := make([]string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = r.Resolve(context.Background(), "js__2")
		}(i)
	}

	// let every caller reach the shared flight before it completes
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, id := range results {
		assert.Equal(t, "c1", id)
	}
	assert.Equal(t, 1, b.resolves())
}

func TestResolver_ErrorsAreNotCached(t *testing.T) {
	b := newFakeBackend()
	r, err := NewResolver("em__1", b, 8)
	require.NoError(t, err)

	_, err = r.Resolve(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrInvalidParticipant)

	b.conversations["ghost"] = "c9"
	id, err := r.Resolve(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Equal(t, "c9", id)
}

func TestResolver_CancelledCallerDoesNotFailOthers(t *testing.T) {
	b := newFakeBackend()
	entered := make(chan struct{})
	release := make(chan struct{})
	b.resolveHook = func(ctx context.Context, _ string) (string, error) {
		close(entered)
		select {
		case <-release:
			return "c1", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	r, err := NewResolver("em__1", b, 8)
	require.NoError(t, err)

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := r.Resolve(firstCtx, "js__2")
		firstErr <- err
	}()
	<-entered

	second := make(chan string, 1)
	go func() {
		id, _ := r.Resolve(context.Background(), "js__2")
		second <- id
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	select {
	case id := <-second:
		assert.Equal(t, "c1", id)
	case <-time.After(time.Second):
		t.Fatal("second caller never resolved")
	}
	assert.Equal(t, 1, b.resolves())
}
