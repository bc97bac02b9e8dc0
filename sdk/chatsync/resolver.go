package chatsync

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/singleflight"
)

const defaultResolverCacheSize = 256

// Resolver maps a counterpart to the conversation id shared with the viewer.
// Concurrent calls for the same counterpart share one backend request and
// results are cached for the session, since a pair never changes conversation.
type Resolver struct {
	viewer  string
	backend Backend
	group   singleflight.Group
	cache   *lru.Cache
}

// NewResolver creates a resolver for viewer
func NewResolver(viewer string, backend Backend, cacheSize int) (*Resolver, error) {
	if cacheSize <= 0 {
		cacheSize = defaultResolverCacheSize
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("chatsync: create resolver cache: %w", err)
	}
	return &Resolver{viewer: viewer, backend: backend, cache: cache}, nil
}

// Resolve returns the conversation id for counterpartId, creating the
// conversation on first use
func (r *Resolver) Resolve(ctx context.Context, counterpartId string) (string, error) {
	if counterpartId == "" || counterpartId == r.viewer {
		return "", ErrInvalidParticipant
	}

	if v, ok := r.cache.Get(counterpartId); ok {
		return v.(string), nil
	}

	// the shared call outlives any one caller; each caller stops waiting on
	// its own context
	flight := context.WithoutCancel(ctx)
	ch := r.group.DoChan(counterpartId, func() (interface{}, error) {
		if v, ok := r.cache.Get(counterpartId); ok {
			return v, nil
		}
		id, err := r.backend.ResolveConversation(flight, counterpartId)
		if err != nil {
			return nil, err
		}
		r.cache.Add(counterpartId, id)
		return id, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Forget drops the cached conversation for counterpartId
func (r *Resolver) Forget(counterpartId string) {
	r.cache.Remove(counterpartId)
}

// Purge empties the cache
func (r *Resolver) Purge() {
	r.cache.Purge()
}
