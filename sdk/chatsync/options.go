package chatsync

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

type options struct {
	pageSize          int
	readBatchWindow   time.Duration
	resolverCacheSize int
	degraded          DegradedHandler
	kicked            func(err error)
	sendBackoff       func() backoff.BackOff
	syncTimeout       time.Duration
}

// Option configures a Session
type Option func(*options)

// WithPageSize sets the history and notification page size
func WithPageSize(n int) Option {
	return func(o *options) {
		o.pageSize = n
	}
}

// WithReadBatchWindow sets how long mark-read requests of one conversation
// are collected before being sent together
func WithReadBatchWindow(d time.Duration) Option {
	return func(o *options) {
		o.readBatchWindow = d
	}
}

// WithResolverCacheSize bounds the number of cached conversation ids
func WithResolverCacheSize(n int) Option {
	return func(o *options) {
		o.resolverCacheSize = n
	}
}

// WithDegradedHandler is called when a topic stops delivering live events.
// Views of that conversation should fall back to ConversationView.Refresh.
func WithDegradedHandler(fn DegradedHandler) Option {
	return func(o *options) {
		o.degraded = fn
	}
}

// WithKickedHandler is called once when the server revokes the session
func WithKickedHandler(fn func(err error)) Option {
	return func(o *options) {
		o.kicked = fn
	}
}

// WithSendBackoff sets the retry policy for sends that hit a transient failure
func WithSendBackoff(newBackoff func() backoff.BackOff) Option {
	return func(o *options) {
		o.sendBackoff = newBackoff
	}
}

func defaultOptions() options {
	return options{
		readBatchWindow: defaultReadBatchWindow,
		degraded:        func(string, error) {},
		kicked:          func(error) {},
		sendBackoff:     defaultSendBackoff,
		syncTimeout:     30 * time.Second,
	}
}

func defaultSendBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = 15 * time.Second
	return b
}
