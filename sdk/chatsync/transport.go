package chatsync

import "context"

// Transport is the push channel shared by everything in a session. It is an
// owned resource: holders call Acquire and Release, and the last Release
// closes it.
type Transport interface {
	// Subscribe blocks until the server confirmed the topic. When the channel
	// is down it returns ErrTransportUnavailable and keeps the topic, which is
	// then subscribed again on reconnect.
	Subscribe(ctx context.Context, topic string) error
	// Unsubscribe forgets the topic. It does not fail when the channel is down.
	Unsubscribe(ctx context.Context, topic string) error
	// Events is the single inbound stream multiplexing every topic
	Events() <-chan Event
	Acquire()
	Release() error
}
