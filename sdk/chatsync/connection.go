package chatsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/jobchat/pkg/protocol"
	"github.com/mbeoliero/jobchat/sdk"
)

const (
	defaultRequestTimeout = 10 * time.Second
	defaultEventBuffer    = 256
	connWriteWait         = 10 * time.Second
)

var (
	errKicked       = errors.New("chatsync: kicked by server")
	errUnauthorized = errors.New("chatsync: handshake unauthorized")
)

// Connection is the push channel of one authenticated session over a
// websocket. It reconnects with backoff and subscribes its topics again
// after every reconnect.
type Connection struct {
	endpoint       string
	userId         string
	token          string
	platformId     int
	dialer         *websocket.Dialer
	newBackoff     func() backoff.BackOff
	requestTimeout time.Duration

	mu      sync.Mutex
	conn    *websocket.Conn
	topics  map[string]struct{}
	pending map[string]chan *protocol.WSResponse
	refs    int

	writeMu   sync.Mutex
	seq       atomic.Uint64
	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
	started   atomic.Bool
}

// ConnectionOption configures a Connection
type ConnectionOption func(*Connection)

// WithPlatformId sets the platform reported in the handshake
func WithPlatformId(platformId int) ConnectionOption {
	return func(c *Connection) {
		c.platformId = platformId
	}
}

// WithDialer sets a custom websocket dialer
func WithDialer(dialer *websocket.Dialer) ConnectionOption {
	return func(c *Connection) {
		c.dialer = dialer
	}
}

// WithReconnectBackoff sets the reconnect policy. A policy returning
// backoff.Stop makes the connection give up.
func WithReconnectBackoff(newBackoff func() backoff.BackOff) ConnectionOption {
	return func(c *Connection) {
		c.newBackoff = newBackoff
	}
}

// WithRequestTimeout bounds how long subscribe waits for confirmation
func WithRequestTimeout(d time.Duration) ConnectionOption {
	return func(c *Connection) {
		c.requestTimeout = d
	}
}

// WithEventBuffer sets the capacity of the event stream
func WithEventBuffer(n int) ConnectionOption {
	return func(c *Connection) {
		c.events = make(chan Event, n)
	}
}

// NewConnection creates a push channel for userId at endpoint, for example
// ws://localhost:8080/ws. The caller holds the first reference.
func NewConnection(endpoint, userId, token string, opts ...ConnectionOption) *Connection {
	c := &Connection{
		endpoint:       endpoint,
		userId:         userId,
		token:          token,
		platformId:     sdk.PlatformIdUnknown,
		dialer:         &websocket.Dialer{Proxy: http.ProxyFromEnvironment, HandshakeTimeout: 10 * time.Second},
		newBackoff:     defaultBackoff,
		requestTimeout: defaultRequestTimeout,
		topics:         make(map[string]struct{}),
		pending:        make(map[string]chan *protocol.WSResponse),
		refs:           1,
		events:         make(chan Event, defaultEventBuffer),
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func defaultBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	return b
}

// Start connects in the background. The connection closes when ctx ends or
// the last reference is released.
func (c *Connection) Start(ctx context.Context) {
	if !c.started.CompareAndSwap(false, true) {
		return
	}
	go c.run(ctx)
	go func() {
		select {
		case <-ctx.Done():
			_ = c.Close()
		case <-c.done:
		}
	}()
}

// Events returns the inbound stream
func (c *Connection) Events() <-chan Event {
	return c.events
}

// Connected reports whether the websocket is currently up
func (c *Connection) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Acquire takes a reference
func (c *Connection) Acquire() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refs++
}

// Release drops a reference and closes the connection with the last one
func (c *Connection) Release() error {
	c.mu.Lock()
	c.refs--
	last := c.refs <= 0
	c.mu.Unlock()

	if last {
		return c.Close()
	}
	return nil
}

// Close shuts the connection down regardless of references
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn != nil {
			err = conn.Close()
		}
	})
	return err
}

func (c *Connection) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Subscribe asks the server for topic and waits for the answer. The topic is
// kept across reconnects unless the server rejects it.
func (c *Connection) Subscribe(ctx context.Context, topic string) error {
	c.mu.Lock()
	c.topics[topic] = struct{}{}
	c.mu.Unlock()

	err := c.request(ctx, protocol.WSSubscribe, topic)
	if err == nil || errors.Is(err, ErrTransportUnavailable) {
		return err
	}

	c.mu.Lock()
	delete(c.topics, topic)
	c.mu.Unlock()
	return fmt.Errorf("subscribe %s: %w", topic, err)
}

// Unsubscribe forgets topic and tells the server if it is reachable
func (c *Connection) Unsubscribe(ctx context.Context, topic string) error {
	c.mu.Lock()
	_, ok := c.topics[topic]
	delete(c.topics, topic)
	c.mu.Unlock()

	if !ok {
		return nil
	}
	err := c.request(ctx, protocol.WSUnsubscribe, topic)
	if err != nil && !errors.Is(err, ErrTransportUnavailable) {
		return fmt.Errorf("unsubscribe %s: %w", topic, err)
	}
	return nil
}

// Topics returns the topics kept across reconnects
func (c *Connection) Topics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	topics := make([]string, 0, len(c.topics))
	for topic := range c.topics {
		topics = append(topics, topic)
	}
	return topics
}

func (c *Connection) run(ctx context.Context) {
	b := c.newBackoff()
	down := false

	for {
		if c.isClosed() || ctx.Err() != nil {
			return
		}

		conn, err := c.dial(ctx)
		if err != nil {
			if errors.Is(err, errUnauthorized) {
				log.CtxWarn(ctx, "push channel rejected: user_id=%s, error=%v", c.userId, err)
				c.emit(Event{Kind: EventKicked, Err: err})
				return
			}

			wait := b.NextBackOff()
			if wait == backoff.Stop {
				c.emit(Event{Kind: EventTransportDown, Err: fmt.Errorf("%w: giving up: %w", ErrTransportUnavailable, err)})
				return
			}
			if !down {
				down = true
				c.emit(Event{Kind: EventTransportDown, Err: fmt.Errorf("%w: %w", ErrTransportUnavailable, err)})
			}
			log.CtxDebug(ctx, "push channel dial failed, retrying: user_id=%s, wait=%s, error=%v", c.userId, wait, err)

			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return
			case <-c.done:
				timer.Stop()
				return
			}
			continue
		}

		b.Reset()
		c.setConn(conn)

		readErr := make(chan error, 1)
		go func() {
			readErr <- c.readLoop(conn)
		}()

		restored := c.resubscribe(ctx)
		down = false
		log.CtxInfo(ctx, "push channel connected: user_id=%s, topics=%d", c.userId, len(restored))
		c.emit(Event{Kind: EventTransportUp, Topics: restored})

		select {
		case err = <-readErr:
		case <-ctx.Done():
			_ = conn.Close()
			<-readErr
			c.clearConn(conn)
			return
		case <-c.done:
			<-readErr
			c.clearConn(conn)
			return
		}

		c.clearConn(conn)
		if errors.Is(err, errKicked) {
			log.CtxInfo(ctx, "push channel kicked: user_id=%s", c.userId)
			return
		}
		if c.isClosed() {
			return
		}

		down = true
		log.CtxWarn(ctx, "push channel lost: user_id=%s, error=%v", c.userId, err)
		c.emit(Event{Kind: EventTransportDown, Err: fmt.Errorf("%w: %w", ErrTransportUnavailable, err)})
	}
}

func (c *Connection) dial(ctx context.Context) (*websocket.Conn, error) {
	query := url.Values{}
	query.Set(protocol.QueryToken, c.token)
	query.Set(protocol.QuerySendId, c.userId)
	query.Set(protocol.QueryPlatformId, strconv.Itoa(c.platformId))
	query.Set(protocol.QuerySDKType, protocol.SDKTypeGo)

	conn, resp, err := c.dialer.DialContext(ctx, c.endpoint+"?"+query.Encode(), nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("%w: %w", errUnauthorized, err)
		}
		return nil, err
	}
	return conn, nil
}

func (c *Connection) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
}

// clearConn detaches conn and fails every request waiting on it
func (c *Connection) clearConn(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == conn {
		c.conn = nil
	}
	for msgIncr, ch := range c.pending {
		close(ch)
		delete(c.pending, msgIncr)
	}
	_ = conn.Close()
}

// resubscribe restores the kept topics on a fresh connection and returns the
// ones the server accepted
func (c *Connection) resubscribe(ctx context.Context) []string {
	restored := make([]string, 0)
	for _, topic := range c.Topics() {
		err := c.request(ctx, protocol.WSSubscribe, topic)
		switch {
		case err == nil:
			restored = append(restored, topic)
		case errors.Is(err, ErrTransportUnavailable):
			return restored
		default:
			log.CtxWarn(ctx, "resubscribe rejected: topic=%s, error=%v", topic, err)
			c.mu.Lock()
			delete(c.topics, topic)
			c.mu.Unlock()
		}
	}
	return restored
}

func (c *Connection) readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var resp protocol.WSResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			log.Debug("push channel frame dropped: error=%v", err)
			continue
		}

		switch resp.ReqIdentifier {
		case protocol.WSPushEvent:
			var push protocol.PushEvent
			if err := json.Unmarshal(resp.Data, &push); err != nil {
				log.Debug("push event dropped: error=%v", err)
				continue
			}
			if ev, ok := eventFromPush(&push); ok {
				c.emit(ev)
			}
		case protocol.WSKickOnlineMsg:
			c.emit(Event{Kind: EventKicked, Err: errKicked})
			return errKicked
		default:
			c.resolve(&resp)
		}
	}
}

func (c *Connection) resolve(resp *protocol.WSResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ch, ok := c.pending[resp.MsgIncr]; ok {
		ch <- resp
		delete(c.pending, resp.MsgIncr)
	}
}

func (c *Connection) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *Connection) request(ctx context.Context, ident int32, topic string) error {
	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return ErrTransportUnavailable
	}
	msgIncr := strconv.FormatUint(c.seq.Add(1), 10)
	reply := make(chan *protocol.WSResponse, 1)
	c.pending[msgIncr] = reply
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, msgIncr)
		c.mu.Unlock()
	}()

	data, err := json.Marshal(protocol.TopicReq{Topic: topic})
	if err != nil {
		return err
	}
	frame, err := json.Marshal(protocol.WSRequest{
		ReqIdentifier: ident,
		MsgIncr:       msgIncr,
		OperationId:   uuid.NewString(),
		SendId:        c.userId,
		Data:          data,
	})
	if err != nil {
		return err
	}

	if err := c.write(conn, frame); err != nil {
		return fmt.Errorf("%w: %w", ErrTransportUnavailable, err)
	}

	timer := time.NewTimer(c.requestTimeout)
	defer timer.Stop()

	select {
	case resp, ok := <-reply:
		if !ok {
			return ErrTransportUnavailable
		}
		if resp.ErrCode != sdk.CodeSuccess {
			return sdk.NewError(resp.ErrCode, resp.ErrMsg)
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: no answer within %s", ErrTransportUnavailable, c.requestTimeout)
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrTransportUnavailable
	}
}

func (c *Connection) write(conn *websocket.Conn, frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(connWriteWait))
	return conn.WriteMessage(websocket.TextMessage, frame)
}
