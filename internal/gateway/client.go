package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/jobchat/pkg/errcode"
	"github.com/mbeoliero/jobchat/pkg/protocol"
)

// Client represents a connected WebSocket client
type Client struct {
	mu         sync.Mutex
	conn       ClientConn
	UserId     string
	PlatformId int
	SDKType    string
	Token      string
	ConnId     string
	server     *WsServer
	topicsMu   sync.Mutex
	topics     map[string]struct{}
	closed     atomic.Bool
	closedErr  error
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewClient creates a new client
func NewClient(conn ClientConn, userId string, platformId int, sdkType, token, connId string, server *WsServer) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		conn:       conn,
		UserId:     userId,
		PlatformId: platformId,
		SDKType:    sdkType,
		Token:      token,
		ConnId:     connId,
		server:     server,
		topics:     make(map[string]struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start starts the client message handling
func (c *Client) Start() {
	go c.readLoop()
}

// readLoop continuously reads messages from the connection
func (c *Client) readLoop() {
	defer func() {
		if r := recover(); r != nil {
			c.closedErr = ErrPanic
			log.CtxError(c.ctx, "client read loop panic: user_id=%s, error=%v", c.UserId, r)
		}
		c.close()
	}()

	for {
		message, err := c.conn.ReadMessage()
		if err != nil {
			log.CtxDebug(c.ctx, "read message error: user_id=%s, error=%v", c.UserId, err)
			c.closedErr = err
			return
		}

		if c.closed.Load() {
			c.closedErr = ErrConnClosed
			return
		}

		if err := c.handleMessage(message); err != nil {
			log.CtxWarn(c.ctx, "handle message error: user_id=%s, error=%v", c.UserId, err)
			c.closedErr = err
			return
		}
	}
}

// handleMessage handles a single incoming frame. Only a failed write ends
// the connection; request errors are answered in-band.
func (c *Client) handleMessage(message []byte) error {
	var req protocol.WSRequest
	if err := json.Unmarshal(message, &req); err != nil {
		return c.reply(&req, errcode.ErrInvalidProtocol, nil)
	}

	if req.SendId != "" && req.SendId != c.UserId {
		return c.reply(&req, errcode.ErrTokenMismatch, nil)
	}

	log.CtxDebug(c.ctx, "received message: req_identifier=%d, user_id=%s", req.ReqIdentifier, c.UserId)

	switch req.ReqIdentifier {
	case protocol.WSSubscribe, protocol.WSUnsubscribe:
		var topicReq protocol.TopicReq
		if err := json.Unmarshal(req.Data, &topicReq); err != nil || topicReq.Topic == "" {
			return c.reply(&req, errcode.ErrInvalidParam, nil)
		}
		var err error
		if req.ReqIdentifier == protocol.WSSubscribe {
			err = c.server.Subscribe(c.ctx, c, topicReq.Topic)
		} else {
			c.server.Unsubscribe(c, topicReq.Topic)
		}
		return c.reply(&req, err, req.Data)
	default:
		return c.reply(&req, errcode.ErrInvalidProtocol, nil)
	}
}

// reply sends a response echoing the request identifiers
func (c *Client) reply(req *protocol.WSRequest, err error, data []byte) error {
	resp := protocol.WSResponse{
		ReqIdentifier: req.ReqIdentifier,
		MsgIncr:       req.MsgIncr,
		OperationId:   req.OperationId,
		Data:          data,
	}

	resp.ErrCode, resp.ErrMsg = replyCode(err)

	data, marshalErr := json.Marshal(resp)
	if marshalErr != nil {
		return marshalErr
	}
	return c.writeFrame(data)
}

// writeFrame writes an encoded frame to the connection
func (c *Client) writeFrame(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return ErrConnClosed
	}
	return c.conn.WriteMessage(frame)
}

// KickOnline sends kick message and closes connection
func (c *Client) KickOnline() error {
	data, _ := json.Marshal(protocol.WSResponse{ReqIdentifier: protocol.WSKickOnlineMsg})
	_ = c.writeFrame(data)
	return c.Close()
}

// Close closes the client connection
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return nil
	}

	c.closed.Store(true)
	c.cancel()
	return c.conn.Close()
}

// close handles cleanup when connection is closed
func (c *Client) close() {
	c.Close()
	c.server.UnregisterClient(c)
}

// IsClosed returns whether the client is closed
func (c *Client) IsClosed() bool {
	return c.closed.Load()
}

func (c *Client) addTopic(topic string, limit int) (added bool, full bool) {
	c.topicsMu.Lock()
	defer c.topicsMu.Unlock()

	if _, ok := c.topics[topic]; ok {
		return false, false
	}
	if limit > 0 && len(c.topics) >= limit {
		return false, true
	}
	c.topics[topic] = struct{}{}
	return true, false
}

func (c *Client) removeTopic(topic string) bool {
	c.topicsMu.Lock()
	defer c.topicsMu.Unlock()

	if _, ok := c.topics[topic]; !ok {
		return false
	}
	delete(c.topics, topic)
	return true
}

// Topics returns a snapshot of the client's subscriptions
func (c *Client) Topics() []string {
	c.topicsMu.Lock()
	defer c.topicsMu.Unlock()

	topics := make([]string, 0, len(c.topics))
	for t := range c.topics {
		topics = append(topics, t)
	}
	return topics
}
