package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbeoliero/jobchat/internal/config"
	"github.com/mbeoliero/jobchat/pkg/constant"
	"github.com/mbeoliero/jobchat/pkg/errcode"
	"github.com/mbeoliero/jobchat/pkg/jwt"
	"github.com/mbeoliero/jobchat/pkg/protocol"
)

type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func (f *fakeConn) ReadMessage() ([]byte, error) { return nil, errors.New("not used") }

func (f *fakeConn) WriteMessage(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrConnClosed
	}
	f.frames = append(f.frames, data)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) SetReadDeadline(time.Time) error  { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeConn) responses(t *testing.T) []protocol.WSResponse {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]protocol.WSResponse, 0, len(f.frames))
	for _, frame := range f.frames {
		var resp protocol.WSResponse
		require.NoError(t, json.Unmarshal(frame, &resp))
		out = append(out, resp)
	}
	return out
}

type fakeAuthorizer struct {
	participants map[string][]string
	err          error
}

func (a *fakeAuthorizer) IsParticipant(_ context.Context, conversationId, userId string) (bool, error) {
	if a.err != nil {
		return false, a.err
	}
	for _, id := range a.participants[conversationId] {
		if id == userId {
			return true, nil
		}
	}
	return false, nil
}

type fakeVerifier struct{}

func (fakeVerifier) ValidateToken(_ context.Context, token string) (*jwt.Claims, error) {
	return &jwt.Claims{UserId: token}, nil
}

func newTestServer(maxTopics int) (*WsServer, *fakeAuthorizer) {
	cfg := &config.Config{}
	cfg.WebSocket.MaxConnNum = 100
	cfg.WebSocket.MaxTopicsPerConn = maxTopics
	cfg.WebSocket.PushChannelSize = 16
	cfg.WebSocket.PushWorkerNum = 4
	auth := &fakeAuthorizer{participants: map[string][]string{"c1": {"u1", "u2"}}}
	return NewWsServer(cfg, nil, fakeVerifier{}, auth), auth
}

func newTestClient(s *WsServer, userId, connId, token string) (*Client, *fakeConn) {
	conn := &fakeConn{}
	return NewClient(conn, userId, 1, "go", token, connId, s), conn
}

func TestSubscribeAuthorization(t *testing.T) {
	s, auth := newTestServer(0)
	ctx := context.Background()
	c, _ := newTestClient(s, "u1", "conn-1", "tok")

	assert.NoError(t, s.Subscribe(ctx, c, constant.UserMessagesTopic("u1")))
	assert.NoError(t, s.Subscribe(ctx, c, constant.UserNotificationsTopic("u1")))
	assert.NoError(t, s.Subscribe(ctx, c, constant.ChatTopic("c1")))

	assert.ErrorIs(t, s.Subscribe(ctx, c, constant.UserMessagesTopic("u2")), errcode.ErrTopicForbidden)
	assert.ErrorIs(t, s.Subscribe(ctx, c, constant.ChatTopic("c9")), errcode.ErrTopicForbidden)
	assert.ErrorIs(t, s.Subscribe(ctx, c, "bogus"), errcode.ErrInvalidTopic)

	auth.err = errors.New("db down")
	assert.ErrorIs(t, s.Subscribe(ctx, c, constant.ChatTopic("c2")), errcode.ErrInternalServer)

	assert.Equal(t, 3, s.topicMap.SubscriptionCount())
	assert.Len(t, c.Topics(), 3)
}

func TestSubscribeIsIdempotentAndLimited(t *testing.T) {
	s, _ := newTestServer(2)
	ctx := context.Background()
	c, _ := newTestClient(s, "u1", "conn-1", "tok")

	require.NoError(t, s.Subscribe(ctx, c, constant.ChatTopic("c1")))
	require.NoError(t, s.Subscribe(ctx, c, constant.ChatTopic("c1")))
	assert.Equal(t, 1, s.topicMap.SubscriptionCount())

	require.NoError(t, s.Subscribe(ctx, c, constant.UserMessagesTopic("u1")))
	assert.ErrorIs(t, s.Subscribe(ctx, c, constant.UserNotificationsTopic("u1")), errcode.ErrTooManyRequests)

	s.Unsubscribe(c, constant.ChatTopic("c1"))
	s.Unsubscribe(c, constant.ChatTopic("c1"))
	assert.Equal(t, 1, s.topicMap.SubscriptionCount())
	assert.NoError(t, s.Subscribe(ctx, c, constant.UserNotificationsTopic("u1")))
}

func TestProcessPushDeliversToTopicSubscribers(t *testing.T) {
	s, _ := newTestServer(0)
	ctx := context.Background()
	a, connA := newTestClient(s, "u1", "conn-a", "ta")
	b, connB := newTestClient(s, "u2", "conn-b", "tb")
	other, connOther := newTestClient(s, "u1", "conn-o", "to")

	require.NoError(t, s.Subscribe(ctx, a, constant.ChatTopic("c1")))
	require.NoError(t, s.Subscribe(ctx, b, constant.ChatTopic("c1")))
	require.NoError(t, s.Subscribe(ctx, other, constant.UserMessagesTopic("u1")))

	event := &protocol.PushEvent{
		Topic:   constant.ChatTopic("c1"),
		Kind:    protocol.EventNewMessage,
		Message: &protocol.MessageData{Id: 7, ConversationId: "c1", SenderId: "u1", ReceiverId: "u2", Content: "hi"},
	}
	s.processPush(ctx, event)

	for _, conn := range []*fakeConn{connA, connB} {
		resps := conn.responses(t)
		require.Len(t, resps, 1)
		assert.Equal(t, int32(protocol.WSPushEvent), resps[0].ReqIdentifier)

		var got protocol.PushEvent
		require.NoError(t, json.Unmarshal(resps[0].Data, &got))
		assert.Equal(t, event.Topic, got.Topic)
		assert.Equal(t, int64(7), got.Message.Id)
	}
	assert.Empty(t, connOther.responses(t))
}

func TestPublishWithoutRedisDeliversLocally(t *testing.T) {
	s, _ := newTestServer(0)
	event := &protocol.PushEvent{Topic: constant.UserMessagesTopic("u1"), Kind: protocol.EventNewMessage}

	s.Publish(context.Background(), event)

	select {
	case got := <-s.shardOf(event.Topic):
		assert.Same(t, event, got)
	default:
		t.Fatal("event not queued")
	}
}

func TestEnqueueDropsWhenFull(t *testing.T) {
	s, _ := newTestServer(0)
	shard := s.shardOf("chat.c1")
	for i := 0; i < cap(shard)+5; i++ {
		s.enqueue(&protocol.PushEvent{Topic: "chat.c1"})
	}
	assert.Len(t, shard, cap(shard))
}

func TestEnqueueKeepsTopicOrder(t *testing.T) {
	s, _ := newTestServer(0)
	require.Len(t, s.pushShards, 4)

	topics := []string{constant.ChatTopic("c1"), constant.ChatTopic("c2"), constant.UserMessagesTopic("u1")}
	for _, topic := range topics {
		assert.Equal(t, s.shardOf(topic), s.shardOf(topic))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for _, shard := range s.pushShards {
		go s.pushLoop(ctx, shard)
	}

	c, conn := newTestClient(s, "u2", "conn-1", "tok")
	require.NoError(t, s.Subscribe(ctx, c, constant.ChatTopic("c1")))

	const n = 4
	for i := 1; i <= n; i++ {
		s.enqueue(&protocol.PushEvent{
			Topic:   constant.ChatTopic("c1"),
			Kind:    protocol.EventNewMessage,
			Message: &protocol.MessageData{Id: int64(i), ConversationId: "c1", SenderId: "u1", ReceiverId: "u2"},
		})
	}

	require.Eventually(t, func() bool {
		return len(conn.responses(t)) == n
	}, time.Second, 5*time.Millisecond)

	for i, resp := range conn.responses(t) {
		var got protocol.PushEvent
		require.NoError(t, json.Unmarshal(resp.Data, &got))
		assert.Equal(t, int64(i+1), got.Message.Id)
	}
}

func TestUnregisterDropsSubscriptions(t *testing.T) {
	s, _ := newTestServer(0)
	ctx := context.Background()
	c, _ := newTestClient(s, "u1", "conn-1", "tok")

	s.registerClient(ctx, c)
	require.NoError(t, s.Subscribe(ctx, c, constant.ChatTopic("c1")))
	require.NoError(t, s.Subscribe(ctx, c, constant.UserMessagesTopic("u1")))
	assert.Equal(t, int64(1), s.GetOnlineConnCount())
	assert.True(t, s.IsOnline(ctx, "u1"))

	s.unregisterClient(ctx, c)
	assert.Equal(t, 0, s.topicMap.SubscriptionCount())
	assert.Equal(t, 0, s.topicMap.TopicCount())
	assert.Equal(t, int64(0), s.GetOnlineConnCount())
	assert.Equal(t, int64(0), s.GetOnlineUserCount())
	assert.False(t, s.IsOnline(ctx, "u1"))
}

func TestKickTokenClosesMatchingConnections(t *testing.T) {
	s, _ := newTestServer(0)
	ctx := context.Background()
	a, connA := newTestClient(s, "u1", "conn-a", "old")
	b, connB := newTestClient(s, "u1", "conn-b", "new")
	s.registerClient(ctx, a)
	s.registerClient(ctx, b)

	assert.Equal(t, 1, s.KickToken(ctx, "u1", "old"))
	assert.True(t, a.IsClosed())
	assert.False(t, b.IsClosed())

	resps := connA.responses(t)
	require.Len(t, resps, 1)
	assert.Equal(t, int32(protocol.WSKickOnlineMsg), resps[0].ReqIdentifier)
	assert.Empty(t, connB.responses(t))

	assert.Equal(t, 0, s.KickToken(ctx, "nobody", "old"))
}

func TestHandleMessageSubscribeReplies(t *testing.T) {
	s, _ := newTestServer(0)
	c, conn := newTestClient(s, "u1", "conn-1", "tok")

	payload, _ := json.Marshal(protocol.TopicReq{Topic: constant.ChatTopic("c1")})
	frame, _ := json.Marshal(protocol.WSRequest{ReqIdentifier: protocol.WSSubscribe, MsgIncr: "1", Data: payload})
	require.NoError(t, c.handleMessage(frame))

	payload, _ = json.Marshal(protocol.TopicReq{Topic: constant.UserMessagesTopic("u2")})
	frame, _ = json.Marshal(protocol.WSRequest{ReqIdentifier: protocol.WSSubscribe, MsgIncr: "2", Data: payload})
	require.NoError(t, c.handleMessage(frame))

	frame, _ = json.Marshal(protocol.WSRequest{ReqIdentifier: 9999, MsgIncr: "3"})
	require.NoError(t, c.handleMessage(frame))

	resps := conn.responses(t)
	require.Len(t, resps, 3)
	assert.Equal(t, "1", resps[0].MsgIncr)
	assert.Equal(t, 0, resps[0].ErrCode)
	assert.Equal(t, errcode.ErrTopicForbidden.Code, resps[1].ErrCode)
	assert.Equal(t, errcode.ErrInvalidProtocol.Code, resps[2].ErrCode)
	assert.Equal(t, []string{constant.ChatTopic("c1")}, c.Topics())
}

func TestTopicMapRemoveClient(t *testing.T) {
	m := NewTopicMap()
	c := &Client{ConnId: "x"}
	d := &Client{ConnId: "y"}

	assert.True(t, m.Add("chat.a", c))
	assert.False(t, m.Add("chat.a", c))
	assert.True(t, m.Add("chat.a", d))
	assert.True(t, m.Add("chat.b", c))

	assert.Equal(t, 2, m.RemoveClient(c, []string{"chat.a", "chat.b", "chat.z"}))
	assert.Len(t, m.Get("chat.a"), 1)
	assert.Nil(t, m.Get("chat.b"))
	assert.Equal(t, 1, m.TopicCount())
}

func TestUserMapCountsUsersOnce(t *testing.T) {
	s, _ := newTestServer(0)
	ctx := context.Background()
	m := NewUserMap(nil)
	a, _ := newTestClient(s, "u1", "conn-a", "tok")
	b, _ := newTestClient(s, "u1", "conn-b", "tok")

	assert.True(t, m.Register(ctx, a))
	assert.False(t, m.Register(ctx, b))
	assert.Len(t, m.Clients("u1"), 2)

	assert.False(t, m.Unregister(ctx, a))
	assert.False(t, m.Unregister(ctx, a))
	assert.True(t, m.IsOnline(ctx, "u1"))
	assert.True(t, m.Unregister(ctx, b))
	assert.False(t, m.IsOnline(ctx, "u1"))
}

func TestReplyCode(t *testing.T) {
	code, msg := replyCode(nil)
	assert.Equal(t, 0, code)
	assert.Empty(t, msg)

	code, _ = replyCode(errcode.ErrTopicForbidden)
	assert.Equal(t, errcode.ErrTopicForbidden.Code, code)

	code, msg = replyCode(errors.New("boom"))
	assert.Equal(t, errcode.ErrInternalServer.Code, code)
	assert.Equal(t, "boom", msg)
}
