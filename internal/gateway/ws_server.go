package gateway

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"sync/atomic"
	"time"

	"github.com/mbeoliero/kit/log"
	"github.com/redis/go-redis/v9"

	"github.com/mbeoliero/jobchat/internal/config"
	"github.com/mbeoliero/jobchat/internal/metrics"
	"github.com/mbeoliero/jobchat/pkg/constant"
	"github.com/mbeoliero/jobchat/pkg/errcode"
	"github.com/mbeoliero/jobchat/pkg/jwt"
	"github.com/mbeoliero/jobchat/pkg/protocol"
)

// TopicAuthorizer decides whether a user may follow a conversation topic
type TopicAuthorizer interface {
	IsParticipant(ctx context.Context, conversationId, userId string) (bool, error)
}

// TokenVerifier authenticates the token presented in the handshake
type TokenVerifier interface {
	ValidateToken(ctx context.Context, token string) (*jwt.Claims, error)
}

// WsServer is the push channel server
type WsServer struct {
	cfg            *config.Config
	userMap        *UserMap
	topicMap       *TopicMap
	registerChan   chan *Client
	unregisterChan chan *Client
	// one queue per push worker; a topic always maps to the same queue
	pushShards     []chan *protocol.PushEvent
	broker         *Broker
	authorizer     TopicAuthorizer
	verifier       TokenVerifier
	onlineUserNum  atomic.Int64
	onlineConnNum  atomic.Int64
	maxConnNum     int64
}

// NewWsServer creates a new push channel server
func NewWsServer(cfg *config.Config, rdb *redis.Client, verifier TokenVerifier, authorizer TopicAuthorizer) *WsServer {
	pushSize := cfg.WebSocket.PushChannelSize
	if pushSize <= 0 {
		pushSize = defaultPushChanSize
	}
	workerNum := cfg.WebSocket.PushWorkerNum
	if workerNum <= 0 {
		workerNum = defaultPushWorkers
	}
	shards := make([]chan *protocol.PushEvent, workerNum)
	for i := range shards {
		shards[i] = make(chan *protocol.PushEvent, max(1, pushSize/workerNum))
	}

	s := &WsServer{
		cfg:            cfg,
		userMap:        NewUserMap(rdb),
		topicMap:       NewTopicMap(),
		registerChan:   make(chan *Client, registerChanSize),
		unregisterChan: make(chan *Client, registerChanSize),
		pushShards:     shards,
		authorizer:     authorizer,
		verifier:       verifier,
		maxConnNum:     cfg.WebSocket.MaxConnNum,
	}
	s.broker = NewBroker(rdb, s.enqueue)
	return s
}

// Run starts the event loop, the push workers and the broker consumer
func (s *WsServer) Run(ctx context.Context) {
	go s.eventLoop(ctx)

	for _, shard := range s.pushShards {
		go s.pushLoop(ctx, shard)
	}
	go s.broker.Run(ctx)

	log.Info("started %d push workers", len(s.pushShards))
}

// eventLoop handles client registration and unregistration
func (s *WsServer) eventLoop(ctx context.Context) {
	ticker := time.NewTicker(onlineRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case client := <-s.registerChan:
			s.registerClient(ctx, client)
		case client := <-s.unregisterChan:
			s.unregisterClient(ctx, client)
		case <-ticker.C:
			s.userMap.RefreshAll(ctx)
		}
	}
}

// pushLoop delivers the events of one shard to local subscribers, in the
// order they were queued
func (s *WsServer) pushLoop(ctx context.Context, shard <-chan *protocol.PushEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-shard:
			s.processPush(ctx, event)
		}
	}
}

// processPush writes one event to every local connection subscribed to its topic
func (s *WsServer) processPush(ctx context.Context, event *protocol.PushEvent) {
	clients := s.topicMap.Get(event.Topic)
	if len(clients) == 0 {
		return
	}

	frame, err := encodePush(event)
	if err != nil {
		log.CtxError(ctx, "encode push frame failed: topic=%s, error=%v", event.Topic, err)
		return
	}

	for _, client := range clients {
		if err := client.writeFrame(frame); err != nil {
			metrics.DroppedEventsTotal.WithLabelValues("write").Inc()
			log.CtxDebug(ctx, "push to client failed: user_id=%s, conn_id=%s, topic=%s, error=%v", client.UserId, client.ConnId, event.Topic, err)
			continue
		}
		metrics.PushedEventsTotal.WithLabelValues(event.Kind).Inc()
	}
}

func encodePush(event *protocol.PushEvent) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return json.Marshal(protocol.WSResponse{
		ReqIdentifier: protocol.WSPushEvent,
		Data:          data,
	})
}

// Publish fans an event out through the broker. It never blocks on slow clients.
func (s *WsServer) Publish(ctx context.Context, event *protocol.PushEvent) {
	s.broker.Publish(ctx, event)
}

// shardOf picks the push queue of topic
func (s *WsServer) shardOf(topic string) chan *protocol.PushEvent {
	h := fnv.New32a()
	_, _ = h.Write([]byte(topic))
	return s.pushShards[h.Sum32()%uint32(len(s.pushShards))]
}

// enqueue hands an event to the worker owning its topic
func (s *WsServer) enqueue(event *protocol.PushEvent) {
	select {
	case s.shardOf(event.Topic) <- event:
	default:
		metrics.DroppedEventsTotal.WithLabelValues("queue_full").Inc()
		log.Warn("push channel full, event dropped: topic=%s, kind=%s", event.Topic, event.Kind)
	}
}

// Subscribe authorizes and records a topic subscription for client.
// user.<uid>.* topics are private to uid; chat.<cid> requires participation.
func (s *WsServer) Subscribe(ctx context.Context, client *Client, topic string) error {
	kind, scopeId, err := constant.ParseTopic(topic)
	if err != nil {
		metrics.SubscribeTotal.WithLabelValues("invalid", "rejected").Inc()
		return errcode.ErrInvalidTopic
	}
	kindLabel := topicKindLabel(kind)

	switch kind {
	case constant.TopicUserMessages, constant.TopicUserNotifications:
		if scopeId != client.UserId {
			metrics.SubscribeTotal.WithLabelValues(kindLabel, "forbidden").Inc()
			return errcode.ErrTopicForbidden
		}
	case constant.TopicChat:
		ok, err := s.authorizer.IsParticipant(ctx, scopeId, client.UserId)
		if err != nil {
			log.CtxError(ctx, "authorize chat topic failed: topic=%s, user_id=%s, error=%v", topic, client.UserId, err)
			metrics.SubscribeTotal.WithLabelValues(kindLabel, "error").Inc()
			return errcode.ErrInternalServer
		}
		if !ok {
			metrics.SubscribeTotal.WithLabelValues(kindLabel, "forbidden").Inc()
			return errcode.ErrTopicForbidden
		}
	}

	added, full := client.addTopic(topic, s.cfg.WebSocket.MaxTopicsPerConn)
	if full {
		metrics.SubscribeTotal.WithLabelValues(kindLabel, "limit").Inc()
		return errcode.ErrTooManyRequests
	}
	if added && s.topicMap.Add(topic, client) {
		metrics.ActiveSubscriptions.Inc()
	}

	metrics.SubscribeTotal.WithLabelValues(kindLabel, "ok").Inc()
	log.CtxDebug(ctx, "topic subscribed: user_id=%s, conn_id=%s, topic=%s", client.UserId, client.ConnId, topic)
	return nil
}

// Unsubscribe drops a subscription. Unknown topics are ignored.
func (s *WsServer) Unsubscribe(client *Client, topic string) {
	client.removeTopic(topic)
	if s.topicMap.Remove(topic, client) {
		metrics.ActiveSubscriptions.Dec()
	}
}

func topicKindLabel(kind constant.TopicKind) string {
	switch kind {
	case constant.TopicChat:
		return "chat"
	case constant.TopicUserMessages:
		return "user_messages"
	case constant.TopicUserNotifications:
		return "user_notifications"
	default:
		return "invalid"
	}
}

// registerClient registers a client
func (s *WsServer) registerClient(ctx context.Context, client *Client) {
	if s.userMap.Register(ctx, client) {
		s.onlineUserNum.Add(1)
	}
	s.onlineConnNum.Add(1)
	s.syncGauges()

	log.CtxInfo(ctx, "client registered: user_id=%s, platform_id=%d, conn_id=%s, online_users=%d, online_conns=%d",
		client.UserId, client.PlatformId, client.ConnId, s.onlineUserNum.Load(), s.onlineConnNum.Load())
}

// unregisterClient drops the client and all of its subscriptions
func (s *WsServer) unregisterClient(ctx context.Context, client *Client) {
	removed := s.topicMap.RemoveClient(client, client.Topics())
	metrics.ActiveSubscriptions.Sub(float64(removed))

	isUserOffline := s.userMap.Unregister(ctx, client)
	s.onlineConnNum.Add(-1)
	if isUserOffline {
		s.onlineUserNum.Add(-1)
	}
	s.syncGauges()

	log.CtxInfo(ctx, "client unregistered: user_id=%s, platform_id=%d, conn_id=%s, user_offline=%v, online_users=%d, online_conns=%d",
		client.UserId, client.PlatformId, client.ConnId, isUserOffline, s.onlineUserNum.Load(), s.onlineConnNum.Load())
}

func (s *WsServer) syncGauges() {
	metrics.OnlineUsers.Set(float64(s.onlineUserNum.Load()))
	metrics.OnlineConnections.Set(float64(s.onlineConnNum.Load()))
}

// UnregisterClient queues client for unregistration
func (s *WsServer) UnregisterClient(client *Client) {
	select {
	case s.unregisterChan <- client:
	default:
		log.Warn("unregister channel full: user_id=%s", client.UserId)
	}
}

// KickToken closes every local connection opened with token. It is used on
// logout so that a revoked session stops receiving events.
func (s *WsServer) KickToken(ctx context.Context, userId, token string) int {
	clients := s.userMap.ClientsWithToken(userId, token)
	for _, client := range clients {
		if err := client.KickOnline(); err != nil {
			log.CtxDebug(ctx, "kick client failed: user_id=%s, conn_id=%s, error=%v", userId, client.ConnId, err)
		}
	}
	return len(clients)
}

// IsOnline reports whether the user has a connection on any instance
func (s *WsServer) IsOnline(ctx context.Context, userId string) bool {
	return s.userMap.IsOnline(ctx, userId)
}

// GetOnlineUserCount returns online user count
func (s *WsServer) GetOnlineUserCount() int64 {
	return s.onlineUserNum.Load()
}

// GetOnlineConnCount returns online connection count
func (s *WsServer) GetOnlineConnCount() int64 {
	return s.onlineConnNum.Load()
}
