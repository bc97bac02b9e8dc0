package gateway

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/mbeoliero/kit/log"
	"github.com/redis/go-redis/v9"

	"github.com/mbeoliero/jobchat/pkg/constant"
)

// UserMap indexes local connections by user. Presence is mirrored into one
// Redis hash per user with a field per connection, so a user stays online
// while any gateway instance still holds one of their connections.
type UserMap struct {
	mu    sync.RWMutex
	users map[string]map[string]*Client // userId -> connId -> client
	rdb   *redis.Client
}

// NewUserMap creates an empty map. rdb may be nil for a single instance.
func NewUserMap(rdb *redis.Client) *UserMap {
	return &UserMap{
		users: make(map[string]map[string]*Client),
		rdb:   rdb,
	}
}

// Register adds client and reports whether it is the user's first local
// connection
func (m *UserMap) Register(ctx context.Context, client *Client) bool {
	m.mu.Lock()
	conns, ok := m.users[client.UserId]
	if !ok {
		conns = make(map[string]*Client, 2)
		m.users[client.UserId] = conns
	}
	conns[client.ConnId] = client
	m.mu.Unlock()

	m.markPresent(ctx, client)
	return !ok
}

// Unregister removes client and reports whether the user has no local
// connection left
func (m *UserMap) Unregister(ctx context.Context, client *Client) bool {
	m.mu.Lock()
	conns, ok := m.users[client.UserId]
	if !ok {
		m.mu.Unlock()
		return false
	}
	if _, found := conns[client.ConnId]; !found {
		m.mu.Unlock()
		return false
	}
	delete(conns, client.ConnId)
	last := len(conns) == 0
	if last {
		delete(m.users, client.UserId)
	}
	m.mu.Unlock()

	m.markAbsent(ctx, client)
	return last
}

// Clients returns the user's local connections
func (m *UserMap) Clients(userId string) []*Client {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conns := m.users[userId]
	out := make([]*Client, 0, len(conns))
	for _, c := range conns {
		out = append(out, c)
	}
	return out
}

// ClientsWithToken returns the user's local connections opened with token
func (m *UserMap) ClientsWithToken(userId, token string) []*Client {
	var out []*Client
	for _, c := range m.Clients(userId) {
		if c.Token == token {
			out = append(out, c)
		}
	}
	return out
}

// IsOnline checks local connections first, then the shared presence hash
func (m *UserMap) IsOnline(ctx context.Context, userId string) bool {
	m.mu.RLock()
	_, local := m.users[userId]
	m.mu.RUnlock()
	if local || m.rdb == nil {
		return local
	}

	n, err := m.rdb.HLen(ctx, presenceKey(userId)).Result()
	if err != nil {
		log.CtxDebug(ctx, "presence lookup failed: user_id=%s, error=%v", userId, err)
		return false
	}
	return n > 0
}

// RefreshAll rewrites the presence fields of every local connection and
// extends their TTL. Fields of a crashed instance expire with the key.
func (m *UserMap) RefreshAll(ctx context.Context) {
	if m.rdb == nil {
		return
	}

	m.mu.RLock()
	pipe := m.rdb.Pipeline()
	for userId, conns := range m.users {
		key := presenceKey(userId)
		for connId, c := range conns {
			pipe.HSet(ctx, key, connId, strconv.Itoa(c.PlatformId))
		}
		pipe.Expire(ctx, key, onlineStatusTTL)
	}
	m.mu.RUnlock()

	if _, err := pipe.Exec(ctx); err != nil {
		log.CtxWarn(ctx, "presence refresh failed: error=%v", err)
	}
}

func (m *UserMap) markPresent(ctx context.Context, client *Client) {
	if m.rdb == nil {
		return
	}

	key := presenceKey(client.UserId)
	pipe := m.rdb.TxPipeline()
	pipe.HSet(ctx, key, client.ConnId, strconv.Itoa(client.PlatformId))
	pipe.Expire(ctx, key, onlineStatusTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		log.CtxWarn(ctx, "mark present failed: user_id=%s, error=%v", client.UserId, err)
	}
}

func (m *UserMap) markAbsent(ctx context.Context, client *Client) {
	if m.rdb == nil {
		return
	}

	if err := m.rdb.HDel(ctx, presenceKey(client.UserId), client.ConnId).Err(); err != nil {
		log.CtxWarn(ctx, "mark absent failed: user_id=%s, error=%v", client.UserId, err)
	}
}

func presenceKey(userId string) string {
	return fmt.Sprintf(constant.RedisKeyOnline(), userId)
}
