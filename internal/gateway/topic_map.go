package gateway

import "sync"

// TopicMap indexes local connections by the topics they subscribed to
type TopicMap struct {
	mu     sync.RWMutex
	topics map[string]map[string]*Client // topic -> connId -> client
	subs   int
}

// NewTopicMap creates a new TopicMap
func NewTopicMap() *TopicMap {
	return &TopicMap{
		topics: make(map[string]map[string]*Client),
	}
}

// Add subscribes client to topic. It reports false if it already was.
func (m *TopicMap) Add(topic string, client *Client) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	conns, ok := m.topics[topic]
	if !ok {
		conns = make(map[string]*Client, 2)
		m.topics[topic] = conns
	}
	if _, dup := conns[client.ConnId]; dup {
		return false
	}
	conns[client.ConnId] = client
	m.subs++
	return true
}

// Remove unsubscribes client from topic. It reports false if it was not subscribed.
func (m *TopicMap) Remove(topic string, client *Client) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeLocked(topic, client)
}

func (m *TopicMap) removeLocked(topic string, client *Client) bool {
	conns, ok := m.topics[topic]
	if !ok {
		return false
	}
	if _, ok := conns[client.ConnId]; !ok {
		return false
	}
	delete(conns, client.ConnId)
	m.subs--
	if len(conns) == 0 {
		delete(m.topics, topic)
	}
	return true
}

// RemoveClient drops every listed subscription of client and returns how many were removed
func (m *TopicMap) RemoveClient(client *Client, topics []string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for _, topic := range topics {
		if m.removeLocked(topic, client) {
			removed++
		}
	}
	return removed
}

// Get returns a snapshot of the clients subscribed to topic
func (m *TopicMap) Get(topic string) []*Client {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conns := m.topics[topic]
	if len(conns) == 0 {
		return nil
	}
	clients := make([]*Client, 0, len(conns))
	for _, c := range conns {
		clients = append(clients, c)
	}
	return clients
}

// SubscriptionCount returns the number of (connection, topic) pairs
func (m *TopicMap) SubscriptionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.subs
}

// TopicCount returns the number of topics with at least one subscriber
func (m *TopicMap) TopicCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.topics)
}
