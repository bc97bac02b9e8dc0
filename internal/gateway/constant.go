package gateway

import "time"

// Timeouts used when the websocket config leaves them unset
const (
	// WriteWait is time allowed to write a message to the peer
	WriteWait = 10 * time.Second

	// PongWait is time allowed to read the next pong message from the peer
	PongWait = 30 * time.Second

	// PingPeriod is period between pings. Must be less than PongWait
	PingPeriod = (PongWait * 9) / 10
)

// Queue sizes used when the websocket config leaves them unset
const (
	defaultPushChanSize  = 10000
	defaultPushWorkers   = 10
	defaultWriteChanSize = 256
	registerChanSize     = 1000
)

// Presence entries outlive a crashed instance by at most onlineStatusTTL
const (
	onlineStatusTTL       = 60 * time.Second
	onlineRefreshInterval = 30 * time.Second
)
