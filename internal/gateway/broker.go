package gateway

import (
	"context"
	"encoding/json"

	"github.com/mbeoliero/kit/log"
	"github.com/redis/go-redis/v9"

	"github.com/mbeoliero/jobchat/internal/metrics"
	"github.com/mbeoliero/jobchat/pkg/constant"
	"github.com/mbeoliero/jobchat/pkg/protocol"
)

// Broker fans push events out to every gateway instance through Redis
// pub/sub. Without Redis it delivers straight to the local instance.
type Broker struct {
	rdb     *redis.Client
	channel string
	deliver func(event *protocol.PushEvent)
}

// NewBroker creates a broker that hands received events to deliver
func NewBroker(rdb *redis.Client, deliver func(event *protocol.PushEvent)) *Broker {
	return &Broker{
		rdb:     rdb,
		channel: constant.RedisChannelEvents(),
		deliver: deliver,
	}
}

// Publish sends an event to all instances
func (b *Broker) Publish(ctx context.Context, event *protocol.PushEvent) {
	if b.rdb == nil {
		b.deliver(event)
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		log.CtxError(ctx, "encode push event failed: topic=%s, error=%v", event.Topic, err)
		metrics.BrokerPublishTotal.WithLabelValues("encode_error").Inc()
		return
	}

	if err := b.rdb.Publish(ctx, b.channel, payload).Err(); err != nil {
		// Local subscribers still get the event
		log.CtxWarn(ctx, "publish push event failed, delivering locally: topic=%s, error=%v", event.Topic, err)
		metrics.BrokerPublishTotal.WithLabelValues("error").Inc()
		b.deliver(event)
		return
	}
	metrics.BrokerPublishTotal.WithLabelValues("ok").Inc()
}

// Run consumes the shared channel until ctx is cancelled
func (b *Broker) Run(ctx context.Context) {
	if b.rdb == nil {
		return
	}

	sub := b.rdb.Subscribe(ctx, b.channel)
	defer sub.Close()

	log.CtxInfo(ctx, "broker subscribed: channel=%s", b.channel)
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				log.CtxWarn(ctx, "broker channel closed: channel=%s", b.channel)
				return
			}
			var event protocol.PushEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.CtxWarn(ctx, "decode push event failed: error=%v", err)
				continue
			}
			b.deliver(&event)
		}
	}
}
