package outbox

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"
)

const DefaultStream = "housekeeping:events"

// RedisStreamPublisher appends delivered events to a Redis stream for
// external subscribers (dashboards, integrations).
type RedisStreamPublisher struct {
	Client *redis.Client
	Stream string
}

func (p RedisStreamPublisher) Publish(ctx context.Context, ev Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	stream := p.Stream
	if stream == "" {
		stream = DefaultStream
	}
	return p.Client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{
			"id":   ev.ID,
			"kind": string(ev.Kind),
			"data": string(b),
		},
	}).Err()
}
