package bus

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/golang/glog"
	"github.com/redis/go-redis/v9"
)

const channelPrefix = "inkwell:room:"

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Redis shares rooms between relay instances over Redis pub/sub. One pattern
// subscription per instance carries every room.
type Redis struct {
	client *redis.Client
	subs   []*redis.PubSub
	wg     sync.WaitGroup
	mu     sync.Mutex
}

func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Redis{client: client}, nil
}

func ChannelName(roomID string) string {
	return channelPrefix + roomID
}

func (r *Redis) Publish(ctx context.Context, roomID string, data []byte) error {
	if err := r.client.Publish(ctx, ChannelName(roomID), data).Err(); err != nil {
		return fmt.Errorf("publish to room %s: %w", roomID, err)
	}
	return nil
}

func (r *Redis) Subscribe(ctx context.Context, handler Handler) error {
	pubsub := r.client.PSubscribe(ctx, channelPrefix+"*")

	// wait for the subscription confirmation so nothing published after
	// Subscribe returns is missed
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("subscribe: %w", err)
	}

	r.mu.Lock()
	r.subs = append(r.subs, pubsub)
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for msg := range pubsub.Channel() {
			roomID := strings.TrimPrefix(msg.Channel, channelPrefix)
			if roomID == msg.Channel {
				glog.Warningf("bus: ignoring message on unexpected channel %q", msg.Channel)
				continue
			}
			handler(roomID, []byte(msg.Payload))
		}
		glog.V(1).Info("bus: redis subscription closed")
	}()

	return nil
}

func (r *Redis) Close() error {
	r.mu.Lock()
	subs := r.subs
	r.subs = nil
	r.mu.Unlock()

	for _, s := range subs {
		s.Close()
	}
	r.wg.Wait()
	return r.client.Close()
}
