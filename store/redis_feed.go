package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"
)

// DefaultFeedChannel is the redis pub/sub channel shared by API instances and reviewctl.
const DefaultFeedChannel = "refund-review:changes"

// RedisFeed relays changes through redis pub/sub so that every process (API replicas,
// the ingest CLI) sees the same change stream. Received messages are fanned out to
// local subscribers through a LocalFeed.
type RedisFeed struct {
	client  *redis.Client
	channel string
	pubsub  *redis.PubSub
	local   *LocalFeed
	done    chan struct{}
	once    sync.Once
}

// NewRedisFeed subscribes to channel and starts relaying. It fails if the
// subscription cannot be confirmed.
func NewRedisFeed(ctx context.Context, client *redis.Client, channel string) (*RedisFeed, error) {
	if channel == "" {
		channel = DefaultFeedChannel
	}
	pubsub := client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	f := &RedisFeed{
		client:  client,
		channel: channel,
		pubsub:  pubsub,
		local:   NewLocalFeed(),
		done:    make(chan struct{}),
	}
	go f.relay()
	return f, nil
}

func (f *RedisFeed) relay() {
	defer close(f.done)
	for msg := range f.pubsub.Channel() {
		change, err := DecodeChange([]byte(msg.Payload))
		if err != nil {
			log.Printf("[feed] dropping malformed change on %s: %v", f.channel, err)
			continue
		}
		f.local.deliver(change)
	}
}

func (f *RedisFeed) Publish(ctx context.Context, c Change) error {
	payload, err := EncodeChange(c)
	if err != nil {
		return err
	}
	return f.client.Publish(ctx, f.channel, payload).Err()
}

func (f *RedisFeed) Subscribe(buffer int) (<-chan Change, func()) {
	return f.local.Subscribe(buffer)
}

func (f *RedisFeed) Close() error {
	var err error
	f.once.Do(func() {
		err = f.pubsub.Close()
		<-f.done
		_ = f.local.Close()
	})
	return err
}

func EncodeChange(c Change) ([]byte, error) {
	return json.Marshal(c)
}

func DecodeChange(raw []byte) (Change, error) {
	var c Change
	if err := json.Unmarshal(raw, &c); err != nil {
		return Change{}, err
	}
	if c.Kind == "" {
		return Change{}, fmt.Errorf("change without kind")
	}
	return c, nil
}
