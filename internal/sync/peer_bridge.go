package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/go-redis/redis/v8"

	"github.com/xelth-com/examroom/internal/graph"
)

// PeerBridge fans graph ops out between relays sharing one Redis.
// Each relay publishes the ops it accepted from its own clients and applies
// the ops published by the others; the relay-assigned state keeps the merge
// result identical everywhere.
type PeerBridge struct {
	bus        bus
	channel    string
	instanceID string
}

// bus is the slice of Redis pub/sub the bridge relies on
type bus interface {
	Ping(ctx context.Context) error
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan *redis.Message, io.Closer, error)
	Close() error
}

type redisBus struct {
	client *redis.Client
}

func (r redisBus) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r redisBus) Publish(ctx context.Context, channel string, payload []byte) error {
	return r.client.Publish(ctx, channel, payload).Err()
}

func (r redisBus) Subscribe(ctx context.Context, channel string) (<-chan *redis.Message, io.Closer, error) {
	sub := r.client.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, nil, err
	}
	return sub.Channel(), sub, nil
}

func (r redisBus) Close() error {
	return r.client.Close()
}

// NewPeerBridge connects to Redis. redisURL may be a redis:// URL or a bare host:port.
func NewPeerBridge(redisURL, cluster, instanceID string) (*PeerBridge, error) {
	opts := &redis.Options{Addr: redisURL}
	if strings.Contains(redisURL, "://") {
		parsed, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		opts = parsed
	}

	client := redis.NewClient(opts)
	log.Println("🔧 Redis peer bridge initialized with address:", opts.Addr)

	return newPeerBridge(redisBus{client: client}, cluster, instanceID), nil
}

func newPeerBridge(b bus, cluster, instanceID string) *PeerBridge {
	return &PeerBridge{bus: b, channel: ChannelName(cluster), instanceID: instanceID}
}

// ChannelName is the pub/sub channel shared by the relays of one cluster
func ChannelName(cluster string) string {
	return "examroom:" + cluster + ":ops"
}

// Ping checks the Redis connection
func (b *PeerBridge) Ping(ctx context.Context) error {
	return b.bus.Ping(ctx)
}

// Publish sends an op to the other relays
func (b *PeerBridge) Publish(ctx context.Context, op graph.Op) error {
	data, err := json.Marshal(op)
	if err != nil {
		return err
	}
	return b.bus.Publish(ctx, b.channel, data)
}

// Run receives ops from other relays until ctx is cancelled
func (b *PeerBridge) Run(ctx context.Context, apply func(graph.Op)) error {
	ch, sub, err := b.bus.Subscribe(ctx, b.channel)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	defer sub.Close()
	log.Printf("✅ Peer bridge listening on %s", b.channel)

	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			op, ok := b.decode(m.Payload)
			if !ok {
				continue
			}
			apply(op)
		}
	}
}

// decode parses a peer message, skipping our own echoes and garbage
func (b *PeerBridge) decode(payload string) (graph.Op, bool) {
	var op graph.Op
	if err := json.Unmarshal([]byte(payload), &op); err != nil {
		log.Printf("⚠️ Peer bridge: dropping malformed op: %v", err)
		return graph.Op{}, false
	}
	if op.Origin == b.instanceID {
		return graph.Op{}, false
	}
	if err := op.Path.Validate(); err != nil {
		log.Printf("⚠️ Peer bridge: dropping op from %s: %v", op.Origin, err)
		return graph.Op{}, false
	}
	return op, true
}

// Close releases the Redis client
func (b *PeerBridge) Close() error {
	return b.bus.Close()
}
