package store

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Notifier fans out change events to live subscriptions. Events carry no
// payload; subscribers re-read the store and deliver a full snapshot.
type Notifier interface {
	PropertiesChanged(ctx context.Context, ownerID string)
	TasksChanged(ctx context.Context, propertyID string)
	// Subscribe returns a channel that ticks on every change event for the
	// topic, plus a cancel func that releases the subscription. Callers must
	// cancel on teardown; a leaked subscription is a bug.
	Subscribe(ctx context.Context, topic string) (<-chan struct{}, func())
}

// PropertiesTopic names the change channel for one owner's property list.
func PropertiesTopic(ownerID string) string { return "hausdesk:changes:properties:" + ownerID }

// TasksTopic names the change channel for one property's task list.
func TasksTopic(propertyID string) string { return "hausdesk:changes:tasks:" + propertyID }

// MemoryNotifier delivers change events in-process (single instance only).
type MemoryNotifier struct {
	mu   sync.Mutex
	subs map[string]map[int]chan struct{}
	next int
}

// NewMemoryNotifier builds an in-process notifier.
func NewMemoryNotifier() *MemoryNotifier {
	return &MemoryNotifier{subs: make(map[string]map[int]chan struct{})}
}

// PropertiesChanged signals subscribers of an owner's property list.
func (n *MemoryNotifier) PropertiesChanged(_ context.Context, ownerID string) {
	n.publish(PropertiesTopic(ownerID))
}

// TasksChanged signals subscribers of a property's task list.
func (n *MemoryNotifier) TasksChanged(_ context.Context, propertyID string) {
	n.publish(TasksTopic(propertyID))
}

func (n *MemoryNotifier) publish(topic string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs[topic] {
		// Coalescing send: a pending tick already forces a re-read.
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Subscribe registers a listener for the topic.
func (n *MemoryNotifier) Subscribe(_ context.Context, topic string) (<-chan struct{}, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.subs[topic] == nil {
		n.subs[topic] = make(map[int]chan struct{})
	}
	id := n.next
	n.next++
	ch := make(chan struct{}, 1)
	n.subs[topic][id] = ch
	cancel := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if sub, ok := n.subs[topic][id]; ok {
			delete(n.subs[topic], id)
			close(sub)
		}
	}
	return ch, cancel
}

// RedisNotifier delivers change events over Redis pub/sub so every instance
// sees writes made by any other.
type RedisNotifier struct {
	client *redis.Client
}

// NewRedisNotifier builds a Redis-backed notifier.
func NewRedisNotifier(addr, password string) *RedisNotifier {
	return &RedisNotifier{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
	}
}

// PropertiesChanged publishes an event for an owner's property list.
func (n *RedisNotifier) PropertiesChanged(ctx context.Context, ownerID string) {
	n.publish(ctx, PropertiesTopic(ownerID))
}

// TasksChanged publishes an event for a property's task list.
func (n *RedisNotifier) TasksChanged(ctx context.Context, propertyID string) {
	n.publish(ctx, TasksTopic(propertyID))
}

func (n *RedisNotifier) publish(ctx context.Context, topic string) {
	// Detached from the request lifetime so the event still reaches
	// subscribers when the originating request ends first.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()
	_ = n.client.Publish(pubCtx, topic, "1").Err()
}

// Subscribe opens a pub/sub subscription for the topic. The returned cancel
// closes the underlying Redis subscription.
func (n *RedisNotifier) Subscribe(ctx context.Context, topic string) (<-chan struct{}, func()) {
	pubsub := n.client.Subscribe(ctx, topic)
	out := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		defer close(out)
		msgs := pubsub.Channel()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = pubsub.Close()
		})
	}
	return out, cancel
}
