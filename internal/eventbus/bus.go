// Package eventbus fans out task progress/status events (published by
// the logger's EventbusHandler and the scheduler) to in-process
// subscribers and, optionally, a Redis channel for a multi-process
// deployment. The REST API does not subscribe to it. Grounded on the
// teacher's internal/logger.go WailsHandler-as-event-sink pattern,
// translated from "emit a Wails runtime event" to "publish on a Go
// channel fan-out", with github.com/redis/go-redis/v9 (from
// forest6511-gdl) wired in as the optional cross-process path.
package eventbus

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Event is one task lifecycle or progress update.
type Event struct {
	TaskID         string    `json:"task_id"`
	Status         string    `json:"status"`
	DownloadedSize int64     `json:"downloaded_size"`
	TotalSize      int64     `json:"total_size"`
	Speed          int64     `json:"speed"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

const redisChannel = "corefetch:events"

// Bus is a process-local pub/sub hub with an optional Redis fan-out for
// consumers running outside this process.
type Bus struct {
	mu          sync.Mutex
	subscribers map[chan Event]struct{}
	redis       *redis.Client
}

// New builds a Bus. Pass a non-nil redis.Client to also publish every
// event to Redis; nil disables cross-process fan-out entirely (the
// default, dependency-free path).
func New(rdb *redis.Client) *Bus {
	return &Bus{
		subscribers: make(map[chan Event]struct{}),
		redis:       rdb,
	}
}

// Subscribe registers a new listener. The returned function must be
// called to unregister and release the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subscribers[ch]; ok {
			delete(b.subscribers, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish fans ev out to every local subscriber (non-blocking — a slow
// consumer drops events rather than stalling the worker that published)
// and, if configured, to Redis.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	for ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
	b.mu.Unlock()

	if b.redis == nil {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = b.redis.Publish(ctx, redisChannel, data).Err()
}
