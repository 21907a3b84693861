// Package rediswatcher propagates policy changes between enforcer instances
// over a Redis pub/sub channel. Each instance tags its messages with a
// unique id so it never reacts to its own updates.
package rediswatcher

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Sentinel-Gate/gatekit/event"
)

// DefaultChannel is the pub/sub channel used when none is configured.
const DefaultChannel = "gatekit.policy"

const messageSeparator = "\x1e"

// Watcher implements persist.Watcher on top of Redis pub/sub.
type Watcher struct {
	client  *redis.Client
	sub     *redis.PubSub
	channel string
	localID string

	mu       sync.RWMutex
	callback func(string)

	cancel context.CancelFunc
	done   chan struct{}
}

// Options configures the watcher.
type Options struct {
	// Addr is the Redis address, host:port.
	Addr string
	// Password authenticates the connection when non-empty.
	Password string
	// DB selects the Redis logical database.
	DB int
	// Channel overrides DefaultChannel when non-empty.
	Channel string
}

// New connects, subscribes, and starts the receive loop.
func New(ctx context.Context, opts Options) (*Watcher, error) {
	channel := opts.Channel
	if channel == "" {
		channel = DefaultChannel
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	sub := client.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		client.Close()
		return nil, err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		client:  client,
		sub:     sub,
		channel: channel,
		localID: uuid.NewString(),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go w.receive(loopCtx)
	return w, nil
}

func (w *Watcher) receive(ctx context.Context) {
	defer close(w.done)
	ch := w.sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			sender, summary, found := strings.Cut(msg.Payload, messageSeparator)
			if !found || sender == w.localID {
				continue
			}
			w.mu.RLock()
			cb := w.callback
			w.mu.RUnlock()
			if cb != nil {
				cb(summary)
			}
		}
	}
}

// SetUpdateCallback installs the function invoked for updates published by
// other instances.
func (w *Watcher) SetUpdateCallback(fn func(string)) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callback = fn
	return nil
}

// Update publishes a local policy change to the channel.
func (w *Watcher) Update(ctx context.Context, d event.Data) error {
	return w.client.Publish(ctx, w.channel, w.localID+messageSeparator+d.String()).Err()
}

// Close stops the receive loop and releases the connection.
func (w *Watcher) Close() error {
	w.cancel()
	err := w.sub.Close()
	<-w.done
	if cerr := w.client.Close(); err == nil {
		err = cerr
	}
	return err
}
