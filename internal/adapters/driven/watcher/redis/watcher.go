// Package redis notifies other service instances of policy changes over
// Redis pub/sub.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/casbin/casbin/v2/persist"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ChannelName is the default Redis channel for policy updates.
const ChannelName = "casbin:policy:update"

const publishTimeout = 5 * time.Second

// Watcher is a casbin persist.Watcher backed by Redis pub/sub.
// Messages have the form "<instance id>:update"; messages published by
// this instance are ignored.
type Watcher struct {
	client     *redis.Client
	channel    string
	instanceID string
	logger     *slog.Logger

	mu       sync.RWMutex
	callback func(string)
	pubsub   *redis.PubSub
	wg       sync.WaitGroup
}

var _ persist.Watcher = (*Watcher)(nil)

// Option configures a Watcher.
type Option func(*Watcher)

// WithChannel sets the pub/sub channel.
func WithChannel(channel string) Option {
	return func(w *Watcher) {
		if channel != "" {
			w.channel = channel
		}
	}
}

// WithInstanceID sets the id stamped on published messages.
func WithInstanceID(id string) Option {
	return func(w *Watcher) {
		if id != "" {
			w.instanceID = id
		}
	}
}

// WithLogger sets the watcher logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewWatcher creates a Watcher. Call Start to receive updates.
func NewWatcher(client *redis.Client, opts ...Option) *Watcher {
	w := &Watcher{
		client:     client,
		channel:    ChannelName,
		instanceID: uuid.NewString(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// InstanceID returns the id stamped on messages from this watcher.
func (w *Watcher) InstanceID() string {
	return w.instanceID
}

// Start subscribes to the channel and dispatches incoming messages until
// Close is called.
func (w *Watcher) Start(ctx context.Context) error {
	pubsub := w.client.Subscribe(ctx, w.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", w.channel, err)
	}

	w.mu.Lock()
	w.pubsub = pubsub
	w.mu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for msg := range pubsub.Channel() {
			w.handleMessage(msg.Payload)
		}
		w.logger.Debug("policy watcher subscription closed", "channel", w.channel)
	}()

	w.logger.Info("policy watcher started", "channel", w.channel, "instance_id", w.instanceID)
	return nil
}

func (w *Watcher) handleMessage(payload string) {
	sender, _, _ := strings.Cut(payload, ":")
	if sender == w.instanceID {
		return
	}

	w.mu.RLock()
	callback := w.callback
	w.mu.RUnlock()
	if callback == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("recovered from panic in watcher callback", "error", r, "payload", payload)
		}
	}()
	callback(payload)
}

// SetUpdateCallback sets the function called when another instance
// changes the policy.
func (w *Watcher) SetUpdateCallback(callback func(string)) error {
	w.mu.Lock()
	w.callback = callback
	w.mu.Unlock()
	return nil
}

// Update publishes a policy update message.
func (w *Watcher) Update() error {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := w.client.Publish(ctx, w.channel, w.instanceID+":update").Err(); err != nil {
		return fmt.Errorf("failed to publish policy update: %w", err)
	}
	return nil
}

// Close stops the subscription and waits for the dispatch loop to exit.
func (w *Watcher) Close() {
	w.mu.Lock()
	pubsub := w.pubsub
	w.pubsub = nil
	w.mu.Unlock()

	if pubsub != nil {
		_ = pubsub.Close()
	}
	w.wg.Wait()
}
