// Package bus distributes values by topic. Publishers post to a topic,
// subscribers consume it through a buffered Consumer whose demand never
// exceeds its free buffer space, so slow consumers shed load at the source
// instead of growing unbounded queues.
package bus

import (
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/petal-labs/petalstream"
)

// DefaultBufferSize is the consumer buffer used when none is configured.
const DefaultBufferSize = 256

// ErrClosed is returned when publishing to a closed hub.
var ErrClosed = errors.New("bus: hub is closed")

// HubConfig configures a Hub.
type HubConfig struct {
	// BufferSize is the buffer of every consumer created by Subscribe and
	// SubscribeAll (default: 256).
	BufferSize int

	// Logger receives debug records (default: slog.Default()).
	Logger *slog.Logger
}

// Hub is a topic-keyed set of streams. Every topic is a PostBox created on
// first subscription; an extra stream carries the values of all topics.
type Hub[T any] struct {
	mu      sync.RWMutex
	topics  map[string]*petalstream.PostBox[T]
	all     *petalstream.PostBox[T]
	opts    []petalstream.Option
	bufSize int
	logger  *slog.Logger
	closed  bool
}

// NewHub creates a hub. opts apply to every topic stream.
func NewHub[T any](cfg HubConfig, opts ...petalstream.Option) *Hub[T] {
	bufSize := cfg.BufferSize
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := &Hub[T]{
		topics:  make(map[string]*petalstream.PostBox[T]),
		opts:    opts,
		bufSize: bufSize,
		logger:  logger,
	}
	h.all = petalstream.NewPostBox[T](h.topicOptions("*")...)
	return h
}

func (h *Hub[T]) topicOptions(topic string) []petalstream.Option {
	return append(slices.Clone(h.opts), petalstream.WithName("hub."+topic))
}

// Topic returns the stream of topic, creating it if needed. On a closed hub
// the returned stream has already ended.
func (h *Hub[T]) Topic(topic string) petalstream.Stream[T] {
	h.mu.Lock()
	defer h.mu.Unlock()

	if box, ok := h.topics[topic]; ok {
		return box
	}
	box := petalstream.NewPostBox[T](h.topicOptions(topic)...)
	if h.closed {
		box.Close()
		return box
	}
	h.topics[topic] = box
	h.logger.Debug("topic created", "topic", topic)
	return box
}

// All returns the stream carrying the values of every topic.
func (h *Hub[T]) All() petalstream.Stream[T] {
	return h.all
}

// Publish posts v to topic and to the all-topics stream. Values published
// to a topic nobody subscribed to reach only the all-topics stream.
func (h *Hub[T]) Publish(topic string, v T) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return ErrClosed
	}
	if box, ok := h.topics[topic]; ok {
		box.Post(v)
	}
	h.all.Post(v)
	return nil
}

// Fail ends topic with err. A later Subscribe to the same topic starts a
// fresh stream.
func (h *Hub[T]) Fail(topic string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	box, ok := h.topics[topic]
	if !ok {
		return
	}
	delete(h.topics, topic)
	box.PostError(err)
	h.logger.Debug("topic failed", "topic", topic, "reason", err)
}

// Subscribe returns a consumer of topic.
func (h *Hub[T]) Subscribe(topic string) *Consumer[T] {
	return Consume(h.Topic(topic), h.bufSize)
}

// SubscribeAll returns a consumer of every topic.
func (h *Hub[T]) SubscribeAll() *Consumer[T] {
	return Consume[T](h.all, h.bufSize)
}

// Topics returns the names of the open topics in sorted order.
func (h *Hub[T]) Topics() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.topics))
	for name := range h.topics {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Close completes every topic stream. Publishing afterwards returns
// ErrClosed.
func (h *Hub[T]) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true

	for _, box := range h.topics {
		box.Close()
	}
	h.all.Close()
	return nil
}
