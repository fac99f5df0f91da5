package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// redisChannelPrefix namespaces window inboxes on the shared Redis instance.
const redisChannelPrefix = "win:"

// redisFrame is the wire format between Redis-backed windows. The target
// origin travels with the frame because only the receiving side knows its
// own origin; it enforces the restriction on delivery.
type redisFrame struct {
	Origin       string `json:"origin"`
	Source       string `json:"source"`
	TargetOrigin string `json:"targetOrigin"`
	Data         []byte `json:"data"`
}

func encodeRedisFrame(f redisFrame) ([]byte, error) {
	return json.Marshal(f)
}

func decodeRedisFrame(b []byte) (redisFrame, error) {
	var f redisFrame
	if err := json.Unmarshal(b, &f); err != nil {
		return redisFrame{}, fmt.Errorf("decode frame: %w", err)
	}
	return f, nil
}

// redisHandle is a Window referring to a remote Redis-backed context by
// address only.
type redisHandle struct {
	addr string
}

func (h redisHandle) Addr() string { return h.addr }

// RedisWindow is a Context bridged over Redis Pub/Sub: every window owns an
// address and listens on its own channel, so two processes can run the two
// ends of a winmsg channel. Parent and top both refer to the configured peer
// address; the bridge is strictly two-party.
type RedisWindow struct {
	rdb        *redis.Client
	addr       string
	origin     string
	parentAddr string
	logger     *zap.Logger

	sub *redis.PubSub

	mu     sync.RWMutex
	nextID int
	subs   map[int]chan Message
	closed bool

	wg sync.WaitGroup
}

// RedisOption customizes a Redis-backed window.
type RedisOption func(*RedisWindow)

// WithRedisLogger attaches a logger for delivery diagnostics.
func WithRedisLogger(l *zap.Logger) RedisOption {
	return func(w *RedisWindow) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithAddress pins the window to a stable address instead of a generated
// one, so peers can be configured ahead of time.
func WithAddress(addr string) RedisOption {
	return func(w *RedisWindow) {
		if addr != "" {
			w.addr = addr
		}
	}
}

// WithParentAddress sets the peer the window treats as its parent context.
// Without it the window is its own parent, like a top-level page.
func WithParentAddress(addr string) RedisOption {
	return func(w *RedisWindow) {
		w.parentAddr = addr
	}
}

// NewRedisWindow connects a window context to Redis and starts consuming its
// inbox channel. The subscription is confirmed before returning so a message
// posted immediately after cannot be missed.
func NewRedisWindow(ctx context.Context, rdb *redis.Client, origin string, opts ...RedisOption) (*RedisWindow, error) {
	w := &RedisWindow{
		rdb:    rdb,
		addr:   uuid.NewString(),
		origin: origin,
		logger: zap.NewNop(),
		subs:   make(map[int]chan Message),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.parentAddr == "" {
		w.parentAddr = w.addr
	}

	w.sub = rdb.Subscribe(ctx, redisChannelPrefix+w.addr)
	if _, err := w.sub.Receive(ctx); err != nil {
		_ = w.sub.Close()
		return nil, fmt.Errorf("subscribe inbox: %w", err)
	}

	ch := w.sub.Channel(redis.WithChannelSize(1024))
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for msg := range ch {
			w.deliver([]byte(msg.Payload))
		}
	}()
	return w, nil
}

func (w *RedisWindow) deliver(payload []byte) {
	frame, err := decodeRedisFrame(payload)
	if err != nil {
		w.logger.Debug("redis: malformed frame dropped", zap.Error(err))
		return
	}
	if frame.TargetOrigin != Wildcard && frame.TargetOrigin != w.origin {
		w.logger.Debug("redis: delivery dropped, target origin mismatch",
			zap.String("wanted", frame.TargetOrigin),
			zap.String("actual", w.origin))
		return
	}
	msg := Message{Data: frame.Data, Origin: frame.Origin, Source: redisHandle{addr: frame.Source}}

	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, sub := range w.subs {
		select {
		case sub <- msg:
		default:
			w.logger.Debug("redis: subscriber inbox full, message dropped")
		}
	}
}

func (w *RedisWindow) Addr() string   { return w.addr }
func (w *RedisWindow) Origin() string { return w.origin }
func (w *RedisWindow) Parent() Window { return redisHandle{addr: w.parentAddr} }
func (w *RedisWindow) Top() Window    { return redisHandle{addr: w.parentAddr} }

// Send publishes data on the target window's inbox channel.
func (w *RedisWindow) Send(to Window, data []byte, targetOrigin string) error {
	if to == nil {
		return fmt.Errorf("redis: nil target window")
	}
	frame, err := encodeRedisFrame(redisFrame{
		Origin:       w.origin,
		Source:       w.addr,
		TargetOrigin: targetOrigin,
		Data:         data,
	})
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	return w.rdb.Publish(context.Background(), redisChannelPrefix+to.Addr(), frame).Err()
}

// Subscribe registers a listener for messages delivered to this window.
func (w *RedisWindow) Subscribe() (<-chan Message, func(), error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, nil, fmt.Errorf("redis: window closed")
	}
	id := w.nextID
	w.nextID++
	ch := make(chan Message, memoryInboxSize)
	w.subs[id] = ch

	cancel := func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		if sub, ok := w.subs[id]; ok {
			delete(w.subs, id)
			close(sub)
		}
	}
	return ch, cancel, nil
}

// Close tears down the inbox subscription and every local listener.
func (w *RedisWindow) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	for id, sub := range w.subs {
		delete(w.subs, id)
		close(sub)
	}
	w.mu.Unlock()

	err := w.sub.Close()
	w.wg.Wait()
	return err
}
