package transport

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// subscriber channels are buffered so a momentarily busy listener does not
// stall senders; Send never blocks.
const memoryInboxSize = 64

var memorySeq atomic.Uint64

// MemoryWindow is a process-local context used for development and testing.
// NewWindow creates a top-level window (its own parent and top); OpenChild
// models an embedded frame.
type MemoryWindow struct {
	addr   string
	origin string
	parent *MemoryWindow
	top    *MemoryWindow
	logger *zap.Logger

	mu     sync.RWMutex
	nextID int
	subs   map[int]chan Message
	closed bool
}

// MemoryOption customizes a memory window tree.
type MemoryOption func(*MemoryWindow)

// WithMemoryLogger attaches a logger used for dropped-delivery diagnostics.
func WithMemoryLogger(l *zap.Logger) MemoryOption {
	return func(w *MemoryWindow) {
		if l != nil {
			w.logger = l
		}
	}
}

// NewWindow creates a top-level in-memory window with the given origin.
func NewWindow(origin string, opts ...MemoryOption) *MemoryWindow {
	w := &MemoryWindow{
		addr:   fmt.Sprintf("mem-%d", memorySeq.Add(1)),
		origin: origin,
		logger: zap.NewNop(),
		subs:   make(map[int]chan Message),
	}
	w.parent = w
	w.top = w
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// OpenChild creates a child window embedded in w, as an iframe is embedded
// in a page. The child's parent is w and its top is w's top.
func (w *MemoryWindow) OpenChild(origin string) *MemoryWindow {
	return &MemoryWindow{
		addr:   fmt.Sprintf("mem-%d", memorySeq.Add(1)),
		origin: origin,
		parent: w,
		top:    w.top,
		logger: w.logger,
		subs:   make(map[int]chan Message),
	}
}

func (w *MemoryWindow) Addr() string   { return w.addr }
func (w *MemoryWindow) Origin() string { return w.origin }
func (w *MemoryWindow) Parent() Window { return w.parent }
func (w *MemoryWindow) Top() Window    { return w.top }

// Send delivers data to every subscriber of the target window, stamping the
// message with w's origin and a handle back to w.
func (w *MemoryWindow) Send(to Window, data []byte, targetOrigin string) error {
	target, ok := to.(*MemoryWindow)
	if !ok || target == nil {
		return errors.New("memory: target is not a memory window")
	}
	if targetOrigin != Wildcard && targetOrigin != target.origin {
		// The browser primitive drops these with a console warning.
		w.logger.Debug("memory: delivery dropped, target origin mismatch",
			zap.String("target", target.addr),
			zap.String("wanted", targetOrigin),
			zap.String("actual", target.origin))
		return nil
	}
	msg := Message{Data: append([]byte(nil), data...), Origin: w.origin, Source: w}

	target.mu.RLock()
	defer target.mu.RUnlock()
	if target.closed {
		return nil
	}
	for _, ch := range target.subs {
		select {
		case ch <- msg:
		default:
			// Never stall the sender on a slow subscriber.
			w.logger.Debug("memory: subscriber inbox full, message dropped",
				zap.String("target", target.addr))
		}
	}
	return nil
}

// Subscribe registers a listener for messages delivered to w.
func (w *MemoryWindow) Subscribe() (<-chan Message, func(), error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, nil, errors.New("memory: window closed")
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

// Close tears down the window: all subscriptions are cancelled and further
// Subscribe/Send calls on it become no-ops.
func (w *MemoryWindow) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	for id, sub := range w.subs {
		delete(w.subs, id)
		close(sub)
	}
	return nil
}
