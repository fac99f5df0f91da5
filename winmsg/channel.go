// Package winmsg implements named request/response channels between two
// window-like contexts over a fire-and-forget transport. A channel name
// derives a request topic and a response topic; a responder announces
// readiness with a setup envelope and serves requests for the life of the
// channel, while requesters wait for that announcement before their first
// send and correlate responses on the response topic.
package winmsg

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/mrjvadi/go-winmsg/transport"
)

// ErrClosed is returned by Request and Handle after Close.
var ErrClosed = errors.New("winmsg: channel closed")

const defaultMaxJobs = 10

// Channel is one side of a named request/response path. Create one per
// (channel name, window context); both roles are served by the same handle.
type Channel struct {
	win       transport.Context
	name      string
	reqTopic  string
	respTopic string
	logger    *zap.Logger
	strict    bool

	ctx       context.Context
	cancelCtx context.CancelFunc
	done      chan struct{}
	cancelSub func()
	sem       chan struct{}
	wg        sync.WaitGroup

	mu         sync.Mutex
	handlers   []HandlerFunc
	setupDone  bool
	nextWaiter int
	waiters    map[int]chan struct{}
	closed     bool
}

// New derives the channel's topics and starts its standing listener, so a
// requester created before its peer still observes the setup announcement
// the moment it is posted. No other side effect occurs until Handle or
// Request is called.
func New(win transport.Context, name string, opts ...Option) (*Channel, error) {
	c := &Channel{
		win:       win,
		name:      name,
		reqTopic:  requestTopic(name),
		respTopic: responseTopic(name),
		logger:    zap.NewNop(),
		done:      make(chan struct{}),
		sem:       make(chan struct{}, defaultMaxJobs),
		waiters:   make(map[int]chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.ctx, c.cancelCtx = context.WithCancel(context.Background())

	inbox, cancel, err := win.Subscribe()
	if err != nil {
		c.cancelCtx()
		return nil, err
	}
	c.cancelSub = cancel

	c.wg.Add(1)
	go c.dispatch(inbox)
	return c, nil
}

// Name returns the channel name.
func (c *Channel) Name() string { return c.name }

// dispatch is the channel's actor: it consumes the standing subscription
// and routes every inbound envelope exactly once.
func (c *Channel) dispatch(inbox <-chan transport.Message) {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case msg, ok := <-inbox:
			if !ok {
				return
			}
			c.route(msg)
		}
	}
}

// route applies the inbound discard rules shared by both roles: wrong
// origin, undecodable payload and foreign topics are dropped silently.
func (c *Channel) route(msg transport.Message) {
	if msg.Origin != c.win.Origin() {
		return
	}
	env, err := decodeEnvelope(msg.Data)
	if err != nil {
		c.logger.Debug("undecodable envelope dropped", zap.Error(err))
		return
	}
	if env.Topic != c.reqTopic {
		return
	}
	if env.IsSetup {
		c.completeSetup()
		return
	}
	c.serveRequest(env, msg)
}

// completeSetup flips the sticky setup flag and resumes every waiter.
func (c *Channel) completeSetup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setupDone {
		return
	}
	c.setupDone = true
	for id, w := range c.waiters {
		close(w)
		delete(c.waiters, id)
	}
}

// waitForSetup blocks until the peer's setup announcement has been observed.
// The flag never resets, so at most the first call per requester waits.
func (c *Channel) waitForSetup(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.setupDone {
		c.mu.Unlock()
		return nil
	}
	id := c.nextWaiter
	c.nextWaiter++
	w := make(chan struct{})
	c.waiters[id] = w
	c.mu.Unlock()

	select {
	case <-w:
		return nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.waiters, id)
		c.mu.Unlock()
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	}
}

// withConcurrency runs fn on the handler pool, bounded by WithMaxJobs.
func (c *Channel) withConcurrency(fn func()) {
	c.sem <- struct{}{}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() { <-c.sem }()
		fn()
	}()
}

// Close tears down the standing subscription, stops the dispatch actor,
// fails pending setup waiters with ErrClosed and waits for in-flight
// handlers to finish. Safe to call more than once.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	close(c.done)
	c.cancelSub()
	c.cancelCtx()
	c.wg.Wait()
	return nil
}
