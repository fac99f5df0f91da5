package winmsg

import (
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/mrjvadi/go-winmsg/transport"
)

// Handle registers h and announces readiness by posting a setup envelope to
// the parent context. The standing subscription serves requests until the
// channel closes; no re-registration is needed between requests. Calling
// Handle more than once fans requests out to every registered handler, each
// posting its own response.
func (c *Channel) Handle(h HandlerFunc) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.handlers = append(c.handlers, h)
	c.mu.Unlock()

	setup, err := encodeEnvelope(envelope{Success: true, Topic: c.reqTopic, IsSetup: true})
	if err != nil {
		return err
	}
	if err := c.win.Send(c.win.Parent(), setup, transport.Wildcard); err != nil {
		return fmt.Errorf("announce setup: %w", err)
	}
	return nil
}

// serveRequest invokes every registered handler for one request envelope,
// posting a success or error response back to the sender's window, targeted
// at the sender's own origin.
func (c *Channel) serveRequest(env envelope, msg transport.Message) {
	c.mu.Lock()
	handlers := make([]HandlerFunc, len(c.handlers))
	copy(handlers, c.handlers)
	c.mu.Unlock()

	for _, h := range handlers {
		handler := h
		c.withConcurrency(func() {
			c.invoke(handler, env, msg)
		})
	}
}

func (c *Channel) invoke(h HandlerFunc, env envelope, msg transport.Message) {
	result, err := c.callHandler(h, env)

	resp := envelope{Topic: c.respTopic, CorrelationID: env.CorrelationID}
	if err != nil {
		resp.Error = &ErrorDetail{Message: err.Error(), Trace: string(debug.Stack())}
	} else {
		data, merr := marshalPayload(result)
		if merr != nil {
			resp.Error = &ErrorDetail{Message: merr.Error(), Trace: string(debug.Stack())}
		} else {
			resp.Success = true
			resp.Data = data
		}
	}

	raw, err := encodeEnvelope(resp)
	if err != nil {
		c.logger.Error("response envelope not encodable", zap.Error(err))
		return
	}
	if err := c.win.Send(msg.Source, raw, msg.Origin); err != nil {
		c.logger.Error("post response failed", zap.String("topic", c.respTopic), zap.Error(err))
	}
}

// callHandler shields the dispatch path from a panicking handler; the panic
// becomes an ordinary error response.
func (c *Channel) callHandler(h HandlerFunc, env envelope) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	return h(&Context{ctx: c.ctx, payload: env.Data, origin: c.win.Origin()})
}
