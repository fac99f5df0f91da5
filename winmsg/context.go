package winmsg

import (
	"context"
	"encoding/json"
)

// Context carries one request's data into a handler.
type Context struct {
	ctx     context.Context
	payload json.RawMessage
	origin  string
}

// Bind decodes the request payload into v.
func (c *Context) Bind(v any) error {
	return json.Unmarshal(c.payload, v)
}

// Ctx returns the channel-lifetime context; it is cancelled when the
// channel closes.
func (c *Context) Ctx() context.Context {
	return c.ctx
}

// Payload returns the raw request payload.
func (c *Context) Payload() json.RawMessage {
	return c.payload
}

// Origin reports the sender's origin. It always equals the local origin by
// the time a handler runs.
func (c *Context) Origin() string {
	return c.origin
}
