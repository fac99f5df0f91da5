package winmsg

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mrjvadi/go-winmsg/transport"
)

// TypedChannel wraps a Channel with a concrete request/response pair, so
// callers and handlers exchange values instead of raw JSON. Use struct{}
// for a response nobody reads.
type TypedChannel[Q, R any] struct {
	ch *Channel
}

// NewTyped creates a typed channel. See New for the untyped factory's
// behavior; the wrapper only adds encoding at the edges.
func NewTyped[Q, R any](win transport.Context, name string, opts ...Option) (*TypedChannel[Q, R], error) {
	ch, err := New(win, name, opts...)
	if err != nil {
		return nil, err
	}
	return &TypedChannel[Q, R]{ch: ch}, nil
}

// Request sends req and decodes the response into R. An empty response
// body yields R's zero value.
func (t *TypedChannel[Q, R]) Request(ctx context.Context, req Q, target ...transport.Window) (R, error) {
	var resp R
	raw, err := t.ch.Request(ctx, req, target...)
	if err != nil {
		return resp, err
	}
	if len(raw) == 0 {
		return resp, nil
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return resp, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}

// Handle registers a typed handler. Decode failures become error responses
// like any other handler failure.
func (t *TypedChannel[Q, R]) Handle(h func(ctx context.Context, req Q) (R, error)) error {
	return t.ch.Handle(func(c *Context) (any, error) {
		var req Q
		if len(c.Payload()) > 0 {
			if err := c.Bind(&req); err != nil {
				return nil, fmt.Errorf("decode request: %w", err)
			}
		}
		return h(c.Ctx(), req)
	})
}

// Unwrap exposes the underlying channel, for callers mixing typed and
// untyped use.
func (t *TypedChannel[Q, R]) Unwrap() *Channel { return t.ch }

// Close closes the underlying channel.
func (t *TypedChannel[Q, R]) Close() error { return t.ch.Close() }
