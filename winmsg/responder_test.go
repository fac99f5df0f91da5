package winmsg

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/mrjvadi/go-winmsg/transport"
)

func TestHandleAnnouncesSetupToParent(t *testing.T) {
	parent, child := newPair(t)

	inbox, cancel, err := parent.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer cancel()

	resp := newChannel(t, child, "/announce")
	if err := resp.Handle(func(c *Context) (any, error) { return nil, nil }); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	select {
	case msg := <-inbox:
		env, err := decodeEnvelope(msg.Data)
		if err != nil {
			t.Fatalf("decode setup: %v", err)
		}
		if !env.IsSetup || !env.Success {
			t.Fatalf("setup envelope malformed: %+v", env)
		}
		if env.Topic != requestTopic("/announce") {
			t.Fatalf("setup announced on %q", env.Topic)
		}
		if msg.Origin != testOrigin {
			t.Fatalf("setup announced with origin %q", msg.Origin)
		}
	case <-time.After(time.Second):
		t.Fatal("no setup announcement reached the parent")
	}
}

func TestDoubleHandleFanOut(t *testing.T) {
	parent, child := newPair(t)
	req := newChannel(t, parent, "/twice")
	resp := newChannel(t, child, "/twice")

	var first, second atomic.Int32
	if err := resp.Handle(func(c *Context) (any, error) {
		first.Add(1)
		return "first", nil
	}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if err := resp.Handle(func(c *Context) (any, error) {
		second.Add(1)
		return "second", nil
	}); err != nil {
		t.Fatalf("second Handle: %v", err)
	}

	if _, err := req.Request(testCtx(t), nil, child); err != nil {
		t.Fatalf("Request: %v", err)
	}

	// Both registered handlers run for the one request.
	deadline := time.After(time.Second)
	for first.Load() != 1 || second.Load() != 1 {
		select {
		case <-deadline:
			t.Fatalf("fan-out incomplete: first=%d second=%d", first.Load(), second.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestLoopbackReplyStyle(t *testing.T) {
	// Responder and requester share the top-level window: the setup
	// announcement loops back to the window itself and the default request
	// target (the window's top) reaches the responder.
	win := transport.NewWindow(testOrigin)
	t.Cleanup(func() { _ = win.Close() })

	ch := newChannel(t, win, "/loopback")
	if err := ch.Handle(func(c *Context) (any, error) { return "pong", nil }); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	raw, err := ch.Request(testCtx(t), "ping")
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if string(raw) != `"pong"` {
		t.Fatalf("unexpected loopback response: %s", raw)
	}
}
