package winmsg

import (
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mrjvadi/go-winmsg/transport"
)

func TestRoundTrip(t *testing.T) {
	parent, child := newPair(t)
	req := newChannel(t, parent, "/users")
	resp := newChannel(t, child, "/users")

	type query struct {
		ID int `json:"id"`
	}
	type user struct {
		ID    int    `json:"id"`
		Email string `json:"email"`
	}

	err := resp.Handle(func(c *Context) (any, error) {
		var q query
		if err := c.Bind(&q); err != nil {
			return nil, err
		}
		return user{ID: q.ID, Email: "john@app.test"}, nil
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	raw, err := req.Request(testCtx(t), query{ID: 7}, child)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	var got user
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got != (user{ID: 7, Email: "john@app.test"}) {
		t.Fatalf("unexpected response: %+v", got)
	}
}

func TestRoundTripError(t *testing.T) {
	parent, child := newPair(t)
	req := newChannel(t, parent, "/fail")
	resp := newChannel(t, child, "/fail")

	if err := resp.Handle(func(c *Context) (any, error) {
		return nil, errors.New("bad input")
	}); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	_, err := req.Request(testCtx(t), "x", child)
	if err == nil || err.Error() != "bad input" {
		t.Fatalf("want rejection %q, got %v", "bad input", err)
	}
}

func TestUnknownErrorFallback(t *testing.T) {
	parent, child := newPair(t)
	req := newChannel(t, parent, "/blank")
	resp := newChannel(t, child, "/blank")

	// An error with an empty message produces an error envelope without a
	// usable detail.
	if err := resp.Handle(func(c *Context) (any, error) {
		return nil, errors.New("")
	}); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	_, err := req.Request(testCtx(t), nil, child)
	if err == nil || err.Error() != "Unknown error" {
		t.Fatalf("want %q, got %v", "Unknown error", err)
	}
}

func TestGreetingScenario(t *testing.T) {
	parent, child := newPair(t)
	req := newChannel(t, parent, "/greeting")
	resp := newChannel(t, child, "/greeting")

	var calls atomic.Int32
	var gotName atomic.Value
	err := resp.Handle(func(c *Context) (any, error) {
		calls.Add(1)
		var p struct {
			Name string `json:"name"`
		}
		if err := c.Bind(&p); err != nil {
			return nil, err
		}
		gotName.Store(p.Name)
		return nil, nil // void response
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	raw, err := req.Request(testCtx(t), map[string]string{"name": "John"}, child)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if len(raw) != 0 {
		t.Fatalf("void response carries data: %s", raw)
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("handler invoked %d times, want 1", n)
	}
	if name, _ := gotName.Load().(string); name != "John" {
		t.Fatalf("handler saw name %q, want John", name)
	}
}

func TestSequentialRequests(t *testing.T) {
	parent, child := newPair(t)
	req := newChannel(t, parent, "/seq")
	resp := newChannel(t, child, "/seq")

	var calls atomic.Int32
	if err := resp.Handle(func(c *Context) (any, error) {
		return calls.Add(1), nil
	}); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	ctx := testCtx(t)
	for want := int32(1); want <= 5; want++ {
		raw, err := req.Request(ctx, nil, child)
		if err != nil {
			t.Fatalf("request %d: %v", want, err)
		}
		var got int32
		if err := json.Unmarshal(raw, &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got != want {
			t.Fatalf("request %d answered with %d", want, got)
		}
	}
}

func TestOriginMismatchIgnored(t *testing.T) {
	parent := transport.NewWindow(testOrigin)
	child := parent.OpenChild(testOrigin)
	evil := parent.OpenChild("https://evil.test")
	t.Cleanup(func() {
		_ = evil.Close()
		_ = child.Close()
		_ = parent.Close()
	})

	req := newChannel(t, parent, "/guarded")
	resp := newChannel(t, child, "/guarded")

	var calls atomic.Int32
	if err := resp.Handle(func(c *Context) (any, error) {
		calls.Add(1)
		return "legit", nil
	}); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	// A foreign-origin context floods both ends with well-formed envelopes.
	fakeResp, _ := encodeEnvelope(envelope{Success: true, Topic: responseTopic("/guarded"), Data: json.RawMessage(`"forged"`)})
	fakeReq, _ := encodeEnvelope(envelope{Success: true, Topic: requestTopic("/guarded"), Data: json.RawMessage(`{}`)})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			_ = evil.Send(parent, fakeResp, transport.Wildcard)
			_ = evil.Send(child, fakeReq, transport.Wildcard)
		}
	}()

	raw, err := req.Request(testCtx(t), nil, child)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if string(raw) != `"legit"` {
		t.Fatalf("forged response reached the requester: %s", raw)
	}
	<-done
	time.Sleep(50 * time.Millisecond)
	if n := calls.Load(); n != 1 {
		t.Fatalf("forged requests reached the handler: %d calls", n)
	}
}

func TestTopicMismatchIgnored(t *testing.T) {
	parent, child := newPair(t)
	req := newChannel(t, parent, "/mine")
	resp := newChannel(t, child, "/mine")

	var calls atomic.Int32
	if err := resp.Handle(func(c *Context) (any, error) {
		calls.Add(1)
		return "mine", nil
	}); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	// Same-origin traffic for another channel must be invisible to both
	// roles.
	otherResp, _ := encodeEnvelope(envelope{Success: true, Topic: responseTopic("/other"), Data: json.RawMessage(`"other"`)})
	otherReq, _ := encodeEnvelope(envelope{Success: true, Topic: requestTopic("/other"), Data: json.RawMessage(`{}`)})
	_ = child.Send(parent, otherResp, transport.Wildcard)
	_ = parent.Send(child, otherReq, transport.Wildcard)

	raw, err := req.Request(testCtx(t), nil, child)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if string(raw) != `"mine"` {
		t.Fatalf("foreign-topic envelope resolved the request: %s", raw)
	}
	time.Sleep(50 * time.Millisecond)
	if n := calls.Load(); n != 1 {
		t.Fatalf("foreign-topic request reached the handler: %d calls", n)
	}
}

func TestStrictCorrelation(t *testing.T) {
	parent, child := newPair(t)
	req := newChannel(t, parent, "/strict", WithStrictCorrelation())
	resp := newChannel(t, child, "/strict")

	// Echo with a jittered delay so responses come back out of order.
	if err := resp.Handle(func(c *Context) (any, error) {
		var n int
		if err := c.Bind(&n); err != nil {
			return nil, err
		}
		time.Sleep(time.Duration(10-n) * 5 * time.Millisecond)
		return n, nil
	}); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	ctx := testCtx(t)
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func(n int) {
			raw, err := req.Request(ctx, n, child)
			if err != nil {
				errs <- err
				return
			}
			var got int
			if err := json.Unmarshal(raw, &got); err != nil {
				errs <- err
				return
			}
			if got != n {
				errs <- errors.New("response crossed between concurrent requests")
				return
			}
			errs <- nil
		}(i)
	}
	for i := 0; i < 8; i++ {
		if err := <-errs; err != nil {
			t.Fatal(err)
		}
	}
}

func TestHandlerPanicBecomesError(t *testing.T) {
	parent, child := newPair(t)
	req := newChannel(t, parent, "/panic")
	resp := newChannel(t, child, "/panic")

	if err := resp.Handle(func(c *Context) (any, error) {
		panic("boom")
	}); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	_, err := req.Request(testCtx(t), nil, child)
	if err == nil || err.Error() != "boom" {
		t.Fatalf("want rejection %q, got %v", "boom", err)
	}
}
