package winmsg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mrjvadi/go-winmsg/transport"
)

// unknownError stands in when an error response carries no message.
const unknownError = "Unknown error"

// Request posts payload on the channel and waits for the correlated
// response. The first call waits until the responder's setup announcement
// has been observed; after that the sticky flag lets every call proceed
// immediately. target defaults to the context's top-level window, the
// reply-style case. There is no built-in timeout: bound the wait through
// ctx. The per-call subscription is removed on every return path.
//
// A responder-side failure comes back as an error carrying the responder's
// message; its trace is logged locally and not surfaced.
func (c *Channel) Request(ctx context.Context, payload any, target ...transport.Window) (json.RawMessage, error) {
	if err := c.waitForSetup(ctx); err != nil {
		return nil, err
	}

	data, err := marshalPayload(payload)
	if err != nil {
		return nil, err
	}
	corrID := uuid.NewString()
	raw, err := encodeEnvelope(envelope{
		Success:       true,
		Topic:         c.reqTopic,
		Data:          data,
		CorrelationID: corrID,
	})
	if err != nil {
		return nil, err
	}

	// Subscribe before posting so a same-tick response cannot be missed.
	inbox, cancel, err := c.win.Subscribe()
	if err != nil {
		return nil, err
	}
	defer cancel()

	to := c.win.Top()
	if len(target) > 0 && target[0] != nil {
		to = target[0]
	}
	if err := c.win.Send(to, raw, transport.Wildcard); err != nil {
		return nil, fmt.Errorf("post request: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.done:
			return nil, ErrClosed
		case msg, ok := <-inbox:
			if !ok {
				return nil, ErrClosed
			}
			resp, matched := c.matchResponse(msg, corrID)
			if !matched {
				continue
			}
			if resp.Success {
				return resp.Data, nil
			}
			return nil, c.responseError(resp)
		}
	}
}

// matchResponse applies the requester-side discard rules: own-origin
// senders only, exact response-topic match, setup envelopes never resolve a
// request, and in strict mode only the request's own correlation id counts.
func (c *Channel) matchResponse(msg transport.Message, corrID string) (envelope, bool) {
	if msg.Origin != c.win.Origin() {
		return envelope{}, false
	}
	env, err := decodeEnvelope(msg.Data)
	if err != nil {
		return envelope{}, false
	}
	if env.Topic != c.respTopic || env.IsSetup {
		return envelope{}, false
	}
	if c.strict && env.CorrelationID != corrID {
		return envelope{}, false
	}
	return env, true
}

func (c *Channel) responseError(env envelope) error {
	message := unknownError
	if env.Error != nil {
		if env.Error.Message != "" {
			message = env.Error.Message
		}
		if env.Error.Trace != "" {
			c.logger.Debug("responder error trace",
				zap.String("topic", c.respTopic),
				zap.String("trace", env.Error.Trace))
		}
	}
	return errors.New(message)
}
