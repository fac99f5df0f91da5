package winmsg

import (
	"encoding/json"
	"fmt"
)

const (
	requestPrefix  = "request:/"  // channel name -> request topic
	responsePrefix = "response:/" // channel name -> response topic
)

func requestTopic(name string) string  { return requestPrefix + name }
func responseTopic(name string) string { return responsePrefix + name }

// ErrorDetail carries a responder-side failure across the transport. Only
// the message is surfaced to the requester; the trace is logged locally.
type ErrorDetail struct {
	Message string `json:"message"`
	Trace   string `json:"trace"`
}

// envelope is the only value crossing the transport. Exactly one of four
// shapes is valid: setup announcement (IsSetup), request (request topic,
// Success), success response (response topic, Success) or error response
// (response topic, !Success, Error set).
type envelope struct {
	Success       bool            `json:"success"`
	Topic         string          `json:"topic"`
	IsSetup       bool            `json:"isSetup,omitempty"`
	Data          json.RawMessage `json:"data,omitempty"`
	Error         *ErrorDetail    `json:"error,omitempty"`
	CorrelationID string          `json:"correlationId,omitempty"`
}

func encodeEnvelope(env envelope) ([]byte, error) {
	b, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return b, nil
}

func decodeEnvelope(b []byte) (envelope, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

// marshalPayload prepares a request or response payload for the wire.
// []byte and json.RawMessage pass through untouched and must already be
// valid JSON; everything else is marshalled.
func marshalPayload(payload any) (json.RawMessage, error) {
	switch v := payload.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return v, nil
	case []byte:
		return json.RawMessage(v), nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		return b, nil
	}
}
