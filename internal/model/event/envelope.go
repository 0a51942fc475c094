package event

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind enumerates envelope event kinds. Inbound and outbound kinds overlap by
// name: online and offline are synthesized locally by the server on connect and
// close, message flows both ways, refresh is outbound only.
type Kind string

const (
	KindOnline  Kind = "online"
	KindMessage Kind = "message"
	KindOffline Kind = "offline"
	KindRefresh Kind = "refresh"
)

// ErrMalformedEnvelope marks input that is not parseable JSON or lacks the
// event field. Callers log and drop; malformed input never gets a response and
// never terminates the connection.
var ErrMalformedEnvelope = errors.New("malformed envelope")

// Envelope is the top-level wire message in both directions. Location is an
// opaque correlation token echoed back verbatim so a client can match responses
// to in-flight requests; it is absent when the client did not supply one.
type Envelope struct {
	Event    Kind            `json:"event"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Location json.RawMessage `json:"location,omitempty"`
}

// Payload is the inbound message payload: a tagged operation plus its
// operation-specific arguments, left raw for the handler to decode.
type Payload struct {
	Type   string          `json:"type"`
	Result json.RawMessage `json:"result"`
}

// Decode parses raw bytes into an envelope.
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("%w: missing event field", ErrMalformedEnvelope)
	}
	return env, nil
}

// Encode serializes an envelope for the wire.
func Encode(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}

// Message builds an outbound message envelope carrying payload, echoing the
// correlation token of the request it answers.
func Message(payload any, location json.RawMessage) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode payload: %w", err)
	}
	return Envelope{Event: KindMessage, Payload: raw, Location: location}, nil
}

// Refresh builds the unsolicited broadcast envelope. It carries no payload;
// clients re-query the state they display.
func Refresh() Envelope {
	return Envelope{Event: KindRefresh}
}

// Welcome builds the greeting sent as the response to the synthetic online
// event on a fresh connection.
func Welcome() Envelope {
	raw, _ := json.Marshal("Welcome")
	return Envelope{Event: KindOnline, Payload: raw}
}
