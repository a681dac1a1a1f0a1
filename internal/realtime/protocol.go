package realtime

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Events understood by the socket endpoint itself. Everything else is
// produced by business logic through Dispatcher.Notify.
const (
	EventAuthenticate = "authenticate"
	EventPing         = "ping"
	EventPong         = "pong"
)

// Envelope is the JSON frame exchanged in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outboundEnvelope struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// AuthenticatePayload is the data of an authenticate frame.
type AuthenticatePayload struct {
	UserID FlexibleID `json:"userId"`
}

// FlexibleID accepts either a JSON string or a JSON number. Browsers tend to
// send numeric database ids as numbers.
type FlexibleID string

// UnmarshalJSON implements json.Unmarshaler.
func (id *FlexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = FlexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("user id must be a string or number: %w", err)
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return fmt.Errorf("user id must be an integer: %w", err)
	}
	*id = FlexibleID(n.String())
	return nil
}

// EncodeEvent builds the wire frame for event with payload.
func EncodeEvent(event string, payload any) ([]byte, error) {
	return json.Marshal(outboundEnvelope{Event: event, Data: payload})
}

func decodeData(data json.RawMessage, out any) error {
	if len(data) == 0 {
		return fmt.Errorf("frame has no data")
	}
	return json.Unmarshal(data, out)
}

// DecodeEnvelope parses one inbound frame.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, err
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("frame has no event name")
	}
	return env, nil
}
