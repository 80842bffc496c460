package transport

import (
	"bytes"
	"encoding/json"
	"errors"
)

var (
	// ErrEmptyPayload is returned by Decode on an absent body.
	ErrEmptyPayload = errors.New("transport: empty payload")

	// ErrNotJSON is returned by Decode on a plain-text body.
	ErrNotJSON = errors.New("transport: payload is not JSON")
)

// Payload is a parsed 2xx response: JSON, plain text or absent.
type Payload struct {
	Status int
	body   []byte
	json   bool
}

func newPayload(status int, body []byte) *Payload {
	body = bytes.TrimSpace(body)
	if status == 204 || len(body) == 0 {
		return &Payload{Status: status}
	}
	return &Payload{Status: status, body: body, json: json.Valid(body)}
}

// Empty reports an absent body (204 or zero length).
func (p *Payload) Empty() bool {
	return p == nil || len(p.body) == 0
}

// IsJSON reports whether the body parsed as JSON.
func (p *Payload) IsJSON() bool {
	return p != nil && p.json
}

// Decode unmarshals a JSON body into v.
func (p *Payload) Decode(v any) error {
	if p.Empty() {
		return ErrEmptyPayload
	}
	if !p.json {
		return ErrNotJSON
	}
	return json.Unmarshal(p.body, v)
}

// Text returns the raw body.
func (p *Payload) Text() string {
	if p == nil {
		return ""
	}
	return string(p.body)
}

// Raw returns the body as json.RawMessage, or nil when absent or not JSON.
func (p *Payload) Raw() json.RawMessage {
	if !p.IsJSON() {
		return nil
	}
	return json.RawMessage(p.body)
}
