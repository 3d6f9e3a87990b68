package engine

import (
	"encoding/json"
	"fmt"
)

// Payload is the decoded form of an event's or session's opaque data column.
type Payload map[string]any

// Recipient names one grant a session delivers to.
type Recipient struct {
	GrantID int64 `json:"grantId"`
}

// DecodePayload normalizes the two shapes a payload arrives in: a plain JSON
// object, or an envelope `{"val": "<json string>"}` carrying the object
// pre-serialized. Empty input decodes to an empty payload.
func DecodePayload(raw json.RawMessage) (Payload, error) {
	if len(raw) == 0 {
		return Payload{}, nil
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if inner, ok := envelopeValue(decoded); ok {
		return inner, nil
	}
	return Payload(decoded), nil
}

func envelopeValue(decoded map[string]any) (Payload, bool) {
	if len(decoded) != 1 {
		return nil, false
	}
	val, ok := decoded["val"]
	if !ok {
		return nil, false
	}
	switch v := val.(type) {
	case string:
		var inner map[string]any
		if err := json.Unmarshal([]byte(v), &inner); err != nil {
			return nil, false
		}
		return Payload(inner), true
	case map[string]any:
		return Payload(v), true
	default:
		return nil, false
	}
}

// Encode serializes the payload back into its column representation. The
// envelope is never re-applied; decoded payloads are stored plain.
func (p Payload) Encode() (json.RawMessage, error) {
	if p == nil {
		return json.RawMessage("{}"), nil
	}
	encoded, err := json.Marshal(map[string]any(p))
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return encoded, nil
}

func (p Payload) String(key string) string {
	v, _ := p[key].(string)
	return v
}

func (p Payload) Bool(key string) bool {
	switch v := p[key].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	default:
		return false
	}
}

func (p Payload) Set(key string, value any) {
	p[key] = value
}

func (p Payload) Status() string      { return p.String("status") }
func (p Payload) PocComplete() bool   { return p.Bool("pocComplete") }
func (p Payload) OwnerComplete() bool { return p.Bool("ownerComplete") }
func (p Payload) GoalText() string    { return p.String("goal") }
func (p Payload) EventName() string   { return p.String("eventName") }

// Recipients parses the session's recipient list, tolerating missing or
// malformed entries (they decode with a zero grant id and are skipped by the
// synchronizer).
func (p Payload) Recipients() []Recipient {
	raw, ok := p["recipients"]
	if !ok {
		return nil
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var recipients []Recipient
	if err := json.Unmarshal(encoded, &recipients); err != nil {
		return nil
	}
	return recipients
}

// GrantSet returns the recipient grants as a lookup set.
func (p Payload) GrantSet() map[int64]bool {
	grants := make(map[int64]bool)
	for _, r := range p.Recipients() {
		if r.GrantID != 0 {
			grants[r.GrantID] = true
		}
	}
	return grants
}
