// Package events defines the wire-level message model shared by the event
// bus, the engine and the WebSocket surface. Messages are flat JSON objects:
// a type, an RFC 3339 timestamp, and the payload fields hoisted to the top
// level so consumers can read them positionally.
package events

import (
	"encoding/json"
	"time"
)

// Message is one bus event. Fields are flattened alongside type/timestamp
// when marshalled; the two reserved keys always win over payload fields.
type Message struct {
	Type      string
	Timestamp time.Time
	Fields    map[string]any
}

// New builds a message stamped with the current UTC time.
func New(typ string, fields map[string]any) Message {
	return NewAt(typ, time.Now().UTC(), fields)
}

// NewAt builds a message with an explicit timestamp.
func NewAt(typ string, ts time.Time, fields map[string]any) Message {
	return Message{Type: typ, Timestamp: ts.UTC(), Fields: fields}
}

// Field returns a payload field by name.
func (m Message) Field(name string) (any, bool) {
	v, ok := m.Fields[name]
	return v, ok
}

func (m Message) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(m.Fields)+2)
	for k, v := range m.Fields {
		flat[k] = v
	}
	flat["type"] = m.Type
	flat["timestamp"] = m.Timestamp.Format(time.RFC3339Nano)
	return json.Marshal(flat)
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var flat map[string]any
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	if typ, ok := flat["type"].(string); ok {
		m.Type = typ
	}
	if raw, ok := flat["timestamp"].(string); ok {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			m.Timestamp = ts
		}
	}
	delete(flat, "type")
	delete(flat, "timestamp")
	if len(flat) > 0 {
		m.Fields = flat
	}
	return nil
}
