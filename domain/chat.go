package domain

import (
	"encoding/json"
)

// ChatMessage is relayed as sent. Fields other than the four known ones are
// kept in Extra and written back out unchanged.
type ChatMessage struct {
	SenderRole string                     `json:"senderRole"`
	SenderName string                     `json:"senderName"`
	Message    string                     `json:"message"`
	Timestamp  string                     `json:"timestamp,omitempty"`
	Extra      map[string]json.RawMessage `json:"-"`
}

var chatKeys = []string{"senderRole", "senderName", "message", "timestamp"}

// chatFields has ChatMessage's layout without its methods.
type chatFields ChatMessage

func (m *ChatMessage) UnmarshalJSON(data []byte) error {
	var fields chatFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, key := range chatKeys {
		delete(raw, key)
	}
	if len(raw) > 0 {
		fields.Extra = raw
	}
	*m = ChatMessage(fields)
	return nil
}

// MarshalJSON writes the extra fields first so the known fields win on a
// key collision.
func (m ChatMessage) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.Extra)+len(chatKeys))
	for key, value := range m.Extra {
		out[key] = value
	}
	if m.SenderRole != "" {
		out["senderRole"] = m.SenderRole
	}
	out["senderName"] = m.SenderName
	out["message"] = m.Message
	if m.Timestamp != "" {
		out["timestamp"] = m.Timestamp
	}
	return json.Marshal(out)
}
