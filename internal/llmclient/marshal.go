package llmclient

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// wireMessage is the on-the-wire shape of a Message: content is either
// a bare JSON string or a JSON array of blocks, matching §3's data
// model ("a content payload that is either a string or an ordered list
// of blocks").
type wireMessage struct {
	Role    Role            `json:"role"`
	Content json.RawMessage `json:"content"`
}

// MarshalJSON implements json.Marshaler, emitting content as a bare
// string when the message holds plain text and as a block array
// otherwise.
func (m Message) MarshalJSON() ([]byte, error) {
	var content json.RawMessage
	var err error
	if m.IsBlocks() {
		content, err = json.Marshal(m.Blocks)
	} else {
		content, err = json.Marshal(m.Text)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireMessage{Role: m.Role, Content: content})
}

// UnmarshalJSON implements json.Unmarshaler, detecting whether content
// is a string or a block array.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	m.Role = w.Role

	trimmed := bytes.TrimSpace(w.Content)
	if len(trimmed) == 0 {
		m.Text = ""
		m.Blocks = nil
		m.hasBlocks = false
		return nil
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return fmt.Errorf("llmclient: message content string: %w", err)
		}
		m.Text = s
		m.Blocks = nil
		m.hasBlocks = false
		return nil
	case '[':
		var blocks []Block
		if err := json.Unmarshal(trimmed, &blocks); err != nil {
			return fmt.Errorf("llmclient: message content blocks: %w", err)
		}
		m.Blocks = blocks
		m.hasBlocks = true
		m.Text = ""
		return nil
	default:
		return fmt.Errorf("llmclient: message content must be a string or array, got %q", trimmed[:1])
	}
}
