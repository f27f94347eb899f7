package domain

import (
	"encoding/json"
	"fmt"

	"github.com/satriahrh/voicecall/domain/entities"
)

// ControlMessage is the JSON payload of a control frame sent by the agent.
// Every field is optional; a zero value means the field was not reported.
type ControlMessage struct {
	UserText   string                  `json:"user_text,omitempty"`
	AgentReply string                  `json:"agent_reply,omitempty"`
	Metrics    *entities.MetricsReport `json:"metrics,omitempty"`
	Error      string                  `json:"error,omitempty"`
}

// IsEmpty reports whether the message carries none of the known fields
func (m ControlMessage) IsEmpty() bool {
	return m.UserText == "" && m.AgentReply == "" && m.Metrics == nil && m.Error == ""
}

// ParseControlMessage decodes a control frame payload.
// A payload that is not a JSON object, or has a known field of the wrong type, is rejected whole.
func ParseControlMessage(payload []byte) (ControlMessage, error) {
	var msg ControlMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return ControlMessage{}, fmt.Errorf("invalid control message: %w", err)
	}
	return msg, nil
}
