package voiceai

import (
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
)

type MessageType string

// The three shapes the live session delivers. The union is closed: decoding
// anything else is an error, not a silent skip.
const (
	MessageTypeUserTranscript  MessageType = "userTranscript"
	MessageTypeAgentTranscript MessageType = "agentTranscript"
	MessageTypeChatMessage     MessageType = "chatMessage"
)

type Sender string

const (
	SenderUser  Sender = "user"
	SenderAgent Sender = "agent"
)

// InboundMessage is one event from the session's message stream, still
// carrying its tag and the raw text fields.
type InboundMessage struct {
	ID           string
	Type         MessageType
	Message      string
	Text         string
	Timestamp    int64
	FromIdentity string
	FromLocal    bool

	fromLocalSet bool
}

// ChatMessage is the uniform display record. It is a pure projection of the
// live stream, recomputed on every update, never stored.
type ChatMessage struct {
	ID        string `json:"id" yaml:"id"`
	Text      string `json:"text" yaml:"text"`
	Sender    Sender `json:"sender" yaml:"sender"`
	Timestamp int64  `json:"timestamp" yaml:"timestamp"`
}

func (m *InboundMessage) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := sonic.Unmarshal(data, &raw); err != nil {
		return err
	}
	tag, ok := raw["type"].(string)
	if !ok {
		return errors.New("missing type")
	}
	switch MessageType(tag) {
	case MessageTypeUserTranscript, MessageTypeAgentTranscript, MessageTypeChatMessage:
		m.Type = MessageType(tag)
	default:
		return fmt.Errorf("unknown message type: %s", tag)
	}
	if v, ok := raw["id"].(string); ok {
		m.ID = v
	} else {
		return errors.New("missing id")
	}
	if v, ok := raw["message"].(string); ok {
		m.Message = v
	}
	if v, ok := raw["text"].(string); ok {
		m.Text = v
	}
	// Map-decoded numbers always come out as float64.
	if v, ok := raw["timestamp"].(float64); ok {
		m.Timestamp = int64(v)
	}
	if from, ok := raw["from"].(map[string]any); ok {
		if v, ok := from["identity"].(string); ok {
			m.FromIdentity = v
		}
		if v, ok := from["isLocal"].(bool); ok {
			m.FromLocal = v
			m.fromLocalSet = true
		}
	}
	return nil
}

// ResolveLocality derives FromLocal for plain chat messages that did not
// carry an explicit isLocal flag, by comparing the sender identity against
// the local participant's.
func (m *InboundMessage) ResolveLocality(sender, local string) {
	if m.FromIdentity == "" {
		m.FromIdentity = sender
	}
	if !m.fromLocalSet {
		m.FromLocal = m.FromIdentity != "" && m.FromIdentity == local
		m.fromLocalSet = true
	}
}

func (m *InboundMessage) text() string {
	if m.Message != "" {
		return m.Message
	}
	return m.Text
}

// Normalize maps one tagged event onto a display record. User-tagged
// transcripts always speak for the user, agent-tagged ones for the agent;
// plain chat messages go by whether the origin is the local participant.
func (m *InboundMessage) Normalize() ChatMessage {
	out := ChatMessage{
		ID:        m.ID,
		Text:      m.text(),
		Timestamp: m.Timestamp,
	}
	switch m.Type {
	case MessageTypeUserTranscript:
		out.Sender = SenderUser
	case MessageTypeAgentTranscript:
		out.Sender = SenderAgent
	case MessageTypeChatMessage:
		if m.FromLocal {
			out.Sender = SenderUser
		} else {
			out.Sender = SenderAgent
		}
	}
	return out
}

// NormalizeTranscript projects the live message list onto display records.
// Pure, order-preserving and idempotent; callers re-run it on every update.
func NormalizeTranscript(messages []InboundMessage) []ChatMessage {
	out := make([]ChatMessage, 0, len(messages))
	for i := range messages {
		out = append(out, messages[i].Normalize())
	}
	return out
}

// TranscriptYAML renders the normalized transcript, used by the CLI for the
// end-of-session dump.
func TranscriptYAML(messages []InboundMessage) ([]byte, error) {
	return yaml.MarshalWithOptions(NormalizeTranscript(messages), yaml.UseJSONMarshaler())
}
