package shapely

import (
	"encoding/json"
	"slices"
)

// Role is the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleFunction  Role = "function"
)

// CallRequest is the model's request to invoke a capability.
type CallRequest struct {
	Name      string `json:"name"`
	Arguments string `json:"rawArgumentsJson"`
}

// Message is one turn of a conversation. Name attributes a function-role message to the
// capability whose result (or error) it carries.
type Message struct {
	Role    Role
	Content string
	Name    string
	Call    *CallRequest
}

// SystemMessage builds a system-role message.
func SystemMessage(content string) Message { return Message{Role: RoleSystem, Content: content} }

// UserMessage builds a user-role message.
func UserMessage(content string) Message { return Message{Role: RoleUser, Content: content} }

// FunctionMessage builds a function-role message carrying a capability result or error.
func FunctionMessage(name, content string) Message {
	return Message{Role: RoleFunction, Content: content, Name: name}
}

// HasCall reports whether the message carries a capability call request.
func (m Message) HasCall() bool { return m.Call != nil }

type messageWire struct {
	Role    Role         `json:"role"`
	Content *string      `json:"content"`
	Name    *string      `json:"name"`
	Call    *CallRequest `json:"capabilityCallRequest"`
}

// MarshalJSON writes the exchange shape; empty content and name are encoded as null.
func (m Message) MarshalJSON() ([]byte, error) {
	w := messageWire{Role: m.Role, Call: m.Call}
	if m.Content != "" {
		w.Content = &m.Content
	}
	if m.Name != "" {
		w.Name = &m.Name
	}
	return json.Marshal(w)
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var w messageWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*m = Message{Role: w.Role, Call: w.Call}
	if w.Content != nil {
		m.Content = *w.Content
	}
	if w.Name != nil {
		m.Name = *w.Name
	}
	return nil
}

// Conversation is the ordered message log of one run. It is not safe for concurrent use;
// a conversation belongs to exactly one run at a time.
type Conversation struct {
	messages []Message
}

// NewConversation starts a conversation with the given messages.
func NewConversation(msgs ...Message) *Conversation {
	return &Conversation{messages: slices.Clone(msgs)}
}

// Append adds messages at the end.
func (c *Conversation) Append(msgs ...Message) { c.messages = append(c.messages, msgs...) }

// Replace discards the current log and installs msgs.
func (c *Conversation) Replace(msgs []Message) { c.messages = slices.Clone(msgs) }

// Messages returns a copy of the log.
func (c *Conversation) Messages() []Message { return slices.Clone(c.messages) }

// Len returns the number of messages.
func (c *Conversation) Len() int { return len(c.messages) }

// Last returns the most recent message.
func (c *Conversation) Last() (Message, bool) {
	if len(c.messages) == 0 {
		return Message{}, false
	}
	return c.messages[len(c.messages)-1], true
}

func (c *Conversation) MarshalJSON() ([]byte, error) {
	if c.messages == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(c.messages)
}

func (c *Conversation) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &c.messages)
}
