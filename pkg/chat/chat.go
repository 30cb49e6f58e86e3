package chat

import "fmt"

const (
	ChatRoleUser   = "user"      // Participant
	ChatRoleAgent  = "assistant" // Generator / Game Master
	ChatRoleSystem = "system"    // Narrator instructions
)

// ChatMessage is a single message in a generator conversation.
// The shape follows the chat APIs of the supported backends.
type ChatMessage struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// ChatResponse is the narrated text returned by a generator backend.
type ChatResponse struct {
	Message string `json:"message,omitempty"`
}

func (m *ChatMessage) Validate() error {
	switch m.Role {
	case ChatRoleUser, ChatRoleAgent, ChatRoleSystem:
	default:
		return fmt.Errorf("invalid chat role: %q", m.Role)
	}
	if m.Content == "" {
		return fmt.Errorf("content cannot be empty")
	}
	return nil
}
