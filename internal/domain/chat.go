package domain

// ChatMessage is the provider-agnostic chat message shape sent to the
// generation capability.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat roles understood by the generation capability. RoleUser and
// RoleAssistant double as transcript roles.
const (
	ChatRoleSystem = "system"
)

// SystemMessage is a shorthand for a system-role chat message.
func SystemMessage(content string) ChatMessage {
	return ChatMessage{Role: ChatRoleSystem, Content: content}
}

// UserMessage is a shorthand for a user-role chat message.
func UserMessage(content string) ChatMessage {
	return ChatMessage{Role: string(RoleUser), Content: content}
}

// AssistantMessage is a shorthand for an assistant-role chat message.
func AssistantMessage(content string) ChatMessage {
	return ChatMessage{Role: string(RoleAssistant), Content: content}
}
