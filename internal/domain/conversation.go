package domain

import (
	"errors"
	"fmt"
)

// DefaultTenant is the only tenant currently served.
const DefaultTenant = "default"

// ErrConversationNotFound is returned when a conversation does not exist or
// belongs to another user.
var ErrConversationNotFound = errors.New("conversation not found")

// ErrStateConflict is returned when a cached conversation changed between the
// read and the write of a turn.
var ErrStateConflict = errors.New("conversation state changed concurrently")

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single entry of a conversation transcript. Seq is the 1-based
// position of the message inside its conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	Seq     int    `json:"seq"`
}

// StateKey identifies one cached conversation.
type StateKey struct {
	Tenant         string
	UserID         int64
	ConversationID int64
}

func (k StateKey) String() string {
	return fmt.Sprintf("chat:tenant:%s:user:%d:conv:%d", k.Tenant, k.UserID, k.ConversationID)
}

// ConversationState is the cached transcript of one conversation. It is stored
// and replaced as a single blob. Version counts successful writes; an absent
// entry is version 0.
type ConversationState struct {
	Tenant         string    `json:"tenant"`
	UserID         int64     `json:"user_id"`
	ConversationID int64     `json:"conversation_id"`
	Messages       []Message `json:"messages"`
	Version        int64     `json:"version,omitempty"`
}

// EmptyState returns the state of a conversation that has no cached messages.
func EmptyState(key StateKey) ConversationState {
	return ConversationState{
		Tenant:         key.Tenant,
		UserID:         key.UserID,
		ConversationID: key.ConversationID,
		Messages:       []Message{},
	}
}

func (s ConversationState) Key() StateKey {
	return StateKey{Tenant: s.Tenant, UserID: s.UserID, ConversationID: s.ConversationID}
}

// WithMessage returns a copy of s with one more message appended. The receiver
// is never modified, so a failed turn can simply drop the copy.
func (s ConversationState) WithMessage(role Role, content string) ConversationState {
	msgs := make([]Message, len(s.Messages), len(s.Messages)+1)
	copy(msgs, s.Messages)
	msgs = append(msgs, Message{Role: role, Content: content, Seq: len(s.Messages) + 1})
	s.Messages = msgs
	return s
}

// TranscriptEntry is a single persisted message of the durable transcript.
type TranscriptEntry struct {
	PK             string
	SK             string
	ConversationID int64
	UserID         int64
	Role           Role
	Content        string
	CreatedAt      string
}

// ConversationMeta records the owner and activity of a conversation in the
// durable store.
type ConversationMeta struct {
	PK             string
	SK             string
	ConversationID int64
	UserID         int64
	CreatedAt      string
	LastActivity   string
}
