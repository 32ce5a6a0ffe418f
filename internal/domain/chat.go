package domain

import (
	"strings"
	"time"
)

const (
	RoleUser  = "user"
	RoleModel = "model"

	SenderUser = "user"
	SenderAI   = "ai"
)

// ChatMessage is the provider-agnostic chat message shape used by the relay
// and LLM integrations.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Conversation is everything an LLM integration needs for one persona reply.
type Conversation struct {
	Model           string
	SystemPrompt    string
	History         []ChatMessage
	Message         string
	MaxOutputTokens int
}

// HistoryEntry mirrors a row of the chats table owned by the BaaS.
type HistoryEntry struct {
	Sender    string     `json:"sender"`
	Message   string     `json:"message"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// FromUser reports whether the entry was written by the user rather than the assistant.
func (h HistoryEntry) FromUser() bool {
	return strings.EqualFold(strings.TrimSpace(h.Sender), SenderUser)
}

// Exchange is one relay round trip: the user's message and the reply sent back.
type Exchange struct {
	UserID    string
	Message   string
	Reply     string
	OnTopic   bool
	CreatedAt time.Time
}

// HistoryEntries expands the exchange into the user and assistant chat rows.
func (e Exchange) HistoryEntries() []HistoryEntry {
	at := e.CreatedAt
	return []HistoryEntry{
		{Sender: SenderUser, Message: e.Message, CreatedAt: &at},
		{Sender: SenderAI, Message: e.Reply, CreatedAt: &at},
	}
}
