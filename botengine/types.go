package botengine

import (
	"context"
	"encoding/json"
)

// ToolCall represents the model's intention to invoke a tool
type ToolCall struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// Tool is a provider-agnostic function definition
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// ChatTurn represents a single turn in a conversation
type ChatTurn struct {
	Role string `json:"role"` // user | assistant
	Text string `json:"text"`
}

// ChatRequest is a provider-agnostic chat request
type ChatRequest struct {
	SystemPrompt string
	History      []ChatTurn
	UserText     string
	Tools        []Tool
	Model        string
	ChatKey      string // conversation id, for log correlation
}

// ChatResponse is the provider-agnostic model reply: either text or a
// tool invocation.
type ChatResponse struct {
	Text      string
	ToolCalls []ToolCall
}

// AIProvider is the thin interface chat-completion backends implement
type AIProvider interface {
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
}

// PendingPayload is the JSON document carried on the conversation row
// across turns. Slots fill as soon as they are spotted, independent of
// which field is currently pending.
type PendingPayload struct {
	Summary         string `json:"summary,omitempty"`
	Category        string `json:"category,omitempty"`
	Priority        string `json:"priority,omitempty"`
	Apartment       string `json:"apartment,omitempty"`
	RequesterName   string `json:"requester_name,omitempty"`
	CondominiumID   string `json:"condominium_id,omitempty"`
	CondominiumName string `json:"condominium_name,omitempty"`
	RetryCount      int    `json:"retry_count,omitempty"`
	AskedQuestion   bool   `json:"asked_question,omitempty"`
	NameVolunteered bool   `json:"name_volunteered,omitempty"`
}

func ParsePendingPayload(raw string) PendingPayload {
	var p PendingPayload
	if raw != "" {
		_ = json.Unmarshal([]byte(raw), &p)
	}
	return p
}

func (p PendingPayload) Encode() string {
	data, err := json.Marshal(p)
	if err != nil {
		return ""
	}
	return string(data)
}
