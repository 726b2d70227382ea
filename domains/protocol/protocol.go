package protocol

import (
	"context"
	"errors"
	"time"
)

// Classified creation failures. The reply orchestrator switches pending
// state on these instead of retrying blindly.
var (
	ErrMissingCondominium   = errors.New("protocol requires a condominium")
	ErrMissingUnit          = errors.New("protocol requires an apartment/unit")
	ErrAmbiguousCondominium = errors.New("condominium name matches multiple records")
)

type CreateRequest struct {
	ConversationID   string `json:"conversation_id"`
	ContactID        string `json:"contact_id,omitempty"`
	CondominiumID    string `json:"condominium_id,omitempty"`
	CondominiumName  string `json:"condominium_name,omitempty"`
	Summary          string `json:"summary"`
	Category         string `json:"category,omitempty"`
	Priority         string `json:"priority,omitempty"` // normal | critical
	Apartment        string `json:"apartment,omitempty"`
	RequesterName    string `json:"requester_name,omitempty"`
	RequesterRole    string `json:"requester_role,omitempty"`
	CreatedByType    string `json:"created_by_type,omitempty"` // ai | agent
	CreatedByAgentID string `json:"created_by_agent_id,omitempty"`
	SourceMessageID  string `json:"source_message_id,omitempty"`
	TemplateID       string `json:"template_id,omitempty"`
	NotifyGroup      bool   `json:"notify_group"`
	NotifyClient     bool   `json:"notify_client"`
	ForceNew         bool   `json:"force_new"`
}

type CreateResult struct {
	ProtocolID     string `json:"protocol_id"`
	ProtocolCode   string `json:"protocol_code"`
	AlreadyExisted bool   `json:"already_existed"`
	GroupNotified  bool   `json:"group_notified"`
	ClientNotified bool   `json:"client_notified"`
}

type Protocol struct {
	ID               string
	Code             string
	ConversationID   string
	ContactID        string
	CondominiumID    string
	CondominiumName  string
	Summary          string
	Category         string
	Priority         string
	Apartment        string
	RequesterName    string
	RequesterRole    string
	Status           string // open | in_progress | resolved
	CreatedByType    string
	CreatedByAgentID string
	SourceMessageID  string
	TemplateID       string
	SLADueAt         *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Template pre-fills category, priority and checklist items when its
// keywords match the summary.
type Template struct {
	ID        string
	Name      string
	Keywords  []string
	Category  string
	Priority  string
	WorkItems []string
	SLAHours  int
	Active    bool
}

type WorkItem struct {
	ID         string
	ProtocolID string
	Title      string
	Status     string // pending | done
	Position   int
}

type IProtocolRepository interface {
	Init(ctx context.Context) error
	CreateProtocol(ctx context.Context, p *Protocol, items []*WorkItem) error
	// CountWithCodePrefix feeds the monthly sequence number.
	CountWithCodePrefix(ctx context.Context, prefix string) (int64, error)
	// FindRecentByConversation returns the newest protocol created within
	// the window, or nil.
	FindRecentByConversation(ctx context.Context, conversationID string, within time.Duration) (*Protocol, error)
	ListTemplates(ctx context.Context) ([]*Template, error)
}

type IProtocolUsecase interface {
	Create(ctx context.Context, request CreateRequest) (CreateResult, error)
}
