package chatstorage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/zapdesk/zapdesk/pkg/waid"
)

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

type SenderKind string

const (
	SenderContact SenderKind = "contact"
	SenderAgent   SenderKind = "agent"
	SenderSystem  SenderKind = "system"
)

type AIMode string

const (
	AIModeAuto    AIMode = "AUTO"
	AIModeCopilot AIMode = "COPILOT"
	AIModeOff     AIMode = "OFF"
)

type PendingField string

const (
	PendingNone            PendingField = ""
	PendingCondominiumName PendingField = "condominium_name"
	PendingApartment       PendingField = "apartment"
	PendingRequesterName   PendingField = "requester_name"
	PendingRetryProtocol   PendingField = "retry_protocol"
)

// StoreResult reports how an insert attempt was resolved.
type StoreResult string

const (
	StoreCreated   StoreResult = "created"
	StoreDuplicate StoreResult = "duplicate"
	StoreRelinked  StoreResult = "relinked"
)

// ErrLockHeld is returned by lock acquisition when a non-expired lock
// already exists. It is a signal, not a failure: someone else is replying.
var ErrLockHeld = errors.New("conversation lock held")

type Contact struct {
	ID                string
	Name              string
	Phone             string
	LID               string
	ChatLID           string
	GroupKey          string
	IsGroup           bool
	ProfilePictureURL string
	LIDSource         string
	LIDCollectedAt    *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Addresses returns the contact's known canonical addresses, LID first.
func (c *Contact) Addresses() []string {
	var out []string
	if c.LID != "" {
		out = append(out, c.LID)
	}
	if c.Phone != "" {
		out = append(out, c.Phone)
	}
	if c.ChatLID != "" {
		out = append(out, c.ChatLID)
	}
	if c.GroupKey != "" {
		out = append(out, c.GroupKey)
	}
	return out
}

type Conversation struct {
	ID                 string
	ThreadKey          string
	ContactID          string
	IsGroup            bool
	Status             string // open | resolved
	AssignedTo         string
	UnreadCount        int
	LastMessageAt      *time.Time
	LastMessagePreview string
	AIMode             AIMode
	HumanControl       bool

	PendingField   PendingField
	PendingPayload string // JSON document carried across turns
	PendingSetAt   *time.Time

	ActiveCondominiumID         string
	ActiveCondominiumConfidence float64
	ActiveCondominiumName       string
	ActiveUnit                  string
	ProtocolCode                string
	LastProtocolAt              *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

type Message struct {
	ID                string
	ConversationID    string
	Provider          string
	ProviderMessageID string
	Direction         Direction
	SenderKind        SenderKind
	SenderName        string
	Content           string
	MessageType       string // text | image | video | audio | document
	MediaURL          string
	SentAt            time.Time
	DeliveredAt       *time.Time
	ReadAt            *time.Time
	RawPayload        string
	CreatedAt         time.Time

	// Backfill marks a historical import: stored, but without unread or
	// reopen side effects. Not persisted.
	Backfill bool
}

type StaffAddress struct {
	ID          string
	ProfileID   string
	ProfileName string
	Address     string
	Roles       []string
	Active      bool
}

type Condominium struct {
	ID   string
	Name string
}

// FallbackMessageID derives a deterministic dedup id for providers that
// omit a message id. The same physical event reproduces the same id on
// redelivery: the timestamp is truncated to the minute and the content to
// its first 64 runes to absorb provider jitter.
func FallbackMessageID(chatKey string, direction Direction, messageType string, sentAt time.Time, content, mediaURL string) string {
	runes := []rune(content)
	if len(runes) > 64 {
		runes = runes[:64]
	}
	seed := fmt.Sprintf("%s|%s|%s|%d|%s|%s",
		chatKey, direction, messageType, sentAt.Truncate(time.Minute).Unix(), string(runes), mediaURL)
	sum := sha256.Sum256([]byte(seed))
	return "fb:" + hex.EncodeToString(sum[:16])
}

// IChatStorageRepository is the durable store behind ingestion and the
// reply orchestrator. All cross-delivery coordination goes through it.
type IChatStorageRepository interface {
	Init(ctx context.Context) error

	// Contacts
	FindContactsByAddresses(ctx context.Context, addrs []waid.Address) ([]*Contact, error)
	GetContact(ctx context.Context, id string) (*Contact, error)
	CreateContact(ctx context.Context, contact *Contact) error
	UpdateContact(ctx context.Context, contact *Contact) error
	CountContactMessages(ctx context.Context, contactID string) (int64, error)
	MergeContacts(ctx context.Context, survivorID string, loserIDs []string) error

	// Conversations
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	GetConversationByThreadKey(ctx context.Context, threadKey string) (*Conversation, error)
	FindConversationsByContact(ctx context.Context, contactID string) ([]*Conversation, error)
	CreateConversation(ctx context.Context, conv *Conversation) error
	UpdateConversation(ctx context.Context, conv *Conversation) error
	MergeConversations(ctx context.Context, survivorID, loserID string) error
	SetPendingState(ctx context.Context, conversationID string, field PendingField, payload string) error

	// Messages
	StoreMessage(ctx context.Context, msg *Message) (StoreResult, error)
	UpdateMessageStatus(ctx context.Context, provider, providerMessageID string, deliveredAt, readAt *time.Time) error
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]*Message, error)
	LastOutboundMessage(ctx context.Context, conversationID string) (*Message, error)
	CountMessages(ctx context.Context, conversationID string) (int64, error)

	// Staff addresses
	FindStaffByAddress(ctx context.Context, canonical string) (*StaffAddress, error)

	// Condominiums
	ListCondominiums(ctx context.Context) ([]*Condominium, error)
	GetCondominium(ctx context.Context, id string) (*Condominium, error)
	FindCondominiumsByName(ctx context.Context, name string) ([]*Condominium, error)
}

// IConversationLocker is the short-lived mutual exclusion keyed by
// conversation id. Acquire returns ErrLockHeld when a non-expired lock
// exists; expired rows are purged opportunistically before each attempt.
type IConversationLocker interface {
	Acquire(ctx context.Context, conversationID, owner string, ttl time.Duration) error
	Release(ctx context.Context, conversationID string) error
}
