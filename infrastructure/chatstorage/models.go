package chatstorage

import (
	"strings"
	"time"

	domainChatStorage "github.com/zapdesk/zapdesk/domains/chatstorage"
)

// Persistence models live here so the domain structs stay free of GORM tags.

type contactModel struct {
	ID                string `gorm:"primaryKey"`
	Name              string
	Phone             string     `gorm:"index"`
	LID               string     `gorm:"column:lid;index"`
	ChatLID           string     `gorm:"column:chat_lid;index"`
	GroupKey          string     `gorm:"column:group_key;index"`
	IsGroup           bool       `gorm:"not null;default:false"`
	ProfilePictureURL string     `gorm:"column:profile_picture_url"`
	LIDSource         string     `gorm:"column:lid_source"`
	LIDCollectedAt    *time.Time `gorm:"column:lid_collected_at"`
	CreatedAt         time.Time  `gorm:"autoCreateTime"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime"`
}

func (contactModel) TableName() string {
	return "contacts"
}

type conversationModel struct {
	ID                 string     `gorm:"primaryKey"`
	ThreadKey          string     `gorm:"column:thread_key;uniqueIndex"`
	ContactID          string     `gorm:"column:contact_id;index"`
	IsGroup            bool       `gorm:"not null;default:false"`
	Status             string     `gorm:"not null;default:open"`
	AssignedTo         string     `gorm:"column:assigned_to"`
	UnreadCount        int        `gorm:"column:unread_count;not null;default:0"`
	LastMessageAt      *time.Time `gorm:"column:last_message_at"`
	LastMessagePreview string     `gorm:"column:last_message_preview"`
	AIMode             string     `gorm:"column:ai_mode;not null;default:AUTO"`
	HumanControl       bool       `gorm:"column:human_control;not null;default:false"`

	PendingField   string     `gorm:"column:pending_field"`
	PendingPayload string     `gorm:"column:pending_payload"`
	PendingSetAt   *time.Time `gorm:"column:pending_set_at"`

	ActiveCondominiumID         string     `gorm:"column:active_condominium_id"`
	ActiveCondominiumConfidence float64    `gorm:"column:active_condominium_confidence"`
	ActiveCondominiumName       string     `gorm:"column:active_condominium_name"`
	ActiveUnit                  string     `gorm:"column:active_unit"`
	ProtocolCode                string     `gorm:"column:protocol_code"`
	LastProtocolAt              *time.Time `gorm:"column:last_protocol_at"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (conversationModel) TableName() string {
	return "conversations"
}

type messageModel struct {
	ID                string `gorm:"primaryKey"`
	ConversationID    string `gorm:"column:conversation_id;index"`
	Provider          string `gorm:"uniqueIndex:idx_provider_message_id"`
	ProviderMessageID string `gorm:"column:provider_message_id;uniqueIndex:idx_provider_message_id"`
	Direction         string `gorm:"not null"`
	SenderKind        string `gorm:"column:sender_kind;not null"`
	SenderName        string `gorm:"column:sender_name"`
	Content           string
	MessageType       string     `gorm:"column:message_type;not null;default:text"`
	MediaURL          string     `gorm:"column:media_url"`
	SentAt            time.Time  `gorm:"column:sent_at;index"`
	DeliveredAt       *time.Time `gorm:"column:delivered_at"`
	ReadAt            *time.Time `gorm:"column:read_at"`
	RawPayload        string     `gorm:"column:raw_payload"`
	CreatedAt         time.Time  `gorm:"autoCreateTime"`
}

func (messageModel) TableName() string {
	return "messages"
}

type staffAddressModel struct {
	ID          string    `gorm:"primaryKey"`
	ProfileID   string    `gorm:"column:profile_id;index"`
	ProfileName string    `gorm:"column:profile_name"`
	Address     string    `gorm:"uniqueIndex"`
	Roles       string    // CSV string
	Active      bool      `gorm:"not null;default:true"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

func (staffAddressModel) TableName() string {
	return "staff_addresses"
}

type condominiumModel struct {
	ID        string    `gorm:"primaryKey"`
	Name      string    `gorm:"index"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (condominiumModel) TableName() string {
	return "condominiums"
}

type conversationLockModel struct {
	ConversationID string    `gorm:"column:conversation_id;primaryKey"`
	Owner          string    `gorm:"not null"`
	ExpiresAt      time.Time `gorm:"column:expires_at;index"`
}

func (conversationLockModel) TableName() string {
	return "conversation_locks"
}

// Manual mappers keep the domain structs persistence-agnostic.

func toContactModel(c *domainChatStorage.Contact) contactModel {
	return contactModel{
		ID:                c.ID,
		Name:              c.Name,
		Phone:             c.Phone,
		LID:               c.LID,
		ChatLID:           c.ChatLID,
		GroupKey:          c.GroupKey,
		IsGroup:           c.IsGroup,
		ProfilePictureURL: c.ProfilePictureURL,
		LIDSource:         c.LIDSource,
		LIDCollectedAt:    c.LIDCollectedAt,
	}
}

func fromContactModel(m contactModel) *domainChatStorage.Contact {
	return &domainChatStorage.Contact{
		ID:                m.ID,
		Name:              m.Name,
		Phone:             m.Phone,
		LID:               m.LID,
		ChatLID:           m.ChatLID,
		GroupKey:          m.GroupKey,
		IsGroup:           m.IsGroup,
		ProfilePictureURL: m.ProfilePictureURL,
		LIDSource:         m.LIDSource,
		LIDCollectedAt:    m.LIDCollectedAt,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

func toConversationModel(c *domainChatStorage.Conversation) conversationModel {
	return conversationModel{
		ID:                          c.ID,
		ThreadKey:                   c.ThreadKey,
		ContactID:                   c.ContactID,
		IsGroup:                     c.IsGroup,
		Status:                      c.Status,
		AssignedTo:                  c.AssignedTo,
		UnreadCount:                 c.UnreadCount,
		LastMessageAt:               c.LastMessageAt,
		LastMessagePreview:          c.LastMessagePreview,
		AIMode:                      string(c.AIMode),
		HumanControl:                c.HumanControl,
		PendingField:                string(c.PendingField),
		PendingPayload:              c.PendingPayload,
		PendingSetAt:                c.PendingSetAt,
		ActiveCondominiumID:         c.ActiveCondominiumID,
		ActiveCondominiumConfidence: c.ActiveCondominiumConfidence,
		ActiveCondominiumName:       c.ActiveCondominiumName,
		ActiveUnit:                  c.ActiveUnit,
		ProtocolCode:                c.ProtocolCode,
		LastProtocolAt:              c.LastProtocolAt,
	}
}

func fromConversationModel(m conversationModel) *domainChatStorage.Conversation {
	return &domainChatStorage.Conversation{
		ID:                          m.ID,
		ThreadKey:                   m.ThreadKey,
		ContactID:                   m.ContactID,
		IsGroup:                     m.IsGroup,
		Status:                      m.Status,
		AssignedTo:                  m.AssignedTo,
		UnreadCount:                 m.UnreadCount,
		LastMessageAt:               m.LastMessageAt,
		LastMessagePreview:          m.LastMessagePreview,
		AIMode:                      domainChatStorage.AIMode(m.AIMode),
		HumanControl:                m.HumanControl,
		PendingField:                domainChatStorage.PendingField(m.PendingField),
		PendingPayload:              m.PendingPayload,
		PendingSetAt:                m.PendingSetAt,
		ActiveCondominiumID:         m.ActiveCondominiumID,
		ActiveCondominiumConfidence: m.ActiveCondominiumConfidence,
		ActiveCondominiumName:       m.ActiveCondominiumName,
		ActiveUnit:                  m.ActiveUnit,
		ProtocolCode:                m.ProtocolCode,
		LastProtocolAt:              m.LastProtocolAt,
		CreatedAt:                   m.CreatedAt,
		UpdatedAt:                   m.UpdatedAt,
	}
}

func toMessageModel(msg *domainChatStorage.Message) messageModel {
	return messageModel{
		ID:                msg.ID,
		ConversationID:    msg.ConversationID,
		Provider:          msg.Provider,
		ProviderMessageID: msg.ProviderMessageID,
		Direction:         string(msg.Direction),
		SenderKind:        string(msg.SenderKind),
		SenderName:        msg.SenderName,
		Content:           msg.Content,
		MessageType:       msg.MessageType,
		MediaURL:          msg.MediaURL,
		SentAt:            msg.SentAt,
		DeliveredAt:       msg.DeliveredAt,
		ReadAt:            msg.ReadAt,
		RawPayload:        msg.RawPayload,
	}
}

func fromMessageModel(m messageModel) *domainChatStorage.Message {
	return &domainChatStorage.Message{
		ID:                m.ID,
		ConversationID:    m.ConversationID,
		Provider:          m.Provider,
		ProviderMessageID: m.ProviderMessageID,
		Direction:         domainChatStorage.Direction(m.Direction),
		SenderKind:        domainChatStorage.SenderKind(m.SenderKind),
		SenderName:        m.SenderName,
		Content:           m.Content,
		MessageType:       m.MessageType,
		MediaURL:          m.MediaURL,
		SentAt:            m.SentAt,
		DeliveredAt:       m.DeliveredAt,
		ReadAt:            m.ReadAt,
		RawPayload:        m.RawPayload,
		CreatedAt:         m.CreatedAt,
	}
}

func fromStaffAddressModel(m staffAddressModel) *domainChatStorage.StaffAddress {
	var roles []string
	if trimmed := strings.TrimSpace(m.Roles); trimmed != "" {
		roles = strings.Split(trimmed, ",")
	}
	return &domainChatStorage.StaffAddress{
		ID:          m.ID,
		ProfileID:   m.ProfileID,
		ProfileName: m.ProfileName,
		Address:     m.Address,
		Roles:       roles,
		Active:      m.Active,
	}
}

func fromCondominiumModel(m condominiumModel) *domainChatStorage.Condominium {
	return &domainChatStorage.Condominium{
		ID:   m.ID,
		Name: m.Name,
	}
}
