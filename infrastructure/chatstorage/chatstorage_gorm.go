package chatstorage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	domainChatStorage "github.com/zapdesk/zapdesk/domains/chatstorage"
	pkgError "github.com/zapdesk/zapdesk/pkg/error"
	"github.com/zapdesk/zapdesk/pkg/waid"
	"gorm.io/gorm"
)

// GormRepository implements IChatStorageRepository on top of GORM. It works
// against both SQLite and Postgres; uniqueness races on message inserts are
// resolved by re-reading after a constraint violation.
type GormRepository struct {
	db *gorm.DB
}

func NewStorageRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// DB exposes the underlying handle for collaborators that share the same
// connection (locks, protocol store).
func (r *GormRepository) DB() *gorm.DB {
	return r.db
}

func (r *GormRepository) Init(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(
		&contactModel{},
		&conversationModel{},
		&messageModel{},
		&staffAddressModel{},
		&condominiumModel{},
		&conversationLockModel{},
	)
}

// isUniqueViolation sniffs driver-specific duplicate key errors. GORM only
// translates them when TranslateError is enabled, so cover both drivers.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if err == gorm.ErrDuplicatedKey {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}

// ------------------------------------------------------------------
// Contacts
// ------------------------------------------------------------------

func (r *GormRepository) FindContactsByAddresses(ctx context.Context, addrs []waid.Address) ([]*domainChatStorage.Contact, error) {
	if len(addrs) == 0 {
		return nil, nil
	}
	canonicals := make([]string, 0, len(addrs))
	for _, a := range addrs {
		canonicals = append(canonicals, a.Canonical)
	}

	var models []contactModel
	err := r.db.WithContext(ctx).
		Where("phone IN ? OR lid IN ? OR chat_lid IN ? OR group_key IN ?",
			canonicals, canonicals, canonicals, canonicals).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	result := make([]*domainChatStorage.Contact, len(models))
	for i, m := range models {
		result[i] = fromContactModel(m)
	}
	return result, nil
}

func (r *GormRepository) GetContact(ctx context.Context, id string) (*domainChatStorage.Contact, error) {
	var model contactModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgError.NotFoundError("contact not found")
		}
		return nil, err
	}
	return fromContactModel(model), nil
}

func (r *GormRepository) CreateContact(ctx context.Context, contact *domainChatStorage.Contact) error {
	model := toContactModel(contact)
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *GormRepository) UpdateContact(ctx context.Context, contact *domainChatStorage.Contact) error {
	model := toContactModel(contact)
	return r.db.WithContext(ctx).Save(&model).Error
}

func (r *GormRepository) CountContactMessages(ctx context.Context, contactID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&messageModel{}).
		Joins("JOIN conversations ON conversations.id = messages.conversation_id").
		Where("conversations.contact_id = ?", contactID).
		Count(&count).Error
	return count, err
}

// MergeContacts repoints every conversation of the losers onto the survivor
// and removes the loser rows. Field-level enrichment of the survivor is the
// caller's job; this only moves ownership.
func (r *GormRepository) MergeContacts(ctx context.Context, survivorID string, loserIDs []string) error {
	if len(loserIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&conversationModel{}).
			Where("contact_id IN ?", loserIDs).
			Update("contact_id", survivorID).Error; err != nil {
			return err
		}
		if err := tx.Delete(&contactModel{}, "id IN ?", loserIDs).Error; err != nil {
			return err
		}
		logrus.Infof("[CHATSTORAGE] merged %d contact(s) into %s", len(loserIDs), survivorID)
		return nil
	})
}

// ------------------------------------------------------------------
// Conversations
// ------------------------------------------------------------------

func (r *GormRepository) GetConversation(ctx context.Context, id string) (*domainChatStorage.Conversation, error) {
	var model conversationModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgError.NotFoundError("conversation not found")
		}
		return nil, err
	}
	return fromConversationModel(model), nil
}

func (r *GormRepository) GetConversationByThreadKey(ctx context.Context, threadKey string) (*domainChatStorage.Conversation, error) {
	var model conversationModel
	err := r.db.WithContext(ctx).First(&model, "thread_key = ?", threadKey).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return fromConversationModel(model), nil
}

func (r *GormRepository) FindConversationsByContact(ctx context.Context, contactID string) ([]*domainChatStorage.Conversation, error) {
	var models []conversationModel
	err := r.db.WithContext(ctx).
		Where("contact_id = ?", contactID).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	result := make([]*domainChatStorage.Conversation, len(models))
	for i, m := range models {
		result[i] = fromConversationModel(m)
	}
	return result, nil
}

func (r *GormRepository) CreateConversation(ctx context.Context, conv *domainChatStorage.Conversation) error {
	model := toConversationModel(conv)
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *GormRepository) UpdateConversation(ctx context.Context, conv *domainChatStorage.Conversation) error {
	model := toConversationModel(conv)
	return r.db.WithContext(ctx).Save(&model).Error
}

// MergeConversations folds the loser into the survivor: messages move over,
// unread counts add up and the newest activity wins the preview.
func (r *GormRepository) MergeConversations(ctx context.Context, survivorID, loserID string) error {
	if survivorID == loserID {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var survivor, loser conversationModel
		if err := tx.First(&survivor, "id = ?", survivorID).Error; err != nil {
			return err
		}
		if err := tx.First(&loser, "id = ?", loserID).Error; err != nil {
			return err
		}

		if err := tx.Model(&messageModel{}).
			Where("conversation_id = ?", loserID).
			Update("conversation_id", survivorID).Error; err != nil {
			return err
		}

		updates := map[string]any{
			"unread_count": survivor.UnreadCount + loser.UnreadCount,
		}
		if loser.LastMessageAt != nil &&
			(survivor.LastMessageAt == nil || loser.LastMessageAt.After(*survivor.LastMessageAt)) {
			updates["last_message_at"] = loser.LastMessageAt
			updates["last_message_preview"] = loser.LastMessagePreview
		}
		if err := tx.Model(&conversationModel{}).
			Where("id = ?", survivorID).
			Updates(updates).Error; err != nil {
			return err
		}

		if err := tx.Delete(&conversationLockModel{}, "conversation_id = ?", loserID).Error; err != nil {
			return err
		}
		if err := tx.Delete(&conversationModel{}, "id = ?", loserID).Error; err != nil {
			return err
		}
		logrus.Infof("[CHATSTORAGE] merged conversation %s into %s", loserID, survivorID)
		return nil
	})
}

func (r *GormRepository) SetPendingState(ctx context.Context, conversationID string, field domainChatStorage.PendingField, payload string) error {
	// The payload outlives the field: slots volunteered out of order stay
	// captured even when nothing is currently pending.
	updates := map[string]any{
		"pending_field":   string(field),
		"pending_payload": payload,
	}
	if field == domainChatStorage.PendingNone {
		updates["pending_set_at"] = nil
	} else {
		now := time.Now().UTC()
		updates["pending_set_at"] = &now
	}
	return r.db.WithContext(ctx).Model(&conversationModel{}).
		Where("id = ?", conversationID).
		Updates(updates).Error
}

// ------------------------------------------------------------------
// Messages
// ------------------------------------------------------------------

// StoreMessage inserts idempotently on (provider, provider_message_id).
// A duplicate pointing at another conversation is relinked instead of
// re-created, which is how identity merges converge after the fact.
// Conversation bookkeeping (unread, preview, reopen) runs only on a real
// insert.
func (r *GormRepository) StoreMessage(ctx context.Context, msg *domainChatStorage.Message) (domainChatStorage.StoreResult, error) {
	model := toMessageModel(msg)
	err := r.db.WithContext(ctx).Create(&model).Error
	if err == nil {
		if err := r.touchConversation(ctx, msg); err != nil {
			return "", err
		}
		return domainChatStorage.StoreCreated, nil
	}
	if !isUniqueViolation(err) {
		return "", err
	}

	var existing messageModel
	if err := r.db.WithContext(ctx).
		First(&existing, "provider = ? AND provider_message_id = ?", msg.Provider, msg.ProviderMessageID).Error; err != nil {
		return "", fmt.Errorf("message insert conflicted but row not found: %w", err)
	}
	if existing.ConversationID == msg.ConversationID {
		return domainChatStorage.StoreDuplicate, nil
	}

	// The relink also refreshes the payload snapshot: the redelivery is
	// the provider's current view of the message.
	if err := r.db.WithContext(ctx).Model(&messageModel{}).
		Where("id = ?", existing.ID).
		Updates(map[string]any{
			"conversation_id": msg.ConversationID,
			"raw_payload":     msg.RawPayload,
		}).Error; err != nil {
		return "", err
	}
	logrus.Debugf("[CHATSTORAGE] relinked message %s to conversation %s", existing.ID, msg.ConversationID)
	return domainChatStorage.StoreRelinked, nil
}

func (r *GormRepository) touchConversation(ctx context.Context, msg *domainChatStorage.Message) error {
	preview := msg.Content
	if preview == "" && msg.MessageType != "text" {
		preview = "[" + msg.MessageType + "]"
	}
	if runes := []rune(preview); len(runes) > 120 {
		preview = string(runes[:120])
	}

	updates := map[string]any{
		"last_message_at":      msg.SentAt,
		"last_message_preview": preview,
	}
	if msg.Direction == domainChatStorage.DirectionInbound && !msg.Backfill {
		updates["unread_count"] = gorm.Expr("unread_count + 1")
		updates["status"] = "open"
	}
	return r.db.WithContext(ctx).Model(&conversationModel{}).
		Where("id = ?", msg.ConversationID).
		Updates(updates).Error
}

// UpdateMessageStatus applies delivery/read timestamps. Unknown message ids
// are a no-op: providers replay status callbacks for history we never saw.
func (r *GormRepository) UpdateMessageStatus(ctx context.Context, provider, providerMessageID string, deliveredAt, readAt *time.Time) error {
	updates := map[string]any{}
	if deliveredAt != nil {
		updates["delivered_at"] = deliveredAt
	}
	if readAt != nil {
		updates["read_at"] = readAt
	}
	if len(updates) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&messageModel{}).
		Where("provider = ? AND provider_message_id = ?", provider, providerMessageID).
		Updates(updates).Error
}

func (r *GormRepository) RecentMessages(ctx context.Context, conversationID string, limit int) ([]*domainChatStorage.Message, error) {
	if limit <= 0 {
		limit = 10
	}
	var models []messageModel
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("sent_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	// Chronological order for prompt building.
	result := make([]*domainChatStorage.Message, len(models))
	for i, m := range models {
		result[len(models)-1-i] = fromMessageModel(m)
	}
	return result, nil
}

func (r *GormRepository) LastOutboundMessage(ctx context.Context, conversationID string) (*domainChatStorage.Message, error) {
	var model messageModel
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND direction = ?", conversationID, string(domainChatStorage.DirectionOutbound)).
		Order("sent_at DESC").
		First(&model).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return fromMessageModel(model), nil
}

func (r *GormRepository) CountMessages(ctx context.Context, conversationID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&messageModel{}).
		Where("conversation_id = ?", conversationID).
		Count(&count).Error
	return count, err
}

// ------------------------------------------------------------------
// Staff addresses
// ------------------------------------------------------------------

func (r *GormRepository) FindStaffByAddress(ctx context.Context, canonical string) (*domainChatStorage.StaffAddress, error) {
	var model staffAddressModel
	err := r.db.WithContext(ctx).
		First(&model, "address = ? AND active = ?", canonical, true).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return fromStaffAddressModel(model), nil
}

// ------------------------------------------------------------------
// Condominiums
// ------------------------------------------------------------------

func (r *GormRepository) ListCondominiums(ctx context.Context) ([]*domainChatStorage.Condominium, error) {
	var models []condominiumModel
	err := r.db.WithContext(ctx).Order("name ASC").Find(&models).Error
	if err != nil {
		return nil, err
	}
	result := make([]*domainChatStorage.Condominium, len(models))
	for i, m := range models {
		result[i] = fromCondominiumModel(m)
	}
	return result, nil
}

func (r *GormRepository) GetCondominium(ctx context.Context, id string) (*domainChatStorage.Condominium, error) {
	var model condominiumModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgError.NotFoundError("condominium not found")
		}
		return nil, err
	}
	return fromCondominiumModel(model), nil
}

func (r *GormRepository) FindCondominiumsByName(ctx context.Context, name string) ([]*domainChatStorage.Condominium, error) {
	var models []condominiumModel
	err := r.db.WithContext(ctx).
		Where("LOWER(name) LIKE ?", "%"+strings.ToLower(strings.TrimSpace(name))+"%").
		Order("name ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	result := make([]*domainChatStorage.Condominium, len(models))
	for i, m := range models {
		result[i] = fromCondominiumModel(m)
	}
	return result, nil
}
