package chatstorage

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	domainChatStorage "github.com/zapdesk/zapdesk/domains/chatstorage"
	"gorm.io/gorm"
)

// GormLocker implements IConversationLocker as a row per conversation in
// the shared database. This is the default backend: one process or many,
// the unique primary key arbitrates who replies.
type GormLocker struct {
	db *gorm.DB
}

func NewGormLocker(db *gorm.DB) *GormLocker {
	return &GormLocker{db: db}
}

func (l *GormLocker) Init(ctx context.Context) error {
	return l.db.WithContext(ctx).AutoMigrate(&conversationLockModel{})
}

// Acquire purges an expired row first, then races on the insert. A unique
// violation means a live holder exists.
func (l *GormLocker) Acquire(ctx context.Context, conversationID, owner string, ttl time.Duration) error {
	now := time.Now().UTC()

	if err := l.db.WithContext(ctx).
		Delete(&conversationLockModel{}, "conversation_id = ? AND expires_at <= ?", conversationID, now).Error; err != nil {
		return err
	}

	lock := conversationLockModel{
		ConversationID: conversationID,
		Owner:          owner,
		ExpiresAt:      now.Add(ttl),
	}
	err := l.db.WithContext(ctx).Create(&lock).Error
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		logrus.Debugf("[LOCK] conversation %s already locked", conversationID)
		return domainChatStorage.ErrLockHeld
	}
	return err
}

func (l *GormLocker) Release(ctx context.Context, conversationID string) error {
	return l.db.WithContext(ctx).
		Delete(&conversationLockModel{}, "conversation_id = ?", conversationID).Error
}
