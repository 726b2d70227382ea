package chatstorage

import (
	"context"
	"time"

	valkeylib "github.com/valkey-io/valkey-go"
	domainChatStorage "github.com/zapdesk/zapdesk/domains/chatstorage"
	"github.com/zapdesk/zapdesk/infrastructure/valkey"
)

// ValkeyLocker implements IConversationLocker with SET NX PX. Expiry is
// server-side, so no purge pass is needed. Opt-in via LOCK_BACKEND=valkey
// when several replicas share one database but want cheaper lock traffic.
type ValkeyLocker struct {
	client *valkey.Client
}

func NewValkeyLocker(client *valkey.Client) *ValkeyLocker {
	return &ValkeyLocker{client: client}
}

func (l *ValkeyLocker) key(conversationID string) string {
	return l.client.Key("lock", "conversation", conversationID)
}

func (l *ValkeyLocker) Acquire(ctx context.Context, conversationID, owner string, ttl time.Duration) error {
	inner := l.client.Inner()
	cmd := inner.B().Set().
		Key(l.key(conversationID)).
		Value(owner).
		Nx().
		Px(ttl).
		Build()

	_, err := inner.Do(ctx, cmd).ToString()
	if err != nil {
		if valkeylib.IsValkeyNil(err) {
			return domainChatStorage.ErrLockHeld
		}
		return err
	}
	return nil
}

func (l *ValkeyLocker) Release(ctx context.Context, conversationID string) error {
	inner := l.client.Inner()
	return inner.Do(ctx, inner.B().Del().Key(l.key(conversationID)).Build()).Error()
}
