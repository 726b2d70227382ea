package usecase

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/zapdesk/zapdesk/botengine"
	"github.com/zapdesk/zapdesk/config"
	domainChatStorage "github.com/zapdesk/zapdesk/domains/chatstorage"
	domainIngest "github.com/zapdesk/zapdesk/domains/ingest"
	pkgError "github.com/zapdesk/zapdesk/pkg/error"
	"github.com/zapdesk/zapdesk/pkg/msgworker"
	"github.com/zapdesk/zapdesk/pkg/waid"
)

// placeholderName is what a contact is called until a real display name
// arrives. Enrichment may replace it; a real name is never overwritten.
const placeholderName = "Contato Desconhecido"

type serviceIngest struct {
	chatStorageRepo domainChatStorage.IChatStorageRepository
	engine          *botengine.Engine
	replyPool       *msgworker.ReplyPool
}

// NewIngestService wires the pipeline. A nil replyPool runs the
// orchestrator inline; with a pool the webhook acknowledges the
// provider before the reply work finishes.
func NewIngestService(chatStorageRepo domainChatStorage.IChatStorageRepository, engine *botengine.Engine, replyPool *msgworker.ReplyPool) domainIngest.IIngestUsecase {
	return &serviceIngest{
		chatStorageRepo: chatStorageRepo,
		engine:          engine,
		replyPool:       replyPool,
	}
}

// ProcessMessage runs normalize, resolve, store and orchestrate for one
// webhook delivery. Everything up to and including StoreMessage is the
// retryable zone: a failure there surfaces as an error so the provider
// redelivers. Failures after the store are logged and swallowed.
func (service *serviceIngest) ProcessMessage(ctx context.Context, payload *domainIngest.WebhookPayload, backfill bool) (*domainIngest.Result, error) {
	backfill = backfill || payload.IsBackfill

	isGroup := payload.IsGroup
	chatRaw := firstNonEmpty(payload.Phone, payload.ChatID)
	if !isGroup && chatRaw != "" {
		if addr, err := waid.Normalize(chatRaw, config.CountryCode); err == nil && addr.Kind == waid.KindGroup {
			isGroup = true
		}
	}

	var (
		contact   *domainChatStorage.Contact
		threadKey string
		err       error
	)
	if isGroup {
		contact, threadKey, err = service.resolveGroup(ctx, payload, chatRaw)
	} else {
		contact, threadKey, err = service.resolveContact(ctx, payload)
	}
	if err != nil {
		return nil, err
	}

	conv, err := service.upsertConversation(ctx, contact, threadKey, isGroup)
	if err != nil {
		return nil, err
	}

	if !isGroup {
		if err := service.migrateOrphans(ctx, conv, contact.ID); err != nil {
			return nil, err
		}
	}

	if !isGroup && !backfill && !payload.FromMe && conv.AssignedTo != "" {
		conv.AssignedTo = ""
		if err := service.chatStorageRepo.UpdateConversation(ctx, conv); err != nil {
			return nil, err
		}
	}

	msg := service.buildMessage(payload, conv, backfill)
	storeResult, err := service.chatStorageRepo.StoreMessage(ctx, msg)
	if err != nil {
		return nil, err
	}

	result := &domainIngest.Result{
		ContactID:      contact.ID,
		ConversationID: conv.ID,
		MessageID:      msg.ID,
		Store:          storeResult,
	}

	// Post-persist zone: the provider must not redeliver for anything
	// that fails from here on.
	switch {
	case backfill:
		result.Skipped = "backfill"
	case payload.FromMe:
		result.Skipped = "from_me"
	case isGroup:
		result.Skipped = "group"
	case storeResult != domainChatStorage.StoreCreated:
		result.Skipped = string(storeResult)
	default:
		senderAddrs := waid.CandidateSenderIDs(config.CountryCode,
			payload.SenderLID, payload.Phone, payload.SenderPhone, payload.ChatLID)

		if service.replyPool != nil {
			convID, storedMsg := conv.ID, msg
			queued := service.replyPool.TryDispatch(msgworker.ReplyJob{
				ConversationID: convID,
				Handler: func(jobCtx context.Context) error {
					_, err := service.engine.HandleInbound(jobCtx, convID, storedMsg, senderAddrs)
					return err
				},
			})
			if queued {
				break
			}
			// Queue overflow falls back to the inline path.
		}

		engineResult, err := service.engine.HandleInbound(ctx, conv.ID, msg, senderAddrs)
		if err != nil {
			logrus.Errorf("[INGEST] orchestrator failed for conversation %s: %v", conv.ID, err)
		} else if engineResult != nil {
			result.ReplySent = engineResult.Replied
		}
	}

	return result, nil
}

// ProcessStatus applies delivery/read callbacks. Unknown ids are not
// actionable and are dropped without complaint.
func (service *serviceIngest) ProcessStatus(ctx context.Context, payload *domainIngest.WebhookPayload) error {
	ids := payload.IDs
	if len(ids) == 0 && payload.MessageID != "" {
		ids = []string{payload.MessageID}
	}
	if len(ids) == 0 {
		return nil
	}

	at := eventTime(payload)
	var deliveredAt, readAt *time.Time
	switch strings.ToUpper(payload.Status) {
	case "DELIVERED", "RECEIVED", "SENT":
		deliveredAt = &at
	case "READ", "VIEWED", "READ-SELF", "PLAYED":
		readAt = &at
	default:
		return nil
	}

	for _, id := range ids {
		if err := service.chatStorageRepo.UpdateMessageStatus(ctx, config.ProviderName, id, deliveredAt, readAt); err != nil {
			return err
		}
	}
	return nil
}

// resolveGroup skips per-person identity entirely: a group is keyed by
// its canonical address and gets a lightweight contact row for display.
func (service *serviceIngest) resolveGroup(ctx context.Context, payload *domainIngest.WebhookPayload, chatRaw string) (*domainChatStorage.Contact, string, error) {
	addr, err := waid.Normalize(chatRaw, config.CountryCode)
	if err != nil {
		return nil, "", pkgError.ValidationError("group payload carries no resolvable identity")
	}
	canonical := addr.Canonical
	if addr.Kind != waid.KindGroup {
		group, err := waid.NormalizeGroup(chatRaw)
		if err != nil {
			return nil, "", pkgError.ValidationError("group payload carries no resolvable identity")
		}
		canonical = group.Canonical
	}

	existing, err := service.chatStorageRepo.FindContactsByAddresses(ctx, []waid.Address{{Canonical: canonical, Kind: waid.KindGroup}})
	if err != nil {
		return nil, "", err
	}

	var contact *domainChatStorage.Contact
	if len(existing) > 0 {
		contact = existing[0]
		if service.enrichGroupContact(contact, payload) {
			if err := service.chatStorageRepo.UpdateContact(ctx, contact); err != nil {
				return nil, "", err
			}
		}
	} else {
		name := firstNonEmpty(payload.SenderName, canonical)
		contact = &domainChatStorage.Contact{
			ID:                uuid.NewString(),
			Name:              name,
			GroupKey:          canonical,
			IsGroup:           true,
			ProfilePictureURL: payload.SenderPhoto,
		}
		if err := service.chatStorageRepo.CreateContact(ctx, contact); err != nil {
			return nil, "", err
		}
	}

	return contact, waid.GroupThreadKey(canonical), nil
}

func (service *serviceIngest) enrichGroupContact(contact *domainChatStorage.Contact, payload *domainIngest.WebhookPayload) bool {
	changed := false
	if (contact.Name == "" || contact.Name == contact.GroupKey) && payload.SenderName != "" {
		contact.Name = payload.SenderName
		changed = true
	}
	if contact.ProfilePictureURL == "" && payload.SenderPhoto != "" {
		contact.ProfilePictureURL = payload.SenderPhoto
		changed = true
	}
	return changed
}

// resolveContact finds or creates the person behind a direct message,
// merging contacts when one event proves two records are the same
// person.
func (service *serviceIngest) resolveContact(ctx context.Context, payload *domainIngest.WebhookPayload) (*domainChatStorage.Contact, string, error) {
	raws := []string{payload.SenderLID, payload.Phone, payload.SenderPhone, payload.ChatLID}
	if payload.Contact != nil {
		raws = append(raws, payload.Contact.LID, payload.Contact.Phone)
	}
	candidates := waid.CandidateSenderIDs(config.CountryCode, raws...)
	if len(candidates) == 0 {
		return nil, "", pkgError.ValidationError("payload carries no resolvable identity")
	}

	matches, err := service.chatStorageRepo.FindContactsByAddresses(ctx, candidates)
	if err != nil {
		return nil, "", err
	}

	var contact *domainChatStorage.Contact
	switch len(matches) {
	case 0:
		contact = &domainChatStorage.Contact{ID: uuid.NewString(), Name: placeholderName}
		service.enrichContact(contact, payload, candidates)
		if err := service.chatStorageRepo.CreateContact(ctx, contact); err != nil {
			return nil, "", err
		}
	case 1:
		contact = matches[0]
		if service.enrichContact(contact, payload, candidates) {
			if err := service.chatStorageRepo.UpdateContact(ctx, contact); err != nil {
				return nil, "", err
			}
		}
	default:
		contact, err = service.mergeContacts(ctx, matches)
		if err != nil {
			return nil, "", err
		}
		if service.enrichContact(contact, payload, candidates) {
			if err := service.chatStorageRepo.UpdateContact(ctx, contact); err != nil {
				return nil, "", err
			}
		}
	}

	return contact, waid.ContactThreadKey(contact.ID), nil
}

// enrichContact fills blanks only: a known field is never overwritten
// with conflicting data from a later event.
func (service *serviceIngest) enrichContact(contact *domainChatStorage.Contact, payload *domainIngest.WebhookPayload, candidates []waid.Address) bool {
	changed := false
	for _, c := range candidates {
		switch c.Kind {
		case waid.KindPhone:
			if contact.Phone == "" {
				contact.Phone = c.Canonical
				changed = true
			}
		case waid.KindLID:
			if contact.LID == "" {
				contact.LID = c.Canonical
				contact.LIDSource = "webhook"
				now := time.Now().UTC()
				contact.LIDCollectedAt = &now
				changed = true
			}
		}
	}

	if contact.ChatLID == "" && payload.ChatLID != "" {
		if addr, err := waid.Normalize(payload.ChatLID, config.CountryCode); err == nil {
			contact.ChatLID = addr.Canonical
			changed = true
		}
	}

	name := payload.SenderName
	if payload.Contact != nil && payload.Contact.Name != "" {
		name = payload.Contact.Name
	}
	if name != "" && !payload.FromMe && (contact.Name == "" || contact.Name == placeholderName) {
		contact.Name = name
		changed = true
	}

	photo := payload.SenderPhoto
	if payload.Contact != nil && payload.Contact.ProfilePicture != "" {
		photo = payload.Contact.ProfilePicture
	}
	if contact.ProfilePictureURL == "" && photo != "" {
		contact.ProfilePictureURL = photo
		changed = true
	}

	return changed
}

// mergeContacts keeps the record with the most history and folds the
// rest into it.
func (service *serviceIngest) mergeContacts(ctx context.Context, matches []*domainChatStorage.Contact) (*domainChatStorage.Contact, error) {
	survivor := matches[0]
	best := int64(-1)
	for _, m := range matches {
		count, err := service.chatStorageRepo.CountContactMessages(ctx, m.ID)
		if err != nil {
			return nil, err
		}
		if count > best {
			best = count
			survivor = m
		}
	}

	var loserIDs []string
	for _, m := range matches {
		if m.ID == survivor.ID {
			continue
		}
		loserIDs = append(loserIDs, m.ID)
		// Address fields travel to the survivor before the row goes.
		if survivor.Phone == "" {
			survivor.Phone = m.Phone
		}
		if survivor.LID == "" {
			survivor.LID = m.LID
			survivor.LIDSource = m.LIDSource
			survivor.LIDCollectedAt = m.LIDCollectedAt
		}
		if survivor.ChatLID == "" {
			survivor.ChatLID = m.ChatLID
		}
		if (survivor.Name == "" || survivor.Name == placeholderName) && m.Name != "" && m.Name != placeholderName {
			survivor.Name = m.Name
		}
		if survivor.ProfilePictureURL == "" {
			survivor.ProfilePictureURL = m.ProfilePictureURL
		}
	}

	logrus.Infof("[INGEST] merging %d contact(s) into %s", len(loserIDs), survivor.ID)
	if err := service.chatStorageRepo.MergeContacts(ctx, survivor.ID, loserIDs); err != nil {
		return nil, err
	}
	if err := service.chatStorageRepo.UpdateContact(ctx, survivor); err != nil {
		return nil, err
	}
	return survivor, nil
}

func (service *serviceIngest) upsertConversation(ctx context.Context, contact *domainChatStorage.Contact, threadKey string, isGroup bool) (*domainChatStorage.Conversation, error) {
	conv, err := service.chatStorageRepo.GetConversationByThreadKey(ctx, threadKey)
	if err != nil {
		return nil, err
	}
	if conv != nil {
		return conv, nil
	}

	conv = &domainChatStorage.Conversation{
		ID:        uuid.NewString(),
		ThreadKey: threadKey,
		ContactID: contact.ID,
		IsGroup:   isGroup,
		Status:    "open",
		AIMode:    domainChatStorage.AIModeAuto,
	}
	if err := service.chatStorageRepo.CreateConversation(ctx, conv); err != nil {
		// A concurrent delivery may have won the thread-key race.
		if existing, lookupErr := service.chatStorageRepo.GetConversationByThreadKey(ctx, threadKey); lookupErr == nil && existing != nil {
			return existing, nil
		}
		return nil, err
	}
	return conv, nil
}

// migrateOrphans folds any conversation the contact owns under an older
// thread key into the canonical one. Threads never fork per contact.
func (service *serviceIngest) migrateOrphans(ctx context.Context, canonical *domainChatStorage.Conversation, contactID string) error {
	siblings, err := service.chatStorageRepo.FindConversationsByContact(ctx, contactID)
	if err != nil {
		return err
	}
	for _, sibling := range siblings {
		if sibling.ID == canonical.ID {
			continue
		}
		logrus.Infof("[INGEST] migrating orphan conversation %s into %s", sibling.ID, canonical.ID)
		if err := service.chatStorageRepo.MergeConversations(ctx, canonical.ID, sibling.ID); err != nil {
			return err
		}
	}
	return nil
}

func (service *serviceIngest) buildMessage(payload *domainIngest.WebhookPayload, conv *domainChatStorage.Conversation, backfill bool) *domainChatStorage.Message {
	content, messageType, mediaURL := extractContent(payload)
	sentAt := eventTime(payload)

	direction := domainChatStorage.DirectionInbound
	senderKind := domainChatStorage.SenderContact
	if payload.FromMe {
		direction = domainChatStorage.DirectionOutbound
		senderKind = domainChatStorage.SenderAgent
	}

	providerMessageID := payload.MessageID
	if providerMessageID == "" {
		providerMessageID = domainChatStorage.FallbackMessageID(
			conv.ThreadKey, direction, messageType, sentAt, content, mediaURL)
	}

	raw, _ := json.Marshal(payload)
	return &domainChatStorage.Message{
		ID:                uuid.NewString(),
		ConversationID:    conv.ID,
		Provider:          config.ProviderName,
		ProviderMessageID: providerMessageID,
		Direction:         direction,
		SenderKind:        senderKind,
		SenderName:        payload.SenderName,
		Content:           content,
		MessageType:       messageType,
		MediaURL:          mediaURL,
		SentAt:            sentAt,
		RawPayload:        string(raw),
		Backfill:          backfill,
	}
}

func extractContent(payload *domainIngest.WebhookPayload) (content, messageType, mediaURL string) {
	switch {
	case payload.Text != nil && payload.Text.Message != "":
		return payload.Text.Message, "text", ""
	case payload.Image != nil:
		return payload.Image.Caption, "image", payload.Image.MediaURL()
	case payload.Video != nil:
		return payload.Video.Caption, "video", payload.Video.MediaURL()
	case payload.Audio != nil:
		return "", "audio", payload.Audio.MediaURL()
	case payload.Document != nil:
		return payload.Document.Caption, "document", payload.Document.MediaURL()
	}
	return "", "text", ""
}

// eventTime prefers the millisecond moment field, falls back to the
// second timestamp, then to now.
func eventTime(payload *domainIngest.WebhookPayload) time.Time {
	if payload.Momment > 0 {
		return time.UnixMilli(payload.Momment).UTC()
	}
	if payload.Timestamp > 0 {
		return time.Unix(payload.Timestamp, 0).UTC()
	}
	return time.Now().UTC()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
