package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/zapdesk/zapdesk/config"
	domainChatStorage "github.com/zapdesk/zapdesk/domains/chatstorage"
	domainSend "github.com/zapdesk/zapdesk/domains/send"
	"github.com/zapdesk/zapdesk/integrations/zapi"
	pkgError "github.com/zapdesk/zapdesk/pkg/error"
	"github.com/zapdesk/zapdesk/validations"
)

type serviceSend struct {
	chatStorageRepo domainChatStorage.IChatStorageRepository
	provider        *zapi.Client
}

func NewSendService(chatStorageRepo domainChatStorage.IChatStorageRepository, provider *zapi.Client) domainSend.ISendUsecase {
	return &serviceSend{
		chatStorageRepo: chatStorageRepo,
		provider:        provider,
	}
}

// SendText resolves the delivery address for the conversation, pushes
// the message through the provider and persists it as an outbound row.
func (service *serviceSend) SendText(ctx context.Context, request domainSend.TextRequest) (domainSend.TextResponse, error) {
	if err := validations.ValidateSendText(ctx, request); err != nil {
		return domainSend.TextResponse{}, err
	}

	conv, err := service.chatStorageRepo.GetConversation(ctx, request.ConversationID)
	if err != nil {
		return domainSend.TextResponse{}, err
	}

	destination, err := service.resolveDestination(ctx, conv)
	if err != nil {
		return domainSend.TextResponse{}, err
	}

	providerMessageID, err := service.provider.SendText(ctx, destination, request.Content)
	if err != nil {
		return domainSend.TextResponse{}, err
	}

	now := time.Now().UTC()
	if providerMessageID == "" {
		providerMessageID = domainChatStorage.FallbackMessageID(
			conv.ThreadKey, domainChatStorage.DirectionOutbound, "text", now, request.Content, "")
	}

	msg := &domainChatStorage.Message{
		ID:                uuid.NewString(),
		ConversationID:    conv.ID,
		Provider:          config.ProviderName,
		ProviderMessageID: providerMessageID,
		Direction:         domainChatStorage.DirectionOutbound,
		SenderKind:        domainChatStorage.SenderSystem,
		SenderName:        request.SenderName,
		Content:           request.Content,
		MessageType:       "text",
		SentAt:            now,
	}
	if _, err := service.chatStorageRepo.StoreMessage(ctx, msg); err != nil {
		// Delivered but not persisted: log loudly, do not fail the send.
		logrus.Errorf("[SEND] outbound message %s delivered but not stored: %v", providerMessageID, err)
	}

	return domainSend.TextResponse{MessageID: providerMessageID, Status: "sent"}, nil
}

func (service *serviceSend) resolveDestination(ctx context.Context, conv *domainChatStorage.Conversation) (string, error) {
	if conv.IsGroup {
		return strings.TrimPrefix(conv.ThreadKey, "group:"), nil
	}

	contact, err := service.chatStorageRepo.GetContact(ctx, conv.ContactID)
	if err != nil {
		return "", err
	}
	switch {
	case contact.Phone != "":
		return contact.Phone, nil
	case contact.LID != "":
		return contact.LID, nil
	case contact.ChatLID != "":
		return contact.ChatLID, nil
	}
	return "", pkgError.ValidationError("contact has no deliverable address")
}
