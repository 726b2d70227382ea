package send

import "context"

type TextRequest struct {
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content"`
	SenderName     string `json:"sender_name,omitempty"`
}

type TextResponse struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
}

// ISendUsecase delivers an outbound reply through the messaging provider
// and persists it. Provider-specific formatting stays behind it.
type ISendUsecase interface {
	SendText(ctx context.Context, request TextRequest) (TextResponse, error)
}
