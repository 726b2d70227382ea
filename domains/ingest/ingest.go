package ingest

import (
	"context"

	domainChatStorage "github.com/zapdesk/zapdesk/domains/chatstorage"
)

// WebhookPayload mirrors the provider's webhook body. Message and status
// callbacks share the shape; status callbacks carry Status plus IDs.
type WebhookPayload struct {
	Type        string `json:"type,omitempty"`
	MessageID   string `json:"messageId,omitempty"`
	Phone       string `json:"phone,omitempty"`
	ChatLID     string `json:"chatLid,omitempty"`
	ChatID      string `json:"chatId,omitempty"`
	SenderPhone string `json:"senderPhone,omitempty"`
	SenderLID   string `json:"lid,omitempty"`
	SenderName  string `json:"senderName,omitempty"`
	SenderPhoto string `json:"senderPhoto,omitempty"`
	IsGroup     bool   `json:"isGroup,omitempty"`
	FromMe      bool   `json:"fromMe,omitempty"`
	IsBackfill  bool   `json:"isBackfill,omitempty"`
	Timestamp   int64  `json:"timestamp,omitempty"` // seconds
	Momment     int64  `json:"momment,omitempty"`   // milliseconds

	Text     *TextContent  `json:"text,omitempty"`
	Image    *MediaContent `json:"image,omitempty"`
	Video    *MediaContent `json:"video,omitempty"`
	Audio    *MediaContent `json:"audio,omitempty"`
	Document *MediaContent `json:"document,omitempty"`
	Contact  *ContactInfo  `json:"contact,omitempty"`

	// Status callback fields
	Status string   `json:"status,omitempty"`
	IDs    []string `json:"ids,omitempty"`
}

type TextContent struct {
	Message string `json:"message"`
}

type MediaContent struct {
	URL      string `json:"url,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
	VideoURL string `json:"videoUrl,omitempty"`
	AudioURL string `json:"audioUrl,omitempty"`
	DocURL   string `json:"documentUrl,omitempty"`
	Caption  string `json:"caption,omitempty"`
	FileName string `json:"fileName,omitempty"`
}

// MediaURL returns whichever URL variant the provider filled.
func (m *MediaContent) MediaURL() string {
	for _, u := range []string{m.ImageURL, m.VideoURL, m.AudioURL, m.DocURL, m.URL} {
		if u != "" {
			return u
		}
	}
	return ""
}

type ContactInfo struct {
	LID            string `json:"lid,omitempty"`
	Phone          string `json:"phone,omitempty"`
	Name           string `json:"name,omitempty"`
	ProfilePicture string `json:"profilePicture,omitempty"`
}

// IsStatusCallback reports whether the payload is a delivery/read status
// event rather than a new message.
func (p *WebhookPayload) IsStatusCallback() bool {
	switch p.Type {
	case "DeliveryCallback", "ReadCallback", "MessageStatusCallback":
		return true
	}
	return p.Status != "" && p.Text == nil && p.Image == nil && p.Video == nil &&
		p.Audio == nil && p.Document == nil
}

type Result struct {
	ContactID      string                        `json:"contact_id,omitempty"`
	ConversationID string                        `json:"conversation_id,omitempty"`
	MessageID      string                        `json:"message_id,omitempty"`
	Store          domainChatStorage.StoreResult `json:"store,omitempty"`
	Skipped        string                        `json:"skipped,omitempty"`
	ReplySent      bool                          `json:"reply_sent,omitempty"`
}

type IIngestUsecase interface {
	// ProcessMessage runs the full pipeline for a message-shaped payload.
	ProcessMessage(ctx context.Context, payload *WebhookPayload, backfill bool) (*Result, error)
	// ProcessStatus applies a delivery/read status callback. Unknown
	// message ids are dropped silently.
	ProcessStatus(ctx context.Context, payload *WebhookPayload) error
}
