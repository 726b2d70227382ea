package validations

import (
	"context"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	domainProtocol "github.com/zapdesk/zapdesk/domains/protocol"
	domainSend "github.com/zapdesk/zapdesk/domains/send"
	pkgError "github.com/zapdesk/zapdesk/pkg/error"
)

func ValidateSendText(ctx context.Context, request domainSend.TextRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.ConversationID, validation.Required),
		validation.Field(&request.Content, validation.Required, validation.Length(1, 4096)),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}

func ValidateCreateProtocol(ctx context.Context, request domainProtocol.CreateRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.ConversationID, validation.Required),
		validation.Field(&request.Summary, validation.Required, validation.Length(1, 2000)),
		validation.Field(&request.Priority, validation.In("", "normal", "critical")),
		validation.Field(&request.CreatedByType, validation.In("", "ai", "agent")),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}
