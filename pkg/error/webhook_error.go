package error

import "net/http"

// WebhookError signals a failure delivering or accepting a webhook payload
// before anything was durably persisted, so the caller may safely redeliver.
type WebhookError string

func (err WebhookError) Error() string {
	return string(err)
}

func (err WebhookError) ErrCode() string {
	return "WEBHOOK_ERROR"
}

func (err WebhookError) StatusCode() int {
	return http.StatusInternalServerError
}
