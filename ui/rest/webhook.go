package rest

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	domainIngest "github.com/zapdesk/zapdesk/domains/ingest"
	pkgError "github.com/zapdesk/zapdesk/pkg/error"
	"github.com/zapdesk/zapdesk/pkg/utils"
)

type Webhook struct {
	Service domainIngest.IIngestUsecase
}

func InitRestWebhook(app fiber.Router, service domainIngest.IIngestUsecase) Webhook {
	handler := Webhook{Service: service}

	group := app.Group("/webhook")
	group.Post("/zapi", handler.Receive)

	return handler
}

// Receive ingests a provider callback. The provider retries on non-2xx,
// so the status code draws the persistence boundary: only failures
// before the message row exists may return 500.
func (h *Webhook) Receive(c *fiber.Ctx) error {
	var payload domainIngest.WebhookPayload
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(400).JSON(utils.ResponseData{
			Status:  400,
			Code:    "BAD_REQUEST",
			Message: "cannot parse webhook body: " + err.Error(),
		})
	}

	if payload.IsStatusCallback() {
		if err := h.Service.ProcessStatus(c.UserContext(), &payload); err != nil {
			whErr := pkgError.WebhookError(err.Error())
			return c.Status(whErr.StatusCode()).JSON(utils.ResponseData{
				Status:  whErr.StatusCode(),
				Code:    whErr.ErrCode(),
				Message: whErr.Error(),
			})
		}
		return c.JSON(utils.ResponseData{
			Status:  200,
			Code:    "SUCCESS",
			Message: "Status applied",
		})
	}

	backfill := c.Get("X-Backfill") == "true" || payload.IsBackfill

	result, err := h.Service.ProcessMessage(c.UserContext(), &payload, backfill)
	if err != nil {
		if generic, ok := err.(pkgError.GenericError); ok {
			return c.Status(generic.StatusCode()).JSON(utils.ResponseData{
				Status:  generic.StatusCode(),
				Code:    generic.ErrCode(),
				Message: generic.Error(),
			})
		}
		logrus.Errorf("[WEBHOOK] ingestion failed before persistence: %v", err)
		return c.Status(500).JSON(utils.ResponseData{
			Status:  500,
			Code:    "INTERNAL_SERVER_ERROR",
			Message: err.Error(),
		})
	}

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Webhook processed",
		Results: result,
	})
}
