package rest

import (
	"github.com/gofiber/fiber/v2"
	"github.com/zapdesk/zapdesk/config"
	pkgError "github.com/zapdesk/zapdesk/pkg/error"
	"github.com/zapdesk/zapdesk/pkg/utils"
	"gorm.io/gorm"
)

type Health struct {
	DB *gorm.DB
}

func InitRestHealth(app fiber.Router, db *gorm.DB) Health {
	handler := Health{DB: db}

	group := app.Group("/api/health")
	group.Get("/status", handler.GetStatus)

	return handler
}

// GetStatus panics through the recovery middleware on failure, which
// renders the typed error as the response.
func (h *Health) GetStatus(c *fiber.Ctx) error {
	sqlDB, err := h.DB.DB()
	if err != nil || sqlDB.PingContext(c.UserContext()) != nil {
		utils.PanicIfNeeded(pkgError.InternalServerError("database unreachable"))
	}
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Service healthy",
		Results: map[string]string{"version": config.AppVersion},
	})
}
