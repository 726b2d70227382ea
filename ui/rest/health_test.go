package rest

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zapdesk/zapdesk/core/database"
	"github.com/zapdesk/zapdesk/pkg/utils"
	"github.com/zapdesk/zapdesk/ui/rest/middleware"
	"gorm.io/gorm"
)

func newHealthApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()
	db, err := database.NewDatabaseWithURI("file:" + t.TempDir() + "/health.db")
	require.NoError(t, err)

	app := fiber.New()
	app.Use(middleware.Recovery())
	InitRestHealth(app, db)
	return app, db
}

func TestHealthStatus(t *testing.T) {
	app, _ := newHealthApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/health/status", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var data utils.ResponseData
	require.NoError(t, json.Unmarshal(raw, &data))
	assert.Equal(t, "SUCCESS", data.Code)
}

func TestHealthStatusDatabaseDown(t *testing.T) {
	app, db := newHealthApp(t)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	resp, err := app.Test(httptest.NewRequest("GET", "/api/health/status", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 500, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var data utils.ResponseData
	require.NoError(t, json.Unmarshal(raw, &data))
	assert.Equal(t, "INTERNAL_SERVER_ERROR", data.Code)
	assert.Equal(t, "database unreachable", data.Message)
}
