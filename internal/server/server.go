// Package server exposes the small HTTP surface around the bot: a landing
// page for keepalive pings, a health probe and the Telegram webhook
// endpoint for deployments with a public URL.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/crazyjump/crazyjump-bot/internal/storage"
)

// UpdateHandler receives decoded Telegram updates. The bot satisfies it.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, update tgbotapi.Update)
}

// New builds the Echo instance with all routes registered.
func New(store *storage.Store, bot UpdateHandler, log zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.GET("/", func(c echo.Context) error {
		return c.String(http.StatusOK, "CrazyJump bot is running")
	})

	// Health reflects the database, not just the process: a failed
	// integrity check reports 503 so orchestration can restart us.
	e.GET("/healthz", func(c echo.Context) error {
		if err := store.CheckIntegrity(c.Request().Context()); err != nil {
			log.Error().Err(err).Msg("health check failed")
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	e.POST("/webhook", func(c echo.Context) error {
		ct := c.Request().Header.Get(echo.HeaderContentType)
		if !strings.HasPrefix(ct, echo.MIMEApplicationJSON) {
			return c.NoContent(http.StatusBadRequest)
		}
		var update tgbotapi.Update
		if err := json.NewDecoder(c.Request().Body).Decode(&update); err != nil {
			log.Warn().Err(err).Msg("malformed webhook update")
			return c.NoContent(http.StatusBadRequest)
		}
		bot.HandleUpdate(c.Request().Context(), update)
		return c.NoContent(http.StatusOK)
	})

	return e
}
