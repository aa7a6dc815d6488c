// Package http provides the HTTP server of the assistant.
package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/xiaot623/gogo/assistant/internal/hub"
	"github.com/xiaot623/gogo/assistant/internal/service"
	"github.com/xiaot623/gogo/assistant/internal/transport/ws"
)

// NewServer creates the echo server with the WebSocket endpoint and the admin API.
func NewServer(svc *service.Service, h *hub.Hub, wsServer *ws.Server) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	e.GET("/ws/:session_id", wsServer.HandleWebSocket)
	NewHandler(svc, h).RegisterRoutes(e)

	return e
}
