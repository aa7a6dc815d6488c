package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/xiaot623/gogo/assistant/internal/adapter/llm"
	"github.com/xiaot623/gogo/assistant/internal/hub"
	"github.com/xiaot623/gogo/assistant/internal/repository"
	"github.com/xiaot623/gogo/assistant/internal/service"
)

// Handler serves the admin API.
type Handler struct {
	service *service.Service
	hub     *hub.Hub
}

// NewHandler creates a new handler.
func NewHandler(svc *service.Service, h *hub.Hub) *Handler {
	return &Handler{service: svc, hub: h}
}

// RegisterRoutes registers the admin routes.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/chat/health", h.Health)

	e.GET("/agent/chat/models", h.ListModels)
	e.PUT("/agent/chat/model", h.SelectModel)

	e.GET("/agent/sessions/:session_id", h.GetSession)
	e.DELETE("/agent/sessions/:session_id", h.DeleteSession)
}

// Health returns health status.
// GET /chat/health
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":             "healthy",
		"active_connections": h.hub.GetConnectionCount(),
		"connected_clients":  h.hub.GetSessionCount(),
	})
}

// ListModels returns the configured models and the active selection.
// GET /agent/chat/models
func (h *Handler) ListModels(c echo.Context) error {
	models := h.service.Models()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"available": models.Available(),
		"current":   models.Active(),
	})
}

// SelectModelRequest is the body of PUT /agent/chat/model.
type SelectModelRequest struct {
	Model string `json:"model"`
}

// SelectModel swaps the active model for every session.
// PUT /agent/chat/model
func (h *Handler) SelectModel(c echo.Context) error {
	var req SelectModelRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Model == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "model is required"})
	}

	prev, err := h.service.Models().Select(req.Model)
	if errors.Is(err, llm.ErrUnknownModel) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"ok":       true,
		"model":    req.Model,
		"previous": prev.Model,
	})
}

// GetSession returns the state summary of a session.
// GET /agent/sessions/:session_id
func (h *Handler) GetSession(c echo.Context) error {
	info, err := h.service.Session(c.Request().Context(), c.Param("session_id"))
	if errors.Is(err, repository.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "session not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, info)
}

// DeleteSession stops a session and removes its checkpoint.
// DELETE /agent/sessions/:session_id
func (h *Handler) DeleteSession(c echo.Context) error {
	if err := h.service.CloseSession(c.Request().Context(), c.Param("session_id")); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}
